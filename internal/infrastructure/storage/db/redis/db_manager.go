package dbredis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tdex-network/escrowd/internal/core/domain"
	"github.com/tdex-network/escrowd/internal/core/ports"
)

const (
	defaultPrefix = "escrowd"
	pingTimeout   = 5 * time.Second
)

// Config describes the connection to the redis server.
type Config struct {
	Address  string
	Password string
	DB       int
	// Prefix namespaces every key, defaults to escrowd.
	Prefix string
}

type repoManager struct {
	client           *redis.Client
	ticketRepository domain.TicketRepository
}

// NewRepoManager connects to redis and returns the ledger stored there.
func NewRepoManager(cfg Config) (ports.RepoManager, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &repoManager{
		client:           client,
		ticketRepository: NewTicketRepositoryImpl(client, cfg.Prefix),
	}, nil
}

func (d *repoManager) TicketRepository() domain.TicketRepository {
	return d.ticketRepository
}

func (d *repoManager) Close() {
	d.client.Close()
}
