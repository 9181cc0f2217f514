package db

import (
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/tdex-network/escrowd/internal/core/ports"
	dbbadger "github.com/tdex-network/escrowd/internal/infrastructure/storage/db/badger"
	"github.com/tdex-network/escrowd/internal/infrastructure/storage/db/inmemory"
	dbredis "github.com/tdex-network/escrowd/internal/infrastructure/storage/db/redis"
)

const (
	TypeBadger   = "badger"
	TypeRedis    = "redis"
	TypeInMemory = "inmemory"
)

// Config selects and configures the ledger backend.
type Config struct {
	Type string
	// Dir is the badger datadir.
	Dir   string
	Redis dbredis.Config
	// Logger is optional and only used by badger.
	Logger badger.Logger
}

// NewRepoManager opens the ledger backend named by cfg.Type.
func NewRepoManager(cfg Config) (ports.RepoManager, error) {
	switch cfg.Type {
	case TypeBadger, "":
		return dbbadger.NewRepoManager(cfg.Dir, cfg.Logger)
	case TypeRedis:
		return dbredis.NewRepoManager(cfg.Redis)
	case TypeInMemory:
		return inmemory.NewRepoManager(), nil
	default:
		return nil, fmt.Errorf("unknown db type %s", cfg.Type)
	}
}
