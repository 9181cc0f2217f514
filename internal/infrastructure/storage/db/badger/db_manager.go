package dbbadger

import (
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	"github.com/tdex-network/escrowd/internal/core/domain"
	"github.com/tdex-network/escrowd/internal/core/ports"
	"github.com/timshannon/badgerhold/v4"
)

const ticketsDir = "tickets"

type repoManager struct {
	store            *badgerhold.Store
	ticketRepository domain.TicketRepository
}

// NewRepoManager opens (or creates if not exists) the badger ledger under
// the given base directory. An empty directory opens an in-memory store.
func NewRepoManager(baseDbDir string, logger badger.Logger) (ports.RepoManager, error) {
	dir := ""
	if baseDbDir != "" {
		dir = filepath.Join(baseDbDir, ticketsDir)
	}
	store, err := createDb(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening tickets db: %w", err)
	}

	return &repoManager{
		store:            store,
		ticketRepository: NewTicketRepositoryImpl(store),
	}, nil
}

func (d *repoManager) TicketRepository() domain.TicketRepository {
	return d.ticketRepository
}

func (d *repoManager) Close() {
	d.store.Close()
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger
	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	return badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}
