package inmemory

import (
	"github.com/tdex-network/escrowd/internal/core/domain"
	"github.com/tdex-network/escrowd/internal/core/ports"
)

type repoManager struct {
	ticketRepository domain.TicketRepository
}

// NewRepoManager returns a volatile ledger, meant for development and
// testing only.
func NewRepoManager() ports.RepoManager {
	return &repoManager{
		ticketRepository: NewTicketRepositoryImpl(),
	}
}

func (d *repoManager) TicketRepository() domain.TicketRepository {
	return d.ticketRepository
}

func (d *repoManager) Close() {}
