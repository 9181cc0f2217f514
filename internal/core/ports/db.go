package ports

import "github.com/tdex-network/escrowd/internal/core/domain"

// RepoManager interface defines the repositories of the deal ledger.
type RepoManager interface {
	TicketRepository() domain.TicketRepository

	Close()
}
