package escrow

import (
	"sync"

	"github.com/tdex-network/escrowd/internal/core/domain"
	"github.com/tdex-network/escrowd/pkg/stats"
)

// Stats are the aggregate counters of the engine since the process start.
type Stats struct {
	Created       int   `json:"created"`
	Released      int   `json:"released"`
	Refunded      int   `json:"refunded"`
	Closed        int   `json:"closed"`
	Settlements   int   `json:"settlements"`
	Failures      int   `json:"failures"`
	SettledVolume int64 `json:"settledVolume"`
}

// statsKeeper is guarded by its own lock, independent of the ones of the
// tickets.
type statsKeeper struct {
	lock  sync.Mutex
	stats Stats
}

func (k *statsKeeper) get() Stats {
	k.lock.Lock()
	defer k.lock.Unlock()
	return k.stats
}

func (k *statsKeeper) ticketCreated() {
	k.lock.Lock()
	defer k.lock.Unlock()

	k.stats.Created++
	stats.TicketsTotal.WithLabelValues("created").Inc()
	stats.TicketsByStatus.WithLabelValues(domain.TicketStatusCreated.String()).Inc()
}

func (k *statsKeeper) ticketLoaded(status domain.TicketStatus) {
	stats.TicketsByStatus.WithLabelValues(status.String()).Inc()
}

func (k *statsKeeper) transition(from, to domain.TicketStatus) {
	if from == to {
		return
	}
	k.lock.Lock()
	defer k.lock.Unlock()

	stats.TicketsByStatus.WithLabelValues(from.String()).Dec()
	switch to {
	case domain.TicketStatusReleased:
		k.stats.Released++
		stats.TicketsTotal.WithLabelValues("released").Inc()
	case domain.TicketStatusRefunded:
		k.stats.Refunded++
		stats.TicketsTotal.WithLabelValues("refunded").Inc()
	case domain.TicketStatusClosed:
		k.stats.Closed++
		stats.TicketsTotal.WithLabelValues("closed").Inc()
	default:
		stats.TicketsByStatus.WithLabelValues(to.String()).Inc()
	}
}

func (k *statsKeeper) settlement(kind domain.SettlementKind, amount int64, err error) {
	k.lock.Lock()
	defer k.lock.Unlock()

	if err != nil {
		k.stats.Failures++
		stats.SettlementsTotal.WithLabelValues(string(kind), "failure").Inc()
		return
	}
	k.stats.Settlements++
	k.stats.SettledVolume += amount
	stats.SettlementsTotal.WithLabelValues(string(kind), "success").Inc()
	stats.SettledVolume.Add(float64(amount))
}
