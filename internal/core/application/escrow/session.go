package escrow

import (
	"sort"
	"sync"

	"github.com/tdex-network/escrowd/internal/core/application/monitor"
	"github.com/tdex-network/escrowd/internal/core/domain"
)

// session owns the in-memory state of a ticket. lock must be held for the
// whole read-decide-mutate sequence of any event.
type session struct {
	lock   sync.Mutex
	ticket *domain.Ticket
	watch  *monitor.Watch
	// removed is set once the ticket leaves the registry.
	removed bool
}

func (s *session) stopWatch() {
	if s.watch != nil {
		s.watch.Stop()
		s.watch = nil
	}
}

// registry maps ticket ids to their sessions.
type registry struct {
	sessions sync.Map
}

func (r *registry) add(t *domain.Ticket) (*session, bool) {
	sess := &session{ticket: t}
	actual, loaded := r.sessions.LoadOrStore(t.ID, sess)
	return actual.(*session), !loaded
}

func (r *registry) get(id string) (*session, bool) {
	v, ok := r.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*session), true
}

func (r *registry) remove(id string) {
	r.sessions.Delete(id)
}

func (r *registry) all() []*session {
	list := make([]*session, 0)
	r.sessions.Range(func(_, v interface{}) bool {
		list = append(list, v.(*session))
		return true
	})
	return list
}

// lock returns the locked session of the given ticket. The caller must
// unlock it.
func (r *registry) lock(id string) (*session, error) {
	sess, ok := r.get(id)
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	sess.lock.Lock()
	if sess.removed {
		sess.lock.Unlock()
		return nil, domain.ErrTicketNotFound
	}
	return sess, nil
}

func sortTickets(list []domain.Ticket) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt == list[j].CreatedAt {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt < list[j].CreatedAt
	})
}
