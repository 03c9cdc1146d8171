package audit

import (
	"context"
	"sync"
)

// MemoryRepo keeps audit events in process. Used when no data directory is
// configured and by tests that assert on what the gate recorded.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

// Events returns a snapshot in append order.
func (r *MemoryRepo) Events() []Event {
	return r.filter(func(Event) bool { return true })
}

// ByType returns the events of one category in append order.
func (r *MemoryRepo) ByType(t EventType) []Event {
	return r.filter(func(e Event) bool { return e.Type == t })
}

// ByCaller returns every event recorded for a caller number.
func (r *MemoryRepo) ByCaller(number string) []Event {
	return r.filter(func(e Event) bool { return e.CallerNumber == number })
}

func (r *MemoryRepo) filter(keep func(Event) bool) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, len(r.events))
	for _, e := range r.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
