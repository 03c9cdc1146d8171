package session

import (
	"errors"
	"hash/fnv"
	"sync"
	"time"
)

var (
	ErrNotFound    = errors.New("session: not found")
	ErrInvalidID   = errors.New("session: call id is required")
	ErrImmutable   = errors.New("session: id and caller number are immutable")
	ErrLanguageSet = errors.New("session: language already set")
)

const defaultShards = 32

type shard struct {
	mu       sync.Mutex
	sessions map[string]*CallSession
}

// Store keeps active call sessions keyed by carrier call id.
// Each key maps to one shard lock, so turns of the same call are strictly
// sequential while different calls proceed independently.
type Store struct {
	shards []*shard
	clock  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithShards sets the shard count; values below 1 are ignored.
func WithShards(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.shards = newShards(n)
		}
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{shards: newShards(defaultShards), clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newShards(n int) []*shard {
	out := make([]*shard, n)
	for i := range out {
		out[i] = &shard{sessions: make(map[string]*CallSession)}
	}
	return out
}

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Create stores a new session, replacing any previous one for the same call id
// (a carrier retrying the inbound webhook starts over).
func (s *Store) Create(cs CallSession) (CallSession, error) {
	if cs.ID == "" {
		return CallSession{}, ErrInvalidID
	}
	now := s.clock().UTC()
	if cs.StartedAt.IsZero() {
		cs.StartedAt = now
	}
	cs.UpdatedAt = now
	if cs.State == "" {
		cs.State = StateStart
	}

	sh := s.shardFor(cs.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	stored := cs.clone()
	sh.sessions[cs.ID] = &stored
	return stored.clone(), nil
}

// Get returns a copy of the session.
func (s *Store) Get(id string) (CallSession, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cs, ok := sh.sessions[id]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	return cs.clone(), nil
}

// Update runs fn on the live session under its shard lock and returns the result.
// fn must not block on I/O. If fn returns an error nothing is committed.
func (s *Store) Update(id string, fn func(cs *CallSession) error) (CallSession, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cur, ok := sh.sessions[id]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	next := cur.clone()
	if err := fn(&next); err != nil {
		return cur.clone(), err
	}
	if next.ID != cur.ID || next.CallerNumber != cur.CallerNumber {
		return cur.clone(), ErrImmutable
	}
	if cur.Language != "" && next.Language != cur.Language {
		return cur.clone(), ErrLanguageSet
	}
	next.UpdatedAt = s.clock().UTC()
	*cur = next
	return next.clone(), nil
}

// Delete removes the session and reports whether it existed.
func (s *Store) Delete(id string) bool {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.sessions[id]
	delete(sh.sessions, id)
	return ok
}

// AppendTranscript records a final transcript segment for a live call.
func (s *Store) AppendTranscript(id, text string) error {
	_, err := s.Update(id, func(cs *CallSession) error {
		cs.Transcript = append(cs.Transcript, text)
		return nil
	})
	return err
}

// Len counts active sessions.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.sessions)
		sh.mu.Unlock()
	}
	return n
}

// Sweep removes sessions untouched for longer than maxAge and returns how many
// were removed. Calls that end without a final callback are reclaimed this way.
func (s *Store) Sweep(maxAge time.Duration) int {
	cutoff := s.clock().UTC().Add(-maxAge)
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, cs := range sh.sessions {
			if cs.UpdatedAt.Before(cutoff) {
				delete(sh.sessions, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}
