package security

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// Limiter counts authorized calls per caller number.
// Allow records a hit and reports true unless the ceiling was already reached
// in the current window; a rejected call is not counted.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type counter struct {
	count         int
	windowResetAt time.Time
}

type limiterShard struct {
	mu       sync.Mutex
	counters map[string]*counter
}

// MemoryLimiter is a process-local fixed-window limiter. The window opens on
// the first call and the count starts over once windowResetAt has passed.
type MemoryLimiter struct {
	window  time.Duration
	ceiling int
	clock   func() time.Time
	shards  [16]limiterShard
}

func NewMemoryLimiter(window time.Duration, ceiling int) *MemoryLimiter {
	l := &MemoryLimiter{window: window, ceiling: ceiling, clock: time.Now}
	for i := range l.shards {
		l.shards[i].counters = make(map[string]*counter)
	}
	return l
}

func (l *MemoryLimiter) shardFor(key string) *limiterShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &l.shards[h.Sum32()%uint32(len(l.shards))]
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.clock()
	sh := l.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	c, ok := sh.counters[key]
	if !ok || !now.Before(c.windowResetAt) {
		sh.counters[key] = &counter{count: 1, windowResetAt: now.Add(l.window)}
		return true, nil
	}
	if c.count >= l.ceiling {
		return false, nil
	}
	c.count++
	return true, nil
}

// Prune drops counters whose window has lapsed.
func (l *MemoryLimiter) Prune() int {
	now := l.clock()
	removed := 0
	for i := range l.shards {
		sh := &l.shards[i]
		sh.mu.Lock()
		for k, c := range sh.counters {
			if !now.Before(c.windowResetAt) {
				delete(sh.counters, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}
