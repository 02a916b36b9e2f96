package channels

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxTrackedKeys caps the number of tracked rate-limit keys to prevent
	// memory exhaustion from many distinct senders.
	maxTrackedKeys = 4096

	// minIdleEviction is the shortest idle time after which a key is pruned.
	minIdleEviction = time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// CommandLimiter throttles commands per key ("chat|sender") with one token
// bucket each, bounding the number of tracked keys.
// Safe for concurrent use. A nil *CommandLimiter allows everything.
type CommandLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries map[string]*limiterEntry
	now     func() time.Time
}

// NewCommandLimiter allows perMinute commands per key on average with bursts
// of up to burst. perMinute <= 0 disables throttling.
func NewCommandLimiter(perMinute, burst int) *CommandLimiter {
	r := &CommandLimiter{
		entries: make(map[string]*limiterEntry),
		now:     time.Now,
	}
	r.SetRate(perMinute, burst)
	return r
}

// SetRate replaces the limits. Existing buckets are dropped.
func (r *CommandLimiter) SetRate(perMinute, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if perMinute <= 0 {
		r.limit = rate.Inf
	} else {
		r.limit = rate.Limit(float64(perMinute) / 60)
	}
	if burst <= 0 {
		burst = 1
	}
	r.burst = burst
	clear(r.entries)
}

// Allow returns true if the key is within rate limits, consuming a token.
// Automatically prunes idle entries and enforces a hard cap on tracked keys.
func (r *CommandLimiter) Allow(key string) bool {
	if r == nil {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.limit == rate.Inf {
		return true
	}

	now := r.now()
	e, ok := r.entries[key]
	if !ok {
		r.makeRoom(now)
		e = &limiterEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Len reports how many keys are tracked.
func (r *CommandLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// makeRoom prunes buckets idle long enough to have refilled, then evicts
// arbitrary keys while still at the cap. Caller holds r.mu.
func (r *CommandLimiter) makeRoom(now time.Time) {
	if len(r.entries) < maxTrackedKeys {
		return
	}

	idle := time.Duration(float64(r.burst) / float64(r.limit) * float64(time.Second))
	if idle < minIdleEviction {
		idle = minIdleEviction
	}
	for k, e := range r.entries {
		if now.Sub(e.lastSeen) >= idle {
			delete(r.entries, k)
		}
	}

	// Hard eviction if still at cap (FIFO-ish via map iteration)
	for len(r.entries) >= maxTrackedKeys {
		for k := range r.entries {
			delete(r.entries, k)
			break
		}
	}
}
