package tenant

import (
	"sync"
	"time"

	"github.com/tensorbay/aegis/internal/clock"
)

// Decision is the outcome of a token-bucket admission check.
type Decision int

const (
	// Accepted means the request consumed its tokens and may proceed.
	Accepted Decision = iota
	// Rejected means the bucket lacked sufficient tokens.
	Rejected
)

func (d Decision) String() string {
	if d == Accepted {
		return "accepted"
	}
	return "rejected"
}

// bucket holds the mutable token-bucket state for one tenant, guarded by its
// own mutex so a noisy tenant cannot serialize admission checks for anyone
// else (spec §4.1).
type bucket struct {
	mu         sync.Mutex
	cfg        Config
	tokens     float64
	lastUpdate time.Time
}

func newBucket(cfg Config, now time.Time) *bucket {
	return &bucket{
		cfg:        cfg,
		tokens:     float64(cfg.BurstCap),
		lastUpdate: now,
	}
}

// tryConsume executes the refill-then-compare token bucket algorithm from
// spec §4.1. Refill is applied on both the accept and reject paths so
// last_update always tracks the most recent observation; otherwise rapid
// rejections would leave the bucket perpetually behind and cause an
// unbounded catch-up refill on the next successful check.
func (b *bucket) tryConsume(c clock.Clock, amount float64) Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := c.Now()
	elapsed := now.Sub(b.lastUpdate).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	refilled := min(float64(b.cfg.BurstCap), b.tokens+elapsed*b.cfg.RateLimit)

	if refilled >= amount {
		b.tokens = refilled - amount
		b.lastUpdate = now
		return Accepted
	}
	b.tokens = refilled
	b.lastUpdate = now
	return Rejected
}

// snapshot returns the refreshed token count without consuming anything —
// used by Status() for tenant introspection (spec §6.1).
func (b *bucket) snapshot(c clock.Clock) (tokens float64, cfg Config) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := c.Now()
	elapsed := now.Sub(b.lastUpdate).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	refilled := min(float64(b.cfg.BurstCap), b.tokens+elapsed*b.cfg.RateLimit)
	b.tokens = refilled
	b.lastUpdate = now
	return refilled, b.cfg
}
