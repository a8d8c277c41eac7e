// Package ratelimit implements per-client admission control with one token
// bucket per identity. Buckets are created lazily, refilled continuously at
// the configured rate and capped at capacity; each admitted request costs
// one token.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds bucket parameters shared by all identities.
type Config struct {
	// Capacity is the bucket size in tokens (burst).
	Capacity int
	// Refill is the continuous refill rate in tokens per second.
	Refill float64
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Pool maps client identities to their buckets. Different identities never
// block each other: the pool mutex is held only for map lookup/insert, the
// per-bucket limiter serializes admission for one identity internally.
type Pool struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	cfg     Config
}

// NewPool returns a pool with the given config, substituting safe defaults
// for zero values.
func NewPool(cfg Config) *Pool {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10
	}
	if cfg.Refill <= 0 {
		cfg.Refill = 5
	}
	return &Pool{buckets: map[string]*bucket{}, cfg: cfg}
}

func (p *Pool) get(id string) *bucket {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.buckets[id]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(p.cfg.Refill), p.cfg.Capacity)}
		p.buckets[id] = b
	}
	b.lastSeen = time.Now()
	return b
}

// Admit charges one token for identity id. When the bucket is empty it
// returns false and the duration until one token will be available, i.e.
// (1 - tokens) / refill.
func (p *Pool) Admit(id string) (bool, time.Duration) {
	return p.admitAt(p.get(id), time.Now())
}

func (p *Pool) admitAt(b *bucket, now time.Time) (bool, time.Duration) {
	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		// request can never be satisfied (capacity < 1)
		return false, time.Second
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// Evict removes buckets that have not been touched for at least idleFor,
// bounding pool memory. It returns the number of buckets removed.
func (p *Pool) Evict(idleFor time.Duration) int {
	cutoff := time.Now().Add(-idleFor)
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for id, b := range p.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(p.buckets, id)
			n++
		}
	}
	return n
}

// Size returns the current number of tracked identities.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets)
}
