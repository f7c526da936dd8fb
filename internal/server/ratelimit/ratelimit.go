// Package ratelimit keeps one token bucket per client and endpoint so a
// runaway script cannot monopolize the API or, worse, hammer /scan into
// the source store's quota.
package ratelimit

import (
	"sync"
	"time"
)

// bucket is a token bucket. Tokens refill continuously at rate per
// second up to capacity; lastSeen feeds the idle sweep.
type bucket struct {
	mu       sync.Mutex
	capacity float64
	rate     float64
	tokens   float64
	refilled time.Time
	lastSeen time.Time
}

func newBucket(capacity int, rate float64) *bucket {
	now := time.Now()
	return &bucket{
		capacity: float64(capacity),
		rate:     rate,
		tokens:   float64(capacity),
		refilled: now,
		lastSeen: now,
	}
}

func (b *bucket) refill(now time.Time) {
	b.tokens += now.Sub(b.refilled).Seconds() * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.refilled = now
}

// take consumes one token if available and reports the bucket state
// after the attempt.
func (b *bucket) take() (allowed bool, remaining int, reset time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.refill(now)
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		allowed = true
	}

	reset = now
	if b.tokens < b.capacity {
		deficit := (b.capacity - b.tokens) / b.rate
		reset = now.Add(time.Duration(deficit * float64(time.Second)))
	}
	return allowed, int(b.tokens), reset
}

func (b *bucket) idleSince(cutoff time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSeen.Before(cutoff)
}

// Info describes the outcome of a rate limit check, for response
// headers.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Limiter tracks buckets for every client and endpoint pair it has
// seen. Idle buckets are swept periodically so the map does not grow
// without bound.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	cfg     *Config
	ticker  *time.Ticker
	done    chan struct{}
}

// NewLimiter creates a limiter and starts its sweep loop.
func NewLimiter(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = defaultConfig()
	}

	l := &Limiter{
		buckets: make(map[string]*bucket),
		cfg:     cfg,
	}
	if cfg.Enabled && cfg.SweepInterval > 0 {
		l.ticker = time.NewTicker(cfg.SweepInterval)
		l.done = make(chan struct{})
		go l.sweepLoop()
	}
	return l
}

// Allow checks whether one more request from clientID to the endpoint
// fits its budget.
func (l *Limiter) Allow(clientID, path, method string) (bool, Info) {
	if !l.cfg.Enabled || l.cfg.Allowlist[clientID] {
		return true, Info{Allowed: true}
	}
	if l.cfg.Denylist[clientID] {
		return false, Info{}
	}

	rule := l.cfg.match(path, method)
	if rule.Limit <= 0 {
		return true, Info{Allowed: true}
	}

	b := l.bucket(clientID+" "+method+" "+rule.Prefix, rule)
	allowed, remaining, reset := b.take()

	info := Info{
		Allowed:   allowed,
		Limit:     rule.Limit,
		Remaining: remaining,
		ResetTime: reset,
	}
	if !allowed {
		info.RetryAfter = max(time.Until(reset), 0)
	}
	return allowed, info
}

// bucket returns the bucket for the key, creating it on first use. All
// requests matching the same rule share one budget per client.
func (l *Limiter) bucket(key string, rule *EndpointRule) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[key]; ok {
		return b
	}

	burst := rule.Burst
	if burst <= 0 {
		burst = rule.Limit
	}
	b := newBucket(burst, float64(rule.Limit)/rule.Window.Seconds())
	l.buckets[key] = b
	return b
}

func (l *Limiter) sweepLoop() {
	for {
		select {
		case <-l.ticker.C:
			l.sweep(time.Now().Add(-time.Hour))
		case <-l.done:
			return
		}
	}
}

// sweep drops buckets that have not been touched since the cutoff.
func (l *Limiter) sweep(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.idleSince(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Stop terminates the sweep loop.
func (l *Limiter) Stop() {
	if l.ticker != nil {
		l.ticker.Stop()
	}
	if l.done != nil {
		close(l.done)
	}
}
