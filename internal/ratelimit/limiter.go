// Package ratelimit provides per-client admission limiting over a
// trailing 60-second window.
package ratelimit

import (
	"sync"
	"time"
)

// Window is the trailing interval over which requests are counted.
const Window = time.Minute

// Config configures rate limiting behavior.
type Config struct {
	// RequestsPerMinute is the number of admissions allowed per key in
	// any trailing 60-second window.
	RequestsPerMinute int `yaml:"requests_per_minute"`
	// Enabled controls whether rate limiting is active.
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the default rate limit configuration.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		Enabled:           true,
	}
}

// bucket holds the admission timestamps for one key, newest last.
type bucket struct {
	mu    sync.Mutex
	times []time.Time
}

// allowAt prunes timestamps older than the window, then admits and
// records the request if the remaining count is under the limit.
func (b *bucket) allowAt(now time.Time, limit int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := now.Add(-Window)
	keep := b.times[:0]
	for _, ts := range b.times {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	b.times = keep

	if len(b.times) >= limit {
		return false
	}
	b.times = append(b.times, now)
	return true
}

func (b *bucket) countAt(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := now.Add(-Window)
	n := 0
	for _, ts := range b.times {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

// Limiter manages sliding-window limits for multiple client keys.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	limit   int
	enabled bool
	maxKeys int
}

// NewLimiter creates a new rate limiter.
func NewLimiter(cfg Config) *Limiter {
	limit := cfg.RequestsPerMinute
	if limit <= 0 {
		limit = DefaultConfig().RequestsPerMinute
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		enabled: cfg.Enabled,
		maxKeys: 10000,
	}
}

// Allow checks whether a request from the given client key should be
// admitted now.
func (l *Limiter) Allow(key string) bool {
	return l.AllowAt(key, time.Now())
}

// AllowAt is Allow with an explicit clock, for tests and replays.
func (l *Limiter) AllowAt(key string, now time.Time) bool {
	l.mu.RLock()
	enabled, limit := l.enabled, l.limit
	l.mu.RUnlock()
	if !enabled {
		return true
	}
	return l.getBucket(key).allowAt(now, limit)
}

// SetLimit replaces the per-minute limit, e.g. after a config reload.
func (l *Limiter) SetLimit(requestsPerMinute int) {
	if requestsPerMinute <= 0 {
		return
	}
	l.mu.Lock()
	l.limit = requestsPerMinute
	l.mu.Unlock()
}

// getBucket returns or creates the bucket for the given key.
func (l *Limiter) getBucket(key string) *bucket {
	l.mu.RLock()
	b, exists := l.buckets[key]
	l.mu.RUnlock()

	if exists {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if b, exists = l.buckets[key]; exists {
		return b
	}

	if len(l.buckets) >= l.maxKeys {
		l.prune()
	}

	b = &bucket{}
	l.buckets[key] = b
	return b
}

// prune drops keys with no requests left in the window (must be called
// with the write lock held).
func (l *Limiter) prune() {
	now := time.Now()
	for key, b := range l.buckets {
		if b.countAt(now) == 0 {
			delete(l.buckets, key)
		}
	}
}

// Status reports the in-window request count for one client key.
func (l *Limiter) Status(key string) int {
	l.mu.RLock()
	b, exists := l.buckets[key]
	l.mu.RUnlock()
	if !exists {
		return 0
	}
	return b.countAt(time.Now())
}

// Counts reports the in-window request count per client key, for the
// admin surface.
func (l *Limiter) Counts() map[string]int {
	now := time.Now()

	l.mu.RLock()
	defer l.mu.RUnlock()

	counts := make(map[string]int, len(l.buckets))
	for key, b := range l.buckets {
		if n := b.countAt(now); n > 0 {
			counts[key] = n
		}
	}
	return counts
}
