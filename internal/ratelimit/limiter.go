package ratelimit

import (
	"sync"
	"time"

	"github.com/patrickwarner/pollwatch/internal/observability"
)

// Config holds the rate limiting settings.
type Config struct {
	Capacity   int  // burst allowance
	RefillRate int  // tokens added per second
	Enabled    bool // when false every request is allowed
}

// CallerLimiter throttles report submissions per authenticated caller.
//
// Each caller id gets its own TokenBucket, created lazily on the first
// submission, so one busy reporter cannot starve everyone else. Buckets of
// callers that have gone quiet are dropped by Prune; a caller who comes back
// later simply starts with a full bucket again. Every decision is counted in
// the injected metrics registry.
//
// Example usage:
//
//	limiter := NewCallerLimiter(Config{Capacity: 10, RefillRate: 1, Enabled: true}, metrics)
//	if !limiter.Allow(caller.ID) {
//	    // respond 429 Too Many Requests
//	}
//
// CallerLimiter is safe for concurrent use.
type CallerLimiter struct {
	buckets map[string]*TokenBucket       // caller id to bucket
	mu      sync.RWMutex                  // guards buckets
	config  Config                        // capacity, refill rate and switch
	metrics observability.MetricsRegistry // request and hit counters
	now     func() time.Time              // clock handed to new buckets
}

// NewCallerLimiter creates a limiter. A nil metrics registry is replaced with
// a no-op.
func NewCallerLimiter(config Config, metrics observability.MetricsRegistry) *CallerLimiter {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &CallerLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
		metrics: metrics,
		now:     time.Now,
	}
}

// Allow reports whether the caller may submit now.
//
// Parameters:
//   - callerID: the authenticated user id from the bearer token
//
// Returns true when a token was available, false when the caller is
// throttled. It always returns true when limiting is disabled.
func (l *CallerLimiter) Allow(callerID string) bool {
	if !l.config.Enabled {
		return true
	}
	l.metrics.IncrementRateLimitRequests()

	l.mu.RLock()
	bucket, ok := l.buckets[callerID]
	l.mu.RUnlock()

	if !ok {
		l.mu.Lock()
		bucket, ok = l.buckets[callerID]
		if !ok {
			bucket = newTokenBucket(l.config.Capacity, l.config.RefillRate, l.now)
			l.buckets[callerID] = bucket
		}
		l.mu.Unlock()
	}

	allowed := bucket.Allow()
	if !allowed {
		l.metrics.IncrementRateLimitHits()
	}
	return allowed
}

// Prune drops buckets that have not been used for idle. It returns the number
// of buckets removed.
func (l *CallerLimiter) Prune(idle time.Duration) int {
	cutoff := l.now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, b := range l.buckets {
		if b.idleSince().Before(cutoff) {
			delete(l.buckets, id)
			removed++
		}
	}
	return removed
}

// GetStats returns a snapshot of per-caller statistics.
func (l *CallerLimiter) GetStats() map[string]Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make(map[string]Stats, len(l.buckets))
	for id, bucket := range l.buckets {
		hits, total := bucket.Stats()
		rate := 0.0
		if total > 0 {
			rate = float64(hits) / float64(total)
		}
		stats[id] = Stats{CallerID: id, Hits: hits, Total: total, HitRate: rate}
	}
	return stats
}

// Stats summarizes limiting for one caller.
type Stats struct {
	CallerID string  `json:"callerId"`
	Hits     int64   `json:"hits"`
	Total    int64   `json:"total"`
	HitRate  float64 `json:"hitRate"`
}

// Totals sums stats across callers and reports how many callers were
// throttled at least once.
func Totals(stats map[string]Stats) (hits, total int64, throttled int) {
	for _, s := range stats {
		hits += s.Hits
		total += s.Total
		if s.Hits > 0 {
			throttled++
		}
	}
	return hits, total, throttled
}
