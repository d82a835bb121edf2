// Package ratelimit throttles report submissions per caller with token
// buckets: a burst up to the bucket capacity, then a sustained refill rate.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a thread-safe token bucket for a single caller.
//
// The bucket holds at most capacity tokens and gains refillRate tokens per
// elapsed second. Every submission consumes one token; once the bucket is
// empty, submissions are refused until enough time has passed for a refill.
// A new bucket starts full, so a first-time reporter may submit a burst of
// capacity reports immediately.
//
// Buckets are created by CallerLimiter, which owns one per caller id:
//
//	bucket := newTokenBucket(10, 1, time.Now) // burst of 10, then 1 per second
//	if !bucket.Allow() {
//	    // caller is throttled
//	}
type TokenBucket struct {
	capacity   int              // maximum tokens held (burst allowance)
	tokens     int              // tokens currently available
	refillRate int              // tokens added per second
	lastRefill time.Time        // last time tokens were added
	lastUsed   time.Time        // last Allow call, used for idle pruning
	now        func() time.Time // clock, replaceable in tests
	mu         sync.Mutex       // guards all fields above and the counters
	hitCount   int64            // requests refused
	totalCount int64            // requests seen
}

// newTokenBucket creates a full bucket that reads time from now.
//
// Parameters:
//   - capacity: maximum number of tokens (burst allowance)
//   - refillRate: tokens added per second (sustained rate)
//   - now: clock used for refills and idle tracking
func newTokenBucket(capacity, refillRate int, now func() time.Time) *TokenBucket {
	t := now()
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: t,
		lastUsed:   t,
		now:        now,
	}
}

// Allow consumes a token if one is available.
//
// Tokens earned since the last refill are added first, capped at capacity.
// It returns false, and counts a hit, when the bucket is empty.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.totalCount++
	now := tb.now()
	tb.lastUsed = now

	tokensToAdd := int(now.Sub(tb.lastRefill).Seconds() * float64(tb.refillRate))
	if tokensToAdd > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+tokensToAdd)
		tb.lastRefill = now
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	tb.hitCount++
	return false
}

// Stats returns how many requests were rejected and how many were seen.
func (tb *TokenBucket) Stats() (hits, total int64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.hitCount, tb.totalCount
}

func (tb *TokenBucket) idleSince() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastUsed
}
