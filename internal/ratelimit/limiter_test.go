package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestTokenBucket_Allow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	bucket := newTokenBucket(5, 1, clock.Now)

	for i := 0; i < 5; i++ {
		assert.True(t, bucket.Allow(), "request %d", i+1)
	}
	assert.False(t, bucket.Allow())

	hits, total := bucket.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(6), total)
}

func TestTokenBucket_Refill(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	bucket := newTokenBucket(2, 10, clock.Now)

	bucket.Allow()
	bucket.Allow()
	require.False(t, bucket.Allow())

	clock.Advance(200 * time.Millisecond)
	assert.True(t, bucket.Allow())
	assert.True(t, bucket.Allow())
	assert.False(t, bucket.Allow())
}

func TestCallerLimiter_PerCaller(t *testing.T) {
	l := NewCallerLimiter(Config{Capacity: 2, RefillRate: 1, Enabled: true}, nil)
	clock := &fakeClock{t: time.Unix(0, 0)}
	l.now = clock.Now

	assert.True(t, l.Allow("u1"))
	assert.True(t, l.Allow("u1"))
	assert.False(t, l.Allow("u1"))
	assert.True(t, l.Allow("u2"), "callers have independent buckets")

	stats := l.GetStats()
	require.Contains(t, stats, "u1")
	assert.Equal(t, int64(1), stats["u1"].Hits)
	assert.Equal(t, int64(3), stats["u1"].Total)
}

func TestTotals(t *testing.T) {
	l := NewCallerLimiter(Config{Capacity: 1, RefillRate: 0, Enabled: true}, nil)
	l.Allow("u1")
	l.Allow("u1")
	l.Allow("u1")
	l.Allow("u2")

	hits, total, throttled := Totals(l.GetStats())
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(4), total)
	assert.Equal(t, 1, throttled)
}

func TestCallerLimiter_Disabled(t *testing.T) {
	l := NewCallerLimiter(Config{Capacity: 1, RefillRate: 0, Enabled: false}, nil)
	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow("u1"))
	}
	assert.Empty(t, l.GetStats())
}

func TestCallerLimiter_Prune(t *testing.T) {
	l := NewCallerLimiter(Config{Capacity: 1, RefillRate: 1, Enabled: true}, nil)
	clock := &fakeClock{t: time.Unix(0, 0)}
	l.now = clock.Now

	l.Allow("old")
	clock.Advance(time.Hour)
	l.Allow("fresh")

	assert.Equal(t, 1, l.Prune(30*time.Minute))
	stats := l.GetStats()
	assert.Contains(t, stats, "fresh")
	assert.NotContains(t, stats, "old")
}

func TestCallerLimiter_Concurrent(t *testing.T) {
	l := NewCallerLimiter(Config{Capacity: 50, RefillRate: 0, Enabled: true}, nil)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("u1") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}
