package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucket_BurstThenDeny(t *testing.T) {
	b := newBucket(10, 1.0)

	for i := 0; i < 10; i++ {
		allowed, _, _ := b.take()
		require.True(t, allowed, "request %d should fit the burst", i+1)
	}

	allowed, remaining, reset := b.take()
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
	assert.True(t, reset.After(time.Now()))
}

func TestBucket_Refill(t *testing.T) {
	b := newBucket(2, 1.0)
	b.take()
	b.take()

	allowed, _, _ := b.take()
	require.False(t, allowed)

	time.Sleep(1100 * time.Millisecond)

	allowed, _, _ = b.take()
	assert.True(t, allowed, "one token should have refilled")
	allowed, _, _ = b.take()
	assert.False(t, allowed)
}

func TestLimiter_DefaultBudget(t *testing.T) {
	l := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  10,
		DefaultWindow: time.Minute,
	})
	defer l.Stop()

	for i := 0; i < 10; i++ {
		allowed, info := l.Allow("10.0.0.1", "/workitems", "GET")
		require.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 10, info.Limit)
		assert.Equal(t, 9-i, info.Remaining)
	}

	allowed, info := l.Allow("10.0.0.1", "/workitems", "GET")
	assert.False(t, allowed)
	assert.Greater(t, info.RetryAfter, time.Duration(0))
}

func TestLimiter_ScanBudgetIsStrict(t *testing.T) {
	l := NewLimiter(defaultConfig())
	defer l.Stop()

	for i := 0; i < 5; i++ {
		allowed, _ := l.Allow("10.0.0.1", "/scan", "POST")
		require.True(t, allowed, "scan %d should fit the burst", i+1)
	}

	allowed, _ := l.Allow("10.0.0.1", "/scan", "POST")
	assert.False(t, allowed, "scan burst should be exhausted")

	// Reads draw from the default budget, not the scan budget.
	allowed, _ = l.Allow("10.0.0.1", "/workitems", "GET")
	assert.True(t, allowed)
}

func TestLimiter_CommandsShareOneBudget(t *testing.T) {
	l := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1000,
		DefaultWindow: time.Minute,
		Rules: []EndpointRule{
			{Prefix: "/workitems/", Method: "POST", Limit: 2, Window: time.Hour, Burst: 2},
		},
	})
	defer l.Stop()

	allowed, _ := l.Allow("10.0.0.1", "/workitems/a/retry", "POST")
	require.True(t, allowed)
	allowed, _ = l.Allow("10.0.0.1", "/workitems/b/confirm-parsing", "POST")
	require.True(t, allowed)

	// Different path, same prefix rule, same bucket.
	allowed, _ = l.Allow("10.0.0.1", "/workitems/c/reanalyze", "POST")
	assert.False(t, allowed)
}

func TestLimiter_HealthIsUnlimited(t *testing.T) {
	l := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Minute,
	})
	defer l.Stop()

	for i := 0; i < 50; i++ {
		allowed, _ := l.Allow("10.0.0.1", "/health", "GET")
		require.True(t, allowed)
	}
}

func TestLimiter_ClientsAreIsolated(t *testing.T) {
	l := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Minute,
	})
	defer l.Stop()

	allowed, _ := l.Allow("10.0.0.1", "/workitems", "GET")
	require.True(t, allowed)
	allowed, _ = l.Allow("10.0.0.1", "/workitems", "GET")
	require.False(t, allowed)

	allowed, _ = l.Allow("10.0.0.2", "/workitems", "GET")
	assert.True(t, allowed, "a second client has its own bucket")
}

func TestLimiter_AllowAndDenyLists(t *testing.T) {
	l := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Minute,
		Allowlist:     map[string]bool{"10.0.0.1": true},
		Denylist:      map[string]bool{"10.0.0.9": true},
	})
	defer l.Stop()

	for i := 0; i < 10; i++ {
		allowed, _ := l.Allow("10.0.0.1", "/workitems", "GET")
		require.True(t, allowed, "allowlisted client bypasses budgets")
	}

	allowed, _ := l.Allow("10.0.0.9", "/health", "GET")
	assert.False(t, allowed, "denylisted client gets nothing")
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(&Config{Enabled: false})
	defer l.Stop()

	for i := 0; i < 100; i++ {
		allowed, _ := l.Allow("10.0.0.1", "/scan", "POST")
		require.True(t, allowed)
	}
}

func TestLimiter_SweepDropsIdleBuckets(t *testing.T) {
	l := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  10,
		DefaultWindow: time.Minute,
	})
	defer l.Stop()

	l.Allow("10.0.0.1", "/workitems", "GET")
	l.Allow("10.0.0.2", "/workitems", "GET")
	require.Len(t, l.buckets, 2)

	l.sweep(time.Now().Add(time.Minute))
	assert.Empty(t, l.buckets)
}

func TestLoadConfig_ReadsEnvironment(t *testing.T) {
	t.Setenv("RATE_LIMIT_DEFAULT_LIMIT", "5")
	t.Setenv("RATE_LIMIT_DEFAULT_WINDOW", "30s")
	t.Setenv("RATE_LIMIT_ALLOWLIST", "10.0.0.1, 10.0.0.2")

	cfg := LoadConfig()
	assert.Equal(t, 5, cfg.DefaultLimit)
	assert.Equal(t, 30*time.Second, cfg.DefaultWindow)
	assert.True(t, cfg.Allowlist["10.0.0.1"])
	assert.True(t, cfg.Allowlist["10.0.0.2"])
	assert.NotEmpty(t, cfg.Rules, "endpoint rules stay in place")
}

func TestLoadConfig_Disabled(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "false")

	cfg := LoadConfig()
	assert.False(t, cfg.Enabled)
}
