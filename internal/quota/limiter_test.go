package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/sentinel-gate/internal/config"
	"github.com/platformbuilds/sentinel-gate/internal/models"
	"github.com/platformbuilds/sentinel-gate/pkg/logger"
)

func testQuotaConfig(burstTokens float64) config.QuotaConfig {
	return config.QuotaConfig{
		Tiers: map[string]config.TierLimits{
			string(models.TierBasic): {
				RequestsPerSecond: 10,
				RequestsPerMinute: 300,
				RequestsPerHour:   10_000,
				RequestsPerDay:    100_000,
				Concurrent:        5,
				BytesPerDay:       1 << 30,
				BurstTokens:       burstTokens,
				BurstAllowance:    1.5,
			},
			string(models.TierEnterprise): {
				RequestsPerSecond: 200,
				RequestsPerMinute: 6_000,
				RequestsPerHour:   200_000,
				RequestsPerDay:    2_000_000,
				Concurrent:        100,
				BytesPerDay:       100 << 30,
				BurstTokens:       burstTokens,
				BurstAllowance:    1.5,
			},
		},
		SweepInterval:       time.Hour,
		IdleTTL:             24 * time.Hour,
		BurstRefillInterval: 2 * time.Second,
	}
}

func testLimiter(burstTokens float64) (*Limiter, *time.Time) {
	l := NewLimiter(testQuotaConfig(burstTokens), logger.NewNop())
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestAdmitBurstTokens(t *testing.T) {
	l, _ := testLimiter(2)

	// Steady-state ceiling is 10/s; two burst tokens extend that to 12
	// admitted requests inside one second.
	for i := 0; i < 12; i++ {
		denial := l.Admit("client-1", "tenant-1", models.TierBasic, 0)
		require.Nil(t, denial, "request %d should be admitted", i+1)
		l.Release("client-1")
	}

	usage, ok := l.ClientUsage("client-1")
	require.True(t, ok)
	assert.Equal(t, float64(0), usage.BurstTokens[models.DimensionRequestsPerSecond])

	denial := l.Admit("client-1", "tenant-1", models.TierBasic, 0)
	require.NotNil(t, denial)
	assert.Equal(t, models.ReasonRateLimitExceeded, denial.Reason)
	assert.Equal(t, models.DimensionRequestsPerSecond, denial.Dimension)
	assert.Equal(t, int64(10), denial.Limit)
	assert.Equal(t, int64(13), denial.Current)
	assert.Greater(t, denial.RetryAfter, time.Duration(0))
}

func TestAdmitDeniesBeyondBurstCeiling(t *testing.T) {
	// Plenty of tokens, but the hard ceiling is limit * allowance = 15.
	l, _ := testLimiter(50)

	for i := 0; i < 15; i++ {
		require.Nil(t, l.Admit("client-1", "t", models.TierBasic, 0))
		l.Release("client-1")
	}

	denial := l.Admit("client-1", "t", models.TierBasic, 0)
	require.NotNil(t, denial)
	assert.Equal(t, models.DimensionRequestsPerSecond, denial.Dimension)
	assert.Equal(t, int64(16), denial.Current)

	// The failed attempt must not have drained the bucket.
	usage, _ := l.ClientUsage("client-1")
	assert.Equal(t, float64(45), usage.BurstTokens[models.DimensionRequestsPerSecond])
}

func TestSlidingWindowExpiry(t *testing.T) {
	l, clock := testLimiter(0)

	for i := 0; i < 10; i++ {
		require.Nil(t, l.Admit("client-1", "t", models.TierBasic, 0))
		l.Release("client-1")
	}
	require.NotNil(t, l.Admit("client-1", "t", models.TierBasic, 0))

	// Old entries fall out as the window slides.
	*clock = clock.Add(1100 * time.Millisecond)
	denial := l.Admit("client-1", "t", models.TierBasic, 0)
	assert.Nil(t, denial)
	l.Release("client-1")
}

func TestRetryAfterPointsAtOldestEntry(t *testing.T) {
	l, clock := testLimiter(0)

	start := *clock
	for i := 0; i < 10; i++ {
		require.Nil(t, l.Admit("client-1", "t", models.TierBasic, 0))
		l.Release("client-1")
		*clock = clock.Add(50 * time.Millisecond)
	}

	denial := l.Admit("client-1", "t", models.TierBasic, 0)
	require.NotNil(t, denial)
	want := start.Add(time.Second).Sub(*clock)
	assert.Equal(t, want, denial.RetryAfter)
}

func TestBurstTokenRefillClamped(t *testing.T) {
	l, clock := testLimiter(2)

	// Drain both tokens.
	for i := 0; i < 12; i++ {
		require.Nil(t, l.Admit("client-1", "t", models.TierBasic, 0))
		l.Release("client-1")
	}
	usage, _ := l.ClientUsage("client-1")
	require.Equal(t, float64(0), usage.BurstTokens[models.DimensionRequestsPerSecond])

	// One refill interval restores exactly one token; a long gap is
	// clamped at the tier cap.
	*clock = clock.Add(2 * time.Second)
	require.Nil(t, l.Admit("client-1", "t", models.TierBasic, 0))
	l.Release("client-1")
	usage, _ = l.ClientUsage("client-1")
	assert.InDelta(t, 1.0, usage.BurstTokens[models.DimensionRequestsPerSecond], 0.01)

	*clock = clock.Add(time.Hour)
	require.Nil(t, l.Admit("client-1", "t", models.TierBasic, 0))
	l.Release("client-1")
	usage, _ = l.ClientUsage("client-1")
	assert.Equal(t, float64(2), usage.BurstTokens[models.DimensionRequestsPerSecond])
}

func TestConcurrencySlots(t *testing.T) {
	l, _ := testLimiter(0)

	// Occupy all five Basic slots without releasing.
	for i := 0; i < 5; i++ {
		require.Nil(t, l.Admit("client-1", "t", models.TierBasic, 0))
	}

	denial := l.Admit("client-1", "t", models.TierBasic, 0)
	require.NotNil(t, denial)
	assert.Equal(t, models.DimensionConcurrent, denial.Dimension)
	assert.Equal(t, int64(5), denial.Limit)
	assert.Equal(t, int64(5), denial.Current)

	l.Release("client-1")
	assert.Nil(t, l.Admit("client-1", "t", models.TierBasic, 0))
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	l, _ := testLimiter(0)

	require.Nil(t, l.Admit("client-1", "t", models.TierBasic, 0))
	l.Release("client-1")
	l.Release("client-1")
	l.Release("missing-client")

	usage, ok := l.ClientUsage("client-1")
	require.True(t, ok)
	assert.Equal(t, int64(0), usage.Concurrent)
}

func TestBytesPerDayBudget(t *testing.T) {
	l, clock := testLimiter(0)

	require.Nil(t, l.Admit("client-1", "t", models.TierBasic, 1<<30))
	l.Release("client-1")

	denial := l.Admit("client-1", "t", models.TierBasic, 1)
	require.NotNil(t, denial)
	assert.Equal(t, models.DimensionBytesPerDay, denial.Dimension)
	assert.Equal(t, int64(1<<30), denial.Limit)
	assert.Equal(t, int64(1<<30)+1, denial.Current)

	// Budget resets after the daily window elapses.
	*clock = clock.Add(24*time.Hour + time.Minute)
	denial = l.Admit("client-1", "t", models.TierBasic, 1<<20)
	assert.Nil(t, denial)
	l.Release("client-1")
}

func TestUnknownTierFallsBackToBasic(t *testing.T) {
	l, _ := testLimiter(0)

	for i := 0; i < 10; i++ {
		require.Nil(t, l.Admit("client-1", "t", models.Tier("platinum"), 0))
		l.Release("client-1")
	}
	denial := l.Admit("client-1", "t", models.Tier("platinum"), 0)
	require.NotNil(t, denial)
	assert.Equal(t, int64(10), denial.Limit)
}

func TestSetTierTakesEffectNextCheck(t *testing.T) {
	l, _ := testLimiter(0)

	for i := 0; i < 10; i++ {
		require.Nil(t, l.Admit("client-1", "t", models.TierBasic, 0))
		l.Release("client-1")
	}
	require.NotNil(t, l.Admit("client-1", "t", models.TierBasic, 0))

	require.True(t, l.SetTier("client-1", models.TierEnterprise))
	denial := l.Admit("client-1", "t", "", 0)
	assert.Nil(t, denial)
	l.Release("client-1")

	assert.False(t, l.SetTier("missing-client", models.TierBasic))
}

func TestResetClient(t *testing.T) {
	l, _ := testLimiter(2)

	for i := 0; i < 5; i++ {
		require.Nil(t, l.Admit("client-1", "t", models.TierBasic, 100))
	}
	require.NotNil(t, l.Admit("client-1", "t", models.TierBasic, 0))

	require.True(t, l.ResetClient("client-1"))
	usage, ok := l.ClientUsage("client-1")
	require.True(t, ok)
	assert.Equal(t, int64(0), usage.Concurrent)
	assert.Equal(t, int64(0), usage.BytesToday)
	assert.Equal(t, int64(0), usage.WindowCounts[models.DimensionRequestsPerSecond])
	assert.Equal(t, float64(2), usage.BurstTokens[models.DimensionRequestsPerSecond])

	assert.Nil(t, l.Admit("client-1", "t", models.TierBasic, 0))
	l.Release("client-1")
	assert.False(t, l.ResetClient("missing-client"))
}

func TestEvictIdleKeepsActiveAndInFlight(t *testing.T) {
	l, clock := testLimiter(0)

	require.Nil(t, l.Admit("idle", "t", models.TierBasic, 0))
	l.Release("idle")
	require.Nil(t, l.Admit("inflight", "t", models.TierBasic, 0))

	*clock = clock.Add(25 * time.Hour)
	require.Nil(t, l.Admit("fresh", "t", models.TierBasic, 0))
	l.Release("fresh")

	evicted := l.EvictIdle(24 * time.Hour)
	assert.Equal(t, 1, evicted)

	_, ok := l.ClientUsage("idle")
	assert.False(t, ok)
	_, ok = l.ClientUsage("inflight")
	assert.True(t, ok, "clients holding live slots survive eviction")
	_, ok = l.ClientUsage("fresh")
	assert.True(t, ok)
}

func TestTierOverridesApplied(t *testing.T) {
	l, _ := testLimiter(0)

	overrides := map[string]config.TierLimits{
		string(models.TierBasic): {
			RequestsPerSecond: 2,
			RequestsPerMinute: 300,
			RequestsPerHour:   10_000,
			RequestsPerDay:    100_000,
			Concurrent:        5,
			BytesPerDay:       1 << 30,
			BurstAllowance:    1.5,
		},
	}
	l.ApplyTierOverrides(overrides)

	require.Nil(t, l.Admit("client-1", "t", models.TierBasic, 0))
	l.Release("client-1")
	require.Nil(t, l.Admit("client-1", "t", models.TierBasic, 0))
	l.Release("client-1")

	denial := l.Admit("client-1", "t", models.TierBasic, 0)
	require.NotNil(t, denial)
	assert.Equal(t, int64(2), denial.Limit)
}

func TestTenantUsageGroupsClients(t *testing.T) {
	l, _ := testLimiter(0)

	require.Nil(t, l.Admit("a", "tenant-1", models.TierBasic, 0))
	l.Release("a")
	require.Nil(t, l.Admit("b", "tenant-1", models.TierBasic, 0))
	l.Release("b")
	require.Nil(t, l.Admit("c", "tenant-2", models.TierBasic, 0))
	l.Release("c")

	assert.Len(t, l.TenantUsage("tenant-1"), 2)
	assert.Len(t, l.TenantUsage("tenant-2"), 1)
	assert.Empty(t, l.TenantUsage("tenant-3"))
	assert.Equal(t, 3, l.ActiveClients())
}
