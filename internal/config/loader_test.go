package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/sentinel-gate/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, time.Hour, cfg.Quota.SweepInterval)
	assert.Equal(t, 24*time.Hour, cfg.Quota.IdleTTL)
	assert.Equal(t, 10000, cfg.Gateway.ResponseSampleCap)
}

func TestDefaultTierTableComplete(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	for _, tier := range models.AllTiers {
		limits, ok := cfg.Quota.Tiers[string(tier)]
		require.True(t, ok, "tier %q missing from default table", tier)
		assert.Positive(t, limits.RequestsPerSecond)
		assert.Positive(t, limits.Concurrent)
		assert.GreaterOrEqual(t, limits.BurstAllowance, 1.0)
	}

	basic := cfg.Quota.Limits(models.TierBasic)
	assert.EqualValues(t, 10, basic.RequestsPerSecond)
	assert.EqualValues(t, 5, basic.Concurrent)
	assert.EqualValues(t, 5, basic.BurstTokens)
}

func TestLimitsFallsBackToBasic(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	unknown := cfg.Quota.Limits(models.Tier("gold"))
	assert.Equal(t, cfg.Quota.Limits(models.TierBasic), unknown)
}

func TestTierRuleWindows(t *testing.T) {
	limits := defaultTierTable()[string(models.TierBasic)]

	rule, ok := limits.Rule(models.DimensionRequestsPerSecond)
	require.True(t, ok)
	assert.Equal(t, time.Second, rule.Window)
	assert.EqualValues(t, 10, rule.Ceiling)
	assert.Equal(t, 1.5, rule.BurstAllowance)

	rule, ok = limits.Rule(models.DimensionConcurrent)
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), rule.Window, "concurrency is instantaneous")

	_, ok = limits.Rule(models.LimitDimension("bogus"))
	assert.False(t, ok)
}

func TestValidateTierLimitsRejectsBadTables(t *testing.T) {
	good := defaultTierTable()[string(models.TierBasic)]

	bad := good
	bad.RequestsPerSecond = 0
	assert.Error(t, validateTierLimits(models.TierBasic, bad))

	bad = good
	bad.BurstAllowance = 0.5
	assert.Error(t, validateTierLimits(models.TierBasic, bad))

	assert.NoError(t, validateTierLimits(models.TierBasic, good))
}

func TestValidateConfigThresholdOrdering(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Health.Thresholds.CPUWarning = 90
	cfg.Health.Thresholds.CPUCritical = 85
	assert.Error(t, validateConfig(cfg))
}
