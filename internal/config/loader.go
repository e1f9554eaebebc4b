package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/platformbuilds/sentinel-gate/internal/models"
)

// Load loads configuration with priority order:
// 1. Environment variables
// 2. Configuration file (config.yaml)
// 3. Default values
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/sentinel-gate/")
	v.AddConfigPath("./configs/")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("SENTINEL")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars and defaults
	}

	overrideWithEnvVars(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets reasonable default values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")

	// Auth defaults
	v.SetDefault("auth.enabled", false)

	// Cache defaults (Valkey cluster)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.nodes", []string{"localhost:6379"})
	v.SetDefault("cache.ttl", 300)
	v.SetDefault("cache.db", 0)

	// CORS defaults
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization", "X-Tenant-ID"})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 3600)

	// Quota defaults
	v.SetDefault("quota.sweep_interval", time.Hour)
	v.SetDefault("quota.idle_ttl", 24*time.Hour)
	v.SetDefault("quota.burst_refill_interval", 2*time.Second)
	for name, limits := range defaultTierTable() {
		prefix := "quota.tiers." + name
		v.SetDefault(prefix+".requests_per_second", limits.RequestsPerSecond)
		v.SetDefault(prefix+".requests_per_minute", limits.RequestsPerMinute)
		v.SetDefault(prefix+".requests_per_hour", limits.RequestsPerHour)
		v.SetDefault(prefix+".requests_per_day", limits.RequestsPerDay)
		v.SetDefault(prefix+".concurrent_requests", limits.Concurrent)
		v.SetDefault(prefix+".bytes_per_day", limits.BytesPerDay)
		v.SetDefault(prefix+".burst_tokens", limits.BurstTokens)
		v.SetDefault(prefix+".burst_allowance", limits.BurstAllowance)
	}

	// SLA defaults
	v.SetDefault("sla.recheck_interval", 5*time.Minute)
	v.SetDefault("sla.throughput_window", 10*time.Minute)
	v.SetDefault("sla.latency_sample_cap", 10000)

	// Health defaults
	v.SetDefault("health.check_interval", time.Minute)
	v.SetDefault("health.snapshot_interval", 5*time.Minute)
	v.SetDefault("health.escalate_warning_after", 5)
	v.SetDefault("health.escalate_error_after", 10)
	v.SetDefault("health.thresholds.cpu_warning", 70.0)
	v.SetDefault("health.thresholds.cpu_critical", 85.0)
	v.SetDefault("health.thresholds.memory_warning", 75.0)
	v.SetDefault("health.thresholds.memory_critical", 90.0)
	v.SetDefault("health.thresholds.disk_warning", 80.0)
	v.SetDefault("health.thresholds.disk_critical", 95.0)
	v.SetDefault("health.thresholds.error_rate_warning", 2.0)
	v.SetDefault("health.thresholds.error_rate_critical", 5.0)
	v.SetDefault("health.thresholds.latency_warning_ms", 1000.0)
	v.SetDefault("health.thresholds.latency_critical_ms", 3000.0)

	// Gateway defaults
	v.SetDefault("gateway.response_sample_cap", 10000)

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")
	v.SetDefault("monitoring.tracing_enabled", false)
	v.SetDefault("monitoring.otlp_endpoint", "localhost:4317")
}

// defaultTierTable is the built-in limit table. Ceilings are per the
// published service classes; bytes are per calendar day.
func defaultTierTable() map[string]TierLimits {
	const gib = int64(1) << 30
	return map[string]TierLimits{
		string(models.TierBasic): {
			RequestsPerSecond: 10,
			RequestsPerMinute: 300,
			RequestsPerHour:   10_000,
			RequestsPerDay:    100_000,
			Concurrent:        5,
			BytesPerDay:       1 * gib,
			BurstTokens:       5,
			BurstAllowance:    1.5,
		},
		string(models.TierProfessional): {
			RequestsPerSecond: 50,
			RequestsPerMinute: 1_500,
			RequestsPerHour:   50_000,
			RequestsPerDay:    500_000,
			Concurrent:        20,
			BytesPerDay:       10 * gib,
			BurstTokens:       10,
			BurstAllowance:    1.5,
		},
		string(models.TierEnterprise): {
			RequestsPerSecond: 200,
			RequestsPerMinute: 6_000,
			RequestsPerHour:   200_000,
			RequestsPerDay:    2_000_000,
			Concurrent:        100,
			BytesPerDay:       100 * gib,
			BurstTokens:       20,
			BurstAllowance:    1.5,
		},
		string(models.TierPremium): {
			RequestsPerSecond: 1_000,
			RequestsPerMinute: 30_000,
			RequestsPerHour:   1_000_000,
			RequestsPerDay:    10_000_000,
			Concurrent:        500,
			BytesPerDay:       1024 * gib,
			BurstTokens:       50,
			BurstAllowance:    1.5,
		},
	}
}

// overrideWithEnvVars explicitly handles environment variable overrides
func overrideWithEnvVars(v *viper.Viper) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			v.Set("port", p)
		}
	}

	if env := os.Getenv("ENVIRONMENT"); env != "" {
		v.Set("environment", env)
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		v.Set("log_level", logLevel)
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		v.Set("auth.jwt_secret", jwtSecret)
		v.Set("auth.enabled", true)
	}

	if cacheNodes := os.Getenv("VALKEY_CACHE_NODES"); cacheNodes != "" {
		nodes := strings.Split(cacheNodes, ",")
		for i, node := range nodes {
			nodes[i] = strings.TrimSpace(node)
		}
		v.Set("cache.nodes", nodes)
		v.Set("cache.enabled", true)
	}

	if cacheTTL := os.Getenv("CACHE_TTL"); cacheTTL != "" {
		if ttl, err := strconv.Atoi(cacheTTL); err == nil {
			v.Set("cache.ttl", ttl)
		}
	}

	if otlp := os.Getenv("OTLP_ENDPOINT"); otlp != "" {
		v.Set("monitoring.otlp_endpoint", otlp)
		v.Set("monitoring.tracing_enabled", true)
	}
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Port < 1 || config.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", config.Port)
	}

	validLogLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLogLevels, config.LogLevel) {
		return fmt.Errorf("invalid log level: %s", config.LogLevel)
	}

	validEnvironments := []string{"development", "staging", "production", "test"}
	if !contains(validEnvironments, config.Environment) {
		return fmt.Errorf("invalid environment: %s", config.Environment)
	}

	if config.Auth.Enabled && config.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required when auth is enabled")
	}

	if config.Cache.Enabled && len(config.Cache.Nodes) == 0 {
		return fmt.Errorf("at least one Valkey cache node is required when cache is enabled")
	}

	// Every tier must carry a complete, positive limit table.
	for _, tier := range models.AllTiers {
		limits, ok := config.Quota.Tiers[string(tier)]
		if !ok {
			return fmt.Errorf("missing limit table for tier %q", tier)
		}
		if err := validateTierLimits(tier, limits); err != nil {
			return err
		}
	}

	if config.Quota.IdleTTL <= 0 {
		return fmt.Errorf("quota idle TTL must be positive")
	}
	if config.Quota.BurstRefillInterval <= 0 {
		return fmt.Errorf("burst refill interval must be positive")
	}

	th := config.Health.Thresholds
	pairs := []struct {
		name              string
		warning, critical float64
	}{
		{"cpu", th.CPUWarning, th.CPUCritical},
		{"memory", th.MemoryWarning, th.MemoryCritical},
		{"disk", th.DiskWarning, th.DiskCritical},
		{"error_rate", th.ErrorRateWarning, th.ErrorRateCritical},
		{"latency", th.LatencyWarningMs, th.LatencyCriticalMs},
	}
	for _, p := range pairs {
		if p.warning <= 0 || p.critical <= 0 {
			return fmt.Errorf("health threshold %q must be positive", p.name)
		}
		if p.warning >= p.critical {
			return fmt.Errorf("health threshold %q: warning (%v) must be below critical (%v)", p.name, p.warning, p.critical)
		}
	}

	if config.Gateway.ResponseSampleCap < 100 {
		return fmt.Errorf("gateway response sample cap must be at least 100")
	}

	return nil
}

func validateTierLimits(tier models.Tier, limits TierLimits) error {
	ceilings := map[string]int64{
		"requests_per_second": limits.RequestsPerSecond,
		"requests_per_minute": limits.RequestsPerMinute,
		"requests_per_hour":   limits.RequestsPerHour,
		"requests_per_day":    limits.RequestsPerDay,
		"concurrent_requests": limits.Concurrent,
		"bytes_per_day":       limits.BytesPerDay,
	}
	for name, ceiling := range ceilings {
		if ceiling <= 0 {
			return fmt.Errorf("tier %q: %s must be positive, got %d", tier, name, ceiling)
		}
	}
	if limits.BurstAllowance < 1.0 {
		return fmt.Errorf("tier %q: burst allowance must be >= 1.0, got %v", tier, limits.BurstAllowance)
	}
	if limits.BurstTokens < 0 {
		return fmt.Errorf("tier %q: burst tokens must be >= 0, got %v", tier, limits.BurstTokens)
	}
	return nil
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
