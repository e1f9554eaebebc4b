package config

import (
	"time"

	"github.com/platformbuilds/sentinel-gate/internal/models"
)

type Config struct {
	Environment string `mapstructure:"environment" yaml:"environment"`
	Port        int    `mapstructure:"port" yaml:"port"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`

	Auth       AuthConfig       `mapstructure:"auth" yaml:"auth"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	CORS       CORSConfig       `mapstructure:"cors" yaml:"cors"`
	Quota      QuotaConfig      `mapstructure:"quota" yaml:"quota"`
	SLA        SLAConfig        `mapstructure:"sla" yaml:"sla"`
	Health     HealthConfig     `mapstructure:"health" yaml:"health"`
	Gateway    GatewayConfig    `mapstructure:"gateway" yaml:"gateway"`
	Monitoring MonitoringConfig `mapstructure:"monitoring" yaml:"monitoring"`
}

// AuthConfig configures the JWT-based tenant resolver. When disabled,
// requests are admitted under the anonymous context and tenant-scoped
// checks are bypassed.
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

// CacheConfig handles Valkey cluster configuration for SLA/audit
// persistence. With Enabled=false the gateway runs fully process-local.
type CacheConfig struct {
	Enabled  bool     `mapstructure:"enabled" yaml:"enabled"`
	Nodes    []string `mapstructure:"nodes" yaml:"nodes"`
	TTL      int      `mapstructure:"ttl" yaml:"ttl"` // seconds
	Password string   `mapstructure:"password" yaml:"password"`
	DB       int      `mapstructure:"db" yaml:"db"`
}

// CORSConfig handles Cross-Origin Resource Sharing for the operator API.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers" yaml:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age" yaml:"max_age"`
}

// LimitRule is one dimension's ceiling within a tier: the numeric limit,
// the window it is counted over (0 for instantaneous dimensions), and the
// burst allowance multiplier applied on top of the ceiling.
type LimitRule struct {
	Ceiling        int64
	Window         time.Duration
	BurstAllowance float64
}

// TierLimits is the explicit limit table for one tier. Every dimension is
// listed; absence is a validation error, not an unlimited dimension.
type TierLimits struct {
	RequestsPerSecond int64   `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	RequestsPerMinute int64   `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	RequestsPerHour   int64   `mapstructure:"requests_per_hour" yaml:"requests_per_hour"`
	RequestsPerDay    int64   `mapstructure:"requests_per_day" yaml:"requests_per_day"`
	Concurrent        int64   `mapstructure:"concurrent_requests" yaml:"concurrent_requests"`
	BytesPerDay       int64   `mapstructure:"bytes_per_day" yaml:"bytes_per_day"`
	BurstTokens       float64 `mapstructure:"burst_tokens" yaml:"burst_tokens"`
	BurstAllowance    float64 `mapstructure:"burst_allowance" yaml:"burst_allowance"`
}

// Rule returns the LimitRule for one dimension of this tier.
func (t TierLimits) Rule(dim models.LimitDimension) (LimitRule, bool) {
	switch dim {
	case models.DimensionRequestsPerSecond:
		return LimitRule{Ceiling: t.RequestsPerSecond, Window: time.Second, BurstAllowance: t.BurstAllowance}, true
	case models.DimensionRequestsPerMinute:
		return LimitRule{Ceiling: t.RequestsPerMinute, Window: time.Minute, BurstAllowance: t.BurstAllowance}, true
	case models.DimensionRequestsPerHour:
		return LimitRule{Ceiling: t.RequestsPerHour, Window: time.Hour, BurstAllowance: t.BurstAllowance}, true
	case models.DimensionRequestsPerDay:
		return LimitRule{Ceiling: t.RequestsPerDay, Window: 24 * time.Hour, BurstAllowance: t.BurstAllowance}, true
	case models.DimensionConcurrent:
		return LimitRule{Ceiling: t.Concurrent}, true
	case models.DimensionBytesPerDay:
		return LimitRule{Ceiling: t.BytesPerDay, Window: 24 * time.Hour}, true
	}
	return LimitRule{}, false
}

// QuotaConfig drives the rate limiter and quota tracker.
type QuotaConfig struct {
	Tiers map[string]TierLimits `mapstructure:"tiers" yaml:"tiers"`
	// OverridesFile optionally points at a YAML tier-override file that is
	// hot-reloaded via the config watcher.
	OverridesFile string        `mapstructure:"overrides_file" yaml:"overrides_file"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	IdleTTL       time.Duration `mapstructure:"idle_ttl" yaml:"idle_ttl"`
	// BurstRefillInterval is the elapsed time worth one burst token.
	BurstRefillInterval time.Duration `mapstructure:"burst_refill_interval" yaml:"burst_refill_interval"`
}

// Limits returns the limit table for a tier, falling back to Basic for
// unknown tiers so a stale token can never grant elevated limits.
func (q QuotaConfig) Limits(tier models.Tier) TierLimits {
	if t, ok := q.Tiers[string(tier)]; ok {
		return t
	}
	return q.Tiers[string(models.TierBasic)]
}

// SLAConfig drives the SLA engine.
type SLAConfig struct {
	RecheckInterval  time.Duration `mapstructure:"recheck_interval" yaml:"recheck_interval"`
	ThroughputWindow time.Duration `mapstructure:"throughput_window" yaml:"throughput_window"`
	// LatencySampleCap bounds the per-tenant latency reservoir used for
	// percentile computation.
	LatencySampleCap int `mapstructure:"latency_sample_cap" yaml:"latency_sample_cap"`
}

// HealthThresholds holds the warning/critical pairs the monitor checks.
type HealthThresholds struct {
	CPUWarning        float64 `mapstructure:"cpu_warning" yaml:"cpu_warning"`
	CPUCritical       float64 `mapstructure:"cpu_critical" yaml:"cpu_critical"`
	MemoryWarning     float64 `mapstructure:"memory_warning" yaml:"memory_warning"`
	MemoryCritical    float64 `mapstructure:"memory_critical" yaml:"memory_critical"`
	DiskWarning       float64 `mapstructure:"disk_warning" yaml:"disk_warning"`
	DiskCritical      float64 `mapstructure:"disk_critical" yaml:"disk_critical"`
	ErrorRateWarning  float64 `mapstructure:"error_rate_warning" yaml:"error_rate_warning"`
	ErrorRateCritical float64 `mapstructure:"error_rate_critical" yaml:"error_rate_critical"`
	LatencyWarningMs  float64 `mapstructure:"latency_warning_ms" yaml:"latency_warning_ms"`
	LatencyCriticalMs float64 `mapstructure:"latency_critical_ms" yaml:"latency_critical_ms"`
}

// HealthConfig drives the health monitor and alert escalation.
type HealthConfig struct {
	CheckInterval    time.Duration    `mapstructure:"check_interval" yaml:"check_interval"`
	SnapshotInterval time.Duration    `mapstructure:"snapshot_interval" yaml:"snapshot_interval"`
	Thresholds       HealthThresholds `mapstructure:"thresholds" yaml:"thresholds"`
	// EscalateWarningAfter / EscalateErrorAfter are consecutive-check
	// counts before an open alert is promoted.
	EscalateWarningAfter int `mapstructure:"escalate_warning_after" yaml:"escalate_warning_after"`
	EscalateErrorAfter   int `mapstructure:"escalate_error_after" yaml:"escalate_error_after"`
}

// GatewayConfig drives the orchestrator.
type GatewayConfig struct {
	// ResponseSampleCap bounds the global rolling response-time buffer.
	ResponseSampleCap int `mapstructure:"response_sample_cap" yaml:"response_sample_cap"`
}

// MonitoringConfig handles self-monitoring and tracing.
type MonitoringConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	MetricsPath    string `mapstructure:"metrics_path" yaml:"metrics_path"`
	TracingEnabled bool   `mapstructure:"tracing_enabled" yaml:"tracing_enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
}
