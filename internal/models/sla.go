package models

import "time"

// SLAMetric identifies one contractual metric tracked by the SLA engine.
type SLAMetric string

const (
	MetricUptime     SLAMetric = "uptime"
	MetricLatency    SLAMetric = "latency"
	MetricErrorRate  SLAMetric = "error_rate"
	MetricThroughput SLAMetric = "throughput"
)

// LowerIsBreach reports whether a value below target breaches the metric
// (availability and throughput) as opposed to a value above it (latency,
// error rate).
func (m SLAMetric) LowerIsBreach() bool {
	return m == MetricUptime || m == MetricThroughput
}

// SLATarget is one contractual threshold inside an agreement.
type SLATarget struct {
	Metric            SLAMetric `json:"metric"`
	Target            float64   `json:"target"`
	WarningThreshold  float64   `json:"warning_threshold,omitempty"`
	CriticalThreshold float64   `json:"critical_threshold,omitempty"`
	Unit              string    `json:"unit"`
	Period            string    `json:"period"`
}

// ServiceLevelAgreement is a tenant's active contract. Immutable after
// creation except for administrative target overrides.
type ServiceLevelAgreement struct {
	ID               string      `json:"id"`
	TenantID         string      `json:"tenant_id"`
	Tier             Tier        `json:"tier"`
	Targets          []SLATarget `json:"targets"`
	StartDate        time.Time   `json:"start_date"`
	EndDate          time.Time   `json:"end_date"`
	CreditPercent    float64     `json:"credit_percent"`
	MaxMonthlyCredit float64     `json:"max_monthly_credit"`
	CreatedAt        time.Time   `json:"created_at"`
}

// ViolationSeverity grades an open violation.
type ViolationSeverity string

const (
	SeverityMedium   ViolationSeverity = "medium"
	SeverityHigh     ViolationSeverity = "high"
	SeverityCritical ViolationSeverity = "critical"
)

// Multiplier returns the credit multiplier applied for this severity.
func (s ViolationSeverity) Multiplier() float64 {
	switch s {
	case SeverityCritical:
		return 2.0
	case SeverityHigh:
		return 1.5
	default:
		return 1.0
	}
}

// SLAViolation is an open or resolved breach interval for one
// (tenant, metric) pair. At most one open violation exists per pair.
type SLAViolation struct {
	ID            string            `json:"id"`
	SLAID         string            `json:"sla_id"`
	TenantID      string            `json:"tenant_id"`
	Metric        SLAMetric         `json:"metric"`
	TargetValue   float64           `json:"target_value"`
	OpeningValue  float64           `json:"opening_value"`
	LastValue     float64           `json:"last_value"`
	Severity      ViolationSeverity `json:"severity"`
	StartedAt     time.Time         `json:"started_at"`
	EndedAt       *time.Time        `json:"ended_at,omitempty"`
	Resolved      bool              `json:"resolved"`
	Duration      time.Duration     `json:"duration,omitempty"`
	CreditPercent float64           `json:"credit_percent,omitempty"`
}

// SLAMetricSnapshot is the continuously updated live view of a tenant's
// measured service levels. It is never persisted independently.
type SLAMetricSnapshot struct {
	TenantID         string    `json:"tenant_id"`
	UptimePercent    float64   `json:"uptime_percent"`
	DowntimeMinutes  float64   `json:"downtime_minutes"`
	AvgLatencyMs     float64   `json:"avg_latency_ms"`
	P95LatencyMs     float64   `json:"p95_latency_ms"`
	P99LatencyMs     float64   `json:"p99_latency_ms"`
	RequestCount     int64     `json:"request_count"`
	SuccessCount     int64     `json:"success_count"`
	FailureCount     int64     `json:"failure_count"`
	ErrorRatePercent float64   `json:"error_rate_percent"`
	ThroughputPerMin float64   `json:"throughput_per_min"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DowntimeEvent is a discrete recorded outage.
type DowntimeEvent struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Reason    string    `json:"reason"`
}

// SLAReport aggregates a tenant's violations over an arbitrary date range.
type SLAReport struct {
	TenantID             string            `json:"tenant_id"`
	From                 time.Time         `json:"from"`
	To                   time.Time         `json:"to"`
	TotalViolations      int               `json:"total_violations"`
	ViolationsByMetric   map[SLAMetric]int `json:"violations_by_metric"`
	TotalDowntimeMinutes float64           `json:"total_downtime_minutes"`
	TotalCreditPercent   float64           `json:"total_credit_percent"`
	GeneratedAt          time.Time         `json:"generated_at"`
}

// TenantReport combines live usage with SLA standing for the reporting API.
type TenantReport struct {
	TenantID       string                 `json:"tenant_id"`
	Snapshot       *SLAMetricSnapshot     `json:"snapshot,omitempty"`
	SLA            *ServiceLevelAgreement `json:"sla,omitempty"`
	OpenViolations []*SLAViolation        `json:"open_violations"`
	Clients        []*ClientUsage         `json:"clients"`
}
