package models

import "time"

// HealthStatus is the system-level health derived from current thresholds.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// EndpointState classifies a single endpoint from its rolling statistics.
type EndpointState string

const (
	EndpointHealthy  EndpointState = "healthy"
	EndpointDegraded EndpointState = "degraded"
	EndpointFailed   EndpointState = "failed"
)

// EndpointMetrics is the rolling per-(method, path) statistic set.
type EndpointMetrics struct {
	Method        string        `json:"method"`
	Path          string        `json:"path"`
	RequestCount  int64         `json:"request_count"`
	SuccessCount  int64         `json:"success_count"`
	FailureCount  int64         `json:"failure_count"`
	MinLatencyMs  float64       `json:"min_latency_ms"`
	MaxLatencyMs  float64       `json:"max_latency_ms"`
	AvgLatencyMs  float64       `json:"avg_latency_ms"`
	P95LatencyMs  float64       `json:"p95_latency_ms"`
	ErrorRate     float64       `json:"error_rate_percent"`
	StatusCodes   map[int]int64 `json:"status_codes"`
	State         EndpointState `json:"state"`
	LastRequestAt time.Time     `json:"last_request_at"`
}

// AlertSeverity grades an active alert. Escalation promotes warning to
// error and error to critical while the cause persists.
type AlertSeverity string

const (
	AlertWarning  AlertSeverity = "warning"
	AlertError    AlertSeverity = "error"
	AlertCritical AlertSeverity = "critical"
)

// Alert is a threshold breach keyed by a stable cause identifier so that
// repeated breaches update rather than duplicate.
type Alert struct {
	ID          string        `json:"id"`
	CauseKey    string        `json:"cause_key"`
	Severity    AlertSeverity `json:"severity"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Component   string        `json:"component"` // "system" | "api"
	Value       float64       `json:"value"`
	Threshold   float64       `json:"threshold"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
	Resolved    bool          `json:"resolved"`
	// ChecksOpen counts consecutive monitor checks the alert survived;
	// it drives severity escalation.
	ChecksOpen int `json:"checks_open"`
}

// SystemHealthSnapshot is the reporting view of current system health.
type SystemHealthSnapshot struct {
	Status           HealthStatus `json:"status"`
	CPUPercent       float64      `json:"cpu_percent"`
	MemoryPercent    float64      `json:"memory_percent"`
	DiskPercent      float64      `json:"disk_percent"`
	ErrorRatePercent float64      `json:"error_rate_percent"`
	AvgLatencyMs     float64      `json:"avg_latency_ms"`
	ActiveAlerts     int          `json:"active_alerts"`
	CheckedAt        time.Time    `json:"checked_at"`
}

// GatewayMetricsSnapshot is the global reporting view over the orchestrator.
type GatewayMetricsSnapshot struct {
	TotalRequests   int64        `json:"total_requests"`
	SuccessRequests int64        `json:"success_requests"`
	FailedRequests  int64        `json:"failed_requests"`
	RateLimited     int64        `json:"rate_limited"`
	HealthRejected  int64        `json:"health_rejected"`
	InternalFaults  int64        `json:"internal_faults"`
	AvgLatencyMs    float64      `json:"avg_latency_ms"`
	P95LatencyMs    float64      `json:"p95_latency_ms"`
	P99LatencyMs    float64      `json:"p99_latency_ms"`
	ActiveClients   int          `json:"active_clients"`
	OpenViolations  int          `json:"open_violations"`
	ActiveAlerts    int          `json:"active_alerts"`
	HealthStatus    HealthStatus `json:"health_status"`
	CollectedAt     time.Time    `json:"collected_at"`
}
