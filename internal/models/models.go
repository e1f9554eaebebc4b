package models

import "time"

// Tier is a named service-level class determining which quota limits apply.
type Tier string

const (
	TierBasic        Tier = "basic"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
	TierPremium      Tier = "premium"
)

// AllTiers lists every recognized tier in ascending order of entitlement.
var AllTiers = []Tier{TierBasic, TierProfessional, TierEnterprise, TierPremium}

// Valid reports whether t is one of the configured tiers.
func (t Tier) Valid() bool {
	for _, known := range AllTiers {
		if t == known {
			return true
		}
	}
	return false
}

// LimitDimension is one quota axis checked during admission.
type LimitDimension string

const (
	DimensionRequestsPerSecond LimitDimension = "requests_per_second"
	DimensionRequestsPerMinute LimitDimension = "requests_per_minute"
	DimensionRequestsPerHour   LimitDimension = "requests_per_hour"
	DimensionRequestsPerDay    LimitDimension = "requests_per_day"
	DimensionConcurrent        LimitDimension = "concurrent_requests"
	DimensionBytesPerDay       LimitDimension = "bytes_per_day"
)

// WindowedDimensions are the dimensions counted over sliding time windows.
// Concurrency and byte budgets are tracked directly.
var WindowedDimensions = []LimitDimension{
	DimensionRequestsPerSecond,
	DimensionRequestsPerMinute,
	DimensionRequestsPerHour,
	DimensionRequestsPerDay,
}

// DenyReason is the machine-readable cause attached to every rejection.
type DenyReason string

const (
	ReasonRateLimitExceeded DenyReason = "rate_limit_exceeded"
	ReasonHealthUnavailable DenyReason = "health_unavailable"
	ReasonHTTPError         DenyReason = "http_error"
	ReasonInternalError     DenyReason = "internal_error"
)

// Denial carries the structured deny information for a rejected request.
// Dimension/Limit/Current/RetryAfter are populated only for rate-limit
// denials.
type Denial struct {
	Reason        DenyReason     `json:"reason"`
	Dimension     LimitDimension `json:"dimension,omitempty"`
	Limit         int64          `json:"limit,omitempty"`
	Current       int64          `json:"current,omitempty"`
	RetryAfter    time.Duration  `json:"retry_after,omitempty"`
	CorrelationID string         `json:"correlation_id"`
}

// AdmissionStatus tags the outcome of the admission + dispatch pipeline.
type AdmissionStatus int

const (
	StatusAdmitted AdmissionStatus = iota
	StatusDenied
	StatusFaulted
)

// InboundRequest is the transport-agnostic request the gateway admits.
type InboundRequest struct {
	Method        string
	Path          string
	Bytes         int64
	CorrelationID string
	ReceivedAt    time.Time
}

// RequestContext is the resolved identity for an inbound request.
type RequestContext struct {
	TenantID string
	ClientID string
	Tier     Tier
	Resolved bool
}

// HandlerResponse is what the protected handler returns on success.
type HandlerResponse struct {
	StatusCode int
	Bytes      int64
}

// GatewayResult is the tagged outcome the orchestrator returns to its caller.
// Exactly one of Response, Denial, Err is meaningful for the given Status.
type GatewayResult struct {
	Status        AdmissionStatus
	Response      *HandlerResponse
	Denial        *Denial
	Err           error
	CorrelationID string
	Elapsed       time.Duration
}

// RequestOutcome is the completion record fanned out to the health monitor
// and the SLA engine after every dispatched request.
type RequestOutcome struct {
	TenantID   string
	ClientID   string
	Method     string
	Path       string
	StatusCode int
	Success    bool
	Latency    time.Duration
	Bytes      int64
	Timestamp  time.Time
}

// ClientUsage is the reporting view over one client's quota state.
type ClientUsage struct {
	ClientID        string                     `json:"client_id"`
	TenantID        string                     `json:"tenant_id"`
	Tier            Tier                       `json:"tier"`
	WindowCounts    map[LimitDimension]int64   `json:"window_counts"`
	Concurrent      int64                      `json:"concurrent"`
	BytesToday      int64                      `json:"bytes_today"`
	BurstTokens     map[LimitDimension]float64 `json:"burst_tokens"`
	TotalRequests   int64                      `json:"total_requests"`
	BlockedRequests int64                      `json:"blocked_requests"`
	FirstSeen       time.Time                  `json:"first_seen"`
	LastSeen        time.Time                  `json:"last_seen"`
}
