package gateway

import (
	"context"
	"sort"

	"github.com/platformbuilds/sentinel-gate/internal/models"
)

// MetricsSnapshot returns the global reporting view over the pipeline.
func (o *Orchestrator) MetricsSnapshot() *models.GatewayMetricsSnapshot {
	o.mu.Lock()
	snap := &models.GatewayMetricsSnapshot{
		TotalRequests:   o.totalRequests,
		SuccessRequests: o.successCount,
		FailedRequests:  o.failedCount,
		RateLimited:     o.rateLimited,
		HealthRejected:  o.healthRejected,
		InternalFaults:  o.internalFaults,
		CollectedAt:     o.now(),
	}
	samples := make([]float64, len(o.responseTimes))
	copy(samples, o.responseTimes)
	o.mu.Unlock()

	if len(samples) > 0 {
		var sum float64
		for _, v := range samples {
			sum += v
		}
		snap.AvgLatencyMs = sum / float64(len(samples))
		sort.Float64s(samples)
		snap.P95LatencyMs = samples[clampIndex(len(samples), 95)]
		snap.P99LatencyMs = samples[clampIndex(len(samples), 99)]
	}

	snap.ActiveClients = o.limiter.ActiveClients()
	snap.OpenViolations = len(o.slas.OpenViolations(""))
	snap.ActiveAlerts = len(o.monitor.ActiveAlerts())
	snap.HealthStatus = o.monitor.Status()

	if o.metrics != nil {
		o.metrics.SetGauges(snap.ActiveClients, snap.OpenViolations, snap.ActiveAlerts)
	}
	return snap
}

func clampIndex(n int, p float64) int {
	idx := int(float64(n)*p/100+0.5) - 1
	if idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}

// TenantReport combines a tenant's live SLA standing with its per-client
// quota usage.
func (o *Orchestrator) TenantReport(ctx context.Context, tenantID string) *models.TenantReport {
	report := &models.TenantReport{
		TenantID:       tenantID,
		OpenViolations: o.slas.OpenViolations(tenantID),
		Clients:        o.limiter.TenantUsage(tenantID),
	}
	if snap, ok := o.slas.Snapshot(tenantID); ok {
		report.Snapshot = snap
	}
	if sla, ok := o.slas.GetSLA(ctx, tenantID); ok {
		report.SLA = sla
	}
	return report
}
