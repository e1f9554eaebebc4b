package sla

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/platformbuilds/sentinel-gate/internal/models"
)

// Reevaluate runs one full compliance pass over every tenant holding a
// contract: breached targets open or escalate violations, recovered
// targets close them and grant credit. The per-outcome evaluation in
// RecordOutcome keeps active tenants current; this pass covers tenants
// whose traffic has stopped, leaving time-driven metrics drifting.
func (e *Engine) Reevaluate(ctx context.Context) {
	e.mu.Lock()
	var closed []*models.SLAViolation
	for tenantID, sla := range e.slas {
		closed = append(closed, e.evaluateTenantLocked(tenantID, sla)...)
	}
	e.mu.Unlock()

	e.flushClosed(ctx, closed)
}

// evaluateTenantLocked checks every target of one tenant's contract
// against a fresh snapshot, returning any violations it closed.
func (e *Engine) evaluateTenantLocked(tenantID string, sla *models.ServiceLevelAgreement) []*models.SLAViolation {
	now := e.now()
	if now.Before(sla.StartDate) || now.After(sla.EndDate) {
		return nil
	}
	stats, ok := e.stats[tenantID]
	if !ok {
		return nil
	}
	snap := e.snapshotLocked(tenantID, stats)

	var closed []*models.SLAViolation
	for _, target := range sla.Targets {
		value, measurable := metricValue(snap, target.Metric)
		if !measurable {
			continue
		}
		key := violationKey(tenantID, target.Metric)
		breached := isBreach(value, target.Target, target.Metric)

		switch {
		case breached && e.open[key] == nil:
			v := &models.SLAViolation{
				ID:           uuid.New().String(),
				SLAID:        sla.ID,
				TenantID:     tenantID,
				Metric:       target.Metric,
				TargetValue:  target.Target,
				OpeningValue: value,
				LastValue:    value,
				Severity:     severityFor(value, target),
				StartedAt:    now,
			}
			e.open[key] = v
			e.logger.Warn("SLA violation opened",
				"tenant", tenantID, "metric", target.Metric,
				"target", target.Target, "value", value, "severity", v.Severity)
			e.audit.Record("sla_violation_opened", "violating", tenantID, "", map[string]interface{}{
				"violation_id": v.ID,
				"metric":       string(target.Metric),
				"value":        value,
				"severity":     string(v.Severity),
			})

		case breached:
			// Still violating: update in place, never stack a second
			// open violation for the pair.
			v := e.open[key]
			v.LastValue = value
			if sev := severityFor(value, target); severityRank(sev) > severityRank(v.Severity) {
				v.Severity = sev
				e.logger.Warn("SLA violation escalated",
					"tenant", tenantID, "metric", target.Metric, "severity", sev)
			}

		case e.open[key] != nil:
			v := e.open[key]
			ended := now
			v.EndedAt = &ended
			v.Resolved = true
			v.Duration = ended.Sub(v.StartedAt)
			v.LastValue = value
			v.CreditPercent = e.grantCreditLocked(sla, v)
			delete(e.open, key)
			e.history = append(e.history, v)
			closed = append(closed, v)
			e.logger.Info("SLA violation resolved",
				"tenant", tenantID, "metric", target.Metric,
				"duration", v.Duration, "credit_percent", v.CreditPercent)
		}
	}
	return closed
}

// flushClosed archives and audits closed violations outside the engine
// lock; both writes are fire-and-forget.
func (e *Engine) flushClosed(ctx context.Context, closed []*models.SLAViolation) {
	for _, v := range closed {
		if err := e.store.ArchiveViolation(ctx, v); err != nil {
			e.logger.Error("Violation archive failed", "violation_id", v.ID, "error", err)
		}
		e.audit.Record("sla_violation_resolved", "compliant", v.TenantID, "", map[string]interface{}{
			"violation_id":   v.ID,
			"metric":         string(v.Metric),
			"duration_mins":  v.Duration.Minutes(),
			"credit_percent": v.CreditPercent,
		})
	}
}

// grantCreditLocked computes the service credit for one closed violation
// and charges it against the tenant's monthly cap. Called exactly once per
// violation, with the engine lock held.
func (e *Engine) grantCreditLocked(sla *models.ServiceLevelAgreement, v *models.SLAViolation) float64 {
	durationHours := v.Duration.Hours()
	credit := sla.CreditPercent * v.Severity.Multiplier() * (1 + durationHours/24)

	key := creditKey(v.TenantID, v.StartedAt)
	remaining := sla.MaxMonthlyCredit - e.creditUsed[key]
	if remaining < 0 {
		remaining = 0
	}
	if credit > remaining {
		credit = remaining
	}
	e.creditUsed[key] += credit
	return credit
}

// metricValue extracts the evaluated value for one metric from a snapshot.
// Latency, error rate and throughput are not measurable before any traffic
// arrives; evaluating them on an idle tenant would fabricate breaches.
func metricValue(snap *models.SLAMetricSnapshot, metric models.SLAMetric) (float64, bool) {
	switch metric {
	case models.MetricUptime:
		return snap.UptimePercent, true
	case models.MetricLatency:
		return snap.AvgLatencyMs, snap.RequestCount > 0
	case models.MetricErrorRate:
		return snap.ErrorRatePercent, snap.RequestCount > 0
	case models.MetricThroughput:
		return snap.ThroughputPerMin, snap.RequestCount > 0
	}
	return 0, false
}

func isBreach(value, target float64, metric models.SLAMetric) bool {
	if metric.LowerIsBreach() {
		return value < target
	}
	return value > target
}

// severityFor grades a breach against the target's warning and critical
// thresholds. Absent thresholds grade everything medium.
func severityFor(value float64, target models.SLATarget) models.ViolationSeverity {
	if target.Metric.LowerIsBreach() {
		if target.CriticalThreshold > 0 && value <= target.CriticalThreshold {
			return models.SeverityCritical
		}
		if target.WarningThreshold > 0 && value <= target.WarningThreshold {
			return models.SeverityHigh
		}
		return models.SeverityMedium
	}
	if target.CriticalThreshold > 0 && value >= target.CriticalThreshold {
		return models.SeverityCritical
	}
	if target.WarningThreshold > 0 && value >= target.WarningThreshold {
		return models.SeverityHigh
	}
	return models.SeverityMedium
}

func severityRank(s models.ViolationSeverity) int {
	switch s {
	case models.SeverityCritical:
		return 3
	case models.SeverityHigh:
		return 2
	default:
		return 1
	}
}

// OpenViolations lists the currently open violations, optionally filtered
// by tenant. Empty tenantID returns all.
func (e *Engine) OpenViolations(tenantID string) []*models.SLAViolation {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*models.SLAViolation, 0, len(e.open))
	for _, v := range e.open {
		if tenantID == "" || v.TenantID == tenantID {
			copied := *v
			out = append(out, &copied)
		}
	}
	return out
}

// Report aggregates a tenant's resolved violations over a date range,
// merging the in-memory history with the durable archive.
func (e *Engine) Report(ctx context.Context, tenantID string, from, to time.Time) (*models.SLAReport, error) {
	archived, err := e.store.ListViolations(ctx, tenantID)
	if err != nil {
		e.logger.Error("Violation archive read failed", "tenant", tenantID, "error", err)
		archived = nil
	}

	e.mu.RLock()
	seen := make(map[string]bool, len(archived))
	var merged []*models.SLAViolation
	for _, v := range archived {
		seen[v.ID] = true
		merged = append(merged, v)
	}
	for _, v := range e.history {
		if v.TenantID == tenantID && !seen[v.ID] {
			merged = append(merged, v)
		}
	}
	var downtimeMinutes float64
	if stats, ok := e.stats[tenantID]; ok {
		for _, ev := range stats.downtime {
			downtimeMinutes += overlap(ev.StartedAt, ev.EndedAt, from, to).Minutes()
		}
	}
	e.mu.RUnlock()

	report := &models.SLAReport{
		TenantID:             tenantID,
		From:                 from,
		To:                   to,
		ViolationsByMetric:   make(map[models.SLAMetric]int),
		TotalDowntimeMinutes: downtimeMinutes,
		GeneratedAt:          e.now(),
	}
	for _, v := range merged {
		if v.StartedAt.Before(from) || v.StartedAt.After(to) {
			continue
		}
		report.TotalViolations++
		report.ViolationsByMetric[v.Metric]++
		report.TotalCreditPercent += v.CreditPercent
	}
	return report, nil
}

// Start runs the periodic compliance recheck until the context is
// cancelled.
func (e *Engine) Start(ctx context.Context) {
	interval := e.cfg.RecheckInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.Reevaluate(ctx)
			}
		}
	}()
}
