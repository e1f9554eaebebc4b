package health

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platformbuilds/sentinel-gate/internal/models"
)

const alertHistoryCap = 1000

// causeCheck is one threshold evaluation performed on every monitor pass.
type causeCheck struct {
	key       string
	component string
	title     string
	value     float64
	warning   float64
	critical  float64
}

// RunChecks performs one full alerting pass: breached causes raise or
// escalate alerts, cleared causes resolve them immediately. Alerts are
// keyed by cause so a persisting breach updates one alert instead of
// raising a new one per check.
func (m *Monitor) RunChecks() {
	m.mu.Lock()

	t := m.cfg.Thresholds
	errorRate, avgLatency := m.trailingStatsLocked()
	mem := m.memoryPercent
	if mem == 0 {
		mem = sampleProcessMemory()
	}

	checks := []causeCheck{
		{"system.cpu", "system", "High CPU utilization", m.cpuPercent, t.CPUWarning, t.CPUCritical},
		{"system.memory", "system", "High memory utilization", mem, t.MemoryWarning, t.MemoryCritical},
		{"system.disk", "system", "High disk utilization", m.diskPercent, t.DiskWarning, t.DiskCritical},
		{"api.error_rate", "api", "Elevated API error rate", errorRate, t.ErrorRateWarning, t.ErrorRateCritical},
		{"api.latency", "api", "Elevated API latency", avgLatency, t.LatencyWarningMs, t.LatencyCriticalMs},
	}

	// Per-endpoint causes, graded against the degraded/failed bounds so
	// a single misbehaving route raises its own alert instead of hiding
	// inside the API-wide averages.
	for _, stats := range m.endpoints {
		if stats.requestCount == 0 {
			continue
		}
		epErrorRate, epAvgLatency := stats.rates()
		key := "endpoint:" + stats.method + ":" + stats.path
		name := stats.method + " " + stats.path
		checks = append(checks,
			causeCheck{key + ":error_rate", "api", "Endpoint error rate on " + name,
				epErrorRate, endpointErrorDegradedPct, endpointErrorFailedPct},
			causeCheck{key + ":latency", "api", "Endpoint latency on " + name,
				epAvgLatency, endpointLatencyDegradedMs, endpointLatencyFailedMs},
		)
	}

	now := m.now()
	var changed []*models.Alert

	for _, check := range checks {
		existing := m.alerts[check.key]

		if check.value < check.warning || check.warning == 0 {
			if existing != nil {
				// Clearance is immediate; only escalation needs
				// consecutive checks.
				resolved := now
				existing.Resolved = true
				existing.ResolvedAt = &resolved
				existing.UpdatedAt = now
				delete(m.alerts, check.key)
				m.pushHistoryLocked(existing)
				changed = append(changed, existing)
				m.logger.Info("Alert resolved", "cause", check.key, "value", check.value)
			}
			continue
		}

		severity := models.AlertWarning
		if check.critical > 0 && check.value >= check.critical {
			severity = models.AlertError
		}

		if existing == nil {
			alert := &models.Alert{
				ID:          uuid.New().String(),
				CauseKey:    check.key,
				Severity:    severity,
				Title:       check.title,
				Description: fmt.Sprintf("%s: %.2f breaches threshold %.2f", check.title, check.value, check.warning),
				Component:   check.component,
				Value:       check.value,
				Threshold:   check.warning,
				CreatedAt:   now,
				UpdatedAt:   now,
				ChecksOpen:  1,
			}
			m.alerts[check.key] = alert
			changed = append(changed, alert)
			m.logger.Warn("Alert raised", "cause", check.key, "severity", severity, "value", check.value)
			continue
		}

		existing.Value = check.value
		existing.UpdatedAt = now
		existing.ChecksOpen++
		if rank(severity) > rank(existing.Severity) {
			existing.Severity = severity
		}
		m.escalateLocked(existing)
		changed = append(changed, existing)
	}

	m.mu.Unlock()

	for _, alert := range changed {
		m.broadcast(alert)
	}
}

// escalateLocked promotes a persisting alert: warning to error after the
// configured number of consecutive checks, error to critical after the
// larger one.
func (m *Monitor) escalateLocked(alert *models.Alert) {
	warnAfter := m.cfg.EscalateWarningAfter
	if warnAfter <= 0 {
		warnAfter = 5
	}
	errAfter := m.cfg.EscalateErrorAfter
	if errAfter <= 0 {
		errAfter = 10
	}

	switch alert.Severity {
	case models.AlertWarning:
		if alert.ChecksOpen >= warnAfter {
			alert.Severity = models.AlertError
			m.logger.Warn("Alert escalated", "cause", alert.CauseKey, "severity", alert.Severity)
		}
	case models.AlertError:
		if alert.ChecksOpen >= errAfter {
			alert.Severity = models.AlertCritical
			m.logger.Error("Alert escalated", "cause", alert.CauseKey, "severity", alert.Severity)
		}
	}
}

func rank(s models.AlertSeverity) int {
	switch s {
	case models.AlertCritical:
		return 3
	case models.AlertError:
		return 2
	default:
		return 1
	}
}

func (m *Monitor) pushHistoryLocked(alert *models.Alert) {
	m.history = append(m.history, alert)
	if len(m.history) > alertHistoryCap {
		m.history = m.history[len(m.history)-alertHistoryCap:]
	}
}

// ActiveAlerts returns the currently open alerts.
func (m *Monitor) ActiveAlerts() []*models.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Alert, 0, len(m.alerts))
	for _, alert := range m.alerts {
		copied := *alert
		out = append(out, &copied)
	}
	return out
}

// AlertHistory returns up to limit resolved alerts, most recent last.
func (m *Monitor) AlertHistory(limit int) []*models.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.history
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]*models.Alert, 0, len(history))
	for _, alert := range history {
		copied := *alert
		out = append(out, &copied)
	}
	return out
}

// Subscribe registers a live alert feed for streaming consumers. The
// returned cancel function must be called to release the channel. Slow
// consumers lose events rather than blocking the monitor.
func (m *Monitor) Subscribe() (<-chan *models.Alert, func()) {
	ch := make(chan *models.Alert, 16)

	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

func (m *Monitor) broadcast(alert *models.Alert) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for ch := range m.subscribers {
		copied := *alert
		select {
		case ch <- &copied:
		default:
		}
	}
}

// Start runs the periodic alerting checks and the slower snapshot log
// until the context is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	interval := m.cfg.CheckInterval
	if interval <= 0 {
		interval = time.Minute
	}
	snapshotEvery := m.cfg.SnapshotInterval
	if snapshotEvery <= 0 {
		snapshotEvery = 5 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		snapshotTicker := time.NewTicker(snapshotEvery)
		defer snapshotTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.RunChecks()
			case <-snapshotTicker.C:
				snap := m.Snapshot()
				m.logger.Info("System health snapshot",
					"status", snap.Status,
					"cpu", snap.CPUPercent,
					"memory", snap.MemoryPercent,
					"disk", snap.DiskPercent,
					"error_rate", snap.ErrorRatePercent,
					"avg_latency_ms", snap.AvgLatencyMs,
					"active_alerts", snap.ActiveAlerts,
				)
			}
		}
	}()
}
