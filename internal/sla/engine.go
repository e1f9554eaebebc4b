package sla

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platformbuilds/sentinel-gate/internal/audit"
	"github.com/platformbuilds/sentinel-gate/internal/config"
	"github.com/platformbuilds/sentinel-gate/internal/models"
	"github.com/platformbuilds/sentinel-gate/pkg/cache"
	"github.com/platformbuilds/sentinel-gate/pkg/logger"
)

// tenantStats accumulates one tenant's measured service levels for the
// current contract period. Latency samples are bounded; throughput uses a
// trailing per-minute bucket map pruned on read.
type tenantStats struct {
	periodStart  time.Time
	requestCount int64
	successCount int64
	failureCount int64

	latencySum     time.Duration
	latencySamples []float64

	// throughput holds request counts keyed by unix minute.
	throughput map[int64]int64

	downtime []*models.DowntimeEvent
}

// Engine owns SLA contracts, the live metric snapshots, and the violation
// state machine. At most one violation is open per (tenant, metric); it is
// escalated in place while the breach persists and credited exactly once
// when it closes.
type Engine struct {
	mu    sync.RWMutex
	slas  map[string]*models.ServiceLevelAgreement
	stats map[string]*tenantStats
	open  map[string]*models.SLAViolation
	// closed violations kept in memory for fast reporting; the cache
	// archive is the durable record.
	history []*models.SLAViolation
	// creditUsed tracks granted credit per tenant per calendar month so
	// the monthly cap holds across violations.
	creditUsed map[string]float64

	cfg    config.SLAConfig
	store  cache.ValkeyStore
	audit  audit.Sink
	logger logger.Logger

	now func() time.Time
}

func NewEngine(cfg config.SLAConfig, store cache.ValkeyStore, sink audit.Sink, log logger.Logger) *Engine {
	return &Engine{
		slas:       make(map[string]*models.ServiceLevelAgreement),
		stats:      make(map[string]*tenantStats),
		open:       make(map[string]*models.SLAViolation),
		creditUsed: make(map[string]float64),
		cfg:        cfg,
		store:      store,
		audit:      sink,
		logger:     log,
		now:        time.Now,
	}
}

func violationKey(tenantID string, metric models.SLAMetric) string {
	return tenantID + "|" + string(metric)
}

func creditKey(tenantID string, at time.Time) string {
	return tenantID + "|" + at.UTC().Format("2006-01")
}

// CreateSLA validates and registers a tenant contract, replacing any
// previous one, and persists it for restart recovery.
func (e *Engine) CreateSLA(ctx context.Context, sla *models.ServiceLevelAgreement) error {
	if sla.TenantID == "" {
		return fmt.Errorf("sla tenant_id is required")
	}
	if len(sla.Targets) == 0 {
		return fmt.Errorf("sla must define at least one target")
	}
	if !sla.EndDate.After(sla.StartDate) {
		return fmt.Errorf("sla end_date must be after start_date")
	}
	if sla.CreditPercent < 0 || sla.MaxMonthlyCredit < 0 {
		return fmt.Errorf("sla credit values must not be negative")
	}
	for _, target := range sla.Targets {
		switch target.Metric {
		case models.MetricUptime, models.MetricLatency, models.MetricErrorRate, models.MetricThroughput:
		default:
			return fmt.Errorf("unknown sla metric %q", target.Metric)
		}
	}

	if sla.ID == "" {
		sla.ID = uuid.New().String()
	}
	sla.CreatedAt = e.now().UTC()

	e.mu.Lock()
	e.slas[sla.TenantID] = sla
	if _, ok := e.stats[sla.TenantID]; !ok {
		e.stats[sla.TenantID] = newTenantStats(e.now())
	}
	e.mu.Unlock()

	if err := e.store.StoreSLA(ctx, sla); err != nil {
		// The in-memory contract is live regardless; persistence is for
		// restart recovery only.
		e.logger.Error("SLA persistence failed", "tenant", sla.TenantID, "error", err)
	}

	e.audit.Record("sla_created", "success", sla.TenantID, "", map[string]interface{}{
		"sla_id":  sla.ID,
		"tier":    sla.Tier,
		"targets": len(sla.Targets),
	})
	e.logger.Info("SLA registered", "tenant", sla.TenantID, "sla_id", sla.ID, "targets", len(sla.Targets))
	return nil
}

// GetSLA returns the active contract for a tenant. On a miss it falls
// back to the persisted record, so contracts survive a process restart
// without an explicit reload step.
func (e *Engine) GetSLA(ctx context.Context, tenantID string) (*models.ServiceLevelAgreement, bool) {
	e.mu.RLock()
	sla, ok := e.slas[tenantID]
	e.mu.RUnlock()
	if ok {
		return sla, true
	}

	restored, err := e.store.GetSLA(ctx, tenantID)
	if err != nil {
		return nil, false
	}

	e.mu.Lock()
	if existing, ok := e.slas[tenantID]; ok {
		e.mu.Unlock()
		return existing, true
	}
	e.slas[tenantID] = restored
	if _, ok := e.stats[tenantID]; !ok {
		e.stats[tenantID] = newTenantStats(e.now())
	}
	e.mu.Unlock()

	e.logger.Info("SLA restored from store", "tenant", tenantID, "sla_id", restored.ID)
	return restored, true
}

// RecordOutcome folds one completed request into the tenant accumulators
// and immediately re-evaluates the tenant's targets against the refreshed
// snapshot, so violations open and close with the traffic rather than on
// the next periodic recheck.
func (e *Engine) RecordOutcome(outcome models.RequestOutcome) {
	if outcome.TenantID == "" {
		return
	}

	e.mu.Lock()

	stats, ok := e.stats[outcome.TenantID]
	if !ok {
		stats = newTenantStats(e.now())
		e.stats[outcome.TenantID] = stats
	}

	stats.requestCount++
	if outcome.Success {
		stats.successCount++
	} else {
		stats.failureCount++
	}

	stats.latencySum += outcome.Latency
	if len(stats.latencySamples) < e.latencyCap() {
		stats.latencySamples = append(stats.latencySamples, float64(outcome.Latency.Milliseconds()))
	} else {
		// Overwrite in ring order once full.
		idx := int(stats.requestCount) % e.latencyCap()
		stats.latencySamples[idx] = float64(outcome.Latency.Milliseconds())
	}

	minute := outcome.Timestamp.Unix() / 60
	if outcome.Timestamp.IsZero() {
		minute = e.now().Unix() / 60
	}
	stats.throughput[minute]++

	var closed []*models.SLAViolation
	if sla, ok := e.slas[outcome.TenantID]; ok {
		closed = e.evaluateTenantLocked(outcome.TenantID, sla)
	}
	e.mu.Unlock()

	e.flushClosed(context.Background(), closed)
}

// RecordDowntime registers a discrete outage interval for uptime accounting.
func (e *Engine) RecordDowntime(tenantID string, start, end time.Time, reason string) {
	if !end.After(start) {
		return
	}
	event := &models.DowntimeEvent{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		StartedAt: start,
		EndedAt:   end,
		Reason:    reason,
	}

	e.mu.Lock()
	stats, ok := e.stats[tenantID]
	if !ok {
		stats = newTenantStats(e.now())
		e.stats[tenantID] = stats
	}
	stats.downtime = append(stats.downtime, event)
	e.mu.Unlock()

	e.audit.Record("downtime_recorded", "recorded", tenantID, "", map[string]interface{}{
		"minutes": end.Sub(start).Minutes(),
		"reason":  reason,
	})
}

func (e *Engine) latencyCap() int {
	if e.cfg.LatencySampleCap > 0 {
		return e.cfg.LatencySampleCap
	}
	return 10_000
}

func newTenantStats(now time.Time) *tenantStats {
	return &tenantStats{
		periodStart: now,
		throughput:  make(map[int64]int64),
	}
}

// Snapshot computes the live metric view for a tenant.
func (e *Engine) Snapshot(tenantID string) (*models.SLAMetricSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats, ok := e.stats[tenantID]
	if !ok {
		return nil, false
	}
	return e.snapshotLocked(tenantID, stats), true
}

func (e *Engine) snapshotLocked(tenantID string, stats *tenantStats) *models.SLAMetricSnapshot {
	now := e.now()

	snap := &models.SLAMetricSnapshot{
		TenantID:     tenantID,
		RequestCount: stats.requestCount,
		SuccessCount: stats.successCount,
		FailureCount: stats.failureCount,
		UpdatedAt:    now,
	}

	if stats.requestCount > 0 {
		snap.AvgLatencyMs = float64(stats.latencySum.Milliseconds()) / float64(stats.requestCount)
		snap.ErrorRatePercent = float64(stats.failureCount) / float64(stats.requestCount) * 100
	}
	snap.P95LatencyMs = percentile(stats.latencySamples, 95)
	snap.P99LatencyMs = percentile(stats.latencySamples, 99)

	// Uptime over the elapsed tracking period, reduced by recorded outages.
	elapsed := now.Sub(stats.periodStart)
	if elapsed > 0 {
		var down time.Duration
		for _, ev := range stats.downtime {
			down += overlap(ev.StartedAt, ev.EndedAt, stats.periodStart, now)
		}
		if down > elapsed {
			down = elapsed
		}
		snap.DowntimeMinutes = down.Minutes()
		snap.UptimePercent = 100 * (1 - float64(down)/float64(elapsed))
	} else {
		snap.UptimePercent = 100
	}

	// Throughput over the trailing window only; full-period averages hide
	// sustained delivery drops behind historic traffic.
	window := e.cfg.ThroughputWindow
	if window <= 0 {
		window = 10 * time.Minute
	}
	cutoffMinute := now.Add(-window).Unix() / 60
	var recent int64
	for minute, count := range stats.throughput {
		if minute < cutoffMinute {
			delete(stats.throughput, minute)
			continue
		}
		recent += count
	}
	snap.ThroughputPerMin = float64(recent) / window.Minutes()

	return snap
}

func percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted))*p/100+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func overlap(aStart, aEnd, bStart, bEnd time.Time) time.Duration {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if end.After(start) {
		return end.Sub(start)
	}
	return 0
}
