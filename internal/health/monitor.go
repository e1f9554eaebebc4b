package health

import (
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/platformbuilds/sentinel-gate/internal/config"
	"github.com/platformbuilds/sentinel-gate/internal/models"
	"github.com/platformbuilds/sentinel-gate/pkg/logger"
)

const (
	endpointSampleCap = 1000
	// trailingWindow is the bucket horizon used for API-level error rate
	// and latency. Full-period averages would let hours of healthy
	// traffic mask a live incident.
	trailingWindow = 5 * time.Minute

	// Endpoint classification bounds: under the degraded pair is healthy,
	// under the failed pair is degraded, anything worse has failed.
	endpointErrorDegradedPct  = 1.0
	endpointErrorFailedPct    = 5.0
	endpointLatencyDegradedMs = 1000.0
	endpointLatencyFailedMs   = 3000.0
)

// endpointStats is the rolling statistic set for one (method, path) pair.
type endpointStats struct {
	method       string
	path         string
	requestCount int64
	successCount int64
	failureCount int64
	latencySum   time.Duration
	minLatency   time.Duration
	maxLatency   time.Duration
	samples      []float64
	statusCodes  map[int]int64
	lastRequest  time.Time
}

// minuteBucket aggregates one minute of traffic for the trailing window.
type minuteBucket struct {
	requests   int64
	failures   int64
	latencySum time.Duration
}

// Monitor tracks per-endpoint statistics, system gauges, and threshold
// alerts. It backs the health gate the orchestrator consults before
// admission.
type Monitor struct {
	mu        sync.RWMutex
	cfg       config.HealthConfig
	endpoints map[string]*endpointStats
	buckets   map[int64]*minuteBucket

	cpuPercent    float64
	memoryPercent float64
	diskPercent   float64

	alerts      map[string]*models.Alert
	history     []*models.Alert
	subscribers map[chan *models.Alert]struct{}

	logger logger.Logger
	now    func() time.Time
}

func NewMonitor(cfg config.HealthConfig, log logger.Logger) *Monitor {
	return &Monitor{
		cfg:         cfg,
		endpoints:   make(map[string]*endpointStats),
		buckets:     make(map[int64]*minuteBucket),
		alerts:      make(map[string]*models.Alert),
		subscribers: make(map[chan *models.Alert]struct{}),
		logger:      log,
		now:         time.Now,
	}
}

// RecordOutcome folds one completed request into the endpoint statistics
// and the trailing-window buckets.
func (m *Monitor) RecordOutcome(outcome models.RequestOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := outcome.Method + " " + outcome.Path
	stats, ok := m.endpoints[key]
	if !ok {
		stats = &endpointStats{
			method:      outcome.Method,
			path:        outcome.Path,
			statusCodes: make(map[int]int64),
		}
		m.endpoints[key] = stats
	}

	stats.requestCount++
	if outcome.Success {
		stats.successCount++
	} else {
		stats.failureCount++
	}
	stats.latencySum += outcome.Latency
	if stats.requestCount == 1 || outcome.Latency < stats.minLatency {
		stats.minLatency = outcome.Latency
	}
	if outcome.Latency > stats.maxLatency {
		stats.maxLatency = outcome.Latency
	}
	if len(stats.samples) < endpointSampleCap {
		stats.samples = append(stats.samples, float64(outcome.Latency.Milliseconds()))
	} else {
		stats.samples[int(stats.requestCount)%endpointSampleCap] = float64(outcome.Latency.Milliseconds())
	}
	stats.statusCodes[outcome.StatusCode]++

	ts := outcome.Timestamp
	if ts.IsZero() {
		ts = m.now()
	}
	stats.lastRequest = ts

	minute := ts.Unix() / 60
	bucket, ok := m.buckets[minute]
	if !ok {
		bucket = &minuteBucket{}
		m.buckets[minute] = bucket
	}
	bucket.requests++
	if !outcome.Success {
		bucket.failures++
	}
	bucket.latencySum += outcome.Latency
}

// SetSystemStats updates the host gauges. Call it from an external
// sampler; the monitor never scrapes the host itself beyond process
// memory.
func (m *Monitor) SetSystemStats(cpuPercent, memoryPercent, diskPercent float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cpuPercent = cpuPercent
	m.memoryPercent = memoryPercent
	m.diskPercent = diskPercent
}

// sampleProcessMemory reports heap in-use as a share of the heap the
// runtime has reserved. Used only when no external sampler feeds the
// memory gauge.
func sampleProcessMemory() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.HeapSys == 0 {
		return 0
	}
	return float64(ms.HeapInuse) / float64(ms.HeapSys) * 100
}

// trailingStatsLocked computes error rate and average latency over the
// trailing window, pruning expired buckets as a side effect.
func (m *Monitor) trailingStatsLocked() (errorRate, avgLatencyMs float64) {
	cutoff := m.now().Add(-trailingWindow).Unix() / 60
	var requests, failures int64
	var latencySum time.Duration
	for minute, bucket := range m.buckets {
		if minute < cutoff {
			delete(m.buckets, minute)
			continue
		}
		requests += bucket.requests
		failures += bucket.failures
		latencySum += bucket.latencySum
	}
	if requests == 0 {
		return 0, 0
	}
	errorRate = float64(failures) / float64(requests) * 100
	avgLatencyMs = float64(latencySum.Milliseconds()) / float64(requests)
	return errorRate, avgLatencyMs
}

// Status derives overall health from the current gauges and trailing API
// statistics against the configured thresholds. Critical health makes the
// orchestrator reject new work before it reaches admission.
func (m *Monitor) Status() models.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Monitor) statusLocked() models.HealthStatus {
	t := m.cfg.Thresholds
	errorRate, avgLatency := m.trailingStatsLocked()
	worstEndpoint := m.worstEndpointStateLocked()

	mem := m.memoryPercent
	if mem == 0 {
		mem = sampleProcessMemory()
	}

	critical := m.cpuPercent >= t.CPUCritical ||
		mem >= t.MemoryCritical ||
		m.diskPercent >= t.DiskCritical ||
		errorRate >= t.ErrorRateCritical ||
		avgLatency >= t.LatencyCriticalMs ||
		worstEndpoint == models.EndpointFailed
	if critical {
		return models.HealthCritical
	}

	warning := m.cpuPercent >= t.CPUWarning ||
		mem >= t.MemoryWarning ||
		m.diskPercent >= t.DiskWarning ||
		errorRate >= t.ErrorRateWarning ||
		avgLatency >= t.LatencyWarningMs ||
		worstEndpoint == models.EndpointDegraded
	if warning {
		return models.HealthWarning
	}
	return models.HealthHealthy
}

// worstEndpointStateLocked grades every tracked endpoint and returns the
// worst state found. A single failed endpoint forces overall health to
// critical; a degraded one forces warning.
func (m *Monitor) worstEndpointStateLocked() models.EndpointState {
	worst := models.EndpointHealthy
	for _, stats := range m.endpoints {
		if stats.requestCount == 0 {
			continue
		}
		errorRate, avgLatency := stats.rates()
		switch classify(errorRate, avgLatency) {
		case models.EndpointFailed:
			return models.EndpointFailed
		case models.EndpointDegraded:
			worst = models.EndpointDegraded
		}
	}
	return worst
}

// Snapshot returns the reporting view of current system health.
func (m *Monitor) Snapshot() *models.SystemHealthSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	errorRate, avgLatency := m.trailingStatsLocked()
	mem := m.memoryPercent
	if mem == 0 {
		mem = sampleProcessMemory()
	}

	return &models.SystemHealthSnapshot{
		Status:           m.statusLocked(),
		CPUPercent:       m.cpuPercent,
		MemoryPercent:    mem,
		DiskPercent:      m.diskPercent,
		ErrorRatePercent: errorRate,
		AvgLatencyMs:     avgLatency,
		ActiveAlerts:     len(m.alerts),
		CheckedAt:        m.now(),
	}
}

// EndpointMetrics returns the rolling view of every tracked endpoint.
func (m *Monitor) EndpointMetrics() []*models.EndpointMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.EndpointMetrics, 0, len(m.endpoints))
	for _, stats := range m.endpoints {
		out = append(out, stats.view())
	}
	return out
}

func (s *endpointStats) view() *models.EndpointMetrics {
	view := &models.EndpointMetrics{
		Method:        s.method,
		Path:          s.path,
		RequestCount:  s.requestCount,
		SuccessCount:  s.successCount,
		FailureCount:  s.failureCount,
		MinLatencyMs:  float64(s.minLatency.Milliseconds()),
		MaxLatencyMs:  float64(s.maxLatency.Milliseconds()),
		StatusCodes:   make(map[int]int64, len(s.statusCodes)),
		LastRequestAt: s.lastRequest,
	}
	for code, count := range s.statusCodes {
		view.StatusCodes[code] = count
	}
	if s.requestCount > 0 {
		view.ErrorRate, view.AvgLatencyMs = s.rates()
	}
	view.P95LatencyMs = percentile(s.samples, 95)
	view.State = classify(view.ErrorRate, view.AvgLatencyMs)
	return view
}

func (s *endpointStats) rates() (errorRate, avgLatencyMs float64) {
	if s.requestCount == 0 {
		return 0, 0
	}
	errorRate = float64(s.failureCount) / float64(s.requestCount) * 100
	avgLatencyMs = float64(s.latencySum.Milliseconds()) / float64(s.requestCount)
	return errorRate, avgLatencyMs
}

// classify grades an endpoint: under 1% errors and under a second of
// average latency is healthy, under 5% and three seconds is degraded,
// anything worse has failed.
func classify(errorRate, avgLatencyMs float64) models.EndpointState {
	switch {
	case errorRate < endpointErrorDegradedPct && avgLatencyMs < endpointLatencyDegradedMs:
		return models.EndpointHealthy
	case errorRate < endpointErrorFailedPct && avgLatencyMs < endpointLatencyFailedMs:
		return models.EndpointDegraded
	default:
		return models.EndpointFailed
	}
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
