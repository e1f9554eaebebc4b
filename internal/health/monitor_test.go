package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/sentinel-gate/internal/config"
	"github.com/platformbuilds/sentinel-gate/internal/models"
	"github.com/platformbuilds/sentinel-gate/pkg/logger"
)

func testConfig() config.HealthConfig {
	return config.HealthConfig{
		CheckInterval: time.Minute,
		Thresholds: config.HealthThresholds{
			CPUWarning:        70,
			CPUCritical:       85,
			MemoryWarning:     80,
			MemoryCritical:    90,
			DiskWarning:       80,
			DiskCritical:      95,
			ErrorRateWarning:  5,
			ErrorRateCritical: 10,
			LatencyWarningMs:  2000,
			LatencyCriticalMs: 5000,
		},
		EscalateWarningAfter: 5,
		EscalateErrorAfter:   10,
	}
}

func testMonitor() (*Monitor, *time.Time) {
	m := NewMonitor(testConfig(), logger.NewNop())
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	// Keep the process-memory sampler out of threshold evaluation.
	m.SetSystemStats(10, 10, 10)
	return m, &clock
}

func record(m *Monitor, path string, count int, success bool, latency time.Duration, at time.Time) {
	status := 200
	if !success {
		status = 502
	}
	for i := 0; i < count; i++ {
		m.RecordOutcome(models.RequestOutcome{
			TenantID:   "tenant-1",
			Method:     "GET",
			Path:       path,
			StatusCode: status,
			Success:    success,
			Latency:    latency,
			Timestamp:  at,
		})
	}
}

func TestEndpointClassification(t *testing.T) {
	m, clock := testMonitor()

	// Healthy: no failures, fast.
	record(m, "/fast", 200, true, 50*time.Millisecond, *clock)
	// Degraded: 2% errors.
	record(m, "/flaky", 98, true, 100*time.Millisecond, *clock)
	record(m, "/flaky", 2, false, 100*time.Millisecond, *clock)
	// Failed: slow regardless of error rate.
	record(m, "/slow", 10, true, 4*time.Second, *clock)

	byPath := make(map[string]*models.EndpointMetrics)
	for _, ep := range m.EndpointMetrics() {
		byPath[ep.Path] = ep
	}
	require.Len(t, byPath, 3)

	assert.Equal(t, models.EndpointHealthy, byPath["/fast"].State)
	assert.Equal(t, models.EndpointDegraded, byPath["/flaky"].State)
	assert.Equal(t, models.EndpointFailed, byPath["/slow"].State)

	flaky := byPath["/flaky"]
	assert.Equal(t, int64(100), flaky.RequestCount)
	assert.InDelta(t, 2.0, flaky.ErrorRate, 0.001)
	assert.Equal(t, int64(98), flaky.StatusCodes[200])
	assert.Equal(t, int64(2), flaky.StatusCodes[502])
}

func TestEndpointLatencyStats(t *testing.T) {
	m, clock := testMonitor()

	for i := 1; i <= 100; i++ {
		m.RecordOutcome(models.RequestOutcome{
			Method:    "GET",
			Path:      "/api",
			Success:   true,
			Latency:   time.Duration(i) * time.Millisecond,
			Timestamp: *clock,
		})
	}

	eps := m.EndpointMetrics()
	require.Len(t, eps, 1)
	ep := eps[0]
	assert.Equal(t, float64(1), ep.MinLatencyMs)
	assert.Equal(t, float64(100), ep.MaxLatencyMs)
	assert.InDelta(t, 50.5, ep.AvgLatencyMs, 0.5)
	assert.InDelta(t, 95, ep.P95LatencyMs, 1)
}

func TestStatusFromGauges(t *testing.T) {
	m, _ := testMonitor()

	assert.Equal(t, models.HealthHealthy, m.Status())

	m.SetSystemStats(75, 10, 10)
	assert.Equal(t, models.HealthWarning, m.Status())

	// CPU past the critical threshold flips overall health regardless of
	// everything else.
	m.SetSystemStats(90, 10, 10)
	assert.Equal(t, models.HealthCritical, m.Status())

	snap := m.Snapshot()
	assert.Equal(t, models.HealthCritical, snap.Status)
	assert.Equal(t, float64(90), snap.CPUPercent)
}

func TestStatusFromTrailingErrorRate(t *testing.T) {
	m, clock := testMonitor()

	record(m, "/api", 85, true, 10*time.Millisecond, *clock)
	record(m, "/api", 15, false, 10*time.Millisecond, *clock)
	assert.Equal(t, models.HealthCritical, m.Status())

	// The failures age out of the trailing window; enough fresh traffic
	// also pulls the endpoint's cumulative error rate back under the
	// healthy bound.
	*clock = clock.Add(6 * time.Minute)
	record(m, "/api", 1600, true, 10*time.Millisecond, *clock)
	assert.Equal(t, models.HealthHealthy, m.Status())
}

func TestStatusReflectsEndpointStates(t *testing.T) {
	m, clock := testMonitor()

	// A degraded endpoint forces Warning even with calm gauges and a
	// trailing error rate below the API-wide threshold.
	record(m, "/flaky", 98, true, 10*time.Millisecond, *clock)
	record(m, "/flaky", 2, false, 10*time.Millisecond, *clock)
	assert.Equal(t, models.HealthWarning, m.Status())

	// A failed endpoint forces Critical regardless of everything else.
	record(m, "/slow", 10, true, 4*time.Second, *clock)
	assert.Equal(t, models.HealthCritical, m.Status())
}

func TestAlertLifecycle(t *testing.T) {
	m, _ := testMonitor()

	m.SetSystemStats(75, 10, 10)
	m.RunChecks()

	alerts := m.ActiveAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "system.cpu", alerts[0].CauseKey)
	assert.Equal(t, models.AlertWarning, alerts[0].Severity)
	assert.Equal(t, 1, alerts[0].ChecksOpen)
	firstID := alerts[0].ID

	// A persisting cause updates the same alert instead of stacking.
	m.RunChecks()
	alerts = m.ActiveAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, firstID, alerts[0].ID)
	assert.Equal(t, 2, alerts[0].ChecksOpen)

	// Five consecutive checks promote warning to error.
	for i := 0; i < 3; i++ {
		m.RunChecks()
	}
	alerts = m.ActiveAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertError, alerts[0].Severity)

	// Ten promote error to critical.
	for i := 0; i < 5; i++ {
		m.RunChecks()
	}
	alerts = m.ActiveAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertCritical, alerts[0].Severity)

	// Clearance resolves immediately, no de-escalation ladder.
	m.SetSystemStats(10, 10, 10)
	m.RunChecks()
	assert.Empty(t, m.ActiveAlerts())

	history := m.AlertHistory(10)
	require.Len(t, history, 1)
	assert.True(t, history[0].Resolved)
	assert.NotNil(t, history[0].ResolvedAt)
	assert.Equal(t, firstID, history[0].ID)
}

func TestCriticalBreachOpensAtError(t *testing.T) {
	m, _ := testMonitor()

	m.SetSystemStats(90, 10, 10)
	m.RunChecks()

	alerts := m.ActiveAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertError, alerts[0].Severity)
}

func TestEndpointAlerts(t *testing.T) {
	m, clock := testMonitor()

	// 3% errors: past the degraded bound, below failed.
	record(m, "/orders", 97, true, 10*time.Millisecond, *clock)
	record(m, "/orders", 3, false, 10*time.Millisecond, *clock)
	m.RunChecks()

	byCause := make(map[string]*models.Alert)
	for _, a := range m.ActiveAlerts() {
		byCause[a.CauseKey] = a
	}
	errAlert := byCause["endpoint:GET:/orders:error_rate"]
	require.NotNil(t, errAlert, "degraded endpoint must raise its own cause")
	assert.Equal(t, models.AlertWarning, errAlert.Severity)
	assert.Equal(t, "api", errAlert.Component)

	// A slow endpoint raises the latency cause at error severity.
	record(m, "/slow", 10, true, 4*time.Second, *clock)
	m.RunChecks()

	byCause = make(map[string]*models.Alert)
	for _, a := range m.ActiveAlerts() {
		byCause[a.CauseKey] = a
	}
	latAlert := byCause["endpoint:GET:/slow:latency"]
	require.NotNil(t, latAlert)
	assert.Equal(t, models.AlertError, latAlert.Severity)

	// Recovery clears the cause immediately once the endpoint's error
	// rate falls back under the healthy bound.
	record(m, "/orders", 400, true, 10*time.Millisecond, *clock)
	m.RunChecks()
	for _, a := range m.ActiveAlerts() {
		assert.NotEqual(t, "endpoint:GET:/orders:error_rate", a.CauseKey)
	}
}

func TestSubscribeReceivesAlerts(t *testing.T) {
	m, _ := testMonitor()

	ch, cancel := m.Subscribe()
	defer cancel()

	m.SetSystemStats(75, 10, 10)
	m.RunChecks()

	select {
	case alert := <-ch:
		assert.Equal(t, "system.cpu", alert.CauseKey)
	case <-time.After(time.Second):
		t.Fatal("expected an alert on the subscription channel")
	}

	cancel()
	_, open := <-ch
	assert.False(t, open)
}
