package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/sentinel-gate/internal/audit"
	"github.com/platformbuilds/sentinel-gate/internal/config"
	"github.com/platformbuilds/sentinel-gate/internal/gateway"
	"github.com/platformbuilds/sentinel-gate/internal/health"
	"github.com/platformbuilds/sentinel-gate/internal/models"
	"github.com/platformbuilds/sentinel-gate/internal/quota"
	"github.com/platformbuilds/sentinel-gate/internal/sla"
	"github.com/platformbuilds/sentinel-gate/pkg/cache"
	"github.com/platformbuilds/sentinel-gate/pkg/logger"
)

func testServerConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Environment = "development"
	cfg.Port = 8080
	cfg.Quota = config.QuotaConfig{
		Tiers: map[string]config.TierLimits{
			string(models.TierBasic): {
				RequestsPerSecond: 3,
				RequestsPerMinute: 100,
				RequestsPerHour:   1_000,
				RequestsPerDay:    10_000,
				Concurrent:        10,
				BytesPerDay:       1 << 30,
				BurstAllowance:    1.5,
			},
			string(models.TierEnterprise): {
				RequestsPerSecond: 1_000,
				RequestsPerMinute: 10_000,
				RequestsPerHour:   100_000,
				RequestsPerDay:    1_000_000,
				Concurrent:        500,
				BytesPerDay:       100 << 30,
				BurstAllowance:    1.5,
			},
		},
	}
	cfg.Health.Thresholds = config.HealthThresholds{
		CPUWarning: 70, CPUCritical: 85,
		MemoryWarning: 80, MemoryCritical: 90,
		DiskWarning: 80, DiskCritical: 95,
		ErrorRateWarning: 5, ErrorRateCritical: 10,
		LatencyWarningMs: 2000, LatencyCriticalMs: 5000,
	}
	return cfg
}

type serverHarness struct {
	server  *Server
	limiter *quota.Limiter
	engine  *sla.Engine
	monitor *health.Monitor
}

func newTestServer(t *testing.T, cfg *config.Config) *serverHarness {
	t.Helper()

	log := logger.NewNop()
	sink := audit.NopSink{}

	limiter := quota.NewLimiter(cfg.Quota, log)
	engine := sla.NewEngine(cfg.SLA, cache.NewNoopStore(), sink, log)
	monitor := health.NewMonitor(cfg.Health, log)
	monitor.SetSystemStats(10, 10, 10)

	orch := gateway.NewOrchestrator(cfg.Gateway, limiter, engine, monitor, nil, sink, log)

	return &serverHarness{
		server:  NewServer(cfg, log, orch, limiter, engine, monitor, sink),
		limiter: limiter,
		engine:  engine,
		monitor: monitor,
	}
}

func (h *serverHarness) do(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, http.NoBody)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(w, req)
	return w
}

func clientHeaders(client string) map[string]string {
	return map[string]string{
		"X-Tenant-ID": "tenant-1",
		"X-Client-ID": client,
		"X-Tier":      "basic",
	}
}

func TestHealthAndReadyProbes(t *testing.T) {
	h := newTestServer(t, testServerConfig())

	w := h.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyFailsWhenHealthCritical(t *testing.T) {
	h := newTestServer(t, testServerConfig())
	h.monitor.SetSystemStats(95, 10, 10)

	w := h.do(http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGateAdmitsAndEchoesCorrelationID(t *testing.T) {
	h := newTestServer(t, testServerConfig())

	headers := clientHeaders("client-1")
	headers["X-Correlation-ID"] = "corr-42"
	w := h.do(http.MethodPost, "/gate/orders", []byte(`{"sku":"a"}`), headers)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "corr-42", body["correlation_id"])
	assert.Equal(t, "corr-42", w.Header().Get("X-Correlation-ID"))
}

func TestGateRateLimitsWithRetryAfter(t *testing.T) {
	h := newTestServer(t, testServerConfig())
	headers := clientHeaders("client-rl")

	// Basic allows 3/s with no burst tokens configured.
	for i := 0; i < 3; i++ {
		w := h.do(http.MethodGet, "/gate/orders", nil, headers)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w := h.do(http.MethodGet, "/gate/orders", nil, headers)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "3", w.Header().Get("X-Rate-Limit-Limit"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "denied", body["status"])
	assert.Equal(t, string(models.ReasonRateLimitExceeded), body["reason"])
	assert.Equal(t, "requests_per_second", body["dimension"])
}

func TestGateShedsWhenHealthCritical(t *testing.T) {
	h := newTestServer(t, testServerConfig())
	h.monitor.SetSystemStats(10, 95, 10)

	w := h.do(http.MethodGet, "/gate/orders", nil, clientHeaders("client-1"))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
}

func TestGatewayMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, testServerConfig())

	for i := 0; i < 2; i++ {
		w := h.do(http.MethodGet, "/gate/orders", nil, clientHeaders("client-1"))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := h.do(http.MethodGet, "/api/v1/gateway/metrics", nil, clientHeaders("ops"))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data models.GatewayMetricsSnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(2), body.Data.TotalRequests)
	assert.Equal(t, int64(2), body.Data.SuccessRequests)
}

func TestSLALifecycleOverHTTP(t *testing.T) {
	h := newTestServer(t, testServerConfig())

	agreement := models.ServiceLevelAgreement{
		TenantID: "tenant-1",
		Tier:     models.TierEnterprise,
		Targets: []models.SLATarget{
			{Metric: models.MetricLatency, Target: 500, Unit: "ms", Period: "monthly"},
		},
		StartDate:        time.Now().Add(-24 * time.Hour),
		EndDate:          time.Now().Add(365 * 24 * time.Hour),
		CreditPercent:    5,
		MaxMonthlyCredit: 10,
	}
	payload, err := json.Marshal(agreement)
	require.NoError(t, err)

	w := h.do(http.MethodPost, "/api/v1/sla", payload, clientHeaders("ops"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = h.do(http.MethodGet, "/api/v1/sla/tenant-1", nil, clientHeaders("ops"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/api/v1/sla/tenant-missing", nil, clientHeaders("ops"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(http.MethodGet, "/api/v1/sla/tenant-1/report", nil, clientHeaders("ops"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/api/v1/sla/tenant-1/report?from=bogus", nil, clientHeaders("ops"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClientAdminEndpoints(t *testing.T) {
	h := newTestServer(t, testServerConfig())

	// Client state only exists after a first admission.
	w := h.do(http.MethodGet, "/gate/orders", nil, clientHeaders("client-adm"))
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/api/v1/clients/client-adm", nil, clientHeaders("ops"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/api/v1/clients/nobody", nil, clientHeaders("ops"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(http.MethodPost, "/api/v1/clients/client-adm/tier", []byte(`{"tier":"enterprise"}`), clientHeaders("ops"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodPost, "/api/v1/clients/client-adm/tier", []byte(`{"tier":"platinum"}`), clientHeaders("ops"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/v1/clients/client-adm/reset", nil, clientHeaders("ops"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthEnabledRejectsAnonymousGate(t *testing.T) {
	cfg := testServerConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.JWTSecret = "secret"
	h := newTestServer(t, cfg)

	w := h.do(http.MethodGet, "/gate/orders", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Probes stay public.
	w = h.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewServerConstructs(t *testing.T) {
	h := newTestServer(t, testServerConfig())
	require.NotNil(t, h.server.Handler())
	require.NotNil(t, h.limiter)
	require.NotNil(t, h.engine)
}
