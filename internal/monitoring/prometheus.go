// Package monitoring exposes Prometheus metrics for the admission pipeline.
//
// Usage:
//
//  1. Setup the metrics endpoint in your main function:
//     router := gin.New()
//     monitoring.SetupPrometheusMetrics(router)
//
//  2. Hand monitoring.NewMetrics() to the orchestrator; it records
//     admission outcomes and denial reasons as requests flow through.
//
// Available Metrics:
//
//   - sentinel_gate_requests_total{method, status_code, outcome}
//   - sentinel_gate_request_duration_seconds{method}
//   - sentinel_gate_denials_total{reason, dimension}
//   - sentinel_gate_active_clients
//   - sentinel_gate_open_sla_violations
//   - sentinel_gate_active_alerts
//   - sentinel_gate_build_info{version, component, go_version}
package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_gate_requests_total",
			Help: "Total number of requests through the admission pipeline",
		},
		[]string{"method", "status_code", "outcome"}, // outcome: success, failure
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_gate_request_duration_seconds",
			Help:    "Dispatched request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	denialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_gate_denials_total",
			Help: "Total number of denied requests",
		},
		[]string{"reason", "dimension"},
	)

	activeClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_gate_active_clients",
			Help: "Number of tracked client quota states",
		},
	)

	openViolations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_gate_open_sla_violations",
			Help: "Number of currently open SLA violations",
		},
	)

	activeAlerts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_gate_active_alerts",
			Help: "Number of unresolved health alerts",
		},
	)
)

// SetupPrometheusMetrics registers the gateway collectors and exposes the
// metrics endpoint on the default registry.
func SetupPrometheusMetrics(router gin.IRoutes) {
	// Register build info (ignore if already registered)
	_ = prometheus.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "sentinel_gate_build_info",
		Help: "Build information for sentinel-gate",
		ConstLabels: prometheus.Labels{
			"version":    "v1.4.0",
			"component":  "sentinel-gate",
			"go_version": "1.24",
		},
	}, func() float64 { return 1 }))

	_ = prometheus.Register(requestsTotal)
	_ = prometheus.Register(requestDuration)
	_ = prometheus.Register(denialsTotal)
	_ = prometheus.Register(activeClients)
	_ = prometheus.Register(openViolations)
	_ = prometheus.Register(activeAlerts)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Metrics is the recording handle the orchestrator holds. Methods are safe
// to call before SetupPrometheusMetrics; unregistered collectors still
// accept observations.
type Metrics struct{}

func NewMetrics() *Metrics { return &Metrics{} }

// RecordAdmission records one dispatched request.
func (m *Metrics) RecordAdmission(method string, statusCode int, duration time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	requestsTotal.WithLabelValues(method, strconv.Itoa(statusCode), outcome).Inc()
	requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordDenial records one rejected request.
func (m *Metrics) RecordDenial(reason, dimension string) {
	if dimension == "" {
		dimension = "none"
	}
	denialsTotal.WithLabelValues(reason, dimension).Inc()
}

// SetGauges refreshes the slow-moving reporting gauges.
func (m *Metrics) SetGauges(clients, violations, alerts int) {
	activeClients.Set(float64(clients))
	openViolations.Set(float64(violations))
	activeAlerts.Set(float64(alerts))
}
