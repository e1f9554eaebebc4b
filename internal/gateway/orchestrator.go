package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/platformbuilds/sentinel-gate/internal/audit"
	"github.com/platformbuilds/sentinel-gate/internal/config"
	"github.com/platformbuilds/sentinel-gate/internal/health"
	"github.com/platformbuilds/sentinel-gate/internal/models"
	"github.com/platformbuilds/sentinel-gate/internal/monitoring"
	"github.com/platformbuilds/sentinel-gate/internal/quota"
	"github.com/platformbuilds/sentinel-gate/internal/sla"
	"github.com/platformbuilds/sentinel-gate/internal/tracing"
	"github.com/platformbuilds/sentinel-gate/pkg/logger"
)

// Handler is the protected operation the orchestrator dispatches once a
// request clears the health gate and admission.
type Handler func(ctx context.Context) (*models.HandlerResponse, error)

// Orchestrator runs the request pipeline: resolve, health gate, admission,
// dispatch, completion. Completion accounting runs exactly once per
// admitted request regardless of handler outcome, including panics.
type Orchestrator struct {
	limiter *quota.Limiter
	slas    *sla.Engine
	monitor *health.Monitor
	metrics *monitoring.Metrics
	audit   audit.Sink
	logger  logger.Logger

	mu             sync.Mutex
	totalRequests  int64
	successCount   int64
	failedCount    int64
	rateLimited    int64
	healthRejected int64
	internalFaults int64

	// responseTimes is a bounded ring over recent dispatch latencies in
	// milliseconds; writeIdx wraps once the ring is full.
	responseTimes []float64
	writeIdx      int
	sampleCap     int

	now func() time.Time
}

func NewOrchestrator(
	cfg config.GatewayConfig,
	limiter *quota.Limiter,
	slas *sla.Engine,
	monitor *health.Monitor,
	metrics *monitoring.Metrics,
	sink audit.Sink,
	log logger.Logger,
) *Orchestrator {
	cap := cfg.ResponseSampleCap
	if cap <= 0 {
		cap = 10_000
	}
	return &Orchestrator{
		limiter:   limiter,
		slas:      slas,
		monitor:   monitor,
		metrics:   metrics,
		audit:     sink,
		logger:    log,
		sampleCap: cap,
		now:       time.Now,
	}
}

// Handle runs one request through the full pipeline and returns the tagged
// outcome. Exactly one of Response, Denial, Err is set according to Status.
// Unresolved identities bypass the tenant-scoped quota checks but still
// pass the health gate and count against the global statistics.
func (o *Orchestrator) Handle(ctx context.Context, req models.InboundRequest, identity models.RequestContext, handler Handler) models.GatewayResult {
	started := o.now()
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	tracer := tracing.GetGlobalTracer()
	var span trace.Span
	if tracer != nil {
		ctx, span = tracer.StartRequestSpan(ctx, correlationID, req.Method, req.Path)
		defer span.End()
	}
	denyTraced := func(denial *models.Denial) models.GatewayResult {
		if span != nil {
			tracer.RecordDenial(span, string(denial.Reason), string(denial.Dimension))
		}
		return o.deny(req, identity, denial, started)
	}

	o.mu.Lock()
	o.totalRequests++
	o.mu.Unlock()

	// Phase 1: resolution happened upstream; an unresolved identity skips
	// admission below but is still health-gated and counted.
	resolved := identity.Resolved && identity.ClientID != ""

	// Phase 2: health gate. A system in critical health sheds load before
	// any quota is consumed.
	if o.monitor.Status() == models.HealthCritical {
		o.mu.Lock()
		o.healthRejected++
		o.mu.Unlock()
		return denyTraced(&models.Denial{
			Reason:        models.ReasonHealthUnavailable,
			CorrelationID: correlationID,
		})
	}

	// Phase 3: admission. A nil denial reserves the concurrency slot.
	if resolved {
		var admSpan trace.Span
		if tracer != nil {
			_, admSpan = tracer.StartAdmissionSpan(ctx, identity.ClientID, string(identity.Tier))
		}
		denial := o.limiter.Admit(identity.ClientID, identity.TenantID, identity.Tier, req.Bytes)
		if admSpan != nil {
			admSpan.End()
		}
		if denial != nil {
			denial.CorrelationID = correlationID
			o.mu.Lock()
			o.rateLimited++
			o.mu.Unlock()
			return denyTraced(denial)
		}
	}

	// Phases 4 and 5: dispatch with completion pinned by defer so the
	// slot release and outcome fan-out survive handler panics.
	var (
		response    *models.HandlerResponse
		dispatchErr error
	)

	func() {
		defer func() {
			if r := recover(); r != nil {
				dispatchErr = fmt.Errorf("handler panic: %v", r)
				o.logger.Error("Handler panicked",
					"correlation_id", correlationID, "path", req.Path, "panic", r)
			}
		}()
		if tracer != nil {
			dispatchCtx, dispatchSpan := tracer.StartDispatchSpan(ctx, req.Path)
			defer dispatchSpan.End()
			response, dispatchErr = handler(dispatchCtx)
			return
		}
		response, dispatchErr = handler(ctx)
	}()

	elapsed := o.now().Sub(started)
	o.complete(req, identity, resolved, response, dispatchErr, elapsed)

	if dispatchErr != nil {
		if span != nil {
			tracer.RecordError(span, dispatchErr)
			tracer.RecordOutcome(span, "faulted", elapsed, false)
		}
		return models.GatewayResult{
			Status:        models.StatusFaulted,
			Err:           dispatchErr,
			CorrelationID: correlationID,
			Elapsed:       elapsed,
		}
	}
	if span != nil {
		tracer.RecordOutcome(span, "admitted", elapsed, true)
	}
	return models.GatewayResult{
		Status:        models.StatusAdmitted,
		Response:      response,
		CorrelationID: correlationID,
		Elapsed:       elapsed,
	}
}

// deny finalizes a rejected request. Denied requests never dispatch, so
// they touch the counters and the audit trail but not the service-level
// accumulators.
func (o *Orchestrator) deny(req models.InboundRequest, identity models.RequestContext, denial *models.Denial, started time.Time) models.GatewayResult {
	elapsed := o.now().Sub(started)

	if o.metrics != nil {
		o.metrics.RecordDenial(string(denial.Reason), string(denial.Dimension))
	}
	o.audit.Record("request_denied", string(denial.Reason), identity.TenantID, identity.ClientID, map[string]interface{}{
		"path":           req.Path,
		"dimension":      string(denial.Dimension),
		"correlation_id": denial.CorrelationID,
	})
	o.logger.Warn("Request denied",
		"reason", denial.Reason,
		"dimension", denial.Dimension,
		"client", identity.ClientID,
		"correlation_id", denial.CorrelationID,
	)

	return models.GatewayResult{
		Status:        models.StatusDenied,
		Denial:        denial,
		CorrelationID: denial.CorrelationID,
		Elapsed:       elapsed,
	}
}

// complete is the single completion path for every dispatched request: the
// concurrency slot is released and the outcome fans out to the SLA engine,
// the health monitor, and the rolling latency buffer. Unresolved requests
// never reserved a slot, so there is nothing to release; their outcome
// still feeds the global endpoint statistics.
func (o *Orchestrator) complete(req models.InboundRequest, identity models.RequestContext, resolved bool, response *models.HandlerResponse, dispatchErr error, elapsed time.Duration) {
	if resolved {
		o.limiter.Release(identity.ClientID)
	}

	statusCode := 0
	var bytes int64
	if response != nil {
		statusCode = response.StatusCode
		bytes = response.Bytes
	}
	if dispatchErr != nil && statusCode == 0 {
		statusCode = 500
	}
	success := dispatchErr == nil && statusCode < 500

	outcome := models.RequestOutcome{
		TenantID:   identity.TenantID,
		ClientID:   identity.ClientID,
		Method:     req.Method,
		Path:       req.Path,
		StatusCode: statusCode,
		Success:    success,
		Latency:    elapsed,
		Bytes:      bytes,
		Timestamp:  o.now(),
	}
	o.slas.RecordOutcome(outcome)
	o.monitor.RecordOutcome(outcome)

	o.mu.Lock()
	if dispatchErr != nil {
		o.internalFaults++
	}
	if success {
		o.successCount++
	} else {
		o.failedCount++
	}
	if len(o.responseTimes) < o.sampleCap {
		o.responseTimes = append(o.responseTimes, float64(elapsed.Milliseconds()))
	} else {
		o.responseTimes[o.writeIdx] = float64(elapsed.Milliseconds())
	}
	o.writeIdx = (o.writeIdx + 1) % o.sampleCap
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.RecordAdmission(req.Method, statusCode, elapsed, success)
	}
	if dispatchErr != nil {
		o.audit.Record("request_faulted", "internal_error", identity.TenantID, identity.ClientID, map[string]interface{}{
			"path":  req.Path,
			"error": dispatchErr.Error(),
		})
	}
}
