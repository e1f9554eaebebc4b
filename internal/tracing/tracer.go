package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerProvider manages the lifecycle of the OpenTelemetry tracer
type TracerProvider struct {
	tp *sdktrace.TracerProvider
}

// AdmissionTracer provides distributed tracing for the admission pipeline
type AdmissionTracer struct {
	tracer trace.Tracer
}

// NewTracerProvider creates a new OpenTelemetry tracer provider
func NewTracerProvider(serviceName, serviceVersion, otlpEndpoint string) (*TracerProvider, error) {
	exporter, err := otlptracegrpc.New(
		context.Background(),
		otlptracegrpc.WithEndpoint(otlpEndpoint),
		otlptracegrpc.WithInsecure(), // TODO: Add TLS configuration
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
			semconv.ServiceNamespaceKey.String("sentinel-gate"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)

	return &TracerProvider{tp: tp}, nil
}

// Shutdown gracefully shuts down the tracer provider
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.tp.Shutdown(ctx)
}

// NewAdmissionTracer creates a new admission tracer
func NewAdmissionTracer(serviceName string) *AdmissionTracer {
	tracer := otel.Tracer(serviceName)
	return &AdmissionTracer{tracer: tracer}
}

// StartRequestSpan starts the root span for one gated request
func (at *AdmissionTracer) StartRequestSpan(ctx context.Context, correlationID, method, path string) (context.Context, trace.Span) {
	ctx, span := at.tracer.Start(ctx, "gated_request",
		trace.WithAttributes(
			attribute.String("request.correlation_id", correlationID),
			attribute.String("request.method", method),
			attribute.String("request.path", path),
			attribute.String("component", "gateway"),
		),
	)
	return ctx, span
}

// StartAdmissionSpan starts a span for the quota admission check
func (at *AdmissionTracer) StartAdmissionSpan(ctx context.Context, clientID string, tier string) (context.Context, trace.Span) {
	ctx, span := at.tracer.Start(ctx, "admission_check",
		trace.WithAttributes(
			attribute.String("admission.client_id", clientID),
			attribute.String("admission.tier", tier),
			attribute.String("component", "rate-limiter"),
		),
	)
	return ctx, span
}

// StartDispatchSpan starts a span for the protected handler dispatch
func (at *AdmissionTracer) StartDispatchSpan(ctx context.Context, path string) (context.Context, trace.Span) {
	ctx, span := at.tracer.Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("dispatch.path", path),
			attribute.String("component", "gateway"),
		),
	)
	return ctx, span
}

// RecordOutcome records the pipeline outcome on a span
func (at *AdmissionTracer) RecordOutcome(span trace.Span, status string, duration time.Duration, success bool) {
	span.SetAttributes(
		attribute.String("request.status", status),
		attribute.Int64("request.duration_ms", duration.Milliseconds()),
		attribute.Bool("request.success", success),
	)

	if !success {
		span.SetStatus(codes.Error, "request failed")
	}
}

// RecordDenial annotates a span with the denial verdict
func (at *AdmissionTracer) RecordDenial(span trace.Span, reason, dimension string) {
	span.SetAttributes(
		attribute.String("denial.reason", reason),
		attribute.String("denial.dimension", dimension),
	)
	span.SetStatus(codes.Error, "request denied")
}

// RecordError records an error on a span
func (at *AdmissionTracer) RecordError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attrs...)
	span.RecordError(err)
}

// Global tracer instance
var globalAdmissionTracer *AdmissionTracer

// InitGlobalTracer initializes the global admission tracer
func InitGlobalTracer(serviceName string) {
	globalAdmissionTracer = NewAdmissionTracer(serviceName)
}

// GetGlobalTracer returns the global admission tracer
func GetGlobalTracer() *AdmissionTracer {
	return globalAdmissionTracer
}
