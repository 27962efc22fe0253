package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials/insecure"
)

// TracingConfig holds the tracing configuration
type TracingConfig struct {
	Enabled          bool
	ExporterType     string
	ExporterEndpoint string
	ExporterInsecure bool
	SamplingType     string
	SamplingRate     float64
	ServiceName      string
	ServiceVersion   string
}

var (
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
)

// InitTracing initializes the OpenTelemetry tracing provider
func InitTracing(ctx context.Context, cfg TracingConfig) error {
	if !cfg.Enabled {
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.ExporterType {
	case "otlp":
		exporter, err = createOTLPExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
	case "stdout":
		exporter, err = stdouttrace.New(
			stdouttrace.WithPrettyPrint(),
		)
		if err != nil {
			return fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	default:
		return fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}

	var sampler sdktrace.Sampler
	switch cfg.SamplingType {
	case "always_on":
		sampler = sdktrace.AlwaysSample()
	case "always_off":
		sampler = sdktrace.NeverSample()
	case "probabilistic":
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	default:
		sampler = sdktrace.AlwaysSample()
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer = tracerProvider.Tracer("llmguardian")

	return nil
}

// createOTLPExporter creates an OTLP gRPC exporter
func createOTLPExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.ExporterEndpoint),
	}

	if cfg.ExporterInsecure {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}

	// Connect asynchronously so a temporarily unavailable collector cannot
	// block startup.
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return otlptracegrpc.New(ctxWithTimeout, opts...)
}

// ShutdownTracing gracefully shuts down the tracing provider
func ShutdownTracing(ctx context.Context) error {
	if tracerProvider != nil {
		return tracerProvider.Shutdown(ctx)
	}
	return nil
}

// StartSpan starts a new span with the given name and options.
// Falls back to the global (noop) tracer when tracing is not initialized.
func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if tracer == nil {
		return otel.Tracer("llmguardian").Start(ctx, spanName, opts...)
	}
	return tracer.Start(ctx, spanName, opts...)
}

// SetSpanAttributes sets attributes on a span if it exists
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// RecordError records an error on a span if it exists
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
	}
}

// Span attribute keys used across the request pipeline
const (
	AttrRequestID        = "request.id"
	AttrModelRequested   = "model.requested"
	AttrModelSelected    = "model.selected"
	AttrRoutingStrategy  = "routing.strategy"
	AttrComplexityScore  = "complexity.score"
	AttrComplexityLevel  = "complexity.level"
	AttrPIIDetected      = "pii.detected"
	AttrPIICount         = "pii.count"
	AttrCacheHit         = "cache.hit"
	AttrCacheKey         = "cache.key"
	AttrCacheTier        = "cache.tier"
	AttrProviderAttempts = "provider.attempts"
	AttrPromptTokens     = "tokens.prompt"
	AttrCompletionTokens = "tokens.completion"
	AttrTokensSaved      = "tokens.saved"
	AttrFinishReason     = "provider.finish_reason"
	AttrErrorKind        = "error.kind"
)

// Span names, one per pipeline stage plus the request root
const (
	SpanRequest      = "llmguardian.request"
	SpanPIIDetection = "llmguardian.pii.detection"
	SpanPIIRedaction = "llmguardian.pii.redaction"
	SpanOptimization = "llmguardian.optimization"
	SpanComplexity   = "llmguardian.complexity.analysis"
	SpanRouting      = "llmguardian.routing.decision"
	SpanCacheLookup  = "llmguardian.cache.lookup"
	SpanProviderCall = "llmguardian.provider.call"
	SpanCacheStore   = "llmguardian.cache.store"
	SpanPIIRestore   = "llmguardian.pii.restore"
	SpanAuditSubmit  = "llmguardian.audit.submit"
)
