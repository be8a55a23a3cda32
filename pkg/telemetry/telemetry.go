// Package telemetry provides OpenTelemetry distributed tracing for the
// recommendation service. It instruments the search pipeline with spans
// for each stage, supports W3C Trace Context propagation, and exports
// to OTLP or stdout.
package telemetry

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
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ShreyashSoni/llm-semantic-book-recommender"

// Config holds tracing configuration.
type Config struct {
	// Enabled turns tracing on/off.
	Enabled bool

	// Exporter selects the trace exporter: "otlp", "stdout", or "none".
	Exporter string

	// Endpoint is the OTLP collector address (e.g., "localhost:4317").
	Endpoint string

	// SampleRate controls the sampling ratio (0.0 to 1.0).
	// 1.0 = sample everything, 0.1 = sample 10%.
	SampleRate float64

	// ServiceName overrides the default service name.
	ServiceName string

	// Insecure disables TLS for the OTLP exporter.
	Insecure bool
}

// DefaultConfig returns tracing defaults (disabled).
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		Exporter:    "otlp",
		Endpoint:    "localhost:4317",
		SampleRate:  1.0,
		ServiceName: "bookrec",
		Insecure:    true,
	}
}

// Provider wraps the OTEL TracerProvider and exposes span helpers for
// the pipeline stages.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// Noop returns a provider whose spans are discarded. Components that
// accept an optional Provider use it instead of nil-checking.
func Noop() *Provider {
	return &Provider{
		tracer: trace.NewNoopTracerProvider().Tracer(tracerName),
	}
}

// Init sets up the global TracerProvider based on the config.
// Returns a Provider that must be shut down with Shutdown().
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return Noop(), nil
	}

	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.Exporter {
	case "otlp":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	case "none", "":
		return Noop(), nil
	default:
		return nil, fmt.Errorf("unsupported exporter: %q (supported: otlp, stdout, none)", cfg.Exporter)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("0.1.0"),
		),
		resource.WithProcessRuntimeDescription(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate < 1.0 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	// Set global provider and propagator
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{
		tp:     tp,
		tracer: tp.Tracer(tracerName),
	}, nil
}

// Shutdown flushes pending spans and shuts down the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// Tracer returns the tracer for creating spans.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// --- Span helpers for pipeline stages ---

// StartRequest creates a root span for an incoming HTTP request.
func (p *Provider) StartRequest(ctx context.Context, endpoint string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "bookrec.request",
		trace.WithAttributes(attribute.String("bookrec.endpoint", endpoint)),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartSearch creates a span for one pipeline run. The query text is
// deliberately not recorded.
func (p *Provider) StartSearch(ctx context.Context, category, tone string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "bookrec.search",
		trace.WithAttributes(
			attribute.String("bookrec.search.category", category),
			attribute.String("bookrec.search.tone", tone),
		),
	)
}

// StartSimilar creates a span for a similar-books lookup.
func (p *Provider) StartSimilar(ctx context.Context, isbn13 int64) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "bookrec.similar",
		trace.WithAttributes(attribute.Int64("bookrec.similar.isbn13", isbn13)),
	)
}

// StartCacheLookup creates a span for a result cache lookup.
func (p *Provider) StartCacheLookup(ctx context.Context, key string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "bookrec.cache.lookup",
		trace.WithAttributes(attribute.String("bookrec.cache.key", key)),
	)
}

// StartEmbedding creates a span for the embedding stage.
func (p *Provider) StartEmbedding(ctx context.Context, textCount int) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "bookrec.embedding",
		trace.WithAttributes(attribute.Int("bookrec.embedding.text_count", textCount)),
	)
}

// StartRetrieval creates a span for vector store retrieval.
func (p *Provider) StartRetrieval(ctx context.Context, topK int, namespace string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "bookrec.retrieval",
		trace.WithAttributes(
			attribute.Int("bookrec.retrieval.top_k", topK),
			attribute.String("bookrec.retrieval.namespace", namespace),
		),
	)
}

// StartRanking creates a span for the join/filter/rank stage.
func (p *Provider) StartRanking(ctx context.Context, candidateCount int, tone string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "bookrec.ranking",
		trace.WithAttributes(
			attribute.Int("bookrec.ranking.candidate_count", candidateCount),
			attribute.String("bookrec.ranking.tone", tone),
		),
	)
}

// StartHistory creates a span for the history write.
func (p *Provider) StartHistory(ctx context.Context, userID string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "bookrec.history",
		trace.WithAttributes(attribute.String("bookrec.history.user_id", userID)),
	)
}

// RecordCacheHit marks whether the result cache served the request.
func RecordCacheHit(span trace.Span, hit bool) {
	span.SetAttributes(attribute.Bool("bookrec.cache.hit", hit))
}

// RecordSearchResult adds pipeline counters to a span.
func RecordSearchResult(span trace.Span, retrieved, skipped, returned int, latency time.Duration) {
	span.SetAttributes(
		attribute.Int("bookrec.result.retrieved", retrieved),
		attribute.Int("bookrec.result.skipped", skipped),
		attribute.Int("bookrec.result.returned", returned),
		attribute.Int64("bookrec.result.latency_ms", latency.Milliseconds()),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetAttributes(attribute.Bool("error", true))
}
