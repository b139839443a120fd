package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Span exporters selectable from configuration
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Config selects where finished spans are written.
type Config struct {
	ServiceName string
	// Exporter is "none" (spans are not recorded) or "stdout".
	Exporter string
	// Output receives stdout exporter lines. Defaults to os.Stdout.
	Output io.Writer
	// SampleRatio is the fraction of root spans kept; 0 means all.
	SampleRatio float64
}

// Provider owns the installed tracer provider. A zero Provider is a no-op.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Enabled reports whether spans are being exported
func (p *Provider) Enabled() bool {
	return p != nil && p.tp != nil
}

// Shutdown flushes pending spans and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// Setup builds the exporter named by cfg and installs it globally. With
// the none exporter the global no-op tracer stays in place.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Exporter)) {
	case "", ExporterNone:
		return &Provider{}, nil
	case ExporterStdout:
		out := cfg.Output
		if out == nil {
			out = os.Stdout
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(out))
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		return Install(ctx, cfg, sdktrace.WithBatcher(exp))
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
}

// Install creates a tracer provider for cfg.ServiceName with the given
// span processors and makes it the global provider.
func Install(ctx context.Context, cfg Config, opts ...sdktrace.TracerProviderOption) (*Provider, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	opts = append(opts,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp}, nil
}

// StartSpan starts a span tagged with the session and backend found in ctx.
// The returned context carries the span's trace ID for log correlation.
// When spans are not recorded a random trace ID is kept instead.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	if id := GetSessionID(ctx); id != "" {
		attrs = append(attrs, attribute.String("oracle.session_id", id))
	}
	if backend := GetBackend(ctx); backend != "" {
		attrs = append(attrs, attribute.String("oracle.backend", backend))
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))

	if sc := span.SpanContext(); sc.IsValid() {
		ctx = WithTraceID(ctx, sc.TraceID().String())
	} else if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}

	return ctx, span
}
