package tracing

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kestrel-ai/researchd/internal/config"
)

var tracer oteltrace.Tracer

// Initialize sets up minimal OTLP tracing. A tracer handle is always
// installed so StartSpan never panics when tracing is disabled.
func Initialize(cfg config.Tracing, logger *zap.Logger) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "researchd"
	}
	tracer = otel.Tracer(cfg.ServiceName)

	if !cfg.Enabled {
		logger.Info("Tracing disabled")
		return nil
	}
	if cfg.OTLPEndpoint == "" {
		cfg.OTLPEndpoint = "localhost:4317"
	}

	exporter, err := otlptracegrpc.New(
		context.Background(),
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer(cfg.ServiceName)

	logger.Info("Tracing initialized", zap.String("endpoint", cfg.OTLPEndpoint))
	return nil
}

// StartSpan creates a new span with the given name.
func StartSpan(ctx context.Context, spanName string) (context.Context, oteltrace.Span) {
	if tracer == nil {
		tracer = otel.Tracer("researchd")
	}
	return tracer.Start(ctx, spanName)
}

// W3CTraceparent generates a W3C traceparent header value for the current span.
func W3CTraceparent(ctx context.Context) string {
	span := oteltrace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	sc := span.SpanContext()
	return fmt.Sprintf("00-%s-%s-%02x",
		sc.TraceID().String(),
		sc.SpanID().String(),
		sc.TraceFlags(),
	)
}

// InjectTraceparent adds the W3C traceparent header to an outgoing request.
func InjectTraceparent(ctx context.Context, req *http.Request) {
	if traceparent := W3CTraceparent(ctx); traceparent != "" {
		req.Header.Set("traceparent", traceparent)
	}
}
