// =============================================================================
// AgentDash OpenTelemetry setup and agent span helpers
// =============================================================================
// When telemetry is disabled no exporters are created and the global
// providers stay noop. Agents that run with their telemetry flag off use
// NoopTracer regardless of the global provider.
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/BaSui01/agentdash/config"
	"github.com/BaSui01/agentdash/types"
)

// InstrumentationName is the tracer name used by agent runtimes.
const InstrumentationName = "github.com/BaSui01/agentdash"

// Span attribute keys.
const (
	AttrAgentID   = attribute.Key("agent.id")
	AttrAgentType = attribute.Key("agent.type")
	AttrModelID   = attribute.Key("model.id")
	AttrToolName  = attribute.Key("tool.name")
	AttrCycle     = attribute.Key("agent.cycle")
	AttrTokensIn  = attribute.Key("model.tokens.input")
	AttrTokensOut = attribute.Key("model.tokens.output")
)

// Providers holds the SDK TracerProvider and MeterProvider. Both are nil
// when telemetry is disabled.
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init initializes the OTel SDK. When cfg.Enabled is false it returns noop
// Providers without connecting to any collector.
func Init(cfg config.TelemetryConfig, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}

	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(buildVersion()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.Float64("sample_rate", cfg.SampleRate),
	)

	return &Providers{tp: tp, mp: mp}, nil
}

// Shutdown flushes pending spans and metrics. Safe on noop Providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Tracer returns the agent tracer. With enabled false it returns a noop
// tracer so an agent's telemetry flag can opt out of the global provider.
func Tracer(enabled bool) trace.Tracer {
	if !enabled {
		return NoopTracer()
	}
	return otel.Tracer(InstrumentationName)
}

// NoopTracer returns a tracer that records nothing.
func NoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer(InstrumentationName)
}

// StartTurn opens the root span of one agent turn.
func StartTurn(ctx context.Context, tracer trace.Tracer, id types.AgentID, agentType types.AgentType) (context.Context, trace.Span) {
	return tracer.Start(ctx, "agent.turn",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrAgentID.String(id.String()),
			AttrAgentType.String(agentType.String()),
		),
	)
}

// StartModelCall opens a span around one model request.
func StartModelCall(ctx context.Context, tracer trace.Tracer, modelID string, cycle int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "model.converse",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrModelID.String(modelID),
			AttrCycle.Int(cycle),
		),
	)
}

// StartToolCall opens a span around one tool invocation.
func StartToolCall(ctx context.Context, tracer trace.Tracer, tool string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "tool.call",
		trace.WithAttributes(AttrToolName.String(tool)),
	)
}

// EndSpan records err on span (if any) and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// buildVersion extracts the module version from build info, falling back
// to "dev".
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
