// Package observability wires OpenTelemetry tracing and metrics into
// the audit pipeline: one span tree per episode run (compile, detect,
// assert, finalize) and counters for facts, assertion outcomes, and
// detector errors, all exported over OTLP gRPC. Telemetry is off by
// default; a runner that wants it enables the provider from its
// profile and hands it to the engine. Nop() returns an inert provider
// for everything else.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// instrumentationName scopes every tracer and meter this package hands out.
const instrumentationName = "arbiter.verification"

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string        // gRPC collector endpoint, e.g. "localhost:4317"
	SampleRate     float64       // 0.0 to 1.0; 1.0 samples every run
	BatchTimeout   time.Duration // how long spans batch before export
	Enabled        bool
	Insecure       bool // plaintext gRPC, dev collectors only
}

// DefaultConfig returns dev-collector defaults with telemetry off.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:  "arbiter",
		Environment:  "development",
		OTLPEndpoint: "localhost:4317",
		SampleRate:   1.0,
		BatchTimeout: 5 * time.Second,
		Enabled:      false,
	}
}

// Provider manages the OpenTelemetry trace and metric providers.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	auditCounter  metric.Int64Counter
	errorCounter  metric.Int64Counter
	durationHist  metric.Float64Histogram
	activeAudits  metric.Int64UpDownCounter
	factCounter   metric.Int64Counter
	resultCounter metric.Int64Counter
	detectorErrs  metric.Int64Counter
}

// Nop returns a provider that records nothing. It backs components
// whose telemetry was never configured.
func Nop() *Provider {
	return &Provider{
		config: &Config{},
		tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:  metricnoop.NewMeterProvider().Meter(instrumentationName),
		logger: slog.Default().With("component", "observability"),
	}
}

// New creates an observability provider. A disabled config yields an
// inert provider, same as Nop.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		p := Nop()
		p.config = config
		p.logger.InfoContext(ctx, "telemetry disabled")
		return p, nil
	}

	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
			attribute.String("arbiter.component", "runner"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to init trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to init metric provider: %w", err)
	}

	p.tracer = otel.Tracer(instrumentationName,
		trace.WithInstrumentationVersion(config.ServiceVersion),
	)
	p.meter = otel.Meter(instrumentationName,
		metric.WithInstrumentationVersion(config.ServiceVersion),
	)

	if err := p.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	p.logger.InfoContext(ctx, "telemetry initialized",
		"service", config.ServiceName,
		"environment", config.Environment,
		"endpoint", config.OTLPEndpoint,
		"sample_rate", config.SampleRate,
		"insecure", config.Insecure,
	)
	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint),
	}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(p.config.BatchTimeout),
		),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint),
	}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create metric exporter: %w", err)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(15*time.Second),
		)),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initMetrics() error {
	var err error

	p.auditCounter, err = p.meter.Int64Counter("arbiter.audits.total",
		metric.WithDescription("Total number of episode audits started"),
		metric.WithUnit("{audit}"),
	)
	if err != nil {
		return err
	}

	p.errorCounter, err = p.meter.Int64Counter("arbiter.errors.total",
		metric.WithDescription("Total number of failed audit operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	p.durationHist, err = p.meter.Float64Histogram("arbiter.audit.duration",
		metric.WithDescription("Episode audit duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return err
	}

	p.activeAudits, err = p.meter.Int64UpDownCounter("arbiter.audits.active",
		metric.WithDescription("Number of audits currently in flight"),
		metric.WithUnit("{audit}"),
	)
	if err != nil {
		return err
	}

	p.factCounter, err = p.meter.Int64Counter("arbiter.facts.total",
		metric.WithDescription("Facts emitted by the detector stage"),
		metric.WithUnit("{fact}"),
	)
	if err != nil {
		return err
	}

	p.resultCounter, err = p.meter.Int64Counter("arbiter.assertions.total",
		metric.WithDescription("Assertion results by outcome"),
		metric.WithUnit("{assertion}"),
	)
	if err != nil {
		return err
	}

	p.detectorErrs, err = p.meter.Int64Counter("arbiter.detector_errors.total",
		metric.WithDescription("Detector failures recorded as error facts"),
		metric.WithUnit("{error}"),
	)
	return err
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown trace provider", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown metric provider", "error", err)
		}
	}
	return nil
}

// Tracer returns the configured tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer(instrumentationName)
	}
	return p.tracer
}

// Meter returns the configured meter.
func (p *Provider) Meter() metric.Meter {
	if p.meter == nil {
		return otel.Meter(instrumentationName)
	}
	return p.meter
}

// StartSpan starts a span under this provider's tracer.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, name, opts...)
}

// RecordError counts a failed operation.
func (p *Provider) RecordError(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	if p.errorCounter != nil {
		allAttrs := append(attrs, attribute.String("error.type", fmt.Sprintf("%T", err)))
		p.errorCounter.Add(ctx, 1, metric.WithAttributes(allAttrs...))
	}
}

// RecordDuration records how long an operation took.
func (p *Provider) RecordDuration(ctx context.Context, duration time.Duration, attrs ...attribute.KeyValue) {
	if p.durationHist != nil {
		p.durationHist.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
}

// RecordFacts counts facts emitted by the detector stage.
func (p *Provider) RecordFacts(ctx context.Context, count int64, attrs ...attribute.KeyValue) {
	if p.factCounter != nil {
		p.factCounter.Add(ctx, count, metric.WithAttributes(attrs...))
	}
}

// RecordAssertion counts one assertion result under its outcome.
func (p *Provider) RecordAssertion(ctx context.Context, assertionID, outcome string) {
	if p.resultCounter != nil {
		p.resultCounter.Add(ctx, 1, metric.WithAttributes(
			AttrAssertionID.String(assertionID),
			AttrOutcome.String(outcome),
		))
	}
}

// RecordDetectorError counts a detector failure.
func (p *Provider) RecordDetectorError(ctx context.Context, detectorID string) {
	if p.detectorErrs != nil {
		p.detectorErrs.Add(ctx, 1, metric.WithAttributes(AttrDetectorID.String(detectorID)))
	}
}

// TrackOperation opens the span and metrics envelope for one audit.
// The returned func closes it with the run's final error.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()

	ctx, span := p.StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)

	if p.activeAudits != nil {
		p.activeAudits.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if p.auditCounter != nil {
		p.auditCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	return ctx, func(err error) {
		duration := time.Since(start)

		if p.activeAudits != nil {
			p.activeAudits.Add(ctx, -1, metric.WithAttributes(attrs...))
		}
		p.RecordDuration(ctx, duration, attrs...)

		if err != nil {
			span.RecordError(err)
			p.RecordError(ctx, err, attrs...)
		}
		span.End()
	}
}
