package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Exporters accepted by Setup.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// ServiceName is reported as the service.name resource attribute.
const ServiceName = "jobmatch"

// Options selects how telemetry is exported.
type Options struct {
	Exporter string        // none or stdout
	Writer   io.Writer     // destination of the stdout exporters
	Interval time.Duration // metric export period
}

// Providers owns the SDK providers installed by Setup along with the
// instruments built on them.
type Providers struct {
	Metrics *Metrics
	Tracer  *Tracer

	shutdown []func(context.Context) error
}

// Setup builds the meter and tracer providers for opts and installs them
// as the otel globals. With ExporterNone it installs nothing and the
// instruments are no-ops.
func Setup(opts Options) (*Providers, error) {
	switch opts.Exporter {
	case ExporterNone, "":
		return &Providers{Metrics: NewNoopMetrics(), Tracer: NewNoopTracer()}, nil
	case ExporterStdout:
	default:
		return nil, fmt.Errorf("unknown telemetry exporter %q", opts.Exporter)
	}
	if opts.Writer == nil {
		return nil, errors.New("stdout exporter needs a writer")
	}

	res := resource.NewSchemaless(attribute.String("service.name", ServiceName))

	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(opts.Writer))
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	var readerOpts []sdkmetric.PeriodicReaderOption
	if opts.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(opts.Interval))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, readerOpts...)),
	)

	traceExp, err := stdouttrace.New(stdouttrace.WithWriter(opts.Writer))
	if err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExp),
	)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	return &Providers{
		Metrics: NewMetrics(mp),
		Tracer:  NewTracer(tp),
		// Spans end before the last metric export, so traces go first.
		shutdown: []func(context.Context) error{tp.Shutdown, mp.Shutdown},
	}, nil
}

// Shutdown flushes pending telemetry and stops the providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.shutdown = nil
	if len(errs) > 0 {
		return fmt.Errorf("shutdown telemetry: %w", errors.Join(errs...))
	}
	return nil
}
