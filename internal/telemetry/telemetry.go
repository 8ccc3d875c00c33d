// Package telemetry instruments import runs with OpenTelemetry.
//
// Providers are no-ops unless RMIMPORT_OTEL_ENABLED=true. Stdout carries
// reports and --json output, so console exporters write to stderr.
//
//	RMIMPORT_OTEL_ENABLED=true           turn instrumentation on
//	RMIMPORT_OTEL_CONSOLE=true           print spans and metrics to stderr
//	RMIMPORT_OTEL_METRIC_INTERVAL=10s    metric export period
//	OTEL_EXPORTER_OTLP_METRICS_ENDPOINT  OTLP/HTTP metrics endpoint
//	OTEL_EXPORTER_OTLP_ENDPOINT          fallback for the above
//
// An import is one short process; whatever the interval, Shutdown flushes
// the final counts of the run.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "github.com/steveyegge/rmimport"

const (
	defaultMetricInterval = 10 * time.Second
	shutdownTimeout       = 5 * time.Second
)

var shutdownFns []func(context.Context) error

// exporters is the telemetry setup read from the environment.
type exporters struct {
	enabled  bool
	console  bool
	endpoint string // OTLP/HTTP metrics, "" for none
	interval time.Duration
}

func exportersFromEnv(getenv func(string) string) exporters {
	e := exporters{
		enabled:  getenv("RMIMPORT_OTEL_ENABLED") == "true",
		console:  getenv("RMIMPORT_OTEL_CONSOLE") == "true",
		endpoint: getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"),
		interval: defaultMetricInterval,
	}
	if e.endpoint == "" {
		e.endpoint = getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if d, err := time.ParseDuration(getenv("RMIMPORT_OTEL_METRIC_INTERVAL")); err == nil && d > 0 {
		e.interval = d
	}
	return e
}

// Enabled reports whether telemetry is active (RMIMPORT_OTEL_ENABLED=true).
func Enabled() bool {
	return exportersFromEnv(os.Getenv).enabled
}

// Init installs the providers for one rmimport command. When telemetry is
// off it installs no-op providers and returns.
func Init(ctx context.Context, serviceName, version string) error {
	cfg := exportersFromEnv(os.Getenv)
	if !cfg.enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	tp, err := buildTraceProvider(res, cfg, os.Stderr)
	if err != nil {
		return fmt.Errorf("telemetry: trace provider: %w", err)
	}
	otel.SetTracerProvider(tp)
	shutdownFns = append(shutdownFns, tp.Shutdown)

	mp, err := buildMetricProvider(ctx, res, cfg, os.Stderr)
	if err != nil {
		return fmt.Errorf("telemetry: metric provider: %w", err)
	}
	otel.SetMeterProvider(mp)
	shutdownFns = append(shutdownFns, mp.Shutdown)

	return nil
}

// Spans have no network exporter and are only printed with the console on.
func buildTraceProvider(res *resource.Resource, cfg exporters, console io.Writer) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	if cfg.console {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(console), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func buildMetricProvider(ctx context.Context, res *resource.Resource, cfg exporters, console io.Writer) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.console {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(console))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.interval)),
		))
	}

	if cfg.endpoint != "" {
		exp, err := buildOTLPMetricExporter(ctx, cfg.endpoint)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.interval)),
		))
	}

	return sdkmetric.NewMeterProvider(opts...), nil
}

// Tracer returns a tracer with the given instrumentation name (or the global scope).
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter returns a meter with the given instrumentation name (or the global scope).
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

// Shutdown flushes the spans and metrics of the run and stops the providers.
// It gives up after a few seconds so an unreachable collector cannot hold
// the command open.
func Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	for _, fn := range shutdownFns {
		errs = append(errs, fn(ctx))
	}
	shutdownFns = nil
	return errors.Join(errs...)
}
