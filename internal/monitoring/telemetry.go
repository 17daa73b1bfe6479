package monitoring

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TelemetryConfig selects the exporters installed by SetupTelemetry.
type TelemetryConfig struct {
	// MetricsFile receives the metrics in Prometheus text format on shutdown.
	// Empty disables metric export.
	MetricsFile string

	// TraceWriter receives spans as JSON. Nil disables tracing.
	TraceWriter io.Writer
}

// SetupTelemetry installs the global otel providers. The returned shutdown
// function flushes spans and writes the metrics textfile; it must be called
// before the process exits.
func SetupTelemetry(cfg TelemetryConfig) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	if cfg.TraceWriter != nil {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(cfg.TraceWriter))
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		otel.SetTracerProvider(tp)
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	}

	if cfg.MetricsFile != "" {
		reg := prometheus.NewRegistry()
		exporter, err := promexporter.New(promexporter.WithRegisterer(reg))
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
		otel.SetMeterProvider(mp)
		path := cfg.MetricsFile
		// The textfile must be written while the reader is still registered.
		shutdownFuncs = append(shutdownFuncs, func(ctx context.Context) error {
			if err := prometheus.WriteToTextfile(path, reg); err != nil {
				return fmt.Errorf("write metrics textfile: %w", err)
			}
			return mp.Shutdown(ctx)
		})
	}

	return shutdown, nil
}
