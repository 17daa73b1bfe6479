package monitoring

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for track finding.
var (
	tracer = otel.Tracer("cdctrack")
	meter  = otel.Meter("cdctrack")
)

var (
	stageDuration   metric.Float64Histogram
	stageObjects    metric.Int64Histogram
	eventsTotal     metric.Int64Counter
	rejectedTracks  metric.Int64Counter
	automatonPasses metric.Int64Counter
	cyclesBroken    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments once. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		stageDuration, err = meter.Float64Histogram(
			"cdctrack_stage_duration_seconds",
			metric.WithDescription("Duration of one pipeline stage for one event"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		stageObjects, err = meter.Int64Histogram(
			"cdctrack_stage_objects",
			metric.WithDescription("Number of objects produced by a stage for one event"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		eventsTotal, err = meter.Int64Counter(
			"cdctrack_events_total",
			metric.WithDescription("Events processed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rejectedTracks, err = meter.Int64Counter(
			"cdctrack_rejected_tracks_total",
			metric.WithDescription("Tracks removed by the quality tools or the rejecter"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		automatonPasses, err = meter.Int64Counter(
			"cdctrack_automaton_passes_total",
			metric.WithDescription("Cellular automaton passes run, by level"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cyclesBroken, err = meter.Int64Counter(
			"cdctrack_automaton_cycles_broken_total",
			metric.WithDescription("Relations ignored because they closed a cycle"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// StartSpan opens a span on the package tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordStage records the duration and output size of one stage.
func RecordStage(ctx context.Context, stage string, d time.Duration, objects int) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("stage", stage))
	stageDuration.Record(ctx, d.Seconds(), attrs)
	stageObjects.Record(ctx, int64(objects), attrs)
}

// RecordEvent counts one processed event.
func RecordEvent(ctx context.Context, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	eventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordRejectedTracks counts tracks dropped during quality control.
func RecordRejectedTracks(ctx context.Context, n int) {
	if n == 0 {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}
	rejectedTracks.Add(ctx, int64(n))
}

// RecordAutomatonPasses counts multipass iterations at one graph level.
func RecordAutomatonPasses(ctx context.Context, level string, passes int) {
	if err := initMetrics(); err != nil {
		return
	}
	automatonPasses.Add(ctx, int64(passes), metric.WithAttributes(attribute.String("level", level)))
}

// RecordCyclesBroken counts relations dropped to keep a relation graph acyclic.
func RecordCyclesBroken(ctx context.Context, level string, n int) {
	if n == 0 {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}
	cyclesBroken.Add(ctx, int64(n), metric.WithAttributes(attribute.String("level", level)))
}
