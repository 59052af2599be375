package pipeline

import (
	"context"
	"sync"
	"time"

	"proofdeps/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("proofdeps.pipeline")
	meter  = otel.Meter("proofdeps.pipeline")
)

var (
	runLatency  metric.Float64Histogram
	runTotal    metric.Int64Counter
	edgesBuilt  metric.Int64Histogram
	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runLatency, err = meter.Float64Histogram(
			"proofdeps_run_duration_seconds",
			metric.WithDescription("Duration of analysis runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runTotal, err = meter.Int64Counter(
			"proofdeps_run_total",
			metric.WithDescription("Total number of analysis runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		edgesBuilt, err = meter.Int64Histogram(
			"proofdeps_edges_built",
			metric.WithDescription("Resolved line edges per run"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func recordRunMetrics(ctx context.Context, duration time.Duration, res *Result, err error) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", err == nil))
	runLatency.Record(ctx, duration.Seconds(), attrs)
	runTotal.Add(ctx, 1, attrs)
	if res != nil && res.Graph != nil {
		edgesBuilt.Record(ctx, int64(len(res.Graph.Edges())))
	}
}

func startRunSpan(ctx context.Context, cfg *config.Config) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pipeline.Run",
		trace.WithAttributes(
			attribute.String("trace.dir", cfg.Trace.Dir),
			attribute.String("trace.schema", cfg.Trace.Schema),
		),
	)
}
