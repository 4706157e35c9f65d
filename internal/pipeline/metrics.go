package pipeline

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repodescribe/internal/logging"
	"github.com/fyrsmithlabs/repodescribe/internal/sink"
	"github.com/fyrsmithlabs/repodescribe/internal/summarize"
)

// Outcome labels a finished run.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeWalk        Outcome = "walk_failed"
	OutcomeAggregation Outcome = "aggregation_failed"
	OutcomeStorage     Outcome = "storage_failed"
	OutcomeCanceled    Outcome = "canceled"
)

// OutcomeOf classifies the error returned by Run.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	case errors.Is(err, summarize.ErrAggregation):
		return OutcomeAggregation
	case errors.Is(err, sink.ErrStorage):
		return OutcomeStorage
	default:
		return OutcomeWalk
	}
}

type runMetrics struct {
	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

func newRunMetrics(ctx context.Context, logger *logging.Logger) *runMetrics {
	meter := otel.Meter(instrumentationName)
	m := &runMetrics{}
	var err error

	m.runs, err = meter.Int64Counter(
		"repodescribe.pipeline.runs_total",
		metric.WithDescription("Completed runs labeled by outcome."),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create runs counter", zap.Error(err))
	}

	m.duration, err = meter.Float64Histogram(
		"repodescribe.pipeline.run_duration_seconds",
		metric.WithDescription("Wall time of a run from open to upload."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 120, 300, 600, 1800),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create run duration histogram", zap.Error(err))
	}
	return m
}

func (m *runMetrics) finished(ctx context.Context, o Outcome, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", string(o)))
	if m.runs != nil {
		m.runs.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}
