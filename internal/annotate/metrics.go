package annotate

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repodescribe/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/repodescribe/internal/annotate"

type annotateMetrics struct {
	attempts metric.Int64Histogram
	retries  metric.Int64Counter
}

func newAnnotateMetrics(meter metric.Meter, logger *logging.Logger) *annotateMetrics {
	ctx := context.Background()
	m := &annotateMetrics{}
	var err error

	m.attempts, err = meter.Int64Histogram(
		"repodescribe.annotator.attempts",
		metric.WithDescription("Analysis calls made per chunk, labeled by outcome."),
		metric.WithUnit("{call}"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 5, 8, 10),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create attempts histogram", zap.Error(err))
	}

	m.retries, err = meter.Int64Counter(
		"repodescribe.annotator.retries_total",
		metric.WithDescription("Analysis calls repeated after throttling."),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create retries counter", zap.Error(err))
	}
	return m
}

func (m *annotateMetrics) record(ctx context.Context, attempts int, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrTransientAnalysis):
		outcome = "rate_limited"
	default:
		outcome = "failed"
	}
	if m.attempts != nil {
		m.attempts.Record(ctx, int64(attempts), metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if m.retries != nil && attempts > 1 {
		m.retries.Add(ctx, int64(attempts-1))
	}
}

func defaultMeter() metric.Meter {
	return otel.Meter(instrumentationName)
}
