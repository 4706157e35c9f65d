package walker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repodescribe/internal/filter"
	"github.com/fyrsmithlabs/repodescribe/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/repodescribe/internal/walker"

// walkMetrics holds the walker instruments. Nil instruments are skipped.
type walkMetrics struct {
	chunks      metric.Int64Counter
	annotations metric.Int64Counter
	filtered    metric.Int64Counter
	failures    metric.Int64Counter
	duration    metric.Float64Histogram
}

func newWalkMetrics(ctx context.Context, logger *logging.Logger) *walkMetrics {
	meter := otel.Meter(instrumentationName)
	m := &walkMetrics{}
	var err error

	m.chunks, err = meter.Int64Counter(
		"repodescribe.walker.chunks_total",
		metric.WithDescription("Chunks produced from fetched files."),
		metric.WithUnit("{chunk}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create chunks counter", zap.Error(err))
	}

	m.annotations, err = meter.Int64Counter(
		"repodescribe.walker.annotations_total",
		metric.WithDescription("Chunk analyses by outcome (ok, failed)."),
		metric.WithUnit("{annotation}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create annotations counter", zap.Error(err))
	}

	m.filtered, err = meter.Int64Counter(
		"repodescribe.walker.entries_filtered_total",
		metric.WithDescription("Entries excluded before fetch, labeled by rule."),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create filtered counter", zap.Error(err))
	}

	m.failures, err = meter.Int64Counter(
		"repodescribe.walker.failures_total",
		metric.WithDescription("Isolated failures absorbed by the walk, labeled by kind."),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create failures counter", zap.Error(err))
	}

	m.duration, err = meter.Float64Histogram(
		"repodescribe.walker.duration_seconds",
		metric.WithDescription("Wall time of a full tree walk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 120, 300, 600, 1800),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create duration histogram", zap.Error(err))
	}
	return m
}

func (m *walkMetrics) chunked(ctx context.Context, n int) {
	if m.chunks != nil {
		m.chunks.Add(ctx, int64(n))
	}
}

func (m *walkMetrics) annotated(ctx context.Context, ok bool) {
	if m.annotations == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.annotations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *walkMetrics) filteredOut(ctx context.Context, reason filter.Reason) {
	if m.filtered != nil {
		m.filtered.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
	}
}

func (m *walkMetrics) failed(ctx context.Context, kind FailureKind) {
	if m.failures != nil {
		m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
	}
}

func (m *walkMetrics) finished(ctx context.Context, elapsed time.Duration) {
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds())
	}
}
