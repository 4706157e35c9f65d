package mcp

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repodescribe/internal/pipeline"
	"github.com/fyrsmithlabs/repodescribe/internal/sink"
)

const instrumentationName = "github.com/fyrsmithlabs/repodescribe/internal/mcp"

// outcomeInvalidInput labels calls rejected before a run starts.
const outcomeInvalidInput pipeline.Outcome = "invalid_input"

// inputError rejects a tool argument.
type inputError struct {
	field string
	err   error
}

func (e *inputError) Error() string {
	if errors.Is(e.err, sink.ErrInvalidNamespace) {
		return e.err.Error()
	}
	return "invalid " + e.field + ": " + e.err.Error()
}

func (e *inputError) Unwrap() error { return e.err }

// Metrics instruments describe_repository calls by run outcome.
type Metrics struct {
	calls    metric.Int64Counter
	duration metric.Float64Histogram
	skipped  metric.Int64Counter
	inFlight metric.Int64UpDownCounter
}

// NewMetrics registers the instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	m := &Metrics{}
	var err error

	m.calls, err = meter.Int64Counter(
		"repodescribe.mcp.describe.calls_total",
		metric.WithDescription("describe_repository calls by outcome and whether the summary was stored."),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		logger.Warn("failed to create calls counter", zap.Error(err))
	}

	// Runs walk whole repositories, so buckets reach half an hour.
	m.duration, err = meter.Float64Histogram(
		"repodescribe.mcp.describe.duration_seconds",
		metric.WithDescription("describe_repository latency by outcome."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 120, 300, 600, 1800),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.skipped, err = meter.Int64Counter(
		"repodescribe.mcp.describe.skipped_total",
		metric.WithDescription("Files and chunks that contributed nothing to a summary, by failure kind."),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		logger.Warn("failed to create skipped counter", zap.Error(err))
	}

	m.inFlight, err = meter.Int64UpDownCounter(
		"repodescribe.mcp.describe.in_flight",
		metric.WithDescription("describe_repository calls currently running."),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		logger.Warn("failed to create in-flight counter", zap.Error(err))
	}
	return m
}

// begin marks a call in flight. The returned func records its outcome once
// the run returns; report may be nil.
func (m *Metrics) begin(ctx context.Context) func(report *pipeline.Report, err error) {
	start := time.Now()
	if m.inFlight != nil {
		m.inFlight.Add(ctx, 1)
	}
	return func(report *pipeline.Report, err error) {
		if m.inFlight != nil {
			m.inFlight.Add(ctx, -1)
		}
		outcome := attribute.String("outcome", string(outcomeOf(err)))
		stored := report != nil && report.Stored

		if m.calls != nil {
			m.calls.Add(ctx, 1, metric.WithAttributes(outcome, attribute.String("stored", strconv.FormatBool(stored))))
		}
		if m.duration != nil {
			m.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(outcome))
		}
		if m.skipped != nil && report != nil {
			byKind := map[string]int64{}
			for _, f := range report.Failures {
				byKind[string(f.Kind)]++
			}
			for kind, n := range byKind {
				m.skipped.Add(ctx, n, metric.WithAttributes(attribute.String("kind", kind)))
			}
		}
	}
}

// outcomeOf extends pipeline.OutcomeOf with rejected input.
func outcomeOf(err error) pipeline.Outcome {
	var ie *inputError
	if errors.As(err, &ie) {
		return outcomeInvalidInput
	}
	return pipeline.OutcomeOf(err)
}
