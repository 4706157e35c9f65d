// Package summarize reduces a set of chunk annotations to one paragraph
// with a single analysis call.
package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repodescribe/internal/analysis"
	"github.com/fyrsmithlabs/repodescribe/internal/annotate"
	"github.com/fyrsmithlabs/repodescribe/internal/logging"
	"github.com/fyrsmithlabs/repodescribe/internal/retry"
)

const instrumentationName = "github.com/fyrsmithlabs/repodescribe/internal/summarize"

// Preamble is the instruction sent with the serialized annotations.
const Preamble = "Summarise the following list of files for a general information paragraph. " +
	"Write 5 to 6 sentences about what the project is for and what it does. " +
	"Give little weight to configuration, build and setup files. " +
	"If a README describes the project, prefer its description."

// NoContent is returned for an empty annotation set without calling out.
const NoContent = "No analyzable content was found in this repository."

// ErrAggregation is wrapped by every summarization failure.
var ErrAggregation = errors.New("aggregation failed")

// Summarizer is safe for concurrent use.
type Summarizer struct {
	analyzer analysis.Analyzer
	retrier  *retry.Retrier
	logger   *logging.Logger
	tracer   trace.Tracer
}

// Option configures a Summarizer.
type Option func(*options)

type options struct {
	policy  retry.Policy
	sleeper retry.Sleeper
	logger  *logging.Logger
	tracer  trace.Tracer
}

// WithRetry retries throttled calls under p. Without it the call is made once.
func WithRetry(p retry.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithSleeper replaces the backoff wait, for tests.
func WithSleeper(s retry.Sleeper) Option {
	return func(o *options) { o.sleeper = s }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// New returns a Summarizer backed by a.
func New(a analysis.Analyzer, opts ...Option) *Summarizer {
	o := options{
		policy: retry.Policy{MaxAttempts: 1},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(instrumentationName)
	}

	ropts := []retry.Option{retry.WithLogger(o.logger, "summary analysis")}
	if o.sleeper != nil {
		ropts = append(ropts, retry.WithSleeper(o.sleeper))
	}
	return &Summarizer{
		analyzer: a,
		retrier:  retry.New(o.policy, analysis.IsRateLimited, ropts...),
		logger:   o.logger,
		tracer:   o.tracer,
	}
}

// Summarize returns one paragraph describing anns. The order of anns does
// not affect the payload.
func (s *Summarizer) Summarize(ctx context.Context, anns []annotate.Annotation) (string, error) {
	ctx, span := s.tracer.Start(ctx, "Summarizer.Summarize", trace.WithAttributes(
		attribute.Int("summary.annotations", len(anns)),
	))
	defer span.End()

	if len(anns) == 0 {
		s.logger.Info(ctx, "no annotations to summarize")
		return NoContent, nil
	}

	payload, err := Payload(anns)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAggregation, err)
	}

	var paragraph string
	attempts, err := s.retrier.Do(ctx, func(ctx context.Context) error {
		out, err := s.analyzer.Analyze(ctx, Preamble, string(payload))
		if err != nil {
			return err
		}
		paragraph = out
		return nil
	})
	span.SetAttributes(attribute.Int("summary.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "summary failed")
		return "", fmt.Errorf("%w: %w", ErrAggregation, err)
	}

	s.logger.Debug(ctx, "repository summarized",
		zap.Int("annotations", len(anns)),
		zap.Int("payload_bytes", len(payload)),
		zap.Int("attempts", attempts),
	)
	return paragraph, nil
}

// Payload serializes anns as a JSON array sorted by path then description.
func Payload(anns []annotate.Annotation) ([]byte, error) {
	sorted := make([]annotate.Annotation, len(anns))
	copy(sorted, anns)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Path != sorted[j].Path {
			return sorted[i].Path < sorted[j].Path
		}
		return sorted[i].Description < sorted[j].Description
	})
	return json.Marshal(sorted)
}
