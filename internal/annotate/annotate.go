// Package annotate turns chunks into one-line descriptions through the
// analysis capability, retrying throttled calls with exponential backoff.
package annotate

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/repodescribe/internal/analysis"
	"github.com/fyrsmithlabs/repodescribe/internal/chunker"
	"github.com/fyrsmithlabs/repodescribe/internal/logging"
	"github.com/fyrsmithlabs/repodescribe/internal/retry"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Preamble is the fixed instruction sent with every chunk.
const Preamble = "Analyse the following text and explain in 2 sentences what it does. " +
	"If the text has no discernible function, reply with the single word 'nothing'."

// Annotation is the description produced for one chunk.
type Annotation struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

var (
	// ErrAnalysisFailure is wrapped by every AnalysisFailure.
	ErrAnalysisFailure = errors.New("chunk analysis failed")
	// ErrTransientAnalysis marks a chunk still throttled after every attempt.
	ErrTransientAnalysis = errors.New("analysis still rate limited")
	// ErrTerminalAnalysis marks a chunk that failed without throttling.
	ErrTerminalAnalysis = errors.New("analysis failed terminally")
)

// AnalysisFailure reports a chunk that produced no Annotation.
type AnalysisFailure struct {
	Name       string
	Path       string
	ChunkIndex int
	Attempts   int
	Err        error
}

func (f *AnalysisFailure) Error() string {
	return fmt.Sprintf("analyzing %s chunk %d (%d attempts): %v", f.Path, f.ChunkIndex, f.Attempts, f.Err)
}

func (f *AnalysisFailure) Unwrap() []error {
	kind := ErrTerminalAnalysis
	if analysis.IsRateLimited(f.Err) {
		kind = ErrTransientAnalysis
	}
	return []error{ErrAnalysisFailure, kind, f.Err}
}

// Scrubber redacts secrets from text before it leaves the process.
type Scrubber interface {
	Scrub(text string) string
}

// Annotator is safe for concurrent use. Retry state is per call, so chunks
// never share a backoff budget.
type Annotator struct {
	analyzer analysis.Analyzer
	retrier  *retry.Retrier
	scrubber Scrubber
	logger   *logging.Logger
	metrics  *annotateMetrics
}

// Option configures an Annotator.
type Option func(*options)

type options struct {
	scrubber Scrubber
	logger   *logging.Logger
	sleeper  retry.Sleeper
	meter    metric.Meter
}

// WithScrubber redacts chunk text before analysis.
func WithScrubber(s Scrubber) Option {
	return func(o *options) { o.scrubber = s }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSleeper replaces the backoff wait, for tests.
func WithSleeper(s retry.Sleeper) Option {
	return func(o *options) { o.sleeper = s }
}

// WithMeter records attempt metrics on m instead of the global meter.
func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// New returns an Annotator using policy for every chunk.
func New(a analysis.Analyzer, policy retry.Policy, opts ...Option) *Annotator {
	o := options{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.meter == nil {
		o.meter = defaultMeter()
	}

	ropts := []retry.Option{retry.WithLogger(o.logger, "chunk analysis")}
	if o.sleeper != nil {
		ropts = append(ropts, retry.WithSleeper(o.sleeper))
	}

	return &Annotator{
		analyzer: a,
		retrier:  retry.New(policy, analysis.IsRateLimited, ropts...),
		scrubber: o.scrubber,
		logger:   o.logger,
		metrics:  newAnnotateMetrics(o.meter, o.logger),
	}
}

// Annotate describes c. It returns an *AnalysisFailure when the call
// exhausts its attempts or fails with a non-throttling error.
func (a *Annotator) Annotate(ctx context.Context, c chunker.Chunk) (Annotation, error) {
	text := c.Text
	if a.scrubber != nil {
		text = a.scrubber.Scrub(text)
	}

	var desc string
	attempts, err := a.retrier.Do(ctx, func(ctx context.Context) error {
		out, err := a.analyzer.Analyze(ctx, Preamble, text)
		if err != nil {
			return err
		}
		desc = out
		return nil
	})
	if err != nil {
		failure := &AnalysisFailure{
			Name:       c.SourceName,
			Path:       c.SourcePath,
			ChunkIndex: c.Index,
			Attempts:   attempts,
			Err:        err,
		}
		a.metrics.record(ctx, attempts, failure)
		return Annotation{}, failure
	}
	a.metrics.record(ctx, attempts, nil)

	a.logger.Trace(ctx, "chunk annotated",
		zap.Int("chunk", c.Index),
		zap.Int("attempts", attempts),
	)
	return Annotation{Name: c.SourceName, Path: c.SourcePath, Description: desc}, nil
}
