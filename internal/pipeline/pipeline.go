// Package pipeline runs one repository description end to end: walk the
// tree, summarize the annotations, upload the summary.
//
// A failed root listing or summary call aborts the run with no summary.
// A failed upload still returns the report, summary included, alongside an
// error wrapping sink.ErrStorage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repodescribe/internal/annotate"
	"github.com/fyrsmithlabs/repodescribe/internal/chunker"
	"github.com/fyrsmithlabs/repodescribe/internal/logging"
	"github.com/fyrsmithlabs/repodescribe/internal/sink"
	"github.com/fyrsmithlabs/repodescribe/internal/source"
	"github.com/fyrsmithlabs/repodescribe/internal/walker"
)

const instrumentationName = "github.com/fyrsmithlabs/repodescribe/internal/pipeline"

// ErrWalk wraps a failure to list the walk root.
var ErrWalk = errors.New("walk failed")

// Opener produces the Source for one repository.
type Opener interface {
	Open(ctx context.Context, repo source.Repository) (source.Source, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, repo source.Repository) (source.Source, error)

func (f OpenerFunc) Open(ctx context.Context, repo source.Repository) (source.Source, error) {
	return f(ctx, repo)
}

// Summarizer reduces annotations to a paragraph.
type Summarizer interface {
	Summarize(ctx context.Context, anns []annotate.Annotation) (string, error)
}

// ownerLookup is implemented by sources that can name the repository owner.
type ownerLookup interface {
	Owner(ctx context.Context) (string, error)
}

// Request names the repository to describe.
type Request struct {
	Repository source.Repository
	// Author overrides the owner recorded in the summary metadata.
	Author string
	// Namespace overrides the pipeline namespace for this run.
	Namespace string
}

// Report is the outcome of one run.
type Report struct {
	RunID      string                  `json:"run_id"`
	Repository string                  `json:"repository"`
	Namespace  string                  `json:"namespace"`
	Summary    *sink.RepositorySummary `json:"summary,omitempty"`
	Stored     bool                    `json:"stored"`
	Stats      walker.Stats            `json:"stats"`
	Failures   []walker.Failure        `json:"failures,omitempty"`
	DurationMS int64                   `json:"duration_ms"`
}

// Pipeline is safe for concurrent runs.
type Pipeline struct {
	opener     Opener
	chunker    *chunker.Chunker
	annotator  walker.Annotator
	summarizer Summarizer
	sink       sink.Sink
	namespace  string
	walkerOpts []walker.Option
	logger     *logging.Logger
	tracer     trace.Tracer
	metrics    *runMetrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithNamespace fixes the sink namespace. By default it is derived from
// the repository name.
func WithNamespace(ns string) Option {
	return func(p *Pipeline) { p.namespace = ns }
}

// WithWalkerOptions passes options to every walker.
func WithWalkerOptions(opts ...walker.Option) Option {
	return func(p *Pipeline) { p.walkerOpts = append(p.walkerOpts, opts...) }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// New assembles a Pipeline.
func New(opener Opener, c *chunker.Chunker, a walker.Annotator, s Summarizer, sk sink.Sink, opts ...Option) *Pipeline {
	p := &Pipeline{
		opener:     opener,
		chunker:    c,
		annotator:  a,
		summarizer: s,
		sink:       sk,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer(instrumentationName)
	}
	p.metrics = newRunMetrics(context.Background(), p.logger)
	return p
}

// Close releases the sink.
func (p *Pipeline) Close() error {
	if p.sink == nil {
		return nil
	}
	return p.sink.Close()
}

// Run describes req.Repository.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()
	repo := req.Repository
	report := &Report{
		RunID:      uuid.NewString(),
		Repository: repo.FullName(),
		Namespace:  p.namespaceFor(req),
	}

	ctx = logging.WithRunID(ctx, report.RunID)
	ctx = logging.WithRepository(ctx, report.Repository)
	ctx, span := p.tracer.Start(ctx, "Pipeline.Run", trace.WithAttributes(
		attribute.String("run.id", report.RunID),
		attribute.String("repository", report.Repository),
		attribute.String("namespace", report.Namespace),
	))
	defer span.End()

	err := p.run(ctx, req, report)
	report.DurationMS = time.Since(start).Milliseconds()
	p.metrics.finished(ctx, OutcomeOf(err), time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
		p.logger.Error(ctx, "run failed", zap.Error(err), zap.Int64("duration_ms", report.DurationMS))
		return report, err
	}
	p.logger.Info(ctx, "run complete",
		zap.String("namespace", report.Namespace),
		zap.Int("annotations", report.Stats.Annotated),
		zap.Int("failures", report.Stats.Failed),
		zap.Int64("duration_ms", report.DurationMS),
	)
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, req Request, report *Report) error {
	repo := req.Repository
	src, err := p.opener.Open(ctx, repo)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %w", ErrWalk, repo.FullName(), err)
	}

	opts := append([]walker.Option{walker.WithLogger(p.logger)}, p.walkerOpts...)
	set, err := walker.New(src, p.chunker, p.annotator, opts...).Walk(ctx, repo.Path)
	if set != nil {
		report.Stats = set.Stats()
		report.Failures = set.Failures()
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWalk, repo.FullName(), err)
	}
	if report.Stats.Chunks > 0 && report.Stats.Annotated == 0 {
		p.logger.Warn(ctx, "every chunk failed analysis", zap.Int("chunks", report.Stats.Chunks))
	}

	paragraph, err := p.summarizer.Summarize(ctx, set.Annotations())
	if err != nil {
		return err
	}

	summary := sink.RepositorySummary{
		Paragraph: paragraph,
		Metadata: sink.Metadata{
			ProjectName: repo.Name,
			URL:         repo.URL(),
			Author:      p.author(ctx, req, src),
		},
	}
	report.Summary = &summary

	if err := p.sink.Upload(ctx, summary.Document(), report.Namespace); err != nil {
		if !errors.Is(err, sink.ErrStorage) {
			err = fmt.Errorf("%w: %w", sink.ErrStorage, err)
		}
		return err
	}
	report.Stored = true
	return nil
}

func (p *Pipeline) namespaceFor(req Request) string {
	switch {
	case req.Namespace != "":
		return req.Namespace
	case p.namespace != "":
		return p.namespace
	default:
		return sink.NamespaceFor(req.Repository.FullName())
	}
}

func (p *Pipeline) author(ctx context.Context, req Request, src source.Source) string {
	if req.Author != "" {
		return req.Author
	}
	if ol, ok := src.(ownerLookup); ok {
		owner, err := ol.Owner(ctx)
		if err == nil && owner != "" {
			return owner
		}
		p.logger.Debug(ctx, "owner lookup failed, using repository owner", zap.Error(err))
	}
	return req.Repository.Owner
}
