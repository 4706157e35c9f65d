// Package walker traverses a repository tree and annotates every eligible
// file.
//
// Work is scheduled on an explicit queue drained by a fixed number of
// workers: a directory listing pushes its children, a fetched file pushes
// one task per chunk. Every external call (listing, fetch, analysis) runs on
// a worker, so Concurrency caps in-flight calls regardless of tree depth.
// Failures below the root are absorbed into the failure log and never stop
// sibling work; the walk returns once every task has settled.
package walker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/repodescribe/internal/annotate"
	"github.com/fyrsmithlabs/repodescribe/internal/chunker"
	"github.com/fyrsmithlabs/repodescribe/internal/filter"
	"github.com/fyrsmithlabs/repodescribe/internal/logging"
	"github.com/fyrsmithlabs/repodescribe/internal/source"
)

// DefaultConcurrency is the worker count when none is configured.
const DefaultConcurrency = 8

// Annotator describes one chunk.
type Annotator interface {
	Annotate(ctx context.Context, c chunker.Chunk) (annotate.Annotation, error)
}

// NodeState is the lifecycle position of one tree node.
type NodeState int

const (
	StatePending NodeState = iota
	StateListing
	StateFilteredOut
	StateFetching
	StateChunking
	StateAnnotating
	StateDone
)

func (s NodeState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateListing:
		return "listing"
	case StateFilteredOut:
		return "filtered_out"
	case StateFetching:
		return "fetching"
	case StateChunking:
		return "chunking"
	case StateAnnotating:
		return "annotating"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("NodeState(%d)", int(s))
	}
}

// Terminal reports whether no further transition follows s.
func (s NodeState) Terminal() bool {
	return s == StateFilteredOut || s == StateDone
}

// Observer is told about every node transition. It is called from worker
// goroutines and must be safe for concurrent use.
type Observer func(path string, typ source.EntryType, state NodeState)

// node tracks outstanding work below one directory or file. A node is done
// when its own work and every child it scheduled has settled.
type node struct {
	name      string
	path      string
	typ       source.EntryType
	parent    *node
	remaining atomic.Int64
}

func newNode(e source.Entry, parent *node) *node {
	n := &node{name: e.Name, path: e.Path, typ: e.Type, parent: parent}
	n.remaining.Store(1)
	return n
}

// Walker is safe for concurrent use; each Walk has its own queue and set.
type Walker struct {
	src         source.Source
	chunker     *chunker.Chunker
	annotator   Annotator
	filter      *filter.Filter
	concurrency int
	overrides   string
	logger      *logging.Logger
	tracer      trace.Tracer
	observer    Observer
}

// Option configures a Walker.
type Option func(*Walker)

// WithConcurrency sets the worker count.
func WithConcurrency(n int) Option {
	return func(w *Walker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithFilter replaces the default denylist.
func WithFilter(f *filter.Filter) Option {
	return func(w *Walker) { w.filter = f }
}

// WithOverridesFile sets the root file read for per-repository exclusions.
// An empty name disables overrides.
func WithOverridesFile(name string) Option {
	return func(w *Walker) { w.overrides = name }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Walker) { w.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(w *Walker) { w.tracer = t }
}

// WithObserver registers a transition callback.
func WithObserver(o Observer) Option {
	return func(w *Walker) { w.observer = o }
}

// New returns a Walker over src.
func New(src source.Source, c *chunker.Chunker, a Annotator, opts ...Option) *Walker {
	w := &Walker{
		src:         src,
		chunker:     c,
		annotator:   a,
		filter:      filter.Default(),
		concurrency: DefaultConcurrency,
		overrides:   filter.OverridesFile,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.tracer == nil {
		w.tracer = otel.Tracer(instrumentationName)
	}
	return w
}

// run is the state of one Walk.
type run struct {
	*Walker
	q       *queue
	set     *AnnotationSet
	filter  *filter.Filter
	metrics *walkMetrics
}

// Walk annotates every eligible file below root. A failed root listing is
// returned as an error; every other failure is recorded in the set's
// failure log. A canceled ctx stops scheduling and returns ctx.Err()
// together with whatever was collected.
func (w *Walker) Walk(ctx context.Context, root string) (*AnnotationSet, error) {
	ctx, span := w.tracer.Start(ctx, "Walker.Walk", trace.WithAttributes(
		attribute.String("walk.root", root),
		attribute.Int("walk.concurrency", w.concurrency),
	))
	defer span.End()
	start := time.Now()

	r := &run{
		Walker:  w,
		q:       newQueue(),
		set:     NewAnnotationSet(),
		filter:  w.filter,
		metrics: newWalkMetrics(ctx, w.logger),
	}

	rootNode := newNode(source.Entry{Path: root, Type: source.TypeDir}, nil)
	r.observe(rootNode, StateListing)
	entries, err := r.list(ctx, root)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "root listing failed")
		return nil, err
	}
	r.set.dirs.Add(1)
	r.filter = r.rootFilter(ctx, entries)
	r.schedule(ctx, rootNode, entries)

	stop := context.AfterFunc(ctx, r.q.close)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			r.work(gctx)
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	r.metrics.finished(ctx, elapsed)
	stats := r.set.Stats()
	span.SetAttributes(
		attribute.Int("walk.files", stats.Files),
		attribute.Int("walk.chunks", stats.Chunks),
		attribute.Int("walk.annotations", stats.Annotated),
		attribute.Int("walk.failures", stats.Failed),
	)

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "walk canceled")
		return r.set, err
	}

	w.logger.Info(ctx, "walk complete",
		zap.String("root", root),
		zap.Int("directories", stats.Directories),
		zap.Int("files", stats.Files),
		zap.Int("filtered", stats.Filtered),
		zap.Int("chunks", stats.Chunks),
		zap.Int("annotations", stats.Annotated),
		zap.Int("failures", stats.Failed),
		zap.Duration("duration", elapsed),
	)
	return r.set, nil
}

func (r *run) work(ctx context.Context) {
	for {
		t, ok := r.q.pop()
		if !ok {
			return
		}
		switch t.kind {
		case taskList:
			r.walkDir(ctx, t.node)
		case taskFile:
			r.processFile(ctx, t.node)
		case taskChunk:
			r.annotateChunk(ctx, t.node, t.chunk)
		}
		r.q.done()
	}
}

func (r *run) list(ctx context.Context, path string) ([]source.Entry, error) {
	ctx, span := r.tracer.Start(ctx, "Walker.List", trace.WithAttributes(attribute.String("node.path", path)))
	defer span.End()

	entries, err := r.src.List(ctx, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("node.entries", len(entries)))
	return entries, nil
}

// rootFilter extends the filter with the root overrides file, if present.
func (r *run) rootFilter(ctx context.Context, entries []source.Entry) *filter.Filter {
	if r.overrides == "" {
		return r.filter
	}
	for _, e := range entries {
		if e.Type != source.TypeFile || e.Name != r.overrides {
			continue
		}
		data, err := r.src.Fetch(ctx, e.Path)
		if err != nil {
			r.logger.Warn(ctx, "ignoring unreadable overrides file", zap.String("path", e.Path), zap.Error(err))
			return r.filter
		}
		o, err := filter.ParseOverrides(data)
		if err != nil {
			r.logger.Warn(ctx, "ignoring invalid overrides file", zap.String("path", e.Path), zap.Error(err))
			return r.filter
		}
		r.logger.Debug(ctx, "applied overrides file",
			zap.String("path", e.Path),
			zap.Strings("exclude_names", o.ExcludeNames),
			zap.Strings("exclude_extensions", o.ExcludeExtensions),
			zap.Strings("exclude_dirs", o.ExcludeDirs),
		)
		return r.filter.With(o)
	}
	return r.filter
}

// schedule filters entries, queues the survivors under parent, then
// releases the parent's own hold.
func (r *run) schedule(ctx context.Context, parent *node, entries []source.Entry) {
	for _, e := range entries {
		if reason := r.filter.Check(e); reason != filter.Included {
			r.set.filtered.Add(1)
			r.metrics.filteredOut(ctx, reason)
			r.logger.Trace(ctx, "entry filtered", zap.String("path", e.Path), zap.String("reason", string(reason)))
			r.notify(e.Path, e.Type, StateFilteredOut)
			continue
		}

		child := newNode(e, parent)
		parent.remaining.Add(1)
		r.observe(child, StatePending)
		switch e.Type {
		case source.TypeDir:
			r.q.push(task{kind: taskList, node: child})
		case source.TypeFile:
			r.q.push(task{kind: taskFile, node: child})
		}
	}
	r.release(parent)
}

func (r *run) walkDir(ctx context.Context, n *node) {
	if ctx.Err() != nil {
		return
	}
	r.observe(n, StateListing)
	entries, err := r.list(ctx, n.path)
	if err != nil {
		r.record(ctx, Failure{Kind: FailureListing, Name: n.name, Path: n.path, Err: err})
		r.release(n)
		return
	}
	r.set.dirs.Add(1)
	r.schedule(ctx, n, entries)
}

func (r *run) processFile(ctx context.Context, n *node) {
	if ctx.Err() != nil {
		return
	}
	ctx, span := r.tracer.Start(ctx, "Walker.ProcessFile", trace.WithAttributes(attribute.String("node.path", n.path)))
	defer span.End()

	r.observe(n, StateFetching)
	data, err := r.src.Fetch(ctx, n.path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		r.record(ctx, Failure{Kind: FailureRetrieval, Name: n.name, Path: n.path, Err: err})
		r.release(n)
		return
	}
	r.set.files.Add(1)

	if looksBinary(data) {
		r.logger.Debug(ctx, "chunking content that looks binary",
			zap.String("path", n.path),
			zap.Int("bytes", len(data)),
		)
	}

	r.observe(n, StateChunking)
	chunks := r.chunker.SplitFile(n.name, n.path, string(data))
	r.set.chunks.Add(int64(len(chunks)))
	r.metrics.chunked(ctx, len(chunks))
	span.SetAttributes(attribute.Int("node.chunks", len(chunks)))

	if len(chunks) > 0 {
		r.observe(n, StateAnnotating)
		n.remaining.Add(int64(len(chunks)))
		for _, c := range chunks {
			r.q.push(task{kind: taskChunk, node: n, chunk: c})
		}
	}
	r.release(n)
}

func (r *run) annotateChunk(ctx context.Context, n *node, c chunker.Chunk) {
	if ctx.Err() != nil {
		return
	}
	ann, err := r.annotator.Annotate(logging.WithPath(ctx, c.SourcePath), c)
	if err != nil {
		r.metrics.annotated(ctx, false)
		r.record(ctx, Failure{Kind: FailureAnalysis, Name: c.SourceName, Path: c.SourcePath, ChunkIndex: c.Index, Err: err})
	} else {
		r.metrics.annotated(ctx, true)
		r.set.add(ann)
	}
	r.release(n)
}

// release drops one hold on n and walks completion up the tree.
func (r *run) release(n *node) {
	for n != nil && n.remaining.Add(-1) == 0 {
		r.observe(n, StateDone)
		n = n.parent
	}
}

func (r *run) record(ctx context.Context, f Failure) {
	if errors.Is(f.Err, context.Canceled) && ctx.Err() != nil {
		return
	}
	r.set.fail(f)
	r.metrics.failed(ctx, f.Kind)
	fields := []zap.Field{
		zap.String("kind", string(f.Kind)),
		zap.String("name", f.Name),
		zap.String("path", f.Path),
		zap.Error(f.Err),
	}
	if f.Kind == FailureAnalysis {
		fields = append(fields, zap.Int("chunk", f.ChunkIndex))
	}
	r.logger.Warn(ctx, "node failed, skipping", fields...)
}

func (r *run) observe(n *node, state NodeState) {
	r.notify(n.path, n.typ, state)
}

func (r *run) notify(path string, typ source.EntryType, state NodeState) {
	if r.observer != nil {
		r.observer(path, typ, state)
	}
}

// looksBinary reports content where more than one byte in ten is NUL.
func looksBinary(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	return bytes.Count(data, []byte{0})*10 > len(data)
}
