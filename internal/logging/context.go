package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := RunIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("run.id", id))
	}
	if repo := RepositoryFromContext(ctx); repo != "" {
		fields = append(fields, zap.String("repo", repo))
	}
	if p, ok := ctx.Value(pathCtxKey{}).(string); ok {
		fields = append(fields, zap.String("node.path", p))
	}

	return fields
}

type runCtxKey struct{}
type repoCtxKey struct{}
type pathCtxKey struct{}
type loggerCtxKey struct{}

// WithRunID tags the context with the identifier of one describe run.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runCtxKey{}, id)
}

// RunIDFromContext returns the run identifier, or "".
func RunIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(runCtxKey{}).(string)
	return s
}

// WithRepository tags the context with "owner/name".
func WithRepository(ctx context.Context, repo string) context.Context {
	return context.WithValue(ctx, repoCtxKey{}, repo)
}

// RepositoryFromContext returns the repository tag, or "".
func RepositoryFromContext(ctx context.Context) string {
	s, _ := ctx.Value(repoCtxKey{}).(string)
	return s
}

// WithPath tags the context with the tree path being processed.
func WithPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, pathCtxKey{}, path)
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
