package walker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/repodescribe/internal/annotate"
	"github.com/fyrsmithlabs/repodescribe/internal/chunker"
	"github.com/fyrsmithlabs/repodescribe/internal/logging"
	"github.com/fyrsmithlabs/repodescribe/internal/source"
	"github.com/fyrsmithlabs/repodescribe/internal/telemetry"
)

type annotatorFunc func(ctx context.Context, c chunker.Chunk) (annotate.Annotation, error)

func (f annotatorFunc) Annotate(ctx context.Context, c chunker.Chunk) (annotate.Annotation, error) {
	return f(ctx, c)
}

func describeAll(_ context.Context, c chunker.Chunk) (annotate.Annotation, error) {
	return annotate.Annotation{Name: c.SourceName, Path: c.SourcePath, Description: fmt.Sprintf("chunk %d", c.Index)}, nil
}

// flakySource fails selected paths of an in-memory tree.
type flakySource struct {
	source.Source
	failList  map[string]bool
	failFetch map[string]bool
}

func (f *flakySource) List(ctx context.Context, path string) ([]source.Entry, error) {
	if f.failList[path] {
		return nil, &source.RetrievalError{Op: "list", Path: path, Err: errors.New("boom")}
	}
	return f.Source.List(ctx, path)
}

func (f *flakySource) Fetch(ctx context.Context, path string) ([]byte, error) {
	if f.failFetch[path] {
		return nil, &source.RetrievalError{Op: "fetch", Path: path, Err: errors.New("boom")}
	}
	return f.Source.Fetch(ctx, path)
}

func tree(t *testing.T, files map[string]string) *flakySource {
	t.Helper()
	fs := memfs.New()
	for p, content := range files {
		require.NoError(t, util.WriteFile(fs, p, []byte(content), 0o644))
	}
	return &flakySource{Source: source.NewGitFromFS(fs), failList: map[string]bool{}, failFetch: map[string]bool{}}
}

func newChunker(t *testing.T) *chunker.Chunker {
	t.Helper()
	c, err := chunker.New(chunker.Options{
		MaxChunkSize: 1000,
		OverlapSize:  100,
		Separators:   []string{"\n\n", "\n", ".", "?", "!"},
	})
	require.NoError(t, err)
	return c
}

func paths(set *AnnotationSet) []string {
	seen := map[string]bool{}
	for _, a := range set.Annotations() {
		seen[a.Path] = true
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func TestWalk_Scenario(t *testing.T) {
	src := tree(t, map[string]string{
		"README.md":         strings.Repeat("r", 200),
		"src/main.ext":      strings.Repeat("x", 5000),
		"package-lock.json": `{"lockfileVersion": 3}`,
	})

	set, err := New(src, newChunker(t), annotatorFunc(describeAll)).Walk(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"README.md", "src/main.ext"}, paths(set))
	assert.Equal(t, 7, set.Len())

	stats := set.Stats()
	assert.Equal(t, 2, stats.Directories)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 1, stats.Filtered)
	assert.Equal(t, 7, stats.Chunks)
	assert.Equal(t, 7, stats.Annotated)
	assert.Zero(t, stats.Failed)
	assert.Empty(t, set.Failures())
}

func TestWalk_ExcludesNestedDenylistedEntries(t *testing.T) {
	src := tree(t, map[string]string{
		"a/b/c/package.json":          `{}`,
		"a/b/c/node_modules/dep/x.js": "module.exports = 1",
		"a/b/c/logo.png":              "\x89PNG",
		"a/b/c/.env":                  "SECRET=1",
		"a/b/c/keep.go":               "package c",
	})

	var fetched sync.Map
	an := annotatorFunc(func(ctx context.Context, c chunker.Chunk) (annotate.Annotation, error) {
		fetched.Store(c.SourcePath, true)
		return describeAll(ctx, c)
	})

	set, err := New(src, newChunker(t), an).Walk(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b/c/keep.go"}, paths(set))
	assert.Equal(t, 4, set.Stats().Filtered)

	_, ok := fetched.Load("a/b/c/node_modules/dep/x.js")
	assert.False(t, ok)
}

func TestWalk_LeafAnalysisFailureIsIsolated(t *testing.T) {
	src := tree(t, map[string]string{
		"src/bad.go":      "package bad",
		"src/good.go":     "package good",
		"lib/sibling.go":  "package lib",
		"lib/deep/one.go": "package deep",
	})
	an := annotatorFunc(func(ctx context.Context, c chunker.Chunk) (annotate.Annotation, error) {
		if c.SourcePath == "src/bad.go" {
			return annotate.Annotation{}, &annotate.AnalysisFailure{Name: c.SourceName, Path: c.SourcePath, Attempts: 5, Err: errors.New("still throttled")}
		}
		return describeAll(ctx, c)
	})
	logger := logging.NewTestLogger()

	set, err := New(src, newChunker(t), an, WithLogger(logger.Logger)).Walk(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/deep/one.go", "lib/sibling.go", "src/good.go"}, paths(set))

	failures := set.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, FailureAnalysis, failures[0].Kind)
	assert.Equal(t, "bad.go", failures[0].Name)
	assert.Equal(t, "src/bad.go", failures[0].Path)
	assert.ErrorIs(t, failures[0].Err, annotate.ErrAnalysisFailure)

	logger.AssertLogged(t, zapcore.WarnLevel, "node failed")
	logger.AssertField(t, "node failed", "path", "src/bad.go")
}

func TestWalk_SubtreeListingFailureIsAbsorbed(t *testing.T) {
	src := tree(t, map[string]string{
		"broken/x.go": "package broken",
		"ok/y.go":     "package ok",
		"top.go":      "package top",
	})
	src.failList["broken"] = true

	set, err := New(src, newChunker(t), annotatorFunc(describeAll)).Walk(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"ok/y.go", "top.go"}, paths(set))

	failures := set.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, FailureListing, failures[0].Kind)
	assert.Equal(t, "broken", failures[0].Path)
	assert.ErrorIs(t, failures[0].Err, source.ErrRetrieval)
}

func TestWalk_FetchFailureIsAbsorbed(t *testing.T) {
	src := tree(t, map[string]string{
		"a.go": "package a",
		"b.go": "package b",
	})
	src.failFetch["a.go"] = true

	set, err := New(src, newChunker(t), annotatorFunc(describeAll)).Walk(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.go"}, paths(set))
	require.Len(t, set.Failures(), 1)
	assert.Equal(t, FailureRetrieval, set.Failures()[0].Kind)
	assert.Equal(t, 1, set.Stats().Files)
}

func TestWalk_RootListingFailureIsFatal(t *testing.T) {
	src := tree(t, map[string]string{"a.go": "package a"})
	src.failList[""] = true

	set, err := New(src, newChunker(t), annotatorFunc(describeAll)).Walk(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, source.ErrRetrieval)
	assert.Nil(t, set)
}

func TestWalk_SubPathRoot(t *testing.T) {
	src := tree(t, map[string]string{
		"pkg/api/handler.go": "package api",
		"cmd/main.go":        "package main",
	})

	set, err := New(src, newChunker(t), annotatorFunc(describeAll)).Walk(context.Background(), "pkg")
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/api/handler.go"}, paths(set))
}

func TestWalk_EmptyTree(t *testing.T) {
	src := tree(t, map[string]string{"package.json": "{}"})

	set, err := New(src, newChunker(t), annotatorFunc(describeAll)).Walk(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, set.Len())
	assert.Empty(t, set.Failures())
	assert.Equal(t, 1, set.Stats().Filtered)
}

func TestWalk_EmptyFileProducesNoChunks(t *testing.T) {
	src := tree(t, map[string]string{"empty.txt": ""})

	set, err := New(src, newChunker(t), annotatorFunc(describeAll)).Walk(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, set.Len())
	assert.Equal(t, 1, set.Stats().Files)
	assert.Zero(t, set.Stats().Chunks)
}

func TestWalk_BoundsConcurrentCalls(t *testing.T) {
	files := map[string]string{}
	for i := 0; i < 40; i++ {
		files[fmt.Sprintf("d%d/f%d.go", i%5, i)] = "package x"
	}
	src := tree(t, files)

	var inFlight, peak atomic.Int32
	an := annotatorFunc(func(ctx context.Context, c chunker.Chunk) (annotate.Annotation, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		return describeAll(ctx, c)
	})

	set, err := New(src, newChunker(t), an, WithConcurrency(3)).Walk(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 40, set.Len())
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestWalk_RootOverridesExtendFilter(t *testing.T) {
	src := tree(t, map[string]string{
		".repodescribe.toml": "exclude_dirs = [\"docs\"]\nexclude_extensions = [\".svg\"]\n",
		"docs/guide.md":      "how to",
		"art/diagram.svg":    "<svg/>",
		"main.go":            "package main",
		"package.json":       "{}",
	})

	set, err := New(src, newChunker(t), annotatorFunc(describeAll)).Walk(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, paths(set))
}

func TestWalk_InvalidOverridesFallBackToDefaults(t *testing.T) {
	src := tree(t, map[string]string{
		".repodescribe.toml": "exclude_dirs = 3",
		"docs/guide.md":      "how to",
	})
	logger := logging.NewTestLogger()

	set, err := New(src, newChunker(t), annotatorFunc(describeAll), WithLogger(logger.Logger)).Walk(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/guide.md"}, paths(set))
	logger.AssertLogged(t, zapcore.WarnLevel, "invalid overrides file")
}

func TestWalk_OverridesDisabled(t *testing.T) {
	src := tree(t, map[string]string{
		".repodescribe.toml": "exclude_dirs = [\"docs\"]",
		"docs/guide.md":      "how to",
	})

	set, err := New(src, newChunker(t), annotatorFunc(describeAll), WithOverridesFile("")).Walk(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/guide.md"}, paths(set))
}

func TestWalk_NodeStates(t *testing.T) {
	src := tree(t, map[string]string{
		"src/main.go":  strings.Repeat("x", 2500),
		"package.json": "{}",
	})

	var mu sync.Mutex
	states := map[string][]NodeState{}
	obs := func(path string, _ source.EntryType, s NodeState) {
		mu.Lock()
		states[path] = append(states[path], s)
		mu.Unlock()
	}

	_, err := New(src, newChunker(t), annotatorFunc(describeAll), WithObserver(obs)).Walk(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, []NodeState{StateFilteredOut}, states["package.json"])
	assert.Equal(t, []NodeState{StatePending, StateListing, StateDone}, states["src"])
	assert.Equal(t, []NodeState{StatePending, StateFetching, StateChunking, StateAnnotating, StateDone}, states["src/main.go"])
	assert.Equal(t, []NodeState{StateListing, StateDone}, states[""])
	for path, s := range states {
		assert.True(t, s[len(s)-1].Terminal(), path)
	}
}

func TestWalk_DirectoryDoneAfterChildren(t *testing.T) {
	src := tree(t, map[string]string{
		"a/b/one.go": "package b",
		"a/two.go":   "package a",
	})

	var mu sync.Mutex
	var order []string
	obs := func(path string, _ source.EntryType, s NodeState) {
		if s == StateDone {
			mu.Lock()
			order = append(order, path)
			mu.Unlock()
		}
	}

	_, err := New(src, newChunker(t), annotatorFunc(describeAll), WithObserver(obs)).Walk(context.Background(), "")
	require.NoError(t, err)

	index := func(p string) int {
		for i, o := range order {
			if o == p {
				return i
			}
		}
		return -1
	}
	require.Len(t, order, 5)
	assert.Less(t, index("a/b/one.go"), index("a/b"))
	assert.Less(t, index("a/b"), index("a"))
	assert.Less(t, index("a/two.go"), index("a"))
	assert.Equal(t, "", order[len(order)-1])
}

func TestWalk_Cancellation(t *testing.T) {
	files := map[string]string{}
	for i := 0; i < 20; i++ {
		files[fmt.Sprintf("f%d.go", i)] = "package x"
	}
	src := tree(t, files)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	an := annotatorFunc(func(ctx context.Context, c chunker.Chunk) (annotate.Annotation, error) {
		if calls.Add(1) == 3 {
			cancel()
			return annotate.Annotation{}, ctx.Err()
		}
		return describeAll(ctx, c)
	})

	set, err := New(src, newChunker(t), an, WithConcurrency(1)).Walk(ctx, "")
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, set)
	assert.Equal(t, 2, set.Len())
	assert.Empty(t, set.Failures())
	assert.Equal(t, int32(3), calls.Load())
}

func TestWalk_RecordsSpans(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	src := tree(t, map[string]string{"src/main.go": "package main"})

	_, err := New(src, newChunker(t), annotatorFunc(describeAll), WithTracer(tt.Tracer("walker"))).Walk(context.Background(), "")
	require.NoError(t, err)

	tt.AssertSpanExists(t, "Walker.Walk")
	tt.AssertSpanExists(t, "Walker.List")
	tt.AssertSpanExists(t, "Walker.ProcessFile")
	tt.AssertSpanAttribute(t, "Walker.Walk", "walk.annotations", int64(1))
}

func TestNodeState_String(t *testing.T) {
	assert.Equal(t, "filtered_out", StateFilteredOut.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "NodeState(42)", NodeState(42).String())
	assert.False(t, StateAnnotating.Terminal())
}

func TestLooksBinary(t *testing.T) {
	assert.False(t, looksBinary(nil))
	assert.False(t, looksBinary([]byte("plain text")))
	assert.True(t, looksBinary([]byte{0, 0, 'a', 0, 'b'}))
}

func TestWalk_NonUTF8ContentIsChunkedAsText(t *testing.T) {
	raw := "\xff\xfe\x00\x00data\x00\x00"
	src := tree(t, map[string]string{"blob.bin": raw})

	var got []string
	var mu sync.Mutex
	a := annotatorFunc(func(ctx context.Context, c chunker.Chunk) (annotate.Annotation, error) {
		mu.Lock()
		got = append(got, c.Text)
		mu.Unlock()
		return describeAll(ctx, c)
	})

	set, err := New(src, newChunker(t), a).Walk(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
	assert.Equal(t, []string{raw}, got)
}
