package main

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/repodescribe/internal/config"
	"github.com/fyrsmithlabs/repodescribe/internal/pipeline"
	"github.com/fyrsmithlabs/repodescribe/internal/sink"
	"github.com/fyrsmithlabs/repodescribe/internal/walker"
)

func TestDescribeFlags_Request(t *testing.T) {
	t.Run("flags override the parsed url", func(t *testing.T) {
		f := describeFlags{ref: "main", author: "someone", namespace: "summaries"}
		req, err := f.request("https://github.com/octo/hello/tree/v1/pkg")
		require.NoError(t, err)
		assert.Equal(t, "octo", req.Repository.Owner)
		assert.Equal(t, "hello", req.Repository.Name)
		assert.Equal(t, "main", req.Repository.Ref)
		assert.Equal(t, "pkg", req.Repository.Path)
		assert.Equal(t, "someone", req.Author)
		assert.Equal(t, "summaries", req.Namespace)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := describeFlags{}.request("hello")
		assert.Error(t, err)

		_, err = describeFlags{namespace: "No Spaces"}.request("octo/hello")
		assert.ErrorIs(t, err, sink.ErrInvalidNamespace)
	})
}

func TestDescribeFlags_Apply(t *testing.T) {
	cfg := config.Default()
	describeFlags{sinkKind: "log", sourceKind: "git", concurrency: 3}.apply(cfg)
	assert.Equal(t, "log", cfg.Sink.Kind)
	assert.Equal(t, "git", cfg.Source.Kind)
	assert.Equal(t, 3, cfg.Walker.Concurrency)

	cfg = config.Default()
	describeFlags{}.apply(cfg)
	assert.Equal(t, "none", cfg.Sink.Kind)
	assert.Equal(t, 8, cfg.Walker.Concurrency)
}

func TestRenderReport(t *testing.T) {
	report := &pipeline.Report{
		RunID:      "run-1",
		Repository: "octo/hello",
		Namespace:  "octo_hello",
		Summary: &sink.RepositorySummary{
			Paragraph: "Hello is a demo project.",
			Metadata:  sink.Metadata{ProjectName: "hello", URL: "https://github.com/octo/hello", Author: "octo"},
		},
		Stored: true,
		Stats:  walker.Stats{Directories: 2, Files: 2, Filtered: 1, Chunks: 7, Annotated: 7},
	}

	out := renderReport(report, "chromem")
	assert.Contains(t, out, "octo/hello")
	assert.Contains(t, out, "Hello is a demo project.")
	assert.Contains(t, out, "https://github.com/octo/hello")
	assert.Contains(t, out, "7 annotated of 7")
	assert.Contains(t, out, "chromem/octo_hello")
	assert.NotContains(t, out, "skipped")

	report.Stored = false
	for i := 0; i < maxListedFailures+2; i++ {
		report.Failures = append(report.Failures, walker.Failure{
			Kind: walker.FailureAnalysis, Path: "src/main.ext", ChunkIndex: i, Err: errors.New("bad request"),
		})
	}
	out = renderReport(report, "chromem")
	assert.Contains(t, out, "not stored")
	assert.Contains(t, out, fmt.Sprintf("%d skipped", maxListedFailures+2))
	assert.Contains(t, out, "src/main.ext#0")
	assert.NotContains(t, out, fmt.Sprintf("src/main.ext#%d", maxListedFailures))
	assert.Contains(t, out, "2 more")
}

func TestRenderReport_NoSummary(t *testing.T) {
	out := renderReport(&pipeline.Report{RunID: "run-2", Repository: "octo/hello"}, "none")
	assert.Contains(t, out, "octo/hello")
	assert.NotContains(t, out, "stored")
}

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "repodescribe "+version))
	assert.Contains(t, out.String(), "Git Commit")
}

func TestDescribeCmd_RequiresRepository(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"describe"})
	assert.Error(t, root.Execute())
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"describe", "serve", "mcp", "version"})
}
