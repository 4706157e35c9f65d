package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/repodescribe/internal/analysis"
	"github.com/fyrsmithlabs/repodescribe/internal/annotate"
	"github.com/fyrsmithlabs/repodescribe/internal/retry"
)

var anns = []annotate.Annotation{
	{Name: "main.go", Path: "cmd/main.go", Description: "Starts the server."},
	{Name: "README.md", Path: "README.md", Description: "Explains the project."},
	{Name: "main.go", Path: "cmd/main.go", Description: "Parses flags."},
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestSummarize_SendsSortedPayload(t *testing.T) {
	var gotPreamble, gotPayload string
	s := New(analysis.AnalyzerFunc(func(_ context.Context, preamble, payload string) (string, error) {
		gotPreamble, gotPayload = preamble, payload
		return "A web server.", nil
	}))

	out, err := s.Summarize(context.Background(), anns)
	require.NoError(t, err)
	assert.Equal(t, "A web server.", out)
	assert.Equal(t, Preamble, gotPreamble)

	var decoded []annotate.Annotation
	require.NoError(t, json.Unmarshal([]byte(gotPayload), &decoded))
	require.Len(t, decoded, 3)
	assert.Equal(t, "README.md", decoded[0].Path)
	assert.Equal(t, "Parses flags.", decoded[1].Description)
	assert.Equal(t, "Starts the server.", decoded[2].Description)
}

func TestPayload_OrderIndependent(t *testing.T) {
	a, err := Payload(anns)
	require.NoError(t, err)
	b, err := Payload([]annotate.Annotation{anns[2], anns[0], anns[1]})
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Contains(t, string(a), `"description":"Explains the project."`)
}

func TestSummarize_EmptySet(t *testing.T) {
	var calls atomic.Int32
	s := New(analysis.AnalyzerFunc(func(context.Context, string, string) (string, error) {
		calls.Add(1)
		return "unused", nil
	}))

	out, err := s.Summarize(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, NoContent, out)
	assert.Zero(t, calls.Load())
}

func TestSummarize_SingleCallWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	s := New(analysis.AnalyzerFunc(func(context.Context, string, string) (string, error) {
		calls.Add(1)
		return "", &analysis.Error{Provider: "fake", Status: 429, RateLimited: true, Err: errors.New("slow down")}
	}))

	_, err := s.Summarize(context.Background(), anns)
	require.ErrorIs(t, err, ErrAggregation)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSummarize_RetriesThrottling(t *testing.T) {
	var calls atomic.Int32
	s := New(analysis.AnalyzerFunc(func(context.Context, string, string) (string, error) {
		if calls.Add(1) < 3 {
			return "", &analysis.Error{Provider: "fake", Status: 429, RateLimited: true, Err: errors.New("slow down")}
		}
		return "Recovered.", nil
	}), WithRetry(retry.DefaultPolicy()), WithSleeper(noSleep))

	out, err := s.Summarize(context.Background(), anns)
	require.NoError(t, err)
	assert.Equal(t, "Recovered.", out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSummarize_TerminalFailure(t *testing.T) {
	var calls atomic.Int32
	s := New(analysis.AnalyzerFunc(func(context.Context, string, string) (string, error) {
		calls.Add(1)
		return "", &analysis.Error{Provider: "fake", Status: 500, Err: errors.New("server error")}
	}), WithRetry(retry.DefaultPolicy()), WithSleeper(noSleep))

	out, err := s.Summarize(context.Background(), anns)
	require.ErrorIs(t, err, ErrAggregation)
	assert.Empty(t, out)
	assert.Equal(t, int32(1), calls.Load())
}
