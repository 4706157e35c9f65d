package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/fyrsmithlabs/repodescribe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

func fakeOpenAI(t *testing.T, status int, content string) (*httptest.Server, *atomic.Int32, *chatRequest) {
	t.Helper()
	var calls atomic.Int32
	var last chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&last)

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached for requests","type":"requests","code":"rate_limit_exceeded"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, &last
}

func newOpenAI(t *testing.T, baseURL string) *LangChain {
	t.Helper()
	a, err := New(config.LLMConfig{
		Provider: "openai",
		Model:    "gpt-4o-mini",
		BaseURL:  baseURL,
		APIKey:   config.Secret("sk-test"),
	}, nil)
	require.NoError(t, err)
	return a
}

func TestLangChain_Analyze(t *testing.T) {
	srv, calls, last := fakeOpenAI(t, http.StatusOK, "  It parses config files.\n")
	a := newOpenAI(t, srv.URL)

	out, err := a.Analyze(context.Background(), "describe this", "package main")
	require.NoError(t, err)
	assert.Equal(t, "It parses config files.", out)
	assert.Equal(t, int32(1), calls.Load())

	require.Len(t, last.Messages, 2)
	assert.Equal(t, "system", last.Messages[0].Role)
	assert.Contains(t, string(last.Messages[0].Content), "describe this")
	assert.Equal(t, "user", last.Messages[1].Role)
	assert.Contains(t, string(last.Messages[1].Content), "package main")
}

func TestLangChain_RateLimited(t *testing.T) {
	srv, _, _ := fakeOpenAI(t, http.StatusTooManyRequests, "")
	a := newOpenAI(t, srv.URL)

	_, err := a.Analyze(context.Background(), "p", "x")
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))

	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusTooManyRequests, ae.Status)
	assert.Equal(t, "openai", ae.Provider)
}

func TestLangChain_TerminalFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"context length exceeded","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := newOpenAI(t, srv.URL).Analyze(context.Background(), "p", "x")
	require.Error(t, err)
	assert.False(t, IsRateLimited(err))
}

func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "mystery"}, nil)
	require.Error(t, err)
}

func TestNew_Anthropic(t *testing.T) {
	a, err := New(config.LLMConfig{Provider: "anthropic", APIKey: "sk-test", Model: "claude-3-haiku-20240307"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", a.provider)

	_, err = New(config.LLMConfig{Provider: "anthropic", BaseURL: "http://localhost:1234"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
		want   bool
	}{
		{"429 status", 429, errors.New("boom"), true},
		{"text fallback", 0, errors.New("API returned unexpected status code: 429"), true},
		{"rate limit text", 500, errors.New("Rate limit exceeded"), true},
		{"bad request", 400, errors.New("invalid request"), false},
		{"success status with decode error", 200, errors.New("rate limit parsing"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRateLimited(classify("openai", tt.status, tt.err)))
		})
	}
}

func TestAnalyzerFunc(t *testing.T) {
	var a Analyzer = AnalyzerFunc(func(_ context.Context, preamble, payload string) (string, error) {
		return preamble + ":" + payload, nil
	})
	out, err := a.Analyze(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "a:b", out)
}
