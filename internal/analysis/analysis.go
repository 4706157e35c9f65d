// Package analysis adapts LLM providers to the single operation the
// pipeline needs: describe a payload under an instructional preamble.
package analysis

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/fyrsmithlabs/repodescribe/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// Analyzer submits payload to an external text-analysis capability.
type Analyzer interface {
	Analyze(ctx context.Context, preamble, payload string) (string, error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, preamble, payload string) (string, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, preamble, payload string) (string, error) {
	return f(ctx, preamble, payload)
}

// LangChain is an Analyzer backed by a langchaingo model.
type LangChain struct {
	model    llms.Model
	provider string
	opts     []llms.CallOption
}

// New builds a LangChain analyzer for cfg.Provider. A nil httpClient uses
// http.DefaultTransport; either way the transport is wrapped so HTTP status
// codes are visible to error classification.
func New(cfg config.LLMConfig, httpClient *http.Client) (*LangChain, error) {
	client := instrument(httpClient)

	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(tokenOrPlaceholder(cfg.APIKey)),
			openai.WithHTTPClient(client),
		}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case "anthropic":
		// The anthropic client owns its transport and endpoint, so throttling
		// is classified from the error text only.
		if cfg.BaseURL != "" {
			return nil, fmt.Errorf("llm provider anthropic does not support base_url")
		}
		opts := []anthropic.Option{anthropic.WithToken(tokenOrPlaceholder(cfg.APIKey))}
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}
		model, err = anthropic.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithHTTPClient(client)}
		if cfg.Model != "" {
			opts = append(opts, ollama.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", cfg.Provider, err)
	}

	callOpts := []llms.CallOption{}
	if cfg.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(cfg.Temperature))
	}
	if cfg.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(cfg.MaxTokens))
	}
	return NewFromModel(model, cfg.Provider, callOpts...), nil
}

// NewFromModel wraps an existing langchaingo model.
func NewFromModel(model llms.Model, provider string, opts ...llms.CallOption) *LangChain {
	return &LangChain{model: model, provider: provider, opts: opts}
}

// Analyze sends preamble as the system message and payload as the user message.
func (l *LangChain) Analyze(ctx context.Context, preamble, payload string) (string, error) {
	probe := &statusProbe{}
	ctx = context.WithValue(ctx, probeCtxKey{}, probe)

	resp, err := l.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, preamble),
		llms.TextParts(schema.ChatMessageTypeHuman, payload),
	}, l.opts...)
	if err != nil {
		return "", classify(l.provider, int(probe.status.Load()), err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", &Error{Provider: l.provider, Status: int(probe.status.Load()), Err: ErrEmptyResponse}
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// classify decides whether err is throttling. The wire status wins; providers
// that swallow it are matched on their error text.
func classify(provider string, status int, err error) error {
	e := &Error{Provider: provider, Status: status, Err: err}
	switch {
	case status == http.StatusTooManyRequests:
		e.RateLimited = true
	case status == 0 || status >= 400:
		msg := strings.ToLower(err.Error())
		e.RateLimited = strings.Contains(msg, "429") ||
			strings.Contains(msg, "rate limit") ||
			strings.Contains(msg, "too many requests")
	}
	return e
}

func tokenOrPlaceholder(s config.Secret) string {
	if s.IsSet() {
		return s.Value()
	}
	// langchaingo refuses an empty token even for local OpenAI-compatible servers
	return "placeholder"
}

type probeCtxKey struct{}

type statusProbe struct {
	status atomic.Int32
}

// statusTransport records the last response status on the probe carried by
// the request context.
type statusTransport struct {
	base http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if p, ok := req.Context().Value(probeCtxKey{}).(*statusProbe); ok && resp != nil {
		p.status.Store(int32(resp.StatusCode))
	}
	return resp, err
}

func instrument(c *http.Client) *http.Client {
	if c == nil {
		c = &http.Client{}
	}
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	out := *c
	out.Transport = statusTransport{base: base}
	return &out
}
