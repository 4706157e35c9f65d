package pipeline

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repodescribe/internal/analysis"
	"github.com/fyrsmithlabs/repodescribe/internal/annotate"
	"github.com/fyrsmithlabs/repodescribe/internal/chunker"
	"github.com/fyrsmithlabs/repodescribe/internal/config"
	"github.com/fyrsmithlabs/repodescribe/internal/filter"
	"github.com/fyrsmithlabs/repodescribe/internal/logging"
	"github.com/fyrsmithlabs/repodescribe/internal/retry"
	"github.com/fyrsmithlabs/repodescribe/internal/scrub"
	"github.com/fyrsmithlabs/repodescribe/internal/sink"
	"github.com/fyrsmithlabs/repodescribe/internal/source"
	"github.com/fyrsmithlabs/repodescribe/internal/summarize"
	"github.com/fyrsmithlabs/repodescribe/internal/walker"
)

// GitHubOpener reads repositories through the contents API.
type GitHubOpener struct {
	Client *github.Client
	Retry  source.RetryConfig
	Logger *logging.Logger
}

func (o *GitHubOpener) Open(_ context.Context, repo source.Repository) (source.Source, error) {
	return source.NewGitHub(o.Client, repo,
		source.WithRetryConfig(o.Retry),
		source.WithLogger(o.Logger),
	), nil
}

// GitOpener clones repositories into memory.
type GitOpener struct {
	Token config.Secret
	Depth int
	// BaseURL replaces https://github.com when set, e.g. for a mirror.
	BaseURL string
}

func (o *GitOpener) Open(ctx context.Context, repo source.Repository) (source.Source, error) {
	cloneURL := ""
	if o.BaseURL != "" {
		cloneURL = fmt.Sprintf("%s/%s.git", o.BaseURL, repo.FullName())
	}
	return source.CloneGit(ctx, repo, cloneURL, o.Token, o.Depth)
}

// AnnotatorPolicy maps annotator settings to a retry policy.
func AnnotatorPolicy(cfg config.AnnotatorConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts:    cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff.Duration(),
		MaxBackoff:     cfg.MaxBackoff.Duration(),
		Multiplier:     2,
		AttemptTimeout: cfg.CallTimeout.Duration(),
	}
}

// WalkerFilter extends the default denylist with configured exclusions.
func WalkerFilter(cfg config.WalkerConfig) *filter.Filter {
	return filter.Default().With(filter.Overrides{
		ExcludeNames:      cfg.ExcludeNames,
		ExcludeExtensions: cfg.ExcludeExtensions,
		ExcludeDirs:       cfg.ExcludeDirs,
	})
}

// FromConfig wires a Pipeline from cfg. The caller closes it.
func FromConfig(ctx context.Context, cfg *config.Config, logger *logging.Logger, httpClient *http.Client) (*Pipeline, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	analyzer, err := analysis.New(cfg.LLM, httpClient)
	if err != nil {
		return nil, err
	}

	policy := AnnotatorPolicy(cfg.Annotator)
	annOpts := []annotate.Option{annotate.WithLogger(logger.Named("annotate"))}
	if cfg.Scrub.Enabled {
		s, err := scrub.New()
		if err != nil {
			return nil, fmt.Errorf("creating scrubber: %w", err)
		}
		annOpts = append(annOpts, annotate.WithScrubber(s))
	}
	annotator := annotate.New(analyzer, policy, annOpts...)

	ch, err := chunker.New(chunker.Options{
		MaxChunkSize: cfg.Chunker.MaxChunkSize,
		OverlapSize:  cfg.Chunker.OverlapSize,
		Separators:   cfg.Chunker.Separators,
	})
	if err != nil {
		return nil, err
	}

	sumOpts := []summarize.Option{summarize.WithLogger(logger.Named("summarize"))}
	if cfg.Summarizer.Retry {
		sumOpts = append(sumOpts, summarize.WithRetry(policy))
	}
	summarizer := summarize.New(analyzer, sumOpts...)

	opener, err := newOpener(ctx, cfg, logger, httpClient)
	if err != nil {
		return nil, err
	}

	sk, err := sink.New(ctx, cfg.Sink, logger.Named("sink"), httpClient)
	if err != nil {
		return nil, fmt.Errorf("creating %s sink: %w", cfg.Sink.Kind, err)
	}

	logger.Debug(ctx, "pipeline configured",
		zap.String("source", cfg.Source.Kind),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("sink", cfg.Sink.Kind),
		zap.Int("concurrency", cfg.Walker.Concurrency),
		zap.Bool("scrub", cfg.Scrub.Enabled),
	)

	return New(opener, ch, annotator, summarizer, sk,
		WithNamespace(cfg.Sink.Namespace),
		WithLogger(logger),
		WithWalkerOptions(
			walker.WithConcurrency(cfg.Walker.Concurrency),
			walker.WithFilter(WalkerFilter(cfg.Walker)),
			walker.WithOverridesFile(cfg.Walker.OverridesFile),
		),
	), nil
}

func newOpener(ctx context.Context, cfg *config.Config, logger *logging.Logger, httpClient *http.Client) (Opener, error) {
	switch cfg.Source.Kind {
	case "git":
		return &GitOpener{Token: cfg.GitHub.Token, Depth: cfg.Source.CloneDepth}, nil
	case "", "github":
		client, err := source.NewGitHubClient(ctx, cfg.GitHub.Token, cfg.GitHub.BaseURL, httpClient)
		if err != nil {
			return nil, err
		}
		return &GitHubOpener{
			Client: client,
			Retry: source.RetryConfig{
				MaxRetries:     cfg.GitHub.MaxRetries,
				InitialBackoff: cfg.GitHub.InitialBackoff.Duration(),
				MaxBackoff:     cfg.GitHub.MaxBackoff.Duration(),
			},
			Logger: logger.Named("github"),
		}, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}
