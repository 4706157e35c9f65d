package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fyrsmithlabs/repodescribe/internal/config"
	"github.com/fyrsmithlabs/repodescribe/internal/logging"
	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// GitHub reads a repository through the REST contents API.
type GitHub struct {
	client *github.Client
	repo   Repository
	retry  RetryConfig
	logger *logging.Logger
}

// GitHubOption configures a GitHub source.
type GitHubOption func(*GitHub)

// WithRetryConfig overrides the API retry policy.
func WithRetryConfig(rc RetryConfig) GitHubOption {
	return func(g *GitHub) { g.retry = rc }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) GitHubOption {
	return func(g *GitHub) { g.logger = l }
}

// NewGitHubClient creates a go-github client. A set token authenticates via
// oauth2; base, if non-empty, points at a GitHub Enterprise API.
func NewGitHubClient(ctx context.Context, token config.Secret, base string, httpClient *http.Client) (*github.Client, error) {
	if token.IsSet() {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.Value()})
		if httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		}
		httpClient = oauth2.NewClient(ctx, ts)
	}

	client := github.NewClient(httpClient)
	if base != "" {
		var err error
		client, err = client.WithEnterpriseURLs(base, base)
		if err != nil {
			return nil, fmt.Errorf("configuring GitHub base url: %w", err)
		}
	}
	return client, nil
}

// NewGitHub returns a Source over repo using client.
func NewGitHub(client *github.Client, repo Repository, opts ...GitHubOption) *GitHub {
	g := &GitHub{
		client: client,
		repo:   repo,
		retry:  DefaultRetryConfig(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GitHub) getOptions() *github.RepositoryContentGetOptions {
	if g.repo.Ref == "" {
		return nil
	}
	return &github.RepositoryContentGetOptions{Ref: g.repo.Ref}
}

// List returns the children of the directory at path.
func (g *GitHub) List(ctx context.Context, path string) ([]Entry, error) {
	var dir []*github.RepositoryContent
	var file *github.RepositoryContent

	_, err := retryGitHubOperation(ctx, g.retry, g.logger, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		file, dir, resp, err = g.client.Repositories.GetContents(ctx, g.repo.Owner, g.repo.Name, path, g.getOptions())
		return resp, err
	})
	if err != nil {
		return nil, &RetrievalError{Op: "list", Path: path, Err: err}
	}
	if file != nil {
		return nil, &RetrievalError{Op: "list", Path: path, Err: ErrNotDirectory}
	}

	entries := make([]Entry, 0, len(dir))
	for _, c := range dir {
		var typ EntryType
		switch c.GetType() {
		case "dir":
			typ = TypeDir
		case "file":
			typ = TypeFile
		default:
			// symlinks and submodules are not part of the described tree
			continue
		}
		entries = append(entries, Entry{
			Name: c.GetName(),
			Path: c.GetPath(),
			Type: typ,
			Size: int64(c.GetSize()),
		})
	}
	return entries, nil
}

// Fetch returns the decoded content of the file at path. Files too large
// for the contents API (encoding "none") are streamed from the raw endpoint.
func (g *GitHub) Fetch(ctx context.Context, path string) ([]byte, error) {
	var file *github.RepositoryContent

	_, err := retryGitHubOperation(ctx, g.retry, g.logger, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		file, _, resp, err = g.client.Repositories.GetContents(ctx, g.repo.Owner, g.repo.Name, path, g.getOptions())
		return resp, err
	})
	if err != nil {
		return nil, &RetrievalError{Op: "fetch", Path: path, Err: err}
	}
	if file == nil {
		return nil, &RetrievalError{Op: "fetch", Path: path, Err: fmt.Errorf("path is a directory")}
	}

	if strings.EqualFold(file.GetEncoding(), "none") {
		return g.download(ctx, path)
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, &RetrievalError{Op: "fetch", Path: path, Err: fmt.Errorf("decoding content: %w", err)}
	}
	return []byte(content), nil
}

func (g *GitHub) download(ctx context.Context, path string) ([]byte, error) {
	var body io.ReadCloser
	_, err := retryGitHubOperation(ctx, g.retry, g.logger, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		body, resp, err = g.client.Repositories.DownloadContents(ctx, g.repo.Owner, g.repo.Name, path, g.getOptions())
		return resp, err
	})
	if err != nil {
		return nil, &RetrievalError{Op: "fetch", Path: path, Err: err}
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &RetrievalError{Op: "fetch", Path: path, Err: fmt.Errorf("reading download: %w", err)}
	}
	return data, nil
}

// Owner returns the login of the repository owner, used as the author
// when the caller supplies none.
func (g *GitHub) Owner(ctx context.Context) (string, error) {
	var r *github.Repository
	_, err := retryGitHubOperation(ctx, g.retry, g.logger, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		r, resp, err = g.client.Repositories.Get(ctx, g.repo.Owner, g.repo.Name)
		return resp, err
	})
	if err != nil {
		return "", &RetrievalError{Op: "get", Path: g.repo.FullName(), Err: err}
	}
	return r.GetOwner().GetLogin(), nil
}
