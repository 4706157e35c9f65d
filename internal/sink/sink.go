// Package sink uploads finished repository summaries.
//
// A Sink receives one Document per run under a namespace. Vector sinks
// (qdrant, qdrant_rest, chromem) embed the paragraph and use the namespace
// as the collection; the nats sink publishes on prefix.namespace; the log
// sink writes JSON lines.
package sink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/repodescribe/internal/config"
	"github.com/fyrsmithlabs/repodescribe/internal/logging"
)

var (
	// ErrStorage is wrapped by every upload failure.
	ErrStorage = errors.New("storage upload failed")
	// ErrInvalidConfig is returned for unusable sink settings.
	ErrInvalidConfig = errors.New("invalid sink configuration")
	// ErrInvalidNamespace is returned for names a backend cannot use.
	ErrInvalidNamespace = errors.New("invalid namespace")
)

// Metadata describes the repository a summary belongs to.
type Metadata struct {
	ProjectName string `json:"projectName"`
	URL         string `json:"url"`
	Author      string `json:"author"`
}

// RepositorySummary is the terminal artifact of a run.
type RepositorySummary struct {
	Paragraph string   `json:"paragraph"`
	Metadata  Metadata `json:"metadata"`
}

// Document is the upload unit.
type Document struct {
	ID          string            `json:"id"`
	PageContent string            `json:"pageContent"`
	Metadata    map[string]string `json:"metadata"`
}

// Document converts s into an upload document. The ID is derived from the
// repository URL, so re-describing a repository replaces its entry.
func (s RepositorySummary) Document() Document {
	return Document{
		ID:          uuid.NewSHA1(uuid.NameSpaceURL, []byte(s.Metadata.URL)).String(),
		PageContent: s.Paragraph,
		Metadata: map[string]string{
			"projectName": s.Metadata.ProjectName,
			"url":         s.Metadata.URL,
			"author":      s.Metadata.Author,
		},
	}
}

// Sink stores documents. Upload reports failures; it does not retry.
type Sink interface {
	Upload(ctx context.Context, doc Document, namespace string) error
	Close() error
}

var namespacePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidateNamespace checks that name is usable by every backend.
func ValidateNamespace(name string) error {
	if !namespacePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidNamespace, name, namespacePattern)
	}
	return nil
}

// NamespaceFor derives a namespace from a repository full name such as
// "Octo/Hello.World".
func NamespaceFor(fullName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(fullName) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	ns := strings.Trim(b.String(), "_-")
	if len(ns) > 64 {
		ns = ns[:64]
	}
	if ns == "" {
		return "repositories"
	}
	return ns
}

// New builds the sink selected by cfg.Kind.
func New(ctx context.Context, cfg config.SinkConfig, logger *logging.Logger, httpClient *http.Client) (Sink, error) {
	switch cfg.Kind {
	case "", "none":
		return NewDiscard(logger), nil
	case "log":
		return NewLog(nil, logger), nil
	case "nats":
		return DialNATS(cfg.NATS, logger)
	case "qdrant":
		emb, err := NewEmbedder(cfg.Embeddings, httpClient)
		if err != nil {
			return nil, err
		}
		return DialQdrant(ctx, cfg.Qdrant, emb, logger)
	case "qdrant_rest":
		emb, err := NewEmbedder(cfg.Embeddings, httpClient)
		if err != nil {
			return nil, err
		}
		return NewQdrantREST(cfg.Qdrant, emb, logger)
	case "chromem":
		emb, err := NewEmbedder(cfg.Embeddings, httpClient)
		if err != nil {
			return nil, err
		}
		return OpenChromem(cfg.Chromem, emb, logger)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidConfig, cfg.Kind)
	}
}

func storageError(backend, namespace string, err error) error {
	return fmt.Errorf("%w: %s namespace %s: %w", ErrStorage, backend, namespace, err)
}
