package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/philippgille/chromem-go"
	"github.com/tmc/langchaingo/embeddings"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repodescribe/internal/config"
	"github.com/fyrsmithlabs/repodescribe/internal/logging"
)

// Chromem stores summaries in an embedded chromem-go database.
type Chromem struct {
	db       *chromem.DB
	embedder embeddings.Embedder
	logger   *logging.Logger
}

// OpenChromem opens or creates a persistent database at cfg.Path.
func OpenChromem(cfg config.ChromemConfig, emb embeddings.Embedder, logger *logging.Logger) (*Chromem, error) {
	path, err := expandHome(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}
	db, err := chromem.NewPersistentDB(path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("opening chromem DB: %w", err)
	}
	return NewChromem(db, emb, logger), nil
}

// NewChromem wraps an open database.
func NewChromem(db *chromem.DB, emb embeddings.Embedder, logger *logging.Logger) *Chromem {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Chromem{db: db, embedder: emb, logger: logger}
}

func (c *Chromem) embedFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return c.embedder.EmbedQuery(ctx, text)
	}
}

func (c *Chromem) Upload(ctx context.Context, doc Document, namespace string) error {
	ctx, span := tracer.Start(ctx, "Chromem.Upload")
	defer span.End()

	if err := ValidateNamespace(namespace); err != nil {
		return storageError("chromem", namespace, err)
	}
	col, err := c.db.GetOrCreateCollection(namespace, nil, c.embedFunc())
	if err != nil {
		span.RecordError(err)
		return storageError("chromem", namespace, err)
	}

	vector, err := c.embedder.EmbedQuery(ctx, doc.PageContent)
	if err != nil {
		span.RecordError(err)
		return storageError("chromem", namespace, fmt.Errorf("embedding: %w", err))
	}

	err = col.AddDocument(ctx, chromem.Document{
		ID:        doc.ID,
		Content:   doc.PageContent,
		Metadata:  doc.Metadata,
		Embedding: vector,
	})
	if err != nil {
		span.RecordError(err)
		return storageError("chromem", namespace, err)
	}
	c.logger.Info(ctx, "summary stored in chromem", zap.String("collection", namespace), zap.String("id", doc.ID))
	return nil
}

// Collection returns the collection for namespace, or nil.
func (c *Chromem) Collection(namespace string) *chromem.Collection {
	return c.db.GetCollection(namespace, c.embedFunc())
}

func (c *Chromem) Close() error { return nil }

func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
