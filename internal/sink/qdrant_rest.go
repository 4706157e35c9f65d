package sink

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	lcqdrant "github.com/tmc/langchaingo/vectorstores/qdrant"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repodescribe/internal/config"
	"github.com/fyrsmithlabs/repodescribe/internal/logging"
)

// QdrantREST stores summaries through the langchaingo Qdrant store, which
// talks to the REST API. The collection must already exist.
type QdrantREST struct {
	base     url.URL
	apiKey   string
	embedder embeddings.Embedder
	logger   *logging.Logger
	newStore func(opts ...lcqdrant.Option) (vectorstores.VectorStore, error)
}

// NewQdrantREST validates cfg.URL.
func NewQdrantREST(cfg config.QdrantConfig, emb embeddings.Embedder, logger *logging.Logger) (*QdrantREST, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: qdrant url %q", ErrInvalidConfig, cfg.URL)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &QdrantREST{
		base:     *u,
		apiKey:   cfg.APIKey.Value(),
		embedder: emb,
		logger:   logger,
		newStore: func(opts ...lcqdrant.Option) (vectorstores.VectorStore, error) {
			return lcqdrant.New(opts...)
		},
	}, nil
}

func (q *QdrantREST) Upload(ctx context.Context, doc Document, namespace string) error {
	if err := ValidateNamespace(namespace); err != nil {
		return storageError("qdrant_rest", namespace, err)
	}

	opts := []lcqdrant.Option{
		lcqdrant.WithURL(q.base),
		lcqdrant.WithCollectionName(namespace),
		lcqdrant.WithEmbedder(q.embedder),
	}
	if q.apiKey != "" {
		opts = append(opts, lcqdrant.WithAPIKey(q.apiKey))
	}
	store, err := q.newStore(opts...)
	if err != nil {
		return storageError("qdrant_rest", namespace, err)
	}

	meta := make(map[string]any, len(doc.Metadata)+1)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta["id"] = doc.ID

	if _, err := store.AddDocuments(ctx, []schema.Document{{PageContent: doc.PageContent, Metadata: meta}}); err != nil {
		return storageError("qdrant_rest", namespace, err)
	}
	q.logger.Info(ctx, "summary stored in qdrant", zap.String("collection", namespace), zap.String("url", q.base.String()))
	return nil
}

func (q *QdrantREST) Close() error { return nil }
