package sink

import (
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/repodescribe/internal/config"
)

// NewEmbedder returns an OpenAI-compatible embedder. BaseURL may point at
// any server speaking the embeddings API (TEI, vLLM, Ollama).
func NewEmbedder(cfg config.EmbeddingsConfig, httpClient *http.Client) (embeddings.Embedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embeddings model required", ErrInvalidConfig)
	}

	token := cfg.APIKey.Value()
	if token == "" {
		// langchaingo requires a token; self-hosted servers ignore it
		token = "placeholder"
	}
	opts := []openai.Option{
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(token),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, openai.WithHTTPClient(httpClient))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating embeddings client: %w", err)
	}
	emb, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return emb, nil
}
