// Package config provides configuration loading for repodescribe.
//
// Configuration is read from an optional YAML file and overridden by
// REPODESCRIBE_* environment variables. Well-known credential variables
// (GITHUB_TOKEN, OPENAI_API_KEY, ANTHROPIC_API_KEY) fill unset secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Config holds the complete repodescribe configuration.
type Config struct {
	GitHub     GitHubConfig     `koanf:"github"`
	Source     SourceConfig     `koanf:"source"`
	LLM        LLMConfig        `koanf:"llm"`
	Chunker    ChunkerConfig    `koanf:"chunker"`
	Annotator  AnnotatorConfig  `koanf:"annotator"`
	Walker     WalkerConfig     `koanf:"walker"`
	Summarizer SummarizerConfig `koanf:"summarizer"`
	Sink       SinkConfig       `koanf:"sink"`
	Scrub      ScrubConfig      `koanf:"scrub"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Server     ServerConfig     `koanf:"server"`
}

// GitHubConfig configures the GitHub contents API client.
type GitHubConfig struct {
	Token   Secret `koanf:"token"`
	BaseURL string `koanf:"base_url"` // GitHub Enterprise API URL; empty means api.github.com

	MaxRetries     int      `koanf:"max_retries"`
	InitialBackoff Duration `koanf:"initial_backoff"`
	MaxBackoff     Duration `koanf:"max_backoff"`
}

// SourceConfig selects how the repository tree is listed and fetched.
type SourceConfig struct {
	// Kind is "github" (contents API) or "git" (shallow in-memory clone).
	Kind       string `koanf:"kind"`
	CloneDepth int    `koanf:"clone_depth"`
}

// LLMConfig configures the external text-analysis capability.
type LLMConfig struct {
	Provider    string   `koanf:"provider"` // openai, anthropic, ollama
	Model       string   `koanf:"model"`
	BaseURL     string   `koanf:"base_url"`
	APIKey      Secret   `koanf:"api_key"`
	Temperature float64  `koanf:"temperature"`
	MaxTokens   int      `koanf:"max_tokens"`
	Timeout     Duration `koanf:"timeout"`
}

// ChunkerConfig configures text fragmentation.
type ChunkerConfig struct {
	MaxChunkSize int      `koanf:"max_chunk_size"`
	OverlapSize  int      `koanf:"overlap_size"`
	Separators   []string `koanf:"separators"`
}

// AnnotatorConfig configures per-chunk analysis and its retry policy.
type AnnotatorConfig struct {
	MaxRetries     int      `koanf:"max_retries"`
	InitialBackoff Duration `koanf:"initial_backoff"`
	MaxBackoff     Duration `koanf:"max_backoff"`
	CallTimeout    Duration `koanf:"call_timeout"`
}

// WalkerConfig configures tree traversal.
type WalkerConfig struct {
	Concurrency       int      `koanf:"concurrency"`
	ExcludeNames      []string `koanf:"exclude_names"`
	ExcludeExtensions []string `koanf:"exclude_extensions"`
	ExcludeDirs       []string `koanf:"exclude_dirs"`
	OverridesFile     string   `koanf:"overrides_file"`
}

// SummarizerConfig configures the final aggregation call.
type SummarizerConfig struct {
	// Retry applies the annotator retry policy to the summary call.
	Retry bool `koanf:"retry"`
}

// SinkConfig selects where the RepositorySummary is uploaded.
type SinkConfig struct {
	Kind       string           `koanf:"kind"` // none, log, qdrant, qdrant_rest, chromem, nats
	Namespace  string           `koanf:"namespace"`
	Qdrant     QdrantConfig     `koanf:"qdrant"`
	Chromem    ChromemConfig    `koanf:"chromem"`
	NATS       NATSConfig       `koanf:"nats"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
}

// QdrantConfig configures the Qdrant sinks. Host and Port address the gRPC
// API; URL addresses the REST API used by qdrant_rest.
type QdrantConfig struct {
	URL        string `koanf:"url"`
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	APIKey     Secret `koanf:"api_key"`
	UseTLS     bool   `koanf:"use_tls"`
	VectorSize int    `koanf:"vector_size"`
}

// ChromemConfig configures the embedded chromem-go sink.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// NATSConfig configures the NATS publish sink.
type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// EmbeddingsConfig configures the embedder used by vector sinks.
type EmbeddingsConfig struct {
	Model   string `koanf:"model"`
	BaseURL string `koanf:"base_url"`
	APIKey  Secret `koanf:"api_key"`
}

// ScrubConfig controls secret redaction before analysis.
type ScrubConfig struct {
	Enabled bool `koanf:"enabled"`
}

// LoggingConfig holds the user-facing logging knobs.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"` // grpc or http/protobuf
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// ServerConfig holds HTTP server configuration for `repodescribe serve`.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`

	// MaxConcurrentRuns bounds in-flight describe requests; extra requests get 429.
	MaxConcurrentRuns int `koanf:"max_concurrent_runs"`
}

// DefaultSeparators is the ordered separator preference, most preferred first.
var DefaultSeparators = []string{"\n\n", "\n", ".", "?", "!"}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.Scrub.Enabled = true
	cfg.Summarizer.Retry = true
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// GitHub defaults
	if !cfg.GitHub.Token.IsSet() {
		cfg.GitHub.Token = Secret(os.Getenv("GITHUB_TOKEN"))
	}
	if cfg.GitHub.MaxRetries == 0 {
		cfg.GitHub.MaxRetries = 3
	}
	if cfg.GitHub.InitialBackoff == 0 {
		cfg.GitHub.InitialBackoff = Duration(time.Second)
	}
	if cfg.GitHub.MaxBackoff == 0 {
		cfg.GitHub.MaxBackoff = Duration(30 * time.Second)
	}

	if cfg.Source.Kind == "" {
		cfg.Source.Kind = "github"
	}
	if cfg.Source.CloneDepth == 0 {
		cfg.Source.CloneDepth = 1
	}

	// LLM defaults
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if !cfg.LLM.APIKey.IsSet() {
		switch cfg.LLM.Provider {
		case "openai":
			cfg.LLM.APIKey = Secret(os.Getenv("OPENAI_API_KEY"))
		case "anthropic":
			cfg.LLM.APIKey = Secret(os.Getenv("ANTHROPIC_API_KEY"))
		}
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.3
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 512
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = Duration(2 * time.Minute)
	}

	// Chunker defaults
	if cfg.Chunker.MaxChunkSize == 0 {
		cfg.Chunker.MaxChunkSize = 1000
	}
	if cfg.Chunker.OverlapSize == 0 {
		cfg.Chunker.OverlapSize = 100
	}
	if len(cfg.Chunker.Separators) == 0 {
		cfg.Chunker.Separators = append([]string(nil), DefaultSeparators...)
	}

	// Annotator defaults
	if cfg.Annotator.MaxRetries == 0 {
		cfg.Annotator.MaxRetries = 5
	}
	if cfg.Annotator.InitialBackoff == 0 {
		cfg.Annotator.InitialBackoff = Duration(time.Second)
	}
	if cfg.Annotator.MaxBackoff == 0 {
		cfg.Annotator.MaxBackoff = Duration(2 * time.Minute)
	}
	if cfg.Annotator.CallTimeout == 0 {
		cfg.Annotator.CallTimeout = Duration(2 * time.Minute)
	}

	if cfg.Walker.Concurrency == 0 {
		cfg.Walker.Concurrency = 8
	}
	if cfg.Walker.OverridesFile == "" {
		cfg.Walker.OverridesFile = ".repodescribe.toml"
	}

	// Sink defaults
	if cfg.Sink.Kind == "" {
		cfg.Sink.Kind = "none"
	}
	if cfg.Sink.Qdrant.Host == "" {
		cfg.Sink.Qdrant.Host = "localhost"
	}
	if cfg.Sink.Qdrant.URL == "" {
		cfg.Sink.Qdrant.URL = "http://localhost:6333"
	}
	if cfg.Sink.Qdrant.Port == 0 {
		cfg.Sink.Qdrant.Port = 6334
	}
	if cfg.Sink.Qdrant.VectorSize == 0 {
		cfg.Sink.Qdrant.VectorSize = 1536 // text-embedding-3-small dimensions
	}
	if cfg.Sink.Chromem.Path == "" {
		cfg.Sink.Chromem.Path = "~/.config/repodescribe/vectorstore"
	}
	if cfg.Sink.NATS.URL == "" {
		cfg.Sink.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.Sink.NATS.SubjectPrefix == "" {
		cfg.Sink.NATS.SubjectPrefix = "repodescribe.summaries"
	}
	if cfg.Sink.Embeddings.Model == "" {
		cfg.Sink.Embeddings.Model = "text-embedding-3-small"
	}
	if !cfg.Sink.Embeddings.APIKey.IsSet() {
		cfg.Sink.Embeddings.APIKey = Secret(os.Getenv("OPENAI_API_KEY"))
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "repodescribe"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9191
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.MaxConcurrentRuns == 0 {
		cfg.Server.MaxConcurrentRuns = 2
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case "github", "git":
	default:
		return fmt.Errorf("invalid source kind %q (must be github or git)", c.Source.Kind)
	}

	switch c.LLM.Provider {
	case "openai", "anthropic", "ollama":
	default:
		return fmt.Errorf("invalid llm provider %q (must be openai, anthropic or ollama)", c.LLM.Provider)
	}

	if c.Chunker.MaxChunkSize <= 0 {
		return errors.New("chunker.max_chunk_size must be positive")
	}
	if c.Chunker.OverlapSize < 0 || c.Chunker.OverlapSize >= c.Chunker.MaxChunkSize {
		return fmt.Errorf("chunker.overlap_size must be in [0, %d), got %d", c.Chunker.MaxChunkSize, c.Chunker.OverlapSize)
	}
	for _, sep := range c.Chunker.Separators {
		if sep == "" {
			return errors.New("chunker.separators cannot contain an empty separator")
		}
	}

	if c.Annotator.MaxRetries < 1 {
		return fmt.Errorf("annotator.max_retries must be >= 1, got %d", c.Annotator.MaxRetries)
	}
	if c.Annotator.MaxBackoff < c.Annotator.InitialBackoff {
		return errors.New("annotator.max_backoff must be >= annotator.initial_backoff")
	}

	if c.Walker.Concurrency < 1 {
		return fmt.Errorf("walker.concurrency must be >= 1, got %d", c.Walker.Concurrency)
	}

	switch c.Sink.Kind {
	case "none", "log", "qdrant", "qdrant_rest", "chromem", "nats":
	default:
		return fmt.Errorf("invalid sink kind %q", c.Sink.Kind)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %f", c.Telemetry.SampleRate)
	}

	return nil
}
