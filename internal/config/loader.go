package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix is the prefix for environment overrides.
	EnvPrefix = "REPODESCRIBE_"
)

// DefaultPath returns ~/.config/repodescribe/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "repodescribe", "config.yaml"), nil
}

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. REPODESCRIBE_* environment variables
//  2. YAML config file (default ~/.config/repodescribe/config.yaml)
//  3. Hardcoded defaults
//
// A missing file is not an error. An existing file must have 0600 or 0400
// permissions and be at most 1MB.
//
// Environment variables drop the prefix and split on the first underscore:
//
//	REPODESCRIBE_WALKER_CONCURRENCY   -> walker.concurrency
//	REPODESCRIBE_ANNOTATOR_MAX_RETRIES -> annotator.max_retries
//	REPODESCRIBE_SINK_KIND            -> sink.kind
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}

	if err := loadFile(k, configPath); err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Bool defaults that are true must be set before unmarshal; mapstructure
	// leaves fields absent from the source untouched.
	cfg := Config{}
	cfg.Scrub.Enabled = true
	cfg.Summarizer.Retry = true

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	// Open once and validate through the descriptor to avoid a TOCTOU race.
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

// envKey maps REPODESCRIBE_SECTION_FIELD_NAME to section.field_name.
// Nested sink sections keep a second level: SINK_QDRANT_HOST -> sink.qdrant.host.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}

	section, field := parts[0], parts[1]
	if section == "sink" {
		for _, sub := range []string{"qdrant", "chromem", "nats", "embeddings"} {
			if strings.HasPrefix(field, sub+"_") {
				return section + "." + sub + "." + strings.TrimPrefix(field, sub+"_")
			}
		}
	}
	return section + "." + field
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	// Skip on Windows (different permission model)
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}
