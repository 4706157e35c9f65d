// Repodescribe walks a GitHub repository, describes every file with an LLM
// and stores a one-paragraph summary of the project.
//
// Usage:
//
//	# Describe a repository and print the summary
//	repodescribe describe octo/hello
//
//	# Serve the HTTP API
//	repodescribe serve
//
//	# Run as an MCP tool server on stdio
//	repodescribe mcp
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repodescribe/internal/config"
	"github.com/fyrsmithlabs/repodescribe/internal/logging"
	"github.com/fyrsmithlabs/repodescribe/internal/pipeline"
	"github.com/fyrsmithlabs/repodescribe/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	configPath string
	logLevel   string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "repodescribe",
		Short: "Summarize GitHub repositories with an LLM",
		Long: `repodescribe walks a repository tree, asks an LLM to explain each file in
chunks, and reduces those notes to one paragraph that is stored in a
vector store or published to NATS.

Configuration is read from ~/.config/repodescribe/config.yaml and
REPODESCRIBE_* environment variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/repodescribe/config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (trace, debug, info, warn, error)")

	root.AddCommand(newDescribeCmd(), newServeCmd(), newMCPCmd(), newVersionCmd())
	return root
}

// app holds what every command needs. close flushes telemetry and logs.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	tel      *telemetry.Telemetry
	pipeline *pipeline.Pipeline
}

// bootstrap loads configuration, lets mutate adjust it, then wires logging,
// telemetry and the pipeline.
func bootstrap(ctx context.Context, mutate func(*config.Config)) (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if mutate != nil {
		mutate(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	telemetry.Version = version
	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logCfg, err := logging.FromAppConfig(cfg.Logging, tel.Enabled())
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if tel.Degraded() {
		logger.Warn(ctx, "telemetry exporter unavailable, continuing without export",
			zap.String("endpoint", cfg.Telemetry.Endpoint))
	}

	p, err := pipeline.FromConfig(ctx, cfg, logger, http.DefaultClient)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, tel: tel, pipeline: p}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.pipeline.Close(); err != nil {
		a.logger.Warn(ctx, "closing sink", zap.Error(err))
	}
	// Shutdown must outlive a canceled command context.
	if err := a.tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "repodescribe %s\n", version)
			fmt.Fprintf(out, "Git Commit: %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}
