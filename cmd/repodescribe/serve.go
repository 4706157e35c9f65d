package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/repodescribe/internal/http"
	"github.com/fyrsmithlabs/repodescribe/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the describe HTTP API",
		Long: `Start an HTTP server exposing:

  POST /api/v1/describe   run the pipeline for {"repository": "owner/name"}
  GET  /health            liveness
  GET  /metrics           Prometheus metrics`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, nil)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if port != 0 {
				a.cfg.Server.Port = port
			}
			return serve(ctx, a)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "override server.port")
	return cmd
}

// serve blocks until ctx is canceled, then drains in-flight requests.
func serve(ctx context.Context, a *app) error {
	srv, err := httpserver.NewServer(a.pipeline, a.logger.Underlying(), &httpserver.Config{
		Host:              a.cfg.Server.Host,
		Port:              a.cfg.Server.Port,
		MaxConcurrentRuns: int64(a.cfg.Server.MaxConcurrentRuns),
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn(shutdownCtx, "http shutdown", zap.Error(err))
		return err
	}
	return nil
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the describe_repository tool over MCP stdio",
		Long: `Run an MCP server on stdin/stdout exposing the describe_repository tool.
Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, nil)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			srv, err := mcp.NewServer(&mcp.Config{
				Name:    "repodescribe",
				Version: version,
				Logger:  a.logger.Underlying(),
			}, a.pipeline)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
}
