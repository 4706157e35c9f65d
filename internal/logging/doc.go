// Package logging provides structured logging for repodescribe.
//
// # Overview
//
// Logging wraps Zap with:
//   - A custom Trace level (-2, below Debug) for per-node walker chatter
//   - Dual output (stderr + OpenTelemetry log bridge)
//   - Automatic context fields (trace_id, run.id, repo, node.path)
//   - Secret redaction for credential-shaped keys and values
//
// Logs go to stderr so the describe command can print the summary on stdout.
//
// # Usage
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	ctx = logging.WithRepository(ctx, "octocat/hello-world")
//	logger.Info(ctx, "walk finished", zap.Int("annotations", n))
package logging
