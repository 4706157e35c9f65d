package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repodescribe/internal/pipeline"
	"github.com/fyrsmithlabs/repodescribe/internal/sink"
	"github.com/fyrsmithlabs/repodescribe/internal/source"
	"github.com/fyrsmithlabs/repodescribe/internal/walker"
)

const describeToolName = "describe_repository"

type describeInput struct {
	Repository string `json:"repository" jsonschema:"Repository as owner/name or a GitHub URL"`
	Ref        string `json:"ref,omitempty" jsonschema:"Branch, tag or commit (default branch if empty)"`
	Path       string `json:"path,omitempty" jsonschema:"Sub-directory to describe (repository root if empty)"`
	Author     string `json:"author,omitempty" jsonschema:"Author recorded in the summary metadata"`
	Namespace  string `json:"namespace,omitempty" jsonschema:"Storage namespace override"`
}

type describeOutput struct {
	RunID      string       `json:"run_id" jsonschema:"Run identifier"`
	Repository string       `json:"repository" jsonschema:"owner/name"`
	Paragraph  string       `json:"paragraph" jsonschema:"Generated repository description"`
	URL        string       `json:"url" jsonschema:"Repository web URL"`
	Author     string       `json:"author" jsonschema:"Author recorded in the summary metadata"`
	Namespace  string       `json:"namespace" jsonschema:"Namespace the summary was stored under"`
	Stored     bool         `json:"stored" jsonschema:"Whether the sink accepted the summary"`
	Stats      walker.Stats `json:"stats" jsonschema:"Walk counters"`
	Failures   []string     `json:"failures,omitempty" jsonschema:"Files or chunks that contributed nothing"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        describeToolName,
		Description: "Walk a GitHub repository, describe each file with an LLM and store a one-paragraph summary",
	}, s.handleDescribe)
}

func (s *Server) handleDescribe(ctx context.Context, _ *mcp.CallToolRequest, args describeInput) (*mcp.CallToolResult, describeOutput, error) {
	var (
		report *pipeline.Report
		runErr error
	)
	done := s.metrics.begin(ctx)
	defer func() { done(report, runErr) }()

	repo, err := source.ParseRepository(args.Repository)
	if err != nil {
		runErr = &inputError{field: "repository", err: err}
		return nil, describeOutput{}, runErr
	}
	if args.Ref != "" {
		repo.Ref = args.Ref
	}
	if args.Path != "" {
		repo.Path = args.Path
	}
	if args.Namespace != "" {
		if err := sink.ValidateNamespace(args.Namespace); err != nil {
			runErr = &inputError{field: "namespace", err: err}
			return nil, describeOutput{}, runErr
		}
	}

	report, runErr = s.runner.Run(ctx, pipeline.Request{
		Repository: repo,
		Author:     args.Author,
		Namespace:  args.Namespace,
	})
	if runErr != nil && (report == nil || report.Summary == nil) {
		return nil, describeOutput{}, fmt.Errorf("describe %s failed: %w", repo.FullName(), runErr)
	}

	out := toOutput(report)
	text := out.Paragraph
	if runErr != nil {
		// The summary exists but the upload failed.
		s.logger.Warn("summary not stored", zap.String("repository", repo.FullName()), zap.Error(runErr))
		text = fmt.Sprintf("%s\n\n(not stored: %v)", out.Paragraph, runErr)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}, out, nil
}

func toOutput(r *pipeline.Report) describeOutput {
	out := describeOutput{
		RunID:      r.RunID,
		Repository: r.Repository,
		Namespace:  r.Namespace,
		Stored:     r.Stored,
		Stats:      r.Stats,
	}
	if r.Summary != nil {
		out.Paragraph = r.Summary.Paragraph
		out.URL = r.Summary.Metadata.URL
		out.Author = r.Summary.Metadata.Author
	}
	for _, f := range r.Failures {
		out.Failures = append(out.Failures, f.String())
	}
	return out
}
