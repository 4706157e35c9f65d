package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/repodescribe/internal/config"
	"github.com/fyrsmithlabs/repodescribe/internal/pipeline"
	"github.com/fyrsmithlabs/repodescribe/internal/sink"
	"github.com/fyrsmithlabs/repodescribe/internal/source"
)

type describeFlags struct {
	ref         string
	path        string
	author      string
	namespace   string
	sinkKind    string
	sourceKind  string
	concurrency int
	jsonOut     bool
}

func newDescribeCmd() *cobra.Command {
	var f describeFlags
	cmd := &cobra.Command{
		Use:   "describe <owner/name | url>",
		Short: "Describe one repository",
		Long: `Walk the repository, annotate every file and store a summary paragraph.

Examples:
  # Describe the default branch
  repodescribe describe octo/hello

  # Describe a sub-directory at a tag and print JSON
  repodescribe describe https://github.com/octo/hello/tree/v1.2.0/pkg --json

  # Clone instead of using the contents API and publish to NATS
  repodescribe describe octo/hello --source git --sink nats`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescribe(cmd, args[0], f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.ref, "ref", "", "branch, tag or commit (default branch if empty)")
	fl.StringVar(&f.path, "path", "", "sub-directory to start from")
	fl.StringVar(&f.author, "author", "", "author recorded in the summary metadata")
	fl.StringVar(&f.namespace, "namespace", "", "storage namespace (default derived from owner/name)")
	fl.StringVar(&f.sinkKind, "sink", "", "override sink.kind (none, log, nats, qdrant, qdrant_rest, chromem)")
	fl.StringVar(&f.sourceKind, "source", "", "override source.kind (github, git)")
	fl.IntVar(&f.concurrency, "concurrency", 0, "override walker.concurrency")
	fl.BoolVar(&f.jsonOut, "json", false, "print the run report as JSON")
	return cmd
}

// request turns the positional argument and flags into a pipeline request.
func (f describeFlags) request(arg string) (pipeline.Request, error) {
	repo, err := source.ParseRepository(arg)
	if err != nil {
		return pipeline.Request{}, err
	}
	if f.ref != "" {
		repo.Ref = f.ref
	}
	if f.path != "" {
		repo.Path = f.path
	}
	if f.namespace != "" {
		if err := sink.ValidateNamespace(f.namespace); err != nil {
			return pipeline.Request{}, err
		}
	}
	return pipeline.Request{Repository: repo, Author: f.author, Namespace: f.namespace}, nil
}

func (f describeFlags) apply(cfg *config.Config) {
	if f.sinkKind != "" {
		cfg.Sink.Kind = f.sinkKind
	}
	if f.sourceKind != "" {
		cfg.Source.Kind = f.sourceKind
	}
	if f.concurrency > 0 {
		cfg.Walker.Concurrency = f.concurrency
	}
}

func runDescribe(cmd *cobra.Command, arg string, f describeFlags) error {
	req, err := f.request(arg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := bootstrap(ctx, f.apply)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	report, runErr := a.pipeline.Run(ctx, req)
	if report != nil {
		out := cmd.OutOrStdout()
		if f.jsonOut {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("encoding report: %w", err)
			}
		} else {
			fmt.Fprint(out, renderReport(report, a.cfg.Sink.Kind))
		}
	}
	return runErr
}
