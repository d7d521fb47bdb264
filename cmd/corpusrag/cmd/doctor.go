package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	crerrors "github.com/Aman-CERP/corpusrag/internal/errors"
	"github.com/Aman-CERP/corpusrag/internal/output"
	"github.com/Aman-CERP/corpusrag/internal/preflight"
)

type doctorOptions struct {
	verbose bool
	json    bool
}

func newDoctorCmd(a *app) *cobra.Command {
	var opts doctorOptions

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that corpusrag can build and query an index",
		Long: `Run preflight checks: the corpus root, write access and free space
next to the index directory, file descriptor limits, the embedding provider,
and whether an existing index matches the configured embedder.

Exits non-zero when a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.Context(), cmd, a, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Show check details")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output results as JSON")

	return cmd
}

func runDoctor(ctx context.Context, cmd *cobra.Command, a *app, opts doctorOptions) error {
	target := preflight.Target{
		CorpusRoot: a.cfg.Corpus.Root,
		PersistDir: a.cfg.Index.PersistDir,
		Supports:   newDispatcher(a.cfg).Supports,
	}
	embedder, err := newEmbedder(ctx, a.cfg)
	if err != nil {
		target.EmbedderErr = err
	} else {
		defer func() { _ = embedder.Close() }()
		target.Embedder = embedder
	}

	checker := preflight.New(preflight.WithVerbose(opts.verbose))
	results := checker.RunAll(ctx, target)

	if opts.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return fmt.Errorf("encode results: %w", err)
		}
	} else {
		checker.PrintResults(output.New(cmd.OutOrStdout()), results)
	}

	if checker.HasCriticalFailures(results) {
		return crerrors.New(crerrors.ErrCodePreflightFailed, "preflight checks failed", nil).
			WithSuggestion("Fix the failed checks above and run 'corpusrag doctor' again")
	}
	a.logger.Debug("preflight passed")
	return nil
}
