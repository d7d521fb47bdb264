package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/corpusrag/internal/index"
	"github.com/Aman-CERP/corpusrag/internal/ui"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	plain   bool
	noColor bool
	json    bool
}

// indexSummary is the --json output of index.
type indexSummary struct {
	RunID      string `json:"run_id"`
	PersistDir string `json:"persist_dir"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Documents  int    `json:"documents"`
	Files      int    `json:"files"`
	Pages      int    `json:"pages"`
	Chunks     int    `json:"chunks"`
	DurationMS int64  `json:"duration_ms"`
}

func newIndexCmd(a *app) *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the vector index from the corpus and web pages",
		Long: `Load every supported file under the corpus root and every configured URL,
split the text into chunks, embed them and write a new index.

The previous index is replaced only when the new one is complete; a failed
run leaves it untouched.

Examples:
  corpusrag index
  corpusrag index --root ./docs --persist-dir ./vectorstore
  corpusrag index --url https://example.com/guide --provider ollama
  corpusrag index --provider static --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, a, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain progress output (no TUI)")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colors")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the run summary as JSON")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, a *app, opts indexOptions) error {
	cfg := a.cfg
	out := cmd.OutOrStdout()

	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	var renderer ui.Renderer = ui.NopRenderer{}
	if !opts.json {
		renderer = ui.NewRenderer(ui.NewConfig(out,
			ui.WithForcePlain(opts.plain),
			ui.WithNoColor(opts.noColor || ui.DetectNoColor()),
			ui.WithTitle(cfg.Index.PersistDir)))
	}
	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("start progress display: %w", err)
	}

	pipeline, err := newPipeline(cfg, pipelineDeps{
		embedder: embedder,
		renderer: renderer,
		logger:   a.logger,
	})
	if err != nil {
		_ = renderer.Stop()
		return err
	}

	retriever, res, err := pipeline.RunWithResult(ctx)
	if stopErr := renderer.Stop(); stopErr != nil {
		a.logger.Warn("stop progress display", slog.String("error", stopErr.Error()))
	}
	if err != nil {
		return err
	}
	defer func() { _ = retriever.Close() }()

	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summarize(cfg.Index.PersistDir, res))
	}
	_, err = fmt.Fprintf(out, "Index written to %s (%d chunks from %d files and %d pages)\n",
		cfg.Index.PersistDir, res.Chunks, res.Files, res.Pages)
	return err
}

func summarize(dir string, res index.RunResult) indexSummary {
	return indexSummary{
		RunID:      res.RunID,
		PersistDir: dir,
		Model:      res.Manifest.Model,
		Dimensions: res.Manifest.Dimensions,
		Documents:  res.Documents,
		Files:      res.Files,
		Pages:      res.Pages,
		Chunks:     res.Chunks,
		DurationMS: res.Duration.Round(time.Millisecond).Milliseconds(),
	}
}
