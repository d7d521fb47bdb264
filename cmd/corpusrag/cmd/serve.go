package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/corpusrag/internal/async"
	crerrors "github.com/Aman-CERP/corpusrag/internal/errors"
	"github.com/Aman-CERP/corpusrag/internal/index"
	"github.com/Aman-CERP/corpusrag/internal/mcp"
	"github.com/Aman-CERP/corpusrag/internal/telemetry"
)

// retireGrace is how long a replaced Retriever stays open for searches
// that started before the swap.
const retireGrace = 5 * time.Second

// serveOptions holds CLI flags for serve.
type serveOptions struct {
	watch bool
}

func newServeCmd(a *app) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		Long: `Serve the index to MCP clients over stdin/stdout.

Tools:     search, stats (stats also reports rebuild progress with --watch)
Resources: corpusrag://index, corpusrag://query_metrics

stdout carries JSON-RPC only; logs go to the log file. With --watch the
index is rebuilt on corpus changes and swapped in without a restart.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationStdio: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Rebuild the index on corpus changes")

	return cmd
}

func runServe(ctx context.Context, a *app, opts serveOptions) error {
	embedder, err := newEmbedder(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	metrics := telemetry.NewQueryMetrics(telemetry.DefaultQueryMetricsConfig())

	// A missing index is not fatal: tools report it until one is built.
	var searcher mcp.Searcher
	retriever, err := openRetriever(ctx, a.cfg, embedder, metrics, a.logger)
	switch {
	case err == nil:
		searcher = retriever
	case crerrors.GetCode(err) == crerrors.ErrCodeIndexNotFound:
		a.logger.Warn("no index yet, serving without one", crerrors.LogAttrs(err)...)
	default:
		return err
	}

	server := mcp.NewServer(searcher, metrics, a.logger)
	defer func() {
		if r, ok := server.SetSearcher(nil).(*index.Retriever); ok && r != nil {
			_ = r.Close()
		}
	}()

	if !opts.watch {
		return server.Serve(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The client disconnecting ends the watch too.
		defer cancel()
		return server.Serve(gctx)
	})
	builds := async.NewBuildProgress()
	server.SetBuildProgress(builds)
	g.Go(func() error {
		rw := &rebuildWatch{
			cfg:      a.cfg,
			embedder: embedder,
			metrics:  metrics,
			renderer: builds,
			logger:   a.logger,
			onRebuild: func(next *index.Retriever) {
				swapSearcher(server, next, a.logger)
			},
		}
		// The index was just opened, so only build up front when it is missing.
		err := rw.run(gctx, searcher == nil)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return g.Wait()
}

// swapSearcher installs next and closes the previous Retriever after
// retireGrace.
func swapSearcher(server *mcp.Server, next *index.Retriever, logger *slog.Logger) {
	prev := server.SetSearcher(next)
	logger.Info("index swapped",
		slog.String("run_id", next.Manifest().RunID),
		slog.Int("chunks", next.Manifest().ChunkCount))

	old, ok := prev.(*index.Retriever)
	if !ok || old == nil {
		return
	}
	time.AfterFunc(retireGrace, func() {
		if err := old.Close(); err != nil {
			logger.Warn("close replaced index", slog.String("error", err.Error()))
		}
	})
}
