package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/corpusrag/internal/config"
	"github.com/Aman-CERP/corpusrag/internal/embed"
	crerrors "github.com/Aman-CERP/corpusrag/internal/errors"
	"github.com/Aman-CERP/corpusrag/internal/index"
	"github.com/Aman-CERP/corpusrag/internal/store"
	"github.com/Aman-CERP/corpusrag/internal/telemetry"
	"github.com/Aman-CERP/corpusrag/internal/ui"
	"github.com/Aman-CERP/corpusrag/internal/watcher"
)

// watchOptions holds CLI flags for watch.
type watchOptions struct {
	skipInitial bool
}

func newWatchCmd(a *app) *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild the index whenever the corpus changes",
		Long: `Build the index, then watch the corpus root and rebuild after every burst
of changes to supported files. Each rebuild is a full rebuild.

Set watch.poll_interval to poll instead of using filesystem events, for
network mounts and containers where events are unreliable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			embedder, err := newEmbedder(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = embedder.Close() }()

			rw := &rebuildWatch{cfg: a.cfg, embedder: embedder, logger: a.logger}
			err = rw.run(ctx, !opts.skipInitial)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&opts.skipInitial, "skip-initial", false, "Do not build before the first change")

	return cmd
}

// rebuildWatch rebuilds the index on corpus changes and hands every new
// Retriever to onRebuild. Without onRebuild the Retriever is closed.
type rebuildWatch struct {
	cfg       *config.Config
	embedder  embed.Embedder
	metrics   *telemetry.QueryMetrics
	renderer  ui.Renderer
	logger    *slog.Logger
	onRebuild func(*index.Retriever)
}

// rebuild runs one full pipeline.
func (rw *rebuildWatch) rebuild(ctx context.Context) error {
	pipeline, err := newPipeline(rw.cfg, pipelineDeps{
		embedder: rw.embedder,
		renderer: rw.renderer,
		metrics:  rw.metrics,
		logger:   rw.logger,
	})
	if err != nil {
		return err
	}
	retriever, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}
	if rw.onRebuild == nil {
		return retriever.Close()
	}
	rw.onRebuild(retriever)
	return nil
}

// run optionally builds once, then rebuilds on every change batch until
// ctx is canceled.
func (rw *rebuildWatch) run(ctx context.Context, initial bool) error {
	if initial {
		if err := rw.rebuild(ctx); err != nil {
			if crerrors.IsFatal(err) || ctx.Err() != nil {
				return err
			}
			rw.logger.Warn("initial build failed, waiting for changes", crerrors.LogAttrs(err)...)
		}
	}

	root, err := filepath.Abs(rw.cfg.Corpus.Root)
	if err != nil {
		return fmt.Errorf("resolve corpus root: %w", err)
	}
	dispatcher := newDispatcher(rw.cfg)
	walker := newWalker(rw.cfg, dispatcher, rw.logger)
	filter := changeFilter(root, rw.cfg.Index.PersistDir, walker.Excluded, dispatcher.Supports)

	w := watcher.New(walker, watcher.Options{
		Debounce:     rw.cfg.Watch.Debounce,
		PollInterval: rw.cfg.Watch.PollInterval,
		Filter:       filter,
	}, rw.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Start(gctx, root)
	})
	g.Go(func() error {
		defer func() { _ = w.Stop() }()
		return watcher.Loop(gctx, w, func(ctx context.Context, _ []watcher.FileEvent) error {
			return rw.rebuild(ctx)
		}, rw.logger)
	})
	return g.Wait()
}

// changeFilter accepts directories and supported files under root, except
// excluded paths, anything inside the index directory, and the staging,
// retired and lock siblings the store creates next to it.
func changeFilter(root, persistDir string, excluded func(root, path string, isDir bool) bool, supports func(path string) bool) func(string, bool) bool {
	indexDir, err := filepath.Abs(persistDir)
	if err != nil {
		indexDir = filepath.Clean(persistDir)
	}
	siblings := store.SiblingPrefix(indexDir)
	lockPath := store.LockPath(indexDir)
	return func(path string, isDir bool) bool {
		if path == indexDir || strings.HasPrefix(path, indexDir+string(filepath.Separator)) ||
			strings.HasPrefix(path, siblings) || path == lockPath {
			return false
		}
		if excluded(root, path, isDir) {
			return false
		}
		return isDir || supports(path)
	}
}
