package cmd

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/corpusrag/internal/chunk"
	"github.com/Aman-CERP/corpusrag/internal/config"
	"github.com/Aman-CERP/corpusrag/internal/embed"
	"github.com/Aman-CERP/corpusrag/internal/index"
	"github.com/Aman-CERP/corpusrag/internal/loader"
	"github.com/Aman-CERP/corpusrag/internal/normalize"
	"github.com/Aman-CERP/corpusrag/internal/scanner"
	"github.com/Aman-CERP/corpusrag/internal/source"
	"github.com/Aman-CERP/corpusrag/internal/store"
	"github.com/Aman-CERP/corpusrag/internal/telemetry"
	"github.com/Aman-CERP/corpusrag/internal/ui"
	"github.com/Aman-CERP/corpusrag/internal/web"
)

// newDispatcher builds the loader registry from config.
func newDispatcher(cfg *config.Config) *loader.Dispatcher {
	var opts []loader.Option
	if len(cfg.Loaders.Extensions) > 0 {
		opts = append(opts, loader.WithExtensions(cfg.Loaders.Extensions...))
	}
	opts = append(opts, loader.WithMergeExtensions(cfg.Loaders.MergeExtensions...))
	return loader.NewDispatcher(opts...)
}

// newWalker builds the corpus walker. An index directory inside the corpus
// is excluded together with its staging, retired and lock siblings.
func newWalker(cfg *config.Config, dispatcher *loader.Dispatcher, logger *slog.Logger) *scanner.Walker {
	exclude := append([]string(nil), cfg.Corpus.Exclude...)
	if rel, ok := relativeTo(cfg.Corpus.Root, cfg.Index.PersistDir); ok {
		exclude = append(exclude, "/"+rel)
	}
	if rel, ok := relativeTo(cfg.Corpus.Root, store.SiblingPrefix(cfg.Index.PersistDir)); ok {
		exclude = append(exclude, "/"+rel+"*")
	}
	if rel, ok := relativeTo(cfg.Corpus.Root, store.LockPath(cfg.Index.PersistDir)); ok {
		exclude = append(exclude, "/"+rel)
	}
	return scanner.New(dispatcher, logger, scanner.Options{
		MaxFileSize:     cfg.Corpus.MaxFileSize,
		ExcludePatterns: exclude,
		IgnoreFile:      cfg.Corpus.IgnoreFile,
	})
}

// relativeTo returns path relative to root when path lies inside root.
func relativeTo(root, path string) (string, bool) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// newEmbedder creates the configured embedding backend.
func newEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	return embed.New(ctx, embed.Config{
		Provider:   cfg.Embeddings.Provider,
		Model:      cfg.Embeddings.Model,
		BaseURL:    cfg.Embeddings.BaseURL,
		APIKey:     cfg.Embeddings.APIKey,
		Dimensions: cfg.Embeddings.Dimensions,
		Timeout:    cfg.Embeddings.Timeout,
	})
}

// pipelineDeps are the per-command parts of a pipeline.
type pipelineDeps struct {
	embedder embed.Embedder
	renderer ui.Renderer
	metrics  *telemetry.QueryMetrics
	logger   *slog.Logger
}

// newPipeline wires loaders, walker, web loader, splitter and normaliser
// into an index pipeline.
func newPipeline(cfg *config.Config, deps pipelineDeps) (*index.Pipeline, error) {
	splitter, err := chunk.New(cfg.Chunking.Size, cfg.Chunking.Overlap, cfg.Chunking.Separator)
	if err != nil {
		return nil, err
	}

	dispatcher := newDispatcher(cfg)
	walker := newWalker(cfg, dispatcher, deps.logger)
	pages := web.New(web.Options{
		UserAgent: cfg.Web.UserAgent,
		Timeout:   cfg.Web.Timeout,
		MaxBytes:  cfg.Web.MaxBytes,
	}, deps.logger)

	return index.NewPipeline(index.Config{
		PersistDir: cfg.Index.PersistDir,
		BatchSize:  cfg.Embeddings.BatchSize,
		TopK:       cfg.Retriever.K,
	}, index.Deps{
		Source:     source.New(walker, pages, cfg.Corpus.Root, cfg.Corpus.URLs, deps.logger),
		Splitter:   splitter,
		Embedder:   deps.embedder,
		Normalizer: normalize.ForCurrentOS(cfg.Normalize.Force),
		Renderer:   deps.renderer,
		Logger:     deps.logger,
		Reporter:   telemetry.SentryReporter{},
		Metrics:    deps.metrics,
	})
}

// openRetriever opens the persisted index for searching.
func openRetriever(ctx context.Context, cfg *config.Config, e embed.Embedder, metrics *telemetry.QueryMetrics, logger *slog.Logger) (*index.Retriever, error) {
	return index.Open(ctx, cfg.Index.PersistDir, e, cfg.Retriever.K,
		index.WithLogger(logger),
		index.WithMetrics(metrics),
		index.WithQueryCacheSize(cfg.Retriever.CacheSize))
}
