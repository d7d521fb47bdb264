// Package index runs the ingestion pipeline end to end and hands back a
// Retriever over the freshly built index.
//
// Every run is a full rebuild: documents are loaded, normalised, split and
// embedded, written into a staging directory next to the persistence
// directory, and swapped into place only once complete. A sibling lock file
// keeps two runs from building into the same directory.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/corpusrag/internal/chunk"
	"github.com/Aman-CERP/corpusrag/internal/document"
	"github.com/Aman-CERP/corpusrag/internal/embed"
	crerrors "github.com/Aman-CERP/corpusrag/internal/errors"
	"github.com/Aman-CERP/corpusrag/internal/normalize"
	"github.com/Aman-CERP/corpusrag/internal/source"
	"github.com/Aman-CERP/corpusrag/internal/store"
	"github.com/Aman-CERP/corpusrag/internal/telemetry"
	"github.com/Aman-CERP/corpusrag/internal/ui"
)

// DefaultTopK is the number of results a Retriever returns when unset.
const DefaultTopK = 4

// Config configures a pipeline run.
type Config struct {
	// PersistDir is the index directory. It is replaced wholesale on success.
	PersistDir string

	// BatchSize is the number of chunk texts per embedding request.
	BatchSize int

	// TopK is the result count of the returned Retriever.
	TopK int
}

// DocumentSource yields every Document of a run. *source.Aggregator satisfies it.
type DocumentSource interface {
	Load(ctx context.Context) ([]document.Document, source.Stats, error)
}

// ErrorReporter receives build failures. telemetry.SentryReporter satisfies it.
type ErrorReporter interface {
	CaptureError(ctx context.Context, err error, tags map[string]string)
}

// Deps holds the collaborators of a Pipeline.
type Deps struct {
	Source     DocumentSource        // required
	Splitter   *chunk.Splitter       // required
	Embedder   embed.Embedder        // required
	Normalizer *normalize.Normalizer // defaults to normalize.ForCurrentOS(false)
	Renderer   ui.Renderer           // defaults to ui.NopRenderer
	Logger     *slog.Logger
	Reporter   ErrorReporter
	Metrics    *telemetry.QueryMetrics // attached to the returned Retriever
}

// RunResult describes a successful run.
type RunResult struct {
	RunID     string
	Documents int
	Files     int // corpus files handed to a loader
	Pages     int // web pages fetched
	Chunks    int
	Duration  time.Duration
	Stages    ui.StageTimings
	Manifest  store.Manifest
}

// Pipeline builds an index from its Deps.
type Pipeline struct {
	cfg        Config
	source     DocumentSource
	splitter   *chunk.Splitter
	embedder   embed.Embedder
	normalizer *normalize.Normalizer
	renderer   ui.Renderer
	logger     *slog.Logger
	reporter   ErrorReporter
	metrics    *telemetry.QueryMetrics
}

// NewPipeline validates cfg and deps.
func NewPipeline(cfg Config, deps Deps) (*Pipeline, error) {
	if cfg.PersistDir == "" {
		return nil, crerrors.ConfigError("persistence directory is required", nil)
	}
	if deps.Source == nil {
		return nil, errors.New("document source is required")
	}
	if deps.Splitter == nil {
		return nil, errors.New("splitter is required")
	}
	if err := deps.Splitter.Validate(); err != nil {
		return nil, crerrors.New(crerrors.ErrCodeInvalidSplitter, "invalid splitter", err)
	}
	if deps.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	cfg.PersistDir = filepath.Clean(cfg.PersistDir)

	p := &Pipeline{
		cfg:        cfg,
		source:     deps.Source,
		splitter:   deps.Splitter,
		embedder:   deps.Embedder,
		normalizer: deps.Normalizer,
		renderer:   deps.Renderer,
		logger:     deps.Logger,
		reporter:   deps.Reporter,
		metrics:    deps.Metrics,
	}
	if p.normalizer == nil {
		p.normalizer = normalize.ForCurrentOS(false)
	}
	if p.renderer == nil {
		p.renderer = ui.NopRenderer{}
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	return p, nil
}

// Run rebuilds the index and returns a Retriever over it.
func (p *Pipeline) Run(ctx context.Context) (*Retriever, error) {
	r, _, err := p.RunWithResult(ctx)
	return r, err
}

// RunWithResult is Run plus the run statistics.
// Any failure is logged once as "index build failed", reported, and returned;
// the previous index, if any, is left untouched.
func (p *Pipeline) RunWithResult(ctx context.Context) (*Retriever, RunResult, error) {
	runID := uuid.NewString()
	logger := p.logger.With(slog.String("run_id", runID))

	res, err := p.build(ctx, runID, logger)
	if err == nil {
		var r *Retriever
		r, err = Open(ctx, p.cfg.PersistDir, p.embedder, p.cfg.TopK,
			WithLogger(p.logger), WithMetrics(p.metrics))
		if err == nil {
			return r, res, nil
		}
	}

	logger.Error("index build failed", crerrors.LogAttrs(err)...)
	p.renderer.AddError(ui.ErrorEvent{Item: p.cfg.PersistDir, Err: err})
	if p.reporter != nil {
		p.reporter.CaptureError(ctx, err, map[string]string{
			"run_id":      runID,
			"persist_dir": p.cfg.PersistDir,
			"error_code":  crerrors.GetCode(err),
		})
	}
	return nil, res, err
}

func (p *Pipeline) build(ctx context.Context, runID string, logger *slog.Logger) (RunResult, error) {
	start := time.Now()
	res := RunResult{RunID: runID}
	dir := p.cfg.PersistDir

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return res, crerrors.New(crerrors.ErrCodeIndexFailed, "create persistence parent", err).WithDetail("dir", dir)
	}
	lock, err := store.AcquireDirLock(dir)
	if err != nil {
		return res, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("release index lock", slog.String("error", err.Error()))
		}
	}()

	if removed, err := store.CleanStale(dir); err != nil {
		logger.Warn("remove stale index directories", slog.String("error", err.Error()))
	} else if len(removed) > 0 {
		logger.Info("removed stale index directories", slog.Any("dirs", removed))
	}

	logger.Info("index build started", slog.String("dir", dir), slog.String("model", p.embedder.ModelName()))

	// Load
	stageStart := time.Now()
	p.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageLoading, Message: "Loading documents..."})
	docs, stats, err := p.source.Load(ctx)
	if err != nil {
		return res, err
	}
	p.normalizer.Documents(docs)
	for i := range docs {
		if err := docs[i].Validate(); err != nil {
			return res, crerrors.New(crerrors.ErrCodeInvalidInput, fmt.Sprintf("document %d", i), err)
		}
	}
	res.Documents = len(docs)
	res.Files = stats.Corpus.Files
	res.Pages = stats.Pages
	res.Stages.Load = time.Since(stageStart)

	// Chunk
	stageStart = time.Now()
	p.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageChunking, Message: fmt.Sprintf("Splitting %d documents...", len(docs))})
	chunks, err := p.splitter.SplitDocuments(docs)
	if err != nil {
		return res, crerrors.New(crerrors.ErrCodeChunkingFailed, "split documents", err)
	}
	res.Chunks = len(chunks)
	res.Stages.Chunk = time.Since(stageStart)
	logger.Info("documents split", slog.Int("documents", len(docs)), slog.Int("chunks", len(chunks)))

	staging := store.StagingDir(dir)
	w, err := store.NewWriter(staging, store.DefaultVectorStoreConfig(p.embedder.Dimensions()))
	if err != nil {
		return res, crerrors.New(crerrors.ErrCodeIndexFailed, "create staging index", err).WithDetail("dir", staging)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := w.Abort(); err != nil {
			logger.Warn("remove staging index", slog.String("dir", staging), slog.String("error", err.Error()))
		}
	}()

	// Embed
	stageStart = time.Now()
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	p.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Total: len(texts)})
	vectors, err := embed.EmbedAll(ctx, p.embedder, texts, p.cfg.BatchSize, func(done, total int) {
		p.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Current: done, Total: total})
		logger.Debug("embedding progress", slog.Int("done", done), slog.Int("total", total))
	})
	if err != nil {
		return res, crerrors.New(crerrors.ErrCodeEmbeddingFailed, "embed chunks", err).
			WithDetail("model", p.embedder.ModelName())
	}
	res.Stages.Embed = time.Since(stageStart)

	// Index
	stageStart = time.Now()
	p.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageIndexing, Message: "Writing index..."})
	if err := w.Add(ctx, toStoreChunks(chunks), vectors); err != nil {
		return res, crerrors.New(crerrors.ErrCodeIndexFailed, "write index", err).WithDetail("dir", staging)
	}
	manifest, err := w.Commit(ctx, store.Manifest{Model: p.embedder.ModelName(), RunID: runID})
	if err != nil {
		return res, crerrors.New(crerrors.ErrCodeIndexFailed, "commit index", err).WithDetail("dir", staging)
	}
	if err := store.Swap(staging, dir); err != nil {
		return res, crerrors.New(crerrors.ErrCodeIndexFailed, "replace index", err).WithDetail("dir", dir)
	}
	committed = true
	res.Manifest = manifest
	res.Stages.Index = time.Since(stageStart)
	res.Duration = time.Since(start)

	p.renderer.Complete(ui.CompletionStats{
		Documents: res.Documents,
		Chunks:    res.Chunks,
		Duration:  res.Duration,
		Stages:    res.Stages,
		Embedder: ui.EmbedderInfo{
			Provider:   providerOf(p.embedder),
			Model:      p.embedder.ModelName(),
			Dimensions: p.embedder.Dimensions(),
		},
	})
	logger.Info("index build complete",
		slog.String("dir", dir),
		slog.Int("documents", res.Documents),
		slog.Int("files", res.Files),
		slog.Int("pages", res.Pages),
		slog.Int("chunks", res.Chunks),
		slog.Int64("duration_ms", res.Duration.Milliseconds()),
		slog.Int64("duration_load_ms", res.Stages.Load.Milliseconds()),
		slog.Int64("duration_chunk_ms", res.Stages.Chunk.Milliseconds()),
		slog.Int64("duration_embed_ms", res.Stages.Embed.Milliseconds()),
		slog.Int64("duration_index_ms", res.Stages.Index.Milliseconds()))
	return res, nil
}

func toStoreChunks(docs []document.Document) []store.Chunk {
	out := make([]store.Chunk, len(docs))
	for i, d := range docs {
		out[i] = store.Chunk{Content: d.Content, Metadata: d.Metadata}
	}
	return out
}

// providerOf names the backend behind e for progress output.
func providerOf(e embed.Embedder) string {
	if c, ok := e.(*embed.CachedEmbedder); ok {
		e = c.Inner()
	}
	switch e.(type) {
	case *embed.OpenAIEmbedder:
		return string(embed.ProviderOpenAI)
	case *embed.OllamaEmbedder:
		return string(embed.ProviderOllama)
	case *embed.StaticEmbedder:
		return string(embed.ProviderStatic)
	default:
		return "custom"
	}
}
