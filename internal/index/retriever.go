package index

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Aman-CERP/corpusrag/internal/document"
	"github.com/Aman-CERP/corpusrag/internal/embed"
	crerrors "github.com/Aman-CERP/corpusrag/internal/errors"
	"github.com/Aman-CERP/corpusrag/internal/store"
	"github.com/Aman-CERP/corpusrag/internal/telemetry"
)

// DefaultQueryCacheSize is the number of query embeddings a Retriever keeps.
const DefaultQueryCacheSize = 256

// ErrEmptyQuery is returned for a blank query. Match it with errors.Is.
var ErrEmptyQuery = crerrors.Sentinel(crerrors.ErrCodeQueryEmpty)

// Result is one retrieved chunk.
type Result struct {
	Document document.Document
	Score    float32 // cosine similarity mapped to 0-1, higher is closer
}

type openOptions struct {
	logger    *slog.Logger
	metrics   *telemetry.QueryMetrics
	cacheSize int
}

// OpenOption configures Open.
type OpenOption func(*openOptions)

// WithLogger sets the Retriever logger.
func WithLogger(l *slog.Logger) OpenOption {
	return func(o *openOptions) { o.logger = l }
}

// WithMetrics records every search into m.
func WithMetrics(m *telemetry.QueryMetrics) OpenOption {
	return func(o *openOptions) { o.metrics = m }
}

// WithQueryCacheSize sets the query embedding cache size.
func WithQueryCacheSize(n int) OpenOption {
	return func(o *openOptions) { o.cacheSize = n }
}

// Retriever answers top-k similarity queries over one opened index.
// Safe for concurrent use. It does not own the embedder.
type Retriever struct {
	reader   *store.Reader
	embedder *embed.CachedEmbedder
	k        int
	metrics  *telemetry.QueryMetrics
	logger   *slog.Logger
}

// Open opens the index in dir for searching with e, returning k results per
// query. The embedder must produce vectors of the dimension the index was
// built with.
func Open(ctx context.Context, dir string, e embed.Embedder, k int, opts ...OpenOption) (*Retriever, error) {
	o := openOptions{cacheSize: DefaultQueryCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if k <= 0 {
		return nil, crerrors.ConfigError("retriever k must be positive", nil).WithDetail("k", strconv.Itoa(k))
	}

	reader, err := store.OpenReader(ctx, dir, o.logger)
	if err != nil {
		return nil, err
	}

	m := reader.Manifest()
	if m.Dimensions != e.Dimensions() {
		_ = reader.Close()
		return nil, crerrors.New(crerrors.ErrCodeDimensionMismatch, "embedder does not match index", nil).
			WithDetail("index_model", m.Model).
			WithDetail("index_dimensions", strconv.Itoa(m.Dimensions)).
			WithDetail("embedder_model", e.ModelName()).
			WithDetail("embedder_dimensions", strconv.Itoa(e.Dimensions())).
			WithSuggestion("Use the embedding model the index was built with, or rebuild the index")
	}
	if m.Model != e.ModelName() {
		o.logger.Warn("embedder model differs from index model",
			slog.String("index_model", m.Model), slog.String("embedder_model", e.ModelName()))
	}

	o.logger.Info("index opened",
		slog.String("dir", dir),
		slog.Int("chunks", m.ChunkCount),
		slog.String("model", m.Model),
		slog.String("run_id", m.RunID))

	return &Retriever{
		reader:   reader,
		embedder: embed.NewCachedEmbedder(e, o.cacheSize),
		k:        k,
		metrics:  o.metrics,
		logger:   o.logger,
	}, nil
}

// K returns the default result count.
func (r *Retriever) K() int {
	return r.k
}

// Manifest describes the opened index.
func (r *Retriever) Manifest() store.Manifest {
	return r.reader.Manifest()
}

// Search returns the K chunks most similar to query, best first.
func (r *Retriever) Search(ctx context.Context, query string) ([]Result, error) {
	return r.SearchTopK(ctx, query, r.k)
}

// SearchTopK is Search with an explicit result count; k <= 0 means K.
func (r *Retriever) SearchTopK(ctx context.Context, query string, k int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = r.k
	}

	start := time.Now()
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, crerrors.New(crerrors.ErrCodeEmbeddingFailed, "embed query", err)
	}

	hits, err := r.reader.Search(ctx, vec, k)
	if err != nil {
		return nil, crerrors.New(crerrors.ErrCodeSearchFailed, "search index", err)
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			Document: document.Document{Content: h.Chunk.Content, Metadata: h.Chunk.Metadata},
			Score:    h.Score,
		}
	}

	latency := time.Since(start)
	r.metrics.Record(telemetry.QueryEvent{Query: query, ResultCount: len(results), Latency: latency})
	r.logger.Debug("search complete",
		slog.Int("k", k),
		slog.Int("results", len(results)),
		slog.Int64("latency_ms", latency.Milliseconds()))
	return results, nil
}

// Close releases the index. The embedder stays open.
func (r *Retriever) Close() error {
	return r.reader.Close()
}
