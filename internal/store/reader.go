package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	crerrors "github.com/Aman-CERP/corpusrag/internal/errors"
)

// Reader serves searches from a committed index directory.
// Safe for concurrent use.
type Reader struct {
	dir      string
	manifest Manifest
	vectors  *HNSWStore
	chunks   *ChunkStore
}

// OpenReader opens the index in dir. A missing directory or database is
// ERR_205_INDEX_NOT_FOUND; a database without manifest or with mismatched
// counts is ERR_204_CORRUPT_INDEX. A missing graph file is rebuilt from the
// embeddings stored alongside the chunks.
func OpenReader(ctx context.Context, dir string, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dbPath := filepath.Join(dir, ChunksFile)
	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, crerrors.New(crerrors.ErrCodeIndexNotFound, "no index at "+dir, err).
				WithDetail("dir", dir).
				WithSuggestion("Run 'corpusrag index' first")
		}
		return nil, fmt.Errorf("stat index: %w", err)
	}

	chunks, err := OpenChunkStore(dbPath)
	if err != nil {
		return nil, corrupt(dir, err)
	}

	r, err := openStores(ctx, dir, chunks, logger)
	if err != nil {
		_ = chunks.Close()
		return nil, err
	}
	return r, nil
}

func openStores(ctx context.Context, dir string, chunks *ChunkStore, logger *slog.Logger) (*Reader, error) {
	m, err := chunks.ReadManifest(ctx)
	if err != nil {
		return nil, corrupt(dir, err)
	}

	vectors, err := NewHNSWStore(DefaultVectorStoreConfig(m.Dimensions))
	if err != nil {
		return nil, corrupt(dir, err)
	}

	graphPath := filepath.Join(dir, VectorsFile)
	switch _, statErr := os.Stat(graphPath + ".meta"); {
	case statErr == nil:
		err = vectors.Load(graphPath)
	case m.ChunkCount == 0:
		// An empty index is committed without a graph.
	default:
		logger.Warn("vector graph missing, rebuilding from stored embeddings",
			slog.String("dir", dir), slog.Int("chunks", m.ChunkCount))
		var (
			ids  []string
			vecs [][]float32
		)
		ids, vecs, err = chunks.Embeddings(ctx)
		if err == nil {
			err = vectors.Add(ctx, ids, vecs)
		}
	}
	if err == nil && vectors.Count() != m.ChunkCount {
		err = fmt.Errorf("graph holds %d vectors, manifest says %d chunks", vectors.Count(), m.ChunkCount)
	}
	if err != nil {
		_ = vectors.Close()
		return nil, corrupt(dir, err)
	}

	return &Reader{dir: dir, manifest: m, vectors: vectors, chunks: chunks}, nil
}

func corrupt(dir string, err error) *crerrors.Error {
	return crerrors.New(crerrors.ErrCodeCorruptIndex, "index at "+dir+" is unreadable", err).
		WithDetail("dir", dir).
		WithSuggestion("Rebuild the index with 'corpusrag index'")
}

// Manifest returns the manifest of the open index.
func (r *Reader) Manifest() Manifest {
	return r.manifest
}

// Dir returns the index directory.
func (r *Reader) Dir() string {
	return r.dir
}

// Search returns up to k chunks nearest to query, closest first.
func (r *Reader) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	results, err := r.vectors.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return []Hit{}, nil
	}

	ids := make([]string, len(results))
	for i, res := range results {
		ids[i] = res.ID
	}
	chunks, err := r.chunks.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	hits := make([]Hit, 0, len(results))
	for _, res := range results {
		c, ok := byID[res.ID]
		if !ok {
			return nil, corrupt(r.dir, fmt.Errorf("chunk %s missing from %s", res.ID, ChunksFile))
		}
		hits = append(hits, Hit{Chunk: c, Distance: res.Distance, Score: res.Score})
	}
	return hits, nil
}

// Close releases both stores.
func (r *Reader) Close() error {
	return errors.Join(r.vectors.Close(), r.chunks.Close())
}
