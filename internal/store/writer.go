package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Writer builds a complete index into a new directory.
// Nothing is visible to readers until Commit writes the manifest.
type Writer struct {
	dir     string
	vectors *HNSWStore
	chunks  *ChunkStore
	count   int
	done    bool
}

// NewWriter creates dir (which must not already hold an index) and opens
// empty stores inside it.
func NewWriter(dir string, cfg VectorStoreConfig) (*Writer, error) {
	if _, err := os.Stat(filepath.Join(dir, ChunksFile)); err == nil {
		return nil, fmt.Errorf("%s already contains an index", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	vectors, err := NewHNSWStore(cfg)
	if err != nil {
		return nil, err
	}
	chunks, err := OpenChunkStore(filepath.Join(dir, ChunksFile))
	if err != nil {
		_ = vectors.Close()
		return nil, err
	}
	return &Writer{dir: dir, vectors: vectors, chunks: chunks}, nil
}

// Dir returns the directory being written.
func (w *Writer) Dir() string {
	return w.dir
}

// Add appends chunks with their vectors. Seq is assigned in call order and
// an empty ID is replaced with a UUID.
func (w *Writer) Add(ctx context.Context, chunks []Chunk, vectors [][]float32) error {
	if w.done {
		return errors.New("writer already finished")
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}

	ids := make([]string, len(chunks))
	for i := range chunks {
		if chunks[i].ID == "" {
			chunks[i].ID = uuid.NewString()
		}
		chunks[i].Seq = w.count + i
		ids[i] = chunks[i].ID
	}

	if err := w.vectors.Add(ctx, ids, vectors); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}
	if err := w.chunks.SaveChunks(ctx, chunks, vectors); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	w.count += len(chunks)
	return nil
}

// Count returns the number of chunks added so far.
func (w *Writer) Count() int {
	return w.count
}

// Commit saves the graph, writes the manifest, closes both stores and syncs
// the directory. ChunkCount, Dimensions and a zero BuiltAt
// are filled in from the writer's state.
func (w *Writer) Commit(ctx context.Context, m Manifest) (Manifest, error) {
	if w.done {
		return Manifest{}, errors.New("writer already finished")
	}
	w.done = true

	m.ChunkCount = w.count
	m.Dimensions = w.vectors.Dimensions()
	if m.BuiltAt.IsZero() {
		m.BuiltAt = time.Now()
	}

	err := w.vectors.Save(filepath.Join(w.dir, VectorsFile))
	if err == nil {
		err = w.chunks.WriteManifest(ctx, m)
	}
	err = errors.Join(err, w.vectors.Close(), w.chunks.Close())
	if err == nil {
		err = syncDir(w.dir)
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("commit index: %w", err)
	}
	return m, nil
}

// Abort closes the stores and deletes the directory.
// Call it when Add or Commit failed.
func (w *Writer) Abort() error {
	w.done = true
	err := errors.Join(w.vectors.Close(), w.chunks.Close())
	return errors.Join(err, os.RemoveAll(w.dir))
}
