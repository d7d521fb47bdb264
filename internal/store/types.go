// Package store persists a built index: an HNSW graph for vector search
// (coder/hnsw) and a SQLite chunk table with the index manifest
// (modernc.org/sqlite). Writer builds an index into a directory, Reader opens
// one, and Swap replaces a live index directory with a freshly built one.
package store

import (
	"fmt"
	"time"
)

// File names inside an index directory.
const (
	// ChunksFile is the SQLite database holding chunks and the manifest.
	ChunksFile = "chunks.db"
	// VectorsFile is the exported HNSW graph; its ID map lives in VectorsFile+".meta".
	VectorsFile = "vectors.hnsw"
)

// Chunk is one stored unit of retrievable text.
type Chunk struct {
	ID       string         // UUID assigned at build time
	Seq      int            // Position in build order, 0-based
	Content  string         // Chunk text
	Metadata map[string]any // Metadata of the source document
}

// Manifest describes a complete index.
type Manifest struct {
	Model      string // Embedding model name
	Dimensions int    // Embedding dimension
	ChunkCount int
	RunID      string // Pipeline run that built the index
	BuiltAt    time.Time
}

// Hit is a search result with its chunk hydrated.
type Hit struct {
	Chunk    Chunk
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// VectorResult represents a single vector search result.
type VectorResult struct {
	ID       string  // Chunk ID
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	// Dimensions is the vector dimension (1536 for text-embedding-3-small, 256 for static)
	Dimensions int

	// Metric is the distance metric: "cos" (cosine), "l2" (euclidean) (default: "cos")
	Metric string

	// M is HNSW max connections per layer (default: 16)
	M int

	// EfSearch is HNSW query-time search width (default: 64)
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults for vector store.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   64,
	}
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (rebuild the index with the current embedder)", e.Expected, e.Got)
}
