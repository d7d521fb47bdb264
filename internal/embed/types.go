// Package embed turns chunk text into vectors.
//
// Backends: OpenAI (go-openai), a local Ollama server, and a deterministic
// hash-based static embedder that needs no network. CachedEmbedder puts an
// LRU in front of any backend for repeated queries.
package embed

import (
	"context"
	"fmt"
	"math"
)

// Batch size bounds for EmbedAll.
const (
	// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion)
	MaxBatchSize = 2048

	// DefaultBatchSize is the default batch size for embedding requests
	DefaultBatchSize = 64
)

// StaticDimensions is the embedding dimension for static embedder.
const StaticDimensions = 256

// Embedder generates vector embeddings for text
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in input order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Close releases resources
	Close() error
}

// EmbedAll embeds texts in batches of batchSize and returns one vector per
// text. progress, when non-nil, is called after every batch.
func EmbedAll(ctx context.Context, e Embedder, texts []string, batchSize int, progress func(done, total int)) ([][]float32, error) {
	batchSize = clampBatchSize(batchSize)

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+batchSize, len(texts))
		batch, err := e.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embed batch %d-%d: got %d vectors for %d texts", start, end, len(batch), end-start)
		}
		for i, vec := range batch {
			if len(vec) != e.Dimensions() {
				return nil, fmt.Errorf("embed text %d: got %d dimensions, want %d", start+i, len(vec), e.Dimensions())
			}
		}
		vectors = append(vectors, batch...)

		if progress != nil {
			progress(end, len(texts))
		}
	}
	return vectors, nil
}

func clampBatchSize(n int) int {
	switch {
	case n <= 0:
		return DefaultBatchSize
	case n > MaxBatchSize:
		return MaxBatchSize
	}
	return n
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
