package embed

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// ErrClosed is returned by embedders used after Close.
var ErrClosed = errors.New("embedder is closed")

// StaticEmbedder generates embeddings by hashing words and character
// trigrams into a fixed number of buckets. No network, no model download,
// deterministic across runs and machines; semantic quality is limited to
// lexical overlap.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Embedder = (*StaticEmbedder)(nil)

// stopWords are frequent English function words that carry no topic signal.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "was": true, "were": true, "with": true,
}

// Weights for vector generation
const (
	wordWeight    = 0.7
	trigramWeight = 0.3
	trigramSize   = 3
)

// NewStaticEmbedder creates a new static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed generates embedding for a single text. Blank text maps to the zero vector.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	return staticVector(text), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *StaticEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		results[i] = staticVector(text)
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int {
	return StaticDimensions
}

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string {
	return "static-hash-256"
}

// Close marks the embedder closed. Idempotent.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func staticVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)
	if strings.TrimSpace(text) == "" {
		return vector
	}

	for _, word := range words(text) {
		if !stopWords[word] {
			vector[bucket(word)] += wordWeight
		}
	}

	// Trigrams over letters and digits only; they carry the signal for
	// scripts without spaces between words.
	runes := compact(text)
	for i := 0; i+trigramSize <= len(runes); i++ {
		vector[bucket(string(runes[i:i+trigramSize]))] += trigramWeight
	}

	return normalizeVector(vector)
}

// words lowercases text and splits it on anything that is not a letter or digit.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func compact(text string) []rune {
	var out []rune
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out = append(out, r)
		}
	}
	return out
}

// bucket maps s to a dimension with FNV-64.
func bucket(s string) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(StaticDimensions))
}
