package embed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultOpenAIModel is the OpenAI model used when none is configured
	DefaultOpenAIModel = string(openai.SmallEmbedding3)

	// DefaultOpenAIDimensions is the output dimension of text-embedding-3-small
	DefaultOpenAIDimensions = 1536
)

// ErrNoAPIKey is returned when no OpenAI API key is configured.
var ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")

// EmbeddingsAPI is the part of the OpenAI client the embedder uses.
// *openai.Client satisfies it.
type EmbeddingsAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIConfig configures the OpenAI embedder
type OpenAIConfig struct {
	// APIKey falls back to OPENAI_API_KEY when empty
	APIKey string

	// BaseURL overrides the API endpoint (Azure-style proxies, local gateways)
	BaseURL string

	// Model defaults to text-embedding-3-small
	Model string

	// Dimensions is the expected output dimension (0 = model default)
	Dimensions int
}

// OpenAIEmbedder generates embeddings with the OpenAI embeddings API.
type OpenAIEmbedder struct {
	api   EmbeddingsAPI
	model openai.EmbeddingModel
	dims  int

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder backed by the real OpenAI client.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil, ErrNoAPIKey
	}

	clientCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return NewOpenAIEmbedderWithAPI(openai.NewClientWithConfig(clientCfg), cfg), nil
}

// NewOpenAIEmbedderWithAPI creates an embedder over an existing API client.
func NewOpenAIEmbedderWithAPI(api EmbeddingsAPI, cfg OpenAIConfig) *OpenAIEmbedder {
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = DefaultOpenAIDimensions
	}
	return &OpenAIEmbedder{
		api:   api,
		model: openai.EmbeddingModel(model),
		dims:  dims,
	}
}

// Embed generates embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request and returns vectors in input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	}
	if e.dims != DefaultOpenAIDimensions {
		req.Dimensions = e.dims
	}

	resp, err := e.api.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	data := slices.Clone(resp.Data)
	slices.SortFunc(data, func(a, b openai.Embedding) int { return a.Index - b.Index })

	vecs := make([][]float32, len(data))
	for i, d := range data {
		if len(d.Embedding) != e.dims {
			return nil, fmt.Errorf("embedding %d has %d dimensions, want %d", i, len(d.Embedding), e.dims)
		}
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return string(e.model)
}

// Close marks the embedder closed.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
