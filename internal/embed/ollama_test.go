package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOllama serves /api/embed with dims-sized vectors whose first element is
// the input length.
func fakeOllama(t *testing.T, dims int, requests *[]ollamaEmbedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if requests != nil {
			*requests = append(*requests, req)
		}
		resp := ollamaEmbedResponse{Model: req.Model}
		for _, in := range req.Input {
			vec := make([]float32, dims)
			vec[0] = float32(len(in))
			resp.Embeddings = append(resp.Embeddings, vec)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedder_New_DetectsDimensions(t *testing.T) {
	// Given: an Ollama server returning 5-dimension vectors
	var reqs []ollamaEmbedRequest
	srv := fakeOllama(t, 5, &reqs)

	// When: the embedder is created without explicit dimensions
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Model: "m"})

	// Then: one probe request learned the dimension
	require.NoError(t, err)
	assert.Equal(t, 5, e.Dimensions())
	assert.Equal(t, "m", e.ModelName())
	assert.Len(t, reqs, 1)
}

func TestOllamaEmbedder_New_ExplicitDimensionsSkipProbe(t *testing.T) {
	var reqs []ollamaEmbedRequest
	srv := fakeOllama(t, 5, &reqs)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL + "/", Dimensions: 5})

	require.NoError(t, err)
	assert.Equal(t, DefaultOllamaModel, e.ModelName())
	assert.Empty(t, reqs)
}

func TestOllamaEmbedder_EmbedBatch_PreservesOrder(t *testing.T) {
	var reqs []ollamaEmbedRequest
	srv := fakeOllama(t, 3, &reqs)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Dimensions: 3})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "bbb", "cc"})

	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1, 3, 2}, []float32{vecs[0][0], vecs[1][0], vecs[2][0]})
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"a", "bbb", "cc"}, reqs[0].Input)
}

func TestOllamaEmbedder_New_UnreachableServerFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: url})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
}

func TestOllamaEmbedder_EmbedBatch_StatusErrorIncludesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Dimensions: 3})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "x")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestOllamaEmbedder_Close_RejectsFurtherUse(t *testing.T) {
	srv := fakeOllama(t, 3, nil)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Dimensions: 3})
	require.NoError(t, err)

	require.NoError(t, e.Close())
	_, err = e.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
}
