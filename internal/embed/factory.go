package embed

import (
	"context"
	"fmt"
	"strings"
	"time"

	crerrors "github.com/Aman-CERP/corpusrag/internal/errors"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderOpenAI uses the OpenAI embeddings API (default)
	ProviderOpenAI ProviderType = "openai"

	// ProviderOllama uses a local Ollama server
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings (offline, deterministic)
	ProviderStatic ProviderType = "static"
)

// Providers lists the accepted provider names.
var Providers = []ProviderType{ProviderOpenAI, ProviderOllama, ProviderStatic}

// ParseProvider converts a provider name to ProviderType.
func ParseProvider(s string) (ProviderType, error) {
	p := ProviderType(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return ProviderOpenAI, nil
	}
	for _, known := range Providers {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown embedding provider %q (want openai, ollama or static)", s)
}

// Config selects and configures an embedding backend.
type Config struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int
	Timeout    time.Duration
}

// New creates the embedder named by cfg.Provider.
// Construction failures are returned as ERR_502_EMBEDDING_FAILED, an unknown
// provider as ERR_101_CONFIG_INVALID.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	provider, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, crerrors.ConfigError("invalid embedding provider", err).
			WithSuggestion("Set embedding.provider to openai, ollama or static")
	}

	var e Embedder
	switch provider {
	case ProviderOpenAI:
		e, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case ProviderOllama:
		e, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
	case ProviderStatic:
		e = NewStaticEmbedder()
	}
	if err != nil {
		return nil, crerrors.New(crerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("create %s embedder", provider), err).
			WithDetail("provider", string(provider))
	}
	return e, nil
}
