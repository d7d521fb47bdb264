// Package web fetches configured URLs and turns each page into a Document.
package web

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Aman-CERP/corpusrag/internal/document"
	crerrors "github.com/Aman-CERP/corpusrag/internal/errors"
	"github.com/Aman-CERP/corpusrag/internal/loader"
)

// Defaults for Options.
const (
	DefaultUserAgent = "corpusrag/1.0 (+https://github.com/Aman-CERP/corpusrag)"
	DefaultTimeout   = 30 * time.Second
	DefaultMaxBytes  = 20 << 20
)

// Options configures a Loader.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBytes caps the body read per page (0 = DefaultMaxBytes).
	MaxBytes int64
	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
}

// Loader fetches pages over HTTP.
type Loader struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	logger    *slog.Logger
}

// New creates a Loader. A nil logger discards records.
func New(opts Options, logger *slog.Logger) *Loader {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{
		client:    client,
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBytes,
		logger:    logger,
	}
}

// Load fetches urls in order and returns one Document per URL with
// metadata {source, title, description, language}. The first transport
// failure or non-2xx response aborts the whole load.
func (l *Loader) Load(ctx context.Context, urls []string) ([]document.Document, error) {
	docs := make([]document.Document, 0, len(urls))
	for _, u := range urls {
		doc, err := l.fetch(ctx, u)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (l *Loader) fetch(ctx context.Context, url string) (document.Document, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return document.Document{}, crerrors.FetchError(url, err)
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := l.client.Do(req)
	if err != nil {
		return document.Document{}, crerrors.FetchError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return document.Document{}, crerrors.FetchError(url, fmt.Errorf("unexpected status %s", resp.Status))
	}

	page, err := loader.ParseHTML(io.LimitReader(resp.Body, l.maxBytes))
	if err != nil {
		return document.Document{}, crerrors.FetchError(url, err)
	}

	l.logger.Debug("fetched page",
		slog.String("url", url),
		slog.Int("status", resp.StatusCode),
		slog.Int("chars", len(page.Text)),
		slog.Duration("duration", time.Since(start)))

	return page.Document(url), nil
}
