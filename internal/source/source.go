// Package source combines the local corpus walk with the web loader into
// the single document stream the indexing pipeline consumes.
package source

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/corpusrag/internal/document"
	"github.com/Aman-CERP/corpusrag/internal/scanner"
)

// CorpusWalker walks a local corpus root. *scanner.Walker satisfies it.
type CorpusWalker interface {
	Walk(ctx context.Context, root string) ([]document.Document, scanner.Stats, error)
}

// PageLoader fetches web pages. *web.Loader satisfies it.
type PageLoader interface {
	Load(ctx context.Context, urls []string) ([]document.Document, error)
}

// Stats summarises one aggregation.
type Stats struct {
	Corpus   scanner.Stats
	Pages    int
	Combined int
}

// Aggregator loads every configured source.
type Aggregator struct {
	walker CorpusWalker
	pages  PageLoader
	root   string
	urls   []string
	logger *slog.Logger
}

// New creates an Aggregator over root and urls.
// pages may be nil when urls is empty.
func New(walker CorpusWalker, pages PageLoader, root string, urls []string, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Aggregator{
		walker: walker,
		pages:  pages,
		root:   root,
		urls:   append([]string(nil), urls...),
		logger: logger,
	}
}

// Load returns the corpus Documents followed by the web Documents.
// Duplicates are kept; any source failure aborts.
func (a *Aggregator) Load(ctx context.Context) ([]document.Document, Stats, error) {
	var stats Stats

	docs, corpus, err := a.walker.Walk(ctx, a.root)
	if err != nil {
		return nil, stats, err
	}
	stats.Corpus = corpus
	a.logger.Info("corpus loaded",
		slog.String("root", a.root),
		slog.Int("files", corpus.Files),
		slog.Int("skipped", corpus.Skipped),
		slog.Int("documents", len(docs)))

	if len(a.urls) > 0 && a.pages != nil {
		pages, err := a.pages.Load(ctx, a.urls)
		if err != nil {
			return nil, stats, err
		}
		stats.Pages = len(pages)
		a.logger.Info("web pages loaded", slog.Int("urls", len(a.urls)), slog.Int("documents", len(pages)))
		docs = append(docs, pages...)
	}

	stats.Combined = len(docs)
	return docs, stats, nil
}
