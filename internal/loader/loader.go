// Package loader turns corpus files into Documents.
//
// Each supported extension maps to a DocumentLoader. The Dispatcher picks the
// loader by extension, skips unsupported files silently, and merges the
// per-record Documents of tabular formats (CSV) into one Document per file.
package loader

import (
	"context"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Aman-CERP/corpusrag/internal/document"
	crerrors "github.com/Aman-CERP/corpusrag/internal/errors"
)

// DocumentLoader reads one file into zero or more Documents.
// Every returned Document carries the file path as its source.
type DocumentLoader interface {
	Load(ctx context.Context, path string) ([]document.Document, error)
}

// DefaultMergeExtensions lists the tabular formats whose records are merged
// into a single Document per file.
var DefaultMergeExtensions = []string{".csv"}

// DefaultLoaders returns the built-in extension registry.
// Extensions are case-sensitive and include the leading dot.
func DefaultLoaders() map[string]DocumentLoader {
	text := &TextLoader{}
	html := &HTMLLoader{}
	return map[string]DocumentLoader{
		".txt":  text,
		".md":   text,
		".csv":  &CSVLoader{},
		".pdf":  &PDFLoader{},
		".docx": &DocxLoader{},
		".html": html,
		".htm":  html,
	}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLoader registers (or replaces) the loader for ext.
func WithLoader(ext string, l DocumentLoader) Option {
	return func(d *Dispatcher) {
		d.loaders[ext] = l
	}
}

// WithExtensions restricts the Dispatcher to the listed extensions.
// Extensions without a registered loader are ignored.
func WithExtensions(exts ...string) Option {
	return func(d *Dispatcher) {
		keep := make(map[string]DocumentLoader, len(exts))
		for _, ext := range exts {
			if l, ok := d.loaders[ext]; ok {
				keep[ext] = l
			}
		}
		d.loaders = keep
	}
}

// WithMergeExtensions replaces the set of extensions whose Documents are merged.
func WithMergeExtensions(exts ...string) Option {
	return func(d *Dispatcher) {
		d.merge = make(map[string]bool, len(exts))
		for _, ext := range exts {
			d.merge[ext] = true
		}
	}
}

// Dispatcher routes a file to the loader registered for its extension.
type Dispatcher struct {
	loaders map[string]DocumentLoader
	merge   map[string]bool
}

// NewDispatcher creates a Dispatcher over DefaultLoaders.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{loaders: DefaultLoaders()}
	WithMergeExtensions(DefaultMergeExtensions...)(d)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Extensions returns the supported extensions, sorted.
func (d *Dispatcher) Extensions() []string {
	exts := make([]string, 0, len(d.loaders))
	for ext := range d.loaders {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Supports reports whether path has a registered extension.
func (d *Dispatcher) Supports(path string) bool {
	_, ok := d.loaders[filepath.Ext(path)]
	return ok
}

// Load loads path with the loader for its extension.
//
// Unsupported extensions yield no Documents and no error. For merge
// extensions the loader's Documents are joined with "\n" into exactly one
// Document whose metadata is exactly {source}. Loader failures are
// returned as ERR_201_LOAD_FAILED naming the path.
func (d *Dispatcher) Load(ctx context.Context, path string) ([]document.Document, error) {
	ext := filepath.Ext(path)
	l, ok := d.loaders[ext]
	if !ok {
		return nil, nil
	}

	docs, err := l.Load(ctx, path)
	if err != nil {
		return nil, crerrors.LoadError(path, err)
	}

	if d.merge[ext] {
		return []document.Document{mergeRecords(path, docs)}, nil
	}
	return docs, nil
}

func mergeRecords(path string, docs []document.Document) document.Document {
	contents := make([]string, len(docs))
	for i, doc := range docs {
		contents[i] = doc.Content
	}
	return document.New(strings.Join(contents, "\n"), path)
}
