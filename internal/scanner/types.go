// Package scanner walks a corpus directory tree and feeds every file to the
// loader dispatch.
//
// The walk is iterative: an explicit LIFO worklist gives pre-order
// traversal with entries visited in listing order, without recursion depth
// limits. Symlinked directories are never entered.
package scanner

import (
	"context"

	"github.com/Aman-CERP/corpusrag/internal/document"
)

// Dispatcher loads a single file. *loader.Dispatcher satisfies it.
type Dispatcher interface {
	Load(ctx context.Context, path string) ([]document.Document, error)
}

// Options configures a Walker.
type Options struct {
	// MaxFileSize skips files larger than this many bytes (0 = no limit).
	MaxFileSize int64

	// ExcludePatterns skips matching files and directories. Patterns use
	// gitignore syntax relative to the walk root.
	ExcludePatterns []string

	// IgnoreFile names a file in the walk root whose lines are appended to
	// ExcludePatterns, for example ".corpusignore". Empty disables it.
	IgnoreFile string
}

// Stats summarises one walk.
type Stats struct {
	Files     int // files handed to the dispatcher
	Skipped   int // files skipped by size or exclusion
	Documents int // documents produced
}
