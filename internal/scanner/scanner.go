package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/Aman-CERP/corpusrag/internal/document"
	crerrors "github.com/Aman-CERP/corpusrag/internal/errors"
	"github.com/Aman-CERP/corpusrag/internal/gitignore"
)

// Walker discovers corpus files under a root and loads them.
type Walker struct {
	dispatcher Dispatcher
	opts       Options
	logger     *slog.Logger

	mu       sync.Mutex
	matchers map[string]*gitignore.Matcher // by root
}

// New creates a Walker. A nil logger discards records.
func New(dispatcher Dispatcher, logger *slog.Logger, opts Options) *Walker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Walker{
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger,
		matchers:   make(map[string]*gitignore.Matcher),
	}
}

// Walk loads every file under root, in pre-order with directory entries in
// listing order, and returns the Documents in discovery order.
//
// A root that is a regular file is dispatched directly. A missing root is an
// error. Any load failure aborts the walk.
func (w *Walker) Walk(ctx context.Context, root string) ([]document.Document, Stats, error) {
	var (
		docs  []document.Document
		stats Stats
	)

	err := w.walk(ctx, root, func(path string, info fs.FileInfo, isDir bool) error {
		if isDir {
			return nil
		}
		if w.opts.MaxFileSize > 0 && info.Size() > w.opts.MaxFileSize {
			w.logger.Warn("skipping oversized file",
				slog.String("path", path),
				slog.Int64("size", info.Size()),
				slog.Int64("max_file_size", w.opts.MaxFileSize))
			stats.Skipped++
			return nil
		}

		loaded, err := w.dispatcher.Load(ctx, path)
		if err != nil {
			return err
		}
		stats.Files++
		stats.Documents += len(loaded)
		w.logger.Debug("loaded file", slog.String("path", path), slog.Int("documents", len(loaded)))
		docs = append(docs, loaded...)
		return nil
	}, &stats)
	if err != nil {
		return nil, stats, err
	}
	return docs, stats, nil
}

// Dirs returns root and every directory the walk would enter, in pre-order.
func (w *Walker) Dirs(ctx context.Context, root string) ([]string, error) {
	var dirs []string
	err := w.walk(ctx, root, func(path string, _ fs.FileInfo, isDir bool) error {
		if isDir {
			dirs = append(dirs, path)
		}
		return nil
	}, nil)
	return dirs, err
}

type visitFunc func(path string, info fs.FileInfo, isDir bool) error

type workItem struct {
	path  string
	info  fs.FileInfo
	isDir bool
}

func (w *Walker) walk(ctx context.Context, root string, visit visitFunc, stats *Stats) error {
	info, err := os.Stat(root)
	if err != nil {
		return crerrors.New(crerrors.ErrCodeCorpusNotFound, fmt.Sprintf("corpus root %s", root), err).
			WithSuggestion("Check corpus.root in corpusrag.yaml or pass --root")
	}
	if info.IsDir() {
		w.loadMatcher(root)
	}

	stack := []workItem{{path: root, info: info, isDir: info.IsDir()}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := visit(item.path, item.info, item.isDir); err != nil {
			return err
		}
		if !item.isDir {
			continue
		}

		entries, err := os.ReadDir(item.path)
		if err != nil {
			return crerrors.LoadError(item.path, err)
		}

		children := make([]workItem, 0, len(entries))
		for _, entry := range entries {
			path := filepath.Join(item.path, entry.Name())
			if w.Excluded(root, path, entry.IsDir()) {
				w.logger.Debug("excluded", slog.String("path", path))
				if stats != nil && !entry.IsDir() {
					stats.Skipped++
				}
				continue
			}

			isDir, info, err := classify(path, entry)
			if err != nil {
				return crerrors.LoadError(path, err)
			}
			switch {
			case isDir && entry.Type()&fs.ModeSymlink != 0:
				w.logger.Debug("not following symlinked directory", slog.String("path", path))
			case isDir || info.Mode().IsRegular():
				children = append(children, workItem{path: path, info: info, isDir: isDir})
			}
		}

		// Reverse so the first listed entry is popped next.
		slices.Reverse(children)
		stack = append(stack, children...)
	}
	return nil
}

// classify resolves symlinks so a link to a file is loaded like the file.
func classify(path string, entry fs.DirEntry) (bool, fs.FileInfo, error) {
	if entry.Type()&fs.ModeSymlink == 0 {
		info, err := entry.Info()
		if err != nil {
			return false, nil, err
		}
		return info.IsDir(), info, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, nil, err
	}
	return info.IsDir(), info, nil
}

// Excluded reports whether path, under root, matches an exclude rule.
func (w *Walker) Excluded(root, path string, isDir bool) bool {
	m := w.matcher(root)
	if m.Len() == 0 {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return m.Match(rel, isDir)
}

// matcher returns the rules for root, loading them on first use.
func (w *Walker) matcher(root string) *gitignore.Matcher {
	w.mu.Lock()
	m, ok := w.matchers[root]
	w.mu.Unlock()
	if ok {
		return m
	}
	return w.loadMatcher(root)
}

// loadMatcher compiles the configured patterns plus root's ignore file. Each
// walk reloads it, so edits to the ignore file apply to the next walk.
func (w *Walker) loadMatcher(root string) *gitignore.Matcher {
	m := gitignore.New(w.opts.ExcludePatterns...)
	if w.opts.IgnoreFile != "" {
		m.Add("/" + w.opts.IgnoreFile)
		path := filepath.Join(root, w.opts.IgnoreFile)
		patterns, err := gitignore.ReadFile(path)
		switch {
		case err == nil:
			for _, p := range patterns {
				m.Add(p)
			}
			w.logger.Debug("loaded ignore file", slog.String("path", path), slog.Int("rules", m.Len()))
		case !errors.Is(err, fs.ErrNotExist):
			w.logger.Warn("failed to read ignore file", slog.String("path", path), slog.String("error", err.Error()))
		}
	}

	w.mu.Lock()
	w.matchers[root] = m
	w.mu.Unlock()
	return m
}
