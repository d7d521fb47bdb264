package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file or directory was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file or directory was deleted.
	OpDelete
	// OpRename indicates a file or directory was renamed away.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a file system event.
type FileEvent struct {
	// Path is the absolute path of the file or directory.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// DirLister lists the directories to watch under root. *scanner.Walker
// satisfies it, so exclusions match the corpus walk.
type DirLister interface {
	Dirs(ctx context.Context, root string) ([]string, error)
}

// Options configures the watcher behavior.
type Options struct {
	// Debounce is the time to wait before emitting coalesced events.
	// Default: 500ms
	Debounce time.Duration

	// PollInterval > 0 selects polling instead of fsnotify.
	PollInterval time.Duration

	// EventBufferSize is the size of the batch channel buffer.
	// Default: 16
	EventBufferSize int

	// Filter reports whether a changed path is relevant. Nil accepts every
	// path. isDir is false for paths that no longer exist.
	Filter func(path string, isDir bool) bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Debounce:        500 * time.Millisecond,
		EventBufferSize: 16,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = defaults.Debounce
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}

// Watcher emits batches of relevant file events under one root.
type Watcher struct {
	lister    DirLister
	opts      Options
	logger    *slog.Logger
	debouncer *Debouncer
	events    chan []FileEvent
	errors    chan error
	stopCh    chan struct{}

	fsWatcher *fsnotify.Watcher
	poller    *PollingWatcher

	mu             sync.RWMutex
	root           string
	stopped        bool
	droppedBatches atomic.Uint64
}

// New creates a Watcher. It uses fsnotify unless opts.PollInterval is set or
// fsnotify cannot be initialised. A nil logger discards records.
func New(lister DirLister, opts Options, logger *slog.Logger) *Watcher {
	opts = opts.WithDefaults()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	w := &Watcher{
		lister:    lister,
		opts:      opts,
		logger:    logger,
		debouncer: NewDebouncer(opts.Debounce, logger),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	if opts.PollInterval <= 0 {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsWatcher = fsw
			return w
		}
		logger.Warn("fsnotify unavailable, falling back to polling", slog.String("error", err.Error()))
		opts.PollInterval = 5 * time.Second
	}
	w.poller = NewPollingWatcher(opts.PollInterval, logger)
	return w
}

// Start watches root until ctx is canceled or Stop is called. It blocks.
func (w *Watcher) Start(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	w.mu.Lock()
	w.root = absRoot
	w.mu.Unlock()

	go w.forwardDebounced(ctx)

	w.logger.Info("watching corpus",
		slog.String("root", absRoot),
		slog.String("mode", w.Mode()),
		slog.Duration("debounce", w.opts.Debounce))

	if w.fsWatcher != nil {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

func (w *Watcher) runFsnotify(ctx context.Context) error {
	if err := w.addDirs(ctx, w.root); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotify(ctx, event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case event, ok := <-w.poller.Events():
				if !ok {
					return
				}
				if w.relevant(event.Path, event.IsDir) {
					w.debouncer.Add(event)
				}
			case err, ok := <-w.poller.Errors():
				if !ok {
					return
				}
				w.emitError(err)
			}
		}
	}()
	return w.poller.Start(ctx, w.root)
}

// addDirs watches dir and every directory below it that the lister enters.
func (w *Watcher) addDirs(ctx context.Context, dir string) error {
	dirs, err := w.lister.Dirs(ctx, dir)
	if err != nil {
		return err
	}
	for _, d := range dirs {
		if err := w.fsWatcher.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}
	w.logger.Debug("watching directories", slog.Int("count", len(dirs)))
	return nil
}

func (w *Watcher) handleFsnotify(ctx context.Context, event fsnotify.Event) {
	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}
	if !w.relevant(event.Name, isDir) {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir {
			// New directories may already hold files, and need watches of their own.
			if err := w.addDirs(ctx, event.Name); err != nil {
				w.emitError(err)
			}
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		// Chmod
		return
	}

	w.debouncer.Add(FileEvent{
		Path:      event.Name,
		Operation: op,
		IsDir:     isDir,
		Timestamp: time.Now(),
	})
}

func (w *Watcher) relevant(path string, isDir bool) bool {
	if w.opts.Filter == nil {
		return true
	}
	return w.opts.Filter(path, isDir)
}

func (w *Watcher) forwardDebounced(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case events, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(events) > 0 {
				w.emitEvents(events)
			}
		}
	}
}

func (w *Watcher) emitEvents(events []FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.events <- events:
	default:
		count := w.droppedBatches.Add(1)
		w.logger.Warn("event buffer full, dropping batch",
			slog.Int("batch_size", len(events)),
			slog.Uint64("total_dropped_batches", count))
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.errors <- err:
	default:
	}
}

// Stop stops the watcher and closes its channels. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)

	w.debouncer.Stop()
	if w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	if w.poller != nil {
		_ = w.poller.Stop()
	}

	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of debounced event batches.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns the channel of non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// DroppedBatches returns the number of batches dropped due to buffer overflow.
func (w *Watcher) DroppedBatches() uint64 {
	return w.droppedBatches.Load()
}

// Mode returns "fsnotify" or "polling".
func (w *Watcher) Mode() string {
	if w.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}
