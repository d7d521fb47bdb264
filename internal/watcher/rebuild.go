package watcher

import (
	"context"
	"log/slog"
	"time"

	crerrors "github.com/Aman-CERP/corpusrag/internal/errors"
)

// RebuildFunc performs one full rebuild in response to a batch of changes.
type RebuildFunc func(ctx context.Context, changes []FileEvent) error

// Source is the event side of a watcher. *Watcher satisfies it.
type Source interface {
	Events() <-chan []FileEvent
	Errors() <-chan error
}

// Loop calls rebuild once per debounced batch until ctx is canceled or the
// source closes. Batches that arrive while a rebuild runs are merged into the
// next rebuild. A failed rebuild is logged and the loop keeps going, unless
// the error is fatal.
func Loop(ctx context.Context, src Source, rebuild RebuildFunc, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	events := src.Events()
	errs := src.Errors()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("watcher error", slog.String("error", err.Error()))
		case batch, ok := <-events:
			if !ok {
				return nil
			}
			batch = drain(events, batch)

			start := time.Now()
			logger.Info("corpus changed, rebuilding",
				slog.Int("changes", len(batch)),
				slog.String("first", batch[0].Path))

			if err := rebuild(ctx, batch); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Error("rebuild failed", crerrors.LogAttrs(err)...)
				if crerrors.IsFatal(err) {
					return err
				}
				continue
			}
			logger.Info("rebuild complete", slog.Duration("duration", time.Since(start)))
		}
	}
}

// drain appends every batch already queued on events.
func drain(events <-chan []FileEvent, batch []FileEvent) []FileEvent {
	for {
		select {
		case more, ok := <-events:
			if !ok {
				return batch
			}
			batch = append(batch, more...)
		default:
			return batch
		}
	}
}
