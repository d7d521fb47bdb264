// Package watcher turns corpus file changes into debounced rebuild triggers.
//
// fsnotify is the primary mechanism; polling is used when fsnotify cannot be
// initialised or when a poll interval is configured (network mounts, Docker
// volumes). Events are coalesced per path within the debounce window and
// emitted in batches. Every batch triggers one full rebuild, since the index
// is always rebuilt from scratch.
//
// Usage:
//
//	w := watcher.New(walker, watcher.Options{Filter: relevant}, logger)
//	defer w.Stop()
//	go func() { _ = w.Start(ctx, root) }()
//	err := watcher.Loop(ctx, w, rebuild, logger)
package watcher
