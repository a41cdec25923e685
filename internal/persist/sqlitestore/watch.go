package sqlitestore

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// WatchExternal watches dbPath for out-of-process replacement (e.g. a
// cluster-sync job landing a new snapshot file) and invokes onReplaced when
// that happens, so callers can invalidate their item caches. Modeled on the
// teacher's use of fsnotify to pick up config.yaml edits without a restart.
//
// The returned stop function closes the watcher; it is safe to call more
// than once.
func WatchExternal(ctx context.Context, dbPath string, log *slog.Logger, onReplaced func()) (stop func(), err error) {
	if log == nil {
		log = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dbPath); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					log.Debug("sqlitestore: external change detected", "path", dbPath, "op", ev.Op.String())
					onReplaced()
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("sqlitestore: watch error", "error", werr)
			}
		}
	}()

	var stopped bool
	return func() {
		if stopped {
			return
		}
		stopped = true
		_ = watcher.Close()
		<-done
	}, nil
}
