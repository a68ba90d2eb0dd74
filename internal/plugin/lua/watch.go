package lua

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher invalidates cached chunks when script files change on disk.
// Components created afterwards load the new version; running behaviors keep
// the one they were loaded with.
type Watcher struct {
	fsw   *fsnotify.Watcher
	cache *ChunkCache
	log   *zap.Logger

	onChange func(path string)

	invalidations atomic.Int64
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatchLogger sets the logger.
func WithWatchLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// OnChange registers fn to run, on the watcher goroutine, after a changed
// script has been invalidated.
func OnChange(fn func(path string)) WatcherOption {
	return func(w *Watcher) {
		w.onChange = fn
	}
}

// NewWatcher watches dir and its subdirectories for script changes.
func NewWatcher(cache *ChunkCache, dir string, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:   fsw,
		cache: cache,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.Named("lua.watch")

	root, err := filepath.Abs(dir)
	if err != nil {
		fsw.Close()
		return nil, err
	}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(p)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes file events until ctx is done. It closes the underlying
// watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}

// handle invalidates the chunk behind a relevant event.
func (w *Watcher) handle(ev fsnotify.Event) {
	if filepath.Ext(ev.Name) != ".lua" {
		return
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}

	cached := w.cache.Invalidate(ev.Name)
	w.invalidations.Add(1)
	w.log.Debug("script changed",
		zap.String("path", ev.Name),
		zap.Stringer("op", ev.Op),
		zap.Bool("was_cached", cached),
	)
	if w.onChange != nil {
		w.onChange(ev.Name)
	}
}

// Invalidations returns how many change events were handled.
func (w *Watcher) Invalidations() int64 {
	return w.invalidations.Load()
}

// Close stops watching. Run closes the watcher itself on return, so Close is
// only needed for a watcher that never ran. Calling it twice is safe.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
