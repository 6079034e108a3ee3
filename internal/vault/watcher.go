package vault

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Handler receives vault-relative change notifications. Removals may name
// a file or a directory. fsnotify has no rename pairing, so a handler that
// wants to keep vectors across a move must match a removal with the
// create that follows it.
type Handler interface {
	OnFileCreated(path string)
	OnFileModified(path string)
	OnPathRemoved(ctx context.Context, path string) error
}

// Watcher reports changes below an FSVault's root. New directories are
// watched as they appear. A rename arrives as the removal of the old path
// followed by a create of the new one.
type Watcher struct {
	vault   *FSVault
	handler Handler
	logger  *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// NewWatcher creates a watcher for v. It does nothing until Start.
func NewWatcher(v *FSVault, handler Handler, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		vault:   v,
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start watches the vault until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher
	if err := w.addTreeLocked(w.vault.Root()); err != nil {
		_ = watcher.Close()
		w.watcher = nil
		return err
	}
	w.started = true
	w.logger.Debug("watcher started", zap.String("root", w.vault.Root()))

	go w.run(ctx, watcher)
	return nil
}

func (w *Watcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	rel, err := w.vault.Rel(ev.Name)
	if err != nil || rel == "." {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", rel))

	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		if err := w.handler.OnPathRemoved(ctx, rel); err != nil {
			w.logger.Warn("failed to handle removal", zap.String("path", rel), zap.Error(err))
		}
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			w.handleNewDirectory(ev.Name, rel)
			return
		}
		if !w.vault.IsExcluded(rel) {
			w.handler.OnFileCreated(rel)
		}
	case ev.Has(fsnotify.Write):
		if !w.vault.IsExcluded(rel) {
			w.handler.OnFileModified(rel)
		}
	}
}

// handleNewDirectory watches a directory that appeared (created or moved
// in) and reports the documents already inside it.
func (w *Watcher) handleNewDirectory(abs, rel string) {
	if w.vault.Matcher().DirExcluded(rel) {
		return
	}
	w.mu.Lock()
	if w.watcher != nil {
		if err := w.addTreeLocked(abs); err != nil {
			w.logger.Debug("failed to watch directory", zap.String("path", rel), zap.Error(err))
		}
	}
	w.mu.Unlock()

	_ = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if child, err := w.vault.Rel(p); err == nil && !w.vault.IsExcluded(child) {
			w.handler.OnFileCreated(child)
		}
		return nil
	})
}

func (w *Watcher) addTreeLocked(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.vault.Root() {
			if rel, err := w.vault.Rel(p); err == nil && w.vault.Matcher().DirExcluded(rel) {
				return fs.SkipDir
			}
		}
		return w.watcher.Add(p)
	})
}

// Stop releases the watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.watcher != nil {
		_ = w.watcher.Close()
		w.watcher = nil
	}
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
