package manager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/semindex/internal/vault"
)

// OnFileCreated schedules processing of a new document after CreateDelay.
// A create that matches a recent removal completes a rename: the stored
// vectors move to the new path instead of being embedded again.
func (m *Manager) OnFileCreated(path string) {
	path = vault.Clean(path)
	if m.vault.IsExcluded(path) {
		return
	}
	rm, target := m.removals.match(path)
	if rm == nil {
		m.schedule(path, m.cfg.CreateDelay)
		return
	}
	if !m.startBackground() {
		return
	}
	go func() {
		defer m.inflight.Done()
		m.completeRename(rm, target, path)
	}()
}

// completeRename moves the vectors of a held removal to target, the new
// path of the document or directory, and schedules created.
func (m *Manager) completeRename(rm *removal, target, created string) {
	var err error
	switch {
	case rm.isDocument() && rm.path == target:
		// replaced in place, the create is an ordinary update
		m.schedule(created, m.cfg.CreateDelay)
	case rm.isDocument():
		err = m.OnFileRenamed(m.bg, rm.path, target)
	default:
		err = m.OnDirectoryRenamed(m.bg, rm.path, target)
		m.schedule(created, m.cfg.CreateDelay)
	}
	if err != nil && m.bg.Err() == nil {
		m.logger.Warn("failed to complete rename",
			zap.String("from", rm.path),
			zap.String("to", target),
			zap.Error(err))
	}
}

// OnFileModified schedules processing once the document has been quiet
// for QuietPeriod. Every further change restarts the wait.
func (m *Manager) OnFileModified(path string) {
	m.schedule(vault.Clean(path), m.cfg.QuietPeriod)
}

func (m *Manager) schedule(path string, delay time.Duration) {
	if m.vault.IsExcluded(path) {
		return
	}
	m.debounce.schedule(path, delay, func() {
		if !m.startBackground() {
			return
		}
		defer m.inflight.Done()
		m.update(path)
	})
}

// OnFileRenamed rewrites the stored ids of a document in place, then
// schedules the new path after CreateDelay so path-derived metadata is
// refreshed. Unchanged chunks are reused, so nothing is re-embedded. A
// document renamed into an excluded location is removed.
func (m *Manager) OnFileRenamed(ctx context.Context, oldPath, newPath string) error {
	oldPath, newPath = vault.Clean(oldPath), vault.Clean(newPath)
	m.debounce.cancel(oldPath)
	m.retries.drop(oldPath)

	if err := m.gate.Acquire(ctx); err != nil {
		return err
	}
	defer m.gate.Release()

	if m.vault.IsExcluded(newPath) {
		_, err := m.forget(ctx, oldPath)
		return err
	}

	n, err := m.store.RenameByPath(ctx, oldPath, newPath)
	if err != nil {
		return fmt.Errorf("rename %s: %w", oldPath, err)
	}
	if _, err := m.store.RenameFailedFiles(ctx, oldPath, newPath, false); err != nil {
		return fmt.Errorf("rename ledger entry %s: %w", oldPath, err)
	}
	m.logger.Debug("document renamed",
		zap.String("from", oldPath),
		zap.String("to", newPath),
		zap.Int("vectors", n))

	m.schedule(newPath, m.cfg.CreateDelay)
	return nil
}

// OnFileDeleted removes every vector and the ledger entry of a document.
func (m *Manager) OnFileDeleted(ctx context.Context, path string) error {
	path = vault.Clean(path)
	m.debounce.cancel(path)
	m.retries.drop(path)

	if err := m.gate.Acquire(ctx); err != nil {
		return err
	}
	defer m.gate.Release()

	n, err := m.forget(ctx, path)
	if err != nil {
		return err
	}
	m.logger.Debug("document deleted", zap.String("path", path), zap.Int("vectors", n))
	return nil
}

// OnDirectoryRenamed moves every document below oldDir.
func (m *Manager) OnDirectoryRenamed(ctx context.Context, oldDir, newDir string) error {
	oldDir, newDir = vault.Clean(oldDir), vault.Clean(newDir)
	pending := m.debounce.cancelDir(oldDir)

	if err := m.gate.Acquire(ctx); err != nil {
		return err
	}
	defer m.gate.Release()

	n, err := m.store.RenameByDirectory(ctx, oldDir, newDir)
	if err != nil {
		return fmt.Errorf("rename directory %s: %w", oldDir, err)
	}
	if _, err := m.store.RenameFailedFiles(ctx, oldDir, newDir, true); err != nil {
		return fmt.Errorf("rename ledger entries %s: %w", oldDir, err)
	}
	m.logger.Debug("directory renamed",
		zap.String("from", oldDir),
		zap.String("to", newDir),
		zap.Int("vectors", n))

	for _, p := range pending {
		m.schedule(newDir+strings.TrimPrefix(p, oldDir), m.cfg.CreateDelay)
	}
	return nil
}

// OnDirectoryDeleted removes every document below dir.
func (m *Manager) OnDirectoryDeleted(ctx context.Context, dir string) error {
	dir = vault.Clean(dir)
	m.debounce.cancelDir(dir)

	if err := m.gate.Acquire(ctx); err != nil {
		return err
	}
	defer m.gate.Release()
	return m.removeDirectory(ctx, dir)
}

func (m *Manager) removeDirectory(ctx context.Context, dir string) error {
	n, err := m.store.RemoveByDirectory(ctx, dir)
	if err != nil {
		return fmt.Errorf("remove directory %s: %w", dir, err)
	}
	ledger, err := m.store.ListFailedFiles(ctx)
	if err != nil {
		return fmt.Errorf("list failed files: %w", err)
	}
	prefix := dir + "/"
	for _, f := range ledger {
		if strings.HasPrefix(f.Path, prefix) {
			if err := m.store.DeleteFailedFile(ctx, f.Path); err != nil {
				return fmt.Errorf("clear ledger for %s: %w", f.Path, err)
			}
		}
	}
	m.logger.Debug("directory deleted", zap.String("dir", dir), zap.Int("vectors", n))
	return nil
}

// OnPathRemoved handles a removal whose kind is unknown, as reported by
// the filesystem watcher: the path is dropped both as a document and as a
// directory. The filesystem reports a rename as a removal followed by a
// create, so stored vectors are held for CreateDelay and only removed if
// no create claims them.
func (m *Manager) OnPathRemoved(ctx context.Context, path string) error {
	path = vault.Clean(path)
	m.debounce.cancel(path)
	m.debounce.cancelDir(path)
	m.retries.drop(path)

	docs, err := m.storedAt(ctx, path)
	if err != nil {
		return err
	}
	if len(docs) > 0 && m.removals.hold(path, docs, m.cfg.CreateDelay, m.expireRemoval) {
		m.logger.Debug("removal held", zap.String("path", path), zap.Int("documents", len(docs)))
		return nil
	}
	return m.removePath(ctx, path)
}

// expireRemoval removes a held path no create claimed.
func (m *Manager) expireRemoval(rm *removal) {
	if !m.startBackground() {
		return
	}
	defer m.inflight.Done()
	if err := m.removePath(m.bg, rm.path); err != nil && m.bg.Err() == nil {
		m.logger.Warn("failed to remove path", zap.String("path", rm.path), zap.Error(err))
	}
}

func (m *Manager) removePath(ctx context.Context, path string) error {
	if err := m.gate.Acquire(ctx); err != nil {
		return err
	}
	defer m.gate.Release()

	if _, err := m.forget(ctx, path); err != nil {
		return err
	}
	return m.removeDirectory(ctx, path)
}

// storedAt lists the stored documents at or below path.
func (m *Manager) storedAt(ctx context.Context, path string) ([]string, error) {
	stored, err := m.store.GetDistinctPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stored paths: %w", err)
	}
	var docs []string
	for _, p := range stored {
		if p == path || strings.HasPrefix(p, path+"/") {
			docs = append(docs, p)
		}
	}
	return docs, nil
}

var _ vault.Handler = (*Manager)(nil)
