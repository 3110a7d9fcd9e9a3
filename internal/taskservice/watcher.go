package taskservice

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/halvard/tiwaz/internal/storage"
	"github.com/halvard/tiwaz/internal/tasks"
)

// ChangeCallback receives the change batch produced by one watcher-driven
// index mutation.
type ChangeCallback func(changes []tasks.Change)

// Watch starts an fsnotify watcher on the vault root and re-indexes
// documents as they change on disk until ctx is cancelled. It calls cb
// (if non-nil) with each non-empty change batch.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a debounced reconciliation pass that drops
// tasks whose documents no longer exist on disk.
func (s *Service) Watch(ctx context.Context, vaultRoot string, cb ChangeCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, vaultRoot); err != nil {
		return err
	}

	s.logger.Info("watcher: started", slog.String("root", vaultRoot))

	// reconcileTimer debounces rename reconciliation.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	emit := func(changes []tasks.Change) {
		if cb != nil && len(changes) > 0 {
			cb(changes)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			s.logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			changes, err := s.reconcile(ctx)
			if err != nil {
				s.logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}
			emit(changes)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			// New directories: add to watcher and index their contents.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						s.logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						s.logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					s.indexNewDir(ctx, vaultRoot, absPath, emit)
					continue
				}
			}

			// Only document files from here on.
			if !strings.HasSuffix(absPath, storage.Ext) {
				continue
			}

			rel, relErr := filepath.Rel(vaultRoot, absPath)
			if relErr != nil {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				changes, idxErr := s.IndexNote(ctx, rel)
				if idxErr != nil {
					s.logger.Warn("watcher: index failed", slog.String("note", rel), slog.String("error", idxErr.Error()))
					continue
				}
				s.logger.Debug("watcher: indexed", slog.String("note", rel), slog.Int("changes", len(changes)))
				emit(changes)

			case ev.Op&fsnotify.Remove != 0:
				changes := s.RemoveNote(ctx, rel)
				s.logger.Debug("watcher: removed", slog.String("note", rel))
				emit(changes)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the OLD path only. The new path
				// arrives as a separate Create event if it stays within a
				// watched dir. Drop the old entry now and schedule a short
				// reconciliation pass to catch stragglers.
				changes := s.RemoveNote(ctx, rel)
				s.logger.Debug("watcher: rename old removed", slog.String("note", rel))
				emit(changes)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// indexNewDir indexes any document files found in a newly created directory.
func (s *Service) indexNewDir(ctx context.Context, vaultRoot, dirPath string, emit func([]tasks.Change)) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, storage.Ext) {
			return nil
		}
		rel, relErr := filepath.Rel(vaultRoot, path)
		if relErr != nil {
			return nil
		}
		changes, idxErr := s.IndexNote(ctx, rel)
		if idxErr != nil {
			return nil
		}
		s.logger.Debug("watcher: indexed from new dir", slog.String("note", rel))
		emit(changes)
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
