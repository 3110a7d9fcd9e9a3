package taskservice

import (
	"context"
	"log/slog"

	"github.com/halvard/tiwaz/internal/document"
	"github.com/halvard/tiwaz/internal/tasks"
)

// Sync walks the vault and brings the task index up to date:
//   - new/changed documents are decoded and re-indexed
//   - tasks of notes removed from disk are dropped
//
// Because IndexNote is idempotent on unchanged content, Sync is also the
// repair path after a failed snapshot load: it rebuilds the whole index
// from the documents themselves.
func (s *Service) Sync(ctx context.Context) error {
	_, err := s.reconcile(ctx)
	return err
}

// reconcile does one full vault pass and returns the changes it produced.
// Files whose content checksum matches the last indexed state are skipped
// without being re-read into the index.
func (s *Service) reconcile(ctx context.Context) ([]tasks.Change, error) {
	metas, err := s.store.List("")
	if err != nil {
		return nil, err
	}

	var all []tasks.Change

	s.mu.Lock()
	defer s.mu.Unlock()

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		if ctx.Err() != nil {
			return all, ctx.Err()
		}
		disk[m.ID] = struct{}{}

		if s.seen[m.ID] == m.Checksum {
			continue
		}
		data, err := s.store.Read(m.ID)
		if err != nil {
			s.logger.Warn("sync: read failed", slog.String("note", m.ID), slog.String("error", err.Error()))
			continue
		}
		root, err := document.Decode(data)
		if err != nil {
			// Not a document tree; contributes zero tasks.
			s.logger.Warn("sync: decode failed", slog.String("note", m.ID), slog.String("error", err.Error()))
			continue
		}
		changes := s.indexLocked(m.ID, data, root)
		if len(changes) > 0 {
			s.logger.Debug("sync: indexed", slog.String("note", m.ID), slog.Int("changes", len(changes)))
			all = append(all, changes...)
		}
	}

	// Drop tasks of notes that no longer exist on disk.
	for _, noteID := range s.idx.Notes() {
		if _, ok := disk[noteID]; !ok {
			changes := s.removeLocked(noteID)
			s.logger.Debug("sync: removed stale", slog.String("note", noteID))
			all = append(all, changes...)
		}
	}

	return all, nil
}
