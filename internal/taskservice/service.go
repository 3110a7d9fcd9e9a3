// Package taskservice coordinates vault storage, document decoding, and
// the in-memory task index behind a single-writer handle. Every mutating
// operation passes through one mutex, which is what makes the index's
// read-previous-state/write-new-state diffing safe.
package taskservice

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/halvard/tiwaz/internal/apperr"
	"github.com/halvard/tiwaz/internal/checksum"
	"github.com/halvard/tiwaz/internal/document"
	"github.com/halvard/tiwaz/internal/snapshot"
	"github.com/halvard/tiwaz/internal/storage"
	"github.com/halvard/tiwaz/internal/tasks"
)

const flushDelay = 500 * time.Millisecond

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	ID        string          `json:"id"`
	Content   json.RawMessage `json:"content"`
	Checksum  string          `json:"checksum"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Service owns the task index and serializes all mutations against it.
// snap may be nil when snapshot persistence is unavailable; the service
// works identically without it, just with a cold start.
type Service struct {
	store  storage.Provider
	idx    *tasks.Store
	snap   *snapshot.DB
	logger *slog.Logger

	mu         sync.Mutex
	seen       map[string]string // noteID -> content checksum of last indexed state
	flushTimer *time.Timer
}

// New creates a task service over the given storage and snapshot layers.
func New(store storage.Provider, snap *snapshot.DB, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		idx:    tasks.NewStore(),
		snap:   snap,
		logger: logger,
		seen:   make(map[string]string),
	}
}

// Rehydrate loads the persisted snapshot into the index. Failures are
// logged and leave the index empty; the following Sync pass rebuilds it
// from the vault, so correctness never depends on this succeeding.
func (s *Service) Rehydrate() {
	if s.snap == nil {
		return
	}
	ts, err := s.snap.Load()
	if err != nil {
		s.logger.Warn("rehydrate: snapshot load failed", slog.String("error", err.Error()))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idx.Restore(ts)
	s.logger.Debug("rehydrate: restored", slog.Int("tasks", len(ts)))
}

// IndexNote reads and decodes the note and diffs its checklist items
// against the index, returning the resulting changes.
func (s *Service) IndexNote(_ context.Context, noteID string) ([]tasks.Change, error) {
	data, err := s.store.Read(noteID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	root, err := document.Decode(data)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(noteID, data, root), nil
}

// RemoveNote drops every task belonging to noteID from the index. It does
// not touch storage; DeleteNote does both.
func (s *Service) RemoveNote(_ context.Context, noteID string) []tasks.Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(noteID)
}

// ToggleTask flips the checked flag of the checklist node the task's
// locator resolves to, saves the mutated document, and re-indexes the
// note so derived fields (completion timestamp, text, locator) refresh.
// A locator that no longer resolves is not an exception: the task is
// dropped from the index and ErrNotFound is returned alongside the
// removal events.
func (s *Service) ToggleTask(_ context.Context, taskID string) ([]tasks.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.idx.Get(taskID)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	data, err := s.store.Read(t.NoteID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Note itself is gone; cascade the removal.
			return s.removeLocked(t.NoteID), apperr.ErrNotFound
		}
		return nil, err
	}
	root, err := document.Decode(data)
	if err != nil {
		return nil, err
	}

	if err := tasks.Toggle(root, t.Locator); err != nil {
		// Node no longer exists: reconcile against the live tree, which
		// drops the stale task and anything else that drifted.
		changes := s.indexLocked(t.NoteID, data, root)
		return changes, apperr.ErrNotFound
	}

	updated, err := document.Encode(root)
	if err != nil {
		return nil, err
	}
	// Save first, then re-index: a failed save must not show up in the index.
	if err := s.store.Write(t.NoteID, updated); err != nil {
		return nil, err
	}
	return s.indexLocked(t.NoteID, updated, root), nil
}

// Reorder assigns priorities by position in ids.
func (s *Service) Reorder(_ context.Context, ids []string) []tasks.Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	changes := s.idx.Reorder(ids)
	if len(changes) > 0 {
		s.scheduleFlushLocked()
	}
	return changes
}

// GetTask returns a copy of one task.
func (s *Service) GetTask(_ context.Context, taskID string) (tasks.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.idx.Get(taskID)
	if !ok {
		return tasks.Task{}, apperr.ErrNotFound
	}
	return t, nil
}

// ListTasks returns all tasks matching the filter, sorted by priority.
func (s *Service) ListTasks(_ context.Context, f tasks.Filter) []tasks.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx.List(f)
}

// GetNote reads a note from storage.
func (s *Service) GetNote(_ context.Context, noteID string) (*NoteDetail, error) {
	data, err := s.store.Read(noteID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return noteDetail(noteID, data), nil
}

// CreateNote writes a new note and indexes it. Content must decode as a
// document tree.
func (s *Service) CreateNote(_ context.Context, noteID string, content []byte) (*NoteDetail, []tasks.Change, error) {
	root, err := document.Decode(content)
	if err != nil {
		return nil, nil, apperr.ErrInvalid
	}
	if _, err := s.store.Read(noteID); err == nil {
		return nil, nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Write(noteID, content); err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	changes := s.indexLocked(noteID, content, root)
	return noteDetail(noteID, content), changes, nil
}

// UpdateNote writes updated content with optimistic concurrency and
// re-indexes the note.
func (s *Service) UpdateNote(_ context.Context, noteID string, content []byte, ifMatch string) (*NoteDetail, []tasks.Change, error) {
	root, err := document.Decode(content)
	if err != nil {
		return nil, nil, apperr.ErrInvalid
	}
	existing, err := s.store.Read(noteID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, apperr.ErrNotFound
		}
		return nil, nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, nil, apperr.ErrConflict
	}
	if err := s.store.Write(noteID, content); err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	changes := s.indexLocked(noteID, content, root)
	return noteDetail(noteID, content), changes, nil
}

// DeleteNote removes a note from storage and drops its tasks.
func (s *Service) DeleteNote(_ context.Context, noteID string) ([]tasks.Change, error) {
	if err := s.store.Delete(noteID); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(noteID), nil
}

// ListNotes returns metadata for every document in the vault.
func (s *Service) ListNotes(_ context.Context, dir string) ([]NoteDetailListItem, error) {
	metas, err := s.store.List(dir)
	if err != nil {
		return nil, err
	}
	items := make([]NoteDetailListItem, len(metas))
	for i, m := range metas {
		items[i] = NoteDetailListItem{ID: m.ID, Checksum: m.Checksum, UpdatedAt: m.UpdatedAt}
	}
	return items, nil
}

// NoteDetailListItem is a lightweight item in a note list response.
type NoteDetailListItem struct {
	ID        string    `json:"id"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Flush persists the current index to the snapshot. Failures leave the
// in-memory state unchanged.
func (s *Service) Flush() error {
	if s.snap == nil {
		return nil
	}
	s.mu.Lock()
	all := s.idx.All()
	s.mu.Unlock()
	return s.snap.Flush(all)
}

// indexLocked runs the store diff and records the note's content checksum
// so sync passes can skip unchanged files. Callers hold s.mu.
func (s *Service) indexLocked(noteID string, data []byte, root *document.Node) []tasks.Change {
	changes := s.idx.IndexNote(noteID, root)
	s.seen[noteID] = checksum.Sum(data)
	if len(changes) > 0 {
		s.scheduleFlushLocked()
	}
	return changes
}

func (s *Service) removeLocked(noteID string) []tasks.Change {
	changes := s.idx.RemoveNote(noteID)
	delete(s.seen, noteID)
	if len(changes) > 0 {
		s.scheduleFlushLocked()
	}
	return changes
}

// scheduleFlushLocked debounces snapshot writes: bursts of mutations
// (typing, watcher storms) collapse into one flush. Callers hold s.mu.
func (s *Service) scheduleFlushLocked() {
	if s.snap == nil {
		return
	}
	if s.flushTimer != nil {
		s.flushTimer.Reset(flushDelay)
		return
	}
	s.flushTimer = time.AfterFunc(flushDelay, func() {
		if err := s.Flush(); err != nil {
			s.logger.Warn("snapshot flush failed", slog.String("error", err.Error()))
		}
	})
}

func noteDetail(noteID string, data []byte) *NoteDetail {
	return &NoteDetail{
		ID:        noteID,
		Content:   json.RawMessage(data),
		Checksum:  checksum.Sum(data),
		UpdatedAt: time.Now(),
	}
}
