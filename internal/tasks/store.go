package tasks

import (
	"sort"
	"time"

	"github.com/halvard/tiwaz/internal/document"
)

// Store is the authoritative in-memory task index: taskID -> Task plus a
// per-note secondary index. It is a single-writer structure — mutating
// operations must be externally serialized (the service layer holds a
// mutex); reads may run concurrently with each other but not with an
// in-flight mutation.
type Store struct {
	tasks        map[string]*Task
	byNote       map[string]map[string]struct{}
	nextPriority int

	now func() time.Time
}

// NewStore creates an empty task index.
func NewStore() *Store {
	return &Store{
		tasks:  make(map[string]*Task),
		byNote: make(map[string]map[string]struct{}),
		now:    time.Now,
	}
}

// IndexNote extracts the checklist items of root and diffs them against
// the note's current task set. Matching uses the same three-tier
// precedence as locator resolution — editor key, then content hash, then
// ordinal — applied between the extracted items and the stored locators.
// Matched pairs emit an updated change only when a field actually changed;
// unmatched items become new tasks; unmatched tasks are removed.
func (s *Store) IndexNote(noteID string, root *document.Node) []Change {
	items := Extract(root)
	prev := s.noteTasks(noteID)

	claimed := make(map[string]bool, len(prev))
	matched := make([]*Task, len(items))

	// Key pass: the editor only reuses a key for the same logical node.
	byKey := make(map[string]*Task, len(prev))
	for _, t := range prev {
		if t.Locator.PrimaryKey != "" {
			byKey[t.Locator.PrimaryKey] = t
		}
	}
	for i, it := range items {
		if it.Key == "" {
			continue
		}
		if t, ok := byKey[it.Key]; ok && !claimed[t.ID] {
			matched[i] = t
			claimed[t.ID] = true
		}
	}

	// Hash pass: text identity survives re-keying.
	for i, it := range items {
		if matched[i] != nil {
			continue
		}
		for _, t := range prev {
			if !claimed[t.ID] && t.Locator.ContentHash == it.Hash {
				matched[i] = t
				claimed[t.ID] = true
				break
			}
		}
	}

	// Ordinal pass: last resort, position among checklist nodes.
	for i, it := range items {
		if matched[i] != nil {
			continue
		}
		for _, t := range prev {
			if !claimed[t.ID] && t.Locator.Ordinal == it.Ordinal {
				matched[i] = t
				claimed[t.ID] = true
				break
			}
		}
	}

	now := s.now()
	var changes []Change

	for i, it := range items {
		loc := Locator{PrimaryKey: it.Key, ContentHash: it.Hash, Ordinal: it.Ordinal}
		t := matched[i]
		if t == nil {
			t = &Task{
				ID:        newTaskID(),
				NoteID:    noteID,
				Locator:   loc,
				Text:      it.Text,
				Checked:   it.Checked,
				Priority:  s.nextPriority,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if it.Checked {
				t.CompletedAt = &now
			}
			s.nextPriority++
			s.insert(t)
			changes = append(changes, Change{Op: OpAdded, Task: t.clone()})
			continue
		}

		dirty := t.Text != it.Text || t.Checked != it.Checked ||
			t.Locator.PrimaryKey != loc.PrimaryKey || t.Locator.ContentHash != loc.ContentHash
		if !dirty {
			// Pure ordinal drift (an item inserted or removed above this
			// one) keeps the locator current without announcing a change.
			t.Locator = loc
			continue
		}
		if it.Checked && !t.Checked {
			completed := now
			t.CompletedAt = &completed
		} else if !it.Checked && t.Checked {
			t.CompletedAt = nil
		}
		t.Text = it.Text
		t.Checked = it.Checked
		t.Locator = loc
		t.UpdatedAt = now
		changes = append(changes, Change{Op: OpUpdated, Task: t.clone()})
	}

	for _, t := range prev {
		if claimed[t.ID] {
			continue
		}
		s.remove(t)
		changes = append(changes, Change{Op: OpRemoved, TaskID: t.ID, NoteID: t.NoteID})
	}

	return changes
}

// RemoveNote drops every task belonging to noteID, one removed change per
// task.
func (s *Store) RemoveNote(noteID string) []Change {
	var changes []Change
	for _, t := range s.noteTasks(noteID) {
		s.remove(t)
		changes = append(changes, Change{Op: OpRemoved, TaskID: t.ID, NoteID: t.NoteID})
	}
	return changes
}

// Get returns a copy of the task with the given ID.
func (s *Store) Get(id string) (Task, bool) {
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t.clone(), true
}

// List returns copies of every task matching f, sorted by priority, then
// creation time, then ID.
func (s *Store) List(f Filter) []Task {
	var out []Task
	for _, t := range s.tasks {
		if f.matches(t) {
			out = append(out, *t.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

// Reorder assigns dense priorities to the given tasks by position. Tasks
// not mentioned keep their prior relative order after the reordered set.
// Unknown IDs are skipped. Emits a single reordered change carrying the
// recognised ID sequence.
func (s *Store) Reorder(ids []string) []Change {
	var ordered []*Task
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		t, ok := s.tasks[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ordered = append(ordered, t)
	}
	if len(ordered) == 0 {
		return nil
	}

	var rest []*Task
	for _, t := range s.tasks {
		if !seen[t.ID] {
			rest = append(rest, t)
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		a, b := rest[i], rest[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID < b.ID
	})

	now := s.now()
	p := 0
	for _, t := range append(ordered, rest...) {
		if t.Priority != p {
			t.Priority = p
			t.UpdatedAt = now
		}
		p++
	}
	s.nextPriority = p

	orderedIDs := make([]string, len(ordered))
	for i, t := range ordered {
		orderedIDs[i] = t.ID
	}
	return []Change{{Op: OpReordered, TaskIDs: orderedIDs}}
}

// Notes returns the IDs of every note that currently has tasks, sorted.
func (s *Store) Notes() []string {
	out := make([]string, 0, len(s.byNote))
	for id := range s.byNote {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// All returns a copy of every task, sorted like List. Used by the
// snapshot layer.
func (s *Store) All() []Task {
	return s.List(Filter{})
}

// Restore replaces the store's contents with the given tasks. Used by the
// snapshot layer to rehydrate at startup; the result is still a cache and
// is reconciled by the first sync pass.
func (s *Store) Restore(ts []Task) {
	s.tasks = make(map[string]*Task, len(ts))
	s.byNote = make(map[string]map[string]struct{})
	s.nextPriority = 0
	for i := range ts {
		t := ts[i]
		s.insert(t.clone())
		if t.Priority >= s.nextPriority {
			s.nextPriority = t.Priority + 1
		}
	}
}

// noteTasks returns the live tasks of a note ordered by stored ordinal,
// so matching and removal are deterministic.
func (s *Store) noteTasks(noteID string) []*Task {
	ids := s.byNote[noteID]
	out := make([]*Task, 0, len(ids))
	for id := range ids {
		out = append(out, s.tasks[id])
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Locator.Ordinal != b.Locator.Ordinal {
			return a.Locator.Ordinal < b.Locator.Ordinal
		}
		return a.ID < b.ID
	})
	return out
}

func (s *Store) insert(t *Task) {
	s.tasks[t.ID] = t
	ids := s.byNote[t.NoteID]
	if ids == nil {
		ids = make(map[string]struct{})
		s.byNote[t.NoteID] = ids
	}
	ids[t.ID] = struct{}{}
}

func (s *Store) remove(t *Task) {
	delete(s.tasks, t.ID)
	if ids := s.byNote[t.NoteID]; ids != nil {
		delete(ids, t.ID)
		if len(ids) == 0 {
			delete(s.byNote, t.NoteID)
		}
	}
}

func (t *Task) clone() *Task {
	c := *t
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		c.CompletedAt = &completed
	}
	return &c
}
