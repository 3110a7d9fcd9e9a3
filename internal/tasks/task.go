// Package tasks maintains a derived index of checklist items extracted
// from document trees. The index is authoritative in memory and can
// always be rebuilt by re-indexing every note in the vault; persistence
// is a best-effort cache handled elsewhere.
package tasks

import "time"

// Task is the materialized record of one checklist node. ID is synthetic,
// generated when the task is first observed and never recomputed from
// content; it stays stable for the life of the task even as the underlying
// node is re-keyed, retyped, or moved.
type Task struct {
	ID          string     `json:"id"`
	NoteID      string     `json:"note_id"`
	Locator     Locator    `json:"locator"`
	Text        string     `json:"text"`
	Checked     bool       `json:"checked"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Priority    int        `json:"priority"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Op identifies the kind of change described by a Change event.
type Op string

const (
	OpAdded     Op = "added"
	OpRemoved   Op = "removed"
	OpUpdated   Op = "updated"
	OpReordered Op = "reordered"
)

// Change describes one unit of change to the task index. Every mutating
// store operation returns its changes synchronously and in order; the
// store keeps no subscriber list and never dispatches asynchronously, so
// event ordering matches mutation ordering by construction.
type Change struct {
	Op      Op       `json:"op"`
	Task    *Task    `json:"task,omitempty"`     // added, updated
	TaskID  string   `json:"task_id,omitempty"`  // removed
	NoteID  string   `json:"note_id,omitempty"`  // removed
	TaskIDs []string `json:"task_ids,omitempty"` // reordered
}

// Status filters tasks by checked state.
type Status string

const (
	StatusAny       Status = ""
	StatusChecked   Status = "checked"
	StatusUnchecked Status = "unchecked"
)

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	NoteID          string
	Status          Status
	CreatedAfter    *time.Time
	CreatedBefore   *time.Time
	CompletedAfter  *time.Time
	CompletedBefore *time.Time
}

func (f Filter) matches(t *Task) bool {
	if f.NoteID != "" && t.NoteID != f.NoteID {
		return false
	}
	switch f.Status {
	case StatusChecked:
		if !t.Checked {
			return false
		}
	case StatusUnchecked:
		if t.Checked {
			return false
		}
	}
	if f.CreatedAfter != nil && t.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && t.CreatedAt.After(*f.CreatedBefore) {
		return false
	}
	if f.CompletedAfter != nil && (t.CompletedAt == nil || t.CompletedAt.Before(*f.CompletedAfter)) {
		return false
	}
	if f.CompletedBefore != nil && (t.CompletedAt == nil || t.CompletedAt.After(*f.CompletedBefore)) {
		return false
	}
	return true
}
