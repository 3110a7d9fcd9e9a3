package api

import (
	"encoding/json"

	"github.com/halvard/tiwaz/internal/taskservice"
	"github.com/halvard/tiwaz/internal/tasks"
)

// CreateNoteRequest is the request body for creating a note. Content is
// the JSON encoding of the note's document tree.
type CreateNoteRequest struct {
	ID      string          `json:"id"`
	Content json.RawMessage `json:"content"`
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content json.RawMessage `json:"content"`
}

// ReorderRequest is the request body for reordering tasks.
type ReorderRequest struct {
	TaskIDs []string `json:"task_ids"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = taskservice.NoteDetail

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []taskservice.NoteDetailListItem `json:"notes"`
	Total int                              `json:"total"`
}

// TaskListResponse wraps task listings.
type TaskListResponse struct {
	Tasks []tasks.Task `json:"tasks"`
	Total int          `json:"total"`
}

// ChangesResponse carries the change events produced by a mutation.
type ChangesResponse struct {
	Changes []tasks.Change `json:"changes"`
}

// NoteMutationResponse combines the resulting note with the change events
// its indexing produced.
type NoteMutationResponse struct {
	Note    *NoteDetail    `json:"note"`
	Changes []tasks.Change `json:"changes"`
}
