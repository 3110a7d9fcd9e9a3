package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/halvard/tiwaz/internal/apperr"
	"github.com/halvard/tiwaz/internal/taskservice"
	"github.com/halvard/tiwaz/internal/tasks"
)

// Handler holds API route handlers. publish, if non-nil, forwards change
// batches to interested subscribers (the SSE broker); the handlers call it
// synchronously right after the mutation that produced the batch, so event
// order matches mutation order.
type Handler struct {
	svc     *taskservice.Service
	publish func([]tasks.Change)
}

// NewHandler creates a new Handler.
func NewHandler(svc *taskservice.Service, publish func([]tasks.Change)) *Handler {
	return &Handler{svc: svc, publish: publish}
}

func (h *Handler) emit(changes []tasks.Change) {
	if h.publish != nil && len(changes) > 0 {
		h.publish(changes)
	}
}

// notePath extracts the note path from the URL (everything after /notes/).
// Supports encoded slashes from API clients (e.g. topics%2Fnote.json).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListTasks handles GET /tasks with optional status, note, and date-range
// filters. Date params are RFC 3339.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := tasks.Filter{
		NoteID: q.Get("note"),
		Status: tasks.Status(q.Get("status")),
	}
	switch f.Status {
	case tasks.StatusAny, tasks.StatusChecked, tasks.StatusUnchecked:
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("status must be checked or unchecked"))
		return
	}

	var badParam string
	parse := func(name string) *time.Time {
		v := q.Get(name)
		if v == "" {
			return nil
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			badParam = name
			return nil
		}
		return &ts
	}
	f.CreatedAfter = parse("created_after")
	f.CreatedBefore = parse("created_before")
	f.CompletedAfter = parse("completed_after")
	f.CompletedBefore = parse("completed_before")
	if badParam != "" {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid RFC 3339 timestamp: "+badParam))
		return
	}

	items := h.svc.ListTasks(r.Context(), f)
	if items == nil {
		items = []tasks.Task{}
	}
	writeJSON(w, http.StatusOK, TaskListResponse{Tasks: items, Total: len(items)})
}

// GetTask handles GET /tasks/{id}.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := h.svc.GetTask(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ToggleTask handles POST /tasks/{id}/toggle. A locator that no longer
// resolves reports 404 but still returns the removal events the implicit
// reconciliation produced.
func (h *Handler) ToggleTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	changes, err := h.svc.ToggleTask(r.Context(), id)
	h.emit(changes)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, ChangesResponse{Changes: nonNil(changes)})
			return
		}
		slog.Error("toggle task failed", slog.String("task", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, ChangesResponse{Changes: nonNil(changes)})
}

// Reorder handles POST /tasks/reorder.
func (h *Handler) Reorder(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if len(req.TaskIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("task_ids is required"))
		return
	}
	changes := h.svc.Reorder(r.Context(), req.TaskIDs)
	h.emit(changes)
	writeJSON(w, http.StatusOK, ChangesResponse{Changes: nonNil(changes)})
}

// ListNotes handles GET /notes.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListNotes(r.Context(), r.URL.Query().Get("dir"))
	if err != nil {
		slog.Error("list notes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if items == nil {
		items = []taskservice.NoteDetailListItem{}
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: len(items)})
}

// GetNote handles GET /notes/*.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	note, err := h.svc.GetNote(r.Context(), path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get note failed", slog.String("note", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.ID == "" || len(req.Content) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("id and content are required"))
		return
	}
	note, changes, err := h.svc.CreateNote(r.Context(), req.ID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrAlreadyExists):
			writeJSON(w, http.StatusConflict, errorBody("note already exists"))
		case errors.Is(err, apperr.ErrInvalid):
			writeJSON(w, http.StatusBadRequest, errorBody("content is not a document tree"))
		default:
			slog.Error("create note failed", slog.String("note", req.ID), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	h.emit(changes)
	writeJSON(w, http.StatusCreated, NoteMutationResponse{Note: note, Changes: nonNil(changes)})
}

// UpdateNote handles PUT /notes/* with optimistic concurrency via If-Match.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if len(req.Content) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	ifMatch := r.Header.Get("If-Match")
	// Strip surrounding quotes if present (standard ETag format).
	ifMatch = strings.Trim(ifMatch, `"`)

	note, changes, err := h.svc.UpdateNote(r.Context(), path, req.Content, ifMatch)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrConflict):
			writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
		case errors.Is(err, apperr.ErrInvalid):
			writeJSON(w, http.StatusBadRequest, errorBody("content is not a document tree"))
		default:
			slog.Error("update note failed", slog.String("note", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	h.emit(changes)
	writeJSON(w, http.StatusOK, NoteMutationResponse{Note: note, Changes: nonNil(changes)})
}

// DeleteNote handles DELETE /notes/*.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	changes, err := h.svc.DeleteNote(r.Context(), path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		slog.Error("delete note failed", slog.String("note", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.emit(changes)
	writeJSON(w, http.StatusOK, ChangesResponse{Changes: nonNil(changes)})
}

func nonNil(changes []tasks.Change) []tasks.Change {
	if changes == nil {
		return []tasks.Change{}
	}
	return changes
}
