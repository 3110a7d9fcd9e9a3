package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/halvard/tiwaz/internal/checksum"
	"github.com/halvard/tiwaz/internal/storage"
	"github.com/halvard/tiwaz/internal/taskservice"
	"github.com/halvard/tiwaz/internal/tasks"
	"github.com/halvard/tiwaz/internal/testutil"
)

// testEnv sets up a temp vault, snapshot DB, service, and router.
// authToken == "" means auth disabled.
func testEnv(t *testing.T, authToken string) (*taskservice.Service, http.Handler) {
	t.Helper()
	svc, router, _ := testEnvWithStore(t, authToken)
	return svc, router
}

func testEnvWithStore(t *testing.T, authToken string) (*taskservice.Service, http.Handler, storage.Provider) {
	t.Helper()
	_, store := testutil.TestVault(t)
	svc := taskservice.New(store, testutil.TestSnapshot(t), testutil.TestLogger(t))
	router := NewRouter(svc, authToken != "", authToken, nil, nil)
	return svc, router, store
}

func groceriesJSON(t *testing.T) json.RawMessage {
	t.Helper()
	return testutil.MustEncode(t, testutil.Doc(testutil.List(
		testutil.Checklist("k1", "Buy milk", false),
		testutil.Checklist("k2", "Buy eggs", true),
	)))
}

func createNote(t *testing.T, router http.Handler, id string, content json.RawMessage) NoteMutationResponse {
	t.Helper()
	body, _ := json.Marshal(CreateNoteRequest{ID: id, Content: content})
	req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp NoteMutationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return resp
}

func listTasks(t *testing.T, router http.Handler, query string) TaskListResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/tasks"+query, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp TaskListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	return resp
}

func TestCreateAndGetNote(t *testing.T) {
	_, router := testEnv(t, "")

	created := createNote(t, router, "groceries.json", groceriesJSON(t))
	if created.Note == nil || created.Note.ID != "groceries.json" {
		t.Fatalf("note = %+v", created.Note)
	}
	if len(created.Changes) != 2 {
		t.Fatalf("changes = %+v", created.Changes)
	}

	req := httptest.NewRequest(http.MethodGet, "/notes/groceries.json", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var note NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.ID != "groceries.json" || note.Checksum == "" {
		t.Errorf("note = %+v", note)
	}
}

func TestCreateNote_Validation(t *testing.T) {
	_, router := testEnv(t, "")

	cases := []struct {
		name string
		body string
		want int
	}{
		{"missing id", `{"content":{"type":"root"}}`, http.StatusBadRequest},
		{"missing content", `{"id":"a.json"}`, http.StatusBadRequest},
		{"not a document", `{"id":"a.json","content":{"kind":"nope"}}`, http.StatusBadRequest},
		{"broken json", `{{{`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader([]byte(tc.body)))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestCreateNote_Duplicate(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "a.json", groceriesJSON(t))

	body, _ := json.Marshal(CreateNoteRequest{ID: "a.json", Content: groceriesJSON(t)})
	req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestListTasks_Filters(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "a.json", groceriesJSON(t))

	if got := listTasks(t, router, ""); got.Total != 2 {
		t.Errorf("total = %d, want 2", got.Total)
	}
	if got := listTasks(t, router, "?status=checked"); got.Total != 1 || !got.Tasks[0].Checked {
		t.Errorf("checked = %+v", got)
	}
	if got := listTasks(t, router, "?status=unchecked"); got.Total != 1 {
		t.Errorf("unchecked total = %d", got.Total)
	}
	if got := listTasks(t, router, "?note=a.json"); got.Total != 2 {
		t.Errorf("by note total = %d", got.Total)
	}
	if got := listTasks(t, router, "?created_after=2000-01-01T00:00:00Z"); got.Total != 2 {
		t.Errorf("created_after total = %d", got.Total)
	}
	if got := listTasks(t, router, "?completed_before=2000-01-01T00:00:00Z"); got.Total != 0 {
		t.Errorf("completed_before total = %d", got.Total)
	}
}

func TestListTasks_BadParams(t *testing.T) {
	_, router := testEnv(t, "")

	for _, q := range []string{"?status=done", "?created_after=yesterday", "?completed_before=not-a-time"} {
		req := httptest.NewRequest(http.MethodGet, "/tasks"+q, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestGetTask(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "a.json", groceriesJSON(t))
	id := listTasks(t, router, "").Tasks[0].ID

	req := httptest.NewRequest(http.MethodGet, "/tasks/"+id, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var task tasks.Task
	_ = json.Unmarshal(w.Body.Bytes(), &task)
	if task.ID != id || task.NoteID != "a.json" {
		t.Errorf("task = %+v", task)
	}

	req = httptest.NewRequest(http.MethodGet, "/tasks/nonexistent", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing task status = %d, want 404", w.Code)
	}
}

func TestToggleTask(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "a.json", groceriesJSON(t))

	var target tasks.Task
	for _, task := range listTasks(t, router, "").Tasks {
		if !task.Checked {
			target = task
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/tasks/"+target.ID+"/toggle", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ChangesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Changes) != 1 || resp.Changes[0].Op != tasks.OpUpdated {
		t.Fatalf("changes = %+v", resp.Changes)
	}
	if !resp.Changes[0].Task.Checked || resp.Changes[0].Task.CompletedAt == nil {
		t.Errorf("toggled task = %+v", resp.Changes[0].Task)
	}
}

func TestToggleTask_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	req := httptest.NewRequest(http.MethodPost, "/tasks/no-such/toggle", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestToggleTask_StaleLocator(t *testing.T) {
	_, router, store := testEnvWithStore(t, "")
	createNote(t, router, "a.json", groceriesJSON(t))
	id := listTasks(t, router, "").Tasks[0].ID

	// The file is rewritten outside the API; its checklist is gone.
	replaced := testutil.MustEncode(t, testutil.Doc(testutil.Para("no tasks here")))
	if err := store.Write("a.json", replaced); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/tasks/"+id+"/toggle", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	// The 404 body still carries the removal events from reconciliation.
	var resp ChangesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Changes) == 0 {
		t.Fatalf("body = %s, want removal changes", w.Body.String())
	}
	for _, c := range resp.Changes {
		if c.Op != tasks.OpRemoved {
			t.Errorf("change = %+v, want removed", c)
		}
	}
}

func TestReorder(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "a.json", groceriesJSON(t))
	ts := listTasks(t, router, "").Tasks

	body, _ := json.Marshal(ReorderRequest{TaskIDs: []string{ts[1].ID, ts[0].ID}})
	req := httptest.NewRequest(http.MethodPost, "/tasks/reorder", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ChangesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Changes) != 1 || resp.Changes[0].Op != tasks.OpReordered {
		t.Fatalf("changes = %+v", resp.Changes)
	}

	got := listTasks(t, router, "").Tasks
	if got[0].ID != ts[1].ID || got[1].ID != ts[0].ID {
		t.Errorf("order = [%s %s]", got[0].ID, got[1].ID)
	}
}

func TestReorder_EmptyBody(t *testing.T) {
	_, router := testEnv(t, "")
	req := httptest.NewRequest(http.MethodPost, "/tasks/reorder", bytes.NewReader([]byte(`{"task_ids":[]}`)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUpdateNote_IfMatch(t *testing.T) {
	_, router := testEnv(t, "")
	content := groceriesJSON(t)
	createNote(t, router, "a.json", content)

	next := testutil.MustEncode(t, testutil.Doc(testutil.List(
		testutil.Checklist("k1", "Buy milk", false),
	)))
	body, _ := json.Marshal(UpdateNoteRequest{Content: next})

	req := httptest.NewRequest(http.MethodPut, "/notes/a.json", bytes.NewReader(body))
	req.Header.Set("If-Match", `"stale-checksum"`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("stale update status = %d, want 409", w.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/notes/a.json", bytes.NewReader(body))
	req.Header.Set("If-Match", `"`+checksum.Sum(content)+`"`)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := listTasks(t, router, ""); got.Total != 1 {
		t.Errorf("total after update = %d, want 1", got.Total)
	}
}

func TestDeleteNote(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "a.json", groceriesJSON(t))

	req := httptest.NewRequest(http.MethodDelete, "/notes/a.json", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	var resp ChangesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Changes) != 2 {
		t.Errorf("changes = %+v", resp.Changes)
	}

	req = httptest.NewRequest(http.MethodGet, "/notes/a.json", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
	if got := listTasks(t, router, ""); got.Total != 0 {
		t.Errorf("total after delete = %d, want 0", got.Total)
	}
}

func TestListNotes(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "a.json", groceriesJSON(t))
	createNote(t, router, "sub/b.json", groceriesJSON(t))

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp NoteListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}
}

func TestAuth(t *testing.T) {
	_, router := testEnv(t, "secret-token")

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no header status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("good token status = %d, want 200", w.Code)
	}
}

func TestChangesPublished(t *testing.T) {
	_, store := testutil.TestVault(t)
	svc := taskservice.New(store, nil, testutil.TestLogger(t))

	var batches [][]tasks.Change
	router := NewRouter(svc, false, "", func(cs []tasks.Change) {
		batches = append(batches, cs)
	}, nil)

	createNote(t, router, "a.json", groceriesJSON(t))
	if len(batches) != 1 || len(batches[0]) != 2 {
		t.Fatalf("batches = %+v", batches)
	}
}
