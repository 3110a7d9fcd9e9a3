// Package snapshot persists the task index to a SQLite file so restarts
// do not have to re-scan the vault before serving. The snapshot is a
// strictly best-effort cache: loading falls back to empty on any failure,
// because the index is always rebuildable from the documents themselves.
package snapshot

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/halvard/tiwaz/internal/tasks"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	note_id      TEXT NOT NULL,
	locator      TEXT NOT NULL DEFAULT '{}',
	text         TEXT NOT NULL DEFAULT '',
	checked      INTEGER NOT NULL DEFAULT 0,
	completed_at DATETIME,
	priority     INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_note ON tasks(note_id);
`

// DB wraps a sql.DB with snapshot-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the snapshot database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("snapshot: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("snapshot: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("snapshot: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Load reads every persisted task. Rows whose locator column does not
// decode are skipped — the snapshot is forward compatible, and a dropped
// row only means the task is re-created with a fresh ID by the next sync.
func (db *DB) Load() ([]tasks.Task, error) {
	rows, err := db.conn.Query(`
		SELECT id, note_id, locator, text, checked, completed_at, priority, created_at, updated_at
		FROM tasks
	`)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load: %w", err)
	}
	defer rows.Close()

	var out []tasks.Task
	for rows.Next() {
		var (
			t           tasks.Task
			locJSON     string
			checked     int
			completedAt sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.NoteID, &locJSON, &t.Text, &checked, &completedAt, &t.Priority, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("snapshot: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(locJSON), &t.Locator); err != nil {
			continue
		}
		t.Checked = checked != 0
		if completedAt.Valid {
			completed := completedAt.Time
			t.CompletedAt = &completed
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Flush replaces the persisted snapshot with the given tasks in one
// transaction. A failed flush leaves both the file and the in-memory
// store untouched; callers retry on the next natural trigger.
func (db *DB) Flush(ts []tasks.Task) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM tasks`); err != nil {
		return fmt.Errorf("snapshot: clear: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO tasks (id, note_id, locator, text, checked, completed_at, priority, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("snapshot: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range ts {
		locJSON, err := json.Marshal(t.Locator)
		if err != nil {
			return fmt.Errorf("snapshot: encode locator: %w", err)
		}
		checked := 0
		if t.Checked {
			checked = 1
		}
		var completedAt *time.Time
		if t.CompletedAt != nil {
			completedAt = t.CompletedAt
		}
		if _, err := stmt.Exec(t.ID, t.NoteID, string(locJSON), t.Text, checked, completedAt, t.Priority, t.CreatedAt, t.UpdatedAt); err != nil {
			return fmt.Errorf("snapshot: insert task: %w", err)
		}
	}

	return tx.Commit()
}
