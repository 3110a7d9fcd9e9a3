// Package testutil provides shared test helpers for setting up vaults,
// snapshot databases, and document trees.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/halvard/tiwaz/internal/document"
	"github.com/halvard/tiwaz/internal/snapshot"
	"github.com/halvard/tiwaz/internal/storage"
)

// TestVault creates a temporary vault directory with a storage.Provider.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// TestSnapshot creates a temporary snapshot database that is automatically
// cleaned up.
func TestSnapshot(t *testing.T) *snapshot.DB {
	t.Helper()
	f, err := os.CreateTemp("", "tiwaz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := snapshot.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestLogger returns a logger that discards output.
func TestLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Doc builds a root document node.
func Doc(children ...*document.Node) *document.Node {
	return &document.Node{Type: document.TypeRoot, Children: children}
}

// List builds a list node.
func List(children ...*document.Node) *document.Node {
	return &document.Node{Type: document.TypeList, Children: children}
}

// Checklist builds a checklist item with a single text leaf.
func Checklist(key, text string, checked bool) *document.Node {
	return &document.Node{
		Type:    document.TypeListItem,
		Key:     key,
		Checked: &checked,
		Children: []*document.Node{
			{Type: document.TypeText, Text: text},
		},
	}
}

// Para builds a paragraph with a single text leaf.
func Para(text string) *document.Node {
	return &document.Node{
		Type: document.TypeParagraph,
		Children: []*document.Node{
			{Type: document.TypeText, Text: text},
		},
	}
}

// MustEncode serializes a document tree or fails the test.
func MustEncode(t *testing.T, root *document.Node) []byte {
	t.Helper()
	data, err := document.Encode(root)
	if err != nil {
		t.Fatalf("encode document: %v", err)
	}
	return data
}
