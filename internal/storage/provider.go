// Package storage defines the vault file-system abstraction.
package storage

import "github.com/halvard/tiwaz/internal/models"

// Provider is the interface for vault file operations. Note IDs are
// vault-relative paths ending in the document extension.
type Provider interface {
	// List returns metadata for every document file under dir (relative to vault root).
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the document at id.
	Read(id string) ([]byte, error)
	// Write atomically writes content to id.
	Write(id string, content []byte) error
	// Delete removes the document at id.
	Delete(id string) error
	// Move renames oldID to newID.
	Move(oldID, newID string) error
}
