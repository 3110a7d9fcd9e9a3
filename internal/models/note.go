// Package models defines the domain types for Tiwaz.
package models

import "time"

// NoteMetadata identifies a vault document and its current content state.
// ID is the vault-relative file path.
type NoteMetadata struct {
	ID        string    `json:"id"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
