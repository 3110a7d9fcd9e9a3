package tasks

import (
	"crypto/rand"
	"encoding/hex"
)

// newTaskID returns a random 16-character hex identifier.
func newTaskID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
