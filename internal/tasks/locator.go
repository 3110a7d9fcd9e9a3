package tasks

import (
	"github.com/halvard/tiwaz/internal/apperr"
	"github.com/halvard/tiwaz/internal/checksum"
	"github.com/halvard/tiwaz/internal/document"
)

// Locator re-finds a checklist node in a document tree that may have
// changed since the locator was captured. Its three fields degrade in
// specificity: the editor key is authoritative but may be reassigned,
// the content hash survives re-keying but breaks on text edits, and the
// ordinal survives both but shifts when items are inserted or removed
// above the node.
type Locator struct {
	PrimaryKey  string `json:"primary_key"`
	ContentHash string `json:"content_hash"`
	Ordinal     int    `json:"ordinal"`
}

// Resolve finds the node loc refers to using three strictly ordered
// passes, stopping at the first hit:
//
//  1. any node whose editor key equals loc.PrimaryKey — authoritative,
//     since the editor only reuses a key for the same logical node;
//  2. the first checklist node in document order whose content hash
//     equals loc.ContentHash;
//  3. the checklist node at position loc.Ordinal.
//
// A hash match wins over an ordinal match: text identity is a stronger
// signal than position. When the note contains duplicate-text items the
// hash pass deterministically picks the first in document order, which
// can land on a sibling — a documented trade-off, not something this
// function second-guesses. Returns apperr.ErrNotFound when no pass hits.
func Resolve(root *document.Node, loc Locator) (*document.Node, error) {
	var byKey, byHash, byOrdinal *document.Node
	ordinal := 0

	document.Walk(root, func(n *document.Node) bool {
		if loc.PrimaryKey != "" && n.Key == loc.PrimaryKey {
			byKey = n
			return false
		}
		if n.IsChecklist() {
			if byHash == nil && checksum.SumString(n.TextContent()) == loc.ContentHash {
				byHash = n
			}
			if ordinal == loc.Ordinal {
				byOrdinal = n
			}
			ordinal++
		}
		return true
	})

	switch {
	case byKey != nil:
		return byKey, nil
	case byHash != nil:
		return byHash, nil
	case byOrdinal != nil:
		return byOrdinal, nil
	default:
		return nil, apperr.ErrNotFound
	}
}

// Toggle resolves loc and flips the checked flag of the resolved node in
// place. It does not persist the document or refresh the index; callers
// save the mutated tree and re-index afterwards. A node that resolves by
// key but is not a checklist item counts as not found.
func Toggle(root *document.Node, loc Locator) error {
	n, err := Resolve(root, loc)
	if err != nil {
		return err
	}
	if !n.IsChecklist() {
		return apperr.ErrNotFound
	}
	flipped := !*n.Checked
	n.Checked = &flipped
	return nil
}
