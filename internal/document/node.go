// Package document models the tree shape of a note's content as produced
// by the editing surface. The tree is consumed read-only everywhere except
// for the checked flag on checklist items, which the task index may flip.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Node types the index cares about. Container types may carry arbitrarily
// nested children (lists inside list items, headings, and so on); anything
// unrecognised is treated as an opaque container.
const (
	TypeRoot      = "root"
	TypeList      = "list"
	TypeListItem  = "listitem"
	TypeHeading   = "heading"
	TypeParagraph = "paragraph"
	TypeText      = "text"
)

// Node is one node of a document tree.
//
// Key is the identifier assigned by the editing surface. It is the most
// specific handle on a node but is not guaranteed stable across edits:
// the editor may re-key a node while it still represents the same logical
// content.
type Node struct {
	Type     string  `json:"type"`
	Key      string  `json:"key,omitempty"`
	Checked  *bool   `json:"checked,omitempty"`
	Text     string  `json:"text,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// Decode parses the JSON encoding of a document tree. Unknown fields are
// ignored so newer editor versions can add attributes without breaking
// older readers.
func Decode(data []byte) (*Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("document: empty content")
	}
	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("document: decode: %w", err)
	}
	if root.Type == "" {
		return nil, fmt.Errorf("document: root node has no type")
	}
	return &root, nil
}

// Encode serializes a document tree back to its stored JSON form.
func Encode(root *Node) ([]byte, error) {
	data, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("document: encode: %w", err)
	}
	return data, nil
}

// Walk visits every node reachable from n exactly once in document order
// (pre-order, depth-first). If visit returns false the walk stops early.
// Nil nodes in child slices are skipped rather than treated as errors.
func Walk(n *Node, visit func(*Node) bool) bool {
	if n == nil {
		return true
	}
	if !visit(n) {
		return false
	}
	for _, c := range n.Children {
		if !Walk(c, visit) {
			return false
		}
	}
	return true
}

// IsChecklist reports whether n is a checklist item: a list item carrying
// a checked flag. List items without the flag are plain bullets.
func (n *Node) IsChecklist() bool {
	return n != nil && n.Type == TypeListItem && n.Checked != nil
}

// TextContent concatenates every text leaf under n in document order.
func (n *Node) TextContent() string {
	var b strings.Builder
	Walk(n, func(c *Node) bool {
		if c.Type == TypeText {
			b.WriteString(c.Text)
		}
		return true
	})
	return b.String()
}
