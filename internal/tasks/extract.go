package tasks

import (
	"github.com/halvard/tiwaz/internal/checksum"
	"github.com/halvard/tiwaz/internal/document"
)

// Item is one checklist node as observed during a single traversal of a
// document tree. It carries everything identity resolution needs: the
// editor-assigned key, the content hash, and the zero-based position of
// the node among all checklist nodes in document order.
type Item struct {
	Key     string
	Text    string
	Hash    string
	Ordinal int
	Checked bool
}

// Extract walks root once in document order and returns every checklist
// item it finds. Nodes that do not look like checklist items contribute
// nothing; malformed subtrees are skipped rather than reported.
func Extract(root *document.Node) []Item {
	var items []Item
	document.Walk(root, func(n *document.Node) bool {
		if !n.IsChecklist() {
			return true
		}
		text := n.TextContent()
		items = append(items, Item{
			Key:     n.Key,
			Text:    text,
			Hash:    checksum.SumString(text),
			Ordinal: len(items),
			Checked: *n.Checked,
		})
		return true
	})
	return items
}
