package tasks

import "github.com/halvard/tiwaz/internal/document"

// Tree builders shared by the extractor, locator, and store tests.

func doc(children ...*document.Node) *document.Node {
	return &document.Node{Type: document.TypeRoot, Children: children}
}

func list(children ...*document.Node) *document.Node {
	return &document.Node{Type: document.TypeList, Children: children}
}

func item(key, text string, checked bool) *document.Node {
	return &document.Node{
		Type:    document.TypeListItem,
		Key:     key,
		Checked: &checked,
		Children: []*document.Node{
			{Type: document.TypeText, Text: text},
		},
	}
}

func para(text string) *document.Node {
	return &document.Node{
		Type: document.TypeParagraph,
		Children: []*document.Node{
			{Type: document.TypeText, Text: text},
		},
	}
}
