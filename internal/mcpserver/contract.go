package mcpserver

// TaskModelContract describes the task index's identity model for LLM
// consumers, so they understand why task IDs are stable while the
// underlying documents churn.
const TaskModelContract = `# Tiwaz Task Model

Tiwaz maintains a derived index of checklist items found in the vault's
documents. Tools operate on **tasks**, not on document nodes directly.

## Identity

Every task has a synthetic, stable ` + "`id`" + ` assigned when the checklist item
is first observed. The id never changes while the task exists, even when the
editor rewrites the underlying document. Re-finding the node uses a locator
with three fallbacks, in order:

1. ` + "`primary_key`" + ` — the editor-assigned node key (authoritative, but the
   editor may reassign it);
2. ` + "`content_hash`" + ` — SHA-256 of the item's text (survives re-keying,
   breaks on text edits);
3. ` + "`ordinal`" + ` — the item's position among all checklist items in the
   document (survives both, shifts when items are inserted/removed above).

If none resolve, the task is gone: it is dropped from the index, and a
recreated item with the same text later receives a **new** id.

## Rules

1. Toggle tasks with ` + "`toggle_task`" + ` only. Do not edit the ` + "`checked`" + `
   field through document updates unless you intend a full re-index diff.
2. Duplicate-text items resolve to the first in document order. Prefer
   distinct task text when generating checklists.
3. ` + "`reorder_tasks`" + ` assigns priorities by position; unmentioned tasks keep
   their relative order after the reordered set.
4. Timestamps are RFC 3339. ` + "`completed_at`" + ` is set when a task is checked
   and cleared when it is unchecked.

## Document format

Notes are JSON document trees. A checklist item is a ` + "`listitem`" + ` node
carrying a boolean ` + "`checked`" + ` field; its text is the concatenation of the
` + "`text`" + ` leaves below it. Example:

` + "```" + `json
{
  "type": "root",
  "children": [
    {"type": "list", "children": [
      {"type": "listitem", "key": "n1", "checked": false, "children": [
        {"type": "text", "text": "Buy milk"}
      ]}
    ]}
  ]
}
` + "```" + `
`
