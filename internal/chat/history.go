package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ContextField names an entry field that can be stripped from the
// rendered prompt context to save tokens.
type ContextField string

const (
	FieldSQL  ContextField = "sql"
	FieldData ContextField = "data"
)

// Formatter renders entries into a prompt context block. A History
// without a custom formatter uses the default "role|author: message"
// layout.
type Formatter func(entries []*MessageEntry, exclude []ContextField) string

// History is the append-only, insertion-ordered message store of one
// session. Insertion order is the ordering key; timestamps on entries
// are for display only.
type History struct {
	entries   []*MessageEntry
	byID      map[int]*MessageEntry
	formatter Formatter
}

func NewHistory() *History {
	return &History{byID: make(map[int]*MessageEntry)}
}

// SetFormatter installs a custom context renderer.
func (h *History) SetFormatter(f Formatter) { h.formatter = f }

func (h *History) Append(e *MessageEntry) {
	h.entries = append(h.entries, e)
	h.byID[e.ID] = e
}

func (h *History) Len() int { return len(h.entries) }

// LastN returns the n most recently appended entries, oldest first.
func (h *History) LastN(n int) []*MessageEntry {
	if n <= 0 {
		return nil
	}
	if n > len(h.entries) {
		n = len(h.entries)
	}
	out := make([]*MessageEntry, n)
	copy(out, h.entries[len(h.entries)-n:])
	return out
}

// All returns up to limit entries in append order; limit <= 0 means all.
func (h *History) All(limit int) []*MessageEntry {
	if limit <= 0 || limit > len(h.entries) {
		limit = len(h.entries)
	}
	out := make([]*MessageEntry, limit)
	copy(out, h.entries[len(h.entries)-limit:])
	return out
}

// GetByID returns the entry with the given id, or nil.
func (h *History) GetByID(id int) *MessageEntry {
	return h.byID[id]
}

// Clear empties the store. Resetting the id counter is the owning
// session's job.
func (h *History) Clear() {
	h.entries = nil
	h.byID = make(map[int]*MessageEntry)
}

// Stringify renders entries into one text block for LLM context, one
// message per line, with excluded fields stripped. The output is meant
// to be readable by a human scanning logs, nothing more.
func (h *History) Stringify(entries []*MessageEntry, exclude ...ContextField) string {
	if h.formatter != nil {
		return h.formatter(entries, exclude)
	}
	skip := make(map[ContextField]bool, len(exclude))
	for _, f := range exclude {
		skip[f] = true
	}

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s|%s: %s\n", strings.ToLower(e.UserType), e.UserName, e.Message)
		if e.SQL != "" && !skip[FieldSQL] {
			fmt.Fprintf(&b, "  sql: %s\n", e.SQL)
		}
		if e.SQLResult != nil && !skip[FieldData] {
			data, err := json.Marshal(e.SQLResult)
			if err == nil {
				fmt.Fprintf(&b, "  data (%d rows): %s\n", e.SQLRowCount, data)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
