package request

// Table is the per-instance, append-only request list. Descriptors index
// into it and stay valid for the life of the instance; destroying a
// request only marks it Closed. The table is confined to the goroutine
// executing guest code.
type Table struct {
	entries []*State
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{}
}

// Add appends a fresh Building entry and returns its index.
func (t *Table) Add() int {
	t.entries = append(t.entries, NewState())
	return len(t.entries) - 1
}

// Get returns the entry at index, or nil when the index is out of range
// or the entry is Closed.
func (t *Table) Get(idx int) *State {
	if idx < 0 || idx >= len(t.entries) {
		return nil
	}
	s := t.entries[idx]
	if s.Phase == Closed {
		return nil
	}
	return s
}

// Close marks the entry at index Closed.
func (t *Table) Close(idx int) {
	if idx < 0 || idx >= len(t.entries) {
		return
	}
	t.entries[idx].Close()
}

// Len returns the total number of entries ever created.
func (t *Table) Len() int { return len(t.entries) }
