// Package store implements the per-instance handle table that owns every
// value referenced across the guest/host boundary. Descriptors are
// allocated from a counter that only increases; a freed descriptor is
// never handed out again, so a stale handle can only miss, never alias.
package store

import (
	"github.com/tachibana-shin/rakuyomi-sub000/internal/html"
)

// Descriptor is an opaque non-negative handle into a Store. Negative
// values are reserved as error sentinels and are never valid descriptors.
type Descriptor = int32

type slot struct {
	value   Value
	encoded bool
}

// Store is the descriptor table. It is confined to the goroutine
// executing guest code, like the request table it sits next to.
type Store struct {
	slots map[Descriptor]*slot
	next  Descriptor
}

// New returns an empty store.
func New() *Store {
	return &Store{slots: make(map[Descriptor]*slot)}
}

// Store allocates a new descriptor for v.
func (s *Store) Store(v Value) Descriptor {
	d := s.next
	s.next++
	s.slots[d] = &slot{value: v}
	return d
}

// StoreAt overwrites the value behind d, reparenting the descriptor onto
// v. Fluent guest call chains reuse one descriptor per chain instead of
// leaking one per step. When the previous value held the last reference
// to a DOM document of a different tree, that reference is released.
// Unknown descriptors are populated rather than rejected.
func (s *Store) StoreAt(d Descriptor, v Value) {
	if sl, ok := s.slots[d]; ok {
		releaseIfReplacedDoc(sl.value, v)
		sl.value = v
		sl.encoded = false
		return
	}
	s.slots[d] = &slot{value: v}
	if d >= s.next {
		s.next = d + 1
	}
}

// Get returns the value behind d.
func (s *Store) Get(d Descriptor) (Value, bool) {
	sl, ok := s.slots[d]
	if !ok {
		return Value{}, false
	}
	return sl.value, true
}

// Take removes and returns the value behind d. The descriptor is dead
// afterwards; the counter never goes back.
func (s *Store) Take(d Descriptor) (Value, bool) {
	sl, ok := s.slots[d]
	if !ok {
		return Value{}, false
	}
	delete(s.slots, d)
	if sl.value.Kind == KindElement && sl.value.Element != nil {
		sl.value.Element.Document().Release()
	}
	return sl.value, true
}

// MarkEncoded flags d so buffer materialization uses the structured
// binary encoding instead of raw text bytes.
func (s *Store) MarkEncoded(d Descriptor) {
	if sl, ok := s.slots[d]; ok {
		sl.encoded = true
	}
}

// IsEncoded reports the materialization flag for d.
func (s *Store) IsEncoded(d Descriptor) bool {
	sl, ok := s.slots[d]
	return ok && sl.encoded
}

// Len returns the number of live descriptors.
func (s *Store) Len() int { return len(s.slots) }

// Clear drops every live descriptor, releasing DOM references. The
// counter keeps its position so descriptors still never repeat.
func (s *Store) Clear() {
	for d, sl := range s.slots {
		if sl.value.Kind == KindElement && sl.value.Element != nil {
			sl.value.Element.Document().Release()
		}
		delete(s.slots, d)
	}
}

// releaseIfReplacedDoc drops the old element's document reference when a
// reparent moves the descriptor onto a different value. Reparenting onto
// an element of the same document keeps the single reference the
// descriptor already holds.
func releaseIfReplacedDoc(old, new Value) {
	if old.Kind != KindElement || old.Element == nil {
		return
	}
	if new.Kind == KindElement && new.Element != nil && sameDoc(old.Element, new.Element) {
		return
	}
	old.Element.Document().Release()
}

func sameDoc(a, b *html.Element) bool {
	return a.Document() == b.Document()
}
