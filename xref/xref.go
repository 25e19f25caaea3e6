// Package xref locates indirect objects: it reads classic cross-reference
// tables and cross-reference streams, follows /Prev chains across
// incremental updates, and falls back to a full-file scan when the
// reference data is missing or lies.
package xref

import (
	"sort"

	"pdflib/objects"
)

type EntryKind int

const (
	// EntryFree marks a deleted or never-used object number.
	EntryFree EntryKind = iota
	// EntryOffset points at an uncompressed object in the file.
	EntryOffset
	// EntryInStream points into an object stream.
	EntryInStream
)

// Entry locates one object. Offset and Gen are meaningful for EntryOffset;
// StreamNum and StreamIdx for EntryInStream (whose generation is always 0).
type Entry struct {
	Kind      EntryKind
	Offset    int64
	Gen       int
	StreamNum uint32
	StreamIdx int
}

// Table is the merged cross-reference data of a document. Sections are
// merged newest-first, and the first section to define an object number
// wins, so an incremental update shadows every older definition including
// deletions.
type Table struct {
	entries map[uint32]Entry
	trailer *objects.Dict
}

func NewTable() *Table {
	return &Table{entries: make(map[uint32]Entry), trailer: objects.NewDict()}
}

func (t *Table) Lookup(num uint32) (Entry, bool) {
	e, ok := t.entries[num]
	return e, ok
}

func (t *Table) Len() int { return len(t.entries) }

// Objects returns every known object number in ascending order.
func (t *Table) Objects() []uint32 {
	out := make([]uint32, 0, len(t.entries))
	for n := range t.entries {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *Table) Trailer() *objects.Dict { return t.trailer }

// add records an entry unless a newer section already defined the number.
func (t *Table) add(num uint32, e Entry) {
	if _, exists := t.entries[num]; !exists {
		t.entries[num] = e
	}
}

// set overrides unconditionally. The repair scanner uses it because there
// the last definition in file order is resolved separately.
func (t *Table) set(num uint32, e Entry) {
	t.entries[num] = e
}

// mergeTrailer folds keys from an older trailer in. Keys already present
// come from a newer section and keep their value.
func (t *Table) mergeTrailer(d *objects.Dict) {
	if d == nil {
		return
	}
	for _, k := range d.Keys() {
		if _, exists := t.trailer.Get(k); !exists {
			v, _ := d.Get(k)
			t.trailer.Set(k, v)
		}
	}
}
