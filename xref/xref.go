// Package xref resolves the cross-reference data of a file: classic tables,
// cross-reference streams, incremental-update chains, and a scan-based
// reconstruction fallback for files whose tables are missing or broken.
package xref

import (
	"sort"

	"github.com/scribd/keynote/object"
)

// LocationKind says where an object's bytes live.
type LocationKind int

const (
	// InFile locates an object at a byte offset in the file body.
	InFile LocationKind = iota
	// InStream locates an object inside a compressed object stream.
	InStream
)

// Location is one cross-reference entry.
type Location struct {
	Kind      LocationKind
	Offset    int64 // InFile: byte offset of the object header
	Gen       int   // InFile: generation number
	Container int   // InStream: object number of the holding object stream
	Index     int   // InStream: position within the holding stream
}

// Table maps object numbers to locations. Incremental updates are applied
// newest-first, so the first definition seen for a number wins; later
// (older) sections cannot override it. Free entries block older definitions
// the same way.
type Table struct {
	entries map[int]Location
	free    map[int]bool
	Trailer *object.Dict
	maxNum  int
}

func NewTable() *Table {
	return &Table{entries: make(map[int]Location), free: make(map[int]bool)}
}

func (t *Table) Get(num int) (Location, bool) {
	loc, ok := t.entries[num]
	return loc, ok
}

// SetIfAbsent records a location for num unless a newer section already
// defined or freed it. It reports whether the entry was stored.
func (t *Table) SetIfAbsent(num int, loc Location) bool {
	if t.free[num] {
		return false
	}
	if _, ok := t.entries[num]; ok {
		return false
	}
	t.entries[num] = loc
	if num > t.maxNum {
		t.maxNum = num
	}
	return true
}

// Set records a location unconditionally.
func (t *Table) Set(num int, loc Location) {
	delete(t.free, num)
	t.entries[num] = loc
	if num > t.maxNum {
		t.maxNum = num
	}
}

// MarkFreeIfAbsent records num as free unless a newer section already
// defined it.
func (t *Table) MarkFreeIfAbsent(num int) {
	if _, ok := t.entries[num]; ok {
		return
	}
	t.free[num] = true
}

// Delete removes num from the table entirely.
func (t *Table) Delete(num int) {
	delete(t.entries, num)
	delete(t.free, num)
}

func (t *Table) Len() int { return len(t.entries) }

// MaxNum returns the highest object number the table has seen.
func (t *Table) MaxNum() int { return t.maxNum }

// Nums returns the defined object numbers in ascending order.
func (t *Table) Nums() []int {
	out := make([]int, 0, len(t.entries))
	for n := range t.entries {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
