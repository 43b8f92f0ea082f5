package tracklet

import "sort"

// NoID marks a cell with no identity (dummy or deleted detection).
const NoID = -1

// IDs is a table of identities indexed by target slot.
type IDs = Table[int]

// Flags is a boolean table, typically indexed by identity.
type Flags = Table[bool]

// NewIDs returns an identity table of n slots defaulting to NoID.
func NewIDs(n int) *IDs { return NewTable(n, NoID) }

// NewFlags returns a flag table of n entities defaulting to false.
func NewFlags(n int) *Flags { return NewTable(n, false) }

// Span is the occupied extent of one identity.
type Span struct {
	Start  int // first frame holding the identity, -1 when absent
	End    int
	Frames int // number of cells holding the identity
}

// Present reports whether the identity occurs at all.
func (s Span) Present() bool { return s.Start >= 0 }

// MaxID returns the largest identity stored in tb, NoID for an empty table.
func MaxID(tb *IDs) int {
	maxID := NoID
	tb.Each(func(_, _ int, v int) {
		if v > maxID {
			maxID = v
		}
	})
	return maxID
}

// Spans returns the [start, end] extent of every identity 0..MaxID in one
// pass over the table.
func Spans(tb *IDs) []Span {
	spans := make([]Span, MaxID(tb)+1)
	for i := range spans {
		spans[i] = Span{Start: -1, End: -1}
	}
	tb.Each(func(_, t int, v int) {
		if v < 0 {
			return
		}
		s := &spans[v]
		if s.Start < 0 || t < s.Start {
			s.Start = t
		}
		if t > s.End {
			s.End = t
		}
		s.Frames++
	})
	return spans
}

// Remap applies a total old -> new identity mapping to every cell. Identities
// at or beyond len(mapping) and NoID are left untouched.
func Remap(tb *IDs, mapping []int) {
	tb.Map(func(v int) int {
		if v < 0 || v >= len(mapping) {
			return v
		}
		return mapping[v]
	})
}

// Compact renumbers the identities present in tb to the dense range 0..k-1,
// preserving their order, and returns the old -> new mapping. A second call
// on the result is a no-op.
func Compact(tb *IDs) []int {
	seen := map[int]bool{}
	tb.Each(func(_, _ int, v int) {
		if v >= 0 {
			seen[v] = true
		}
	})
	present := make([]int, 0, len(seen))
	for v := range seen {
		present = append(present, v)
	}
	sort.Ints(present)

	mapping := make([]int, MaxID(tb)+1)
	for i := range mapping {
		mapping[i] = NoID
	}
	for newID, old := range present {
		mapping[old] = newID
	}
	Remap(tb, mapping)
	return mapping
}

// SlotOf returns the slot holding identity id at frame t, or -1.
func SlotOf(tb *IDs, id, t int) int {
	for slot := 0; slot < tb.Len(); slot++ {
		if tb.Get(slot, t) == id {
			return slot
		}
	}
	return -1
}
