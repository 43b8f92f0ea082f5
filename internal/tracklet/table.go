// Package tracklet implements the sparse trajectory table shared by every
// linking stage: a ragged (entity, frame) -> value mapping that stores only
// each entity's allocated frame range and answers a fixed default elsewhere.
package tracklet

import (
	"errors"
	"fmt"
)

// ErrInvalidRange is returned for malformed allocation ranges.
var ErrInvalidRange = errors.New("invalid tracklet range")

// Cell addresses one (entity, frame) entry.
type Cell struct {
	Target int
	Frame  int
}

// Table is an arena of per-entity dense buffers. Entity i stores values for
// frames [starts[i], starts[i]+len(vals[i])-1]; reads outside that range
// return the table default. Writes outside it reallocate the buffer.
type Table[T comparable] struct {
	def    T
	starts []int
	vals   [][]T
}

// NewTable creates a table of n empty entities.
func NewTable[T comparable](n int, def T) *Table[T] {
	return &Table[T]{
		def:    def,
		starts: make([]int, n),
		vals:   make([][]T, n),
	}
}

// Len returns the number of entities.
func (tb *Table[T]) Len() int { return len(tb.vals) }

// Default returns the value read outside allocated ranges.
func (tb *Table[T]) Default() T { return tb.def }

func (tb *Table[T]) grow(n int) {
	for len(tb.vals) < n {
		tb.starts = append(tb.starts, 0)
		tb.vals = append(tb.vals, nil)
	}
}

// Allocate reserves [start, end] for entity id, filling it with the default.
// Any previous contents of the entity are discarded.
func (tb *Table[T]) Allocate(id, start, end int) error {
	if id < 0 {
		return fmt.Errorf("entity %d: %w", id, ErrInvalidRange)
	}
	if start > end || start < 0 {
		return fmt.Errorf("entity %d range [%d, %d]: %w", id, start, end, ErrInvalidRange)
	}
	tb.grow(id + 1)
	buf := make([]T, end-start+1)
	for i := range buf {
		buf[i] = tb.def
	}
	tb.starts[id] = start
	tb.vals[id] = buf
	return nil
}

// AllocateAll allocates every entity from parallel start/end slices. Entries
// with start < 0 are left empty.
func (tb *Table[T]) AllocateAll(starts, ends []int) error {
	if len(starts) != len(ends) {
		return fmt.Errorf("%d starts, %d ends: %w", len(starts), len(ends), ErrInvalidRange)
	}
	for i := range starts {
		if starts[i] < 0 {
			tb.grow(i + 1)
			continue
		}
		if err := tb.Allocate(i, starts[i], ends[i]); err != nil {
			return err
		}
	}
	return nil
}

// Range returns the allocated frame range of entity id.
func (tb *Table[T]) Range(id int) (start, end int, ok bool) {
	if id < 0 || id >= len(tb.vals) || len(tb.vals[id]) == 0 {
		return 0, -1, false
	}
	return tb.starts[id], tb.starts[id] + len(tb.vals[id]) - 1, true
}

// Get returns the value of entity id at frame t.
func (tb *Table[T]) Get(id, t int) T {
	if id < 0 || id >= len(tb.vals) {
		return tb.def
	}
	k := t - tb.starts[id]
	if k < 0 || k >= len(tb.vals[id]) {
		return tb.def
	}
	return tb.vals[id][k]
}

// Set writes v for entity id at frame t, reallocating the entity buffer when
// t lies outside its range.
func (tb *Table[T]) Set(id, t int, v T) error {
	if id < 0 || t < 0 {
		return fmt.Errorf("entity %d frame %d: %w", id, t, ErrInvalidRange)
	}
	tb.grow(id + 1)
	buf := tb.vals[id]
	if len(buf) == 0 {
		tb.starts[id] = t
		tb.vals[id] = []T{v}
		return nil
	}
	start := tb.starts[id]
	if t < start {
		pad := start - t
		nb := make([]T, pad+len(buf))
		for i := 0; i < pad; i++ {
			nb[i] = tb.def
		}
		copy(nb[pad:], buf)
		tb.starts[id] = t
		buf = nb
		start = t
	}
	for t-start >= len(buf) {
		buf = append(buf, tb.def)
	}
	buf[t-start] = v
	tb.vals[id] = buf
	return nil
}

// SetRange writes vals for entity id starting at frame start.
func (tb *Table[T]) SetRange(id, start int, vals []T) error {
	for k, v := range vals {
		if err := tb.Set(id, start+k, v); err != nil {
			return err
		}
	}
	return nil
}

// SetFrame writes vals[k] to entity ids[k] at frame t.
func (tb *Table[T]) SetFrame(t int, ids []int, vals []T) error {
	if len(ids) != len(vals) {
		return fmt.Errorf("%d entities, %d values: %w", len(ids), len(vals), ErrInvalidRange)
	}
	for k, id := range ids {
		if err := tb.Set(id, t, vals[k]); err != nil {
			return err
		}
	}
	return nil
}

// Frame returns every entity's value at frame t.
func (tb *Table[T]) Frame(t int) []T {
	out := make([]T, len(tb.vals))
	for i := range tb.vals {
		out[i] = tb.Get(i, t)
	}
	return out
}

// Target returns a copy of entity id's values over [start, end].
func (tb *Table[T]) Target(id, start, end int) []T {
	if end < start {
		return nil
	}
	out := make([]T, end-start+1)
	for t := start; t <= end; t++ {
		out[t-start] = tb.Get(id, t)
	}
	return out
}

// Count returns the number of frames in [start, end] where entity id holds v.
func (tb *Table[T]) Count(id, start, end int, v T) int {
	n := 0
	for t := start; t <= end; t++ {
		if tb.Get(id, t) == v {
			n++
		}
	}
	return n
}

// Where returns every allocated cell holding v, ordered by entity then frame.
func (tb *Table[T]) Where(v T) []Cell {
	var cells []Cell
	for id, buf := range tb.vals {
		for k, x := range buf {
			if x == v {
				cells = append(cells, Cell{Target: id, Frame: tb.starts[id] + k})
			}
		}
	}
	return cells
}

// Replace rewrites every allocated occurrence of old to repl and returns
// the number of cells changed.
func (tb *Table[T]) Replace(old, repl T) int {
	if old == repl {
		return 0
	}
	n := 0
	for _, buf := range tb.vals {
		for k := range buf {
			if buf[k] == old {
				buf[k] = repl
				n++
			}
		}
	}
	return n
}

// Map rewrites every allocated cell through f in a single pass.
func (tb *Table[T]) Map(f func(T) T) {
	for _, buf := range tb.vals {
		for k := range buf {
			buf[k] = f(buf[k])
		}
	}
}

// Each calls fn for every allocated cell.
func (tb *Table[T]) Each(fn func(id, t int, v T)) {
	for id, buf := range tb.vals {
		for k, v := range buf {
			fn(id, tb.starts[id]+k, v)
		}
	}
}

// Clone returns a deep copy of tb.
func (tb *Table[T]) Clone() *Table[T] {
	out := &Table[T]{def: tb.def, starts: append([]int(nil), tb.starts...), vals: make([][]T, len(tb.vals))}
	for i, buf := range tb.vals {
		out.vals[i] = append([]T(nil), buf...)
	}
	return out
}
