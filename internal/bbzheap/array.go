package bbzheap

import (
	"fmt"

	"github.com/ulrichdah/BittyBuzz/internal/bbztype"
)

// ErrArrayIndex is returned by Get/Set/Pop/Last operations given an
// out-of-range index (or, for Pop/Last, an empty array).
var ErrArrayIndex = fmt.Errorf("bbzheap: array index out of range")

// ArraySize returns a dynamic array's length: table.go's SizeTable is
// exactly this, since the invariant "keys are contiguous 0..n-1" makes
// cell count equal to max key + 1.
func (h *Heap) ArraySize(t uint16) int { return h.SizeTable(t) }

// ArrayIsEmpty reports whether the array backing table t has zero
// elements.
func (h *Heap) ArrayIsEmpty(t uint16) bool { return h.ArraySize(t) == 0 }

// ArrayGet returns the heap index stored at array index i, or
// ErrArrayIndex if i is out of range.
func (h *Heap) ArrayGet(t uint16, i int) (uint16, error) {
	if i < 0 || i >= h.ArraySize(t) {
		return 0, ErrArrayIndex
	}
	keyIdx, err := h.AllocInt(int16(i))
	if err != nil {
		return 0, err
	}
	v, found := h.GetTable(t, keyIdx)
	if !found {
		return 0, ErrArrayIndex
	}
	return v, nil
}

// ArraySet stores valIdx at array index i. If i >= size, the array is
// extended with nils up to and including i -- this is the mechanism
// LSTORE uses to grow the local-symbol array on first write to a new
// slot (spec.md §4.2).
func (h *Heap) ArraySet(t uint16, i int, valIdx uint16) error {
	if i < 0 {
		return ErrArrayIndex
	}
	size := h.ArraySize(t)
	for n := size; n < i; n++ {
		if err := h.arrayAppend(t, n, h.NilIndex()); err != nil {
			return err
		}
	}
	if i >= size {
		return h.arrayAppend(t, i, valIdx)
	}
	keyIdx, err := h.AllocInt(int16(i))
	if err != nil {
		return err
	}
	return h.SetTable(t, keyIdx, valIdx)
}

func (h *Heap) arrayAppend(t uint16, i int, valIdx uint16) error {
	keyIdx, err := h.AllocInt(int16(i))
	if err != nil {
		return err
	}
	return h.SetTable(t, keyIdx, valIdx)
}

// ArrayPush appends valIdx at index size(t).
func (h *Heap) ArrayPush(t uint16, valIdx uint16) error {
	return h.arrayAppend(t, h.ArraySize(t), valIdx)
}

// ArrayPop removes the element at index size(t)-1. It is an error to pop
// an empty array.
func (h *Heap) ArrayPop(t uint16) error {
	size := h.ArraySize(t)
	if size == 0 {
		return ErrArrayIndex
	}
	keyIdx, err := h.AllocInt(int16(size - 1))
	if err != nil {
		return err
	}
	h.DeleteTable(t, keyIdx)
	return nil
}

// ArrayLast returns the heap index of the last element, or ErrArrayIndex
// if the array is empty.
func (h *Heap) ArrayLast(t uint16) (uint16, error) {
	size := h.ArraySize(t)
	if size == 0 {
		return 0, ErrArrayIndex
	}
	return h.ArrayGet(t, size-1)
}

// ArrayClone allocates a new table and array object holding a shallow
// copy of every element of t, in order, preserving the swarm flag. It is
// used both for the activation-record snapshot every call takes and for
// PUSHL's closure capture.
func (h *Heap) ArrayClone(t uint16) (uint16, error) {
	newT, err := h.NewTable()
	if err != nil {
		return 0, err
	}
	h.Obj(newT).TableIsArray = true
	h.Obj(newT).TableIsSwarm = h.Obj(t).TableIsSwarm

	size := h.ArraySize(t)
	for i := 0; i < size; i++ {
		v, err := h.ArrayGet(t, i)
		if err != nil {
			return 0, err
		}
		if err := h.arrayAppend(newT, i, v); err != nil {
			return 0, err
		}
	}
	return newT, nil
}

// LambdaAlloc clones t for closure capture: identical to ArrayClone,
// named after the array operation lambda_alloc. The interpreter's PUSHL
// calls ArrayClone directly.
func (h *Heap) LambdaAlloc(t uint16) (uint16, error) { return h.ArrayClone(t) }

// MarkSwarm sets the swarm flag on the table backing array t.
func (h *Heap) MarkSwarm(t uint16) { h.Obj(t).TableIsSwarm = true }

// IsSwarm reports the swarm flag on the table backing array t.
func (h *Heap) IsSwarm(t uint16) bool { return h.Obj(t).TableIsSwarm }

// ArrayFind scans array t for the first element e for which
// cmp(e) == 0, returning its index and true, or (0, false) if none
// matches. cmp lets callers search by arbitrary criteria without the
// heap package knowing what the elements mean.
func (h *Heap) ArrayFind(t uint16, cmp func(elemIdx uint16) bool) (int, bool) {
	size := h.ArraySize(t)
	for i := 0; i < size; i++ {
		v, err := h.ArrayGet(t, i)
		if err != nil {
			continue
		}
		if cmp(v) {
			return i, true
		}
	}
	return 0, false
}

// NewArray allocates a fresh, empty dynamic array and returns its table
// index.
func (h *Heap) NewArray() (uint16, error) {
	t, err := h.NewTable()
	if err != nil {
		return 0, err
	}
	h.Obj(t).TableIsArray = true
	return t, nil
}

// NewTable allocates a fresh, empty (plain) table and returns its index.
// PUSHT and every other table constructor in the package go through this
// so TableHead always starts at the NoSegment sentinel rather than the
// zero value, which would alias a real segment index.
func (h *Heap) NewTable() (uint16, error) {
	t, err := h.AllocObj(bbztype.Table)
	if err != nil {
		return 0, err
	}
	h.Obj(t).TableHead = NoSegment
	return t, nil
}
