package bbzheap

import "github.com/ulrichdah/BittyBuzz/internal/bbztype"

// TableSet walks the segment chain anchored at head, overwriting the
// value of an existing cell whose key compares equal to k (per
// bbztype.Cmp), or placing (k, v) in the first empty cell otherwise,
// allocating a new segment at the chain's tail if every segment is full.
// When nilDeletes is set, v == nil (per valIdx's Tag) deletes the cell
// instead of storing nil, matching spec.md §4.2's "v = nil treated as
// deletion"; dynamic arrays pass false so that nil elements are stored.
func (h *Heap) TableSet(head uint16, keyIdx, valIdx uint16, nilDeletes bool) error {
	key := *h.Obj(keyIdx)

	cur := head
	var lastSeg uint16 = NoSegment
	firstEmpty := struct {
		seg uint16
		cell int
		ok  bool
	}{}

	for cur != NoSegment {
		seg := h.Segment(cur)
		for ci := range seg.Cells {
			c := &seg.Cells[ci]
			if c.Valid {
				if bbztype.Cmp(key, *h.Obj(c.Key), keyIdx, c.Key) == 0 {
					if nilDeletes && h.Obj(valIdx).Tag == bbztype.Nil {
						c.Valid = false
						return nil
					}
					c.Value = valIdx
					return nil
				}
			} else if !firstEmpty.ok {
				firstEmpty = struct {
					seg  uint16
					cell int
					ok   bool
				}{cur, ci, true}
			}
		}
		lastSeg = cur
		if !seg.HasNext {
			cur = NoSegment
		} else {
			cur = seg.Next
		}
	}

	if nilDeletes && h.Obj(valIdx).Tag == bbztype.Nil {
		// Deleting a key that was never present is a no-op.
		return nil
	}

	if firstEmpty.ok {
		seg := h.Segment(firstEmpty.seg)
		seg.Cells[firstEmpty.cell] = Cell{Valid: true, Key: keyIdx, Value: valIdx}
		return nil
	}

	newSeg, err := h.AllocSegment()
	if err != nil {
		return err
	}
	h.Segment(newSeg).Cells[0] = Cell{Valid: true, Key: keyIdx, Value: valIdx}
	if lastSeg == NoSegment {
		// The table had no segments at all; caller must have stored the
		// new head back into the table object -- see SetTable.
		return &headChangedError{newHead: newSeg}
	}
	h.Segment(lastSeg).Next = newSeg
	h.Segment(lastSeg).HasNext = true
	return nil
}

// headChangedError signals TableSet allocated the table's first segment,
// so the caller (which owns the table object's TableHead field) must
// adopt the new head. It is handled internally by SetTable/array ops and
// never escapes the package.
type headChangedError struct{ newHead uint16 }

func (e *headChangedError) Error() string { return "bbzheap: table head changed" }

// SetTable is the entry point table.set(t, k, v) uses: t is the heap
// index of a Table object. It adopts a freshly allocated head segment
// into the table object when the table was empty. Storing nil deletes the
// key in a plain table; in a dynamic array (TableIsArray) nil is stored as
// an element.
func (h *Heap) SetTable(t uint16, keyIdx, valIdx uint16) error {
	obj := h.Obj(t)
	err := h.TableSet(obj.TableHead, keyIdx, valIdx, !obj.TableIsArray)
	if hc, ok := err.(*headChangedError); ok {
		obj.TableHead = hc.newHead
		return nil
	}
	return err
}

// GetTable is table.get(t, k): it returns the heap index of k's value and
// true, or (0, false) if no cell in t's chain has a matching key.
func (h *Heap) GetTable(t uint16, keyIdx uint16) (uint16, bool) {
	key := *h.Obj(keyIdx)
	cur := h.Obj(t).TableHead
	for cur != NoSegment && h.IsValidSegment(cur) {
		seg := h.Segment(cur)
		for _, c := range seg.Cells {
			if c.Valid && bbztype.Cmp(key, *h.Obj(c.Key), keyIdx, c.Key) == 0 {
				return c.Value, true
			}
		}
		if !seg.HasNext {
			break
		}
		cur = seg.Next
	}
	return 0, false
}

// SizeTable returns the number of valid cells across t's segment chain.
func (h *Heap) SizeTable(t uint16) int {
	n := 0
	cur := h.Obj(t).TableHead
	for cur != NoSegment && h.IsValidSegment(cur) {
		seg := h.Segment(cur)
		for _, c := range seg.Cells {
			if c.Valid {
				n++
			}
		}
		if !seg.HasNext {
			break
		}
		cur = seg.Next
	}
	return n
}

// DeleteTable removes the cell keyed by keyIdx from t's chain, if present.
// It invalidates the cell but never compacts or frees segments -- that is
// the GC sweep's job once the segment becomes wholly empty and
// unreachable.
func (h *Heap) DeleteTable(t uint16, keyIdx uint16) {
	key := *h.Obj(keyIdx)
	cur := h.Obj(t).TableHead
	for cur != NoSegment && h.IsValidSegment(cur) {
		seg := h.Segment(cur)
		for ci := range seg.Cells {
			c := &seg.Cells[ci]
			if c.Valid && bbztype.Cmp(key, *h.Obj(c.Key), keyIdx, c.Key) == 0 {
				c.Valid = false
				return
			}
		}
		if !seg.HasNext {
			return
		}
		cur = seg.Next
	}
}

// ForEachTable calls fn for every valid (key, value) heap-index pair in
// t's chain. fn returning false stops the iteration early.
func (h *Heap) ForEachTable(t uint16, fn func(keyIdx, valIdx uint16) bool) {
	cur := h.Obj(t).TableHead
	for cur != NoSegment && h.IsValidSegment(cur) {
		seg := h.Segment(cur)
		for _, c := range seg.Cells {
			if c.Valid {
				if !fn(c.Key, c.Value) {
					return
				}
			}
		}
		if !seg.HasNext {
			return
		}
		cur = seg.Next
	}
}
