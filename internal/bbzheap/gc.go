package bbzheap

import "github.com/ulrichdah/BittyBuzz/internal/bbztype"

// GC runs one stop-the-world mark-and-sweep cycle. roots lists every heap
// index the caller considers a GC root for this cycle -- the interpreter
// is responsible for staging its six permanent roots (current
// local-symbol array, local-symbol-array stack, global symbols, nil
// singleton, default activation record, function list) onto the operand
// stack before calling GC, per spec.md §4.1's root-staging protocol; GC
// itself only needs the resulting index list.
func (h *Heap) GC(roots []uint16) {
	for i := range h.slots {
		h.slots[i].Marked = false
	}
	for _, r := range roots {
		h.mark(r)
	}
	h.sweep()
}

func (h *Heap) mark(i uint16) {
	if int(i) >= len(h.slots) || !h.slots[i].Valid || h.slots[i].Marked {
		return
	}
	h.slots[i].Marked = true
	obj := h.slots[i].Obj
	switch obj.Tag {
	case bbztype.Table:
		h.markSegmentChain(obj.TableHead)
	case bbztype.Closure:
		if obj.ActRec != bbztype.NoActRec {
			h.mark(obj.ActRec)
		}
	}
}

func (h *Heap) markSegmentChain(head uint16) {
	cur := head
	for cur != NoSegment && h.IsValidSegment(cur) {
		seg := h.Segment(cur)
		seg.Marked = true
		for _, c := range seg.Cells {
			if c.Valid {
				h.mark(c.Key)
				h.mark(c.Value)
			}
		}
		if !seg.HasNext {
			break
		}
		cur = seg.Next
	}
}

// sweep frees every object slot that is Valid but unmarked (except the
// nil singleton, which is never freed) and every segment that is Valid
// but wasn't reached by markSegmentChain from any live table. Freeing
// unreachable segments unconditionally, rather than only once they've
// gone fully empty, is what keeps invariant 3 (no table cell references a
// freed slot) from breaking: a segment unreachable from any root can only
// hold cells whose key/value slots are themselves about to be freed here,
// so leaving it allocated would dangle.
func (h *Heap) sweep() {
	for i := range h.slots {
		if h.slots[i].Valid && !h.slots[i].Marked && uint16(i) != h.nilIdx {
			h.slots[i] = Slot{}
		}
	}
	for i := range h.segments {
		seg := &h.segments[i]
		if !seg.Valid {
			continue
		}
		if seg.Marked {
			seg.Marked = false
			continue
		}
		h.segments[i] = Segment{}
	}
}
