// Package bbzheap implements the fixed-capacity heap backing every
// BittyBuzz value: a forward-growing region of tagged object slots and a
// backward-growing region of table segments, collected by a
// mark-and-sweep garbage collector (gc.go).
package bbzheap

import (
	"fmt"

	"github.com/ulrichdah/BittyBuzz/internal/bbztype"
)

// CellsPerSegment is the number of key/value cells in a single table
// segment, matching the C core's typical four-pair segment.
const CellsPerSegment = 4

// Cell is one key/value pair inside a table segment.
type Cell struct {
	Valid bool
	Key   uint16
	Value uint16
}

// Segment is a fixed-capacity bucket of table cells linked into a
// singly-linked chain per table. Segments are allocated from the high end
// of the heap, object slots from the low end; Next holds the sentinel
// NoSegment when there is no next segment.
type Segment struct {
	Valid   bool
	Marked  bool // set during mark, cleared by sweep on each surviving segment
	Cells   [CellsPerSegment]Cell
	Next    uint16 // NoSegment if this is the chain's last link
	HasNext bool
}

// NoSegment is the sentinel "no next segment" / "no head segment" index.
const NoSegment = 0xFFFF

// Slot is one object-region entry: a tagged value plus the GC's Marked
// bit. Valid tracks whether the slot is currently allocated.
type Slot struct {
	Valid  bool
	Marked bool
	Obj    bbztype.Object
}

// Heap is a contiguous, fixed-size region of Slots (growing from index 0
// upward) and Segments (growing from the last index downward), meeting
// in the middle. Allocation fails, rather than growing the region, when
// the two frontiers would cross -- the heap is statically sized per
// spec.md's Non-goals.
//
// Go has no single byte array that can hold both a []Slot and a []Segment
// in-place the way the C core's single `uint8_t heap[]` does, so the two
// regions are backed by separate slices, each sized to the full capacity;
// what the C core enforces by pointer arithmetic on one buffer, Capacity
// and the two frontiers enforce here: allocation fails once
// objFrontier+segFrontier would exceed Capacity, exactly mirroring
// "the forward and backward frontiers would cross".
type Heap struct {
	capacity int
	slots    []Slot
	segments []Segment

	objFrontier int // one past the highest-ever-used slot index
	segFrontier int // count of segments ever used, from the high end inward

	nilIdx uint16 // the nil singleton's slot, stable for the VM's lifetime
}

// ErrOutOfMemory is returned by Alloc* when the object and segment
// regions have no room left, surfacing as bbzvm's OutOfMemory error kind.
var ErrOutOfMemory = fmt.Errorf("bbzheap: out of memory")

// New builds a Heap with the given total capacity, shared between the
// object-slot region and the table-segment region.
func New(capacity int) *Heap {
	return &Heap{
		capacity: capacity,
		slots:    make([]Slot, capacity),
		segments: make([]Segment, capacity),
	}
}

// Capacity returns the heap's total slot/segment budget.
func (h *Heap) Capacity() int { return h.capacity }

// Clear resets the heap to empty, as on Construct or Destruct. It does
// not run finalizers -- BittyBuzz objects never have any.
func (h *Heap) Clear() {
	for i := range h.slots {
		h.slots[i] = Slot{}
	}
	for i := range h.segments {
		h.segments[i] = Segment{}
	}
	h.objFrontier = 0
	h.segFrontier = 0
}

// Obj returns a pointer to the object payload at slot i. Callers must
// only pass indices known to be Valid (stack entries, table cell values,
// activation-record entries, or a closure's ActRec); see the package-level
// invariant in spec.md §3.
func (h *Heap) Obj(i uint16) *bbztype.Object {
	return &h.slots[i].Obj
}

// IsValid reports whether slot i is currently allocated.
func (h *Heap) IsValid(i uint16) bool {
	return int(i) < len(h.slots) && h.slots[i].Valid
}

// AllocObj allocates a new object slot tagged t and returns its index.
// It first scans for a free slot below the current frontier (reusing
// space freed by a prior sweep) and only advances the frontier -- failing
// if doing so would cross into the segment region -- when none is free.
func (h *Heap) AllocObj(t bbztype.Tag) (uint16, error) {
	for i := 0; i < h.objFrontier; i++ {
		if !h.slots[i].Valid {
			h.slots[i] = Slot{Valid: true, Obj: bbztype.Object{Tag: t}}
			return uint16(i), nil
		}
	}
	if h.objFrontier+h.segFrontier >= h.capacity {
		return 0, ErrOutOfMemory
	}
	i := h.objFrontier
	h.objFrontier++
	h.slots[i] = Slot{Valid: true, Obj: bbztype.Object{Tag: t}}
	return uint16(i), nil
}

// FreeObj marks slot i free. Called only by the sweep phase.
func (h *Heap) FreeObj(i uint16) {
	h.slots[i] = Slot{}
}

// segIndex converts a "distance from the high end" count into a real
// slice index, since segments grow downward from len(h.segments)-1.
func (h *Heap) segIndex(fromEnd int) int {
	return len(h.segments) - 1 - fromEnd
}

// AllocSegment allocates a new table segment and returns its heap-wide
// segment index (a slice index into the same numbering space table heads
// and Segment.Next use). Scans for a free segment before advancing the
// high-end frontier, symmetric with AllocObj.
func (h *Heap) AllocSegment() (uint16, error) {
	for d := 0; d < h.segFrontier; d++ {
		idx := h.segIndex(d)
		if !h.segments[idx].Valid {
			h.segments[idx] = Segment{Valid: true, Next: NoSegment}
			return uint16(idx), nil
		}
	}
	if h.objFrontier+h.segFrontier >= h.capacity {
		return 0, ErrOutOfMemory
	}
	idx := h.segIndex(h.segFrontier)
	h.segFrontier++
	h.segments[idx] = Segment{Valid: true, Next: NoSegment}
	return uint16(idx), nil
}

// FreeSegment marks segment i free. Called only by the sweep phase.
func (h *Heap) FreeSegment(i uint16) {
	h.segments[i] = Segment{}
}

// Segment returns a pointer to segment i's record.
func (h *Heap) Segment(i uint16) *Segment {
	return &h.segments[i]
}

// IsValidSegment reports whether segment i is currently allocated.
func (h *Heap) IsValidSegment(i uint16) bool {
	return int(i) < len(h.segments) && h.segments[i].Valid
}

// InitSingletons allocates the nil singleton slot and returns its index.
// Called once by the VM's Construct; the nil singleton is never freed
// (NilIndex is always skipped by the sweep -- see gc.go).
func (h *Heap) InitSingletons() uint16 {
	i, err := h.AllocObj(bbztype.Nil)
	if err != nil {
		// The heap is freshly cleared; a single-slot allocation cannot
		// fail unless the configured capacity is zero, which is a
		// construction-time configuration error, not a runtime one.
		panic("bbzheap: heap has no room for the nil singleton")
	}
	h.nilIdx = i
	return i
}

// NilIndex returns the nil singleton's stable slot index.
func (h *Heap) NilIndex() uint16 { return h.nilIdx }

// AllocInt allocates a fresh Int slot holding v. Table and array
// operations key on heap objects rather than raw integers (spec.md §3:
// "every heap index stored ... in a table cell ... refers to a slot"),
// so indexing by an int literal still costs one allocation per call --
// exactly as in the original C core, which allocates a fresh BBZTYPE_INT
// object for every array index it touches.
func (h *Heap) AllocInt(v int16) (uint16, error) {
	i, err := h.AllocObj(bbztype.Int)
	if err != nil {
		return 0, err
	}
	h.Obj(i).Int = v
	return i, nil
}
