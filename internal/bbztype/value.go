// Package bbztype defines the tagged value model shared by the heap,
// tables and the interpreter: the Tag discriminant, the fixed-size Object
// record that every heap slot holds, and the cross-type ordering (Cmp) the
// comparison opcodes and table key lookups rely on.
package bbztype

import "fmt"

// Tag discriminates the payload carried by an Object. A heap slot keeps
// it next to its Valid and Marked flags, which are separate fields (see
// bbzheap.Slot).
type Tag uint8

const (
	Nil Tag = iota
	Int
	Float
	String
	Table
	Closure
	Userdata
	NativeClosure
)

// String returns the opcode-table name of the tag, used in error messages.
func (t Tag) String() string {
	switch t {
	case Nil:
		return "nil"
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	case Table:
		return "table"
	case Closure:
		return "closure"
	case Userdata:
		return "userdata"
	case NativeClosure:
		return "nativeclosure"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// FloatBits is an opaque 16-bit half-precision payload. BittyBuzz never
// decodes it: the codec is a host-I/O collaborator out of the VM's scope,
// so arithmetic opcodes reject Float operands outright and the only
// operations available here are identity and raw-bit ordering, which is
// all table/array keying and the comparison opcodes need.
type FloatBits uint16

// Equal reports whether two float payloads carry the same bit pattern.
func (f FloatBits) Equal(g FloatBits) bool { return f == g }

// Cmp orders float payloads by raw bit pattern. This is not IEEE-754
// numeric order (that would require the half-precision decode this VM
// deliberately does not implement); it is merely a total order stable
// enough for table keys and the EQ/NEQ/GT/... opcodes, which never operate
// on two floats arithmetically.
func (f FloatBits) Cmp(g FloatBits) int {
	switch {
	case f < g:
		return -1
	case f > g:
		return 1
	default:
		return 0
	}
}

// ClosureRef identifies the code a closure points to: either a bytecode
// address (scripted closure) or an index into the native-function
// registry (native closure), distinguished by Native.
type ClosureRef struct {
	Addr   uint16
	Native bool
}

// NoActRec marks a Closure's ActRec field as "use the VM's default
// activation record" (spec sentinel 0xFF, widened to fit a heap index).
const NoActRec = 0xFFFF

// Object is the fixed-size tagged-union record every heap slot stores.
// Exactly one of the fields below is meaningful, selected by Tag; the
// struct is kept small and flat so the allocator can treat every slot
// identically regardless of payload.
type Object struct {
	Tag Tag

	// Int holds the payload for Tag == Int: a signed 16-bit integer.
	Int int16

	// Float holds the payload for Tag == Float.
	Float FloatBits

	// StrID holds the interned string id for Tag == String.
	StrID uint16

	// TableHead holds the index of the first table segment for
	// Tag == Table.
	TableHead uint16
	// TableIsArray flags that the table backs a dynamic array (contiguous
	// 0..n-1 keys). Storing nil into such a table keeps nil as an element
	// instead of deleting the key (see bbzheap.SetTable).
	TableIsArray bool
	// TableIsSwarm flags a local-symbol array as participating in swarm
	// semantics; see bbzswarm.
	TableIsSwarm bool

	// Ref holds the closure's code reference for Tag == Closure.
	Ref ClosureRef
	// ActRec holds the heap index of the captured activation record for
	// Tag == Closure, or NoActRec for "use the VM default".
	ActRec uint16

	// Userdata holds an opaque host value for Tag == Userdata, used
	// internally to wrap native function pointers in the registry.
	Userdata any
}

// IsNumeric reports whether o carries Int or Float.
func (o Object) IsNumeric() bool { return o.Tag == Int || o.Tag == Float }

// Truthy implements the {int,nil} truthiness coercion used by AND/OR/NOT
// and JUMPZ/JUMPNZ: nil and Int(0) are false, every other Int is true.
// Any other tag is not a valid truthiness operand; callers must check
// Tag themselves and raise a Type error.
func (o Object) Truthy() bool {
	if o.Tag == Nil {
		return false
	}
	return o.Int != 0
}

// Cmp implements the cross-type ordering used by EQ/NEQ/GT/GTE/LT/LTE and
// by table-cell key lookup. Values of different major tags order by tag
// value. Within a tag: Int compares numerically, Float by raw bit pattern
// (FloatBits.Cmp; mixed Int/Float compares by Tag, since they are
// different major types per spec), String
// by interned id, Nil always equal to Nil, and Table/Closure/Userdata by
// heap-slot identity (the caller-supplied index, since Object itself
// doesn't know its own slot).
func Cmp(a, b Object, aIdx, bIdx uint16) int {
	if a.Tag != b.Tag {
		return cmpUint8(uint8(a.Tag), uint8(b.Tag))
	}
	switch a.Tag {
	case Nil:
		return 0
	case Int:
		return cmpInt16(a.Int, b.Int)
	case Float:
		return a.Float.Cmp(b.Float)
	case String:
		return cmpUint16(a.StrID, b.StrID)
	case Table, Closure, Userdata, NativeClosure:
		return cmpUint16(aIdx, bIdx)
	default:
		return cmpUint16(aIdx, bIdx)
	}
}

func cmpInt16(a, b int16) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpUint16(a, b uint16) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpUint8(a, b uint8) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
