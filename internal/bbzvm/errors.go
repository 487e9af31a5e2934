package bbzvm

import "fmt"

// ErrorKind discriminates the ways a VM's step can fail, mirroring the
// original C core's bbzvm_error enum. It is the value handed to an
// ErrorNotifier.
type ErrorKind uint8

const (
	// ErrNone means no error: the VM is not in the Error state.
	ErrNone ErrorKind = iota
	// ErrInstr means the decoder fetched an opcode byte it doesn't
	// recognize.
	ErrInstr
	// ErrPC means the program counter left the bytecode image's range,
	// either directly or via a JUMP/JUMPZ/JUMPNZ/CALL target.
	ErrPC
	// ErrFlist means a native closure's Ref pointed outside the
	// native-function registry.
	ErrFlist
	// ErrType means an opcode was handed an operand of the wrong tag.
	ErrType
	// ErrOutOfMemory means the heap's allocator had no room for a slot
	// or segment.
	ErrOutOfMemory
	// ErrStack means a stack underflow, overflow, or a failure to stage
	// the GC's temporary roots (insufficient free stack margin).
	ErrStack
	// ErrRet means RET0/RET1 found the current call frame malformed.
	ErrRet
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNone:
		return "none"
	case ErrInstr:
		return "instr"
	case ErrPC:
		return "pc"
	case ErrFlist:
		return "flist"
	case ErrType:
		return "type"
	case ErrOutOfMemory:
		return "out-of-memory"
	case ErrStack:
		return "stack"
	case ErrRet:
		return "ret"
	default:
		return fmt.Sprintf("errorkind(%d)", uint8(k))
	}
}

// Error is the VM's runtime error value: a Kind plus the bytecode address
// that was executing when the fault occurred (pc is rewound there before
// the transition, per spec.md §7) and, where applicable, the underlying
// cause (e.g. bbzheap.ErrOutOfMemory).
type Error struct {
	Kind  ErrorKind
	PC    uint16
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("bittybuzz: %s at pc=%d: %v", e.Kind, e.PC, e.Cause)
	}
	return fmt.Sprintf("bittybuzz: %s at pc=%d", e.Kind, e.PC)
}

func (e *Error) Unwrap() error { return e.Cause }

// ErrorNotifier is invoked exactly once, synchronously, each time a VM
// transitions into the Error state.
type ErrorNotifier func(kind ErrorKind)
