// Package bbzvm implements the BittyBuzz interpreter: the operand stack
// and calling convention, the fetch/decode/dispatch loop, the
// native-function registry, and bytecode loading. It drives
// internal/bbzheap as its object store and GC.
package bbzvm

import (
	"github.com/ulrichdah/BittyBuzz/internal/bbzheap"
)

// State is the interpreter's run state.
type State uint8

const (
	// NoCode is the state before any bytecode has been set.
	NoCode State = iota
	// Ready means the interpreter will execute the next instruction on
	// the next Step.
	Ready
	// Done is sticky until externally reset; it means the program hit a
	// DONE instruction.
	Done
	// StateError is sticky until externally reset; it means a step
	// faulted. See Machine.ErrorKind for the reason.
	StateError
)

func (s State) String() string {
	switch s {
	case NoCode:
		return "nocode"
	case Ready:
		return "ready"
	case Done:
		return "done"
	case StateError:
		return "error"
	default:
		return "state(?)"
	}
}

// FetchFunc is the host-provided bytecode accessor: it returns size bytes
// of the bytecode image starting at offset. Valid sizes are 1, 2 and 4.
type FetchFunc func(offset, size uint16) ([]byte, error)

// gcRootCount is the number of temporary roots the interpreter stages on
// the stack before invoking the collector (spec.md §4.1): lsyms, lsymts,
// gsyms, nil, dflt_actrec, flist.
const gcRootCount = 6

// Machine holds all interpreter-owned state: the operand stack, frame
// pointers, program counter, bytecode accessor, run state/error, and the
// VM-wide singletons (nil, default activation record, global symbols,
// local-symbol-array stack, function registry). It is passed by pointer
// everywhere -- multiple independent Machines in one process are always
// possible, unlike the C core's single process-wide pointer (spec.md §5).
type Machine struct {
	Heap *bbzheap.Heap

	stack []uint16
	sp    int // index of the top element, or -1 if empty
	bp    int // index of the current frame's saved block-pointer cell

	pc        uint16
	fetch     FetchFunc
	bcodeSize uint16

	state    State
	errKind  ErrorKind
	errPC    uint16
	notifier ErrorNotifier

	robot uint16

	nilIdx     uint16
	dfltActRec uint16
	gsyms      uint16
	lsymts     uint16 // dynamic array of local-symbol arrays (the call stack of frames)
	lsyms      uint16 // current local-symbol array == lsymts[last]
	flist      uint16 // dynamic array of Userdata-wrapped native function ids

	natives []NativeFunc // host callbacks, indexed in parallel with flist's elements

	swarmHook SwarmHook // optional hook for the out-of-scope swarm subsystem; see internal/bbzswarm
}

// SwarmHook is invoked by RET0/RET1 when the local-symbol array being
// popped was flagged swarm (CALLS). It is the seam spec.md §9's "pop
// swarm stack" placeholder hooks into; BittyBuzz's own swarm subsystem
// is out of scope, so the default is a no-op.
type SwarmHook func(m *Machine, lsyms uint16)

// SetSwarmHook installs (or clears, with nil) the swarm-return hook.
func (m *Machine) SetSwarmHook(h SwarmHook) { m.swarmHook = h }

func (m *Machine) swarmOnReturn(lsyms uint16) {
	if m.swarmHook != nil {
		m.swarmHook(m, lsyms)
	}
}

// NativeFunc is a host callback registered via RegisterNative and invoked
// by CALLC when the called closure is native. It receives the Machine so
// it can read its arguments out of the current local-symbol array and
// push a return value, exactly as a scripted closure's RET1 would.
type NativeFunc func(m *Machine) error

// New builds a Machine with the given stack capacity backed by heap h.
// It does not allocate the VM singletons yet; call Construct for that.
func New(h *bbzheap.Heap, stackCapacity int) *Machine {
	return &Machine{
		Heap:  h,
		stack: make([]uint16, stackCapacity),
		sp:    -1,
		bp:    -1,
		state: NoCode,
	}
}

// StackCapacity returns the operand stack's fixed capacity.
func (m *Machine) StackCapacity() int { return len(m.stack) }

// StackSize returns the number of elements currently on the operand
// stack.
func (m *Machine) StackSize() int { return m.sp + 1 }

// State returns the interpreter's current run state.
func (m *Machine) State() State { return m.state }

// ErrorKind returns the reason the interpreter entered StateError; it is
// ErrNone otherwise.
func (m *Machine) ErrorKind() ErrorKind { return m.errKind }

// PC returns the program counter: the address of the next instruction to
// decode, or, while in StateError or stuck on DONE, the address of the
// instruction that produced that state.
func (m *Machine) PC() uint16 { return m.pc }

// SetErrorNotifier installs (or clears, with nil) the callback invoked
// once per transition into StateError.
func (m *Machine) SetErrorNotifier(fn ErrorNotifier) { m.notifier = fn }

// Robot returns the robot id passed to Construct.
func (m *Machine) Robot() uint16 { return m.robot }

// Construct (re)initializes the Machine: clears the heap, allocates the
// nil singleton, the default activation record, the local-symbol-array
// stack, the function registry, and the global symbols table, and resets
// the operand stack and PC. Mirrors bbzvm_construct in the original C
// core.
func (m *Machine) Construct(robot uint16) error {
	m.Heap.Clear()
	m.fetch = nil
	m.bcodeSize = 0
	m.pc = 0
	m.state = NoCode
	m.errKind = ErrNone
	m.notifier = nil
	m.robot = robot
	m.natives = nil

	m.nilIdx = m.Heap.InitSingletons()

	dflt, err := m.Heap.NewArray()
	if err != nil {
		return m.wrapAlloc(err)
	}
	if err := m.Heap.ArrayPush(dflt, m.nilIdx); err != nil {
		return m.wrapAlloc(err)
	}
	m.dfltActRec = dflt

	lsymts, err := m.Heap.NewArray()
	if err != nil {
		return m.wrapAlloc(err)
	}
	m.lsymts = lsymts

	flist, err := m.Heap.NewArray()
	if err != nil {
		return m.wrapAlloc(err)
	}
	m.flist = flist

	gsyms, err := m.Heap.NewTable()
	if err != nil {
		return m.wrapAlloc(err)
	}
	m.gsyms = gsyms

	m.sp = -1
	m.bp = -1
	m.lsyms = m.dfltActRec

	return nil
}

// Destruct clears the heap; there are no finalizers to run.
func (m *Machine) Destruct() {
	m.Heap.Clear()
}

// setError transitions the Machine into StateError, records kind and the
// faulting pc, and invokes the notifier exactly once.
func (m *Machine) setError(kind ErrorKind) {
	m.state = StateError
	m.errKind = kind
	m.errPC = m.pc
	if m.notifier != nil {
		m.notifier(kind)
	}
}

// ResetError clears StateError back to Ready, leaving pc where the
// fault left it; the host may then advance pc itself before resuming,
// per spec.md §7's recovery contract.
func (m *Machine) ResetError() {
	if m.state == StateError {
		m.state = Ready
		m.errKind = ErrNone
	}
}

// Push pushes heap index v onto the operand stack. It fails with
// ErrStack on overflow.
func (m *Machine) Push(v uint16) error {
	if m.sp+1 >= len(m.stack) {
		return &Error{Kind: ErrStack, PC: m.pc}
	}
	m.sp++
	m.stack[m.sp] = v
	return nil
}

// PushNil pushes the nil singleton.
func (m *Machine) PushNil() error { return m.Push(m.nilIdx) }

// Pop pops and returns the top of the operand stack. It fails with
// ErrStack on underflow.
func (m *Machine) Pop() (uint16, error) {
	if m.sp < 0 {
		return 0, &Error{Kind: ErrStack, PC: m.pc}
	}
	v := m.stack[m.sp]
	m.sp--
	return v, nil
}

// Peek returns the heap index depth elements below the top (0 is the
// top itself) without popping.
func (m *Machine) Peek(depth int) (uint16, error) {
	i := m.sp - depth
	if i < 0 {
		return 0, &Error{Kind: ErrStack, PC: m.pc}
	}
	return m.stack[i], nil
}

// NilIndex returns the nil singleton's heap index.
func (m *Machine) NilIndex() uint16 { return m.nilIdx }

// GlobalSymbols returns the heap index of the global symbols table.
func (m *Machine) GlobalSymbols() uint16 { return m.gsyms }

// CurrentLocals returns the heap index of the current call's
// local-symbol array.
func (m *Machine) CurrentLocals() uint16 { return m.lsyms }

// wrapAlloc turns a bare heap-allocation failure (always
// bbzheap.ErrOutOfMemory in practice -- the heap's only fallible
// operations are capacity-bound) into an *Error tagged ErrOutOfMemory, so
// it carries a recognizable Kind through Step's fail path instead of
// defaulting to ErrInstr there. err already wrapped as an *Error (e.g. a
// Type error from an index check) passes through unchanged.
func (m *Machine) wrapAlloc(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*Error); ok {
		return err
	}
	return &Error{Kind: ErrOutOfMemory, PC: m.pc, Cause: err}
}

// gc stages the six permanent roots on the operand stack, runs the
// collector, and pops them back off. It fails with ErrStack when fewer
// than gcRootCount free slots remain, per spec.md §4.1 -- following
// original_source/bbzvm.c's bbzvm_gc, which surfaces this as an outright
// error rather than silently skipping collection (see SPEC_FULL.md §5.1).
func (m *Machine) gc() error {
	if len(m.stack)-m.StackSize() < gcRootCount {
		return &Error{Kind: ErrStack, PC: m.pc}
	}
	roots := [gcRootCount]uint16{m.lsyms, m.lsymts, m.gsyms, m.nilIdx, m.dfltActRec, m.flist}
	for _, r := range roots {
		_ = m.Push(r)
	}
	m.Heap.GC(m.stack[:m.sp+1])
	for range roots {
		_, _ = m.Pop()
	}
	return nil
}
