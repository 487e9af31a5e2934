// Package bittybuzz implements the BittyBuzz VM core: a stack-based
// bytecode interpreter over a dynamically-typed object model backed by a
// fixed-capacity heap with a mark-and-sweep garbage collector. It is the
// host-facing entry point; internal/bbzvm, internal/bbzheap and
// internal/bbztype hold the implementation.
package bittybuzz

import (
	"fmt"

	"github.com/ulrichdah/BittyBuzz/internal/bbzheap"
	"github.com/ulrichdah/BittyBuzz/internal/bbzswarm"
	"github.com/ulrichdah/BittyBuzz/internal/bbztype"
	"github.com/ulrichdah/BittyBuzz/internal/bbzvm"
)

// VM is a single BittyBuzz virtual machine instance: its own heap, stack,
// globals, string table and function registry. Multiple VMs may coexist
// in one process (spec.md §5 explicitly rejects a process-wide singleton
// as a portability decision specific to the original C core).
type VM struct {
	machine *bbzvm.Machine
	cfg     *VMConfig
	queue   bbzswarm.QueueAppender
}

// NewVM allocates (but does not Construct) a VM using cfg, or the package
// defaults if cfg is nil. The swarm-return path (RET0/RET1 on a
// CALLS-flagged frame) is wired to bbzswarm.NoAppender until
// SetMessageQueue installs a real one, so a host that never touches
// swarm calls gets well-defined, inert behavior rather than a nil check
// scattered through the interpreter.
func NewVM(cfg *VMConfig) *VM {
	if cfg == nil {
		cfg = NewVMConfig()
	}
	heap := bbzheap.New(cfg.heapCapacity)
	v := &VM{
		machine: bbzvm.New(heap, cfg.stackCapacity),
		cfg:     cfg,
		queue:   bbzswarm.NoAppender{},
	}
	v.machine.SetSwarmHook(v.onSwarmReturn)
	return v
}

// Construct (re)initializes the VM for robot id robot: clears the heap,
// allocates the VM singletons, and resets the operand stack and PC.
func (v *VM) Construct(robot uint16) error {
	return v.machine.Construct(robot)
}

// Destruct clears the heap. There is nothing else to release.
func (v *VM) Destruct() {
	v.machine.Destruct()
}

// SetBytecode installs fetch as the bytecode accessor for a size-byte
// image and runs the full load sequence: interning the string table and
// executing the prelude up to its first NOP (spec.md §4.6).
func (v *VM) SetBytecode(fetch FetchFunc, size uint16) error {
	return v.machine.Load(fetch, size)
}

// Step decodes and dispatches exactly one instruction.
func (v *VM) Step() State { return v.machine.Step() }

// Execute repeats Step until the VM leaves Ready.
func (v *VM) Execute() State { return v.machine.Execute() }

// State returns the VM's current run state.
func (v *VM) State() State { return v.machine.State() }

// ErrorKind returns the reason the VM entered the Error state, or
// ErrNone if it did not.
func (v *VM) ErrorKind() ErrorKind { return v.machine.ErrorKind() }

// PC returns the program counter.
func (v *VM) PC() uint16 { return v.machine.PC() }

// ResetError clears the Error state back to Ready so the host can decide
// how to resume, per spec.md §7's recovery contract.
func (v *VM) ResetError() { v.machine.ResetError() }

// SetErrorNotifier installs (or clears, with nil) the callback invoked
// once each time the VM transitions into the Error state.
func (v *VM) SetErrorNotifier(fn ErrorNotifier) { v.machine.SetErrorNotifier(fn) }

// PushInt pushes a fresh Int value.
func (v *VM) PushInt(n int16) error {
	idx, err := v.machine.Heap.AllocInt(n)
	if err != nil {
		return &Error{Kind: ErrOutOfMemory, PC: v.machine.PC(), Cause: err}
	}
	return v.machine.Push(idx)
}

// PushNil pushes the nil singleton.
func (v *VM) PushNil() error { return v.machine.PushNil() }

// PopInt pops the top of the operand stack, requiring it to be an Int.
func (v *VM) PopInt() (int16, error) {
	idx, err := v.machine.Pop()
	if err != nil {
		return 0, err
	}
	obj := *v.machine.Heap.Obj(idx)
	if obj.Tag != bbztype.Int {
		return 0, fmt.Errorf("bittybuzz: top of stack is %s, not int", obj.Tag)
	}
	return obj.Int, nil
}

// RegisterFunction registers a host callback in the native-function
// registry, returning its stable id (also installed as the closure for
// global string id id, per spec.md §4.5). eq is used to detect a
// function already registered under a prior call -- the registry has no
// notion of Go function identity beyond what the caller supplies.
func (v *VM) RegisterFunction(fn NativeFunc, eq func(a, b NativeFunc) bool) (uint16, error) {
	return v.machine.RegisterNative(fn, eq)
}

// CallFunction drives the interpreter until the scripted or native
// global named by string id name returns, having first arranged argc
// arguments already pushed on the operand stack (spec.md §6's
// function_call entry point).
func (v *VM) CallFunction(name uint16, argc int) error {
	return v.machine.CallByName(name, argc)
}

// SwarmHook is invoked by RET0/RET1 when the returning call's
// local-symbol array was flagged swarm (CALLS); lsyms is its heap index,
// still valid for the duration of the call. Installing one with
// SetSwarmHook replaces the default bbzswarm.QueueAppender wiring
// entirely; most hosts want SetMessageQueue instead.
type SwarmHook func(v *VM, lsyms uint16)

// SetSwarmHook installs (or clears, with nil) a raw swarm-return hook,
// overriding the default QueueAppender-backed one NewVM installs.
func (v *VM) SetSwarmHook(h SwarmHook) {
	if h == nil {
		v.machine.SetSwarmHook(nil)
		return
	}
	v.machine.SetSwarmHook(func(_ *bbzvm.Machine, lsyms uint16) {
		h(v, lsyms)
	})
}

// SetMessageQueue installs q as the destination for swarm-call
// completions; nil restores the inert bbzswarm.NoAppender default. This
// is the ordinary way to observe swarm calls -- see SwarmHook for the
// lower-level escape hatch.
func (v *VM) SetMessageQueue(q bbzswarm.QueueAppender) {
	if q == nil {
		q = bbzswarm.NoAppender{}
	}
	v.queue = q
}

// onSwarmReturn adapts a raw swarm-return callback into a
// bbzswarm.Message -- the completed call's local-symbol array, self slot
// included, copied out as the message payload -- and hands it to the
// installed queue appender.
func (v *VM) onSwarmReturn(m *bbzvm.Machine, lsyms uint16) {
	size := m.Heap.ArraySize(lsyms)
	payload := make([]bbztype.Object, 0, size)
	for i := 0; i < size; i++ {
		idx, err := m.Heap.ArrayGet(lsyms, i)
		if err != nil {
			continue
		}
		payload = append(payload, *m.Heap.Obj(idx))
	}
	v.queue.Append(bbzswarm.Message{Recipient: m.Robot(), Payload: payload})
}
