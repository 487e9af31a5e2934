package bbzvm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ulrichdah/BittyBuzz/internal/bbztype"
)

// A scripted closure at address 10 that does LLOAD 1, RET1 -- i.e.
// "return my first argument". Local index 0 holds the self slot every
// activation record starts with (the VM default is a one-element array
// containing nil, per spec.md §3); arguments are appended after it, so
// an unbound call's first argument lands at index 1. Bytes before
// address 10 are padding NOPs.
func echoClosureProgram() *asm {
	a := &asm{}
	for len(a.buf) < 10 {
		a.op(NOP)
	}
	a.imm(LLOAD, 1)
	a.op(RET1)
	return a
}

func TestCallScriptedClosureReturnsArgument(t *testing.T) {
	a := echoClosureProgram()
	callSite := uint16(len(a.buf))
	a.imm(PUSHCC, 10) // closure
	a.imm(PUSHI, 123) // arg 0
	a.imm(PUSHI, 1)   // argc
	a.op(CALLC)
	a.op(DONE)

	m := newBareMachine(t)
	m.SetBytecode(a.fetch(), uint16(len(a.buf)))
	m.pc = callSite

	require.Equal(t, Ready, m.Step()) // PUSHCC
	require.Equal(t, Ready, m.Step()) // PUSHI arg
	require.Equal(t, Ready, m.Step()) // PUSHI argc
	require.Equal(t, Ready, m.Step()) // CALLC
	require.Equal(t, uint16(10), m.pc)
	require.Equal(t, Ready, m.Step()) // LLOAD 1
	require.Equal(t, Ready, m.Step()) // RET1

	v, err := m.Peek(0)
	require.NoError(t, err)
	require.Equal(t, int16(123), m.Heap.Obj(v).Int)
}

func TestCallsMarksLocalsSwarm(t *testing.T) {
	a := echoClosureProgram()
	callSite := uint16(len(a.buf))
	a.imm(PUSHCC, 10)
	a.imm(PUSHI, 7)
	a.imm(PUSHI, 1)
	a.op(CALLS)
	a.op(DONE)

	m := newBareMachine(t)
	m.SetBytecode(a.fetch(), uint16(len(a.buf)))
	m.pc = callSite

	for i := 0; i < 4; i++ {
		require.Equal(t, Ready, m.Step())
	}
	require.True(t, m.Heap.IsSwarm(m.lsyms))
}

func TestRetRestoresCallerFrame(t *testing.T) {
	a := echoClosureProgram()
	callSite := uint16(len(a.buf))
	a.imm(PUSHCC, 10)
	a.imm(PUSHI, 5)
	a.imm(PUSHI, 1)
	a.op(CALLC)
	a.op(POP) // discard return value
	a.op(DONE)

	m := newBareMachine(t)
	m.SetBytecode(a.fetch(), uint16(len(a.buf)))
	m.pc = callSite
	bpBefore, lsymsBefore := m.bp, m.lsyms

	for i := 0; i < 6; i++ { // PUSHCC,PUSHI,PUSHI,CALLC,LLOAD,RET1
		require.Equal(t, Ready, m.Step())
	}
	require.Equal(t, bpBefore, m.bp)
	require.Equal(t, lsymsBefore, m.lsyms)
}

func TestTPutPlainValue(t *testing.T) {
	m := newBareMachine(t)
	tIdx, err := m.Heap.NewTable()
	require.NoError(t, err)
	kIdx, err := m.Heap.AllocInt(1)
	require.NoError(t, err)
	vIdx, err := m.Heap.AllocInt(42)
	require.NoError(t, err)

	require.NoError(t, m.Push(tIdx))
	require.NoError(t, m.Push(kIdx))
	require.NoError(t, m.Push(vIdx))
	require.NoError(t, m.opTPut())

	got, found := m.Heap.GetTable(tIdx, kIdx)
	require.True(t, found)
	require.Equal(t, vIdx, got)
}

func TestTPutClosureBindsMethodSelf(t *testing.T) {
	m := newBareMachine(t)
	tIdx, err := m.Heap.NewTable()
	require.NoError(t, err)

	closureIdx, err := m.Heap.AllocObj(bbztype.Closure)
	require.NoError(t, err)
	orig := m.Heap.Obj(closureIdx)
	orig.Ref = bbztype.ClosureRef{Native: false, Addr: 10}
	orig.ActRec = bbztype.NoActRec

	kIdx, err := m.Heap.AllocInt(1)
	require.NoError(t, err)

	require.NoError(t, m.Push(tIdx))
	require.NoError(t, m.Push(kIdx))
	require.NoError(t, m.Push(closureIdx))
	require.NoError(t, m.opTPut())

	boundIdx, found := m.Heap.GetTable(tIdx, kIdx)
	require.True(t, found)
	require.NotEqual(t, closureIdx, boundIdx, "TPUT must clone the closure, not store it as-is")

	bound := m.Heap.Obj(boundIdx)
	require.Equal(t, orig.Ref, bound.Ref)
	self, err := m.Heap.ArrayGet(bound.ActRec, 0)
	require.NoError(t, err)
	require.Equal(t, tIdx, self, "the containing table must be installed as the bound closure's self")

	// original closure on the stack (well, in the heap) is untouched.
	require.Equal(t, uint16(bbztype.NoActRec), orig.ActRec)
}

func TestTGetMissingKeyPushesNil(t *testing.T) {
	m := newBareMachine(t)
	tIdx, err := m.Heap.NewTable()
	require.NoError(t, err)
	kIdx, err := m.Heap.AllocInt(1)
	require.NoError(t, err)

	require.NoError(t, m.Push(tIdx))
	require.NoError(t, m.Push(kIdx))
	require.NoError(t, m.opTGet())

	v, err := m.Peek(0)
	require.NoError(t, err)
	require.Equal(t, m.nilIdx, v)
}

func TestFrameArgsRejectsNegativeDepth(t *testing.T) {
	m := newBareMachine(t)
	_, _, err := m.frameArgs(3)
	require.Error(t, err)
	var vmErr *Error
	require.ErrorAs(t, err, &vmErr)
	require.Equal(t, ErrStack, vmErr.Kind)
}
