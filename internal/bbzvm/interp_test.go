package bbzvm

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ulrichdah/BittyBuzz/internal/bbzheap"
	"github.com/ulrichdah/BittyBuzz/internal/bbztype"
)

// asm is a tiny in-test bytecode assembler: it emits op bytes and
// immediates little-endian, the layout interp.go's decoder expects.
type asm struct{ buf []byte }

func (a *asm) op(o Opcode) *asm {
	a.buf = append(a.buf, byte(o))
	return a
}

func (a *asm) imm(o Opcode, v uint32) *asm {
	a.buf = append(a.buf, byte(o))
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	a.buf = append(a.buf, b[:]...)
	return a
}

func (a *asm) fetch() FetchFunc {
	buf := a.buf
	return func(offset, size uint16) ([]byte, error) {
		end := int(offset) + int(size)
		if end > len(buf) {
			return nil, bbzheap.ErrOutOfMemory
		}
		return buf[offset:end], nil
	}
}

func newBareMachine(t *testing.T) *Machine {
	t.Helper()
	h := bbzheap.New(512)
	m := New(h, 64)
	require.NoError(t, m.Construct(0))
	return m
}

func TestArithmeticEndToEndScenario(t *testing.T) {
	a := &asm{}
	lhs, rhs := int16(-21244), int16(8384)
	a.imm(PUSHI, uint32(uint16(lhs)))
	a.imm(PUSHI, uint32(uint16(rhs)))
	a.op(ADD)
	a.op(DONE)

	m := newBareMachine(t)
	m.SetBytecode(a.fetch(), uint16(len(a.buf)))

	require.Equal(t, Ready, m.Step())
	require.Equal(t, Ready, m.Step())
	require.Equal(t, Ready, m.Step())
	require.Equal(t, Done, m.Step())

	v, err := m.Peek(0)
	require.NoError(t, err)
	require.Equal(t, int16(-12860), m.Heap.Obj(v).Int)
}

func TestJumpZeroNilOperandJumps(t *testing.T) {
	a := &asm{}
	a.op(PUSHNIL)
	a.imm(JUMPZ, 10)
	a.op(DONE)

	m := newBareMachine(t)
	m.SetBytecode(a.fetch(), uint16(len(a.buf)))
	require.Equal(t, Ready, m.Step()) // PUSHNIL
	require.Equal(t, Ready, m.Step()) // JUMPZ
	require.Equal(t, uint16(10), m.pc)
}

func TestJumpZeroNonzeroIntFallsThrough(t *testing.T) {
	a := &asm{}
	minusOne := int16(-1)
	a.imm(PUSHI, uint32(uint16(minusOne)))
	a.imm(JUMPZ, 99)
	a.op(DONE)

	m := newBareMachine(t)
	m.SetBytecode(a.fetch(), uint16(len(a.buf)))
	sizeBefore := m.StackSize()
	require.Equal(t, Ready, m.Step()) // PUSHI
	require.Equal(t, sizeBefore+1, m.StackSize())
	require.Equal(t, Ready, m.Step()) // JUMPZ falls through
	require.Equal(t, sizeBefore, m.StackSize())
	require.NotEqual(t, uint16(99), m.pc)
}

func TestJumpNotZeroNilFallsThrough(t *testing.T) {
	a := &asm{}
	a.op(PUSHNIL)
	a.imm(JUMPNZ, 99)
	a.op(DONE)

	m := newBareMachine(t)
	m.SetBytecode(a.fetch(), uint16(len(a.buf)))
	sizeBefore := m.StackSize()
	require.Equal(t, Ready, m.Step()) // PUSHNIL
	require.Equal(t, Ready, m.Step()) // JUMPNZ falls through
	require.Equal(t, sizeBefore, m.StackSize())
	require.NotEqual(t, uint16(99), m.pc)
}

func TestPushIntThenPopLeavesStackSizeUnchanged(t *testing.T) {
	a := &asm{}
	a.imm(PUSHI, 7)
	a.op(POP)
	a.op(DONE)

	m := newBareMachine(t)
	m.SetBytecode(a.fetch(), uint16(len(a.buf)))
	before := m.StackSize()
	require.Equal(t, Ready, m.Step())
	require.Equal(t, Ready, m.Step())
	require.Equal(t, before, m.StackSize())
}

func TestDupPopLeavesTopUnchanged(t *testing.T) {
	a := &asm{}
	a.imm(PUSHI, 7)
	a.op(DUP)
	a.op(POP)
	a.op(DONE)

	m := newBareMachine(t)
	m.SetBytecode(a.fetch(), uint16(len(a.buf)))
	require.Equal(t, Ready, m.Step()) // PUSHI
	top, err := m.Peek(0)
	require.NoError(t, err)
	require.Equal(t, Ready, m.Step()) // DUP
	require.Equal(t, Ready, m.Step()) // POP
	after, err := m.Peek(0)
	require.NoError(t, err)
	require.Equal(t, top, after)
}

func TestTableRoundTrip(t *testing.T) {
	a := &asm{}
	a.op(PUSHT)
	a.op(DUP) // TPUT consumes t k v, so keep a copy of the table for TGET
	a.imm(PUSHI, 1)
	a.imm(PUSHI, 42)
	a.op(TPUT)
	a.imm(PUSHI, 1)
	a.op(TGET)
	a.op(DONE)

	m := newBareMachine(t)
	m.SetBytecode(a.fetch(), uint16(len(a.buf)))
	for i := 0; i < 7; i++ {
		require.Equal(t, Ready, m.Step())
	}
	v, err := m.Peek(0)
	require.NoError(t, err)
	require.Equal(t, int16(42), m.Heap.Obj(v).Int)
}

func TestGlobalStoreLoadRoundTrip(t *testing.T) {
	a := &asm{}
	a.imm(PUSHI, 99)
	a.imm(PUSHS, 0)
	a.op(GSTORE)
	a.imm(PUSHS, 0)
	a.op(GLOAD)
	a.op(DONE)

	m := newBareMachine(t)
	m.SetBytecode(a.fetch(), uint16(len(a.buf)))
	for i := 0; i < 5; i++ {
		require.Equal(t, Ready, m.Step())
	}
	v, err := m.Peek(0)
	require.NoError(t, err)
	require.Equal(t, int16(99), m.Heap.Obj(v).Int)
}

// TestFillStackToCapacityThenPushRaisesStack exercises spec.md §8's
// "filling the stack to STACK_CAP then attempting any push raises Stack"
// boundary. Because Step runs the collector's six-root staging check
// before dispatch (spec.md §4.1), a shallow stack hits ErrStack from the
// margin check slightly before an actual operand-stack overflow would --
// both paths produce the same observable error kind.
func TestFillStackToCapacityThenPushRaisesStack(t *testing.T) {
	h := bbzheap.New(512)
	m := New(h, 8)
	require.NoError(t, m.Construct(0))

	a := &asm{}
	for i := 0; i < 8; i++ {
		a.imm(PUSHI, 1)
	}
	m.SetBytecode(a.fetch(), uint16(len(a.buf)))

	var state State
	for i := 0; i < 8; i++ {
		state = m.Step()
		if state != Ready {
			break
		}
	}
	require.Equal(t, StateError, state)
	require.Equal(t, ErrStack, m.ErrorKind())
}

func TestUnknownOpcodeIsInstrError(t *testing.T) {
	m := newBareMachine(t)
	fetch := func(offset, size uint16) ([]byte, error) {
		if size == 1 {
			return []byte{0xFE}, nil
		}
		return nil, bbzheap.ErrOutOfMemory
	}
	m.SetBytecode(fetch, 1)
	require.Equal(t, StateError, m.Step())
	require.Equal(t, ErrInstr, m.ErrorKind())
	require.Equal(t, uint16(0), m.PC())
}

func TestJumpPastBytecodeRaisesPCAtNextDecode(t *testing.T) {
	a := &asm{}
	a.imm(JUMP, 9999)
	a.op(DONE)

	m := newBareMachine(t)
	m.SetBytecode(a.fetch(), uint16(len(a.buf)))
	require.Equal(t, Ready, m.Step())
	require.Equal(t, StateError, m.Step())
	require.Equal(t, ErrPC, m.ErrorKind())
}

// TestHeapExhaustionMidInstructionIsOutOfMemory drives allocation failure
// through Step/dispatch rather than calling the heap directly, so it
// exercises the same wrapping path a host actually observes: pushInt's
// AllocInt failing inside dispatch must surface as ErrOutOfMemory, not
// the ErrInstr that fail's default would otherwise report for any bare,
// unwrapped error.
func TestHeapExhaustionMidInstructionIsOutOfMemory(t *testing.T) {
	h := bbzheap.New(8) // Construct's singletons use 7 units, leaving one
	m := New(h, 64)
	require.NoError(t, m.Construct(0))

	a := &asm{}
	a.imm(PUSHI, 1) // consumes the heap's one remaining unit
	a.imm(PUSHI, 2) // has none left
	a.op(DONE)
	m.SetBytecode(a.fetch(), uint16(len(a.buf)))

	require.Equal(t, Ready, m.Step()) // first PUSHI still fits
	require.Equal(t, StateError, m.Step())
	require.Equal(t, ErrOutOfMemory, m.ErrorKind())
}

func TestArithmeticTypeErrorOnFloatOperand(t *testing.T) {
	m := newBareMachine(t)
	idx, err := m.Heap.AllocObj(bbztype.Float)
	require.NoError(t, err)
	require.NoError(t, m.Push(idx))
	require.NoError(t, m.pushInt(1))

	a := &asm{}
	a.op(ADD)
	a.op(DONE)
	m.SetBytecode(a.fetch(), uint16(len(a.buf)))
	sizeBefore := m.StackSize()
	require.Equal(t, StateError, m.Step())
	require.Equal(t, ErrType, m.ErrorKind())
	require.Equal(t, sizeBefore-2, m.StackSize(), "both operands are popped before the type check fails, per spec.md §8's 'Type error without mutating operands beyond the pop'")
}
