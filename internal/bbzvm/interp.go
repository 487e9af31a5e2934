package bbzvm

import (
	"encoding/binary"

	"github.com/ulrichdah/BittyBuzz/internal/bbzheap"
	"github.com/ulrichdah/BittyBuzz/internal/bbztype"
)

// SetBytecode installs the fetcher and image size and moves the Machine
// from NoCode to Ready (spec.md §3's "Loading bytecode" sets state to
// Ready before the loader runs). Callers typically follow this with
// LoadStrings/RunPrelude (loader.go).
func (m *Machine) SetBytecode(fetch FetchFunc, size uint16) {
	m.fetch = fetch
	m.bcodeSize = size
	m.pc = 0
	m.state = Ready
	m.errKind = ErrNone
}

// fetchByte and fetchImmediate read from the installed FetchFunc; both
// wrap any fetch failure as ErrPC, since the only way a fetch can fail at
// a VM-controlled offset is the image running out before the operand
// does.
func (m *Machine) fetchByte(offset uint16) (byte, error) {
	b, err := m.fetch(offset, 1)
	if err != nil || len(b) != 1 {
		return 0, &Error{Kind: ErrPC, PC: offset}
	}
	return b[0], nil
}

func (m *Machine) fetchImmediate(offset uint16) (uint32, error) {
	b, err := m.fetch(offset, 4)
	if err != nil || len(b) != 4 {
		return 0, &Error{Kind: ErrPC, PC: offset}
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Step decodes and dispatches exactly one instruction at pc, first
// running the collector (spec.md §4.4); if fewer than gcRootCount stack
// slots are free for the GC roots, Step raises ErrStack instead of
// skipping the collection. Any decode or opcode-specific fault rewinds pc to the
// faulting instruction's address and transitions to StateError
// (spec.md §7); Done and StateError are both sticky and Step is then a
// no-op.
func (m *Machine) Step() State {
	if m.state != Ready {
		return m.state
	}

	if err := m.gc(); err != nil {
		m.fail(m.pc, err)
		return m.state
	}

	start := m.pc
	if start >= m.bcodeSize {
		m.fail(start, &Error{Kind: ErrPC, PC: start})
		return m.state
	}

	opByte, err := m.fetchByte(start)
	if err != nil {
		m.fail(start, err)
		return m.state
	}
	op := Opcode(opByte)
	if !op.Valid() {
		m.fail(start, &Error{Kind: ErrInstr, PC: start})
		return m.state
	}

	var imm uint32
	next := start + 1
	if op.HasImmediate() {
		imm, err = m.fetchImmediate(next)
		if err != nil {
			m.fail(start, err)
			return m.state
		}
		next += 4
	}

	m.pc = next
	if err := m.dispatch(op, imm); err != nil {
		m.fail(start, err)
		return m.state
	}
	return m.state
}

// fail transitions into StateError, pinning pc to where the fault
// originated rather than wherever dispatch had already advanced it to.
func (m *Machine) fail(at uint16, err error) {
	m.pc = at
	kind := ErrInstr
	if e, ok := err.(*Error); ok {
		kind = e.Kind
	}
	m.setError(kind)
}

// Execute repeats Step until the Machine leaves Ready.
func (m *Machine) Execute() State {
	for m.state == Ready {
		m.Step()
	}
	return m.state
}

// dispatch executes op with decoded immediate imm (zero if op carries
// none). DONE does not advance pc past itself, so that the instruction
// remains the one re-decoded (and re-reported as Done) if Step is called
// again before external reset.
func (m *Machine) dispatch(op Opcode, imm uint32) error {
	switch op {
	case NOP:
		return nil
	case DONE:
		m.pc -= 1
		m.state = Done
		return nil
	case PUSHNIL:
		return m.PushNil()
	case DUP:
		v, err := m.Peek(0)
		if err != nil {
			return err
		}
		return m.Push(v)
	case POP:
		_, err := m.Pop()
		return err
	case RET0:
		return m.ret(false)
	case RET1:
		return m.ret(true)
	case ADD:
		return m.opAdd()
	case SUB:
		return m.opSub()
	case MUL:
		return m.opMul()
	case DIV:
		return m.opDiv()
	case MOD:
		return m.opMod()
	case POW:
		return m.opPow()
	case UNM:
		return m.opUnm()
	case AND:
		return m.opAnd()
	case OR:
		return m.opOr()
	case NOT:
		return m.opNot()
	case EQ:
		return m.opEq()
	case NEQ:
		return m.opNeq()
	case GT:
		return m.opGt()
	case GTE:
		return m.opGte()
	case LT:
		return m.opLt()
	case LTE:
		return m.opLte()
	case GLOAD:
		return m.opGload()
	case GSTORE:
		return m.opGstore()
	case PUSHT:
		return m.opPusht()
	case TPUT:
		return m.opTPut()
	case TGET:
		return m.opTGet()
	case CALLC:
		return m.call(false)
	case CALLS:
		return m.call(true)
	case PUSHF:
		return m.opPushf(uint16(imm))
	case PUSHI:
		return m.pushInt(int16(uint16(imm)))
	case PUSHS:
		return m.opPushs(uint16(imm))
	case PUSHCN:
		return m.opPushcn(uint16(imm))
	case PUSHCC:
		return m.opPushcc(uint16(imm))
	case PUSHL:
		return m.opPushl(uint16(imm))
	case LLOAD:
		return m.opLload(uint16(imm))
	case LSTORE:
		return m.opLstore(uint16(imm))
	case JUMP:
		return m.opJump(uint16(imm))
	case JUMPZ:
		return m.opJumpZ(uint16(imm))
	case JUMPNZ:
		return m.opJumpNZ(uint16(imm))
	default:
		return &Error{Kind: ErrInstr, PC: m.pc}
	}
}

// opGload implements GLOAD: str -> val, pushing nil if the key is absent
// from the global symbols table.
func (m *Machine) opGload() error {
	keyIdx, err := m.Pop()
	if err != nil {
		return err
	}
	v, found := m.Heap.GetTable(m.gsyms, keyIdx)
	if !found {
		return m.PushNil()
	}
	return m.Push(v)
}

// opGstore implements GSTORE: val str -> , storing val under the popped
// key string in the global symbols table.
func (m *Machine) opGstore() error {
	keyIdx, err := m.Pop()
	if err != nil {
		return err
	}
	valIdx, err := m.Pop()
	if err != nil {
		return err
	}
	return m.wrapAlloc(m.Heap.SetTable(m.gsyms, keyIdx, valIdx))
}

// opPusht implements PUSHT: push a fresh empty table.
func (m *Machine) opPusht() error {
	t, err := m.Heap.NewTable()
	if err != nil {
		return m.wrapAlloc(err)
	}
	return m.Push(t)
}

// opPushf implements PUSHF: push a half-float whose 16-bit payload is the
// immediate's low bits. The value is never decoded or arithmetically
// combined (spec.md §1) -- only carried and compared by raw bits.
func (m *Machine) opPushf(bits uint16) error {
	idx, err := m.Heap.AllocObj(bbztype.Float)
	if err != nil {
		return m.wrapAlloc(err)
	}
	m.Heap.Obj(idx).Float = bbztype.FloatBits(bits)
	return m.Push(idx)
}

// opPushs implements PUSHS: push an interned string id.
func (m *Machine) opPushs(id uint16) error {
	idx, err := m.Heap.AllocObj(bbztype.String)
	if err != nil {
		return m.wrapAlloc(err)
	}
	m.Heap.Obj(idx).StrID = id
	return m.Push(idx)
}

// opPushcn implements PUSHCN: push a native closure referencing
// function-list index id, with no captured activation record.
func (m *Machine) opPushcn(id uint16) error {
	idx, err := m.Heap.AllocObj(bbztype.Closure)
	if err != nil {
		return m.wrapAlloc(err)
	}
	c := m.Heap.Obj(idx)
	c.Ref = bbztype.ClosureRef{Native: true, Addr: id}
	c.ActRec = bbztype.NoActRec
	return m.Push(idx)
}

// opPushcc implements PUSHCC: push a scripted closure at bytecode
// address addr, with no captured activation record (it uses the VM
// default when called).
func (m *Machine) opPushcc(addr uint16) error {
	idx, err := m.Heap.AllocObj(bbztype.Closure)
	if err != nil {
		return m.wrapAlloc(err)
	}
	c := m.Heap.Obj(idx)
	c.Ref = bbztype.ClosureRef{Native: false, Addr: addr}
	c.ActRec = bbztype.NoActRec
	return m.Push(idx)
}

// opPushl implements PUSHL: push a scripted closure at bytecode address
// addr, capturing the current local-symbol array by clone -- the
// lambda-capture form, backed by bbzheap.ArrayClone (aka lambda_alloc in
// spec.md §4.2).
func (m *Machine) opPushl(addr uint16) error {
	captured, err := m.Heap.ArrayClone(m.lsyms)
	if err != nil {
		return m.wrapAlloc(err)
	}
	idx, err := m.Heap.AllocObj(bbztype.Closure)
	if err != nil {
		return m.wrapAlloc(err)
	}
	c := m.Heap.Obj(idx)
	c.Ref = bbztype.ClosureRef{Native: false, Addr: addr}
	c.ActRec = captured
	return m.Push(idx)
}

// opLload implements LLOAD: push the local symbol at index i.
func (m *Machine) opLload(i uint16) error {
	v, err := m.Heap.ArrayGet(m.lsyms, int(i))
	if err == bbzheap.ErrOutOfMemory {
		return m.wrapAlloc(err)
	}
	if err != nil {
		return &Error{Kind: ErrType, PC: m.pc, Cause: err}
	}
	return m.Push(v)
}

// opLstore implements LSTORE: pop a value and store it at local index i,
// growing the local-symbol array with nils if i is past its current
// size (bbzheap.ArraySet's documented behavior).
func (m *Machine) opLstore(i uint16) error {
	v, err := m.Pop()
	if err != nil {
		return err
	}
	if err := m.Heap.ArraySet(m.lsyms, int(i), v); err == bbzheap.ErrOutOfMemory {
		return m.wrapAlloc(err)
	} else if err != nil {
		return &Error{Kind: ErrType, PC: m.pc, Cause: err}
	}
	return nil
}
