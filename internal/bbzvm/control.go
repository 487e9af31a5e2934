package bbzvm

import "github.com/ulrichdah/BittyBuzz/internal/bbztype"

// jump sets pc unconditionally. Range validation happens lazily: the
// next decode (interp.go) checks pc against the bytecode size and raises
// ErrPC if it's out of range, per spec.md §8's "JUMP to an offset ≥
// bytecode size raises PC at the next decode".
func (m *Machine) jump(target uint16) { m.pc = target }

// opJump implements JUMP: always taken.
func (m *Machine) opJump(target uint16) error {
	m.jump(target)
	return nil
}

// opJumpZ implements JUMPZ: pops the top value; jumps if it is nil or
// Int(0), otherwise falls through. Any other tag is a Type error.
func (m *Machine) opJumpZ(target uint16) error {
	v, err := m.Pop()
	if err != nil {
		return err
	}
	obj := *m.Heap.Obj(v)
	if obj.Tag != bbztype.Nil && obj.Tag != bbztype.Int {
		return &Error{Kind: ErrType, PC: m.pc}
	}
	if !obj.Truthy() {
		m.jump(target)
	}
	return nil
}

// opJumpNZ implements JUMPNZ: pops the top value; jumps if it is a
// nonzero Int. Nil falls through without jumping. Any other tag is a
// Type error.
func (m *Machine) opJumpNZ(target uint16) error {
	v, err := m.Pop()
	if err != nil {
		return err
	}
	obj := *m.Heap.Obj(v)
	if obj.Tag != bbztype.Nil && obj.Tag != bbztype.Int {
		return &Error{Kind: ErrType, PC: m.pc}
	}
	if obj.Truthy() {
		m.jump(target)
	}
	return nil
}

// frameArgs collects the argc arguments sitting above the closure on the
// operand stack (spec.md §4.3: "after the callee's arguments have been
// rearranged so the closure sits just below them"), then truncates the
// stack to remove both the closure and its arguments. Callers move the
// returned slice into the callee's fresh local-symbol array; this VM
// does not leave call arguments resident on the operand stack, since
// LLOAD/LSTORE address them by local-symbol index, not stack depth.
func (m *Machine) frameArgs(argc int) (closure uint16, args []uint16, err error) {
	if argc < 0 || m.sp-argc < 0 {
		return 0, nil, &Error{Kind: ErrStack, PC: m.pc}
	}
	closurePos := m.sp - argc
	closure = m.stack[closurePos]
	args = make([]uint16, argc)
	copy(args, m.stack[closurePos+1:m.sp+1])
	m.sp = closurePos - 1
	return closure, args, nil
}

// pushFrame builds a fresh local-symbol array for a scripted call: a
// clone of the closure's captured activation record (or the VM default,
// if the closure carries bbztype.NoActRec), with args appended in order,
// then pushes both frame markers (saved pc below, saved bp above it, so
// bp ends up pointing at its own slot) and sets pc to addr.
func (m *Machine) pushFrame(actRecSrc uint16, args []uint16, swarm bool, returnAddr uint16, addr uint16) error {
	newLocals, err := m.Heap.ArrayClone(actRecSrc)
	if err != nil {
		return m.wrapAlloc(err)
	}
	for _, a := range args {
		if err := m.Heap.ArrayPush(newLocals, a); err != nil {
			return m.wrapAlloc(err)
		}
	}
	if swarm {
		m.Heap.MarkSwarm(newLocals)
	}
	if err := m.Heap.ArrayPush(m.lsymts, newLocals); err != nil {
		return m.wrapAlloc(err)
	}

	pcIdx, err := m.Heap.AllocInt(int16(returnAddr))
	if err != nil {
		return m.wrapAlloc(err)
	}
	bpIdx, err := m.Heap.AllocInt(int16(m.bp))
	if err != nil {
		return m.wrapAlloc(err)
	}
	if err := m.Push(pcIdx); err != nil {
		return err
	}
	if err := m.Push(bpIdx); err != nil {
		return err
	}
	m.bp = m.sp
	m.lsyms = newLocals
	m.pc = addr
	return nil
}

// call implements CALLC/CALLS's shared body: pop argc, locate and
// consume the closure and its arguments, then either invoke a native
// callback synchronously or lay down a scripted call frame.
func (m *Machine) call(swarm bool) error {
	argcIdx, err := m.Pop()
	if err != nil {
		return err
	}
	argcObj := *m.Heap.Obj(argcIdx)
	if argcObj.Tag != bbztype.Int {
		return &Error{Kind: ErrType, PC: m.pc}
	}
	closureIdx, args, err := m.frameArgs(int(argcObj.Int))
	if err != nil {
		return err
	}
	closure := *m.Heap.Obj(closureIdx)
	if closure.Tag != bbztype.Closure {
		return &Error{Kind: ErrType, PC: m.pc}
	}

	actRecSrc := closure.ActRec
	if actRecSrc == bbztype.NoActRec {
		actRecSrc = m.dfltActRec
	}

	if closure.Ref.Native {
		return m.callNative(closure.Ref.Addr, actRecSrc, args, swarm)
	}
	return m.pushFrame(actRecSrc, args, swarm, m.pc, closure.Ref.Addr)
}

// ret implements RET0 (keepResult=false) and RET1 (keepResult=true): it
// restores bp/pc from the current frame's saved slots, discards any
// operand-stack values the callee left above them (RET1 first saves the
// one value it must keep), and pops/destroys the current local-symbol
// array.
func (m *Machine) ret(keepResult bool) error {
	if m.bp < 1 || m.bp > m.sp {
		return &Error{Kind: ErrRet, PC: m.pc}
	}
	var result uint16
	if keepResult {
		var err error
		result, err = m.Peek(0)
		if err != nil {
			return &Error{Kind: ErrRet, PC: m.pc}
		}
	}

	bpSlot := *m.Heap.Obj(m.stack[m.bp])
	pcSlot := *m.Heap.Obj(m.stack[m.bp-1])
	if bpSlot.Tag != bbztype.Int || pcSlot.Tag != bbztype.Int {
		return &Error{Kind: ErrRet, PC: m.pc}
	}

	if m.Heap.IsSwarm(m.lsyms) {
		// Hook for the out-of-scope swarm subsystem: see SwarmHook.
		m.swarmOnReturn(m.lsyms)
	}

	if err := m.Heap.ArrayPop(m.lsymts); err != nil {
		return &Error{Kind: ErrRet, PC: m.pc}
	}

	m.sp = m.bp - 2
	m.bp = int(bpSlot.Int)
	m.pc = uint16(pcSlot.Int)

	if size := m.Heap.ArraySize(m.lsymts); size > 0 {
		top, err := m.Heap.ArrayLast(m.lsymts)
		if err != nil {
			return &Error{Kind: ErrRet, PC: m.pc}
		}
		m.lsyms = top
	} else {
		m.lsyms = m.dfltActRec
	}

	if keepResult {
		if err := m.Push(result); err != nil {
			return err
		}
	}
	return nil
}

// opTPut implements TPUT: t k v → . If v is a closure, t is bound into a
// cloned closure (method binding, spec.md §9) stored at key k instead of
// v itself; the closure on the stack below is left untouched. Otherwise
// this is a plain table set.
func (m *Machine) opTPut() error {
	vIdx, err := m.Pop()
	if err != nil {
		return err
	}
	kIdx, err := m.Pop()
	if err != nil {
		return err
	}
	tIdx, err := m.Pop()
	if err != nil {
		return err
	}
	if m.Heap.Obj(tIdx).Tag != bbztype.Table {
		return &Error{Kind: ErrType, PC: m.pc}
	}

	storeIdx := vIdx
	if m.Heap.Obj(vIdx).Tag == bbztype.Closure {
		bound, err := m.bindMethod(tIdx, vIdx)
		if err != nil {
			return err
		}
		storeIdx = bound
	}
	return m.wrapAlloc(m.Heap.SetTable(tIdx, kIdx, storeIdx))
}

// bindMethod clones closure vIdx so its activation record is a fresh
// array with self (tIdx) prepended ahead of the closure's existing
// captured locals (or the VM default's, if it had none).
func (m *Machine) bindMethod(tIdx, vIdx uint16) (uint16, error) {
	orig := *m.Heap.Obj(vIdx)
	srcActRec := orig.ActRec
	if srcActRec == bbztype.NoActRec {
		srcActRec = m.dfltActRec
	}

	newActRec, err := m.Heap.NewArray()
	if err != nil {
		return 0, m.wrapAlloc(err)
	}
	if err := m.Heap.ArrayPush(newActRec, tIdx); err != nil {
		return 0, m.wrapAlloc(err)
	}
	size := m.Heap.ArraySize(srcActRec)
	for i := 0; i < size; i++ {
		elem, err := m.Heap.ArrayGet(srcActRec, i)
		if err != nil {
			// i is in range, so only the index key's allocation can fail.
			return 0, m.wrapAlloc(err)
		}
		if err := m.Heap.ArrayPush(newActRec, elem); err != nil {
			return 0, m.wrapAlloc(err)
		}
	}

	boundIdx, err := m.Heap.AllocObj(bbztype.Closure)
	if err != nil {
		return 0, m.wrapAlloc(err)
	}
	bound := m.Heap.Obj(boundIdx)
	bound.Ref = orig.Ref
	bound.ActRec = newActRec
	return boundIdx, nil
}

// opTGet implements TGET: t k → v-or-nil.
func (m *Machine) opTGet() error {
	kIdx, err := m.Pop()
	if err != nil {
		return err
	}
	tIdx, err := m.Pop()
	if err != nil {
		return err
	}
	if m.Heap.Obj(tIdx).Tag != bbztype.Table {
		return &Error{Kind: ErrType, PC: m.pc}
	}
	v, found := m.Heap.GetTable(tIdx, kIdx)
	if !found {
		return m.PushNil()
	}
	return m.Push(v)
}
