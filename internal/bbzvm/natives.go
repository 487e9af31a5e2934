package bbzvm

import "github.com/ulrichdah/BittyBuzz/internal/bbztype"

// RegisterNative searches the registered callbacks (kept in parallel with
// flist) for fn, using eq (a host-supplied identity comparator, since Go
// funcs are not comparable), and appends it to both if absent.
// The returned id is stable for the VM's lifetime and is also installed
// as a native closure under that same id in the global symbols table, so
// the n-th registered function becomes the global named by string id n
// (spec.md §4.5).
func (m *Machine) RegisterNative(fn NativeFunc, eq func(a, b NativeFunc) bool) (uint16, error) {
	for i, existing := range m.natives {
		if eq(existing, fn) {
			return uint16(i), nil
		}
	}

	udIdx, err := m.Heap.AllocObj(bbztype.Userdata)
	if err != nil {
		return 0, m.wrapAlloc(err)
	}
	id := uint16(len(m.natives))
	m.Heap.Obj(udIdx).Userdata = id
	if err := m.Heap.ArrayPush(m.flist, udIdx); err != nil {
		return 0, m.wrapAlloc(err)
	}
	m.natives = append(m.natives, fn)

	closureIdx, err := m.Heap.AllocObj(bbztype.Closure)
	if err != nil {
		return 0, m.wrapAlloc(err)
	}
	closure := m.Heap.Obj(closureIdx)
	closure.Ref = bbztype.ClosureRef{Native: true, Addr: id}
	closure.ActRec = bbztype.NoActRec

	keyIdx, err := m.Heap.AllocObj(bbztype.String)
	if err != nil {
		return 0, m.wrapAlloc(err)
	}
	m.Heap.Obj(keyIdx).StrID = id
	if err := m.Heap.SetTable(m.gsyms, keyIdx, closureIdx); err != nil {
		return 0, m.wrapAlloc(err)
	}

	return id, nil
}

// callNative invokes the host callback registered under ref. It lays
// down a local-symbol frame exactly like a scripted call (so the
// callback can read its arguments via the same array the interpreter
// would use for LLOAD), but since a native call always runs to
// completion synchronously within one Step, there is no bytecode return
// address to save: the frame is popped immediately after the callback
// returns, and any value it pushed onto the operand stack becomes the
// call's result in place.
func (m *Machine) callNative(ref uint16, actRecSrc uint16, args []uint16, swarm bool) error {
	if int(ref) >= len(m.natives) {
		return &Error{Kind: ErrFlist, PC: m.pc}
	}

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

	savedLocals := m.lsyms
	m.lsyms = newLocals
	err = m.natives[ref](m)
	m.lsyms = savedLocals
	if err != nil {
		return err
	}
	return nil
}

// FindNative searches the registered callbacks, in registration order,
// for the first one eq accepts, mirroring bbzdarray_find's role in the original registry
// (spec.md §4.5). It returns the registry id and true on a match.
func (m *Machine) FindNative(eq func(NativeFunc) bool) (uint16, bool) {
	for i, fn := range m.natives {
		if eq(fn) {
			return uint16(i), true
		}
	}
	return 0, false
}

// CallByName drives the interpreter synchronously until the call to the
// global named strID returns: it pushes the global, pushes argc already
// on the operand stack below it as arguments (the host is expected to
// have pushed them beforehand, matching CALLC's own convention), issues
// a CALLC, and -- if the callee is scripted rather than native --
// repeatedly Steps until control returns to this call's own frame depth.
// This is the host-level function_call entry point (spec.md §6).
func (m *Machine) CallByName(strID uint16, argc int) error {
	closureKeyIdx, err := m.Heap.AllocObj(bbztype.String)
	if err != nil {
		return m.wrapAlloc(err)
	}
	m.Heap.Obj(closureKeyIdx).StrID = strID
	closureIdx, found := m.Heap.GetTable(m.gsyms, closureKeyIdx)
	if !found || m.Heap.Obj(closureIdx).Tag != bbztype.Closure {
		return &Error{Kind: ErrFlist, PC: m.pc}
	}

	// Rearrange so the closure sits below its (already-pushed) args.
	args := make([]uint16, argc)
	for i := argc - 1; i >= 0; i-- {
		v, err := m.Pop()
		if err != nil {
			return err
		}
		args[i] = v
	}
	if err := m.Push(closureIdx); err != nil {
		return err
	}
	for _, a := range args {
		if err := m.Push(a); err != nil {
			return err
		}
	}
	argcIdx, err := m.Heap.AllocInt(int16(argc))
	if err != nil {
		return m.wrapAlloc(err)
	}
	if err := m.Push(argcIdx); err != nil {
		return err
	}

	closure := *m.Heap.Obj(closureIdx)
	if closure.Ref.Native {
		return m.wrapAlloc(m.call(false))
	}

	targetBp := m.bp
	if err := m.wrapAlloc(m.call(false)); err != nil {
		return err
	}
	for m.state == Ready && m.bp != targetBp {
		if m.Step() != Ready {
			break
		}
	}
	if m.state == StateError {
		return &Error{Kind: m.errKind, PC: m.errPC}
	}
	return nil
}
