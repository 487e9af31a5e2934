package bbzvm

import "github.com/ulrichdah/BittyBuzz/internal/bbztype"

// LoadStrings implements bytecode-load steps 1-3 (spec.md §4.6): it reads
// the 16-bit string count at offset 0, then for each string scans forward
// over a zero-terminated byte run without copying it (the bytes stay in
// the bytecode image; only their id is retained), interning each as a
// sequential id and storing a (string-object -> int-object{id}) pair in
// the global symbols table. pc is left just past the final string, ready
// for RunPrelude.
func (m *Machine) LoadStrings() error {
	countBytes, err := m.fetchImmediate16(0)
	if err != nil {
		return err
	}
	count := countBytes

	offset := uint16(2)
	for id := uint16(0); id < count; id++ {
		start := offset
		for {
			b, err := m.fetchByte(offset)
			if err != nil {
				return err
			}
			offset++
			if b == 0 {
				break
			}
		}
		_ = start // the byte span itself lives in the image; only id matters here

		keyIdx, err := m.Heap.AllocObj(bbztype.String)
		if err != nil {
			return m.wrapAlloc(err)
		}
		m.Heap.Obj(keyIdx).StrID = id

		valIdx, err := m.Heap.AllocInt(int16(id))
		if err != nil {
			return m.wrapAlloc(err)
		}

		if err := m.Heap.SetTable(m.gsyms, keyIdx, valIdx); err != nil {
			return m.wrapAlloc(err)
		}
	}

	m.pc = offset
	return nil
}

// fetchImmediate16 reads a 2-byte little-endian value, used for the
// string-count header (which is half the width of an opcode immediate).
func (m *Machine) fetchImmediate16(offset uint16) (uint16, error) {
	b, err := m.fetch(offset, 2)
	if err != nil || len(b) != 2 {
		return 0, &Error{Kind: ErrPC, PC: offset}
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

// RunPrelude steps the interpreter until it executes a NOP (inclusive),
// registering whatever built-in globals the prelude's instructions set up
// (spec.md §4.6 step 4). It stops early, without error, if the VM hits
// Done first; it returns the first error the interpreter raises.
func (m *Machine) RunPrelude() error {
	for {
		before := m.pc
		opByte, err := m.fetchByte(before)
		isNop := err == nil && Opcode(opByte) == NOP

		state := m.Step()
		switch state {
		case StateError:
			return &Error{Kind: m.errKind, PC: m.errPC}
		case Done:
			return nil
		}
		if isNop {
			return nil
		}
	}
}

// Load runs LoadStrings followed by RunPrelude against a freshly
// installed bytecode image -- the full sequence spec.md §3 calls
// "Loading bytecode".
func (m *Machine) Load(fetch FetchFunc, size uint16) error {
	m.SetBytecode(fetch, size)
	if err := m.LoadStrings(); err != nil {
		return err
	}
	return m.RunPrelude()
}
