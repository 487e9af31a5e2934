package bbzvm

import "github.com/ulrichdah/BittyBuzz/internal/bbztype"

// popInt pops the top of stack and requires it to be an Int, returning its
// value. Every arithmetic opcode is integer-only (spec.md §1); any other
// tag, including Float, is a Type error.
func (m *Machine) popInt() (int16, error) {
	idx, err := m.Pop()
	if err != nil {
		return 0, err
	}
	obj := *m.Heap.Obj(idx)
	if obj.Tag != bbztype.Int {
		return 0, &Error{Kind: ErrType, PC: m.pc}
	}
	return obj.Int, nil
}

// pushInt allocates a fresh Int object and pushes it.
func (m *Machine) pushInt(v int16) error {
	idx, err := m.Heap.AllocInt(v)
	if err != nil {
		return m.wrapAlloc(err)
	}
	return m.Push(idx)
}

// binaryInt pops b then a (so the instruction sees a OP b with a pushed
// first), applies fn, and pushes the result.
func (m *Machine) binaryInt(fn func(a, b int16) int16) error {
	b, err := m.popInt()
	if err != nil {
		return err
	}
	a, err := m.popInt()
	if err != nil {
		return err
	}
	return m.pushInt(fn(a, b))
}

func (m *Machine) opAdd() error { return m.binaryInt(func(a, b int16) int16 { return a + b }) }
func (m *Machine) opSub() error { return m.binaryInt(func(a, b int16) int16 { return a - b }) }
func (m *Machine) opMul() error { return m.binaryInt(func(a, b int16) int16 { return a * b }) }

// opDiv and opMod follow Go's own division-by-zero trap by substituting
// INT16_MIN rather than panicking, keeping the machine's state uncorrupted
// on the boundary case spec.md §8 leaves implementation-defined.
func (m *Machine) opDiv() error {
	return m.binaryInt(func(a, b int16) int16 {
		if b == 0 {
			return -32768
		}
		return a / b
	})
}

func (m *Machine) opMod() error {
	return m.binaryInt(func(a, b int16) int16 {
		if b == 0 {
			return -32768
		}
		return a % b
	})
}

// opPow implements POW via repeated multiplication; a negative exponent
// yields INT16_MIN (spec.md §8).
func (m *Machine) opPow() error {
	return m.binaryInt(func(base, exp int16) int16 {
		if exp < 0 {
			return -32768
		}
		result := int16(1)
		for i := int16(0); i < exp; i++ {
			result *= base
		}
		return result
	})
}

// opUnm implements UNM: integer unary minus.
func (m *Machine) opUnm() error {
	v, err := m.popInt()
	if err != nil {
		return err
	}
	return m.pushInt(-v)
}

// truthyInt pops the top of stack, requiring Nil or Int, and returns its
// truthiness -- the shared operand rule for AND/OR/NOT.
func (m *Machine) truthyInt() (bool, error) {
	idx, err := m.Pop()
	if err != nil {
		return false, err
	}
	obj := *m.Heap.Obj(idx)
	if obj.Tag != bbztype.Nil && obj.Tag != bbztype.Int {
		return false, &Error{Kind: ErrType, PC: m.pc}
	}
	return obj.Truthy(), nil
}

func (m *Machine) pushBool(v bool) error {
	if v {
		return m.pushInt(1)
	}
	return m.pushInt(0)
}

func (m *Machine) opAnd() error {
	b, err := m.truthyInt()
	if err != nil {
		return err
	}
	a, err := m.truthyInt()
	if err != nil {
		return err
	}
	return m.pushBool(a && b)
}

func (m *Machine) opOr() error {
	b, err := m.truthyInt()
	if err != nil {
		return err
	}
	a, err := m.truthyInt()
	if err != nil {
		return err
	}
	return m.pushBool(a || b)
}

func (m *Machine) opNot() error {
	a, err := m.truthyInt()
	if err != nil {
		return err
	}
	return m.pushBool(!a)
}

// compare implements EQ/NEQ/GT/GTE/LT/LTE: any type pair is permitted,
// ordered via bbztype.Cmp.
func (m *Machine) compare(fn func(c int) bool) error {
	bIdx, err := m.Pop()
	if err != nil {
		return err
	}
	aIdx, err := m.Pop()
	if err != nil {
		return err
	}
	c := bbztype.Cmp(*m.Heap.Obj(aIdx), *m.Heap.Obj(bIdx), aIdx, bIdx)
	return m.pushBool(fn(c))
}

func (m *Machine) opEq() error  { return m.compare(func(c int) bool { return c == 0 }) }
func (m *Machine) opNeq() error { return m.compare(func(c int) bool { return c != 0 }) }
func (m *Machine) opGt() error  { return m.compare(func(c int) bool { return c > 0 }) }
func (m *Machine) opGte() error { return m.compare(func(c int) bool { return c >= 0 }) }
func (m *Machine) opLt() error  { return m.compare(func(c int) bool { return c < 0 }) }
func (m *Machine) opLte() error { return m.compare(func(c int) bool { return c <= 0 }) }
