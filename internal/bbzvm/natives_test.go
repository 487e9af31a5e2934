package bbzvm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ulrichdah/BittyBuzz/internal/bbztype"
)

func TestRegisterNativeReturnsStableID(t *testing.T) {
	m := newBareMachine(t)
	fn := func(m *Machine) error { return nil }
	eq := func(a, b NativeFunc) bool { return false }

	id1, err := m.RegisterNative(fn, eq)
	require.NoError(t, err)
	require.Equal(t, uint16(0), id1)

	fn2 := func(m *Machine) error { return nil }
	id2, err := m.RegisterNative(fn2, eq)
	require.NoError(t, err)
	require.Equal(t, uint16(1), id2)
}

func TestRegisterNativeInstallsGlobalClosure(t *testing.T) {
	m := newBareMachine(t)
	fn := func(m *Machine) error { return nil }
	id, err := m.RegisterNative(fn, func(a, b NativeFunc) bool { return false })
	require.NoError(t, err)

	keyIdx, err := m.Heap.AllocObj(bbztype.String)
	require.NoError(t, err)
	m.Heap.Obj(keyIdx).StrID = id

	closureIdx, found := m.Heap.GetTable(m.gsyms, keyIdx)
	require.True(t, found)
	closure := m.Heap.Obj(closureIdx)
	require.Equal(t, bbztype.Closure, closure.Tag)
	require.True(t, closure.Ref.Native)
	require.Equal(t, id, closure.Ref.Addr)
}

// TestNativeCallScenario implements spec.md §8's literal "Native call"
// end-to-end scenario: a native function registered under id 0 reads
// Int(123) from its local symbols and returns nil. Local index 0 holds
// the self slot every activation record starts with, so the first
// (and only) argument lands at index 1.
func TestNativeCallScenario(t *testing.T) {
	m := newBareMachine(t)

	var observedArg int16
	id, err := m.RegisterNative(func(mm *Machine) error {
		v, err := mm.Heap.ArrayGet(mm.lsyms, 1)
		if err != nil {
			return err
		}
		observedArg = mm.Heap.Obj(v).Int
		return mm.PushNil()
	}, func(a, b NativeFunc) bool { return false })
	require.NoError(t, err)
	require.Equal(t, uint16(0), id)

	require.NoError(t, m.pushInt(123))
	require.NoError(t, m.CallByName(id, 1))

	require.Equal(t, int16(123), observedArg)

	v, err := m.Pop()
	require.NoError(t, err)
	require.Equal(t, m.nilIdx, v, "print_int_val pushes nil as its RET0-equivalent return value")
}

func TestCallNativeOutOfRangeIsFlistError(t *testing.T) {
	m := newBareMachine(t)
	err := m.callNative(99, m.dfltActRec, nil, false)
	require.Error(t, err)
	var vmErr *Error
	require.ErrorAs(t, err, &vmErr)
	require.Equal(t, ErrFlist, vmErr.Kind)
}

func TestCallNativeRestoresLocalsAfterReturn(t *testing.T) {
	m := newBareMachine(t)
	id, err := m.RegisterNative(func(mm *Machine) error { return nil }, func(a, b NativeFunc) bool { return false })
	require.NoError(t, err)

	before := m.lsyms
	require.NoError(t, m.callNative(id, m.dfltActRec, nil, false))
	require.Equal(t, before, m.lsyms)
}

// TestFindNativeByIndex exercises the registry search a host uses to
// avoid double-registering the same callback (FindNative scans in
// registration order and stops at the first match).
func TestFindNativeByIndex(t *testing.T) {
	m := newBareMachine(t)
	eq := func(a, b NativeFunc) bool { return false }
	_, err := m.RegisterNative(func(mm *Machine) error { return nil }, eq)
	require.NoError(t, err)
	second, err := m.RegisterNative(func(mm *Machine) error { return nil }, eq)
	require.NoError(t, err)

	seen := 0
	foundID, ok := m.FindNative(func(fn NativeFunc) bool {
		defer func() { seen++ }()
		return seen == int(second)
	})
	require.True(t, ok)
	require.Equal(t, second, foundID)

	_, ok = m.FindNative(func(NativeFunc) bool { return false })
	require.False(t, ok)
}
