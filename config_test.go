package bittybuzz

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewVMConfigReturnsDefaults(t *testing.T) {
	c := NewVMConfig()
	require.Equal(t, 256, c.heapCapacity)
	require.Equal(t, 64, c.stackCapacity)
}

func TestWithMethodsReturnIndependentCopies(t *testing.T) {
	base := NewVMConfig()
	withHeap := base.WithHeapCapacity(32)
	withStack := base.WithStackCapacity(8)

	require.Equal(t, 256, base.heapCapacity, "With* must not mutate the receiver")
	require.Equal(t, 64, base.stackCapacity)

	require.Equal(t, 32, withHeap.heapCapacity)
	require.Equal(t, 64, withHeap.stackCapacity)

	require.Equal(t, 256, withStack.heapCapacity)
	require.Equal(t, 8, withStack.stackCapacity)
}

func TestWithMethodsChain(t *testing.T) {
	c := NewVMConfig().WithHeapCapacity(40).WithStackCapacity(10)
	require.Equal(t, 40, c.heapCapacity)
	require.Equal(t, 10, c.stackCapacity)
}
