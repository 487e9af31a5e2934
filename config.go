package bittybuzz

// VMConfig controls the fixed capacities a VM is built with. The default
// implementation is NewVMConfig; every With* method returns a modified
// copy, the way wazero's RuntimeConfig does, so a base config can be
// reused across several VMs without aliasing.
type VMConfig struct {
	heapCapacity  int
	stackCapacity int
}

// defaultConfig mirrors a microcontroller-sized BittyBuzz image: a small
// heap and a shallow operand stack, generous enough for the literal
// end-to-end scenarios this package tests against.
var defaultConfig = &VMConfig{
	heapCapacity:  256,
	stackCapacity: 64,
}

// NewVMConfig returns a config with the package defaults.
func NewVMConfig() *VMConfig {
	return defaultConfig.clone()
}

// clone ensures all fields are copied even as VMConfig grows new ones.
func (c *VMConfig) clone() *VMConfig {
	ret := *c
	return &ret
}

// WithHeapCapacity sets the number of heap slots and table segments the
// VM's heap can hold between them (internal/bbzheap.New's capacity).
func (c *VMConfig) WithHeapCapacity(n int) *VMConfig {
	ret := c.clone()
	ret.heapCapacity = n
	return ret
}

// WithStackCapacity sets the operand stack's fixed depth.
func (c *VMConfig) WithStackCapacity(n int) *VMConfig {
	ret := c.clone()
	ret.stackCapacity = n
	return ret
}
