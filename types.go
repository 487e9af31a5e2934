package bittybuzz

import "github.com/ulrichdah/BittyBuzz/internal/bbzvm"

// State, FetchFunc and NativeFunc are defined in internal/bbzvm and
// re-exported here, same rationale as errors.go.
type (
	State      = bbzvm.State
	FetchFunc  = bbzvm.FetchFunc
	NativeFunc = bbzvm.NativeFunc
)

const (
	NoCode     = bbzvm.NoCode
	Ready      = bbzvm.Ready
	Done       = bbzvm.Done
	StateError = bbzvm.StateError
)
