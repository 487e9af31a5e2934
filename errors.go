package bittybuzz

import "github.com/ulrichdah/BittyBuzz/internal/bbzvm"

// ErrorKind, Error and ErrorNotifier are defined in internal/bbzvm (where
// they're raised) and re-exported here as the host-facing vocabulary, the
// same way wazero's root package re-exports engine-level concepts (e.g.
// api.ExternType) rather than redeclaring them.
type (
	ErrorKind     = bbzvm.ErrorKind
	Error         = bbzvm.Error
	ErrorNotifier = bbzvm.ErrorNotifier
)

const (
	ErrNone        = bbzvm.ErrNone
	ErrInstr       = bbzvm.ErrInstr
	ErrPC          = bbzvm.ErrPC
	ErrFlist       = bbzvm.ErrFlist
	ErrType        = bbzvm.ErrType
	ErrOutOfMemory = bbzvm.ErrOutOfMemory
	ErrStack       = bbzvm.ErrStack
	ErrRet         = bbzvm.ErrRet
)
