package lsm

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("lsm: not found")
	ErrClosed         = errors.New("lsm: database is closed")
	ErrCorruption     = errors.New("lsm: corruption")
	ErrInvalidOptions = errors.New("lsm: invalid options")
	ErrDBExists       = errors.New("lsm: database exists (error_if_exists is true)")
	ErrDBMissing      = errors.New("lsm: database does not exist (create_if_missing is false)")
)

// ErrMissingCompressor marks a block whose codec id has no configured
// compressor. It is a kind of ErrCorruption.
var ErrMissingCompressor = fmt.Errorf("%w: no compressor configured", ErrCorruption)
