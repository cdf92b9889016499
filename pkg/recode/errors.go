package recode

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dd0wney/hackdb/pkg/compress"
)

// Common sentinel errors
var (
	ErrMissingCodec  = errors.New("blocks use codecs that are not configured")
	ErrUnknownFormat = errors.New("unknown dump format")
)

// OpError provides structured error information for a failed operation.
type OpError struct {
	Op      string // Operation that failed (e.g., "open", "clone", "compact")
	Path    string // Database directory, if applicable
	Context string // Additional context
	Cause   error  // Underlying error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Context != "" {
		fmt.Fprintf(&b, " (%s)", e.Context)
	}
	fmt.Fprintf(&b, ": %v", e.Cause)
	return b.String()
}

// Unwrap returns the underlying cause for error chain support.
func (e *OpError) Unwrap() error {
	return e.Cause
}

// ErrorBuilder provides a fluent interface for building OpErrors.
type ErrorBuilder struct {
	err OpError
}

// NewError creates a new error builder with the given operation.
func NewError(op string) *ErrorBuilder {
	return &ErrorBuilder{err: OpError{Op: op}}
}

// Path sets the database directory.
func (b *ErrorBuilder) Path(path string) *ErrorBuilder {
	b.err.Path = path
	return b
}

// Context sets additional context information.
func (b *ErrorBuilder) Context(ctx string) *ErrorBuilder {
	b.err.Context = ctx
	return b
}

// Cause sets the underlying error cause.
func (b *ErrorBuilder) Cause(err error) *ErrorBuilder {
	b.err.Cause = err
	return b
}

// Build returns the constructed OpError.
func (b *ErrorBuilder) Build() *OpError {
	return &b.err
}

// Err returns the error as an error interface.
func (b *ErrorBuilder) Err() error {
	return &b.err
}

// OpenError creates an error for a database that could not be opened.
func OpenError(path string, cause error) error {
	return NewError("open").Path(path).Cause(cause).Err()
}

// MissingCodecError lists, per codec id, the blocks that were read from a
// database but could not be decoded with its configured codecs.
type MissingCodecError struct {
	Path    string
	Missing map[compress.ID]uint64
}

// Error implements the error interface.
func (e *MissingCodecError) Error() string {
	ids := make([]compress.ID, 0, len(e.Missing))
	for id := range e.Missing {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s: %d blocks", compress.Builtin().Name(id), e.Missing[id])
	}
	return fmt.Sprintf("%s: %v (%s)", e.Path, ErrMissingCodec, strings.Join(parts, ", "))
}

// Unwrap returns ErrMissingCodec.
func (e *MissingCodecError) Unwrap() error {
	return ErrMissingCodec
}

// IsMissingCodec returns true if the error reports undecodable codecs.
func IsMissingCodec(err error) bool {
	return errors.Is(err, ErrMissingCodec)
}
