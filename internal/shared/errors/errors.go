package errors

import (
	"errors"
	"fmt"
)

// Error kinds. Callers should test with errors.Is against these sentinels
// rather than matching concrete types.
var (
	// ErrStorage covers backend failures: unreachable store, malformed
	// record, constraint violation. A missing entity is NOT a storage
	// error; fetches report absence through Exists=false.
	ErrStorage = errors.New("storage error")

	// ErrConfig covers invalid configuration detected at startup.
	ErrConfig = errors.New("invalid configuration")

	// ErrInvariant covers rejected operations that would corrupt
	// accounting state, e.g. refunding an already-refunded job.
	ErrInvariant = errors.New("invariant violation")
)

// StorageError wraps a backend failure with the operation that caused it.
type StorageError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

// Unwrap returns the wrapped error.
func (e *StorageError) Unwrap() error { return e.Err }

// Is reports the storage kind so errors.Is(err, ErrStorage) matches.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Storage wraps err as a StorageError for the given operation. A nil err
// yields nil so call sites can wrap unconditionally.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// ConfigError reports an invalid configuration directive.
type ConfigError struct {
	Directive string
	Message   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("directive %q: %s", e.Directive, e.Message)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// Config creates a ConfigError for a directive.
func Config(directive, format string, args ...any) error {
	return &ConfigError{Directive: directive, Message: fmt.Sprintf(format, args...)}
}

// InvariantError reports a rejected operation. The operation is a no-op.
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string { return e.Message }

func (e *InvariantError) Is(target error) bool { return target == ErrInvariant }

// Invariant creates an InvariantError.
func Invariant(format string, args ...any) error {
	return &InvariantError{Message: fmt.Sprintf(format, args...)}
}
