package cloud

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a resource does not exist (or no longer exists)
	ErrNotFound = errors.New("resource not found")
	// ErrDuplicate is returned when a create conflicts with an existing natural key
	ErrDuplicate = errors.New("resource already exists")
	// ErrNotSupported is returned for capabilities the backend does not have
	ErrNotSupported = errors.New("not supported by this backend")
)

// ResourceError ties one of the sentinel errors to the resource and
// operation that produced it.
type ResourceError struct {
	Op   string
	Kind Kind
	ID   string
	Err  error
}

func (e *ResourceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Kind, e.ID, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// NotFound builds a ResourceError wrapping ErrNotFound
func NotFound(op string, kind Kind, id string) error {
	return &ResourceError{Op: op, Kind: kind, ID: id, Err: ErrNotFound}
}

// Duplicate builds a ResourceError wrapping ErrDuplicate
func Duplicate(op string, kind Kind, id string) error {
	return &ResourceError{Op: op, Kind: kind, ID: id, Err: ErrDuplicate}
}

// NotSupported builds a ResourceError wrapping ErrNotSupported
func NotSupported(op string, kind Kind) error {
	return &ResourceError{Op: op, Kind: kind, Err: ErrNotSupported}
}

// TransportError carries a failure of the underlying API client unchanged.
// errors.As on the wrapped error still reaches the client's own error type.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is, or wraps, ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StateError is returned by lifecycle waits when a resource enters a state
// it cannot leave to reach the one being waited for.
type StateError struct {
	Kind  Kind
	ID    string
	State string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %s entered terminal state %s", e.Kind, e.ID, e.State)
}
