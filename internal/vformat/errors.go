package vformat

import "fmt"

// ErrorKind enumerates the vault error categories. The kind is
// the caller-facing contract; Op and the wrapped error narrow down the
// specific failure for logs and debugging.
type ErrorKind string

const (
	KindInvalidInput       ErrorKind = "InvalidInput"
	KindNotFound           ErrorKind = "NotFound"
	KindAlreadyExists      ErrorKind = "AlreadyExists"
	KindUnsupportedVersion ErrorKind = "UnsupportedVersion"
	KindCorruptVault       ErrorKind = "CorruptVault"
	KindCryptoFailure      ErrorKind = "CryptoFailure"
	KindKeyUnavailable     ErrorKind = "KeyUnavailable"
	KindLockUnavailable    ErrorKind = "LockUnavailable"
	KindStorageIO          ErrorKind = "StorageIo"
	KindDuplicateDisclosure ErrorKind = "DuplicateDisclosure"
)

// Error is the concrete error type returned across package boundaries.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, vformat.KindX) style checks by comparing kinds
// when the target is itself an *Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError constructs an *Error.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the ErrorKind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	for err != nil {
		if ve, ok := err.(*Error); ok {
			e = ve
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return "", false
	}
	return e.Kind, true
}
