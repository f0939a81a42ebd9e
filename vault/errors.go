package vault

import "worldid.dev/vault/internal/vformat"

// ErrorKind enumerates the vault's error categories. Re-exported from the
// internal format package so callers outside this module never need to
// import internal/vformat directly.
type ErrorKind = vformat.ErrorKind

// Error is the error representation used everywhere in the vault: a
// classification (Kind), the failing operation name (Op), and the
// underlying cause (Err). It supports errors.Is/errors.As via Unwrap.
type Error = vformat.Error

const (
	KindInvalidInput        = vformat.KindInvalidInput
	KindNotFound            = vformat.KindNotFound
	KindAlreadyExists       = vformat.KindAlreadyExists
	KindUnsupportedVersion  = vformat.KindUnsupportedVersion
	KindCorruptVault        = vformat.KindCorruptVault
	KindCryptoFailure       = vformat.KindCryptoFailure
	KindKeyUnavailable      = vformat.KindKeyUnavailable
	KindLockUnavailable     = vformat.KindLockUnavailable
	KindStorageIO           = vformat.KindStorageIO
	KindDuplicateDisclosure = vformat.KindDuplicateDisclosure
)

// KindOf reports the ErrorKind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) { return vformat.KindOf(err) }

func newError(kind ErrorKind, op string, err error) *Error {
	return vformat.NewError(kind, op, err)
}
