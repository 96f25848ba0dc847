package errcode

import appErr "github.com/xxxsen/quizpack/internal/pkg/errors"

const (
	ErrUnknown = 10000000 + iota
	ErrUnauthorized
	ErrForbidden
	ErrNotFound
	ErrInvalid
	ErrConflict
	ErrTooMany
	ErrInternal
	ErrInvalidFile
	ErrUnsupportedFormat
	ErrTooLarge
	ErrPasswordProtected
	ErrCorrupted
	ErrImportFailed
	ErrUploadFailed
)

// ForKind maps an import failure kind onto its API code.
func ForKind(kind appErr.Kind) uint32 {
	switch kind {
	case appErr.KindUnsupportedFormat:
		return ErrUnsupportedFormat
	case appErr.KindTooLarge:
		return ErrTooLarge
	case appErr.KindPasswordProtected:
		return ErrPasswordProtected
	case appErr.KindCorrupted:
		return ErrCorrupted
	case appErr.KindInternal:
		return ErrInternal
	}
	return ErrImportFailed
}
