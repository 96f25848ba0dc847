package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalid      = errors.New("invalid")
	ErrConflict     = errors.New("conflict")
	ErrTooMany      = errors.New("too many requests")
	ErrInternal     = errors.New("internal")
)

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

type Kind string

const (
	KindUnsupportedFormat      Kind = "unsupported_format"
	KindTooLarge               Kind = "too_large"
	KindPasswordProtected      Kind = "password_protected"
	KindCorrupted              Kind = "corrupted"
	KindTransientIO            Kind = "transient_io"
	KindNormalizerUnavailable  Kind = "normalizer_unavailable"
	KindSchemaValidationFailed Kind = "schema_validation_failed"
	KindTimeout                Kind = "timeout"
	KindCancelled              Kind = "cancelled"
	KindInterrupted            Kind = "interrupted"
	KindInternal               Kind = "internal"
)

var hints = map[Kind]string{
	KindUnsupportedFormat:      "upload a .docx, .txt or .md file",
	KindTooLarge:               "split the document or remove large embedded media",
	KindPasswordProtected:      "remove the password protection and upload again",
	KindCorrupted:              "re-save the document in a word processor and upload again",
	KindSchemaValidationFailed: "the document structure could not be recognised, check tour and question headings",
	KindTimeout:                "try again later or split the document",
	KindInterrupted:            "the server restarted while importing, upload the document again",
}

// ImportError is a classified failure of one import pipeline step.
type ImportError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *ImportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

func (e *ImportError) Retriable() bool {
	return e.Kind.Retriable()
}

func (k Kind) Retriable() bool {
	return k == KindTransientIO || k == KindNormalizerUnavailable
}

// Hint is the remediation text shown next to a failed job.
func (k Kind) Hint() string {
	return hints[k]
}

func NewImportError(kind Kind, msg string, err error) *ImportError {
	return &ImportError{Kind: kind, Msg: msg, Err: err}
}

// KindOf classifies err. Unclassified errors are internal and never retried.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return KindInternal
}

func IsRetriable(err error) bool {
	return KindOf(err).Retriable()
}

// UserMessage is the message surfaced to the submitting user; wrapped causes stay in the logs.
func UserMessage(err error) string {
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie.Msg
	}
	return "internal error"
}
