package acquire

import (
	"errors"
	"fmt"

	"github.com/juridigo/pjefetch/pkg/browser"
)

// Kind classifies terminal acquisition failures. The set is closed:
// every fault a state can produce maps onto exactly one kind.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindConfiguration  Kind = "configuration"
	KindAuthentication Kind = "authentication"
	KindNavigation     Kind = "navigation"
	KindNotFound       Kind = "not_found"
	KindDownload       Kind = "download"
	KindTimeout        Kind = "timeout"
)

// Error is a classified acquisition failure with a human-readable cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from an error chain, or "" when the
// error is not an acquisition failure.
func KindOf(err error) Kind {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Kind
	}
	return ""
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewValidationError reports a request rejected before any browser or
// registry work.
func NewValidationError(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

// wrapError classifies err under kind, except that an exceeded wait
// always surfaces as a timeout regardless of which state it hit.
func wrapError(kind Kind, err error, format string, args ...any) *Error {
	if browser.IsTimeout(err) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// wrapExact wraps err under kind unconditionally, for faults whose
// class is fixed by what the state was doing (a result that never
// appears is not-found even when detected by an expired wait).
func wrapExact(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}
