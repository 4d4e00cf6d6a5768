// Package apperr provides the standardized error taxonomy shared by the
// pipeline and the HTTP surface. Every failure in the system maps to one of
// four kinds, which determines what the caller is allowed to see.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for surface handling.
type Kind string

const (
	// KindBadInput marks a malformed or unsupported request (e.g. a
	// non-image upload). Caller-visible, not exceptional.
	KindBadInput Kind = "BAD_INPUT"

	// KindParse marks model output that yielded no valid JSON object or
	// failed schema validation. Caller-visible and expected to happen:
	// generation models are not guaranteed well-formed emitters.
	KindParse Kind = "PARSE_ERROR"

	// KindConfig marks a generation option outside its allow-list.
	// Fails fast at startup, never per-request recoverable.
	KindConfig Kind = "CONFIG_ERROR"

	// KindUpstream marks a provider/network failure or any other
	// unclassified error. The caller sees a generic message; full detail
	// stays server-side.
	KindUpstream Kind = "UPSTREAM_ERROR"
)

// Error is a classified application error.
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

// BadInput creates a rejected-request error with a caller-visible message.
func BadInput(format string, args ...any) error {
	return &Error{Kind: KindBadInput, Message: fmt.Sprintf(format, args...)}
}

// Parse creates a model-output parsing/validation error.
func Parse(format string, args ...any) error {
	return &Error{Kind: KindParse, Message: fmt.Sprintf(format, args...)}
}

// ParseWrap wraps an underlying decode error as a parse error.
func ParseWrap(err error, format string, args ...any) error {
	return &Error{Kind: KindParse, Message: fmt.Sprintf(format, args...), Err: err}
}

// Config creates a configuration error.
func Config(format string, args ...any) error {
	return &Error{Kind: KindConfig, Message: fmt.Sprintf(format, args...)}
}

// Upstream wraps a provider or network failure.
func Upstream(err error, format string, args ...any) error {
	return &Error{Kind: KindUpstream, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or KindUpstream for unclassified errors.
// Anything the pipeline did not deliberately classify is treated as
// upstream so its detail is withheld from callers.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUpstream
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// CallerMessage returns the message a caller may see for err. Rejected
// request classes (bad input, parse) expose their own message; everything
// else collapses to the provided generic message.
func CallerMessage(err error, generic string) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case KindBadInput, KindParse:
			return appErr.Message
		}
	}
	return generic
}
