package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to callers.
type ErrorKind string

const (
	KindConfiguration  ErrorKind = "configuration"
	KindValidation     ErrorKind = "validation"
	KindAuthentication ErrorKind = "authentication"
	KindRateLimit      ErrorKind = "rate_limit"
	KindUpstream       ErrorKind = "upstream"
	KindParse          ErrorKind = "parse"
)

// Error is a typed failure with a human-readable message.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewConfigurationError reports a missing or unusable stored setting.
func NewConfigurationError(msg string, err error) *Error {
	return &Error{Kind: KindConfiguration, Message: msg, Err: err}
}

// NewValidationError reports malformed caller input.
func NewValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// NewAuthenticationError reports an upstream 401.
func NewAuthenticationError(msg string) *Error {
	return &Error{Kind: KindAuthentication, Message: msg}
}

// NewRateLimitError reports an upstream 429.
func NewRateLimitError(msg string) *Error {
	return &Error{Kind: KindRateLimit, Message: msg}
}

// NewUpstreamError reports any other upstream failure.
func NewUpstreamError(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// NewParseError reports a malformed upstream record. These are recovered
// inside the stream reader and never returned to callers.
func NewParseError(msg string, err error) *Error {
	return &Error{Kind: KindParse, Message: msg, Err: err}
}

// KindOf returns the kind of err, or KindUpstream for untyped errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUpstream
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}
