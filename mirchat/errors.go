package mirchat

import (
	"errors"
	"fmt"
)

// ErrorCode represents a categorized error type.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota

	// Validation errors raised before anything reaches the transport.
	ErrorNoRecipientSelected
	ErrorEmptyMessage
	ErrorMessageTooLong

	// Connection errors.
	ErrorChannelUnavailable
	ErrorTransport

	// Session and collaborator errors.
	ErrorCredentialUnavailable
	ErrorMalformedInbound
	ErrorDirectory
	ErrorInvalidConfig
	ErrorSerialization
	ErrorSessionClosed
)

// String returns the string representation of an ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorUnknown:
		return "unknown"
	case ErrorNoRecipientSelected:
		return "no_recipient_selected"
	case ErrorEmptyMessage:
		return "empty_message"
	case ErrorMessageTooLong:
		return "message_too_long"
	case ErrorChannelUnavailable:
		return "channel_unavailable"
	case ErrorTransport:
		return "transport_error"
	case ErrorCredentialUnavailable:
		return "credential_unavailable"
	case ErrorMalformedInbound:
		return "malformed_inbound_payload"
	case ErrorDirectory:
		return "directory_error"
	case ErrorInvalidConfig:
		return "invalid_config"
	case ErrorSerialization:
		return "serialization_error"
	case ErrorSessionClosed:
		return "session_closed"
	default:
		return fmt.Sprintf("unknown_code_%d", e)
	}
}

// Error is a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s (wrapped: %v)", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with an Error.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Wrapped: err,
	}
}

// Sentinels for errors.Is comparisons. Only the code is compared.
var (
	ErrNoRecipientSelected   = NewError(ErrorNoRecipientSelected, "no recipient selected")
	ErrEmptyMessage          = NewError(ErrorEmptyMessage, "message is empty")
	ErrMessageTooLong        = NewError(ErrorMessageTooLong, "message is too long")
	ErrChannelUnavailable    = NewError(ErrorChannelUnavailable, "channel is not open")
	ErrTransport             = NewError(ErrorTransport, "transport failure")
	ErrCredentialUnavailable = NewError(ErrorCredentialUnavailable, "credential not available")
	ErrMalformedInbound      = NewError(ErrorMalformedInbound, "malformed inbound payload")
	ErrDirectory             = NewError(ErrorDirectory, "directory request failed")
	ErrInvalidConfig         = NewError(ErrorInvalidConfig, "invalid config")
	ErrSessionClosed         = NewError(ErrorSessionClosed, "session closed")
)

// CodeOf extracts the ErrorCode from err, or ErrorUnknown.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrorUnknown
}

// IsValidationError checks if an error was raised by local input validation.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	code := CodeOf(err)
	return code >= ErrorNoRecipientSelected && code <= ErrorMessageTooLong
}

// IsConnectionError checks if an error is a connection-related error.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	code := CodeOf(err)
	return code == ErrorChannelUnavailable || code == ErrorTransport
}
