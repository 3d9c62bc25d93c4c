package exchange

import (
	"errors"
	"fmt"
)

// Code names an error class surfaced to callers. The set is the
// exchange's public error surface; transports map codes to their own
// status values.
type Code string

const (
	// Validation
	CodeInvalidPrice       Code = "InvalidPrice"
	CodeInvalidQuantity    Code = "InvalidQuantity"
	CodeInvalidChain       Code = "InvalidChain"
	CodeMalformedSignature Code = "MalformedSignature"
	CodeMissingField       Code = "MissingField"

	// Authorization
	CodeUnauthorized     Code = "Unauthorized"
	CodeUnsupportedChain Code = "UnsupportedChain"

	// Business
	CodeUserNotFound       Code = "UserNotFound"
	CodeMarketNotFound     Code = "MarketNotFound"
	CodeMarketClosed       Code = "MarketClosed"
	CodeAlreadySettled     Code = "AlreadySettled"
	CodeInsufficientFunds  Code = "InsufficientFunds"
	CodeInsufficientTokens Code = "InsufficientTokens"

	// Integrity. Internal: aborts the enclosing transaction and is logged
	// with full context; it should never reach a caller in normal
	// operation.
	CodeLedgerInconsistency Code = "LedgerInconsistency"

	// Transient; callers may retry.
	CodeUnavailable      Code = "Unavailable"
	CodeDeadlineExceeded Code = "DeadlineExceeded"
)

// Error is a coded exchange error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a coded error with a formatted message.
func E(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an underlying error.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the code from an error chain, defaulting to
// LedgerInconsistency for anything uncoded (unexpected internal failure).
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeLedgerInconsistency
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
