package lsmdb

import (
	"errors"
	"fmt"
)

// Error represents an lsmdb error with an error code
type Error struct {
	Code    ErrorCode
	Message string
	Err     error // wrapped error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lsmdb: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("lsmdb: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// ErrorCode classifies lsmdb errors. Values follow MDBX where one exists.
type ErrorCode int

const (
	// Success indicates the operation completed successfully
	Success ErrorCode = 0

	// ErrKeyExist indicates a NoOverwrite put hit a visible key
	ErrKeyExist ErrorCode = -30799

	// ErrNotFound indicates no matching entry (also end of iteration)
	ErrNotFound ErrorCode = -30798

	// ErrIncompatible indicates the on-disk layout does not match this build
	ErrIncompatible ErrorCode = -30784

	// ErrBadTxn indicates the transaction is finished or unusable
	ErrBadTxn ErrorCode = -30782

	// ErrInvalidArgument indicates a bad direction, level or flag
	ErrInvalidArgument ErrorCode = 22
)

var errorMessages = map[ErrorCode]string{
	Success:            "success",
	ErrKeyExist:        "key/data pair already exists",
	ErrNotFound:        "key/data pair not found",
	ErrIncompatible:    "incompatible store format",
	ErrBadTxn:          "transaction is invalid",
	ErrInvalidArgument: "invalid argument",
}

// NewError creates a new Error with the given code
func NewError(code ErrorCode) *Error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = fmt.Sprintf("unknown error code %d", code)
	}
	return &Error{Code: code, Message: msg}
}

// WrapError creates a new Error wrapping another error
func WrapError(code ErrorCode, err error) *Error {
	e := NewError(code)
	e.Err = err
	return e
}

func errorf(code ErrorCode, format string, args ...any) *Error {
	return WrapError(code, fmt.Errorf(format, args...))
}

// Common error variables for convenience
var (
	ErrKeyExistError     = NewError(ErrKeyExist)
	ErrNotFoundError     = NewError(ErrNotFound)
	ErrIncompatibleError = NewError(ErrIncompatible)
	ErrBadTxnError       = NewError(ErrBadTxn)
)

func isCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool { return isCode(err, ErrNotFound) }

// IsKeyExist returns true if the error is ErrKeyExist
func IsKeyExist(err error) bool { return isCode(err, ErrKeyExist) }

// IsIncompatible returns true if the store layout does not match
func IsIncompatible(err error) bool { return isCode(err, ErrIncompatible) }

// IsInvalidArgument returns true if the error is ErrInvalidArgument
func IsInvalidArgument(err error) bool { return isCode(err, ErrInvalidArgument) }

// Code returns the error code from an error, Success for nil, and -1 for
// substrate errors forwarded untouched.
func Code(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return -1
}
