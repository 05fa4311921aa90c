package host

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes host errors.
type ErrorCode string

const (
	// ErrCodeInitializerFailed indicates an initializer returned an error and
	// boot was aborted.
	ErrCodeInitializerFailed ErrorCode = "INITIALIZER_FAILED"

	// ErrCodeDuplicateInitializer indicates two initializers share a name.
	ErrCodeDuplicateInitializer ErrorCode = "DUPLICATE_INITIALIZER"

	// ErrCodeInvalidInitializer indicates an initializer without a name or func.
	ErrCodeInvalidInitializer ErrorCode = "INVALID_INITIALIZER"

	// ErrCodeAlreadyInitialized indicates an initializer was added after the
	// initializer phase started.
	ErrCodeAlreadyInitialized ErrorCode = "ALREADY_INITIALIZED"

	// ErrCodeDestroyed indicates the host was destroyed.
	ErrCodeDestroyed ErrorCode = "HOST_DESTROYED"
)

// Error is returned by host operations that fail.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Host is the name of the affected host.
	Host string

	// Initializer names the initializer involved, if any.
	Initializer string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s (host=%s", e.Code, e.Message, e.Host)
	if e.Initializer != "" {
		msg += ", initializer=" + e.Initializer
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsDestroyed reports whether err was caused by using a destroyed host.
func IsDestroyed(err error) bool {
	return hasCode(err, ErrCodeDestroyed)
}

// IsInitializerError reports whether err is an aborted initializer phase.
func IsInitializerError(err error) bool {
	return hasCode(err, ErrCodeInitializerFailed)
}

func hasCode(err error, code ErrorCode) bool {
	var he *Error
	if errors.As(err, &he) {
		return he.Code == code
	}
	return false
}

func newDestroyedError(host string) *Error {
	return &Error{
		Code:    ErrCodeDestroyed,
		Message: "host has been destroyed",
		Host:    host,
	}
}
