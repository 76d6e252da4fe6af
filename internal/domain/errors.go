package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Every error surfaced by the bridge wraps exactly one
// of these so callers can classify with errors.Is.
var (
	ErrHandshake        = fmt.Errorf("websocket handshake failed")
	ErrNotHandshaked    = fmt.Errorf("connection not handshaked")
	ErrConnectionClosed = fmt.Errorf("connection closed")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrScript           = fmt.Errorf("script threw")
	ErrNotFound         = fmt.Errorf("not found")
	ErrRemote           = fmt.Errorf("remote command failed")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrSessionNotFound  = fmt.Errorf("session not found")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrDecryption       = fmt.Errorf("decryption failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Session.Click")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// RemoteError is a command the peer answered with an error object.
type RemoteError struct {
	Method  string
	Code    int64
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Method, e.Message, e.Code)
}

// Is makes errors.Is(err, ErrRemote) match any RemoteError.
func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

// ScriptError is an evaluation the remote runtime reported as thrown.
// Value is the thrown value as decoded from the reply (nil when the runtime
// only supplied a description).
type ScriptError struct {
	Value       any
	Description string
}

func (e *ScriptError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", ErrScript, e.Description)
	}
	return fmt.Sprintf("%s: %v", ErrScript, e.Value)
}

// Is makes errors.Is(err, ErrScript) match any ScriptError.
func (e *ScriptError) Is(target error) bool { return target == ErrScript }

// IsTransportError reports whether err is fatal for the session: the
// handshake failed or the connection is gone.
func IsTransportError(err error) bool {
	return errors.Is(err, ErrHandshake) ||
		errors.Is(err, ErrNotHandshaked) ||
		errors.Is(err, ErrConnectionClosed)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeHandshake        ErrorCode = "HANDSHAKE"
	CodeNotHandshaked    ErrorCode = "NOT_HANDSHAKED"
	CodeConnectionClosed ErrorCode = "CONNECTION_CLOSED"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeScript           ErrorCode = "SCRIPT_ERROR"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeRemote           ErrorCode = "REMOTE_ERROR"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeSessionNotFound  ErrorCode = "SESSION_NOT_FOUND"
	CodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	CodeDecryption       ErrorCode = "DECRYPTION"
)

// errorCodes is ordered so that more specific sentinels win when an error
// chain wraps several of them.
var errorCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrSessionNotFound, CodeSessionNotFound},
	{ErrHandshake, CodeHandshake},
	{ErrNotHandshaked, CodeNotHandshaked},
	{ErrConnectionClosed, CodeConnectionClosed},
	{ErrTimeout, CodeTimeout},
	{ErrScript, CodeScript},
	{ErrRemote, CodeRemote},
	{ErrNotFound, CodeNotFound},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrConfigLoad, CodeConfigLoad},
	{ErrDecryption, CodeDecryption},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
