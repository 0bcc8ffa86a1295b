// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

// Package errdata defines the stable error codes surfaced to API clients.
package errdata

import (
	"errors"
	"fmt"
)

// Code is a stable numeric identifier attached to every externally
// visible error.
type Code int

const (
	// Internal is the fallback code for unexpected failures.
	Internal Code = 1
	// ObjectNotFound means a selector matched nothing.
	ObjectNotFound Code = 101
	// InvalidQuery means a malformed filter or operator payload.
	InvalidQuery Code = 102
	// InvalidClassName means a class name failed validation.
	InvalidClassName Code = 103
	// MissingObjectID means an update selector lacked an object id.
	MissingObjectID Code = 104
	// InvalidKeyName means a field name failed validation.
	InvalidKeyName Code = 105
	// InvalidACL means an access control list failed to parse.
	InvalidACL Code = 123
	// InvalidEmailAddress means an email field failed format validation.
	InvalidEmailAddress Code = 125
	// InvalidInstallationID means an installation record carried a bad id.
	InvalidInstallationID Code = 132
	// DuplicateValue means a unique-index collision.
	DuplicateValue Code = 137
	// ScriptFailed means hook code rejected the operation.
	ScriptFailed Code = 141
	// ValidationFailed means a schema, required-field or policy violation.
	ValidationFailed Code = 142
	// OperationForbidden means the context is not allowed to perform the
	// operation, such as a write through a read-only master context.
	OperationForbidden Code = 119
	// UsernameMissing means a signup without a username.
	UsernameMissing Code = 200
	// PasswordMissing means a signup without a password.
	PasswordMissing Code = 201
	// UsernameTaken means the username unique check failed.
	UsernameTaken Code = 202
	// EmailTaken means the email unique check failed.
	EmailTaken Code = 203
	// EmailMissing means an operation required an email and none was set.
	EmailMissing Code = 204
	// EmailNotFound means no account is registered under the given email.
	EmailNotFound Code = 205
	// SessionMissing means an operation required an authenticated user.
	SessionMissing Code = 206
	// AccountAlreadyLinked means a third-party identity is bound to a
	// different principal.
	AccountAlreadyLinked Code = 208
	// InvalidSessionToken means a missing, expired or malformed credential.
	InvalidSessionToken Code = 209
	// UnsupportedService means no validator is configured for a supplied
	// third-party auth provider.
	UnsupportedService Code = 252
)

// Error carries a stable code and a human readable message. It never
// exposes internal object graphs or stack traces to clients.
type Error struct {
	Code  Code
	Msg   string
	cause error
}

// New creates an Error with the given code and formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an underlying error, keeping its message.
func Wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded
	}
	return &Error{Code: code, Msg: err.Error(), cause: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Msg, e.Code)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// CodeOf extracts the stable code from err, or Internal when err carries
// no code.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return Internal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	var coded *Error
	return errors.As(err, &coded) && coded.Code == code
}

// Normalize coerces an arbitrary recovered value into an Error. Hook code
// may panic with plain strings or reject with foreign error values; clients
// always see the standard shape.
func Normalize(value interface{}) *Error {
	switch v := value.(type) {
	case nil:
		return nil
	case *Error:
		return v
	case error:
		return Wrap(ScriptFailed, v)
	case string:
		return New(ScriptFailed, "%s", v)
	default:
		return New(ScriptFailed, "%v", v)
	}
}
