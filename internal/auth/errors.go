// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by repositories when a uniqueness constraint rejects a write.
var ErrConflict = errors.New("already exists")

// Kind classifies an authentication failure.
type Kind int

// Failure kinds. The zero value is never produced by this package.
const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindInvalidCredentials
	KindRateLimited
	KindStorage
)

// Error codes attached to classified failures.
const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeConflict           = "CONFLICT"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeRateLimited        = "RATE_LIMITED"
	CodeStorage            = "STORAGE_FAILED"
)

// Client-facing messages that never vary with the underlying cause.
const (
	MsgInvalidCredentials = "invalid username or password"
	MsgRateLimited        = "too many requests"
	MsgInternal           = "internal error"
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindRateLimited:
		return "rate_limited"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Message is safe to return to clients.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// ValidationError reports malformed input on the named field.
func ValidationError(field, message string) error {
	return oops.Code(CodeValidation).
		With("field", field).
		Wrap(&Error{Kind: KindValidation, Message: message})
}

// ConflictError reports a duplicate username or email.
func ConflictError(message string) error {
	return oops.Code(CodeConflict).
		Wrap(&Error{Kind: KindConflict, Message: message})
}

// InvalidCredentialsError is the single failure returned for every rejected login.
func InvalidCredentialsError() error {
	return oops.Code(CodeInvalidCredentials).
		Wrap(&Error{Kind: KindInvalidCredentials, Message: MsgInvalidCredentials})
}

// RateLimitedError reports that the caller exceeded its request budget.
func RateLimitedError() error {
	return oops.Code(CodeRateLimited).
		Wrap(&Error{Kind: KindRateLimited, Message: MsgRateLimited})
}

// StorageError wraps a persistence failure. The cause is kept for logging only.
func StorageError(operation string, cause error) error {
	return oops.Code(CodeStorage).
		With("operation", operation).
		Wrap(errors.Join(&Error{Kind: KindStorage, Message: MsgInternal}, cause))
}

// KindOf classifies err. Errors that carry no classification are treated as storage failures.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindStorage
}

// PublicMessage returns the message a client may see for err.
func PublicMessage(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != KindStorage {
		return ae.Message
	}
	return MsgInternal
}
