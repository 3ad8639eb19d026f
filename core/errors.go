package core

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidCredentials = NewAuthError("invalid credentials")
	ErrSessionExpired     = NewAuthError("session expired")
	ErrForbidden          = &ForbiddenError{Action: "perform this action"}
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// FieldsMap returns the field errors keyed by field name.
func (err ValidationError) FieldsMap() map[string]string {
	fields := make(map[string]string, len(err.Fields))
	for _, fe := range err.Fields {
		fields[fe.Field] = fe.Error
	}
	return fields
}

// AuthError is returned when the caller could not be authenticated.
type AuthError struct {
	msg string
}

func NewAuthError(msg string) error {
	return &AuthError{msg: msg}
}

func (err AuthError) Error() string { return err.msg }

// ForbiddenError is returned when an authenticated caller lacks the capability for an action.
type ForbiddenError struct {
	Action string
}

func NewForbiddenError(action string) error {
	return &ForbiddenError{Action: action}
}

func (err ForbiddenError) Error() string {
	return "not allowed to " + err.Action
}

type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func (err NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", err.Entity, err.ID)
}

// PersistenceError wraps a failure of the persistence collaborator.
type PersistenceError struct {
	Op  string
	Err error
}

func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

func (err PersistenceError) Error() string { return err.Op + ": " + err.Err.Error() }
func (err PersistenceError) Unwrap() error { return err.Err }

// StorageError wraps a failure of the blob collaborator.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func NewStorageError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Path: path, Err: err}
}

func (err StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", err.Op, err.Path, err.Err)
}
func (err StorageError) Unwrap() error { return err.Err }

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}

// IsNotFound reports whether `err` (or its cause) is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether `err` (or its cause) is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
