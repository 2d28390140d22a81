package service

import (
	"errors"
	"fmt"
	"strings"

	"ispmanager/internal/repository"
	"ispmanager/internal/validation"
)

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrWrongCurrentPassword = errors.New("current password is incorrect")
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrNotFound             = repository.ErrNotFound
	ErrDuplicateName        = errors.New("name already exists")
	ErrInUse                = errors.New("still referenced")
	ErrSystemRole           = errors.New("system roles cannot be deleted or renamed")
	ErrSelfDelete           = errors.New("cannot delete your own account")
	ErrValidation           = errors.New("validation failed")
)

// CredentialCause is the internal reason a login was refused. It is logged,
// never returned to the caller.
type CredentialCause string

const (
	CauseUnknownUser      CredentialCause = "unknown_user"
	CauseInactive         CredentialCause = "inactive"
	CausePasswordMismatch CredentialCause = "password_mismatch"
)

// CredentialError reads the same for every cause so callers cannot tell
// an unknown email from a wrong password.
type CredentialError struct {
	Cause CredentialCause
}

func (e *CredentialError) Error() string { return ErrInvalidCredentials.Error() }

func (e *CredentialError) Is(target error) bool { return target == ErrInvalidCredentials }

// TokenErrorKind classifies a rejected bearer token
type TokenErrorKind string

const (
	TokenExpired      TokenErrorKind = "expired"
	TokenMalformed    TokenErrorKind = "malformed"
	TokenBadSignature TokenErrorKind = "bad_signature"
)

type TokenError struct {
	Kind TokenErrorKind
	Err  error
}

func (e *TokenError) Error() string { return "invalid token: " + string(e.Kind) }

func (e *TokenError) Unwrap() error { return e.Err }

func (e *TokenError) Is(target error) bool { return target == ErrUnauthenticated }

// ConflictReason distinguishes the two kinds of write conflict
type ConflictReason string

const (
	ReasonDuplicateName ConflictReason = "duplicate_name"
	ReasonInUse         ConflictReason = "in_use"
)

type ConflictError struct {
	Reason ConflictReason
	Entity string
	Name   string
	Count  int64 // referencing rows, set for ReasonInUse
}

func (e *ConflictError) Error() string {
	if e.Reason == ReasonInUse {
		switch e.Entity {
		case "role":
			return fmt.Sprintf("cannot delete role '%s': assigned to %d user(s)", e.Name, e.Count)
		case "permission":
			return fmt.Sprintf("cannot delete permission '%s': assigned to %d role(s)", e.Name, e.Count)
		}
		return fmt.Sprintf("%s '%s' is referenced by %d row(s)", e.Entity, e.Name, e.Count)
	}
	return fmt.Sprintf("%s '%s' already exists", e.Entity, e.Name)
}

func (e *ConflictError) Is(target error) bool {
	switch e.Reason {
	case ReasonDuplicateName:
		return target == ErrDuplicateName
	case ReasonInUse:
		return target == ErrInUse
	}
	return false
}

func duplicate(entity, name string) error {
	return &ConflictError{Reason: ReasonDuplicateName, Entity: entity, Name: name}
}

func inUse(entity, name string, count int64) error {
	return &ConflictError{Reason: ReasonInUse, Entity: entity, Name: name, Count: count}
}

// ValidationError carries per-field messages for a rejected request
type ValidationError struct {
	Fields map[string]string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return "validation failed: " + e.Err.Error()
	}
	return "validation failed"
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func validate(req interface{}) error {
	if err := validation.Struct(req); err != nil {
		return &ValidationError{Fields: validation.Messages(err), Err: err}
	}
	return nil
}

func invalidField(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}, Err: errors.New(field + " " + msg)}
}

// trimmed returns a copy of s without surrounding space, nil stays nil
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// notFound wraps ErrNotFound with the entity that was missing
func notFound(entity string, id uint) error {
	return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
}
