package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by the services
var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation error")
	ErrDuplicateIdentity  = errors.New("duplicate client identity")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrStoreBusy          = errors.New("store is busy, try again later")
	ErrNoSavedSession     = errors.New("no saved session")
)

// FieldError describes a validation problem with one field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed validation
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Field+": "+fe.Message)
	}
	return "validation: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// DuplicateIdentityError carries the record that already holds the identity key
type DuplicateIdentityError struct {
	ConflictID  uint
	DisplayName string
	DateOfBirth string
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("client %s born %s already exists", e.DisplayName, e.DateOfBirth)
}

func (e *DuplicateIdentityError) Unwrap() error { return ErrDuplicateIdentity }
