package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrPersistence       = errors.New("persistence failure")
	ErrPaymentInit       = errors.New("payment initiation failed")
	ErrConfiguration     = errors.New("configuration error")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrPaymentInProgress = errors.New("payment initiation already in progress")
	ErrDuplicateRef      = errors.New("duplicate booking reference")
	ErrPaymentMismatch   = errors.New("payment does not match booking")
)

// ValidationError carries per-field messages.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type CapacityError struct {
	PackageID int
	Requested int
	Available int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: package %d has %d places left, %d requested", ErrCapacityExceeded, e.PackageID, e.Available, e.Requested)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

type TransitionError struct {
	From PaymentStatus
	To   PaymentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
