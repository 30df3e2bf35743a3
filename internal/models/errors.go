package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by all repositories. Typed errors below report
// themselves as matching these via errors.Is, so callers can branch on the
// kind without caring which entity produced it.
var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicate    = errors.New("duplicate record")
	ErrMultipleRows = errors.New("multiple records match")
)

// ValidationError reports a domain-rule violation detected before any I/O.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}

	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NotFoundError reports that an identifier did not resolve to an existing
// row for an operation that requires one.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) succeed for NotFoundError values.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// DuplicateError surfaces a store-level uniqueness violation.
type DuplicateError struct {
	Entity     string
	Constraint string
}

func (e *DuplicateError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("duplicate %s (constraint %s)", e.Entity, e.Constraint)
	}

	return "duplicate " + e.Entity
}

// Is makes errors.Is(err, ErrDuplicate) succeed for DuplicateError values.
func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// MappingError reports a row that could not be converted to or from an
// entity. It signals schema drift and is always a defect, never an
// expected runtime condition.
type MappingError struct {
	Column string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping column %q: %s", e.Column, e.Reason)
}

// StoreError is the catch-all for store-level failures not otherwise
// classified (connection loss, timeout, malformed statement).
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store operation %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
