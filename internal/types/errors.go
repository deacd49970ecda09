// Package types holds the data model shared across the store: documents,
// revisions, attachments and the sentinel errors every package maps its
// failures onto.
package types

import (
	"database/sql"
	"errors"
	"fmt"
)

// Sentinel errors callers use with errors.Is, never string matching.
var (
	ErrBadRequest         = errors.New("bad request")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrForbidden          = errors.New("forbidden")
	ErrStorageFailure     = errors.New("storage failure")
	ErrSchemaIncompatible = errors.New("schema incompatible")
)

// StatusError pairs a taxonomy error with the validator-overridable
// HTTP-style status code and message call sites are expected to surface.
type StatusError struct {
	Status  int
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("status %d", e.Status)
}

func (e *StatusError) Unwrap() error { return e.Err }

// NewStatusError builds a StatusError, deriving a taxonomy Err from the
// status code when one isn't supplied explicitly.
func NewStatusError(status int, message string) *StatusError {
	return &StatusError{Status: status, Message: message, Err: errForStatus(status)}
}

func errForStatus(status int) error {
	switch {
	case status == 400:
		return ErrBadRequest
	case status == 404:
		return ErrNotFound
	case status == 409:
		return ErrConflict
	case status >= 300 && status < 500:
		return ErrForbidden
	case status >= 500:
		return ErrStorageFailure
	default:
		return nil
	}
}

// StatusCode derives an HTTP-style status code from an error, defaulting
// to 500 for anything not in the taxonomy (mirrors an engine failure).
func StatusCode(err error) int {
	if err == nil {
		return 200
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	switch {
	case errors.Is(err, ErrBadRequest):
		return 400
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrConflict):
		return 409
	case errors.Is(err, ErrForbidden):
		return 403
	case errors.Is(err, ErrSchemaIncompatible):
		return 500
	default:
		return 500
	}
}

// WrapDBError normalizes a raw storage-engine error into the taxonomy,
// converting "no rows" into ErrNotFound and everything else into
// ErrStorageFailure, both tagged with the failing operation.
func WrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
}
