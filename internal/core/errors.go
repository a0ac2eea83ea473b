package core

// errors.go defines the typed failures of the import pipeline.
//
// Only DecodeError, ConcurrencyError and StateError (plus authorization and
// lookup sentinels) are returned to callers as hard failures. Validation
// findings and commit failures are recorded on the session as data.

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound     = errors.New("import session not found")
	ErrForbidden           = errors.New("actor is not permitted to perform this operation")
	ErrBatchTooLarge       = errors.New("batch too large")
	ErrFileTooLarge        = errors.New("file too large")
	ErrBlockingIssues      = errors.New("session has blocking validation errors")
	ErrDependencyCycle     = errors.New("dependency cycle in batch")
	ErrActiveSessionExists = errors.New("an active import session already exists for this lane")
	ErrLockTimeout         = errors.New("timed out waiting for session lock")
	ErrVersionConflict     = errors.New("session was modified concurrently")
	ErrUnknownEntityType   = errors.New("unknown entity type")
	ErrMissingScope        = errors.New("scope is required")
	ErrRowNotFound         = errors.New("draft row not found")
	ErrReportUnavailable   = errors.New("report unavailable until the session has been validated")
	ErrSourceUnavailable   = errors.New("source file was not archived")
	ErrUnknownField        = errors.New("unknown field")
)

// DecodeCode classifies a DecodeError.
type DecodeCode string

const (
	DecodeEmpty         DecodeCode = "empty_file"
	DecodeNoHeader      DecodeCode = "no_header"
	DecodeEncoding      DecodeCode = "encoding_error"
	DecodeMalformed     DecodeCode = "invalid_csv"
	DecodeNoMember      DecodeCode = "no_matching_member"
	DecodeArchive       DecodeCode = "invalid_archive"
	DecodeBatchTooLarge DecodeCode = "batch_too_large"
	DecodeFileTooLarge  DecodeCode = "file_too_large"
)

// DecodeError is returned when uploaded bytes cannot be turned into rows.
// No session is created.
type DecodeError struct {
	Code   DecodeCode
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "decode: " + string(e.Code)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StateError is returned when an operation is not allowed from the
// session's current status.
type StateError struct {
	SessionID string
	Status    Status
	Operation string
	Err       error // optional cause, e.g. ErrBlockingIssues
}

func (e *StateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot %s session %s in status %s: %v", e.Operation, e.SessionID, e.Status, e.Err)
	}
	return fmt.Sprintf("cannot %s session %s in status %s", e.Operation, e.SessionID, e.Status)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// ConcurrencyError reports lock contention, a lost optimistic update, or an
// attempt to open a second active session in an occupied lane. Callers retry
// or reuse ExistingSessionID.
type ConcurrencyError struct {
	SessionID         string
	ExistingSessionID string
	Reason            string
	Err               error
}

func (e *ConcurrencyError) Error() string {
	msg := "concurrency conflict"
	if e.SessionID != "" {
		msg += " on session " + e.SessionID
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.ExistingSessionID != "" {
		msg += " (existing session " + e.ExistingSessionID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConcurrencyError) Unwrap() error {
	return e.Err
}

// CommitError is a failure while materializing a draft. RowIndex is 0 when
// the failure is not attributable to a single row.
type CommitError struct {
	RowIndex int
	Err      error
}

func (e *CommitError) Error() string {
	if e.RowIndex > 0 {
		return fmt.Sprintf("commit failed at row %d: %v", e.RowIndex, e.Err)
	}
	return fmt.Sprintf("commit failed: %v", e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}
