package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"decode error by code", &DecodeError{Code: DecodeNoMember}, "FILE006"},
		{"decode batch too large", &DecodeError{Code: DecodeBatchTooLarge, Err: ErrBatchTooLarge}, "FILE007"},
		{"wrapped session not found", fmt.Errorf("get: %w", ErrSessionNotFound), "IMP001"},
		{"state error with blocking issues", &StateError{Status: StatusDraft, Operation: "commit", Err: ErrBlockingIssues}, "IMP003"},
		{"plain state error", &StateError{Status: StatusConfirmed, Operation: "commit"}, "IMP002"},
		{"active session exists", &ConcurrencyError{ExistingSessionID: "s1", Err: ErrActiveSessionExists}, "IMP004"},
		{"lock timeout", &ConcurrencyError{Err: fmt.Errorf("lock: %w", ErrLockTimeout)}, "IMP005"},
		{"version conflict", &ConcurrencyError{Err: ErrVersionConflict}, "IMP006"},
		{"bare concurrency error", &ConcurrencyError{Reason: "busy"}, "IMP005"},
		{"dependency cycle", &CommitError{Err: ErrDependencyCycle}, "IMP007"},
		{"too many imports", ErrTooManyImports, "RATE002"},
		{"forbidden", ErrForbidden, "AUTH001"},
		{"duplicate key pattern", errors.New("pq: duplicate key value violates unique constraint"), "DB001"},
		{"unique constraint pattern", errors.New("ERROR: unique constraint violated"), "DB002"},
		{"connection refused pattern", errors.New("dial tcp: connection refused"), "DB004"},
		{"timeout pattern", errors.New("i/o timeout"), "DB006"},
		{"case insensitive matching", errors.New("DUPLICATE KEY value violates"), "DB001"},
		{"validation message pattern", errors.New(`"abc" is not a valid number`), "VAL001"},
		{"unknown error returns default", errors.New("some random internal error"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapError(tt.err); got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrActiveSessionExists)

	expected := "Another import is already open for this entity type (Code: IMP004). Finish or discard the open import before uploading again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"typed error is user facing", ErrSessionNotFound, true},
		{"known pattern is user facing", errors.New("duplicate key"), true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := &StateError{SessionID: "s1", Status: StatusDiscarded, Operation: "edit"}
		userErr := NewUserError(techErr)

		if userErr.User.Code != "IMP002" {
			t.Errorf("Code = %q, want IMP002", userErr.User.Code)
		}
		var se *StateError
		if !errors.As(userErr, &se) {
			t.Error("Unwrap() should return original error")
		}
	})
}
