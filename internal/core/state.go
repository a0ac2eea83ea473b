package core

// state.go models the session lifecycle as a closed set of state types.
//
//	draft ──validate──▶ validated ──commit──▶ confirmed
//	  ▲  ◀──edit────────┘   │  └──commit failure──▶ validated
//	  └──edit/validate──┘   └──cycle at commit────▶ failed
//	draft|validated ──discard──▶ discarded
//
// Transitions exist only as methods on the states that allow them, so an
// illegal move (confirming a draft, editing a confirmed session) does not
// compile. The Service discovers what a state permits through the small
// capability interfaces below.

import (
	"fmt"
	"time"
)

// Status is the serialized name of a state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusValidated Status = "validated"
	StatusConfirmed Status = "confirmed"
	StatusDiscarded Status = "discarded"
	StatusFailed    Status = "failed"
)

// ActiveStatuses are the statuses counted by the single-active-session rule.
var ActiveStatuses = []Status{StatusDraft, StatusValidated}

// IsActive reports whether s occupies its lane.
func (s Status) IsActive() bool {
	return s == StatusDraft || s == StatusValidated
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusDiscarded || s == StatusFailed
}

// State is a session lifecycle state.
type State interface {
	Status() Status
	state()
}

type DraftState struct{}

type ValidatedState struct{}

type ConfirmedState struct {
	At time.Time
}

type DiscardedState struct {
	At time.Time
}

// FailedState is reached when a commit hits an unrecoverable plan error.
type FailedState struct {
	Reason string
}

func (DraftState) Status() Status     { return StatusDraft }
func (ValidatedState) Status() Status { return StatusValidated }
func (ConfirmedState) Status() Status { return StatusConfirmed }
func (DiscardedState) Status() Status { return StatusDiscarded }
func (FailedState) Status() Status    { return StatusFailed }

func (DraftState) state()     {}
func (ValidatedState) state() {}
func (ConfirmedState) state() {}
func (DiscardedState) state() {}
func (FailedState) state()    {}

// Capabilities.
type (
	editable interface {
		State
		Edit() DraftState
	}
	validatable interface {
		State
		Validate(clean bool) State
	}
	discardable interface {
		State
		Discard(at time.Time) DiscardedState
	}
)

func (DraftState) Edit() DraftState     { return DraftState{} }
func (ValidatedState) Edit() DraftState { return DraftState{} }

func (DraftState) Validate(clean bool) State     { return validateTo(clean) }
func (ValidatedState) Validate(clean bool) State { return validateTo(clean) }

func validateTo(clean bool) State {
	if clean {
		return ValidatedState{}
	}
	return DraftState{}
}

func (DraftState) Discard(at time.Time) DiscardedState     { return DiscardedState{At: at} }
func (ValidatedState) Discard(at time.Time) DiscardedState { return DiscardedState{At: at} }

// Confirm is the only way to reach ConfirmedState.
func (ValidatedState) Confirm(at time.Time) ConfirmedState { return ConfirmedState{At: at} }

// CommitFailed keeps the session validated after a reverted commit attempt.
func (ValidatedState) CommitFailed() ValidatedState { return ValidatedState{} }

// Fail moves a session to the terminal failed state.
func (ValidatedState) Fail(reason string) FailedState { return FailedState{Reason: reason} }

// stateFromRecord rebuilds a State from its persisted form.
func stateFromRecord(status Status, confirmedAt, discardedAt *time.Time, failure string) (State, error) {
	switch status {
	case StatusDraft:
		return DraftState{}, nil
	case StatusValidated:
		return ValidatedState{}, nil
	case StatusConfirmed:
		st := ConfirmedState{}
		if confirmedAt != nil {
			st.At = *confirmedAt
		}
		return st, nil
	case StatusDiscarded:
		st := DiscardedState{}
		if discardedAt != nil {
			st.At = *discardedAt
		}
		return st, nil
	case StatusFailed:
		return FailedState{Reason: failure}, nil
	default:
		return nil, fmt.Errorf("unknown session status %q", status)
	}
}
