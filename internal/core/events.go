package core

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
)

// EventAction names a lifecycle transition of an import session.
type EventAction string

const (
	EventParsed       EventAction = "import_parsed"
	EventEdited       EventAction = "import_edited"
	EventValidated    EventAction = "import_validated"
	EventConfirmed    EventAction = "import_confirmed"
	EventCommitFailed EventAction = "import_commit_failed"
	EventDiscarded    EventAction = "import_discarded"
	EventFailed       EventAction = "import_failed"
)

// EventSeverity ranks events for downstream routing.
type EventSeverity string

const (
	EventLow      EventSeverity = "low"
	EventMedium   EventSeverity = "medium"
	EventHigh     EventSeverity = "high"
	EventCritical EventSeverity = "critical"
)

// Event is emitted after a session transition is persisted. A confirmed
// event is the completion signal downstream caches invalidate on.
type Event struct {
	Action     EventAction        `json:"action"`
	Severity   EventSeverity      `json:"severity"`
	SessionID  string             `json:"session_id"`
	Scope      string             `json:"scope"`
	EntityType catalog.EntityType `json:"entity_type"`
	Actor      string             `json:"actor,omitempty"`
	IPAddress  string             `json:"ip_address,omitempty"`
	Status     Status             `json:"status"`
	Errors     int                `json:"errors"`
	Warnings   int                `json:"warnings"`
	Created    int                `json:"created,omitempty"`
	Updated    int                `json:"updated,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	At         time.Time          `json:"at"`
}

func determineSeverity(action EventAction) EventSeverity {
	switch action {
	case EventConfirmed:
		return EventHigh
	case EventCommitFailed, EventFailed:
		return EventCritical
	case EventParsed, EventDiscarded:
		return EventMedium
	default:
		return EventLow
	}
}

// NewEvent builds the event describing s after action.
func NewEvent(ctx context.Context, action EventAction, s *Session, at time.Time) Event {
	e := Event{
		Action:     action,
		Severity:   determineSeverity(action),
		SessionID:  s.ID,
		Scope:      s.Scope,
		EntityType: s.EntityType,
		Actor:      s.Owner,
		IPAddress:  GetIPAddressFromContext(ctx),
		Status:     s.Status(),
		Errors:     len(s.Issues.Errors),
		Warnings:   len(s.Issues.Warnings),
		At:         at,
	}
	if a, ok := ActorFromContext(ctx); ok {
		e.Actor = a.ID
	}
	if s.Summary != nil {
		e.Created, e.Updated = s.Summary.Created, s.Summary.Updated
	}
	switch st := s.State.(type) {
	case FailedState:
		e.Reason = st.Reason
	default:
		if n := len(s.CommitErrors); n > 0 && action == EventCommitFailed {
			e.Reason = s.CommitErrors[n-1].Message
		}
	}
	return e
}

// Notifier receives lifecycle events. Delivery failures are logged by the
// caller and never roll back the transition.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, e Event) error

func (f NotifierFunc) Notify(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// MultiNotifier fans an event out to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
