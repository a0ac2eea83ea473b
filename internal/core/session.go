package core

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
)

// ValueKind tags a mapped field value.
type ValueKind string

const (
	ValueMissing ValueKind = "missing"
	ValueInvalid ValueKind = "invalid"
	ValueString  ValueKind = "string"
	ValueNumber  ValueKind = "number"
	ValueBool    ValueKind = "bool"
	ValueEnum    ValueKind = "enum"
)

// Value is a coerced field value. Missing and Invalid are explicit markers
// left by the mapper for the validator to report.
type Value struct {
	Kind ValueKind `json:"kind"`
	Raw  string    `json:"raw,omitempty"`
	Str  string    `json:"str,omitempty"`
	Num  float64   `json:"num,omitempty"`
	Bool bool      `json:"bool,omitempty"`
}

// Present reports whether the value was supplied and coerced.
func (v Value) Present() bool {
	return v.Kind != ValueMissing && v.Kind != ValueInvalid
}

// Usable reports whether the value can take part in a natural key.
func (v Value) Usable() bool {
	return v.Kind == ValueString || v.Kind == ValueEnum
}

// Text returns the value rendered as a string.
func (v Value) Text() string {
	switch v.Kind {
	case ValueString, ValueEnum:
		return v.Str
	case ValueNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Raw
	}
}

// Native returns the Go value written to the catalog.
func (v Value) Native() (any, bool) {
	switch v.Kind {
	case ValueString, ValueEnum:
		return v.Str, true
	case ValueNumber:
		return v.Num, true
	case ValueBool:
		return v.Bool, true
	default:
		return nil, false
	}
}

// DraftRecord is one candidate record. RowID is the provisional row
// identifier; Refs holds unresolved reference tokens (the target's natural
// key) by reference name.
type DraftRecord struct {
	RowID    string                        `json:"row_id"`
	RowIndex int                           `json:"row_index"`
	Raw      map[string]string             `json:"raw"`
	Values   map[string]Value              `json:"values"`
	Refs     map[string]catalog.NaturalKey `json:"refs,omitempty"`
}

// Draft is the mutable candidate set held by a session.
type Draft struct {
	Columns []string      `json:"columns"`
	Records []DraftRecord `json:"records"`
	Skipped []int         `json:"skipped,omitempty"` // blank source rows
	NextRow int           `json:"next_row"`          // next provisional row number
}

// Find returns the position of the record with the given row id.
func (d Draft) Find(rowID string) int {
	for i, r := range d.Records {
		if r.RowID == rowID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of d.
func (d Draft) Clone() Draft {
	out := Draft{NextRow: d.NextRow}
	if d.Columns != nil {
		out.Columns = append([]string{}, d.Columns...)
	}
	if d.Skipped != nil {
		out.Skipped = append([]int{}, d.Skipped...)
	}
	if d.Records != nil {
		out.Records = make([]DraftRecord, len(d.Records))
		for i, r := range d.Records {
			out.Records[i] = r.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of r.
func (r DraftRecord) Clone() DraftRecord {
	out := DraftRecord{RowID: r.RowID, RowIndex: r.RowIndex}
	if r.Raw != nil {
		out.Raw = make(map[string]string, len(r.Raw))
		for k, v := range r.Raw {
			out.Raw[k] = v
		}
	}
	if r.Values != nil {
		out.Values = make(map[string]Value, len(r.Values))
		for k, v := range r.Values {
			out.Values[k] = v
		}
	}
	if r.Refs != nil {
		out.Refs = make(map[string]catalog.NaturalKey, len(r.Refs))
		for k, v := range r.Refs {
			out.Refs[k] = v
		}
	}
	return out
}

// Severity classifies an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// IssueCode identifies a validation or commit finding.
type IssueCode string

// Errors.
const (
	CodeRequired          IssueCode = "REQUIRED"
	CodeInvalidNumber     IssueCode = "INVALID_NUMBER"
	CodeInvalidBoolean    IssueCode = "INVALID_BOOLEAN"
	CodeInvalidEnum       IssueCode = "INVALID_ENUM"
	CodeOutOfRange        IssueCode = "OUT_OF_RANGE"
	CodeTooLong           IssueCode = "TOO_LONG"
	CodeDuplicateInBatch  IssueCode = "DUPLICATE_IN_BATCH"
	CodeDuplicateExisting IssueCode = "DUPLICATE_EXISTING"
	CodeRefNotFound       IssueCode = "REF_NOT_FOUND"
	CodeRefSelf           IssueCode = "REF_SELF"
	CodeRefCycle          IssueCode = "REF_CYCLE"
	CodeCommitFailed      IssueCode = "COMMIT_FAILED"
)

// Warnings.
const (
	CodeUnknownColumn    IssueCode = "UNKNOWN_COLUMN"
	CodeInactiveMatch    IssueCode = "INACTIVE_MATCH"
	CodeRefInactive      IssueCode = "REF_INACTIVE"
	CodeAboveRecommended IssueCode = "ABOVE_RECOMMENDED"
	CodeEmptyRowSkipped  IssueCode = "EMPTY_ROW_SKIPPED"
)

// Issue is one finding. RowIndex 0 means the finding is not tied to a row.
type Issue struct {
	RowIndex int       `json:"row_index"`
	Field    string    `json:"field"`
	Code     IssueCode `json:"code"`
	Message  string    `json:"message"`
}

// Issues holds the blocking and non-blocking findings of one validation run.
type Issues struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// HasErrors reports whether any blocking issue exists.
func (i Issues) HasErrors() bool {
	return len(i.Errors) > 0
}

// CommitSummary counts what a successful commit did.
type CommitSummary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// Session is one import attempt.
type Session struct {
	ID         string
	Owner      string
	Scope      string
	EntityType catalog.EntityType
	FileName   string
	SourceKey  string // blob key of the archived upload, if any

	State        State
	Draft        Draft
	Issues       Issues
	CommitErrors []Issue
	Summary      *CommitSummary

	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ValidatedAt *time.Time
}

// Status returns the session's current status.
func (s *Session) Status() Status {
	if s.State == nil {
		return StatusDraft
	}
	return s.State.Status()
}

// ConfirmedAt returns when the session was confirmed, or nil.
func (s *Session) ConfirmedAt() *time.Time {
	if st, ok := s.State.(ConfirmedState); ok {
		at := st.At
		return &at
	}
	return nil
}

// Lane identifies the (owner, scope, entity type) tuple limited to one
// active session.
func (s *Session) Lane() Lane {
	return Lane{Owner: s.Owner, Scope: s.Scope, EntityType: s.EntityType}
}

// Lane is the single-active-session partition.
type Lane struct {
	Owner      string
	Scope      string
	EntityType catalog.EntityType
}

// SessionRecord is the persisted and serialized form of a Session.
type SessionRecord struct {
	ID            string             `json:"id"`
	Owner         string             `json:"owner"`
	Scope         string             `json:"scope"`
	EntityType    catalog.EntityType `json:"entity_type"`
	FileName      string             `json:"file_name,omitempty"`
	SourceKey     string             `json:"source_key,omitempty"`
	Status        Status             `json:"status"`
	FailureReason string             `json:"failure_reason,omitempty"`
	Draft         Draft              `json:"draft"`
	Issues        Issues             `json:"issues"`
	CommitErrors  []Issue            `json:"commit_errors,omitempty"`
	Summary       *CommitSummary     `json:"summary,omitempty"`
	Version       int64              `json:"version"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	ValidatedAt   *time.Time         `json:"validated_at,omitempty"`
	ConfirmedAt   *time.Time         `json:"confirmed_at,omitempty"`
	DiscardedAt   *time.Time         `json:"discarded_at,omitempty"`
}

// Record converts s to its persisted form.
func (s *Session) Record() SessionRecord {
	rec := SessionRecord{
		ID:           s.ID,
		Owner:        s.Owner,
		Scope:        s.Scope,
		EntityType:   s.EntityType,
		FileName:     s.FileName,
		SourceKey:    s.SourceKey,
		Status:       s.Status(),
		Draft:        s.Draft,
		Issues:       s.Issues,
		CommitErrors: s.CommitErrors,
		Summary:      s.Summary,
		Version:      s.Version,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		ValidatedAt:  s.ValidatedAt,
		ConfirmedAt:  s.ConfirmedAt(),
	}
	switch st := s.State.(type) {
	case DiscardedState:
		at := st.At
		rec.DiscardedAt = &at
	case FailedState:
		rec.FailureReason = st.Reason
	}
	return rec
}

// SessionFromRecord rebuilds a Session from its persisted form.
func SessionFromRecord(rec SessionRecord) (*Session, error) {
	st, err := stateFromRecord(rec.Status, rec.ConfirmedAt, rec.DiscardedAt, rec.FailureReason)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:           rec.ID,
		Owner:        rec.Owner,
		Scope:        rec.Scope,
		EntityType:   rec.EntityType,
		FileName:     rec.FileName,
		SourceKey:    rec.SourceKey,
		State:        st,
		Draft:        rec.Draft,
		Issues:       rec.Issues,
		CommitErrors: rec.CommitErrors,
		Summary:      rec.Summary,
		Version:      rec.Version,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
		ValidatedAt:  rec.ValidatedAt,
	}, nil
}

// MarshalJSON renders the session in its record form.
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Record())
}

// UnmarshalJSON parses the record form.
func (s *Session) UnmarshalJSON(data []byte) error {
	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	out, err := SessionFromRecord(rec)
	if err != nil {
		return err
	}
	*s = *out
	return nil
}

// Clone returns a deep copy of s.
func (s *Session) Clone() (*Session, error) {
	data, err := json.Marshal(s.Record())
	if err != nil {
		return nil, err
	}
	var out Session
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
