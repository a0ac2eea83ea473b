package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/catalogimport/internal/blob"
	"github.com/JonMunkholm/catalogimport/internal/catalog"
	"github.com/JonMunkholm/catalogimport/internal/logging"
)

// DefaultSessionLockWait bounds how long an operation waits for another
// operation on the same session.
const DefaultSessionLockWait = 5 * time.Second

// DefaultCommitTimeout bounds one commit attempt.
const DefaultCommitTimeout = 2 * time.Minute

// Limits bounds the work a single operation may do.
type Limits struct {
	MaxRows       int           // Non-blank rows per upload (0 = DefaultMaxRows)
	MaxBytes      int64         // Upload size (0 = DefaultMaxFileSize)
	LockWait      time.Duration // Per-session lock wait (0 = DefaultSessionLockWait)
	ScopeLockWait time.Duration // Commit scope lock wait (0 = DefaultScopeLockWait)
	CommitTimeout time.Duration // One commit attempt (0 = DefaultCommitTimeout)
}

// Service is the import lifecycle controller. Every mutating operation on a
// session runs under that session's lock; commits additionally hold the
// scope lock inside the CommitEngine.
type Service struct {
	store    SessionStore
	catalog  catalog.Reader
	engine   *CommitEngine
	locks    *KeyedMutex
	limiter  *ImportLimiter
	blobs    blob.Store
	notifier Notifier
	observer Observer
	limits   Limits

	now   func() time.Time
	newID func() string
}

// Option configures a Service.
type Option func(*Service)

// WithBlobStore archives every uploaded file to bs.
func WithBlobStore(bs blob.Store) Option {
	return func(s *Service) { s.blobs = bs }
}

// WithNotifier delivers lifecycle events to n.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithObserver reports stage timings and counts to o.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLimits overrides the default operation limits.
func WithLimits(l Limits) Option {
	return func(s *Service) { s.limits = l }
}

// WithLimiter bounds concurrent parse, validate and commit work.
func WithLimiter(l *ImportLimiter) Option {
	return func(s *Service) {
		if l != nil {
			s.limiter = l
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the controller. cat must also implement
// catalog.Transactor or catalog.Compensator for commits to succeed.
func NewService(store SessionStore, cat catalog.Reader, opts ...Option) *Service {
	s := &Service{
		store:    store,
		catalog:  cat,
		locks:    NewKeyedMutex(),
		limiter:  NewImportLimiter(DefaultMaxConcurrentImports, DefaultMaxWaitTime),
		observer: nopObserver{},
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = NewCommitEngine(cat, s.locks)
	s.engine.LockWait = s.limits.ScopeLockWait
	return s
}

// ParseRequest is one uploaded file.
type ParseRequest struct {
	Scope      string
	EntityType catalog.EntityType
	FileName   string
	Data       []byte
}

// Parse decodes, maps and validates an upload into a new draft session.
// Validation findings are returned on the session; only decode, lane and
// authorization failures are errors.
func (s *Service) Parse(ctx context.Context, actor Actor, req ParseRequest) (sess *Session, err error) {
	start := time.Now()
	ctx = ContextWithActor(ctx, actor)
	log := logging.WithFields(ctx, "op", StageParse, "scope", req.Scope, "entity_type", req.EntityType, "file", req.FileName, "actor", actor.ID)
	defer func() { s.finish(log, StageParse, req.EntityType, start, err) }()

	if err := s.authorize(actor, nil); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Scope) == "" {
		return nil, ErrMissingScope
	}
	schema, ok := Get(req.EntityType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, req.EntityType)
	}

	lane := Lane{Owner: actor.ID, Scope: req.Scope, EntityType: req.EntityType}
	if err := s.checkLane(ctx, lane); err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	dec := Decoder{MaxRows: s.limits.MaxRows, MaxBytes: s.limits.MaxBytes}
	file, err := dec.Decode(req.Data, req.EntityType)
	if err != nil {
		return nil, err
	}
	draft, err := NewDraft(ctx, schema, file)
	if err != nil {
		return nil, fmt.Errorf("map rows: %w", err)
	}
	issues, err := NewValidator(schema, s.catalog).Validate(ctx, req.Scope, draft)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess = &Session{
		ID:          s.newID(),
		Owner:       actor.ID,
		Scope:       req.Scope,
		EntityType:  req.EntityType,
		FileName:    req.FileName,
		State:       DraftState{},
		Draft:       draft,
		Issues:      issues,
		CreatedAt:   now,
		UpdatedAt:   now,
		ValidatedAt: &now,
	}
	sess.SourceKey = s.archive(ctx, log, sess, req.Data)

	if err := s.store.Create(ctx, sess); err != nil {
		if sess.SourceKey != "" {
			if _, derr := s.blobs.Delete(context.WithoutCancel(ctx), sess.SourceKey); derr != nil {
				log.Warn("failed to remove archived upload", "key", sess.SourceKey, "error", derr)
			}
		}
		return nil, err
	}

	s.observer.ObserveRows(req.EntityType, len(draft.Records))
	s.observer.ObserveIssues(req.EntityType, issues)
	log = log.With("session_id", sess.ID, "rows", len(draft.Records), "errors", len(issues.Errors), "warnings", len(issues.Warnings))
	if len(issues.Errors) > 0 {
		log = log.With("codes", sortedCodes(issues.Errors))
	}
	s.emit(ctx, log, EventParsed, sess, start)
	return sess, nil
}

// checkLane fails fast when the lane is occupied. The store re-checks
// atomically on Create.
func (s *Service) checkLane(ctx context.Context, lane Lane) error {
	open, err := s.store.List(ctx, SessionFilter{
		Scope:      lane.Scope,
		Owner:      lane.Owner,
		EntityType: lane.EntityType,
		Statuses:   ActiveStatuses,
		Limit:      1,
	})
	if err != nil {
		return fmt.Errorf("check open imports: %w", err)
	}
	if len(open) > 0 {
		return &ConcurrencyError{
			ExistingSessionID: open[0].ID,
			Reason:            "an import is already open for this lane",
			Err:               ErrActiveSessionExists,
		}
	}
	return nil
}

// archive stores the upload in the blob store. Failures are logged; the
// import proceeds without an archived source.
func (s *Service) archive(ctx context.Context, log *slog.Logger, sess *Session, data []byte) string {
	if s.blobs == nil {
		return ""
	}
	key := blob.ImportKey(sess.Scope, sess.ID, sess.FileName)
	_, err := s.blobs.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
		ContentType: blob.ContentTypeFor(sess.FileName),
		Metadata: map[string]string{
			"owner":       sess.Owner,
			"entity_type": string(sess.EntityType),
		},
	})
	if err != nil {
		log.Warn("failed to archive upload", "key", key, "error", err)
		return ""
	}
	return key
}

// RowUpdate replaces field values of one draft row. Values are raw text,
// coerced the same way as uploaded cells; "" clears a field.
type RowUpdate struct {
	RowID  string            `json:"row_id"`
	Fields map[string]string `json:"fields"`
}

// DraftPatch is one operator edit. Deletes apply first, then updates, then
// inserts. Inserted rows get fresh provisional row ids.
type DraftPatch struct {
	Updates []RowUpdate         `json:"updates,omitempty"`
	Inserts []map[string]string `json:"inserts,omitempty"`
	Deletes []string            `json:"deletes,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p DraftPatch) Empty() bool {
	return len(p.Updates) == 0 && len(p.Inserts) == 0 && len(p.Deletes) == 0
}

// EditDraft applies patch and re-validates. The session returns to draft
// and previous commit errors are cleared.
func (s *Service) EditDraft(ctx context.Context, actor Actor, id string, patch DraftPatch) (sess *Session, err error) {
	start := time.Now()
	ctx = ContextWithActor(ctx, actor)
	log := logging.WithFields(ctx, "op", StageEdit, "session_id", id, "actor", actor.ID)

	sess, unlock, err := s.acquire(ctx, actor, id)
	if err != nil {
		s.finish(log, StageEdit, "", start, err)
		return nil, err
	}
	defer unlock()
	et := sess.EntityType
	defer func() { s.finish(log, StageEdit, et, start, err) }()

	ed, ok := sess.State.(editable)
	if !ok {
		return nil, &StateError{SessionID: id, Status: sess.Status(), Operation: "edit"}
	}
	schema, ok := Get(sess.EntityType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, sess.EntityType)
	}

	draft, err := applyPatch(schema, sess.Draft, patch)
	if err != nil {
		return nil, err
	}
	if err := s.checkRowCount(draft); err != nil {
		return nil, err
	}
	issues, err := NewValidator(schema, s.catalog).Validate(ctx, sess.Scope, draft)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess.Draft = draft
	sess.Issues = issues
	sess.ValidatedAt = &now
	sess.CommitErrors = nil
	sess.State = ed.Edit()
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}

	log = log.With("updates", len(patch.Updates), "inserts", len(patch.Inserts), "deletes", len(patch.Deletes),
		"errors", len(issues.Errors), "warnings", len(issues.Warnings))
	s.emit(ctx, log, EventEdited, sess, start)
	return sess, nil
}

// applyPatch returns a patched copy of d. d is never modified.
func applyPatch(schema EntitySchema, d Draft, patch DraftPatch) (Draft, error) {
	out := d.Clone()
	fieldCols, _ := ResolveColumns(schema, out.Columns)

	if len(patch.Deletes) > 0 {
		drop := make(map[string]bool, len(patch.Deletes))
		for _, rowID := range patch.Deletes {
			if out.Find(rowID) < 0 {
				return Draft{}, fmt.Errorf("delete %s: %w", rowID, ErrRowNotFound)
			}
			drop[rowID] = true
		}
		kept := out.Records[:0]
		for _, r := range out.Records {
			if !drop[r.RowID] {
				kept = append(kept, r)
			}
		}
		out.Records = kept
	}

	for _, u := range patch.Updates {
		i := out.Find(u.RowID)
		if i < 0 {
			return Draft{}, fmt.Errorf("update %s: %w", u.RowID, ErrRowNotFound)
		}
		rec := out.Records[i]
		if rec.Values == nil {
			rec.Values = make(map[string]Value, len(schema.Fields))
		}
		if rec.Raw == nil {
			rec.Raw = make(map[string]string, len(u.Fields))
		}
		for _, name := range sortedKeys(u.Fields) {
			spec, ok := schema.Field(name)
			if !ok {
				return Draft{}, fmt.Errorf("update %s: %w: %q", u.RowID, ErrUnknownField, name)
			}
			raw := u.Fields[name]
			col, ok := fieldCols[name]
			if !ok {
				col = name
			}
			rec.Raw[col] = raw
			rec.Values[name] = Coerce(spec, raw)
		}
		rec.Refs = referenceTokens(schema, rec)
		out.Records[i] = rec
	}

	if len(patch.Inserts) > 0 {
		next := nextRowIndex(out)
		m := Mapper{Schema: schema}
		for _, fields := range patch.Inserts {
			cols := make(map[string]string, len(fields))
			for name := range fields {
				if _, ok := schema.Field(name); !ok {
					return Draft{}, fmt.Errorf("insert: %w: %q", ErrUnknownField, name)
				}
				cols[name] = name
			}
			raw := make(map[string]string, len(fields))
			for k, v := range fields {
				raw[k] = v
			}
			out.Records = append(out.Records, m.MapRecord(cols, RowID(out.NextRow), next, raw))
			out.NextRow++
			next++
		}
	}
	return out, nil
}

// nextRowIndex returns the row index given to the next inserted row: one
// past every source row, skipped rows included.
func nextRowIndex(d Draft) int {
	last := 0
	for _, r := range d.Records {
		if r.RowIndex > last {
			last = r.RowIndex
		}
	}
	for _, idx := range d.Skipped {
		if idx > last {
			last = idx
		}
	}
	return last + 1
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate re-runs validation, replacing the previous findings. The session
// becomes validated when no blocking issue remains, draft otherwise.
func (s *Service) Validate(ctx context.Context, actor Actor, id string) (sess *Session, err error) {
	start := time.Now()
	ctx = ContextWithActor(ctx, actor)
	log := logging.WithFields(ctx, "op", StageValidate, "session_id", id, "actor", actor.ID)

	sess, unlock, err := s.acquire(ctx, actor, id)
	if err != nil {
		s.finish(log, StageValidate, "", start, err)
		return nil, err
	}
	defer unlock()
	et := sess.EntityType
	defer func() { s.finish(log, StageValidate, et, start, err) }()

	v, ok := sess.State.(validatable)
	if !ok {
		return nil, &StateError{SessionID: id, Status: sess.Status(), Operation: "validate"}
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	if err := s.revalidate(ctx, sess, v); err != nil {
		return nil, err
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}

	log = log.With("status", sess.Status(), "errors", len(sess.Issues.Errors), "warnings", len(sess.Issues.Warnings))
	s.emit(ctx, log, EventValidated, sess, start)
	return sess, nil
}

// checkRowCount applies the upload row ceiling to a draft of any origin.
func (s *Service) checkRowCount(d Draft) error {
	limit := s.limits.MaxRows
	if limit <= 0 {
		limit = DefaultMaxRows
	}
	if n := len(d.Records); n > limit {
		return fmt.Errorf("draft has %d rows, limit is %d: %w", n, limit, ErrBatchTooLarge)
	}
	return nil
}

// revalidate refreshes sess.Issues and moves it to validated or draft.
func (s *Service) revalidate(ctx context.Context, sess *Session, v validatable) error {
	if err := s.checkRowCount(sess.Draft); err != nil {
		return err
	}
	schema, ok := Get(sess.EntityType)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEntityType, sess.EntityType)
	}
	issues, err := NewValidator(schema, s.catalog).Validate(ctx, sess.Scope, sess.Draft)
	if err != nil {
		return err
	}
	now := s.now()
	sess.Issues = issues
	sess.ValidatedAt = &now
	sess.State = v.Validate(!issues.HasErrors())
	s.observer.ObserveIssues(sess.EntityType, issues)
	return nil
}

// Commit re-validates the draft and, when clean, applies it to the catalog
// all-or-nothing.
//
// Blocking findings leave the session in draft and return a *StateError
// wrapping ErrBlockingIssues. A failed write is recorded as a COMMIT_FAILED
// entry in CommitErrors and the session stays validated; the call itself
// succeeds so the caller can read the failure from the session. A dependency
// cycle moves the session to failed.
func (s *Service) Commit(ctx context.Context, actor Actor, id string) (sess *Session, err error) {
	start := time.Now()
	ctx = ContextWithActor(ctx, actor)
	log := logging.WithFields(ctx, "op", StageCommit, "session_id", id, "actor", actor.ID)

	sess, unlock, err := s.acquire(ctx, actor, id)
	if err != nil {
		s.finish(log, StageCommit, "", start, err)
		return nil, err
	}
	defer unlock()
	et := sess.EntityType
	defer func() { s.finish(log, StageCommit, et, start, err) }()

	v, ok := sess.State.(validatable)
	if !ok {
		return nil, &StateError{SessionID: id, Status: sess.Status(), Operation: "commit"}
	}
	schema, ok := Get(sess.EntityType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, sess.EntityType)
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	// The catalog may have changed since the last validation.
	if err := s.revalidate(ctx, sess, v); err != nil {
		return nil, err
	}
	if sess.Issues.HasErrors() {
		if err := s.save(ctx, sess); err != nil {
			return nil, err
		}
		log.Info("commit blocked by validation errors", "codes", sortedCodes(sess.Issues.Errors))
		return sess, &StateError{SessionID: id, Status: sess.Status(), Operation: "commit", Err: ErrBlockingIssues}
	}
	validated, ok := sess.State.(ValidatedState)
	if !ok {
		return nil, &StateError{SessionID: id, Status: sess.Status(), Operation: "commit"}
	}

	timeout := s.limits.CommitTimeout
	if timeout <= 0 {
		timeout = DefaultCommitTimeout
	}
	commitCtx, cancel := context.WithTimeout(ctx, timeout)
	res, cerr := s.engine.Apply(commitCtx, sess.Scope, schema, sess.Draft)
	cancel()

	// The outcome is persisted even when the caller's context is gone.
	saveCtx := context.WithoutCancel(ctx)

	var conflict *ConcurrencyError
	switch {
	case cerr == nil:
		sess.State = validated.Confirm(s.now())
		sess.Summary = &CommitSummary{Created: res.Created, Updated: res.Updated}
		if err := s.save(saveCtx, sess); err != nil {
			log.Error("commit applied but session not confirmed", "created", res.Created, "updated", res.Updated, "error", err)
			return nil, err
		}
		s.observer.ObserveCommit(sess.EntityType, res.Created, res.Updated)
		s.emit(saveCtx, log.With("created", res.Created, "updated", res.Updated), EventConfirmed, sess, start)
		return sess, nil

	case errors.As(cerr, &conflict):
		// Nothing was written. Keep the fresh validation.
		if err := s.save(saveCtx, sess); err != nil {
			return nil, err
		}
		conflict.SessionID = id
		return nil, conflict

	case errors.Is(cerr, ErrDependencyCycle):
		sess.CommitErrors = append(sess.CommitErrors, commitIssue(cerr))
		sess.State = validated.Fail(cerr.Error())
		if err := s.save(saveCtx, sess); err != nil {
			return nil, err
		}
		s.emit(saveCtx, log.With("error", cerr), EventFailed, sess, start)
		return sess, nil

	default:
		sess.CommitErrors = append(sess.CommitErrors, commitIssue(cerr))
		sess.State = validated.CommitFailed()
		if err := s.save(saveCtx, sess); err != nil {
			return nil, err
		}
		s.emit(saveCtx, log.With("error", cerr), EventCommitFailed, sess, start)
		return sess, nil
	}
}

func commitIssue(err error) Issue {
	is := Issue{Code: CodeCommitFailed, Message: err.Error()}
	var ce *CommitError
	if errors.As(err, &ce) {
		is.RowIndex = ce.RowIndex
	}
	return is
}

// Discard abandons the session. The catalog is never touched.
func (s *Service) Discard(ctx context.Context, actor Actor, id string) (err error) {
	start := time.Now()
	ctx = ContextWithActor(ctx, actor)
	log := logging.WithFields(ctx, "op", StageDiscard, "session_id", id, "actor", actor.ID)

	sess, unlock, err := s.acquire(ctx, actor, id)
	if err != nil {
		s.finish(log, StageDiscard, "", start, err)
		return err
	}
	defer unlock()
	et := sess.EntityType
	defer func() { s.finish(log, StageDiscard, et, start, err) }()

	d, ok := sess.State.(discardable)
	if !ok {
		return &StateError{SessionID: id, Status: sess.Status(), Operation: "discard"}
	}
	sess.State = d.Discard(s.now())
	if err := s.save(ctx, sess); err != nil {
		return err
	}
	s.emit(ctx, log, EventDiscarded, sess, start)
	return nil
}

// Get returns a session the actor may see.
func (s *Service) Get(ctx context.Context, actor Actor, id string) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// List returns sessions matching f, newest first. Actors without the admin
// capability only see their own sessions.
func (s *Service) List(ctx context.Context, actor Actor, f SessionFilter) ([]*Session, error) {
	if err := s.authorize(actor, nil); err != nil {
		return nil, err
	}
	if !actor.Can(CapabilityImportAdmin) {
		f.Owner = actor.ID
	}
	return s.store.List(ctx, f)
}

// ExportReport renders the session's findings as CSV. Available once the
// session has been validated at least once.
func (s *Service) ExportReport(ctx context.Context, actor Actor, id string) ([]byte, error) {
	sess, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if sess.ValidatedAt == nil {
		return nil, &StateError{SessionID: id, Status: sess.Status(), Operation: "export report", Err: ErrReportUnavailable}
	}
	return RenderReport(sess)
}

// ReportFileName is the suggested download name for a session's report.
func ReportFileName(sess *Session) string {
	return fmt.Sprintf("%s_%s_issues.csv", sess.EntityType, sess.ID)
}

// SourceURL returns a time-limited link to the archived upload.
func (s *Service) SourceURL(ctx context.Context, actor Actor, id string, expiry time.Duration) (string, error) {
	sess, err := s.Get(ctx, actor, id)
	if err != nil {
		return "", err
	}
	if s.blobs == nil || sess.SourceKey == "" {
		return "", ErrSourceUnavailable
	}
	url, err := s.blobs.PresignURL(ctx, sess.SourceKey, blob.SignedURLOptions{Expiry: expiry})
	if err != nil {
		if errors.Is(err, blob.ErrUnsupported) {
			return "", fmt.Errorf("%w: %s driver cannot sign links", ErrSourceUnavailable, s.blobs.Driver())
		}
		return "", fmt.Errorf("presign source: %w", err)
	}
	return url, nil
}

// LimiterStatus reports the concurrency limiter state.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// Shutdown waits for in-flight heavy operations to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// acquire takes the session lock, loads the session and checks the actor
// may act on it. The returned unlock must be called.
func (s *Service) acquire(ctx context.Context, actor Actor, id string) (*Session, func(), error) {
	if err := s.authorize(actor, nil); err != nil {
		return nil, nil, err
	}
	wait := s.limits.LockWait
	if wait <= 0 {
		wait = DefaultSessionLockWait
	}
	unlock, err := s.locks.Lock(ctx, "session:"+id, wait)
	if err != nil {
		return nil, nil, &ConcurrencyError{SessionID: id, Reason: "session is busy", Err: err}
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	if err := s.authorize(actor, sess); err != nil {
		unlock()
		return nil, nil, err
	}
	return sess, unlock, nil
}

// authorize checks the import capability and, for an existing session,
// ownership or the admin capability.
func (s *Service) authorize(actor Actor, sess *Session) error {
	if actor.ID == "" || !(actor.Can(CapabilityImport) || actor.Can(CapabilityImportAdmin)) {
		return ErrForbidden
	}
	if sess != nil && sess.Owner != actor.ID && !actor.Can(CapabilityImportAdmin) {
		return fmt.Errorf("session %s: %w", sess.ID, ErrForbidden)
	}
	return nil
}

func (s *Service) save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = s.now()
	if err := s.store.Update(ctx, sess); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

// emit logs the transition and delivers its event. Delivery failures are
// logged only.
func (s *Service) emit(ctx context.Context, log *slog.Logger, action EventAction, sess *Session, start time.Time) {
	log.Info(string(action), "status", sess.Status(), "duration_ms", time.Since(start).Milliseconds())
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, NewEvent(ctx, action, sess, s.now())); err != nil {
		log.Warn("event delivery failed", "action", action, "error", err)
	}
}

func (s *Service) finish(log *slog.Logger, stage string, t catalog.EntityType, start time.Time, err error) {
	d := time.Since(start)
	s.observer.ObserveStage(stage, t, outcomeOf(err), d)
	if err == nil {
		return
	}
	if IsUserFacing(err) {
		log.Warn("operation rejected", "error", err, "code", MapError(err).Code, "duration_ms", d.Milliseconds())
		return
	}
	log.Error("operation failed", "error", err, "duration_ms", d.Milliseconds())
}
