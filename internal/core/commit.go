package core

// commit.go implements the Commit Engine.
//
// A commit is planned before anything is written: records are ordered so
// every intra-batch parent precedes its children, with provisional row ids
// as the only link between rows. The ordered records are then upserted by
// natural key inside one all-or-nothing boundary:
//   - catalog.Transactor: a database transaction (rolled back on failure)
//   - catalog.Compensator: a journal of writes reverted in LIFO order
//
// Commits for the same scope are serialized by a scope lock so two sessions
// never interleave their writes.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
)

// DefaultScopeLockWait bounds how long a commit waits for its scope.
const DefaultScopeLockWait = 30 * time.Second

// CommitResult reports what a successful commit wrote. Mapping is the
// Commit Mapping (provisional row id -> persisted entity id).
type CommitResult struct {
	Created int
	Updated int
	Mapping map[string]string
}

// CommitEngine materializes drafts into the catalog.
type CommitEngine struct {
	Catalog  catalog.Reader // must also be a Transactor or a Compensator
	Locks    *KeyedMutex
	LockWait time.Duration
}

// NewCommitEngine creates an engine writing to c.
func NewCommitEngine(c catalog.Reader, locks *KeyedMutex) *CommitEngine {
	if locks == nil {
		locks = NewKeyedMutex()
	}
	return &CommitEngine{Catalog: c, Locks: locks, LockWait: DefaultScopeLockWait}
}

// commitPlan is the dependency-ordered write sequence of one draft.
type commitPlan struct {
	records []DraftRecord
	order   []int
	first   map[catalog.NaturalKey]int
}

// planCommit orders records so intra-batch parents are written first.
// A cycle (including a record naming itself) is reported as
// ErrDependencyCycle.
func planCommit(schema EntitySchema, records []DraftRecord) (commitPlan, error) {
	first := make(map[catalog.NaturalKey]int, len(records))
	for i, rec := range records {
		key := schema.KeyOf(rec)
		if key == "" {
			return commitPlan{}, &CommitError{RowIndex: rec.RowIndex, Err: errors.New("record has no natural key")}
		}
		if _, ok := first[key]; !ok {
			first[key] = i
		}
	}

	deps := make(map[int][]int)
	for _, ref := range schema.References {
		if ref.Target != schema.Type {
			continue
		}
		for i, rec := range records {
			if tok, ok := rec.Refs[ref.Name]; ok {
				if j, ok := first[tok]; ok {
					deps[i] = append(deps[i], j)
				}
			}
		}
	}

	order, blocked := dependencyOrder(len(records), deps)
	if len(blocked) > 0 {
		rows := make([]int, len(blocked))
		for i, b := range blocked {
			rows[i] = records[b].RowIndex
		}
		return commitPlan{}, &CommitError{Err: fmt.Errorf("%w: rows %v", ErrDependencyCycle, rows)}
	}
	return commitPlan{records: records, order: order, first: first}, nil
}

// Apply writes every record of the draft into scope, or nothing.
func (e *CommitEngine) Apply(ctx context.Context, scope string, schema EntitySchema, d Draft) (CommitResult, error) {
	plan, err := planCommit(schema, d.Records)
	if err != nil {
		return CommitResult{}, err
	}

	wait := e.LockWait
	if wait <= 0 {
		wait = DefaultScopeLockWait
	}
	unlock, err := e.Locks.Lock(ctx, "scope:"+scope, wait)
	if err != nil {
		return CommitResult{}, &ConcurrencyError{Reason: "another commit is running for scope " + scope, Err: err}
	}
	defer unlock()

	switch c := e.Catalog.(type) {
	case catalog.Transactor:
		return e.applyTx(ctx, c, scope, schema, plan)
	case catalog.Compensator:
		return e.applyCompensated(ctx, c, scope, schema, plan)
	default:
		return CommitResult{}, fmt.Errorf("catalog %T supports neither transactions nor compensation", e.Catalog)
	}
}

func (e *CommitEngine) applyTx(ctx context.Context, t catalog.Transactor, scope string, schema EntitySchema, plan commitPlan) (CommitResult, error) {
	tx, err := t.Begin(ctx, scope)
	if err != nil {
		return CommitResult{}, &CommitError{Err: fmt.Errorf("begin: %w", err)}
	}

	res, err := writePlan(ctx, tx, scope, schema, plan, nil)
	if err == nil {
		if cerr := tx.Commit(ctx); cerr != nil {
			err = &CommitError{Err: fmt.Errorf("commit transaction: %w", cerr)}
		}
	}
	if err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return CommitResult{}, err
	}
	return res, nil
}

func (e *CommitEngine) applyCompensated(ctx context.Context, c catalog.Compensator, scope string, schema EntitySchema, plan commitPlan) (CommitResult, error) {
	var journal []catalog.UpsertResult
	res, err := writePlan(ctx, c, scope, schema, plan, func(r catalog.UpsertResult) {
		journal = append(journal, r)
	})
	if err != nil {
		if cerr := compensate(context.WithoutCancel(ctx), c, scope, schema.Type, journal); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return CommitResult{}, err
	}
	return res, nil
}

// compensate reverts journaled writes, newest first.
func compensate(ctx context.Context, c catalog.Compensator, scope string, t catalog.EntityType, journal []catalog.UpsertResult) error {
	var errs []error
	for i := len(journal) - 1; i >= 0; i-- {
		r := journal[i]
		switch {
		case r.Created:
			if err := c.Delete(ctx, scope, t, r.ID); err != nil {
				errs = append(errs, fmt.Errorf("revert create %s: %w", r.ID, err))
			}
		case r.Previous != nil:
			if err := c.Restore(ctx, *r.Previous); err != nil {
				errs = append(errs, fmt.Errorf("revert update %s: %w", r.ID, err))
			}
		default:
			errs = append(errs, fmt.Errorf("revert update %s: previous state unknown", r.ID))
		}
	}
	return errors.Join(errs...)
}

// writePlan upserts records in plan order. onWrite observes each successful
// upsert.
func writePlan(ctx context.Context, w catalog.Writer, scope string, schema EntitySchema, plan commitPlan, onWrite func(catalog.UpsertResult)) (CommitResult, error) {
	res := CommitResult{Mapping: make(map[string]string, len(plan.records))}

	for _, i := range plan.order {
		rec := plan.records[i]
		if err := ctx.Err(); err != nil {
			return res, &CommitError{RowIndex: rec.RowIndex, Err: err}
		}

		in, err := buildUpsert(ctx, w, scope, schema, plan, res.Mapping, rec)
		if err != nil {
			return res, err
		}

		r, err := w.Upsert(ctx, scope, schema.Type, in)
		if err != nil {
			return res, &CommitError{RowIndex: rec.RowIndex, Err: err}
		}
		if onWrite != nil {
			onWrite(r)
		}

		res.Mapping[rec.RowID] = r.ID
		if r.Created {
			res.Created++
		} else {
			res.Updated++
		}
	}
	return res, nil
}

// buildUpsert turns a draft record into catalog values, resolving each
// reference through the Commit Mapping first and the catalog second.
func buildUpsert(ctx context.Context, r catalog.Reader, scope string, schema EntitySchema, plan commitPlan, mapping map[string]string, rec DraftRecord) (catalog.UpsertInput, error) {
	in := catalog.UpsertInput{
		Key:    schema.KeyOf(rec),
		Active: true,
		Fields: make(map[string]any, len(schema.Fields)),
	}
	for _, f := range schema.Fields {
		v := rec.Values[f.Name]
		if f.Name == "active" {
			if v.Kind == ValueBool {
				in.Active = v.Bool
			}
			continue
		}
		if native, ok := v.Native(); ok {
			in.Fields[f.Name] = native
		}
	}

	for _, ref := range schema.References {
		tok, ok := rec.Refs[ref.Name]
		if !ok {
			continue
		}
		if in.Refs == nil {
			in.Refs = make(map[string]string, len(schema.References))
		}
		if ref.Target == schema.Type {
			if j, ok := plan.first[tok]; ok {
				if id, ok := mapping[plan.records[j].RowID]; ok {
					in.Refs[ref.Name] = id
					continue
				}
			}
		}
		e, found, err := r.FindByNaturalKey(ctx, scope, ref.Target, tok)
		if err != nil {
			return in, &CommitError{RowIndex: rec.RowIndex, Err: fmt.Errorf("resolve %s: %w", ref.Name, err)}
		}
		if !found {
			return in, &CommitError{RowIndex: rec.RowIndex, Err: fmt.Errorf("%s %q: %w", ref.Target, tok, catalog.ErrNotFound)}
		}
		in.Refs[ref.Name] = e.ID
	}
	return in, nil
}
