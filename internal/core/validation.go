package core

// validation.go implements the two-pass Validator.
//
// Validation happens at two levels:
//  1. Structural: each record against its FieldSpecs (presence, type, range, length, enum)
//  2. Semantic: natural-key and unique-field duplicates, persisted matches, references
//
// Results are data, never errors: only a failing catalog lookup aborts a run.
// Each run builds fresh issue lists and never mutates the draft.

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
)

// Validator checks a draft against one schema and the persisted catalog.
type Validator struct {
	Schema  EntitySchema
	Catalog catalog.Reader
}

// NewValidator creates a validator for the given schema.
func NewValidator(schema EntitySchema, r catalog.Reader) *Validator {
	return &Validator{Schema: schema, Catalog: r}
}

// issueSet accumulates findings of one run.
type issueSet struct {
	errors   []Issue
	warnings []Issue
}

func (s *issueSet) err(row int, field string, code IssueCode, format string, args ...any) {
	s.errors = append(s.errors, Issue{RowIndex: row, Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
}

func (s *issueSet) warn(row int, field string, code IssueCode, format string, args ...any) {
	s.warnings = append(s.warnings, Issue{RowIndex: row, Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
}

// result sorts by row index. The sort is stable so findings within a row
// keep field-declaration order.
func (s *issueSet) result() Issues {
	out := Issues{
		Errors:   append(make([]Issue, 0, len(s.errors)), s.errors...),
		Warnings: append(make([]Issue, 0, len(s.warnings)), s.warnings...),
	}
	sortIssues(out.Errors)
	sortIssues(out.Warnings)
	return out
}

func sortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].RowIndex < issues[j].RowIndex
	})
}

// Validate runs both passes over the draft and returns the complete issue
// lists for this run.
func (v *Validator) Validate(ctx context.Context, scope string, d Draft) (Issues, error) {
	var set issueSet

	_, unknown := ResolveColumns(v.Schema, d.Columns)
	for _, col := range unknown {
		set.warn(0, col, CodeUnknownColumn, "column %q does not match any %s field and was ignored", col, v.Schema.Type)
	}
	for _, row := range d.Skipped {
		set.warn(row, "", CodeEmptyRowSkipped, "blank row skipped")
	}

	for _, rec := range d.Records {
		v.checkRecord(&set, rec)
	}

	if err := v.checkSemantics(ctx, &set, scope, d.Records); err != nil {
		return Issues{}, err
	}
	return set.result(), nil
}

// checkRecord is the structural pass for one record.
func (v *Validator) checkRecord(set *issueSet, rec DraftRecord) {
	row := rec.RowIndex
	for _, f := range v.Schema.Fields {
		val := rec.Values[f.Name]
		switch val.Kind {
		case ValueMissing, "":
			if f.Required {
				set.err(row, f.Name, CodeRequired, "%s is required", f.Name)
			}

		case ValueInvalid:
			switch f.Type {
			case FieldNumber:
				set.err(row, f.Name, CodeInvalidNumber, "%q is not a valid number", val.Raw)
			case FieldBool:
				set.err(row, f.Name, CodeInvalidBoolean, "%q is not a valid boolean (use true/false, yes/no, or 1/0)", val.Raw)
			case FieldEnum:
				set.err(row, f.Name, CodeInvalidEnum, "%q must be one of: %s", val.Raw, strings.Join(f.EnumValues, ", "))
			default:
				set.err(row, f.Name, CodeInvalidNumber, "%q is not a valid %s", val.Raw, f.Type)
			}

		case ValueString:
			if f.MaxLen > 0 {
				if n := utf8.RuneCountInString(val.Str); n > f.MaxLen {
					set.err(row, f.Name, CodeTooLong, "%s must be at most %d characters (got %d)", f.Name, f.MaxLen, n)
				}
			}

		case ValueNumber:
			switch {
			case f.NonNegative && val.Num < 0:
				set.err(row, f.Name, CodeOutOfRange, "%s must be zero or greater (got %s)", f.Name, val.Text())
			case f.Positive && val.Num <= 0:
				set.err(row, f.Name, CodeOutOfRange, "%s must be greater than zero (got %s)", f.Name, val.Text())
			case f.WarnAbove > 0 && val.Num > f.WarnAbove:
				set.warn(row, f.Name, CodeAboveRecommended, "%s %s is above the recommended maximum of %s",
					f.Name, val.Text(), Value{Kind: ValueNumber, Num: f.WarnAbove}.Text())
			}
		}
	}

	for _, check := range v.Schema.Checks {
		set.errors = append(set.errors, check(rec)...)
	}
}

// keyField is the field a natural-key finding is reported against.
func (v *Validator) keyField() string {
	if len(v.Schema.KeyFields) == 0 {
		return ""
	}
	return v.Schema.KeyFields[len(v.Schema.KeyFields)-1]
}

// describe renders the key fields of a record as the operator typed them.
func describe(rec DraftRecord, fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, name := range fields {
		parts = append(parts, rec.Values[name].Text())
	}
	return strings.Join(parts, " / ")
}

// checkSemantics is the semantic pass over the whole batch.
func (v *Validator) checkSemantics(ctx context.Context, set *issueSet, scope string, records []DraftRecord) error {
	keys := make([]catalog.NaturalKey, len(records))
	first := make(map[catalog.NaturalKey]int, len(records))
	var distinct []catalog.NaturalKey

	keyField := v.keyField()
	for i, rec := range records {
		key := v.Schema.KeyOf(rec)
		keys[i] = key
		if key == "" {
			continue
		}
		if j, ok := first[key]; ok {
			set.err(rec.RowIndex, keyField, CodeDuplicateInBatch, "%s %q already appears in row %d",
				v.Schema.Type, describe(rec, v.Schema.KeyFields), records[j].RowIndex)
			continue
		}
		first[key] = i
		distinct = append(distinct, key)
	}

	if len(distinct) > 0 {
		existing, err := v.Catalog.FindByNaturalKeys(ctx, scope, v.Schema.Type, distinct)
		if err != nil {
			return fmt.Errorf("look up existing %s: %w", v.Schema.Type, err)
		}
		for _, key := range distinct {
			if e, ok := existing[key]; ok && !e.Active {
				rec := records[first[key]]
				set.warn(rec.RowIndex, keyField, CodeInactiveMatch, "matches inactive %s %q; importing will update it",
					v.Schema.Type, describe(rec, v.Schema.KeyFields))
			}
		}
	}

	for _, f := range v.Schema.Fields {
		if !f.Unique {
			continue
		}
		if err := v.checkUnique(ctx, set, scope, f, records, keys); err != nil {
			return err
		}
	}

	deps := make(map[int][]int)
	for _, ref := range v.Schema.References {
		if err := v.checkReference(ctx, set, scope, ref, records, keys, first, deps); err != nil {
			return err
		}
	}

	if len(deps) > 0 {
		_, blocked := dependencyOrder(len(records), deps)
		for _, i := range blocked {
			rec := records[i]
			field := ""
			for _, ref := range v.Schema.References {
				if ref.Target == v.Schema.Type {
					field = ref.Fields[len(ref.Fields)-1]
					break
				}
			}
			set.err(rec.RowIndex, field, CodeRefCycle, "%s %q is part of a reference cycle",
				v.Schema.Type, describe(rec, v.Schema.KeyFields))
		}
	}
	return nil
}

// checkUnique flags repeated values of a unique field within the batch and
// values already owned by a different persisted entity.
func (v *Validator) checkUnique(ctx context.Context, set *issueSet, scope string, f FieldSpec, records []DraftRecord, keys []catalog.NaturalKey) error {
	seen := make(map[string]int)
	for i, rec := range records {
		val := rec.Values[f.Name]
		if !val.Usable() {
			continue
		}
		norm := catalog.NormalizeKeyPart(val.Text())
		if j, ok := seen[norm]; ok {
			set.err(rec.RowIndex, f.Name, CodeDuplicateInBatch, "%s %q already appears in row %d",
				f.Name, val.Text(), records[j].RowIndex)
			continue
		}
		seen[norm] = i

		owners, err := v.Catalog.FindByField(ctx, scope, v.Schema.Type, f.Name, val.Text())
		if err != nil {
			return fmt.Errorf("look up %s by %s: %w", v.Schema.Type, f.Name, err)
		}
		for _, e := range owners {
			if e.Key != keys[i] {
				set.err(rec.RowIndex, f.Name, CodeDuplicateExisting, "%s %q is already used by %s %q",
					f.Name, val.Text(), v.Schema.Type, strings.Join(e.Key.Parts(), " / "))
				break
			}
		}
	}
	return nil
}

// checkReference resolves one declared reference for every record: first
// against rows of the same batch when the reference targets the session's own
// type, then against persisted entities. Intra-batch edges are recorded in
// deps for cycle detection.
func (v *Validator) checkReference(
	ctx context.Context,
	set *issueSet,
	scope string,
	ref Reference,
	records []DraftRecord,
	keys []catalog.NaturalKey,
	first map[catalog.NaturalKey]int,
	deps map[int][]int,
) error {
	field := ref.Fields[len(ref.Fields)-1]
	selfRef := ref.Target == v.Schema.Type

	var tokens []catalog.NaturalKey
	seen := make(map[catalog.NaturalKey]bool)
	for _, rec := range records {
		if tok, ok := rec.Refs[ref.Name]; ok && !seen[tok] {
			seen[tok] = true
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return nil
	}

	persisted, err := v.Catalog.FindByNaturalKeys(ctx, scope, ref.Target, tokens)
	if err != nil {
		return fmt.Errorf("resolve %s references: %w", ref.Name, err)
	}

	for i, rec := range records {
		tok, ok := rec.Refs[ref.Name]
		if !ok {
			continue
		}
		if selfRef && tok == keys[i] {
			set.err(rec.RowIndex, field, CodeRefSelf, "%s cannot reference itself", v.Schema.Type)
			continue
		}
		// A batch row naming the target is what gets written, so it wins over
		// the persisted entity. The commit plan orders on the same edges.
		if selfRef {
			if j, ok := first[tok]; ok {
				deps[i] = append(deps[i], j)
				continue
			}
		}
		if e, ok := persisted[tok]; ok {
			if !e.Active {
				set.warn(rec.RowIndex, field, CodeRefInactive, "%s %q is inactive", ref.Target, describe(rec, ref.Fields))
			}
			continue
		}
		set.err(rec.RowIndex, field, CodeRefNotFound, "%s %q does not exist", ref.Target, describe(rec, ref.Fields))
	}
	return nil
}
