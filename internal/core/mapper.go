package core

// mapper.go implements the Schema Mapper: raw rows in, typed candidate
// records out.
//
// Each target field is resolved by trying its aliases in declared order
// against the normalized header. Values that are absent or cannot be coerced
// become explicit Missing/Invalid markers; the validator turns those into
// issues so one bad row never aborts the batch.

import (
	"context"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
)

// DefaultMapChunkSize is the number of rows mapped per worker task.
const DefaultMapChunkSize = 500

// ResolveColumns assigns a header column to each schema field. A column feeds
// at most one field; earlier fields claim first. The second result lists
// columns no field claimed, in header order.
func ResolveColumns(schema EntitySchema, columns []string) (map[string]string, []string) {
	idx := MakeHeaderIndex(columns)
	claimed := make(map[string]bool, len(columns))
	fieldCols := make(map[string]string, len(schema.Fields))

	for _, f := range schema.Fields {
		for _, alias := range f.Aliases {
			col, ok := idx[NormalizeHeader(alias)]
			if !ok || claimed[col] {
				continue
			}
			claimed[col] = true
			fieldCols[f.Name] = col
			break
		}
	}

	var unknown []string
	for _, col := range columns {
		if !claimed[col] {
			unknown = append(unknown, col)
		}
	}
	return fieldCols, unknown
}

// Coerce converts a raw cell to the field's declared type.
func Coerce(spec FieldSpec, raw string) Value {
	s := CleanCell(raw)
	if s == "" {
		return Value{Kind: ValueMissing}
	}

	switch spec.Type {
	case FieldNumber:
		if f, ok := ParseNumber(s); ok {
			return Value{Kind: ValueNumber, Raw: s, Num: f}
		}
	case FieldBool:
		if b, ok := ParseBool(s); ok {
			return Value{Kind: ValueBool, Raw: s, Bool: b}
		}
	case FieldEnum:
		if v, ok := MatchEnum(s, spec.EnumValues); ok {
			return Value{Kind: ValueEnum, Raw: s, Str: v}
		}
	default:
		return Value{Kind: ValueString, Raw: s, Str: s}
	}
	return Value{Kind: ValueInvalid, Raw: s}
}

// Mapper maps raw rows to draft records for one schema.
type Mapper struct {
	Schema    EntitySchema
	ChunkSize int // Rows per task (0 = DefaultMapChunkSize)
	Workers   int // Parallel tasks (0 = GOMAXPROCS)
}

// MapRecord builds the candidate record for one row.
func (m Mapper) MapRecord(fieldCols map[string]string, rowID string, index int, raw map[string]string) DraftRecord {
	rec := DraftRecord{
		RowID:    rowID,
		RowIndex: index,
		Raw:      raw,
		Values:   make(map[string]Value, len(m.Schema.Fields)),
	}
	for _, f := range m.Schema.Fields {
		col, ok := fieldCols[f.Name]
		if !ok {
			rec.Values[f.Name] = Value{Kind: ValueMissing}
			continue
		}
		rec.Values[f.Name] = Coerce(f, raw[col])
	}
	rec.Refs = referenceTokens(m.Schema, rec)
	return rec
}

// referenceTokens computes the unresolved reference token (the target's
// natural key) for every reference the record names.
func referenceTokens(schema EntitySchema, rec DraftRecord) map[string]catalog.NaturalKey {
	var refs map[string]catalog.NaturalKey
	for _, ref := range schema.References {
		key := keyFromFields(rec, ref.Fields)
		if key == "" {
			continue
		}
		if refs == nil {
			refs = make(map[string]catalog.NaturalKey, len(schema.References))
		}
		refs[ref.Name] = key
	}
	return refs
}

// MapRows maps decoded rows in parallel chunks, preserving input order.
// Provisional row ids are assigned from firstRow upward.
func (m Mapper) MapRows(ctx context.Context, columns []string, rows []RawRow, firstRow int) ([]DraftRecord, error) {
	fieldCols, _ := ResolveColumns(m.Schema, columns)
	out := make([]DraftRecord, len(rows))

	chunk := m.ChunkSize
	if chunk <= 0 {
		chunk = DefaultMapChunkSize
	}
	workers := m.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				out[i] = m.MapRecord(fieldCols, RowID(firstRow+i), rows[i].Index, rows[i].Fields)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// RowID formats a provisional row identifier.
func RowID(n int) string {
	return "r" + strconv.Itoa(n)
}

// NewDraft maps a decoded file into a fresh draft.
func NewDraft(ctx context.Context, schema EntitySchema, file *DecodedFile) (Draft, error) {
	m := Mapper{Schema: schema}
	records, err := m.MapRows(ctx, file.Columns, file.Rows, 1)
	if err != nil {
		return Draft{}, err
	}
	return Draft{
		Columns: append([]string(nil), file.Columns...),
		Records: records,
		Skipped: append([]int(nil), file.Skipped...),
		NextRow: len(records) + 1,
	}, nil
}
