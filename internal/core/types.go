package core

import (
	"github.com/JonMunkholm/catalogimport/internal/catalog"
)

// FieldType represents the declared type of a schema field.
type FieldType int

const (
	FieldString FieldType = iota
	FieldNumber
	FieldBool
	FieldEnum
)

func (t FieldType) String() string {
	switch t {
	case FieldString:
		return "string"
	case FieldNumber:
		return "number"
	case FieldBool:
		return "boolean"
	case FieldEnum:
		return "enum"
	default:
		return "value"
	}
}

// FieldSpec declares one target field of an entity schema.
type FieldSpec struct {
	Name       string    // Target field name
	Aliases    []string  // Accepted column names, tried in order
	Type       FieldType // Declared type
	Required   bool      // Row must supply a value
	EnumValues []string  // Canonical values for FieldEnum
	MaxLen     int       // Max rune length for strings (0 = unlimited)
	Unique     bool      // Must be unique within the batch and the scope

	NonNegative bool    // Numbers must be >= 0
	Positive    bool    // Numbers must be > 0
	WarnAbove   float64 // Warn when a number exceeds this (0 = no warning)
}

// Reference declares a field (or field combination) naming a parent entity.
// Fields lists this record's fields that form the target's natural key, in
// the target's key order.
type Reference struct {
	Name   string
	Target catalog.EntityType
	Fields []string
}

// RecordCheck is a cross-field rule evaluated during the structural pass.
type RecordCheck func(rec DraftRecord) []Issue

// EntitySchema is the declared import schema of one entity type.
type EntitySchema struct {
	Type       catalog.EntityType
	Label      string
	Fields     []FieldSpec
	KeyFields  []string // Fields forming the natural key
	References []Reference
	Checks     []RecordCheck
}

// Field returns the spec for a target field.
func (s EntitySchema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Columns returns the preferred column header for each field, in declared
// order. Used for template downloads.
func (s EntitySchema) Columns() []string {
	cols := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = f.Name
		if len(f.Aliases) > 0 {
			cols[i] = f.Aliases[0]
		}
	}
	return cols
}

// KeyOf returns the natural key of a record, or "" if any key field is not a
// usable string value.
func (s EntitySchema) KeyOf(rec DraftRecord) catalog.NaturalKey {
	return keyFromFields(rec, s.KeyFields)
}

func keyFromFields(rec DraftRecord, fields []string) catalog.NaturalKey {
	parts := make([]string, len(fields))
	for i, name := range fields {
		v, ok := rec.Values[name]
		if !ok || !v.Usable() {
			return ""
		}
		parts[i] = v.Text()
	}
	return catalog.MakeKey(parts...)
}

// SchemaInfo is the public description of a schema (listing and templates).
type SchemaInfo struct {
	EntityType catalog.EntityType `json:"entity_type"`
	Label      string             `json:"label"`
	Columns    []FieldInfo        `json:"columns"`
	NaturalKey []string           `json:"natural_key"`
}

// FieldInfo describes one schema field.
type FieldInfo struct {
	Name       string   `json:"name"`
	Aliases    []string `json:"aliases"`
	Type       string   `json:"type"`
	Required   bool     `json:"required"`
	EnumValues []string `json:"enum_values,omitempty"`
}

// Info returns the public description of s.
func (s EntitySchema) Info() SchemaInfo {
	info := SchemaInfo{
		EntityType: s.Type,
		Label:      s.Label,
		NaturalKey: append([]string(nil), s.KeyFields...),
	}
	for _, f := range s.Fields {
		info.Columns = append(info.Columns, FieldInfo{
			Name:       f.Name,
			Aliases:    append([]string(nil), f.Aliases...),
			Type:       f.Type.String(),
			Required:   f.Required,
			EnumValues: append([]string(nil), f.EnumValues...),
		})
	}
	return info
}

// RawRow is one decoded data row. Index is 1-based, header excluded.
type RawRow struct {
	Index  int
	Fields map[string]string // column -> raw cell
}

// DecodedFile is the output of the Format Decoder.
type DecodedFile struct {
	Member  string   // archive member consulted, "" for plain text
	Columns []string // header, in source order
	Rows    []RawRow
	Skipped []int // indices of blank rows
}
