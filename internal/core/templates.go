package core

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
)

// TemplateFileName is the suggested download name for an entity type's
// column template.
func TemplateFileName(t catalog.EntityType) string {
	return string(t) + "_template.csv"
}

// Template returns a header-only CSV using each field's preferred column
// name. Uploading it back yields a valid, empty batch.
func Template(t catalog.EntityType) ([]byte, error) {
	schema, ok := Get(t)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, t)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(schema.Columns()); err != nil {
		return nil, fmt.Errorf("write template: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write template: %w", err)
	}
	return buf.Bytes(), nil
}

// Schemas describes every registered entity type in dependency order.
func Schemas() []SchemaInfo {
	all := All()
	out := make([]SchemaInfo, len(all))
	for i, s := range all {
		out[i] = s.Info()
	}
	return out
}
