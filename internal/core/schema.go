package core

import (
	"fmt"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
)

func init() {
	RegisterBuiltins()
}

// RegisterBuiltins registers the catalog entity schemas. Panics if any is
// already registered.
func RegisterBuiltins() {
	for _, s := range builtinSchemas() {
		Register(s)
	}
}

func activeField() FieldSpec {
	return FieldSpec{Name: "active", Aliases: []string{"active", "enabled", "is_active"}, Type: FieldBool}
}

func positionField() FieldSpec {
	return FieldSpec{Name: "position", Aliases: []string{"position", "sort_order", "display_order"}, Type: FieldNumber, NonNegative: true}
}

func builtinSchemas() []EntitySchema {
	categoryPosition := positionField()
	categoryPosition.WarnAbove = 10000

	itemActive := activeField()
	itemActive.Aliases = append(itemActive.Aliases, "available")

	return []EntitySchema{
		{
			Type:  catalog.Category,
			Label: "Categories",
			Fields: []FieldSpec{
				{Name: "name", Aliases: []string{"name", "category", "category_name", "title"}, Type: FieldString, Required: true, MaxLen: 120},
				{Name: "parent", Aliases: []string{"parent", "parent_category", "parent_name"}, Type: FieldString},
				{Name: "description", Aliases: []string{"description", "desc"}, Type: FieldString, MaxLen: 1000},
				{Name: "display_type", Aliases: []string{"display_type", "layout", "display"}, Type: FieldEnum, EnumValues: []string{"list", "grid", "carousel"}},
				categoryPosition,
				activeField(),
			},
			KeyFields: []string{"name"},
			References: []Reference{
				{Name: "parent", Target: catalog.Category, Fields: []string{"parent"}},
			},
		},
		{
			Type:  catalog.Item,
			Label: "Items",
			Fields: []FieldSpec{
				{Name: "name", Aliases: []string{"name", "item", "item_name", "title"}, Type: FieldString, Required: true, MaxLen: 160},
				{Name: "category", Aliases: []string{"category", "category_name", "menu_category"}, Type: FieldString, Required: true},
				{Name: "price", Aliases: []string{"price", "base_price", "amount"}, Type: FieldNumber, Required: true, NonNegative: true, WarnAbove: 1000},
				{Name: "sku", Aliases: []string{"sku", "plu", "code"}, Type: FieldString, Unique: true},
				{Name: "description", Aliases: []string{"description", "desc"}, Type: FieldString, MaxLen: 2000},
				{Name: "calories", Aliases: []string{"calories", "kcal"}, Type: FieldNumber, NonNegative: true, WarnAbove: 5000},
				positionField(),
				itemActive,
			},
			KeyFields: []string{"category", "name"},
			References: []Reference{
				{Name: "category", Target: catalog.Category, Fields: []string{"category"}},
			},
		},
		{
			Type:  catalog.ModifierGroup,
			Label: "Modifier Groups",
			Fields: []FieldSpec{
				{Name: "name", Aliases: []string{"name", "group", "group_name", "modifier_group"}, Type: FieldString, Required: true},
				{Name: "display_type", Aliases: []string{"display_type", "selection", "display"}, Type: FieldEnum, EnumValues: []string{"radio", "checkbox", "quantity"}},
				{Name: "min_select", Aliases: []string{"min_select", "min", "minimum"}, Type: FieldNumber, NonNegative: true},
				{Name: "max_select", Aliases: []string{"max_select", "max", "maximum"}, Type: FieldNumber, NonNegative: true},
				{Name: "required", Aliases: []string{"required", "mandatory"}, Type: FieldBool},
				activeField(),
			},
			KeyFields: []string{"name"},
			Checks:    []RecordCheck{checkSelectionBounds},
		},
		{
			Type:  catalog.Modifier,
			Label: "Modifiers",
			Fields: []FieldSpec{
				{Name: "name", Aliases: []string{"name", "modifier", "modifier_name", "option"}, Type: FieldString, Required: true},
				{Name: "group", Aliases: []string{"group", "modifier_group", "group_name"}, Type: FieldString, Required: true},
				{Name: "price", Aliases: []string{"price", "upcharge", "amount"}, Type: FieldNumber, NonNegative: true, WarnAbove: 100},
				{Name: "side", Aliases: []string{"side", "placement", "portion"}, Type: FieldEnum, EnumValues: []string{"whole", "left", "right"}},
				{Name: "default", Aliases: []string{"default", "is_default", "preselected"}, Type: FieldBool},
				activeField(),
			},
			KeyFields: []string{"group", "name"},
			References: []Reference{
				{Name: "group", Target: catalog.ModifierGroup, Fields: []string{"group"}},
			},
		},
		{
			Type:  catalog.Size,
			Label: "Sizes",
			Fields: []FieldSpec{
				{Name: "name", Aliases: []string{"name", "size", "size_name", "label"}, Type: FieldString, Required: true},
				{Name: "item", Aliases: []string{"item", "item_name"}, Type: FieldString, Required: true},
				{Name: "category", Aliases: []string{"category", "category_name"}, Type: FieldString, Required: true},
				{Name: "price", Aliases: []string{"price", "amount"}, Type: FieldNumber, Required: true, NonNegative: true, WarnAbove: 1000},
				{Name: "quantity", Aliases: []string{"quantity", "qty", "portion_count"}, Type: FieldNumber, Positive: true},
				activeField(),
			},
			KeyFields: []string{"category", "item", "name"},
			References: []Reference{
				{Name: "item", Target: catalog.Item, Fields: []string{"category", "item"}},
			},
		},
	}
}

// checkSelectionBounds rejects a modifier group whose max_select is below
// its min_select.
func checkSelectionBounds(rec DraftRecord) []Issue {
	lo, hi := rec.Values["min_select"], rec.Values["max_select"]
	if lo.Kind != ValueNumber || hi.Kind != ValueNumber || hi.Num >= lo.Num {
		return nil
	}
	return []Issue{{
		RowIndex: rec.RowIndex,
		Field:    "max_select",
		Code:     CodeOutOfRange,
		Message:  fmt.Sprintf("max_select (%s) must not be less than min_select (%s)", hi.Text(), lo.Text()),
	}}
}
