package core

import (
	"testing"
)

// ----------------------------------------------------------------------------
// ParseNumber Tests
// ----------------------------------------------------------------------------

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantOK bool
		want   float64
	}{
		// Valid: basic numbers
		{name: "positive integer", input: "123", wantOK: true, want: 123},
		{name: "zero", input: "0", wantOK: true, want: 0},
		{name: "negative integer", input: "-456", wantOK: true, want: -456},
		{name: "decimal number", input: "4.50", wantOK: true, want: 4.5},
		{name: "leading decimal point", input: ".99", wantOK: true, want: 0.99},
		{name: "trailing decimal point", input: "99.", wantOK: true, want: 99},
		{name: "scientific notation", input: "1.5e2", wantOK: true, want: 150},
		{name: "surrounding whitespace", input: "  12.5 ", wantOK: true, want: 12.5},

		// Valid: currency and separators
		{name: "dollar sign", input: "$1,234.56", wantOK: true, want: 1234.56},
		{name: "euro sign", input: "€12.00", wantOK: true, want: 12},
		{name: "pound sign", input: "£7.25", wantOK: true, want: 7.25},
		{name: "thousands separator", input: "1,000", wantOK: true, want: 1000},

		// Valid: accounting negatives
		{name: "accounting negative", input: "(12.50)", wantOK: true, want: -12.5},
		{name: "accounting negative with currency", input: "($3.00)", wantOK: true, want: -3},

		// Invalid
		{name: "empty", input: "", wantOK: false},
		{name: "whitespace only", input: "   ", wantOK: false},
		{name: "letters", input: "abc", wantOK: false},
		{name: "mixed", input: "12abc", wantOK: false},
		{name: "two decimal points", input: "1.2.3", wantOK: false},
		{name: "double negative", input: "(-5)", wantOK: false},
		{name: "lone sign", input: "-", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseNumber(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseNumber(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseNumber(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseBool Tests
// ----------------------------------------------------------------------------

func TestParseBool(t *testing.T) {
	tests := []struct {
		input  string
		want   bool
		wantOK bool
	}{
		{"true", true, true},
		{"TRUE", true, true},
		{"t", true, true},
		{"yes", true, true},
		{"Y", true, true},
		{"1", true, true},
		{"false", false, true},
		{"F", false, true},
		{"no", false, true},
		{"n", false, true},
		{"0", false, true},
		{" yes ", true, true},
		{"", false, false},
		{"maybe", false, false},
		{"2", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseBool(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseBool(%q) = (%v, %v), want (%v, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestMatchEnum(t *testing.T) {
	values := []string{"list", "grid", "carousel"}

	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"grid", "grid", true},
		{"GRID", "grid", true},
		{" Carousel ", "carousel", true},
		{"table", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := MatchEnum(tt.input, values)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("MatchEnum(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// CleanCell Tests
// ----------------------------------------------------------------------------

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Latte", "Latte"},
		{"whitespace", "  Latte  ", "Latte"},
		{"excel formula string", `="00123"`, "00123"},
		{"excel formula bare", "=42", "42"},
		{"double quotes", `"Latte"`, "Latte"},
		{"single quotes", `'Latte'`, "Latte"},
		{"empty", "", ""},
		{"inner quote kept", `Joe's`, "Joe's"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCell(tt.input); got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Header Tests
// ----------------------------------------------------------------------------

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Name", "name"},
		{" Category Name ", "category_name"},
		{"sort-order", "sort_order"},
		{"Display   Type", "display_type"},
		{`"Price"`, "price"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeHeader(tt.input); got != tt.want {
				t.Errorf("NormalizeHeader(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMakeHeaderIndex_DuplicateHeaders(t *testing.T) {
	idx := MakeHeaderIndex([]string{"Name", "Price", "name", ""})

	if len(idx) != 2 {
		t.Fatalf("len(idx) = %d, want 2", len(idx))
	}
	if idx["name"] != "Name" {
		t.Errorf("idx[name] = %q, want first occurrence %q", idx["name"], "Name")
	}
	if idx["price"] != "Price" {
		t.Errorf("idx[price] = %q, want %q", idx["price"], "Price")
	}
}
