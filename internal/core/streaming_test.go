package core

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestBOMSkippingReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("name,price")...),
			expected: "name,price",
		},
		{
			name:     "file without BOM",
			input:    []byte("name,price"),
			expected: "name,price",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "partial BOM at start",
			input:    []byte{0xEF, 0xBB, 'a', 'b', 'c'},
			expected: string([]byte{0xEF, 0xBB, 'a', 'b', 'c'}),
		},
		{
			name:     "shorter than BOM",
			input:    []byte("ab"),
			expected: "ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewBOMSkippingReader(bytes.NewReader(tt.input))
			result, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestBOMSkippingReader_OneByteReads(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("a,b\n1,2\n")...)
	reader := NewBOMSkippingReader(iotest.OneByteReader(bytes.NewReader(input)))

	result, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != "a,b\n1,2\n" {
		t.Errorf("got %q", result)
	}
}

func TestStripBOM(t *testing.T) {
	if got := StripBOM([]byte("\xEF\xBB\xBFx")); string(got) != "x" {
		t.Errorf("StripBOM() = %q, want %q", got, "x")
	}
	if got := StripBOM([]byte("x")); string(got) != "x" {
		t.Errorf("StripBOM() = %q, want %q", got, "x")
	}
}

func TestReadLimited(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		max     int64
		wantErr bool
	}{
		{"under limit", "abc", 10, false},
		{"at limit", "abcde", 5, false},
		{"over limit", "abcdef", 5, true},
		{"no limit", strings.Repeat("x", 100), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := ReadLimited(strings.NewReader(tt.input), tt.max)
			if tt.wantErr {
				if !errors.Is(err, ErrFileTooLarge) {
					t.Errorf("ReadLimited() error = %v, want ErrFileTooLarge", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadLimited() error = %v", err)
			}
			if string(data) != tt.input {
				t.Errorf("ReadLimited() = %q, want %q", data, tt.input)
			}
		})
	}
}
