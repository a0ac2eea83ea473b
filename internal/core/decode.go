package core

// decode.go implements the Format Decoder: uploaded bytes in, ordered raw
// rows out.
//
// Two payload shapes are accepted:
//  1. A single delimited-text file (comma, semicolon or tab, sniffed from the
//     header line)
//  2. A ZIP archive holding one delimited-text member per entity type, named
//     after the type (category.csv, items.csv, modifier_groups.tsv, ...).
//     Only the member matching the requested type is read.
//
// Row indices are 1-based over data records, header excluded. Blank records
// keep their index and are reported in DecodedFile.Skipped. Decoding is pure:
// identical bytes always yield identical output.

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
)

// DefaultMaxRows is the default row ceiling per upload.
const DefaultMaxRows = 10000

// DefaultMaxFileSize is the default upload size ceiling (20MB).
const DefaultMaxFileSize int64 = 20 * 1024 * 1024

var (
	zipLocalHeader = []byte("PK\x03\x04")
	zipEmptyHeader = []byte("PK\x05\x06")
)

// Decoder turns uploaded bytes into raw rows for one entity type.
type Decoder struct {
	MaxRows  int   // Non-blank data rows allowed (0 = DefaultMaxRows)
	MaxBytes int64 // Payload size allowed (0 = DefaultMaxFileSize)
}

// Decode decodes data for entity type t.
func (d Decoder) Decode(data []byte, t catalog.EntityType) (*DecodedFile, error) {
	maxBytes := d.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileSize
	}
	if int64(len(data)) > maxBytes {
		return nil, &DecodeError{Code: DecodeFileTooLarge, Reason: fmt.Sprintf("payload exceeds %d bytes", maxBytes), Err: ErrFileTooLarge}
	}
	if len(data) == 0 {
		return nil, &DecodeError{Code: DecodeEmpty, Reason: "empty file"}
	}

	if IsArchive(data) {
		member, payload, err := d.extractMember(data, t, maxBytes)
		if err != nil {
			return nil, err
		}
		out, err := d.decodeText(payload)
		if err != nil {
			return nil, err
		}
		out.Member = member
		return out, nil
	}

	return d.decodeText(data)
}

// IsArchive reports whether data starts with a ZIP signature.
func IsArchive(data []byte) bool {
	return bytes.HasPrefix(data, zipLocalHeader) || bytes.HasPrefix(data, zipEmptyHeader)
}

func (d Decoder) extractMember(data []byte, t catalog.EntityType, maxBytes int64) (string, []byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, &DecodeError{Code: DecodeArchive, Err: err}
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		memberType, ok := memberEntityType(f.Name)
		if !ok || memberType != t {
			continue
		}
		if f.UncompressedSize64 > uint64(maxBytes) {
			return "", nil, &DecodeError{Code: DecodeFileTooLarge, Reason: fmt.Sprintf("member %s exceeds %d bytes", f.Name, maxBytes), Err: ErrFileTooLarge}
		}

		rc, err := f.Open()
		if err != nil {
			return "", nil, &DecodeError{Code: DecodeArchive, Reason: f.Name, Err: err}
		}
		payload, err := ReadLimited(rc, maxBytes)
		rc.Close()
		if err != nil {
			if errors.Is(err, ErrFileTooLarge) {
				return "", nil, &DecodeError{Code: DecodeFileTooLarge, Reason: f.Name, Err: ErrFileTooLarge}
			}
			return "", nil, &DecodeError{Code: DecodeArchive, Reason: f.Name, Err: err}
		}
		return f.Name, payload, nil
	}

	return "", nil, &DecodeError{Code: DecodeNoMember, Reason: fmt.Sprintf("archive has no %s file", t)}
}

// memberEntityType maps an archive member name to an entity type. Hidden
// files and macOS resource forks are ignored; plural stems are accepted.
func memberEntityType(name string) (catalog.EntityType, bool) {
	if strings.HasPrefix(name, "__MACOSX/") {
		return "", false
	}
	base := path.Base(name)
	if strings.HasPrefix(base, ".") {
		return "", false
	}
	ext := strings.ToLower(path.Ext(base))
	switch ext {
	case ".csv", ".tsv", ".txt":
	default:
		return "", false
	}

	stem := strings.ToLower(strings.TrimSuffix(base, path.Ext(base)))
	if t, ok := catalog.ParseEntityType(stem); ok {
		return t, true
	}
	switch {
	case strings.HasSuffix(stem, "ies"):
		return catalog.ParseEntityType(strings.TrimSuffix(stem, "ies") + "y")
	case strings.HasSuffix(stem, "s"):
		return catalog.ParseEntityType(strings.TrimSuffix(stem, "s"))
	}
	return "", false
}

func (d Decoder) decodeText(data []byte) (*DecodedFile, error) {
	text, err := io.ReadAll(NewBOMSkippingReader(bytes.NewReader(data)))
	if err != nil {
		return nil, &DecodeError{Code: DecodeEncoding, Err: err}
	}
	if !utf8.Valid(text) {
		return nil, &DecodeError{Code: DecodeEncoding, Reason: "file is not valid UTF-8"}
	}
	if bytes.IndexByte(text, 0) >= 0 {
		return nil, &DecodeError{Code: DecodeEncoding, Reason: "file contains binary data"}
	}
	if len(bytes.TrimSpace(text)) == 0 {
		return nil, &DecodeError{Code: DecodeNoHeader, Reason: "file has no header row"}
	}

	r := csv.NewReader(bytes.NewReader(text))
	r.Comma = sniffDelimiter(text)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, &DecodeError{Code: DecodeMalformed, Reason: "header", Err: err}
	}

	columns, positions := headerColumns(header)
	if len(columns) == 0 {
		return nil, &DecodeError{Code: DecodeNoHeader, Reason: "header row is blank"}
	}

	maxRows := d.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	out := &DecodedFile{Columns: columns}
	index := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &DecodeError{Code: DecodeMalformed, Err: err}
		}
		index++

		if isEmptyRow(record) {
			out.Skipped = append(out.Skipped, index)
			continue
		}
		if len(out.Rows) >= maxRows {
			return nil, &DecodeError{
				Code:   DecodeBatchTooLarge,
				Reason: fmt.Sprintf("more than %d rows", maxRows),
				Err:    ErrBatchTooLarge,
			}
		}

		fields := make(map[string]string, len(columns))
		for i, col := range columns {
			pos := positions[i]
			if pos < len(record) {
				fields[col] = record[pos]
			} else {
				fields[col] = ""
			}
		}
		out.Rows = append(out.Rows, RawRow{Index: index, Fields: fields})
	}

	return out, nil
}

// headerColumns returns the cleaned, de-duplicated header names and the
// record position of each. Blank header cells are dropped.
func headerColumns(header []string) ([]string, []int) {
	var (
		columns   []string
		positions []int
		seen      = make(map[string]bool, len(header))
	)
	for i, h := range header {
		name := CleanCell(h)
		key := NormalizeHeader(name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		columns = append(columns, name)
		positions = append(positions, i)
	}
	return columns, positions
}

// sniffDelimiter picks the most frequent of comma, semicolon and tab on the
// first non-blank line. Comma wins ties.
func sniffDelimiter(text []byte) rune {
	line := text
	for len(line) > 0 {
		end := bytes.IndexByte(line, '\n')
		var current []byte
		if end < 0 {
			current, line = line, nil
		} else {
			current, line = line[:end], line[end+1:]
		}
		if len(bytes.TrimSpace(current)) > 0 {
			line = current
			break
		}
	}

	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, c := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte{byte(c)}); n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
