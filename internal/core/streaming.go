package core

// streaming.go provides reader helpers for uploaded import files:
//
//   - BOMSkippingReader: removes a UTF-8 BOM (0xEF 0xBB 0xBF) written by
//     spreadsheet exports on Windows
//   - ReadLimited: reads an upload into memory, failing once it exceeds the
//     configured size ceiling instead of buffering an unbounded body

import (
	"bytes"
	"fmt"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// BOMSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
type BOMSkippingReader struct {
	reader     io.Reader
	bomChecked bool
	pending    []byte // bytes read during BOM detection that were not a BOM
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{reader: r}
}

// Read implements io.Reader. On the first read, it checks for and skips the BOM.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.bomChecked {
		r.bomChecked = true

		var buf [3]byte
		n, err := io.ReadFull(r.reader, buf[:])
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return 0, err
		}
		if n == 3 && bytes.Equal(buf[:], utf8BOM) {
			r.pending = nil
		} else {
			r.pending = append([]byte(nil), buf[:n]...)
		}
		if n < 3 && len(r.pending) == 0 {
			return 0, io.EOF
		}
	}

	if len(r.pending) > 0 {
		copied := copy(p, r.pending)
		r.pending = r.pending[copied:]
		return copied, nil
	}

	return r.reader.Read(p)
}

// StripBOM returns data without a leading UTF-8 BOM.
func StripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}

// ReadLimited reads r fully. It returns ErrFileTooLarge if more than max
// bytes are available. max <= 0 disables the limit.
func ReadLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("upload exceeds %d bytes: %w", max, ErrFileTooLarge)
	}
	return data, nil
}
