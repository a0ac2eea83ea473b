// Package blob defines the object storage used to archive uploaded import
// files. Drivers live in the memory and s3 subpackages.
package blob

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

// Driver identifies a concrete blob storage backend.
type Driver string

const (
	DriverMemory Driver = "memory" // in-process (tests, CLI)
	DriverS3     Driver = "s3"     // S3 / MinIO compatible
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string            // MIME type, optional
	Metadata    map[string]string // User metadata (small, flat key-value)
}

// SignedURLOptions holds options for generating a pre-signed URL.
type SignedURLOptions struct {
	Method string        // GET only
	Expiry time.Duration // default 15m
}

// Info describes a stored blob.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is a minimal S3-like object store.
type Store interface {
	// Put stores a new blob at key. Fails with ErrExists if key is taken.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get retrieves contents and metadata. Fails with ErrNotFound if missing.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	// Delete removes a blob, reporting whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns blobs under prefix ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	// PresignURL returns a time-limited GET URL, or ErrUnsupported.
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	Driver() Driver
}

var (
	ErrUnsupported = errors.New("blob: unsupported operation")
	ErrNotFound    = errors.New("blob: not found")
	ErrExists      = errors.New("blob: already exists")
)

// DefaultPresignExpiry is used when SignedURLOptions.Expiry is zero.
const DefaultPresignExpiry = 15 * time.Minute

// ImportKey builds the archive key of an uploaded file:
// imports/<scope>/<session>/<file>. Path separators in the inputs are
// flattened so a file name can never escape its session prefix.
func ImportKey(scope, sessionID, fileName string) string {
	clean := func(s string) string {
		s = strings.NewReplacer("/", "_", "\\", "_").Replace(strings.TrimSpace(s))
		if s == "" || s == "." || s == ".." {
			return "_"
		}
		return s
	}
	name := clean(path.Base(strings.ReplaceAll(fileName, "\\", "/")))
	return path.Join("imports", clean(scope), clean(sessionID), name)
}

// ContentTypeFor guesses the content type of an uploaded import file.
func ContentTypeFor(fileName string) string {
	switch strings.ToLower(path.Ext(fileName)) {
	case ".zip":
		return "application/zip"
	case ".tsv":
		return "text/tab-separated-values"
	default:
		return "text/csv"
	}
}
