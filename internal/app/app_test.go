package app

import (
	"context"
	"testing"
	"time"

	"github.com/JonMunkholm/catalogimport/internal/blob"
	"github.com/JonMunkholm/catalogimport/internal/config"
	"github.com/JonMunkholm/catalogimport/internal/core"
)

func TestOpenBlobStore(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		cfg     config.BlobConfig
		want    blob.Driver
		wantNil bool
		wantErr bool
	}{
		{"none", config.BlobConfig{Driver: "none"}, "", true, false},
		{"empty", config.BlobConfig{}, "", true, false},
		{"memory", config.BlobConfig{Driver: "memory"}, blob.DriverMemory, false, false},
		{"s3", config.BlobConfig{Driver: "S3", S3Bucket: "imports", S3Region: "eu-west-1", S3Endpoint: "http://localhost:9000", S3PathStyle: true}, blob.DriverS3, false, false},
		{"s3 without bucket", config.BlobConfig{Driver: "s3"}, "", false, true},
		{"unknown", config.BlobConfig{Driver: "gcs"}, "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := OpenBlobStore(ctx, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("OpenBlobStore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.wantNil {
				if st != nil {
					t.Errorf("OpenBlobStore() = %v, want nil", st)
				}
				return
			}
			if st.Driver() != tt.want {
				t.Errorf("Driver() = %q, want %q", st.Driver(), tt.want)
			}
		})
	}
}

func TestNewNotifier_WithoutRedis(t *testing.T) {
	n, closeFn, err := NewNotifier(context.Background(), config.RedisConfig{})
	if err != nil {
		t.Fatalf("NewNotifier() error = %v", err)
	}
	multi, ok := n.(core.MultiNotifier)
	if !ok || len(multi) != 1 {
		t.Errorf("notifier = %#v, want log notifier only", n)
	}
	if err := closeFn(); err != nil {
		t.Errorf("close error = %v", err)
	}
}

func TestNewNotifier_BadURL(t *testing.T) {
	if _, _, err := NewNotifier(context.Background(), config.RedisConfig{URL: "http://not-redis"}); err == nil {
		t.Error("NewNotifier() should reject a non-redis URL")
	}
}

func TestServiceOptions(t *testing.T) {
	cfg := config.ImportConfig{MaxRows: 2, MaxFileSize: 1 << 20, MaxConcurrent: 3, MaxWaitTime: time.Second, LockWait: time.Second, CommitTimeout: time.Minute}
	svc := core.NewService(core.NewMemorySessionStore(), nil, ServiceOptions(cfg, nil, nil, nil)...)
	if got := svc.LimiterStatus().MaxConcurrent; got != 3 {
		t.Errorf("MaxConcurrent = %d, want 3", got)
	}
}

func TestLoadAliases(t *testing.T) {
	if err := LoadAliases(""); err != nil {
		t.Errorf("LoadAliases(\"\") error = %v", err)
	}
	if err := LoadAliases(t.TempDir() + "/missing.yaml"); err == nil {
		t.Error("LoadAliases() should fail for a missing file")
	}
}
