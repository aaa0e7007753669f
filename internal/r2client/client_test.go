package r2client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	full := Config{
		Endpoint:    "https://account.r2.cloudflarestorage.com",
		AccessKeyID: "key",
		SecretKey:   "secret",
		BucketName:  "catalogue",
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"complete", func(*Config) {}, ""},
		{"missing endpoint", func(c *Config) { c.Endpoint = "" }, "endpoint"},
		{"missing bucket", func(c *Config) { c.BucketName = "" }, "bucket"},
		{"missing credentials", func(c *Config) { c.AccessKeyID, c.SecretKey = "", "" }, "secret key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := full
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNew_RejectsIncompleteConfig(t *testing.T) {
	t.Parallel()
	if _, err := New(context.Background(), Config{Endpoint: "https://r2"}); err == nil {
		t.Error("Expected error for incomplete config")
	}
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	respErr := func(status int) error {
		return &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
			Err:      errors.New("status"),
		}
	}

	tests := []struct {
		name         string
		err          error
		notFound     bool
		precondition bool
	}{
		{"no such key", &types.NoSuchKey{}, true, false},
		{"head not found", &types.NotFound{}, true, false},
		{"api 404 code", &smithy.GenericAPIError{Code: "NotFound"}, true, false},
		{"http 404", respErr(http.StatusNotFound), true, false},
		{"api precondition", &smithy.GenericAPIError{Code: "PreconditionFailed"}, false, true},
		{"http 412 wrapped", fmt.Errorf("put: %w", respErr(http.StatusPreconditionFailed)), false, true},
		{"other", errors.New("connection reset"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isNotFound(tt.err); got != tt.notFound {
				t.Errorf("isNotFound() = %v, want %v", got, tt.notFound)
			}
			if got := isPreconditionFailed(tt.err); got != tt.precondition {
				t.Errorf("isPreconditionFailed() = %v, want %v", got, tt.precondition)
			}
		})
	}
}

func TestConditional(t *testing.T) {
	t.Parallel()

	ok, etag, err := conditional("k", "abc", nil)
	if !ok || etag != "abc" || err != nil {
		t.Errorf("success: got (%v, %q, %v)", ok, etag, err)
	}

	ok, _, err = conditional("k", "", &smithy.GenericAPIError{Code: "PreconditionFailed"})
	if ok || err != nil {
		t.Errorf("precondition: got (%v, %v), want (false, nil)", ok, err)
	}

	_, _, err = conditional("k", "", errors.New("boom"))
	if err == nil || !strings.Contains(err.Error(), `"k"`) {
		t.Errorf("failure: got %v, want wrapped error naming the key", err)
	}
}

func TestTrimETag(t *testing.T) {
	t.Parallel()
	quoted := `"d41d8cd9"`
	if got := trimETag(&quoted); got != "d41d8cd9" {
		t.Errorf("trimETag(%q) = %q", quoted, got)
	}
	if got := trimETag(nil); got != "" {
		t.Errorf("trimETag(nil) = %q", got)
	}
}

func TestDistributedLock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newMemStore()

	first := NewDistributedLock(store, "locks/catalogue.lock", time.Minute)
	second := NewDistributedLock(store, "locks/catalogue.lock", time.Minute)
	if first.OwnerID() == second.OwnerID() {
		t.Fatal("Owner IDs should be unique")
	}

	if ok, err := first.Acquire(ctx); !ok || err != nil {
		t.Fatalf("first Acquire = (%v, %v), want (true, nil)", ok, err)
	}
	if ok, err := second.Acquire(ctx); ok || err != nil {
		t.Fatalf("second Acquire = (%v, %v), want (false, nil)", ok, err)
	}

	// Release by a non-owner keeps the lock.
	if err := second.Release(ctx); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if _, err := store.HeadObject(ctx, "locks/catalogue.lock"); err != nil {
		t.Fatalf("Lock should still exist: %v", err)
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if ok, err := second.Acquire(ctx); !ok || err != nil {
		t.Fatalf("Acquire after release = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestDistributedLock_TakesOverExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newMemStore()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	stale := NewDistributedLock(store, "lock", time.Minute)
	stale.now = func() time.Time { return now }
	if ok, _ := stale.Acquire(ctx); !ok {
		t.Fatal("stale Acquire failed")
	}

	fresh := NewDistributedLock(store, "lock", time.Minute)
	fresh.now = func() time.Time { return now.Add(30 * time.Second) }
	if ok, _ := fresh.Acquire(ctx); ok {
		t.Fatal("Acquire should fail while the lock is live")
	}

	fresh.now = func() time.Time { return now.Add(2 * time.Minute) }
	if ok, err := fresh.Acquire(ctx); !ok || err != nil {
		t.Fatalf("Acquire of expired lock = (%v, %v), want (true, nil)", ok, err)
	}

	// The previous owner can no longer delete it.
	if err := stale.Release(ctx); err != nil {
		t.Fatalf("stale Release: %v", err)
	}
	if _, err := store.HeadObject(ctx, "lock"); err != nil {
		t.Errorf("Lock taken over by fresh owner should survive: %v", err)
	}
}

func TestDistributedLock_CorruptLockIsExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newMemStore()
	if _, err := store.Upload(ctx, "lock", strings.NewReader("not json"), ""); err != nil {
		t.Fatal(err)
	}

	lock := NewDistributedLock(store, "lock", time.Minute)
	if ok, err := lock.Acquire(ctx); !ok || err != nil {
		t.Fatalf("Acquire over corrupt lock = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestCompressDecompress(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	srcPath := filepath.Join(tmpDir, "catalogue.db")
	compressedPath := filepath.Join(tmpDir, "catalogue.db.zst")
	restoredPath := filepath.Join(tmpDir, "restored.db")

	testData := []byte(strings.Repeat("Медицина|Москва|Первый МГМУ|290\n", 2000))
	if err := os.WriteFile(srcPath, testData, 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if err := CompressFile(srcPath, compressedPath); err != nil {
		t.Fatalf("CompressFile failed: %v", err)
	}
	srcInfo, _ := os.Stat(srcPath)
	compressedInfo, err := os.Stat(compressedPath)
	if err != nil {
		t.Fatalf("Compressed file not created: %v", err)
	}
	if compressedInfo.Size() >= srcInfo.Size() {
		t.Errorf("Compressed size %d should be below original %d", compressedInfo.Size(), srcInfo.Size())
	}

	f, err := os.Open(compressedPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := DecompressStream(f, restoredPath); err != nil {
		t.Fatalf("DecompressStream failed: %v", err)
	}

	restored, err := os.ReadFile(restoredPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(restored, testData) {
		t.Error("Restored data does not match original")
	}

	// No temp files left behind
	entries, _ := os.ReadDir(tmpDir)
	if len(entries) != 3 {
		t.Errorf("Expected 3 files in temp dir, got %d", len(entries))
	}
}

func TestCompressFile_Errors(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()

	if err := CompressFile(filepath.Join(tmpDir, "missing.db"), filepath.Join(tmpDir, "out.zst")); err == nil {
		t.Error("Expected error for missing source")
	}
}

func TestDecompressStream_InvalidDataKeepsDestination(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	dst := filepath.Join(tmpDir, "catalogue.db")
	if err := os.WriteFile(dst, []byte("current"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := DecompressStream(strings.NewReader("not zstd data"), dst); err == nil {
		t.Fatal("Expected error for invalid zstd data")
	}

	data, _ := os.ReadFile(dst)
	if string(data) != "current" {
		t.Errorf("Destination should be untouched, got %q", data)
	}
}
