// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/xbackup/internal/config"
	"github.com/tomtom215/xbackup/internal/logging"
)

const testBucket = "backups"

// fakeS3 serves the handful of path-style S3 calls the backend makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	deletes []string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/"+testBucket)
	key := strings.TrimPrefix(rest, "/")

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && key == "" && r.URL.Query().Get("list-type") == "2":
		f.list(w, r.URL.Query().Get("prefix"))
	case r.Method == http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		f.objects[key] = body
		w.Header().Set("ETag", `"0123"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message><Key>%s</Key><RequestId>1</RequestId></Error>`, key)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		w.Header().Set("Last-Modified", time.Date(2026, 10, 18, 2, 0, 0, 0, time.UTC).Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		w.Write(body) //nolint:errcheck
	case r.Method == http.MethodDelete:
		delete(f.objects, key)
		f.deletes = append(f.deletes, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "unsupported", http.StatusNotImplemented)
	}
}

func (f *fakeS3) object(key string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[key]
}

func (f *fakeS3) put(key string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = body
}

func (f *fakeS3) deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}

func (f *fakeS3) list(w http.ResponseWriter, prefix string) {
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
	fmt.Fprintf(&b, "<Name>%s</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>", testBucket, prefix, len(keys))
	for i, k := range keys {
		mod := time.Date(2026, 10, 1+i, 2, 0, 0, 0, time.UTC)
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><LastModified>%s</LastModified><ETag>&quot;0123&quot;</ETag><Size>%d</Size><StorageClass>STANDARD</StorageClass></Contents>",
			k, mod.Format("2006-01-02T15:04:05.000Z"), len(f.objects[k]))
	}
	b.WriteString("</ListBucketResult>")

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, b.String()) //nolint:errcheck
}

func newTestS3(t *testing.T) (*S3, *fakeS3) {
	t.Helper()
	fake := newFakeS3()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	backend, err := NewS3(context.Background(), config.S3StorageConfig{
		Bucket:          testBucket,
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		UsePathStyle:    true,
	}, logging.Nop())
	if err != nil {
		t.Fatalf("NewS3() error = %v", err)
	}
	return backend, fake
}

func TestS3_RoundTrip(t *testing.T) {
	ctx := context.Background()
	backend, fake := newTestS3(t)

	src := filepath.Join(t.TempDir(), "artifact")
	if err := os.WriteFile(src, []byte("encrypted bytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	key := "hosts/web1/alice.2026-10-18_020000.tar.xbk.zst.aes"
	if err := backend.Upload(ctx, src, key); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if got := fake.object(key); string(got) != "encrypted bytes" {
		t.Fatalf("stored %q", got)
	}

	dst := filepath.Join(t.TempDir(), "restored")
	if err := backend.Download(ctx, key, dst); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if got, _ := os.ReadFile(dst); string(got) != "encrypted bytes" {
		t.Errorf("downloaded %q", got)
	}

	records, err := backend.List(ctx, "hosts/web1/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 1 || records[0].Path != key || records[0].Size != int64(len("encrypted bytes")) {
		t.Errorf("List() = %+v", records)
	}
	if records[0].ModTime.IsZero() {
		t.Error("List() should carry LastModified")
	}

	if err := backend.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deletes := fake.deleted(); len(deletes) != 1 || deletes[0] != key {
		t.Errorf("deletes = %v", deletes)
	}
}

func TestS3_DownloadMissing(t *testing.T) {
	backend, _ := newTestS3(t)
	dst := filepath.Join(t.TempDir(), "restored")

	err := backend.Download(context.Background(), "nope", dst)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Download() error = %v, want ErrNotFound", err)
	}
	if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
		t.Error("no local file should be created for a missing key")
	}
}

func TestS3_ListPrefixAndDirs(t *testing.T) {
	backend, fake := newTestS3(t)
	fake.put("a/x.2026-10-01.tar.xbk", []byte("1"))
	fake.put("a/", nil)
	fake.put("b/y.2026-10-01.tar.xbk", []byte("22"))

	records, err := backend.List(context.Background(), "a/")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("List() = %+v", records)
	}
	for _, r := range records {
		if r.Path == "a/" && !r.IsDir {
			t.Error("folder marker should be reported as a directory")
		}
	}
}

func TestS3_RequiresBucket(t *testing.T) {
	if _, err := NewS3(context.Background(), config.S3StorageConfig{}, logging.Nop()); err == nil {
		t.Error("NewS3() without a bucket should fail")
	}
}

func TestNew_SelectsBackend(t *testing.T) {
	b, err := New(context.Background(), config.StorageConfig{
		Type:  "local",
		Local: config.LocalStorageConfig{Path: t.TempDir()},
	}, logging.Nop())
	if err != nil || b.Name() != "local" {
		t.Fatalf("New(local) = %v, %v", b, err)
	}

	if _, err := New(context.Background(), config.StorageConfig{Type: "ftp"}, logging.Nop()); err == nil {
		t.Error("New() should reject unknown types")
	}
}

func TestNew_BandwidthLimit(t *testing.T) {
	b, err := New(context.Background(), config.StorageConfig{
		Type:           "local",
		BandwidthLimit: 1 << 20,
		Local:          config.LocalStorageConfig{Path: t.TempDir()},
	}, logging.Nop())
	if err != nil {
		t.Fatal(err)
	}
	l, ok := b.(*Local)
	if !ok {
		t.Fatalf("New() = %T, want *Local", b)
	}
	if got := l.limit.BytesPerSecond(); got != 1<<20 {
		t.Errorf("limit = %d, want %d", got, 1<<20)
	}

	src := writeLocalFile(t, t.TempDir(), "small", "throttled payload")
	if err := b.Upload(context.Background(), src, "a/b"); err != nil {
		t.Fatalf("Upload() through limiter error = %v", err)
	}
}
