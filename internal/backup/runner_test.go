// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package backup

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/xbackup/internal/artifact"
	"github.com/tomtom215/xbackup/internal/config"
	"github.com/tomtom215/xbackup/internal/logging"
	"github.com/tomtom215/xbackup/internal/notify"
	"github.com/tomtom215/xbackup/internal/preflight"
	"github.com/tomtom215/xbackup/internal/storage"
)

var testNow = time.Date(2026, 10, 18, 2, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Notify(_ context.Context, ev *notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *ev)
	return nil
}

func (r *recorder) types() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.EventType
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) last() notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

// failingStore rejects uploads for keys containing match.
type failingStore struct {
	storage.Backend
	match string
}

func (f *failingStore) Upload(ctx context.Context, localPath, key string) error {
	if strings.Contains(key, f.match) {
		return errors.New("upload rejected")
	}
	return f.Backend.Upload(ctx, localPath, key)
}

type testEnv struct {
	cfg      *config.Config
	root     string
	store    storage.Backend
	notifier *recorder
}

func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "home")
	writeTree(t, filepath.Join(root, "alice"), map[string]string{
		"notes.txt":       "alice notes",
		"docs/report.txt": strings.Repeat("quarterly ", 1000),
	})
	writeTree(t, filepath.Join(root, "bob"), map[string]string{
		"todo.txt": "bob todo",
	})

	cfg := config.Default()
	cfg.Source.Root = root
	cfg.WorkDir = filepath.Join(base, "work")
	cfg.Compression.Method = "zstd"
	cfg.Compression.Native = true
	cfg.Encryption.Method = "aes"
	cfg.Encryption.Passphrase = "correct horse"
	cfg.Storage.Local.Path = filepath.Join(base, "store")
	cfg.Storage.Prefix = "hosts/web1"
	cfg.Preflight.MinFreeBytes = 0
	cfg.Retention.KeepLatest = 3

	store, err := storage.NewLocal(cfg.Storage.Local.Path, logging.Nop())
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	return &testEnv{cfg: cfg, root: root, store: store, notifier: &recorder{}}
}

func (e *testEnv) runner(t *testing.T) *Runner {
	t.Helper()
	r, err := NewRunner(context.Background(), e.cfg, Deps{
		Store:    e.store,
		Notifier: e.notifier,
		Now:      func() time.Time { return testNow },
	}, logging.Nop())
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	return r
}

func userResult(t *testing.T, report *RunReport, user string) UserResult {
	t.Helper()
	for _, res := range report.Users {
		if res.User == user {
			return res
		}
	}
	t.Fatalf("no result for %s in %+v", user, report.Users)
	return UserResult{}
}

func TestRunner_RunBacksUpEveryUser(t *testing.T) {
	env := newTestEnv(t)
	r := env.runner(t)

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !report.OK() || report.Succeeded != 2 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}

	for _, user := range []string{"alice", "bob"} {
		res := userResult(t, report, user)
		if res.Status != StatusSucceeded || res.Stage != StageDone {
			t.Errorf("%s: status %s stage %s", user, res.Status, res.Stage)
		}
		if !strings.HasPrefix(res.Key, "hosts/web1/"+user+".2026-10-18_020000.tar") {
			t.Errorf("%s: key = %s", user, res.Key)
		}
		name := artifact.Decode(path.Base(res.Key))
		if name.Compression != artifact.Zstd || name.Encryption != artifact.AES {
			t.Errorf("%s: decoded %+v", user, name)
		}
		if res.Size == 0 || res.Files == 0 {
			t.Errorf("%s: size %d files %d", user, res.Size, res.Files)
		}
	}

	records, err := env.store.List(context.Background(), r.RotationPrefix())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("stored %d artifacts, want 2", len(records))
	}

	entries, err := os.ReadDir(env.cfg.WorkDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != LockName {
			t.Errorf("work dir still contains %s", e.Name())
		}
	}

	want := []notify.EventType{notify.BackupSucceeded, notify.BackupSucceeded, notify.RotationCompleted, notify.RunCompleted}
	if got := env.notifier.types(); !equalTypes(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func equalTypes(a, b []notify.EventType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRunner_FailedUserDoesNotStopRun(t *testing.T) {
	env := newTestEnv(t)
	env.store = &failingStore{Backend: env.store, match: "/bob."}
	r := env.runner(t)

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.OK() || report.Succeeded != 1 || report.Failed != 1 {
		t.Fatalf("report = %+v", report)
	}

	bob := userResult(t, report, "bob")
	if bob.Status != StatusFailed || bob.Stage != StageUpload || !strings.Contains(bob.Error, "upload rejected") {
		t.Errorf("bob = %+v", bob)
	}
	if alice := userResult(t, report, "alice"); alice.Status != StatusSucceeded {
		t.Errorf("alice = %+v", alice)
	}

	last := env.notifier.last()
	if last.Type != notify.RunCompleted || last.Counts["failed"] != 1 || !last.Failed() {
		t.Errorf("run event = %+v", last)
	}
}

func TestRunner_RotatesAfterBackup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "old")
	if err := os.WriteFile(src, []byte("old artifact"), 0o600); err != nil {
		t.Fatal(err)
	}
	for day := 1; day <= 5; day++ {
		stamp := time.Date(2026, 9, day, 2, 0, 0, 0, time.UTC)
		key := storage.JoinKey(env.cfg.Storage.Prefix, artifact.Encode(artifact.BaseName("alice", stamp, "tar"), artifact.Zstd, artifact.AES))
		if err := env.store.Upload(ctx, src, key); err != nil {
			t.Fatal(err)
		}
		p := filepath.Join(env.cfg.Storage.Local.Path, filepath.FromSlash(key))
		if err := os.Chtimes(p, stamp, stamp); err != nil {
			t.Fatal(err)
		}
	}

	report, err := env.runner(t).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Rotation == nil {
		t.Fatalf("no rotation result, error %q", report.RotationError)
	}
	// alice has 6 artifacts and keeps 3; bob has 1.
	if got := len(report.Rotation.Deleted); got != 3 {
		t.Errorf("deleted %d, want 3", got)
	}

	records, err := env.store.List(ctx, storage.ListPrefix(env.cfg.Storage.Prefix))
	if err != nil {
		t.Fatal(err)
	}
	var alice int
	for _, rec := range records {
		if strings.Contains(rec.Path, "/alice.") {
			alice++
			if strings.Contains(rec.Path, "2026-09-01") || strings.Contains(rec.Path, "2026-09-02") {
				t.Errorf("oldest artifact survived: %s", rec.Path)
			}
		}
	}
	if alice != 3 {
		t.Errorf("alice has %d artifacts, want 3", alice)
	}
}

// undeletableStore refuses every delete.
type undeletableStore struct {
	storage.Backend
}

func (undeletableStore) Delete(context.Context, string) error {
	return errors.New("object locked")
}

func TestRunner_RotationDeleteFailureFailsRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "old")
	if err := os.WriteFile(src, []byte("old artifact"), 0o600); err != nil {
		t.Fatal(err)
	}
	for day := 1; day <= 4; day++ {
		stamp := time.Date(2026, 9, day, 2, 0, 0, 0, time.UTC)
		key := storage.JoinKey(env.cfg.Storage.Prefix, artifact.Encode(artifact.BaseName("alice", stamp, "tar"), artifact.Zstd, artifact.AES))
		if err := env.store.Upload(ctx, src, key); err != nil {
			t.Fatal(err)
		}
		p := filepath.Join(env.cfg.Storage.Local.Path, filepath.FromSlash(key))
		if err := os.Chtimes(p, stamp, stamp); err != nil {
			t.Fatal(err)
		}
	}
	env.store = undeletableStore{Backend: env.store}

	report, err := env.runner(t).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Succeeded != 2 || report.Rotation == nil {
		t.Fatalf("report = %+v", report)
	}
	if got := len(report.Rotation.Failed); got != 2 {
		t.Errorf("failed deletions = %d, want 2", got)
	}
	if report.OK() {
		t.Error("a run with failed deletions should not be OK")
	}

	var rotation *notify.Event
	for _, ev := range env.notifier.events {
		if ev.Type == notify.RotationCompleted {
			rotation = &ev
		}
	}
	if rotation == nil || rotation.Counts["failed"] != 2 || rotation.Error == "" {
		t.Errorf("rotation event = %+v", rotation)
	}
}

func TestRunner_RetentionDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Retention.Enabled = false

	report, err := env.runner(t).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Rotation != nil {
		t.Errorf("rotation ran while disabled")
	}
	for _, typ := range env.notifier.types() {
		if typ == notify.RotationCompleted || typ == notify.RotationFailed {
			t.Errorf("unexpected %s event", typ)
		}
	}
}

func TestRunner_MissingIncludedUser(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Source.Include = []string{"alice", "carol"}

	report, err := env.runner(t).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Users) != 1 || report.Users[0].User != "alice" {
		t.Errorf("users = %+v", report.Users)
	}
	if len(report.MissingUsers) != 1 || report.MissingUsers[0] != "carol" {
		t.Errorf("missing = %v", report.MissingUsers)
	}
}

func TestRunner_PreflightFailureAborts(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Compression.Native = false
	env.cfg.Compression.Method = "gzip"

	r, err := NewRunner(context.Background(), env.cfg, Deps{
		Store:    env.store,
		Notifier: env.notifier,
		Checker: &preflight.Checker{
			LookPath: func(file string) (string, error) { return "", errors.New("not found") },
		},
	}, logging.Nop())
	if err != nil {
		t.Fatal(err)
	}

	report, err := r.Run(context.Background())
	if !errors.Is(err, preflight.ErrFailed) {
		t.Fatalf("Run() error = %v, want preflight failure", err)
	}
	if report.Error == "" || len(report.Users) != 0 {
		t.Errorf("report = %+v", report)
	}
	if got := env.notifier.types(); !equalTypes(got, []notify.EventType{notify.RunCompleted}) {
		t.Errorf("events = %v", got)
	}
	if ev := env.notifier.last(); ev.Error == "" {
		t.Errorf("run event carries no error: %+v", ev)
	}
}

func TestRunner_LockHeld(t *testing.T) {
	env := newTestEnv(t)
	if err := os.MkdirAll(env.cfg.WorkDir, 0o700); err != nil {
		t.Fatal(err)
	}
	unlock, err := acquireLock(filepath.Join(env.cfg.WorkDir, LockName))
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	if _, err := env.runner(t).Run(context.Background()); !errors.Is(err, ErrLocked) {
		t.Errorf("Run() error = %v, want ErrLocked", err)
	}
}

func TestRunner_CancelledRun(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := env.runner(t).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(report.Users) != 0 {
		t.Errorf("users processed after cancel: %+v", report.Users)
	}
	if ev := env.notifier.last(); ev.Type != notify.RunCompleted {
		t.Errorf("last event = %s, want run.completed", ev.Type)
	}
}

func TestRunReport_WriteJSON(t *testing.T) {
	report := &RunReport{RunID: "abc", Compression: "zstd", Encryption: "none"}
	report.add(UserResult{User: "alice", Status: StatusSucceeded})
	report.add(UserResult{User: "bob", Status: StatusFailed, Error: "boom", ErrorKind: "tool_exited_nonzero"})

	var buf bytes.Buffer
	if err := report.WriteJSON(&buf); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["succeeded"].(float64) != 1 || decoded["failed"].(float64) != 1 {
		t.Errorf("counts = %v / %v", decoded["succeeded"], decoded["failed"])
	}
	if report.OK() {
		t.Error("report with a failed user should not be OK")
	}
}
