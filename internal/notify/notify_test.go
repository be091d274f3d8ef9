// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/xbackup/internal/config"
	"github.com/tomtom215/xbackup/internal/logging"
)

func successEvent() *Event {
	return &Event{
		Type:      BackupSucceeded,
		Timestamp: time.Date(2026, 10, 18, 2, 0, 0, 0, time.UTC),
		RunID:     "run-1",
		User:      "alice",
		Key:       "hosts/web1/alice.2026-10-18_020000.tar.xbk.zst",
		Size:      1234,
	}
}

func failureEvent() *Event {
	return &Event{
		Type:      BackupFailed,
		Timestamp: time.Date(2026, 10, 18, 2, 0, 0, 0, time.UTC),
		RunID:     "run-1",
		User:      "bob",
		Error:     "gpg exited 2",
		ErrorKind: "tool_exited_nonzero",
	}
}

func TestEvent_Failed(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want bool
	}{
		{"backup succeeded", Event{Type: BackupSucceeded}, false},
		{"backup failed", Event{Type: BackupFailed}, true},
		{"rotation failed", Event{Type: RotationFailed}, true},
		{"rotation completed", Event{Type: RotationCompleted, Counts: map[string]int{"failed": 1}}, false},
		{"run clean", Event{Type: RunCompleted, Counts: map[string]int{"succeeded": 3}}, false},
		{"run with failures", Event{Type: RunCompleted, Counts: map[string]int{"failed": 1}}, true},
		{"run error", Event{Type: RunCompleted, Error: "preflight"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.Failed(); got != tt.want {
				t.Errorf("Failed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWebhook_PostsJSON(t *testing.T) {
	var got Event
	var gotHeader, gotCT string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("Authorization")
		gotCT = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("payload is not JSON: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(config.WebhookConfig{
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer t0k"},
	}, logging.Nop())

	if err := wh.Notify(context.Background(), successEvent()); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if got.Type != BackupSucceeded || got.User != "alice" || got.Size != 1234 {
		t.Errorf("payload = %+v", got)
	}
	if gotHeader != "Bearer t0k" || gotCT != "application/json" {
		t.Errorf("headers Authorization=%q Content-Type=%q", gotHeader, gotCT)
	}
}

func TestWebhook_OnlyFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	wh := NewWebhook(config.WebhookConfig{URL: srv.URL, OnlyFailures: true}, logging.Nop())
	if err := wh.Notify(context.Background(), successEvent()); err != nil {
		t.Fatal(err)
	}
	if err := wh.Notify(context.Background(), failureEvent()); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Errorf("server saw %d calls, want 1", calls.Load())
	}
}

func TestWebhook_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	wh := NewWebhook(config.WebhookConfig{
		URL:         srv.URL,
		MaxFailures: 2,
		OpenTimeout: time.Hour,
	}, logging.Nop())

	for i := 0; i < 2; i++ {
		err := wh.Notify(context.Background(), failureEvent())
		if err == nil || !strings.Contains(err.Error(), "503") {
			t.Fatalf("attempt %d error = %v, want a 503", i, err)
		}
	}
	if wh.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", wh.State())
	}

	err := wh.Notify(context.Background(), failureEvent())
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Notify() with open breaker = %v, want ErrOpenState", err)
	}
	if calls.Load() != 2 {
		t.Errorf("server saw %d calls, want 2", calls.Load())
	}
}

func TestLog_WritesEvent(t *testing.T) {
	var buf bytes.Buffer
	n := NewLog(logging.NewTestLogger(&buf))

	if err := n.Notify(context.Background(), failureEvent()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{`"level":"error"`, `"event":"backup.failed"`, `"user":"bob"`, `"error_kind":"tool_exited_nonzero"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}

type failingNotifier struct{ err error }

func (f failingNotifier) Name() string                          { return "failing" }
func (f failingNotifier) Notify(context.Context, *Event) error { return f.err }

func TestFanout_JoinsErrors(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("boom")
	f := Fanout{NewLog(logging.NewTestLogger(&buf)), failingNotifier{err: boom}}

	err := f.Notify(context.Background(), successEvent())
	if !errors.Is(err, boom) {
		t.Errorf("Fanout.Notify() = %v, want boom", err)
	}
	if buf.Len() == 0 {
		t.Error("log notifier should still run when another notifier fails")
	}
}

func TestNew(t *testing.T) {
	n := New(config.NotifyConfig{}, logging.Nop())
	if f, ok := n.(Fanout); !ok || len(f) != 1 {
		t.Errorf("New() without webhook = %#v", n)
	}

	n = New(config.NotifyConfig{Webhook: config.WebhookConfig{URL: "http://127.0.0.1:1"}}, logging.Nop())
	if f, ok := n.(Fanout); !ok || len(f) != 2 || f[1].Name() != "webhook" {
		t.Errorf("New() with webhook = %#v", n)
	}
}
