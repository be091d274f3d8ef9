// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

//go:build integration

package testinfra

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

// WebhookCapture represents a captured webhook request.
type WebhookCapture struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
}

// WebhookServer is an HTTP server that captures notification deliveries.
type WebhookServer struct {
	Server *httptest.Server

	mu       sync.Mutex
	captures []WebhookCapture

	// ResponseStatus is the HTTP status code to return (default: 200).
	ResponseStatus int
}

// NewWebhookServer starts a capture server that is closed with the test.
func NewWebhookServer(t *testing.T) *WebhookServer {
	t.Helper()

	ws := &WebhookServer{ResponseStatus: http.StatusOK}
	ws.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // captured as-is
		r.Body.Close()                //nolint:errcheck,gosec

		ws.mu.Lock()
		ws.captures = append(ws.captures, WebhookCapture{
			Method:  r.Method,
			Path:    r.URL.Path,
			Headers: r.Header.Clone(),
			Body:    body,
		})
		status := ws.ResponseStatus
		ws.mu.Unlock()

		w.WriteHeader(status)
	}))
	t.Cleanup(ws.Server.Close)
	return ws
}

// URL returns the server URL.
func (w *WebhookServer) URL() string {
	return w.Server.URL
}

// Captures returns all captured requests.
func (w *WebhookServer) Captures() []WebhookCapture {
	w.mu.Lock()
	defer w.mu.Unlock()
	result := make([]WebhookCapture, len(w.captures))
	copy(result, w.captures)
	return result
}

// EventTypes decodes the "event" field of every captured body, in order.
func (w *WebhookServer) EventTypes() []string {
	var types []string
	for _, c := range w.Captures() {
		var payload struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(c.Body, &payload); err == nil {
			types = append(types, payload.Event)
		}
	}
	return types
}

// WaitForCaptures waits until at least n requests are captured or timeout elapses.
func (w *WebhookServer) WaitForCaptures(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		w.mu.Lock()
		count := len(w.captures)
		w.mu.Unlock()
		if count >= n {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}
