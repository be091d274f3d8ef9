// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/xbackup/internal/config"
	"github.com/tomtom215/xbackup/internal/logging"
)

// userAgent is sent with every webhook request.
const userAgent = "xbackup/1.0"

// Webhook POSTs each event as JSON.
type Webhook struct {
	url          string
	headers      map[string]string
	onlyFailures bool
	client       *http.Client
	cb           *gobreaker.CircuitBreaker[struct{}]
	log          zerolog.Logger
}

// NewWebhook creates a webhook notifier.
// Circuit breaker configuration:
// - Opens after MaxFailures consecutive failed deliveries
// - Stays open for OpenTimeout, then lets one probe through
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewWebhook(cfg config.WebhookConfig, log zerolog.Logger) *Webhook {
	logger := logging.WithComponent(log, "notify-webhook")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 3
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "notify-webhook",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state transition")
		},
	})

	return &Webhook{
		url:          cfg.URL,
		headers:      cfg.Headers,
		onlyFailures: cfg.OnlyFailures,
		client:       &http.Client{Timeout: timeout},
		cb:           cb,
		log:          logger,
	}
}

// Name implements Notifier.
func (w *Webhook) Name() string { return "webhook" }

// Notify implements Notifier. With only_failures set, success events are dropped.
func (w *Webhook) Notify(ctx context.Context, ev *Event) error {
	if w.onlyFailures && !ev.Failed() {
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = w.cb.Execute(func() (struct{}, error) {
		return struct{}{}, w.post(ctx, payload)
	})
	if err != nil {
		return fmt.Errorf("webhook %s: %w", ev.Type, err)
	}
	return nil
}

func (w *Webhook) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for key, value := range w.headers {
		req.Header.Set(key, value)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // response body

	// Read response body for error details
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		body = []byte("(failed to read response)")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, logging.TruncateString(string(body), 256))
	}
	return nil
}

// State exposes the breaker state for tests and diagnostics.
func (w *Webhook) State() gobreaker.State {
	return w.cb.State()
}
