package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// Webhook POSTs alerts as JSON. Deliveries go through a circuit breaker so
// a dead endpoint is not hammered by every failing run.
type Webhook struct {
	url    string
	client *http.Client
	cb     *gobreaker.CircuitBreaker
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook, *gobreaker.Settings)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) WebhookOption {
	return func(w *Webhook, _ *gobreaker.Settings) { w.client = hc }
}

// WithBreakerTimeout sets how long the breaker stays open.
func WithBreakerTimeout(d time.Duration) WebhookOption {
	return func(_ *Webhook, s *gobreaker.Settings) { s.Timeout = d }
}

// NewWebhook creates a Webhook for url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	settings := gobreaker.Settings{
		Name:        "notify-webhook",
		MaxRequests: 1,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	for _, opt := range opts {
		opt(w, &settings)
	}
	w.cb = gobreaker.NewCircuitBreaker(settings)
	return w
}

// Notify implements Notifier.
func (w *Webhook) Notify(ctx context.Context, a Alert) error {
	body, err := json.Marshal(struct {
		Text string `json:"text"`
		Alert
	}{Text: a.Summary(), Alert: a})
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	_, err = w.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("webhook %s: %w", w.url, err)
	}
	return nil
}

// State reports the delivery breaker state.
func (w *Webhook) State() string { return w.cb.State().String() }
