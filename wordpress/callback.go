// Package wordpress is the WordPress side of a pull. Records pulled from
// Odoo are POSTed to a callback endpoint exposed by the plugin, which
// writes them into the local tables.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xraph/odoosync/module"
)

var _ module.LocalStore = (*Callback)(nil)

// Callback implements module.LocalStore over HTTP.
type Callback struct {
	url    string
	token  string
	client *http.Client
}

// Option configures a Callback.
type Option func(*Callback)

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Callback) { c.token = token }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Callback) { c.client = hc }
}

// NewCallback creates a Callback posting to url.
func NewCallback(url string, opts ...Option) *Callback {
	c := &Callback{url: url, client: &http.Client{Timeout: 15 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type callbackRequest struct {
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	WPID       int64          `json:"wp_id,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
}

type callbackResponse struct {
	WPID int64 `json:"wp_id"`
}

// Error is a non-2xx answer from the callback endpoint.
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("wordpress: callback returned %d: %s", e.Status, e.Body)
}

// StatusCode lets the failure classifier treat 5xx as transient.
func (e *Error) StatusCode() int { return e.Status }

// Upsert implements module.LocalStore.
func (c *Callback) Upsert(ctx context.Context, entityType string, wpID int64, fields map[string]any) (int64, error) {
	var resp callbackResponse
	err := c.post(ctx, callbackRequest{Action: "upsert", EntityType: entityType, WPID: wpID, Fields: fields}, &resp)
	if err != nil {
		return 0, err
	}
	if resp.WPID <= 0 {
		return 0, errors.New("wordpress: callback returned no wp_id")
	}
	return resp.WPID, nil
}

// Delete implements module.LocalStore.
func (c *Callback) Delete(ctx context.Context, entityType string, wpID int64) error {
	return c.post(ctx, callbackRequest{Action: "delete", EntityType: entityType, WPID: wpID}, nil)
}

func (c *Callback) post(ctx context.Context, body callbackRequest, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("wordpress: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("wordpress: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("wordpress: callback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &Error{Status: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("wordpress: decode response: %w", err)
	}
	return nil
}
