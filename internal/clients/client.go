// internal/clients/client.go

// Package clients calls a running bookrec API. Error responses come back as
// the same tagged *apperr.Error the engine returns in process.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bookrec/internal/httpx"
	"bookrec/internal/membership"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	actor      *membership.Actor
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client, e.g. with httptest's.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithActor sends the identity headers on every request.
func WithActor(a membership.Actor) Option {
	return func(c *Client) { c.actor = &a }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.actor != nil {
		req.Header.Set(membership.ActorUserHeader, c.actor.Username)
		req.Header.Set(membership.ActorRoleHeader, string(c.actor.Role))
		if c.actor.UserID != 0 {
			req.Header.Set(membership.ActorIDHeader, fmt.Sprint(c.actor.UserID))
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var envelope struct {
			Error httpx.ErrorBody `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		return httpx.ErrorFromBody(resp.StatusCode, envelope.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Healthy reports whether the server answers its health check.
func (c *Client) Healthy(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}
