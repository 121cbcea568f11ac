// Package attemptlog talks to the remote attempt log: it registers exam
// attempts and records proctoring events against them.
package attemptlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/proctor/internal/domain/model"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

// Client is an attempt log HTTP client. It implements the session's
// attempt registration and the sink's publisher.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New creates a client rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type startRequest struct {
	CertificationID     string `json:"certification_id"`
	CertificationExamID string `json:"certification_exam_id,omitempty"`
	Consent             bool   `json:"consent"`
}

type startResponse struct {
	AttemptID json.RawMessage `json:"attempt_id"`
}

type eventRequest struct {
	EventType string         `json:"event_type"`
	Metadata  map[string]any `json:"metadata"`
}

// StartAttempt registers a new attempt and returns its id. The server may
// answer with a numeric or a string id.
func (c *Client) StartAttempt(ctx context.Context, meta model.SessionMeta) (string, error) {
	if meta.CertificationID == "" {
		return "", ErrNoCertification
	}

	var resp startResponse
	err := c.post(ctx, "/attempts/start", startRequest{
		CertificationID:     meta.CertificationID,
		CertificationExamID: meta.ExamID,
		Consent:             true,
	}, &resp)
	if err != nil {
		return "", err
	}
	return parseAttemptID(resp.AttemptID)
}

// PostEvent records one event against an attempt.
func (c *Client) PostEvent(ctx context.Context, attemptID, eventType string, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	path := "/attempts/" + url.PathEscape(attemptID) + "/events"
	return c.post(ctx, path, eventRequest{EventType: eventType, Metadata: metadata}, nil)
}

// Publish forwards a queued event. Events of sessions without a registered
// attempt have nowhere to go in the attempt log and are skipped.
func (c *Client) Publish(ctx context.Context, e model.Event) error { //nolint:gocritic // hugeParam: events travel by value
	if e.AttemptID == "" {
		return nil
	}
	return c.PostEvent(ctx, e.AttemptID, e.Type, e.Metadata)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("attempt log: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("attempt log: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("attempt log: %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return fmt.Errorf("%w: %s %d %s", ErrUnexpectedStatus, path, res.StatusCode, strings.TrimSpace(string(text)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("attempt log: decode %s: %w", path, err)
	}
	return nil
}

func parseAttemptID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", ErrMissingAttemptID
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", ErrMissingAttemptID
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("%w: %s", ErrMissingAttemptID, raw)
	}
	return n.String(), nil
}
