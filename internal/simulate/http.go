package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/proctor/internal/domain/types"
)

// ErrStatus is returned when the daemon answers with an unexpected status.
var ErrStatus = errors.New("unexpected status")

// apiError mirrors the daemon's error body.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client talks to the proctor daemon's HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", "", nil, http.StatusOK, nil)
}

// Stats reads GET /stats.
func (c *Client) Stats(ctx context.Context) (types.Stats, error) {
	var out types.Stats
	err := c.do(ctx, http.MethodGet, "/stats", "", nil, http.StatusOK, &out)
	return out, err
}

// StartSession posts POST /sessions.
func (c *Client) StartSession(ctx context.Context, req types.StartSessionRequest) (types.Session, error) {
	var out types.Session
	err := c.doJSON(ctx, http.MethodPost, "/sessions", req, http.StatusCreated, &out)
	return out, err
}

// Signal posts POST /sessions/{id}/signals and returns the session after it.
func (c *Client) Signal(ctx context.Context, id string, req types.SignalRequest) (types.Session, error) {
	var out types.Session
	err := c.doJSON(ctx, http.MethodPost, "/sessions/"+id+"/signals", req, http.StatusOK, &out)
	return out, err
}

// PushFrame uploads a raw frame.
func (c *Client) PushFrame(ctx context.Context, id string, frame []byte) error {
	return c.do(ctx, http.MethodPost, "/sessions/"+id+"/frames", "image/jpeg", frame, http.StatusAccepted, nil)
}

// StopSession posts POST /sessions/{id}/stop.
func (c *Client) StopSession(ctx context.Context, id string) (types.Record, error) {
	var out types.Record
	err := c.do(ctx, http.MethodPost, "/sessions/"+id+"/stop", "", nil, http.StatusOK, &out)
	return out, err
}

// Record reads GET /records/{id}.
func (c *Client) Record(ctx context.Context, id string) (types.Record, error) {
	var out types.Record
	err := c.do(ctx, http.MethodGet, "/records/"+id, "", nil, http.StatusOK, &out)
	return out, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, want int, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	return c.do(ctx, method, path, "application/json", jsonData, want, out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != want {
		var apiErr apiError
		_ = json.Unmarshal(data, &apiErr)
		return fmt.Errorf("%w: %s %s: %d %s %s", ErrStatus, method, path, resp.StatusCode, apiErr.Code, apiErr.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
