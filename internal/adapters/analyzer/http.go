// Package analyzer provides visual frame analyzers: a client for a remote
// vision endpoint and a simulated analyzer for drills and tests.
package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxResponseBytes   = 1 << 20
)

// HTTPAnalyzer posts frames to a remote vision endpoint.
//
// Request:  {"mime_type": "image/jpeg", "image": "<base64>"}
// Response: {"violations": ["looking-away", ...]}
type HTTPAnalyzer struct {
	url    string
	token  string
	client *http.Client
}

// HTTPOption applies a configuration option to the HTTPAnalyzer.
type HTTPOption func(*HTTPAnalyzer)

// WithAPIToken sets the bearer token sent to the endpoint.
func WithAPIToken(token string) HTTPOption {
	return func(a *HTTPAnalyzer) {
		a.token = token
	}
}

// WithHTTPTimeout bounds a single analysis request.
func WithHTTPTimeout(d time.Duration) HTTPOption {
	return func(a *HTTPAnalyzer) {
		if d > 0 {
			a.client.Timeout = d
		}
	}
}

// NewHTTP creates an analyzer for the endpoint at url.
func NewHTTP(url string, opts ...HTTPOption) *HTTPAnalyzer {
	a := &HTTPAnalyzer{
		url:    url,
		client: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type analyzeRequest struct {
	MimeType string `json:"mime_type"`
	Image    string `json:"image"`
}

type analyzeResponse struct {
	Violations []string `json:"violations"`
}

// Analyze sends frame and returns the labels the endpoint reported.
func (a *HTTPAnalyzer) Analyze(ctx context.Context, frame []byte) ([]string, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}

	body, err := json.Marshal(analyzeRequest{
		MimeType: "image/jpeg",
		Image:    base64.StdEncoding.EncodeToString(frame),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %w", ErrAnalysis, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnalysis, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	res, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnalysis, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxResponseBytes))
		return nil, fmt.Errorf("%w: status %d", ErrAnalysis, res.StatusCode)
	}

	var out analyzeResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, maxResponseBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrAnalysis, err)
	}
	return out.Violations, nil
}
