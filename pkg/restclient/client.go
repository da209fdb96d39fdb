package restclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultMaxBodyBytes bounds how much of a response is read.
const DefaultMaxBodyBytes = 32 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status: %d: %s", e.Code, e.Body)
}

type Client struct {
	endpoint     string
	httpClient   *http.Client
	headers      http.Header
	maxBodyBytes int64
}

// NewClient creates a client for a single endpoint. headers are sent with
// every request.
func NewClient(endpoint string, timeout time.Duration, headers http.Header) *Client {
	if headers == nil {
		headers = make(http.Header)
	}
	return &Client{
		endpoint:     endpoint,
		httpClient:   &http.Client{Timeout: timeout},
		headers:      headers.Clone(),
		maxBodyBytes: DefaultMaxBodyBytes,
	}
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// Fetch performs one request and returns the response body. There are no
// retries; the caller decides what to do on failure.
func (c *Client) Fetch(ctx context.Context, method string, body []byte) ([]byte, error) {
	if method == "" {
		method = http.MethodGet
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), c.endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}
	if len(body) > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: snippet}
	}

	return data, nil
}
