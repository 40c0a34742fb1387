// Package client provides the HTTP transport used by all simulation service calls.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// maxErrorBody bounds how much of a failing response body is retained for
// diagnostics.
const maxErrorBody = 8 * 1024

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client. Tests use this to
// inject transports; callers that stream must make sure the client has no
// global timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With("module", "client")
	}
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: slog.With("module", "client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Resolve turns a relative path into an absolute URL against the configured
// base. Absolute URLs pass through untouched.
func (c *Client) Resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return c.baseURL + path
}

// Request performs a raw call. Callers that must special-case individual
// status codes (202, 404, 425) use this directly; everyone else goes through
// GetJSON/PostJSON/GetText. The caller owns the response body.
func (c *Client) Request(ctx context.Context, method, path string, body any, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}

		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Resolve(path), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	c.logger.DebugContext(ctx, "Performing request", "method", method, "url", req.URL.String())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

// GetText fetches a path and returns the body as a string. Non-2xx responses
// become an *HTTPError carrying the body; HTML bodies are re-labeled as a
// misroute (ErrHTMLResponse).
func (c *Client) GetText(ctx context.Context, path string) (string, error) {
	resp, err := c.Request(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return "", err
	}
	defer closeBody(resp)

	raw, err := readBody(resp)
	if err != nil {
		return "", err
	}

	if err := StatusError(resp.StatusCode, raw); err != nil {
		return "", err
	}

	return string(raw), nil
}

// GetJSON fetches a path and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := c.Request(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	defer closeBody(resp)

	return decodeResponse(resp, out)
}

// PostJSON posts a JSON body to a path and decodes the JSON response into
// out. A nil out discards the response body.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	resp, err := c.Request(ctx, http.MethodPost, path, body, nil)
	if err != nil {
		return err
	}
	defer closeBody(resp)

	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	raw, err := readBody(resp)
	if err != nil {
		return err
	}

	if err := StatusError(resp.StatusCode, raw); err != nil {
		return err
	}

	if out == nil {
		return nil
	}

	if IsHTML(raw) {
		return ErrHTMLResponse
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func readBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return raw, nil
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
