// Package api is the HTTP client for the TaskSparkle backend.
//
// Every call is a single round trip through Client.Request: no retries, no
// caching and no timeout beyond the transport's own. Responses are
// classified before decoding so a tunnel or proxy page surfaces as a
// ConnectivityError rather than a confusing JSON error.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/tasksparkle/internal/tunnel"
)

const defaultUserAgent = "TaskSparkle-App/1.0"

// TokenSource supplies the current bearer token. An empty string means
// unauthenticated.
type TokenSource interface {
	Token() string
}

// Client talks to the backend at a fixed base URL.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
	bypass     http.Header
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// New creates a client. tokens may be nil for a client that never
// authenticates.
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: http.DefaultClient,
		userAgent:  defaultUserAgent,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient = withLogging(c.httpClient, c.logger)
	c.bypass = tunnel.BypassHeaders(tunnel.ProviderForURL(c.baseURL), c.userAgent)
	return c
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request sends one request and decodes a JSON response into out.
//
// body, when non-nil, is JSON-encoded. out may be nil when the caller does
// not need the response. A successful response with an empty body leaves
// out untouched and returns nil.
func (c *Client) Request(ctx context.Context, method, endpoint string, body, out any) error {
	url := c.baseURL + endpoint
	reqID := requestID(ctx)
	log := c.logger.With("method", method, "endpoint", endpoint, "request_id", reqID)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", reqID)
	for k, v := range c.bypass {
		req.Header[k] = v
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug("request failed", "error", err)
		return &ConnectivityError{
			Diagnostic: fmt.Sprintf("could not connect to the server; verify the backend is running at %s", c.baseURL),
			Err:        err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Debug("read body failed", "status", resp.StatusCode, "error", err)
		return &ConnectivityError{
			Diagnostic: "connection dropped while reading the server response",
			Err:        err,
		}
	}

	if err := c.classify(resp, raw); err != nil {
		log.Debug("request rejected", "status", resp.StatusCode, "error", err)
		return err
	}

	if len(bytes.TrimSpace(raw)) == 0 || out == nil {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		log.Debug("decode failed", "status", resp.StatusCode, "error", err)
		return &MalformedResponseError{StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

// classify applies, in order: empty success, tunnel/HTML page, HTTP
// failure. It returns nil when the body should be decoded. A valid JSON
// body came from the backend, so marker text inside it is user data.
func (c *Client) classify(resp *http.Response, raw []byte) error {
	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	if success && (resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0) {
		return nil
	}

	if !json.Valid(raw) {
		if d := tunnel.Detect(raw); d != nil {
			return &ConnectivityError{Diagnostic: d.Message(c.baseURL), Tunnel: d}
		}
	}

	if !success {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp, raw)}
	}
	return nil
}

// errorMessage extracts the backend's error text: the "error" or "message"
// field of a JSON body, else the trimmed body, else the status line.
func errorMessage(resp *http.Response, raw []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		switch {
		case payload.Error != "":
			return payload.Error
		case payload.Message != "":
			return payload.Message
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return fmt.Sprintf("Erro %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
