// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/visionchat/internal/config"
	"github.com/jeranaias/visionchat/internal/model"
)

const (
	// DefaultTimeout bounds buffered requests. Streaming requests are bounded
	// by their context only.
	DefaultTimeout = 300 * time.Second

	// MaxResponseSize is the maximum allowed buffered response body size.
	// SECURITY: Response size limit prevents memory exhaustion attacks.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit

	// maxErrorBody caps how much of an error body is read.
	maxErrorBody = 64 * 1024

	userAgent = "visionchat/1.0"
)

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	sharedHTTPClient = &http.Client{
		Transport: newTransport(),
		Timeout:   DefaultTimeout,
	}

	// sharedStreamingClient has no timeout; streams are cancelled via context.
	sharedStreamingClient = &http.Client{
		Transport: newTransport(),
	}
)

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// Error variables for common endpoint errors.
var (
	// ErrNotConfigured indicates the endpoint URL is not set.
	ErrNotConfigured = errors.New("chat endpoint not configured")

	// ErrAuthFailed indicates the credential was rejected.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrNotFound indicates the endpoint or model does not exist.
	ErrNotFound = errors.New("endpoint or model not found")

	// ErrRateLimited indicates the endpoint is throttling requests.
	ErrRateLimited = errors.New("rate limited")

	// ErrEmptyResponse indicates a buffered response had no choices.
	ErrEmptyResponse = errors.New("response contained no choices")
)

// APIError is a non-2xx response from the endpoint.
type APIError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("endpoint error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	if e.Message == "" {
		return fmt.Sprintf("endpoint error %d", e.Status)
	}
	return fmt.Sprintf("endpoint error %d: %s", e.Status, e.Message)
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to a single chat-completions endpoint.
type Client struct {
	endpoint  string
	apiKey    string
	model     string
	userAgent string

	httpClient   *http.Client
	streamClient *http.Client
	logger       *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient uses hc for both buffered and streaming requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
			c.streamClient = hc
		}
	}
}

// WithTimeout sets the buffered request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Transport: c.httpClient.Transport, Timeout: d}
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient creates a client for endpoint. apiKey may be empty for
// endpoints that do not require auth.
func NewClient(endpoint, apiKey, modelName string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:     strings.TrimSpace(endpoint),
		apiKey:       strings.TrimSpace(apiKey),
		model:        modelName,
		userAgent:    userAgent,
		httpClient:   sharedHTTPClient,
		streamClient: sharedStreamingClient,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the model identifier sent with each request.
func (c *Client) Model() string {
	return c.model
}

// Endpoint returns the endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// IsConfigured reports whether an endpoint URL is set.
func (c *Client) IsConfigured() bool {
	return c.endpoint != ""
}

// HasKey reports whether a bearer credential is set.
func (c *Client) HasKey() bool {
	return c.apiKey != ""
}

// Redacted returns a display form of the credential that exposes no part of it.
func (c *Client) Redacted() string {
	return config.Redact(c.apiKey)
}

// =============================================================================
// REQUESTS
// =============================================================================

// OpenStream posts history with stream=true and returns the event-stream
// body. The caller must close it.
func (c *Client) OpenStream(ctx context.Context, history []model.Message) (io.ReadCloser, error) {
	resp, err := c.post(ctx, c.streamClient, history, true)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}
	return resp.Body, nil
}

// Complete posts history with stream=false and returns the first choice's
// message as sent by the endpoint.
func (c *Client) Complete(ctx context.Context, history []model.Message) (model.Message, error) {
	resp, err := c.post(ctx, c.httpClient, history, false)
	if err != nil {
		return model.Message{}, err
	}
	defer resp.Body.Close()

	// SECURITY: Read response with size limit to prevent memory exhaustion
	body, err := readResponse(resp)
	if err != nil {
		return model.Message{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.Message{}, c.handleErrorResponse(resp.StatusCode, body)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return model.Message{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return model.Message{}, ErrEmptyResponse
	}
	return ToModel(chatResp.Choices[0].Message), nil
}

// NewRequest builds the request body for history.
func (c *Client) NewRequest(history []model.Message, stream bool) ChatRequest {
	return ChatRequest{
		Model:    c.model,
		Messages: FromModels(history),
		Stream:   stream,
	}
}

func (c *Client) post(ctx context.Context, hc *http.Client, history []model.Message, stream bool) (*http.Response, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	bodyBytes, err := json.Marshal(c.NewRequest(history, stream))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, stream)
	c.logRequest(req, len(history), stream)

	start := time.Now()
	resp, err := hc.Do(req)

	// SECURITY: Clear Authorization header immediately after request to prevent logging
	req.Header.Del("Authorization")

	if err != nil {
		c.logger.Warn("chat request failed", "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("request failed: %w", err)
	}
	c.logger.Debug("chat response", "status", resp.StatusCode, "duration", time.Since(start))
	return resp, nil
}

func (c *Client) setHeaders(req *http.Request, stream bool) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// logRequest does not log headers (may contain auth) or body (may contain
// image data).
func (c *Client) logRequest(req *http.Request, messages int, stream bool) {
	c.logger.Debug("chat request",
		"method", req.Method,
		"path", req.URL.Path,
		"model", c.model,
		"messages", messages,
		"stream", stream,
		"key", config.Fingerprint(c.apiKey),
	)
}

// readResponse reads the response body with size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse converts HTTP error responses to appropriate Go errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	apiErr := parseErrorBody(statusCode, body)
	c.logger.Warn("chat endpoint returned error", "status", statusCode, "code", apiErr.Code)

	var sentinel error
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = ErrAuthFailed
	case http.StatusNotFound:
		sentinel = ErrNotFound
	case http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	default:
		return apiErr
	}
	if apiErr.Message == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, apiErr.Message)
}

// parseErrorBody reads either {"error":{"code":..,"message":..}} or
// {"error":"text"}, falling back to the raw body.
func parseErrorBody(statusCode int, body []byte) *APIError {
	out := &APIError{Status: statusCode}

	var env apiErrorResponse
	if err := json.Unmarshal(body, &env); err == nil && len(env.Error) > 0 {
		var detail apiErrorDetail
		var text string
		switch {
		case json.Unmarshal(env.Error, &text) == nil:
			out.Message = text
			return out
		case json.Unmarshal(env.Error, &detail) == nil && detail.Message != "":
			out.Message = detail.Message
			out.Code = strings.Trim(string(detail.Code), `"`)
			if out.Code == "null" {
				out.Code = ""
			}
			return out
		}
	}

	out.Message = strings.TrimSpace(string(body))
	if len(out.Message) > 512 {
		out.Message = out.Message[:512] + "..."
	}
	return out
}
