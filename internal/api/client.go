package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ASDFGHan123/unichat/internal/bus"
	"go.uber.org/zap"
)

// ErrUnauthorized is returned for any 401 response. The client clears its
// token and publishes session.auth_required; call sites must not retry.
var ErrUnauthorized = errors.New("api: unauthorized")

// StatusError is a non-2xx response other than 401.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("api: unexpected status %d", e.Code)
}

// Client is the REST client for the chat/admin backend. All chat and admin
// operations go through it; 401 handling is centralized here rather than at
// each call site.
type Client struct {
	baseURL string
	http    *http.Client
	bus     *bus.Bus
	logger  *zap.Logger

	mu     sync.RWMutex
	token  string
	selfID string
}

// New creates a client for the backend at baseURL (no trailing slash needed).
func New(baseURL string, b *bus.Bus, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		bus:     b,
		logger:  logger,
	}
}

// SetToken installs the auth token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current auth token, or "".
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// doJSON performs a request with an optional JSON body and decodes the JSON
// response into out (which may be nil).
func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

// do sends the request with auth and decodes the response into out.
func (c *Client) do(req *http.Request, out any) error {
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Token "+tok)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		c.handleUnauthorized(req)
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Message: readAPIError(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// download fetches a raw body (backup archives).
func (c *Client) download(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Token "+tok)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusUnauthorized {
		c.handleUnauthorized(req)
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Message: readAPIError(resp.Body)}
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) handleUnauthorized(req *http.Request) {
	c.logger.Warn("unauthorized response, re-authentication required",
		zap.String("path", req.URL.Path))
	c.SetToken("")
	if c.bus != nil {
		c.bus.Publish(bus.Event{Kind: bus.KindSessionAuthRequired, Timestamp: time.Now()})
	}
}

// readAPIError extracts a Django-style error message from a response body.
func readAPIError(r io.Reader) string {
	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&payload); err != nil {
		return ""
	}
	if payload.Detail != "" {
		return payload.Detail
	}
	return payload.Error
}
