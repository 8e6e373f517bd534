// Package api implements the authenticated HTTP surface of the chat
// backend: credential storage and refresh, session calls, message send,
// and the streaming endpoint. Every request goes through the same
// wrapper, which attaches the bearer credential and performs one
// deduplicated refresh plus a single retry when the server rejects it.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds ordinary requests. Streaming requests have no
// deadline; an open stream lives until the server or the caller ends it.
const DefaultTimeout = 30 * time.Second

// Config carries the client construction parameters.
type Config struct {
	// BaseURL is the API origin, without a trailing slash.
	BaseURL string
	// Timeout bounds non-streaming requests. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Client is the authenticated HTTP client for the chat backend.
type Client struct {
	baseURL string
	httpc   *http.Client
	streamc *http.Client

	store     *TokenStore
	refresher *refresher

	onAuthExpired func()
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying transports. Mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpc = h
		c.streamc = h
	}
}

// WithOnAuthExpired registers the redirect-to-login signal. It fires
// after credentials have been cleared because a refresh failed or a
// retried request was rejected again.
func WithOnAuthExpired(fn func()) Option {
	return func(c *Client) {
		c.onAuthExpired = fn
	}
}

// NewClient creates a client around the given token store.
func NewClient(cfg Config, store *TokenStore, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		streamc: &http.Client{},
		store:   store,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.refresher = &refresher{baseURL: c.baseURL, httpc: c.httpc, store: store}
	return c
}

// BaseURL returns the configured API origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// newRequest builds a request against the API origin. Bodies must be
// rewindable (bytes.Reader or similar) so the post-refresh retry can
// replay them; http.NewRequestWithContext wires GetBody for those.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Request-ID", uuid.New().String())
	return req, nil
}

// Do executes req with the current access credential attached. A 401
// response joins or starts the shared refresh and, on success, retries
// the request exactly once with the new credential. When the refresh
// fails, or the retry is rejected again, stored credentials are cleared,
// the auth-expired signal fires, and the unauthorized response is
// returned for the caller to inspect.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.attachBearer(req)
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	log.Warn().Str("url", req.URL.Path).Msg("access credential rejected, refreshing")
	if _, rerr := c.refresher.refresh(req.Context()); rerr != nil {
		c.expireAuth()
		return resp, nil
	}

	retry, rerr := c.rebuild(req)
	if rerr != nil {
		return resp, nil
	}
	drain(resp)

	c.attachBearer(retry)
	resp, err = c.send(retry)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.expireAuth()
	}
	return resp, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	client := c.httpc
	if isStreamRequest(req) {
		client = c.streamc
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: req.URL.String(), Cause: err}
	}
	return resp, nil
}

func (c *Client) attachBearer(req *http.Request) {
	if pair, ok := c.store.Pair(); ok {
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	}
}

// rebuild clones req with a replayed body for the post-refresh retry.
func (c *Client) rebuild(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	return retry, nil
}

func (c *Client) expireAuth() {
	if err := c.store.Clear(); err != nil {
		log.Warn().Err(err).Msg("failed to clear stored credentials")
	}
	if c.onAuthExpired != nil {
		c.onAuthExpired()
	}
}

// isStreamRequest reports whether req targets the streaming endpoint,
// which must run without a deadline.
func isStreamRequest(req *http.Request) bool {
	if req.Header.Get("Accept") == "text/event-stream" {
		return true
	}
	return strings.HasSuffix(req.URL.Path, "/stream")
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	resp.Body.Close()
}

// getJSON performs an authenticated GET and decodes the response.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}

// postJSON performs an authenticated POST with a JSON body and decodes
// the response.
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := marshalBody(in)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}

// deleteJSON performs an authenticated DELETE and decodes the response.
func (c *Client) deleteJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}

// decodeJSON maps the response to a typed outcome: 2xx decodes into
// out, 401 becomes AuthExpiredError, anything else becomes an APIError
// carrying the server's detail text.
func decodeJSON(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return &AuthExpiredError{}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func marshalBody(in any) (io.Reader, error) {
	if in == nil {
		return nil, nil
	}
	data, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// apiError extracts the server's {"detail": ...} error body.
func apiError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err == nil {
		apiErr.Detail = body.Detail
	}
	return apiErr
}
