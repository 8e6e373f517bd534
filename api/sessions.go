package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bazelment/quill/protocol"
)

// Session is a chat session summary. Timestamps are the server's
// strings, passed through verbatim.
type Session struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// CreateSession creates a new chat session. Title may be empty; the
// server derives one from the first message.
func (c *Client) CreateSession(ctx context.Context, title string) (Session, error) {
	var s Session
	err := c.postJSON(ctx, "/chat/sessions", map[string]string{"title": title}, &s)
	return s, err
}

// ListSessions returns the caller's sessions, newest first.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var out []Session
	if err := c.getJSON(ctx, "/chat/sessions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSession returns one session by id.
func (c *Client) GetSession(ctx context.Context, id string) (Session, error) {
	var s Session
	err := c.getJSON(ctx, "/chat/sessions/"+url.PathEscape(id), &s)
	return s, mapNotFound(err, id)
}

// DeleteSession removes a session. Deleting a session also ends any
// stream that is open for it: the server drops the connection.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	err := c.deleteJSON(ctx, "/chat/sessions/"+url.PathEscape(id), nil)
	return mapNotFound(err, id)
}

// CompactSession asks the server to compact the session's agent context.
// Long sessions stay usable without the client resending history.
func (c *Client) CompactSession(ctx context.Context, id string) error {
	err := c.postJSON(ctx, "/chat/sessions/"+url.PathEscape(id)+"/compact", nil, nil)
	return mapNotFound(err, id)
}

// ListMessages returns the confirmed display messages of a session in
// sequence order. Metadata is present only on the kinds the server
// annotates (thinking, action, observation and the error kinds).
func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]protocol.Message, error) {
	var out []protocol.Message
	if err := c.getJSON(ctx, "/chat/sessions/"+url.PathEscape(sessionID)+"/messages", &out); err != nil {
		return nil, mapNotFound(err, sessionID)
	}
	return out, nil
}

// mapNotFound converts the server's 404 into ErrSessionNotFound so
// callers can branch with errors.Is.
func mapNotFound(err error, id string) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return err
}
