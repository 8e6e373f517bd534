package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bazelment/quill/protocol"
)

// OpenStream connects to a session's event stream starting after the
// given message id. The connection has no deadline; cancel ctx or close
// the reader to release it. The returned reader yields one envelope per
// frame until the server sends done or the connection ends.
func (c *Client) OpenStream(ctx context.Context, sessionID string, afterID int64) (*protocol.Reader, error) {
	path := fmt.Sprintf("/chat/sessions/%s/stream?after_id=%d", url.PathEscape(sessionID), afterID)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		return nil, &AuthExpiredError{}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, mapNotFound(apiError(resp), sessionID)
	}
	return protocol.NewReader(resp.Body), nil
}
