package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// User identifies the authenticated account.
type User struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Login exchanges an email and password for a token pair and persists
// it. It bypasses the refresh wrapper: a 401 here means the password was
// wrong, not that a credential expired.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return User{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return User{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return User{}, &TransportError{URL: req.URL.String(), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return User{}, ErrInvalidLogin
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return User{}, apiError(resp)
	}

	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		User         User   `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return User{}, err
	}
	if err := c.store.Save(TokenPair{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}); err != nil {
		return User{}, err
	}
	return out.User, nil
}

// Logout revokes the stored refresh token server side, best effort,
// and always clears local credentials.
func (c *Client) Logout(ctx context.Context) error {
	if pair, ok := c.store.Pair(); ok && pair.RefreshToken != "" {
		if err := c.revokeRefreshToken(ctx, pair.RefreshToken); err != nil {
			log.Debug().Err(err).Msg("server-side logout failed, clearing local credentials anyway")
		}
	}
	return c.store.Clear()
}

// revokeRefreshToken posts the refresh token to /auth/logout so the
// server drops it. The endpoint reads the token from the body rather
// than a bearer, so like Login it skips the refresh wrapper.
func (c *Client) revokeRefreshToken(ctx context.Context, token string) error {
	body, err := json.Marshal(map[string]string{"refresh_token": token})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/logout", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &TransportError{URL: req.URL.String(), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}
	return nil
}

// LoggedIn reports whether a credential pair is present locally. It does
// not verify the pair against the server.
func (c *Client) LoggedIn() bool {
	_, ok := c.store.Pair()
	return ok
}
