package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
)

// refreshCall is one in-flight refresh. Every caller that observes a
// 401 while it is outstanding waits on done and reads the same result.
type refreshCall struct {
	done chan struct{}
	pair TokenPair
	err  error
}

// refresher deduplicates credential refreshes: at most one refresh
// request is in flight at any time, regardless of how many goroutines
// hit a 401 concurrently.
type refresher struct {
	mu       sync.Mutex
	inflight *refreshCall

	baseURL string
	httpc   *http.Client
	store   *TokenStore
}

// refresh joins the in-flight refresh if one exists, otherwise starts
// one. It blocks until the shared call settles or ctx is done.
func (r *refresher) refresh(ctx context.Context) (TokenPair, error) {
	r.mu.Lock()
	if call := r.inflight; call != nil {
		r.mu.Unlock()
		select {
		case <-call.done:
			return call.pair, call.err
		case <-ctx.Done():
			return TokenPair{}, ctx.Err()
		}
	}
	call := &refreshCall{done: make(chan struct{})}
	r.inflight = call
	r.mu.Unlock()

	call.pair, call.err = r.doRefresh(ctx)

	r.mu.Lock()
	r.inflight = nil
	r.mu.Unlock()
	close(call.done)

	return call.pair, call.err
}

// doRefresh exchanges the stored refresh token for a new pair. A
// successful exchange rotates both tokens and persists them.
func (r *refresher) doRefresh(ctx context.Context) (TokenPair, error) {
	pair, ok := r.store.Pair()
	if !ok || pair.RefreshToken == "" {
		return TokenPair{}, ErrNoCredentials
	}

	body, err := json.Marshal(map[string]string{"refresh_token": pair.RefreshToken})
	if err != nil {
		return TokenPair{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/auth/refresh", bytes.NewReader(body))
	if err != nil {
		return TokenPair{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpc.Do(req)
	if err != nil {
		return TokenPair{}, &TransportError{URL: req.URL.String(), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return TokenPair{}, &AuthExpiredError{Cause: fmt.Errorf("refresh rejected with status %d", resp.StatusCode)}
	}

	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return TokenPair{}, &AuthExpiredError{Cause: err}
	}

	fresh := TokenPair{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}
	if err := r.store.Save(fresh); err != nil {
		// The new pair still works for this process; persisting it is
		// best effort.
		log.Warn().Err(err).Msg("failed to persist refreshed credentials")
	}
	log.Debug().Msg("credentials refreshed")
	return fresh, nil
}
