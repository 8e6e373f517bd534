package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// TokenPair holds the access and refresh credentials. Both values are
// opaque to the client and rotate together on every successful refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TokenStore keeps the current token pair in memory and mirrors it to a
// file so logins survive restarts. All methods are safe for concurrent
// use.
type TokenStore struct {
	mu   sync.RWMutex
	path string
	pair TokenPair
}

// NewTokenStore creates a store backed by the file at path. It does not
// touch the disk; call Load to pick up a persisted pair.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Load reads the persisted pair, if any. A missing file means no stored
// credentials and is not an error.
func (s *TokenStore) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var pair TokenPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	s.mu.Lock()
	s.pair = pair
	s.mu.Unlock()
	return nil
}

// Pair returns the current pair and whether one is present.
func (s *TokenStore) Pair() (TokenPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair, s.pair.AccessToken != ""
}

// Save replaces the pair in memory and on disk. The file is created
// with mode 0600; tokens must never be world readable.
func (s *TokenStore) Save(pair TokenPair) error {
	s.mu.Lock()
	s.pair = pair
	s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(pair)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// Clear wipes the pair from memory and removes the file.
func (s *TokenStore) Clear() error {
	s.mu.Lock()
	s.pair = TokenPair{}
	s.mu.Unlock()

	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
