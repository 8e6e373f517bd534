package api

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	store := NewTokenStore(path)

	_, ok := store.Pair()
	assert.False(t, ok, "empty store has no pair")

	require.NoError(t, store.Save(TokenPair{AccessToken: "a1", RefreshToken: "r1"}))

	reloaded := NewTokenStore(path)
	require.NoError(t, reloaded.Load())
	pair, ok := reloaded.Pair()
	require.True(t, ok)
	assert.Equal(t, "a1", pair.AccessToken)
	assert.Equal(t, "r1", pair.RefreshToken)
}

func TestTokenStore_FileMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}
	path := filepath.Join(t.TempDir(), "tokens.json")
	store := NewTokenStore(path)
	require.NoError(t, store.Save(TokenPair{AccessToken: "a1", RefreshToken: "r1"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "token file must not be world readable")
}

func TestTokenStore_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	store := NewTokenStore(path)
	require.NoError(t, store.Save(TokenPair{AccessToken: "a1", RefreshToken: "r1"}))

	require.NoError(t, store.Clear())
	_, ok := store.Pair()
	assert.False(t, ok)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "token file must be removed")

	// Clearing an already-clear store is fine.
	require.NoError(t, store.Clear())
}

func TestTokenStore_LoadMissingFile(t *testing.T) {
	store := NewTokenStore(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, store.Load())
	_, ok := store.Pair()
	assert.False(t, ok)
}
