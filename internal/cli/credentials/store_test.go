package credentials

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStoreAt(filepath.Join(t.TempDir(), "creds", "credentials.json"))
}

func TestLoadMissing(t *testing.T) {
	s := testStore(t)
	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestSaveAndLoad(t *testing.T) {
	s := testStore(t)

	saved := &Credentials{
		ServerURL:    "http://127.0.0.1:7780",
		Username:     "admin",
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(15 * time.Minute).UTC(),
	}
	require.NoError(t, s.Save(saved))

	info, err := os.Stat(s.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePermissions), info.Mode().Perm())

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, saved.ServerURL, loaded.ServerURL)
	assert.Equal(t, saved.Username, loaded.Username)
	assert.Equal(t, saved.AccessToken, loaded.AccessToken)
	assert.False(t, loaded.IsExpired())
}

func TestUpdateTokens(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Save(&Credentials{
		ServerURL:   "http://127.0.0.1:7780",
		AccessToken: "old",
	}))

	expires := time.Now().Add(time.Hour).UTC()
	require.NoError(t, s.UpdateTokens("new-access", "new-refresh", expires))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "new-access", loaded.AccessToken)
	assert.Equal(t, "new-refresh", loaded.RefreshToken)
	assert.True(t, loaded.HasRefreshToken())
}

func TestExpiry(t *testing.T) {
	c := &Credentials{}
	assert.True(t, c.IsExpired(), "zero expiry counts as expired")

	c.ExpiresAt = time.Now().Add(30 * time.Second)
	assert.True(t, c.IsExpired(), "tokens within the refresh window count as expired")

	c.ExpiresAt = time.Now().Add(time.Hour)
	assert.False(t, c.IsExpired())
}

func TestClear(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Clear(), "clearing a missing file is fine")

	require.NoError(t, s.Save(&Credentials{ServerURL: "http://x"}))
	require.NoError(t, s.Clear())

	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}
