package tokenfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestLoad_FileNotFound(t *testing.T) {
	g, err := Load("/nonexistent/path/grant.json")
	assert.Nil(t, g)
	assert.NoError(t, err)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grant.json")

	expiry := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	original := &Grant{
		Token: &oauth2.Token{
			AccessToken:  "access-123",
			RefreshToken: "refresh-456",
			TokenType:    "Bearer",
			Expiry:       expiry,
		},
		SavedAt: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
		Scopes:  []string{"https://www.googleapis.com/auth/youtube.upload"},
	}

	require.NoError(t, Save(path, original))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, "access-123", loaded.Token.AccessToken)
	assert.Equal(t, "refresh-456", loaded.Token.RefreshToken)
	assert.True(t, expiry.Equal(loaded.Token.Expiry))
	assert.True(t, original.SavedAt.Equal(loaded.SavedAt))
	assert.Equal(t, original.Scopes, loaded.Scopes)
}

func TestSave_Permissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grant.json")

	require.NoError(t, Save(path, Stamp(&oauth2.Token{AccessToken: "a"}, nil)))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())
}

func TestSave_CreatesParentDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deeper", "grant.json")

	require.NoError(t, Save(path, Stamp(&oauth2.Token{AccessToken: "a"}, nil)))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestSave_OverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grant.json")

	require.NoError(t, Save(path, Stamp(&oauth2.Token{AccessToken: "first"}, nil)))
	require.NoError(t, Save(path, Stamp(&oauth2.Token{AccessToken: "second"}, nil)))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "second", loaded.Token.AccessToken)

	// No leftover temp files.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoad_CorruptJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grant.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestLoad_MissingToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grant.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"saved_at":"2026-01-01T00:00:00Z"}`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing token field")
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grant.json")
	require.NoError(t, Save(path, Stamp(&oauth2.Token{AccessToken: "a"}, nil)))

	require.NoError(t, Remove(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Removing an absent file is not an error.
	assert.NoError(t, Remove(path))
}

func TestStamp(t *testing.T) {
	before := time.Now().UTC()
	g := Stamp(&oauth2.Token{AccessToken: "a"}, []string{"scope"})
	after := time.Now().UTC()

	assert.False(t, g.SavedAt.Before(before))
	assert.False(t, g.SavedAt.After(after))
	assert.Equal(t, []string{"scope"}, g.Scopes)
}
