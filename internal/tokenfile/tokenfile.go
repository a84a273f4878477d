// Package tokenfile handles reading and writing the credential grant file.
// A grant file stores an OAuth2 token alongside the time it was obtained and
// the scopes it was granted for. This is a leaf package imported by both
// config/ and auth/ so neither has to depend on the other.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// FilePerms restricts grant files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the grant file's parent directory.
const DirPerms = 0o700

// Grant is the on-disk format for the credential file. SavedAt records when
// the token was last obtained or refreshed; the authorizer compares it against
// the forced-refresh interval, independent of the server-declared expiry.
type Grant struct {
	Token   *oauth2.Token `json:"token"`
	SavedAt time.Time     `json:"saved_at"`
	Scopes  []string      `json:"scopes,omitempty"`
}

// Load reads a saved grant from disk. Returns (nil, nil) if the file does not
// exist — a normal first-run condition, not an error. A file that parses but
// carries no token is corrupt and requires re-authorization.
func Load(path string) (*Grant, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var g Grant
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if g.Token == nil {
		return nil, fmt.Errorf("tokenfile: %s missing token field (re-authorization required)", path)
	}

	return &g, nil
}

// Save writes a grant to disk atomically (write-to-temp + rename) with 0600
// permissions. A crash mid-save can never leave a grant with a new access
// token but an old expiry at the final path. Never logs token values.
func Save(path string, g *Grant) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename.
	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".grant-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	// Clean up temp file on any error path.
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	// Flush to stable storage before rename so a power loss between close and
	// rename cannot leave an empty or partial grant file at the final path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Stamp wraps a token in a Grant with SavedAt set to now.
func Stamp(tok *oauth2.Token, scopes []string) *Grant {
	return &Grant{Token: tok, SavedAt: time.Now().UTC(), Scopes: scopes}
}

// Remove deletes the grant file at the given path.
// Returns nil if the file does not exist (already logged out).
func Remove(path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}
