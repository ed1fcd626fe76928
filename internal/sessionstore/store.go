// Package sessionstore persists portal session tokens between invocations.
//
// The persisted file is a JSON record of cookie name/value pairs plus any
// transport headers worth restoring. It contains bearer-equivalent secrets
// and is written with 0600 permissions via atomic replace. Credentials are
// never written here.
package sessionstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by Load when no session file exists at the path.
var ErrNotFound = errors.New("session file not found")

// ErrCorrupt is returned by Load when the session file exists but cannot be
// decoded. The file is left in place so the caller can inspect it.
var ErrCorrupt = errors.New("session file corrupt")

// PersistedSession is the durable record written to disk.
type PersistedSession struct {
	// Cookies maps token name to value for every cookie accumulated by the
	// client during an authenticated flow.
	Cookies map[string]string `json:"cookies"`

	// Headers optionally carries transport headers (e.g. User-Agent) that
	// were in effect when the session was established.
	Headers map[string]string `json:"headers,omitempty"`
}

// Save serializes the session to path. The write is atomic: the record is
// written to a temp file in the same directory and renamed into place.
func Save(sess *PersistedSession, path string) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set session file permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close session file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	return nil
}

// Load reads a persisted session from path.
// Returns ErrNotFound if the file does not exist and ErrCorrupt if it exists
// but is not a well-formed session record.
func Load(path string) (*PersistedSession, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var sess PersistedSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if sess.Cookies == nil {
		return nil, fmt.Errorf("%w: missing cookies field", ErrCorrupt)
	}

	return &sess, nil
}
