package loop

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/xdg/hookgate/internal/hlog"
)

// defaultSessionKey names the state file when the host provides no
// session identifier.
const defaultSessionKey = "default"

// Store persists loop records, one file per session, under a single
// directory. Writes are atomic: a temp file in the same directory is
// renamed over the destination, so a crash mid-write leaves the previous
// record intact.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. The directory is created on
// first save, not here, so read-only commands can construct a store
// without touching the filesystem.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// DefaultDir returns the standard loop state directory.
func DefaultDir() string {
	return filepath.Join(hlog.StateDir(), "loops")
}

// Path returns the state file path for a session.
func (s *Store) Path(session string) string {
	return filepath.Join(s.dir, sessionKey(session)+".md")
}

// Load reads the record for a session. A missing file is not an error:
// it returns (nil, nil), meaning no loop has ever been set up.
func (s *Store) Load(session string) (*Record, error) {
	data, err := os.ReadFile(s.Path(session))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read loop state: %w", err)
	}
	return Unmarshal(data)
}

// Save atomically writes the record for a session. The record must be
// durable before Save returns; a failure here must surface to the caller,
// because continuing a loop whose count was not persisted risks running
// past the iteration budget after a crash.
func (s *Store) Save(session string, r *Record) error {
	data, err := Marshal(r)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create loop state dir: %w", err)
	}

	destPath := s.Path(session)
	tmpPath := destPath + "." + uuid.New().String() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write loop state: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("commit loop state: %w", err)
	}
	return nil
}

// Remove deletes the record for a session. Missing files are fine.
func (s *Store) Remove(session string) error {
	err := os.Remove(s.Path(session))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove loop state: %w", err)
	}
	return nil
}

// sessionKey maps a session identifier to a safe file name. Host session
// ids are UUIDs in practice, but the key must never escape the state
// directory regardless of what arrives on the wire.
func sessionKey(session string) string {
	session = strings.TrimSpace(session)
	if session == "" {
		return defaultSessionKey
	}
	var b strings.Builder
	for _, r := range session {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
