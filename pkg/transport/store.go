package transport

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// PairingSession is the persisted artifact of a remote pairing
type PairingSession struct {
	Topic     string    `toml:"topic"`
	RelayURL  string    `toml:"relay_url"`
	ChainIDs  []uint64  `toml:"chain_ids"`
	CreatedAt time.Time `toml:"created_at"`
}

// SessionStore keeps the pairing session in a TOML file.
// A nil store persists nothing.
type SessionStore struct {
	path string
	mu   sync.Mutex
}

// NewSessionStore creates a store backed by path
func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// Load returns the persisted session, or nil when there is none
func (s *SessionStore) Load() (*PairingSession, error) {
	if s == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pairing session: %w", err)
	}

	var session PairingSession
	if err := toml.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode pairing session: %w", err)
	}
	return &session, nil
}

// Save replaces the persisted session
func (s *SessionStore) Save(session PairingSession) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := toml.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode pairing session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write pairing session: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to write pairing session: %w", err)
	}
	return nil
}

// Clear removes the persisted session. Clearing an empty store is not an error.
func (s *SessionStore) Clear() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to clear pairing session: %w", err)
	}
	return nil
}
