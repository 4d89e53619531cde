// Package store persists the last signed-in username between runs.
//
// The username is only a hint that a session cookie may still be valid; it is
// never sent to the server as a credential.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Store is the persisted identity marker. Operations never fail: a store
// that cannot reach its backing storage behaves as a session-only store.
type Store interface {
	Save(username string)
	Read() (username string, ok bool)
	Clear()
}

// sessionFile is the on-disk layout; one username per API base URL.
type sessionFile struct {
	Usernames map[string]string `json:"usernames"`
}

// FileStore keeps the username in a JSON file shared with other profiles.
type FileStore struct {
	path    string
	profile string
	logger  *zap.Logger

	mu       sync.Mutex
	mem      string
	degraded bool
}

// NewFileStore returns a store writing to path under the given profile key
// (the API base URL).
func NewFileStore(path, profile string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		path:    path,
		profile: profile,
		logger:  logger.With(zap.String("component", "store"), zap.String("path", path)),
	}
}

// Path returns the session file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Save(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mem = username
	if err := s.update(func(m map[string]string) { m[s.profile] = username }); err != nil {
		s.degrade("save", err)
	}
}

func (s *FileStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mem = ""
	if err := s.update(func(m map[string]string) { delete(m, s.profile) }); err != nil {
		s.degrade("clear", err)
	}
}

func (s *FileStore) Read() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.degraded {
		return s.mem, s.mem != ""
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false
	}
	if err != nil {
		s.degrade("read", err)
		return s.mem, s.mem != ""
	}

	var f sessionFile
	if err := json.Unmarshal(data, &f); err != nil {
		s.logger.Warn("session file is corrupt, ignoring it", zap.Error(err))
		return "", false
	}

	username := f.Usernames[s.profile]
	return username, username != ""
}

func (s *FileStore) degrade(op string, err error) {
	if !s.degraded {
		s.logger.Warn("session file unavailable, keeping username in memory only",
			zap.String("op", op), zap.Error(err))
	}
	s.degraded = true
}

// update applies fn to the stored map under the file lock and writes it back
// atomically. Entries for other profiles are preserved.
func (s *FileStore) update(fn func(map[string]string)) error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	lock, err := acquireFileLock(s.path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if releaseErr := lock.release(); releaseErr != nil {
			s.logger.Warn("failed to release lock", zap.Error(releaseErr))
		}
	}()

	var f sessionFile
	if existing, err := os.ReadFile(s.path); err == nil {
		if unmarshalErr := json.Unmarshal(existing, &f); unmarshalErr != nil {
			f.Usernames = nil
		}
	}
	if f.Usernames == nil {
		f.Usernames = make(map[string]string)
	}

	fn(f.Usernames)

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}

	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, s.path); err != nil {
		if removeErr := os.Remove(tempFile); removeErr != nil {
			return fmt.Errorf(
				"failed to rename temp file: %v; additionally failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// MemoryStore keeps the username for the lifetime of the process only.
type MemoryStore struct {
	mu       sync.Mutex
	username string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(username string) {
	m.mu.Lock()
	m.username = username
	m.mu.Unlock()
}

func (m *MemoryStore) Read() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.username, m.username != ""
}

func (m *MemoryStore) Clear() {
	m.mu.Lock()
	m.username = ""
	m.mu.Unlock()
}
