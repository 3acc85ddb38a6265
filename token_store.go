package archive

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// TokenStore is the single source of truth for the persisted bearer token.
// An empty slot means "no prior session".
type TokenStore interface {
	Get() (string, bool)
	Set(token string) error
	Clear() error
}

// MemoryTokenStore keeps the token in process memory. Suitable for tests
// and for callers that do not want sessions to survive a restart.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

func (s *MemoryTokenStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

// FileTokenStore persists the token in a single file so the session can be
// re-established after the process restarts. Writes go through a temp file
// and rename so readers never observe a partial token.
type FileTokenStore struct {
	mu   sync.Mutex
	path string
}

func NewFileTokenStore(path string) (*FileTokenStore, error) {
	if path == "" {
		return nil, goerrors.New("token store path must not be empty", goerrors.CategoryValidation)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to create token store directory")
		}
	}

	return &FileTokenStore{path: path}, nil
}

func (s *FileTokenStore) Get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return "", false
	}

	token := strings.TrimSpace(string(raw))
	return token, token != ""
}

func (s *FileTokenStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".token-*")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to stage token file")
	}

	name := tmp.Name()
	if _, err := tmp.WriteString(token); err != nil {
		tmp.Close()
		os.Remove(name)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to write token file")
	}

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(name)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to restrict token file permissions")
	}

	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to close token file")
	}

	if err := os.Rename(name, s.path); err != nil {
		os.Remove(name)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to replace token file")
	}

	return nil
}

func (s *FileTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to remove token file")
	}
	return nil
}
