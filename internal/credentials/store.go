// Package credentials persists SpacetimeDB auth credentials to a single
// JSON file on disk, keyed by "<host>:<database>", with atomic rewrite so
// concurrent writers never observe a torn file.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mattsp1290/blackholio-go-client/model"
)

// DefaultPath is the credential file location named in spec.md §6.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("credentials: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".spacetimedb", "credentials.json"), nil
}

// Store is a file-backed credential map guarded by an in-process mutex; the
// file itself is rewritten atomically (temp file + fsync + rename) so a
// concurrent external writer can never observe a half-written file, per
// Design Note "File-based credential store must use atomic rewrite".
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore builds a Store rooted at path, creating its parent directory
// with user-private permissions if it does not already exist.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("credentials: create %s: %w", dir, err)
	}
	return &Store{path: path}, nil
}

func (s *Store) readAll() (map[string]model.Credential, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]model.Credential{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credentials: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return map[string]model.Credential{}, nil
	}
	var all map[string]model.Credential
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("credentials: parse %s: %w", s.path, err)
	}
	return all, nil
}

// Load returns the credential for (host, database), or ok=false if absent
// or expired. An expired entry is treated as absent rather than deleted —
// spec.md §3 says credentials are "deleted never (only expired)".
func (s *Store) Load(host, database string) (model.Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return model.Credential{}, false, err
	}
	key := host + ":" + database
	cred, ok := all[key]
	if !ok || cred.Expired() {
		return model.Credential{}, false, nil
	}
	return cred, true, nil
}

// Save writes cred under its Key(), rewriting the whole file atomically.
func (s *Store) Save(cred model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return err
	}
	if cred.Timestamp == 0 && !cred.IssuedAt.IsZero() {
		cred.Timestamp = cred.IssuedAt.Unix()
	}
	all[cred.Key()] = cred

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("credentials: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("credentials: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("credentials: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credentials: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credentials: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("credentials: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("credentials: rename into place: %w", err)
	}
	return nil
}
