// src/settings/settings.go
//
// Flat key -> value settings kept in a JSON sidecar file next to the
// database. Values are stored as raw JSON, so primitives stay primitives and
// structured values round-trip unchanged. Last write wins. The file travels
// inside backups and is reloaded after a restore.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BanziSeo/habiOS-sub002/src/logger"
)

// ErrKeyNotFound is returned by Get for an absent key.
var ErrKeyNotFound = errors.New("setting key not found")

// Store is the auxiliary settings file. It is not part of the transactional
// storage schema; the mutex is its only write serialization.
type Store struct {
	mu     sync.RWMutex
	path   string
	values map[string]json.RawMessage
}

// Open loads the settings file, creating an empty store if it is missing.
func Open(path string) (*Store, error) {
	s := &Store{path: path, values: map[string]json.RawMessage{}}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		logger.L.Info("Settings file missing, starting empty", "path", s.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading settings file: %w", err)
	}
	values := map[string]json.RawMessage{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("parsing settings file %s: %w", s.path, err)
		}
	}
	s.values = values
	return nil
}

// Reload re-reads the file from disk, discarding in-memory state. Called
// after a restore has swapped the file.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = map[string]json.RawMessage{}
	return s.load()
}

// Path returns the settings file location, used by the backup engine.
func (s *Store) Path() string {
	return s.path
}

// Get unmarshals the value for key into out.
func (s *Store) Get(key string, out any) error {
	s.mu.RLock()
	raw, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return json.Unmarshal(raw, out)
}

// GetString is a convenience for plain string settings.
func (s *Store) GetString(key string) (string, error) {
	var v string
	if err := s.Get(key, &v); err != nil {
		return "", err
	}
	return v, nil
}

// Set stores the value under key and persists immediately.
func (s *Store) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding setting %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = raw
	return s.persist()
}

// Delete removes key and persists. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.persist()
}

// Keys lists all stored keys.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}

// persist writes the whole map with a tmp-file-then-rename so a crash cannot
// leave a half-written settings file. Callers hold the write lock.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating temp settings file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing temp settings file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing temp settings file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("installing settings file: %w", err)
	}
	return nil
}
