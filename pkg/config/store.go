package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

// Store persists section data.
type Store interface {
	// Load replaces the in-memory data with what is persisted
	Load() error

	// Save persists the in-memory data
	Save() error

	GetSection(sectionID string) (map[string]any, error)
	SetSection(sectionID string, data map[string]any) error

	GetAll() (map[string]map[string]any, error)
	SetAll(data map[string]map[string]any) error
}

const storeVersion = "1"

// document is the on-disk layout of a FileStore.
type document struct {
	Version  string                    `json:"version"`
	Sections map[string]map[string]any `json:"sections"`
}

// FileStore is a Store kept in a single JSON file. Saves are atomic.
type FileStore struct {
	mu       sync.RWMutex
	path     string
	version  string
	data     map[string]map[string]any
	modified bool
}

// DefaultPath returns ~/.pagekeeper/config.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".pagekeeper", "config.json"), nil
}

// NewFileStore opens the store at path, DefaultPath when empty. A missing
// file is an empty store.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	s := &FileStore{
		path:    path,
		version: storeVersion,
		data:    make(map[string]map[string]any),
	}
	if err := s.Load(); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return s, nil
}

// Load reads the file. A missing file clears the store.
func (s *FileStore) Load() error {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.mu.Lock()
		s.data = make(map[string]map[string]any)
		s.modified = false
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}
	if doc.Sections == nil {
		doc.Sections = make(map[string]map[string]any)
	}
	if doc.Version == "" {
		doc.Version = storeVersion
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = doc.Version
	s.data = doc.Sections
	s.modified = false
	return nil
}

// Save writes the file through a temp file in the same directory.
func (s *FileStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(document{Version: s.version, Sections: s.data}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}

	s.modified = false
	return nil
}

// GetSection returns a copy of the section's data, empty when absent.
func (s *FileStore) GetSection(sectionID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.data[sectionID]))
	maps.Copy(out, s.data[sectionID])
	return out, nil
}

// SetSection stores a copy of data under sectionID.
func (s *FileStore) SetSection(sectionID string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[sectionID] = maps.Clone(data)
	s.modified = true
	return nil
}

// GetAll returns a copy of every section.
func (s *FileStore) GetAll() (map[string]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSections(s.data), nil
}

// SetAll replaces every section with a copy of data.
func (s *FileStore) SetAll(data map[string]map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = cloneSections(data)
	s.modified = true
	return nil
}

// IsModified reports unsaved changes.
func (s *FileStore) IsModified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modified
}

// Path returns the file the store reads and writes.
func (s *FileStore) Path() string {
	return s.path
}

func cloneSections(in map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(in))
	for id, section := range in {
		if section == nil {
			section = map[string]any{}
		}
		out[id] = maps.Clone(section)
	}
	return out
}
