package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrCorrupt is returned when the stored settings cannot be decoded.
var ErrCorrupt = errors.New("settings: stored settings are corrupt")

// Store persists the settings object.
type Store interface {
	// Get returns the stored patch, or nil when nothing has been saved.
	Get(ctx context.Context) (*Patch, error)

	// Set replaces the stored settings.
	Set(ctx context.Context, c Configuration) error
}

// JSONStore keeps settings in a single JSON file.
type JSONStore struct {
	path string
	mu   sync.RWMutex
}

// NewJSONStore creates a store at path. The directory is created if needed;
// the file itself is created on the first Set.
func NewJSONStore(path string) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &JSONStore{path: path}, nil
}

// NewDefaultStore creates a store at ~/.isight/settings.json.
func NewDefaultStore() (*JSONStore, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return NewJSONStore(filepath.Join(homeDir, ".isight", "settings.json"))
}

// Path returns the backing file path.
func (s *JSONStore) Path() string {
	return s.path
}

// Get reads the settings file.
func (s *JSONStore) Get(ctx context.Context) (*Patch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var p Patch
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &p, nil
}

// Set writes the settings file atomically.
func (s *JSONStore) Set(ctx context.Context, c Configuration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Write to temp file first, then rename
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// MemoryStore keeps settings in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	patch *Patch
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the stored patch.
func (m *MemoryStore) Get(ctx context.Context) (*Patch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.patch == nil {
		return nil, nil
	}
	p := *m.patch
	return &p, nil
}

// Set stores c.
func (m *MemoryStore) Set(ctx context.Context, c Configuration) error {
	p := PatchOf(c)
	m.mu.Lock()
	m.patch = &p
	m.mu.Unlock()
	return nil
}

// SetPatch stores a partial object, as an older client would have written.
func (m *MemoryStore) SetPatch(p Patch) {
	m.mu.Lock()
	m.patch = &p
	m.mu.Unlock()
}

// Load reads store and applies it on top of current. Invalid stored values
// are dropped in favour of current and reported as issues.
func Load(ctx context.Context, store Store, current Configuration) (Configuration, []FieldIssue, error) {
	p, err := store.Get(ctx)
	if err != nil {
		return current, nil, err
	}
	if p == nil {
		return current, nil, nil
	}
	merged, issues := current.Merge(*p).Sanitize(current)
	return merged, issues, nil
}

var (
	_ Store = (*JSONStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
