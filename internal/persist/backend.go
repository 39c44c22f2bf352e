// internal/persist/backend.go
package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Backend stores and retrieves one opaque cache snapshot. A nil
// snapshot from Load means nothing has been saved yet.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, snapshot []byte) error
}

// Memory is an in-process backend, mainly for tests.
type Memory struct {
	mu       sync.RWMutex
	snapshot []byte
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{}
}

// Load returns the last saved snapshot.
func (m *Memory) Load(ctx context.Context) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.snapshot == nil {
		return nil, nil
	}
	out := make([]byte, len(m.snapshot))
	copy(out, m.snapshot)
	return out, nil
}

// Save replaces the stored snapshot.
func (m *Memory) Save(ctx context.Context, snapshot []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshot = make([]byte, len(snapshot))
	copy(m.snapshot, snapshot)
	return nil
}

// File persists the snapshot to a single file, written atomically via
// rename.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile creates a file backend at the given path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Load reads the snapshot file. A missing file is not an error.
func (f *File) Load(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	return data, nil
}

// Save writes the snapshot to a temp file and renames it into place.
func (f *File) Save(ctx context.Context, snapshot []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, snapshot, 0640); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}
