// Package checkpoint defines the Store interface for persisting pipeline
// snapshots, keyed by run ID and snapshot name, plus in-memory and
// filesystem-backed implementations.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when the requested snapshot does not exist.
var ErrNotFound = errors.New("checkpoint: snapshot not found")

// Snapshot is a stored pipeline state blob.
type Snapshot struct {
	RunID   string
	Name    string
	Data    []byte
	SavedAt time.Time
}

// Store persists and retrieves pipeline snapshots.
type Store interface {
	// Save stores a snapshot, overwriting any previous snapshot with the same
	// run ID and name.
	Save(runID, name string, data []byte) error
	// Get retrieves a snapshot by run ID and name.
	Get(runID, name string) (*Snapshot, error)
	// List returns the snapshot names stored for a run, sorted.
	List(runID string) ([]string, error)
	// Delete removes a snapshot. Deleting a missing snapshot is not an error.
	Delete(runID, name string) error
}

// InMemoryStore keeps snapshots in process memory. It is safe for concurrent
// use and copies snapshot data on the way in and out.
type InMemoryStore struct {
	mu   sync.RWMutex
	runs map[string]map[string]*Snapshot
}

// NewInMemoryStore creates an empty in-memory snapshot store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		runs: make(map[string]map[string]*Snapshot),
	}
}

// Save implements Store.
func (s *InMemoryStore) Save(runID, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		run = make(map[string]*Snapshot)
		s.runs[runID] = run
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	run[name] = &Snapshot{
		RunID:   runID,
		Name:    name,
		Data:    buf,
		SavedAt: time.Now(),
	}

	return nil
}

// Get implements Store.
func (s *InMemoryStore) Get(runID, name string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.runs[runID][name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, runID, name)
	}

	buf := make([]byte, len(snap.Data))
	copy(buf, snap.Data)

	return &Snapshot{
		RunID:   snap.RunID,
		Name:    snap.Name,
		Data:    buf,
		SavedAt: snap.SavedAt,
	}, nil
}

// List implements Store.
func (s *InMemoryStore) List(runID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.runs[runID]))
	for name := range s.runs[runID] {
		names = append(names, name)
	}

	sort.Strings(names)

	return names, nil
}

// Delete implements Store.
func (s *InMemoryStore) Delete(runID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs[runID], name)

	return nil
}

// FileStore persists snapshots under root/<runID>/<name>.ckpt. Run IDs and
// names are restricted to path-safe characters.
type FileStore struct {
	root string
}

// NewFileStore creates a filesystem-backed snapshot store rooted at root,
// creating the directory if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint root: %w", err)
	}

	return &FileStore{root: root}, nil
}

const snapshotExt = ".ckpt"

func (s *FileStore) path(runID, name string) (string, error) {
	if !pathSafe(runID) || !pathSafe(name) {
		return "", fmt.Errorf("checkpoint: unsafe run ID or name %q/%q", runID, name)
	}

	return filepath.Join(s.root, runID, name+snapshotExt), nil
}

// Save implements Store.
func (s *FileStore) Save(runID, name string, data []byte) error {
	path, err := s.path(runID, name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}

	return nil
}

// Get implements Store.
func (s *FileStore) Get(runID, name string) (*Snapshot, error) {
	path, err := s.path(runID, name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, runID, name)
		}

		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}

	return &Snapshot{
		RunID:   runID,
		Name:    name,
		Data:    data,
		SavedAt: info.ModTime(),
	}, nil
}

// List implements Store.
func (s *FileStore) List(runID string) ([]string, error) {
	if !pathSafe(runID) {
		return nil, fmt.Errorf("checkpoint: unsafe run ID %q", runID)
	}

	entries, err := os.ReadDir(filepath.Join(s.root, runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	var names []string

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), snapshotExt) {
			continue
		}

		names = append(names, strings.TrimSuffix(entry.Name(), snapshotExt))
	}

	sort.Strings(names)

	return names, nil
}

// Delete implements Store.
func (s *FileStore) Delete(runID, name string) error {
	path, err := s.path(runID, name)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete snapshot: %w", err)
	}

	return nil
}

func pathSafe(s string) bool {
	if s == "" || strings.Contains(s, "..") {
		return false
	}

	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}

	return true
}
