// Package mocks provides test doubles for the ports package.
package mocks

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/blockforge/internal/ports"
)

// FileSystem is a thread-safe in-memory ports.FileSystem.
type FileSystem struct {
	mu      sync.RWMutex
	files   map[string][]byte
	modTime map[string]time.Time
	dirs    map[string]bool
	reads   map[string]int
	gates   map[string]chan struct{}
	clock   time.Time
}

// NewFileSystem creates a new FileSystem mock.
func NewFileSystem() *FileSystem {
	return &FileSystem{
		files:   make(map[string][]byte),
		modTime: make(map[string]time.Time),
		dirs:    make(map[string]bool),
		reads:   make(map[string]int),
		gates:   make(map[string]chan struct{}),
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// AddFile adds or replaces a file and advances its modification time.
func (m *FileSystem) AddFile(path, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	m.clock = m.clock.Add(time.Second)
	m.files[path] = []byte(content)
	m.modTime[path] = m.clock
}

// Gate makes reads of path block until the returned release func is called.
func (m *FileSystem) Gate(path string) (release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan struct{})
	m.gates[filepath.Clean(path)] = ch
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// ReadFile reads a file, waiting on its gate if one is set.
func (m *FileSystem) ReadFile(path string) ([]byte, error) {
	path = filepath.Clean(path)

	m.mu.Lock()
	m.reads[path]++
	gate := m.gates[path]
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// WriteFile stores a file.
func (m *FileSystem) WriteFile(path string, data []byte, _ os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if dir := filepath.Dir(path); dir != "." && !m.dirs[dir] {
		return &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	m.clock = m.clock.Add(time.Second)
	m.files[path] = append([]byte(nil), data...)
	m.modTime[path] = m.clock
	return nil
}

// Exists reports whether a file or directory exists.
func (m *FileSystem) Exists(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	path = filepath.Clean(path)
	_, ok := m.files[path]
	return ok || m.dirs[path]
}

// MkdirAll records path and its parents as directories.
func (m *FileSystem) MkdirAll(path string, _ os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for p := filepath.Clean(path); ; p = filepath.Dir(p) {
		m.dirs[p] = true
		if parent := filepath.Dir(p); parent == p {
			break
		}
	}
	return nil
}

// GetFileInfo returns metadata about a file or directory.
func (m *FileSystem) GetFileInfo(path string) (ports.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	path = filepath.Clean(path)
	if m.dirs[path] {
		return ports.FileInfo{IsDir: true, Mode: fs.ModeDir | 0o755}, nil
	}
	data, ok := m.files[path]
	if !ok {
		return ports.FileInfo{}, fmt.Errorf("stat %s: %w", path, fs.ErrNotExist)
	}
	return ports.FileInfo{Size: int64(len(data)), Mode: 0o644, ModTime: m.modTime[path]}, nil
}

// Content returns the stored content of path.
func (m *FileSystem) Content(path string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[filepath.Clean(path)]
	return string(data), ok
}

// Reads returns how many times path was read.
func (m *FileSystem) Reads(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reads[filepath.Clean(path)]
}

// Files returns all stored file paths, sorted.
func (m *FileSystem) Files() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

var _ ports.FileSystem = (*FileSystem)(nil)
