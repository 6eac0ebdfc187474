// Package asset holds the named artifacts a build produces.
package asset

import (
	"sort"
	"sync"

	"github.com/felixgeelhaar/blockforge/internal/domain/sourcemap"
)

// Asset is one build output.
type Asset interface {
	// Content returns the artifact bytes.
	Content() []byte
	// SourceMap returns the artifact's map, or nil.
	SourceMap() *sourcemap.Map
}

// Raw is an artifact without a source map.
type Raw struct {
	content []byte
}

// NewRaw creates a raw artifact from text.
func NewRaw(content string) *Raw {
	return &Raw{content: []byte(content)}
}

// Content implements Asset.
func (r *Raw) Content() []byte { return r.content }

// SourceMap implements Asset.
func (r *Raw) SourceMap() *sourcemap.Map { return nil }

// SourceMapped is text with an attached source map.
type SourceMapped struct {
	content string
	name    string
	m       *sourcemap.Map
}

// NewSourceMapped creates a source-mapped artifact named name.
func NewSourceMapped(content, name string, m *sourcemap.Map) *SourceMapped {
	return &SourceMapped{content: content, name: name, m: m}
}

// Content implements Asset.
func (s *SourceMapped) Content() []byte { return []byte(s.content) }

// SourceMap implements Asset.
func (s *SourceMapped) SourceMap() *sourcemap.Map { return s.m }

// Name returns the generated file name the map refers to.
func (s *SourceMapped) Name() string { return s.name }

// Set is a build's mutable name to asset dictionary.
type Set struct {
	mu     sync.RWMutex
	assets map[string]Asset
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{assets: make(map[string]Asset)}
}

// Add stores an asset, replacing any asset of the same name.
func (s *Set) Add(name string, a Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[name] = a
}

// Get returns the named asset.
func (s *Set) Get(name string) (Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[name]
	return a, ok
}

// Names returns asset names, sorted.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.assets))
	for n := range s.assets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of assets.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.assets)
}
