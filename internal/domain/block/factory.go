package block

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/felixgeelhaar/blockforge/internal/ports"
)

// DefaultMaxConcurrency bounds concurrent block file reads.
const DefaultMaxConcurrency = 8

// Factory loads blocks from the file system and links their references.
// Each file is read at most once until Reset.
type Factory struct {
	fs         ports.FileSystem
	importer   Importer
	extensions []string
	sem        *semaphore.Weighted
	group      singleflight.Group
	inflight   sync.WaitGroup

	mu         sync.Mutex
	blocks     map[string]*Block
	unresolved map[string]bool
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithMaxConcurrency bounds the number of files read at once.
func WithMaxConcurrency(n int) FactoryOption {
	return func(f *Factory) {
		if n > 0 {
			f.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithExtensions sets the block file extensions used to derive names.
func WithExtensions(exts ...string) FactoryOption {
	return func(f *Factory) {
		if len(exts) > 0 {
			f.extensions = exts
		}
	}
}

// NewFactory creates a Factory rooted at root.
func NewFactory(fsys ports.FileSystem, root string, opts ...FactoryOption) *Factory {
	f := &Factory{
		fs:         fsys,
		importer:   Importer{Root: root},
		extensions: []string{DefaultExtension},
		sem:        semaphore.NewWeighted(DefaultMaxConcurrency),
		blocks:     make(map[string]*Block),
		unresolved: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Importer returns the importer used to resolve identifiers.
func (f *Factory) Importer() Importer {
	return f.importer
}

// Extensions returns the block file extensions.
func (f *Factory) Extensions() []string {
	return append([]string(nil), f.extensions...)
}

// Get loads the block at identifier and, transitively, every block it
// references. Reference cycles are allowed.
func (f *Factory) Get(ctx context.Context, identifier string) (*Block, error) {
	return f.resolve(ctx, identifier, make(map[string]bool))
}

func (f *Factory) resolve(ctx context.Context, identifier string, visited map[string]bool) (*Block, error) {
	b, err := f.load(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if visited[identifier] {
		return b, nil
	}
	visited[identifier] = true

	for _, ref := range b.refs {
		target := f.importer.Identifier(identifier, ref.Path)
		child, err := f.resolve(ctx, target, visited)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: block %q: %w", f.importer.DebugIdentifier(identifier), ref.Line, ref.Local, err)
		}
		b.link(ref.Local, child)
	}
	return b, nil
}

func (f *Factory) load(ctx context.Context, identifier string) (*Block, error) {
	f.mu.Lock()
	if b, ok := f.blocks[identifier]; ok {
		f.mu.Unlock()
		return b, nil
	}
	f.mu.Unlock()

	v, err, _ := f.group.Do(identifier, func() (interface{}, error) {
		f.mu.Lock()
		if b, ok := f.blocks[identifier]; ok {
			f.mu.Unlock()
			return b, nil
		}
		f.mu.Unlock()

		src, err := f.read(ctx, identifier)
		if err != nil {
			f.markUnresolved(identifier, err)
			return nil, err
		}
		b, err := Parse(identifier, NameFromPath(identifier, f.extensions), src)
		if err != nil {
			f.markUnresolved(identifier, err)
			return nil, err
		}

		f.mu.Lock()
		f.blocks[identifier] = b
		f.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Block), nil
}

// markUnresolved records a block file that was missing or failed to parse.
// Cancellation says nothing about the file, so it is not recorded.
func (f *Factory) markUnresolved(identifier string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	f.mu.Lock()
	f.unresolved[identifier] = true
	f.mu.Unlock()
}

func (f *Factory) read(ctx context.Context, identifier string) ([]byte, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	f.inflight.Add(1)
	defer func() {
		f.sem.Release(1)
		f.inflight.Done()
	}()

	src, err := f.fs.ReadFile(identifier)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, f.importer.DebugIdentifier(identifier))
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.importer.DebugIdentifier(identifier), err)
	}
	return src, nil
}

// Blocks returns every loaded block sorted by identifier.
func (f *Factory) Blocks() []*Block {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Block, 0, len(f.blocks))
	for _, b := range f.blocks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

// Unresolved returns the block files that could not be read or parsed since
// the last Reset, sorted.
func (f *Factory) Unresolved() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.unresolved))
	for id := range f.unresolved {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Reset forgets every loaded and unresolved block.
func (f *Factory) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks = make(map[string]*Block)
	f.unresolved = make(map[string]bool)
}

// PrepareForExit waits until no file read holds a slot.
func (f *Factory) PrepareForExit(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsBlockFile reports whether path is a block file for this factory.
func (f *Factory) IsBlockFile(path string) bool {
	return IsBlockFile(filepath.Base(path), f.extensions)
}
