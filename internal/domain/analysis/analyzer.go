package analysis

import (
	"context"
	"errors"
	"io/fs"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/blockforge/internal/domain/block"
	"github.com/felixgeelhaar/blockforge/internal/domain/optimizer"
	"github.com/felixgeelhaar/blockforge/internal/ports"
)

// Analyzer runs template analysis over a build's entries and tracks the
// transitive set of blocks they use.
type Analyzer struct {
	fs          ports.FileSystem
	factory     *block.Factory
	concurrency int

	mu       sync.Mutex
	analyses []*Analysis
	blocks   map[string]*block.Block
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithConcurrency bounds the number of entries analyzed at once.
func WithConcurrency(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// NewAnalyzer creates an Analyzer that loads blocks through factory.
func NewAnalyzer(fsys ports.FileSystem, factory *block.Factory, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		fs:          fsys,
		factory:     factory,
		concurrency: block.DefaultMaxConcurrency,
		blocks:      make(map[string]*block.Block),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Reset clears every discovered block and analysis.
func (r *Analyzer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyses = nil
	r.blocks = make(map[string]*block.Block)
	r.factory.Reset()
}

// Analyze reads every entry concurrently. Block file entries join the block
// set directly; other entries are analyzed as templates. Paths resolve
// against root.
func (r *Analyzer) Analyze(ctx context.Context, root string, entries []string) error {
	importer := block.Importer{Root: root}
	results := make([]*Analysis, len(entries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, e := range entries {
		identifier := importer.Identifier("", e)
		g.Go(func() error {
			if r.factory.IsBlockFile(identifier) {
				b, err := r.factory.Get(ctx, identifier)
				if err != nil {
					return &Error{Entry: e, Err: err}
				}
				r.addTransitive(b)
				return nil
			}

			src, err := r.fs.ReadFile(identifier)
			if errors.Is(err, fs.ErrNotExist) {
				return &Error{Entry: e, Err: block.ErrNotFound}
			}
			if err != nil {
				return &Error{Entry: e, Err: err}
			}
			a, blocks, err := r.analyzeTemplate(ctx, identifier, src)
			if err != nil {
				return err
			}
			for _, b := range blocks {
				r.addTransitive(b)
			}
			results[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.addLoaded()
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range results {
		if a != nil {
			r.analyses = append(r.analyses, a)
		}
	}
	return nil
}

func (r *Analyzer) addTransitive(b *block.Block) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stack := []*block.Block{b}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := r.blocks[cur.Identifier]; ok {
			continue
		}
		r.blocks[cur.Identifier] = cur
		stack = append(stack, cur.Referenced()...)
	}
}

// addLoaded adds every block the factory read, plus a stylesheet-less block
// for each file it could not load, so a failed analysis still reports the
// files it depended on.
func (r *Analyzer) addLoaded() {
	for _, b := range r.factory.Blocks() {
		r.addTransitive(b)
	}
	exts := r.factory.Extensions()
	for _, id := range r.factory.Unresolved() {
		r.addTransitive(&block.Block{Identifier: id, Name: block.NameFromPath(id, exts)})
	}
}

// PrepareForExit waits for in-flight block reads to finish.
func (r *Analyzer) PrepareForExit(ctx context.Context) error {
	return r.factory.PrepareForExit(ctx)
}

// TransitiveBlockDependencies returns every block reachable from the
// entries, sorted by identifier. After a failed Analyze it also holds the
// blocks that were read and the block files that could not be loaded.
func (r *Analyzer) TransitiveBlockDependencies() []*block.Block {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*block.Block, 0, len(r.blocks))
	for _, b := range r.blocks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

// Analyses returns the template analyses in entry order.
func (r *Analyzer) Analyses() []*Analysis {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Analysis(nil), r.analyses...)
}

// OptimizationCapabilities reports what the optimizer may do with output
// analyzed here. Every block class use is a literal in a class attribute,
// so class names can be rewritten.
func (r *Analyzer) OptimizationCapabilities() optimizer.Capabilities {
	return optimizer.Capabilities{
		RewriteIdents:      true,
		AnalyzedAttributes: []string{"class", "className"},
	}
}
