package compilation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/blockforge/internal/domain/analysis"
	"github.com/felixgeelhaar/blockforge/internal/domain/block"
	"github.com/felixgeelhaar/blockforge/internal/domain/blockcompiler"
	"github.com/felixgeelhaar/blockforge/internal/domain/optimizer"
	"github.com/felixgeelhaar/blockforge/internal/domain/sourcemap"
	"github.com/felixgeelhaar/blockforge/internal/domain/stylesheet"
)

type fakeAnalyzer struct {
	mu       sync.Mutex
	blocks   []*block.Block
	analyses []*analysis.Analysis
	err      error
	// gates[i], when set, blocks the i-th Analyze call until closed.
	gates   map[int]chan struct{}
	started chan int

	calls   int
	resets  int
	drains  int
	entries [][]string
}

func (f *fakeAnalyzer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, _ string, entries []string) error {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.entries = append(f.entries, entries)
	gate := f.gates[call]
	started := f.started
	err := f.err
	f.mu.Unlock()

	if started != nil {
		started <- call
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeAnalyzer) PrepareForExit(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drains++
	return nil
}

func (f *fakeAnalyzer) TransitiveBlockDependencies() []*block.Block {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*block.Block(nil), f.blocks...)
}

func (f *fakeAnalyzer) Analyses() []*analysis.Analysis {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*analysis.Analysis(nil), f.analyses...)
}

func (f *fakeAnalyzer) OptimizationCapabilities() optimizer.Capabilities {
	return optimizer.Capabilities{}
}

func (f *fakeAnalyzer) counts() (calls, resets, drains int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.resets, f.drains
}

// passThrough concatenates sources and reports its map in JSON form.
type passThrough struct {
	sources []optimizer.Source
	err     error
}

func (p *passThrough) AddSource(src optimizer.Source)        { p.sources = append(p.sources, src) }
func (p *passThrough) AddAnalysis(optimizer.TemplateAnalysis) {}

func (p *passThrough) Optimize(_ context.Context, outputName string) (*optimizer.Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	b := sourcemap.NewBuilder(outputName)
	var parts []string
	renames := map[string]string{}
	line := 1
	for _, src := range p.sources {
		parts = append(parts, src.Content)
		for range strings.Split(src.Content, "\n") {
			b.MapLine(line, src.Filename, line)
			line++
		}
		sheet, err := stylesheet.Parse(src.Filename, []byte(src.Content))
		if err != nil {
			return nil, err
		}
		stylesheet.Walk(sheet.Nodes, func(r *stylesheet.Rule) {
			for _, c := range stylesheet.Classes(r.Selector) {
				renames[c] = c
			}
		})
	}
	return &optimizer.Result{
		Content:      strings.Join(parts, "\n"),
		RawSourceMap: b.Build().String(),
		Renames:      renames,
	}, nil
}

func passThroughFactory(err error) OptimizerFactory {
	return func(optimizer.Options, optimizer.Capabilities) Optimizer {
		return &passThrough{err: err}
	}
}

func realOptimizerFactory(opts optimizer.Options, caps optimizer.Capabilities) Optimizer {
	return optimizer.New(opts, caps)
}

func realCompiler(t *testing.T) BlockCompiler {
	t.Helper()
	c, err := blockcompiler.New(block.Importer{Root: "/p"}, 0)
	require.NoError(t, err)
	return BlockCompilerFunc(func(b *block.Block, sheet *stylesheet.Stylesheet, analyses []*analysis.Analysis) (CompiledRoot, error) {
		root, err := c.Compile(b, sheet, analyses)
		if err != nil {
			return nil, err
		}
		return root, nil
	})
}

func failingCompiler(name string) BlockCompiler {
	return BlockCompilerFunc(func(b *block.Block, _ *stylesheet.Stylesheet, _ []*analysis.Analysis) (CompiledRoot, error) {
		if b.Name == name {
			return nil, errors.New("unbalanced braces")
		}
		return nil, errors.New("unexpected compile of " + b.Name)
	})
}

func mustBlock(t *testing.T, id, name, src string) *block.Block {
	t.Helper()
	b, err := block.Parse(id, name, []byte(src))
	require.NoError(t, err)
	return b
}
