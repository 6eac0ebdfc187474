// Package compilation drives the block compilation lifecycle: it runs the
// analyze, compile and optimize pipeline on every build start and notifies
// consumers through pending, expired and complete events.
package compilation

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/felixgeelhaar/blockforge/internal/domain/analysis"
	"github.com/felixgeelhaar/blockforge/internal/domain/asset"
	"github.com/felixgeelhaar/blockforge/internal/domain/block"
	"github.com/felixgeelhaar/blockforge/internal/domain/blockcompiler"
	"github.com/felixgeelhaar/blockforge/internal/domain/build"
	"github.com/felixgeelhaar/blockforge/internal/domain/entry"
	"github.com/felixgeelhaar/blockforge/internal/domain/notify"
	"github.com/felixgeelhaar/blockforge/internal/domain/optimizer"
	"github.com/felixgeelhaar/blockforge/internal/domain/sourcemap"
	"github.com/felixgeelhaar/blockforge/internal/domain/stylesheet"
	"github.com/felixgeelhaar/blockforge/internal/ports"
)

// Defaults for Options.
const (
	DefaultName          = "css-blocks"
	DefaultOutputCSSFile = "css-blocks.css"
	// LogSuffix is appended to the output name for the optimizer log asset.
	LogSuffix = ".log"
)

// Analyzer discovers blocks and template usage.
type Analyzer interface {
	Reset()
	Analyze(ctx context.Context, root string, entries []string) error
	PrepareForExit(ctx context.Context) error
	TransitiveBlockDependencies() []*block.Block
	Analyses() []*analysis.Analysis
	OptimizationCapabilities() optimizer.Capabilities
}

// CompiledRoot is a compiled block ready to print.
type CompiledRoot interface {
	ToResult(opts blockcompiler.ResultOptions) (blockcompiler.Result, error)
}

// BlockCompiler compiles one block.
type BlockCompiler interface {
	Compile(b *block.Block, sheet *stylesheet.Stylesheet, analyses []*analysis.Analysis) (CompiledRoot, error)
}

// BlockCompilerFunc adapts a function to BlockCompiler.
type BlockCompilerFunc func(b *block.Block, sheet *stylesheet.Stylesheet, analyses []*analysis.Analysis) (CompiledRoot, error)

// Compile implements BlockCompiler.
func (f BlockCompilerFunc) Compile(b *block.Block, sheet *stylesheet.Stylesheet, analyses []*analysis.Analysis) (CompiledRoot, error) {
	return f(b, sheet, analyses)
}

// Optimizer merges compiled sources into one artifact.
type Optimizer interface {
	AddSource(src optimizer.Source)
	AddAnalysis(a optimizer.TemplateAnalysis)
	Optimize(ctx context.Context, outputName string) (*optimizer.Result, error)
}

// OptimizerFactory creates an optimizer for one compilation.
type OptimizerFactory func(opts optimizer.Options, caps optimizer.Capabilities) Optimizer

// Options configures a Controller.
type Options struct {
	// Name tags trace messages.
	Name string
	// OutputCSSFile is the name of the CSS asset.
	OutputCSSFile string
	// ProjectDir is the root entries resolve against.
	ProjectDir string
	// Optimization overrides the optimizer defaults.
	Optimization optimizer.UserOptions
}

type staged struct {
	assets map[string]asset.Asset
	deps   []string
}

// Controller owns the pending compilation and runs the pipeline.
type Controller struct {
	opts         Options
	analyzer     Analyzer
	compiler     BlockCompiler
	newOptimizer OptimizerFactory
	importer     block.Importer
	bus          *notify.Bus[*Pending, *Completion]
	trace        *Tracer
	machine      *machine

	// lifecycle orders latest-handle updates with state machine events.
	lifecycle sync.Mutex
	// running serializes pipelines; collaborators hold per-run state.
	running sync.Mutex

	mu       sync.Mutex
	current  *Pending
	latest   *Pending
	staged   map[string]*staged
	attempts sync.WaitGroup
}

// NewController creates a controller. The state machine starts idle.
func NewController(opts Options, analyzer Analyzer, compiler BlockCompiler, newOptimizer OptimizerFactory, logger ports.Logger) (*Controller, error) {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.OutputCSSFile == "" {
		opts.OutputCSSFile = DefaultOutputCSSFile
	}

	trace := NewTracer(opts.Name, opts.ProjectDir, logger)
	m, err := newMachine(trace)
	if err != nil {
		return nil, err
	}

	return &Controller{
		opts:         opts,
		analyzer:     analyzer,
		compiler:     compiler,
		newOptimizer: newOptimizer,
		importer:     block.Importer{Root: opts.ProjectDir},
		bus:          notify.NewBus[*Pending, *Completion](),
		trace:        trace,
		machine:      m,
		staged:       make(map[string]*staged),
	}, nil
}

// OnPending subscribes to new pending compilations.
func (c *Controller) OnPending(fn func(*Pending)) { c.bus.OnPending(fn) }

// OnExpired subscribes to invalidation of the previous pending compilation.
func (c *Controller) OnExpired(fn func()) { c.bus.OnExpired(fn) }

// OnComplete subscribes to finished compilations. The build's make step
// waits for every handler to return.
func (c *Controller) OnComplete(fn func(context.Context, *Completion) error) { c.bus.OnComplete(fn) }

// Latch returns a consumer that always holds the authoritative handle.
func (c *Controller) Latch() *notify.Latch[*Pending] { return notify.Subscribe(c.bus) }

// State returns the lifecycle state.
func (c *Controller) State() State { return c.machine.state() }

// SetStateChangeHandler sets the callback for state changes.
func (c *Controller) SetStateChangeHandler(fn func(from, to State)) { c.machine.setHandler(fn) }

// Apply binds the controller to a host's hooks.
func (c *Controller) Apply(h *build.Host) {
	h.OnThisCompilation(func(*build.Compilation) { c.Expire() })
	h.OnMake(c.Start)
	h.OnAdditionalAssets(c.copyStaged)
	h.OnEmit(c.emit)
	h.OnAbort(c.discard)
	h.OnModuleLoad(func(mc *build.ModuleContext) error {
		_, err := c.Retrieve(MappingsFrom(mc))
		return err
	})
}

type mappingsKey struct{}

// MappingsFrom returns the handles retrieved for a module, creating the set
// on first use.
func MappingsFrom(mc *build.ModuleContext) *Mappings {
	if m, ok := mc.Value(mappingsKey{}).(*Mappings); ok {
		return m
	}
	m := NewMappings()
	mc.SetValue(mappingsKey{}, m)
	return m
}

// Expire invalidates the current handle and raises expired.
func (c *Controller) Expire() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
	c.bus.Expire()
}

// Retrieve registers the authoritative handle in mappings and returns it.
// It fails when no compilation is pending or the output was already
// retrieved into mappings.
func (c *Controller) Retrieve(mappings *Mappings) (*Pending, error) {
	c.mu.Lock()
	p := c.current
	c.mu.Unlock()

	if p == nil {
		return nil, NewConfigurationError(c.opts.OutputCSSFile, "no pending compilation is available")
	}
	if !mappings.register(p) {
		return nil, NewConfigurationError(p.output, "the pending compilation was already retrieved for this output")
	}
	return p, nil
}

// IsCurrent reports whether p is the authoritative handle.
func (c *Controller) IsCurrent(p *Pending) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return p != nil && c.current == p
}

// Start runs the pipeline for a compilation in the background. The returned
// channel yields once, after every complete handler has returned.
func (c *Controller) Start(ctx context.Context, comp *build.Compilation) <-chan error {
	p := newPending(c.opts.OutputCSSFile)

	c.lifecycle.Lock()
	c.mu.Lock()
	c.current = p
	c.latest = p
	c.staged[comp.ID] = &staged{assets: make(map[string]asset.Asset)}
	c.mu.Unlock()
	c.machine.send(EventStart)
	c.lifecycle.Unlock()

	c.trace.Trace(ctx, "compilation %s started for %s", p.id, p.output)
	c.bus.Publish(p)

	out := make(chan error, 1)
	c.attempts.Add(1)
	go func() {
		defer c.attempts.Done()
		out <- c.run(ctx, comp, p)
	}()
	return out
}

// Wait blocks until every started pipeline has finished.
func (c *Controller) Wait() {
	c.attempts.Wait()
}

// Close stops the state machine.
func (c *Controller) Close() {
	c.machine.stop()
}

func (c *Controller) run(ctx context.Context, comp *build.Compilation, p *Pending) error {
	c.running.Lock()
	res, failure := c.pipeline(ctx, comp, p)
	c.running.Unlock()

	c.lifecycle.Lock()
	c.mu.Lock()
	superseded := c.latest != p
	c.mu.Unlock()

	completion := &Completion{Handle: p, Superseded: superseded}
	if failure != nil {
		comp.AddError(failure.Err)
		c.trace.Error(ctx, failure.Err, "compilation %s failed", p.id)
		p.resolve(nil, failure.Err)
		completion.Outcome = failure
	} else {
		c.trace.Trace(ctx, "compilation %s complete: %d blocks, %d actions", p.id, len(res.Blocks), len(res.Actions))
		p.resolve(res.Mapping, nil)
		completion.Outcome = res
	}

	if !superseded {
		if failure != nil {
			c.machine.send(EventFail)
		} else {
			c.machine.send(EventSucceed)
		}
		c.machine.send(EventReset)
	}
	c.lifecycle.Unlock()

	return c.bus.Complete(ctx, completion)
}

func (c *Controller) pipeline(ctx context.Context, comp *build.Compilation, p *Pending) (*Result, *Failure) {
	fail := func(err error, actions []optimizer.Action) (*Result, *Failure) {
		return nil, &Failure{Err: err, Output: p.output, Actions: actions}
	}

	c.analyzer.Reset()
	entries := entry.Enumerate(comp.Entry)
	c.trace.Trace(ctx, "analyzing %d entries: %s", len(entries), strings.Join(entries, ", "))

	if err := c.analyzer.Analyze(ctx, c.opts.ProjectDir, entries); err != nil {
		if drainErr := c.analyzer.PrepareForExit(ctx); drainErr != nil {
			c.trace.Error(ctx, drainErr, "draining analyzer")
		}
		c.stageDeps(comp.ID, c.analyzer.TransitiveBlockDependencies())
		return fail(NewAnalysisError(p.output, err), nil)
	}

	blocks := c.analyzer.TransitiveBlockDependencies()
	analyses := c.analyzer.Analyses()
	c.stageDeps(comp.ID, blocks)

	opts := c.opts.Optimization.Resolve(optimizer.DefaultOptions())
	opt := c.newOptimizer(opts, c.analyzer.OptimizationCapabilities())

	var compiled []*block.Block
	for _, b := range blocks {
		if b.Stylesheet == nil || b.Identifier == "" {
			c.trace.Trace(ctx, "skipping block %s without stylesheet or identifier", b.Name)
			continue
		}
		filename := c.filename(b)
		c.trace.Trace(ctx, "compiling %s", filename)

		root, err := c.compiler.Compile(b, b.Stylesheet, analyses)
		if err != nil {
			return fail(NewCompileError(p.output, filename, err), nil)
		}
		out, err := root.ToResult(blockcompiler.ResultOptions{To: p.output})
		if err != nil {
			return fail(NewCompileError(p.output, filename, err), nil)
		}
		opt.AddSource(optimizer.Source{Content: out.CSS, Filename: filename, SourceMap: out.Map})
		compiled = append(compiled, b)
	}

	for _, a := range analyses {
		c.trace.Trace(ctx, "analysis of %s: %d elements", a.TemplateName(), a.ElementCount())
		opt.AddAnalysis(a.ForOptimizer())
	}

	optimized, err := opt.Optimize(ctx, filepath.Join(comp.OutputDir, p.output))
	if err != nil {
		return fail(NewOptimizeError(p.output, err), nil)
	}

	sm := optimized.SourceMap
	if sm == nil && optimized.RawSourceMap != "" {
		sm, err = sourcemap.ParseString(optimized.RawSourceMap)
		if err != nil {
			return fail(NewOptimizeError(p.output, err), optimized.Actions)
		}
	}

	var css asset.Asset = asset.NewRaw(optimized.Content)
	if sm != nil {
		css = asset.NewSourceMapped(optimized.Content, p.output, sm)
	}
	logLines := make([]string, len(optimized.Actions))
	for i, a := range optimized.Actions {
		logLines[i] = a.LogString()
	}
	c.stageAssets(comp.ID, map[string]asset.Asset{
		p.output:             css,
		p.output + LogSuffix: asset.NewRaw(strings.Join(logLines, "\n")),
	})

	return &Result{
		Output:    p.output,
		CSS:       []byte(optimized.Content),
		SourceMap: sm,
		Blocks:    compiled,
		Analyses:  analyses,
		Actions:   optimized.Actions,
		Mapping:   newStyleMapping(p.output, compiled, optimized.Renames),
	}, nil
}

// filename names a block relative to the project directory, falling back to
// its debug identifier.
func (c *Controller) filename(b *block.Block) string {
	if path := c.importer.FilesystemPath(b.Identifier); path != "" && c.opts.ProjectDir != "" {
		if rel, err := filepath.Rel(c.opts.ProjectDir, path); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return c.importer.DebugIdentifier(b.Identifier)
}

func (c *Controller) stageDeps(id string, blocks []*block.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.staged[id]
	if !ok {
		return
	}
	s.deps = s.deps[:0]
	for _, b := range blocks {
		if path := c.importer.FilesystemPath(b.Identifier); path != "" {
			s.deps = append(s.deps, path)
		}
	}
}

func (c *Controller) stageAssets(id string, assets map[string]asset.Asset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.staged[id]
	if !ok {
		return
	}
	for name, a := range assets {
		s.assets[name] = a
	}
}

func (c *Controller) copyStaged(comp *build.Compilation) error {
	c.mu.Lock()
	s, ok := c.staged[comp.ID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	for name, a := range s.assets {
		comp.Assets.Add(name, a)
	}
	return nil
}

// discard drops what was staged for an aborted build. A pipeline still
// running for it stages nothing further.
func (c *Controller) discard(comp *build.Compilation) {
	c.mu.Lock()
	delete(c.staged, comp.ID)
	c.mu.Unlock()
	c.trace.Trace(context.Background(), "build %s aborted", comp.ID)
}

func (c *Controller) emit(comp *build.Compilation) {
	c.mu.Lock()
	s, ok := c.staged[comp.ID]
	delete(c.staged, comp.ID)
	c.mu.Unlock()
	if !ok {
		return
	}
	comp.AddFileDependency(s.deps...)
	c.trace.Trace(context.Background(), "reported %d file dependencies", len(s.deps))
}
