// Package app wires the blockforge build pipeline.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/blockforge/internal/adapters/artifactstore"
	"github.com/felixgeelhaar/blockforge/internal/adapters/filesystem"
	"github.com/felixgeelhaar/blockforge/internal/adapters/logging"
	"github.com/felixgeelhaar/blockforge/internal/domain/analysis"
	"github.com/felixgeelhaar/blockforge/internal/domain/block"
	"github.com/felixgeelhaar/blockforge/internal/domain/blockcompiler"
	"github.com/felixgeelhaar/blockforge/internal/domain/build"
	"github.com/felixgeelhaar/blockforge/internal/domain/compilation"
	"github.com/felixgeelhaar/blockforge/internal/domain/config"
	"github.com/felixgeelhaar/blockforge/internal/domain/entry"
	"github.com/felixgeelhaar/blockforge/internal/domain/optimizer"
	"github.com/felixgeelhaar/blockforge/internal/domain/stylesheet"
	"github.com/felixgeelhaar/blockforge/internal/ports"
)

// Blockforge is the application orchestrator.
type Blockforge struct {
	cfg        *config.Config
	fs         ports.FileSystem
	logger     ports.Logger
	store      ports.ArtifactStore
	factory    *block.Factory
	controller *compilation.Controller
	host       *build.Host
	writer     *artifactstore.Writer

	mu    sync.Mutex
	last  *compilation.Completion
	deps  []string
	bound map[string]*compilation.Pending
}

// Option configures a Blockforge.
type Option func(*Blockforge)

// WithFileSystem replaces the os-backed file system.
func WithFileSystem(fs ports.FileSystem) Option {
	return func(b *Blockforge) { b.fs = fs }
}

// WithLogger sets the logger.
func WithLogger(logger ports.Logger) Option {
	return func(b *Blockforge) { b.logger = logger }
}

// WithArtifactStore publishes written artifacts to store. Without it, a
// configured S3 bucket is used.
func WithArtifactStore(store ports.ArtifactStore) Option {
	return func(b *Blockforge) { b.store = store }
}

// New wires a pipeline for cfg. cfg must be defaulted and validated.
func New(cfg *config.Config, opts ...Option) (*Blockforge, error) {
	b := &Blockforge{cfg: cfg}
	for _, opt := range opts {
		opt(b)
	}
	if b.fs == nil {
		b.fs = filesystem.NewRealFileSystem()
	}
	if b.logger == nil {
		b.logger = logging.NewNopLogger()
	}
	if b.store == nil && cfg.Publish.S3.Enabled() {
		s3 := cfg.Publish.S3
		store, err := artifactstore.NewS3Store(artifactstore.S3Config{
			Endpoint:  s3.Endpoint,
			Region:    s3.Region,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Bucket:    s3.Bucket,
			Prefix:    s3.Prefix,
			UseSSL:    s3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create artifact store: %w", err)
		}
		b.store = store
	}

	factoryOpts := []block.FactoryOption{block.WithMaxConcurrency(cfg.Blocks.MaxConcurrency)}
	if len(cfg.Blocks.Extensions) > 0 {
		factoryOpts = append(factoryOpts, block.WithExtensions(cfg.Blocks.Extensions...))
	}
	b.factory = block.NewFactory(b.fs, cfg.ProjectDir, factoryOpts...)
	analyzer := analysis.NewAnalyzer(b.fs, b.factory, analysis.WithConcurrency(cfg.Blocks.MaxConcurrency))

	compiler, err := blockcompiler.New(b.factory.Importer(), cfg.Blocks.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create block compiler: %w", err)
	}

	b.controller, err = compilation.NewController(compilation.Options{
		Name:          cfg.Name,
		OutputCSSFile: cfg.OutputCSSFile,
		ProjectDir:    cfg.ProjectDir,
		Optimization:  cfg.Optimization,
	}, analyzer, compilerAdapter(compiler), newOptimizer, b.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create controller: %w", err)
	}
	b.controller.OnComplete(b.recordCompletion)
	b.controller.SetStateChangeHandler(func(from, to compilation.State) {
		b.logger.Debug(context.Background(), "compilation state changed",
			ports.F("from", string(from)), ports.F("to", string(to)))
	})

	b.host = build.NewHost(cfg.Entry, cfg.OutputDir)
	b.controller.Apply(b.host)
	b.host.OnModuleLoad(b.bindModule)

	b.writer = artifactstore.NewWriter(b.fs, artifactstore.WriterOptions{
		EmitSourceMaps:   cfg.Assets.ShouldEmitSourceMaps(),
		InlineSourceMaps: cfg.Assets.InlineSourceMaps,
	})
	return b, nil
}

func compilerAdapter(c *blockcompiler.Compiler) compilation.BlockCompiler {
	return compilation.BlockCompilerFunc(func(b *block.Block, sheet *stylesheet.Stylesheet, analyses []*analysis.Analysis) (compilation.CompiledRoot, error) {
		root, err := c.Compile(b, sheet, analyses)
		if err != nil {
			return nil, err
		}
		return root, nil
	})
}

func newOptimizer(opts optimizer.Options, caps optimizer.Capabilities) compilation.Optimizer {
	return optimizer.New(opts, caps)
}

func (b *Blockforge) recordCompletion(_ context.Context, c *compilation.Completion) error {
	if c.Superseded {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = c
	return nil
}

// Controller returns the compilation controller.
func (b *Blockforge) Controller() *compilation.Controller { return b.controller }

// Config returns the configuration.
func (b *Blockforge) Config() *config.Config { return b.cfg }

// Report summarizes one build.
type Report struct {
	ID               string
	Output           string
	Written          []artifactstore.Written
	Published        bool
	Blocks           []string
	// Modules lists the template modules that read the style mapping.
	Modules          []string
	// Classes maps each emitted block class to its output name.
	Classes          map[string]string
	Actions          []string
	FileDependencies []string
	Errors           []error
	Duration         time.Duration
}

// Build runs one compilation, writes its assets and publishes them when a
// store is configured. Template entries are loaded as modules so each
// retrieves the pending compilation.
func (b *Blockforge) Build(ctx context.Context) (*Report, error) {
	start := time.Now()
	b.mu.Lock()
	b.bound = make(map[string]*compilation.Pending)
	b.mu.Unlock()

	comp, err := b.host.Run(ctx, b.modules())
	if err != nil {
		return nil, err
	}

	report := &Report{
		ID:               comp.ID,
		Output:           b.cfg.OutputPath(),
		FileDependencies: comp.FileDependencies(),
		Errors:           comp.Errors(),
	}
	b.mu.Lock()
	b.deps = report.FileDependencies
	last := b.last
	b.mu.Unlock()

	if last != nil {
		if res, ok := last.Result(); ok {
			for _, blk := range res.Blocks {
				report.Blocks = append(report.Blocks, blk.Name)
			}
			for _, a := range res.Actions {
				report.Actions = append(report.Actions, a.LogString())
			}
		}
	}

	if err := comp.Err(); err != nil {
		report.Duration = time.Since(start)
		return report, err
	}
	if err := b.readMappings(ctx, report); err != nil {
		report.Duration = time.Since(start)
		return report, err
	}

	report.Written, err = b.writer.Write(b.cfg.OutputDir, comp.Assets)
	if err != nil {
		report.Duration = time.Since(start)
		return report, fmt.Errorf("failed to write assets: %w", err)
	}
	b.logger.Info(ctx, "build complete", ports.F("id", comp.ID), ports.F("files", len(report.Written)))

	if b.store != nil {
		if err := artifactstore.Publish(ctx, b.store, comp.ID, report.Written); err != nil {
			report.Duration = time.Since(start)
			return report, fmt.Errorf("failed to publish assets: %w", err)
		}
		report.Published = true
	}

	report.Duration = time.Since(start)
	return report, nil
}

// bindModule records the handle a module retrieved for the output
// stylesheet. It runs after the controller's module hook.
func (b *Blockforge) bindModule(mc *build.ModuleContext) error {
	p, ok := compilation.MappingsFrom(mc).Get(b.cfg.OutputCSSFile)
	if !ok {
		return nil
	}
	b.mu.Lock()
	b.bound[mc.Resource] = p
	b.mu.Unlock()
	return nil
}

// readMappings waits on the handle of every bound module and fills the
// report's class mapping.
func (b *Blockforge) readMappings(ctx context.Context, report *Report) error {
	b.mu.Lock()
	bound := make(map[string]*compilation.Pending, len(b.bound))
	for m, p := range b.bound {
		bound[m] = p
	}
	b.mu.Unlock()

	for m, p := range bound {
		mapping, err := p.Wait(ctx)
		if err != nil {
			return err
		}
		report.Modules = append(report.Modules, m)
		if report.Classes == nil {
			report.Classes = mapping.Classes()
		}
	}
	sort.Strings(report.Modules)
	return nil
}

// modules returns the template entries.
func (b *Blockforge) modules() []string {
	var modules []string
	for _, e := range entry.Enumerate(b.cfg.Entry) {
		if !b.factory.IsBlockFile(b.abs(e)) {
			modules = append(modules, e)
		}
	}
	return modules
}

func (b *Blockforge) abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(b.cfg.ProjectDir, path)
}

// WatchPaths returns the files whose change triggers a rebuild: the entries,
// the config file and the dependencies reported by the last build.
func (b *Blockforge) WatchPaths() []string {
	seen := map[string]bool{}
	for _, e := range entry.Enumerate(b.cfg.Entry) {
		seen[b.abs(e)] = true
	}
	if p := b.cfg.Path(); p != "" {
		seen[p] = true
	}
	b.mu.Lock()
	for _, d := range b.deps {
		seen[d] = true
	}
	b.mu.Unlock()

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Close stops the controller after running builds finish.
func (b *Blockforge) Close() {
	b.controller.Wait()
	b.controller.Close()
}
