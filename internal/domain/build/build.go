// Package build is a small host build tool: it runs one compilation per
// call and exposes the hooks plugins attach to.
package build

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/blockforge/internal/domain/asset"
	"github.com/felixgeelhaar/blockforge/internal/domain/entry"
)

// Compilation is one build run.
type Compilation struct {
	ID        string
	Entry     entry.Spec
	OutputDir string
	Assets    *asset.Set

	mu       sync.Mutex
	errs     []error
	fileDeps map[string]bool
}

// NewCompilation creates a compilation with a fresh ID.
func NewCompilation(spec entry.Spec, outputDir string) *Compilation {
	return &Compilation{
		ID:        uuid.NewString(),
		Entry:     spec,
		OutputDir: outputDir,
		Assets:    asset.NewSet(),
		fileDeps:  make(map[string]bool),
	}
}

// AddError records a build error.
func (c *Compilation) AddError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

// Errors returns the recorded build errors in order.
func (c *Compilation) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errs...)
}

// Err joins the recorded build errors.
func (c *Compilation) Err() error {
	return errors.Join(c.Errors()...)
}

// AddFileDependency records files whose changes invalidate this build.
func (c *Compilation) AddFileDependency(paths ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range paths {
		c.fileDeps[p] = true
	}
}

// FileDependencies returns the recorded file dependencies, sorted.
func (c *Compilation) FileDependencies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.fileDeps))
	for p := range c.fileDeps {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ModuleContext is what a module-load hook sees for one module.
type ModuleContext struct {
	Compilation *Compilation
	Resource    string

	mu     sync.Mutex
	values map[any]any
}

// Value returns a value stored by an earlier hook.
func (m *ModuleContext) Value(key any) any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key]
}

// SetValue stores a value for later hooks.
func (m *ModuleContext) SetValue(key, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[any]any)
	}
	m.values[key] = value
}

// Host runs compilations and calls the registered hooks.
type Host struct {
	spec      entry.Spec
	outputDir string

	mu               sync.Mutex
	thisCompilation  []func(*Compilation)
	make             []func(context.Context, *Compilation) <-chan error
	additionalAssets []func(*Compilation) error
	emit             []func(*Compilation)
	abort            []func(*Compilation)
	moduleLoad       []func(*ModuleContext) error
}

// NewHost creates a host for the given entry points and output directory.
func NewHost(spec entry.Spec, outputDir string) *Host {
	return &Host{spec: spec, outputDir: outputDir}
}

// OnThisCompilation runs fn when a compilation is created.
func (h *Host) OnThisCompilation(fn func(*Compilation)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.thisCompilation = append(h.thisCompilation, fn)
}

// OnMake runs fn when the compilation starts building. The host waits for
// one value on the returned channel.
func (h *Host) OnMake(fn func(context.Context, *Compilation) <-chan error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.make = append(h.make, fn)
}

// OnAdditionalAssets runs fn after make, before emit.
func (h *Host) OnAdditionalAssets(fn func(*Compilation) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.additionalAssets = append(h.additionalAssets, fn)
}

// OnEmit runs fn once assets are final.
func (h *Host) OnEmit(fn func(*Compilation)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.emit = append(h.emit, fn)
}

// OnAbort runs fn when ctx ends before the make hooks finish. Additional
// assets and emit hooks do not run for that compilation.
func (h *Host) OnAbort(fn func(*Compilation)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.abort = append(h.abort, fn)
}

// OnModuleLoad runs fn for every module the compilation loads.
func (h *Host) OnModuleLoad(fn func(*ModuleContext) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.moduleLoad = append(h.moduleLoad, fn)
}

// Run performs one compilation. Modules are loaded while make hooks run.
// Hook failures become compilation errors; Run only fails when ctx is done.
func (h *Host) Run(ctx context.Context, modules []string) (*Compilation, error) {
	h.mu.Lock()
	thisCompilation := append([]func(*Compilation){}, h.thisCompilation...)
	makeHooks := append([]func(context.Context, *Compilation) <-chan error{}, h.make...)
	additional := append([]func(*Compilation) error{}, h.additionalAssets...)
	emit := append([]func(*Compilation){}, h.emit...)
	abort := append([]func(*Compilation){}, h.abort...)
	moduleLoad := append([]func(*ModuleContext) error{}, h.moduleLoad...)
	h.mu.Unlock()

	c := NewCompilation(h.spec, h.outputDir)
	for _, fn := range thisCompilation {
		fn(c)
	}

	pending := make([]<-chan error, 0, len(makeHooks))
	for _, fn := range makeHooks {
		pending = append(pending, fn(ctx, c))
	}

	for _, m := range modules {
		mc := &ModuleContext{Compilation: c, Resource: m}
		for _, fn := range moduleLoad {
			if err := fn(mc); err != nil {
				c.AddError(err)
			}
		}
	}

	for _, ch := range pending {
		select {
		case err := <-ch:
			if err != nil {
				c.AddError(err)
			}
		case <-ctx.Done():
			for _, fn := range abort {
				fn(c)
			}
			return c, ctx.Err()
		}
	}

	for _, fn := range additional {
		if err := fn(c); err != nil {
			c.AddError(err)
		}
	}
	for _, fn := range emit {
		fn(c)
	}
	return c, nil
}
