package compilation

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/blockforge/internal/domain/analysis"
	"github.com/felixgeelhaar/blockforge/internal/domain/block"
	"github.com/felixgeelhaar/blockforge/internal/domain/optimizer"
	"github.com/felixgeelhaar/blockforge/internal/domain/sourcemap"
)

// Pending is the handle of one in-flight compilation. It resolves exactly
// once and is replaced, never reused, by the next build start.
type Pending struct {
	id     string
	output string
	done   chan struct{}
	once   sync.Once

	mapping *StyleMapping
	err     error
}

func newPending(output string) *Pending {
	return &Pending{id: uuid.NewString(), output: output, done: make(chan struct{})}
}

// ID returns the handle's freshness token.
func (p *Pending) ID() string { return p.id }

// OutputName returns the artifact this compilation produces.
func (p *Pending) OutputName() string { return p.output }

// Done is closed once the compilation has finished.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the compilation finishes or ctx is done.
func (p *Pending) Wait(ctx context.Context) (*StyleMapping, error) {
	select {
	case <-p.done:
		return p.mapping, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pending) resolve(m *StyleMapping, err error) {
	p.once.Do(func() {
		p.mapping, p.err = m, err
		close(p.done)
	})
}

// StyleMapping maps block styles to the class names in the output.
type StyleMapping struct {
	Output string
	Blocks []*block.Block

	classes map[string]string
}

func newStyleMapping(output string, blocks []*block.Block, renames map[string]string) *StyleMapping {
	classes := make(map[string]string, len(renames))
	for k, v := range renames {
		classes[k] = v
	}
	return &StyleMapping{Output: output, Blocks: blocks, classes: classes}
}

// ClassName returns the output class for a block style. It reports false
// when the style was not emitted.
func (m *StyleMapping) ClassName(b *block.Block, class string) (string, bool) {
	out, ok := m.classes[block.ClassName(b, class)]
	return out, ok
}

// Classes returns every emitted class, keyed by its unoptimized name.
func (m *StyleMapping) Classes() map[string]string {
	out := make(map[string]string, len(m.classes))
	for k, v := range m.classes {
		out[k] = v
	}
	return out
}

// Outcome is the terminal state of one compilation: *Result or *Failure.
type Outcome interface {
	outcome()
}

// Result is a successful compilation.
type Result struct {
	Output    string
	CSS       []byte
	SourceMap *sourcemap.Map
	Blocks    []*block.Block
	Analyses  []*analysis.Analysis
	Actions   []optimizer.Action
	Mapping   *StyleMapping
}

// Failure is a compilation that did not produce output.
type Failure struct {
	Err    error
	Output string
	// Actions holds optimizer actions when the failure came after
	// optimization.
	Actions []optimizer.Action
}

func (*Result) outcome()  {}
func (*Failure) outcome() {}

// Completion is the payload of the complete notification.
type Completion struct {
	Handle  *Pending
	Outcome Outcome
	// Superseded is set when a newer build started before this compilation
	// finished. Consumers should ignore superseded completions.
	Superseded bool
}

// Result returns the successful outcome, if any.
func (c *Completion) Result() (*Result, bool) {
	r, ok := c.Outcome.(*Result)
	return r, ok
}

// Failure returns the failed outcome, if any.
func (c *Completion) Failure() (*Failure, bool) {
	f, ok := c.Outcome.(*Failure)
	return f, ok
}

// Mappings records the handles retrieved within one module.
type Mappings struct {
	mu      sync.Mutex
	handles map[string]*Pending
}

// NewMappings creates an empty set of retrieved handles.
func NewMappings() *Mappings {
	return &Mappings{handles: make(map[string]*Pending)}
}

// Get returns the handle retrieved for an output name.
func (m *Mappings) Get(output string) (*Pending, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.handles[output]
	return p, ok
}

// Outputs returns the output names retrieved so far, sorted.
func (m *Mappings) Outputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.handles))
	for k := range m.handles {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *Mappings) register(p *Pending) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handles[p.output]; ok {
		return false
	}
	m.handles[p.output] = p
	return true
}
