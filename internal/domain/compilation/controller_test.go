package compilation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/blockforge/internal/domain/block"
	"github.com/felixgeelhaar/blockforge/internal/domain/build"
	"github.com/felixgeelhaar/blockforge/internal/domain/entry"
	"github.com/felixgeelhaar/blockforge/internal/testutil/mocks"
)

type completions struct {
	mu   sync.Mutex
	list []*Completion
}

func (c *completions) record(_ context.Context, comp *Completion) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = append(c.list, comp)
	return nil
}

func (c *completions) all() []*Completion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Completion(nil), c.list...)
}

func newController(t *testing.T, a Analyzer, compiler BlockCompiler, opt OptimizerFactory) (*Controller, *mocks.Logger) {
	t.Helper()
	logger := mocks.NewLogger()
	c, err := NewController(Options{Name: "css-blocks", ProjectDir: "/p"}, a, compiler, opt, logger)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, logger
}

func TestController_SuccessScenario(t *testing.T) {
	t.Parallel()

	a := &fakeAnalyzer{blocks: []*block.Block{mustBlock(t, "/p/a.block.css", "a", ":scope{color:red}")}}
	c, _ := newController(t, a, realCompiler(t), passThroughFactory(nil))

	var mu sync.Mutex
	var transitions []string
	c.SetStateChangeHandler(func(from, to State) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, string(from)+">"+string(to))
	})

	var got completions
	c.OnComplete(got.record)

	host := build.NewHost(entry.List("a.block"), "dist")
	c.Apply(host)
	comp, err := host.Run(context.Background(), nil)
	require.NoError(t, err)

	css, ok := comp.Assets.Get(DefaultOutputCSSFile)
	require.True(t, ok)
	assert.Equal(t, ".a{color:red}", string(css.Content()))
	require.NotNil(t, css.SourceMap(), "string-form map is parsed")
	src, line, ok := css.SourceMap().Lookup(1)
	require.True(t, ok)
	assert.Equal(t, "a.block.css", src)
	assert.Equal(t, 1, line)

	log, ok := comp.Assets.Get(DefaultOutputCSSFile + LogSuffix)
	require.True(t, ok)
	assert.Empty(t, string(log.Content()))

	completed := got.all()
	require.Len(t, completed, 1)
	res, ok := completed[0].Result()
	require.True(t, ok)
	_, isFailure := completed[0].Failure()
	assert.False(t, isFailure)
	assert.False(t, completed[0].Superseded)
	require.Len(t, res.Mapping.Blocks, 1)
	name, ok := res.Mapping.ClassName(res.Mapping.Blocks[0], "")
	require.True(t, ok)
	assert.Equal(t, "a", name)

	assert.Empty(t, comp.Errors())
	assert.Equal(t, []string{"/p/a.block.css"}, comp.FileDependencies())
	assert.Equal(t, [][]string{{"a.block"}}, a.entries)
	assert.Equal(t, StateIdle, c.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"idle>pending", "pending>completed", "completed>idle"}, transitions)
}

func TestController_AnalysisFailure(t *testing.T) {
	t.Parallel()

	a := &fakeAnalyzer{err: errors.New("file not found")}
	c, logger := newController(t, a, realCompiler(t), passThroughFactory(nil))

	var got completions
	c.OnComplete(got.record)
	var transitions []State
	c.SetStateChangeHandler(func(_, to State) { transitions = append(transitions, to) })

	host := build.NewHost(entry.Single("missing.block.css"), "dist")
	c.Apply(host)
	comp, err := host.Run(context.Background(), nil)
	require.NoError(t, err)

	completed := got.all()
	require.Len(t, completed, 1)
	failure, ok := completed[0].Failure()
	require.True(t, ok)
	_, isResult := completed[0].Result()
	assert.False(t, isResult)
	assert.Contains(t, failure.Err.Error(), "file not found")
	assert.ErrorIs(t, failure.Err, ErrAnalysis)
	assert.Equal(t, DefaultOutputCSSFile, failure.Output)

	require.Len(t, comp.Errors(), 1)
	_, ok = comp.Assets.Get(DefaultOutputCSSFile)
	assert.False(t, ok)

	calls, resets, drains := a.counts()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, resets)
	assert.Equal(t, 1, drains)

	assert.Equal(t, []State{StatePending, StateFailed, StateIdle}, transitions)
	assert.True(t, logger.Contains("[css-blocks] compilation"))

	handle := completed[0].Handle
	mapping, err := handle.Wait(context.Background())
	assert.Nil(t, mapping)
	assert.ErrorIs(t, err, ErrAnalysis)
}

func TestController_CompileFailureNamesBlock(t *testing.T) {
	t.Parallel()

	a := &fakeAnalyzer{blocks: []*block.Block{mustBlock(t, "/p/src/nav.block.css", "nav", ".x{color:red}")}}
	c, _ := newController(t, a, failingCompiler("nav"), passThroughFactory(nil))

	var got completions
	c.OnComplete(got.record)
	host := build.NewHost(entry.Single("src/nav.block.css"), "dist")
	c.Apply(host)
	comp, err := host.Run(context.Background(), nil)
	require.NoError(t, err)

	failure, ok := got.all()[0].Failure()
	require.True(t, ok)
	assert.ErrorIs(t, failure.Err, ErrCompilation)
	assert.Contains(t, failure.Err.Error(), `block "src/nav.block.css"`)
	assert.Contains(t, failure.Err.Error(), "unbalanced braces")
	assert.Len(t, comp.Errors(), 1)
	assert.Zero(t, comp.Assets.Len())
}

func TestController_OptimizeFailure(t *testing.T) {
	t.Parallel()

	a := &fakeAnalyzer{blocks: []*block.Block{mustBlock(t, "/p/a.block.css", "a", ":scope{color:red}")}}
	c, _ := newController(t, a, realCompiler(t), passThroughFactory(errors.New("conflicting inputs")))

	var got completions
	c.OnComplete(got.record)
	host := build.NewHost(entry.Single("a.block.css"), "dist")
	c.Apply(host)
	comp, err := host.Run(context.Background(), nil)
	require.NoError(t, err)

	failure, ok := got.all()[0].Failure()
	require.True(t, ok)
	assert.ErrorIs(t, failure.Err, ErrOptimization)
	assert.Len(t, comp.Errors(), 1)
	assert.Zero(t, comp.Assets.Len())
}

func TestController_SkipsBlocksWithoutStylesheet(t *testing.T) {
	t.Parallel()

	a := &fakeAnalyzer{blocks: []*block.Block{
		{Name: "virtual", Identifier: "/p/virtual.block.css"},
		{Name: "anonymous"},
		mustBlock(t, "/p/a.block.css", "a", ":scope{color:red}"),
	}}
	c, _ := newController(t, a, realCompiler(t), passThroughFactory(nil))

	var got completions
	c.OnComplete(got.record)
	host := build.NewHost(entry.Single("a.block.css"), "dist")
	c.Apply(host)
	_, err := host.Run(context.Background(), nil)
	require.NoError(t, err)

	res, ok := got.all()[0].Result()
	require.True(t, ok)
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, "a", res.Blocks[0].Name)
}

func TestController_RapidRestart(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	a := &fakeAnalyzer{
		blocks:  []*block.Block{mustBlock(t, "/p/a.block.css", "a", ":scope{color:red}")},
		gates:   map[int]chan struct{}{1: gate},
		started: make(chan int, 4),
	}
	c, _ := newController(t, a, realCompiler(t), passThroughFactory(nil))

	var mu sync.Mutex
	var events []string
	c.OnExpired(func() {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, "expired")
	})
	c.OnPending(func(p *Pending) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, "pending")
	})
	latch := c.Latch()
	var got completions
	c.OnComplete(got.record)

	ctx := context.Background()
	first := build.NewCompilation(entry.Single("a.block.css"), "dist")
	second := build.NewCompilation(entry.Single("a.block.css"), "dist")

	c.Expire()
	done1 := c.Start(ctx, first)
	require.Equal(t, 1, <-a.started)
	h1, ok := latch.Get()
	require.True(t, ok)

	c.Expire()
	done2 := c.Start(ctx, second)
	h2, ok := latch.Get()
	require.True(t, ok)
	assert.NotEqual(t, h1.ID(), h2.ID())
	assert.False(t, c.IsCurrent(h1))
	assert.True(t, c.IsCurrent(h2))
	assert.Equal(t, StatePending, c.State())

	mu.Lock()
	assert.Equal(t, []string{"expired", "pending", "expired", "pending"}, events)
	mu.Unlock()

	close(gate)
	require.NoError(t, <-done1)
	require.NoError(t, <-done2)

	completed := got.all()
	require.Len(t, completed, 2)
	byHandle := map[string]*Completion{}
	for _, comp := range completed {
		byHandle[comp.Handle.ID()] = comp
	}
	assert.True(t, byHandle[h1.ID()].Superseded)
	assert.False(t, byHandle[h2.ID()].Superseded)
	assert.Equal(t, StateIdle, c.State())

	calls, resets, _ := a.counts()
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, resets)
}

func TestController_PipelinesDoNotOverlap(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	a := &fakeAnalyzer{
		gates:   map[int]chan struct{}{1: gate},
		started: make(chan int, 4),
	}
	c, _ := newController(t, a, realCompiler(t), passThroughFactory(nil))

	ctx := context.Background()
	done1 := c.Start(ctx, build.NewCompilation(entry.Spec{}, "dist"))
	require.Equal(t, 1, <-a.started)
	done2 := c.Start(ctx, build.NewCompilation(entry.Spec{}, "dist"))

	select {
	case call := <-a.started:
		t.Fatalf("analysis %d started while the first was running", call)
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)
	require.NoError(t, <-done1)
	require.Equal(t, 2, <-a.started)
	require.NoError(t, <-done2)
	c.Wait()
}

func TestController_Retrieve(t *testing.T) {
	t.Parallel()

	a := &fakeAnalyzer{}
	c, _ := newController(t, a, realCompiler(t), passThroughFactory(nil))

	_, err := c.Retrieve(NewMappings())
	require.ErrorIs(t, err, ErrConfiguration)

	done := c.Start(context.Background(), build.NewCompilation(entry.Spec{}, "dist"))

	m := NewMappings()
	p, err := c.Retrieve(m)
	require.NoError(t, err)
	assert.Equal(t, DefaultOutputCSSFile, p.OutputName())
	got, ok := m.Get(DefaultOutputCSSFile)
	require.True(t, ok)
	assert.Same(t, p, got)
	assert.Equal(t, []string{DefaultOutputCSSFile}, m.Outputs())

	_, err = c.Retrieve(m)
	require.ErrorIs(t, err, ErrConfiguration)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Format(), "[CONFIGURATION]")

	other, err := c.Retrieve(NewMappings())
	require.NoError(t, err)
	assert.Same(t, p, other)

	require.NoError(t, <-done)

	c.Expire()
	_, err = c.Retrieve(NewMappings())
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestController_ModuleLoadHook(t *testing.T) {
	t.Parallel()

	a := &fakeAnalyzer{blocks: []*block.Block{mustBlock(t, "/p/a.block.css", "a", ":scope{color:red}")}}
	c, _ := newController(t, a, realCompiler(t), passThroughFactory(nil))

	var handles []*Pending
	var mu sync.Mutex
	host := build.NewHost(entry.Single("a.block.css"), "dist")
	c.Apply(host)
	host.OnModuleLoad(func(mc *build.ModuleContext) error {
		p, ok := MappingsFrom(mc).Get(DefaultOutputCSSFile)
		if !ok {
			return errors.New("no handle retrieved for " + mc.Resource)
		}
		mu.Lock()
		handles = append(handles, p)
		mu.Unlock()
		return nil
	})

	comp, err := host.Run(context.Background(), []string{"app.js", "page.js"})
	require.NoError(t, err)
	assert.Empty(t, comp.Errors())
	require.Len(t, handles, 2)
	assert.Same(t, handles[0], handles[1])

	mapping, err := handles[0].Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, mapping.Blocks, 1)
}

func TestController_CompleteWaitsForSubscribers(t *testing.T) {
	t.Parallel()

	a := &fakeAnalyzer{blocks: []*block.Block{mustBlock(t, "/p/a.block.css", "a", ":scope{color:red}")}}
	c, _ := newController(t, a, realCompiler(t), passThroughFactory(nil))

	var acknowledged sync.WaitGroup
	acknowledged.Add(2)
	var finished [2]bool
	for i := range finished {
		c.OnComplete(func(ctx context.Context, comp *Completion) error {
			defer acknowledged.Done()
			if _, err := comp.Handle.Wait(ctx); err != nil {
				return err
			}
			time.Sleep(10 * time.Millisecond)
			finished[i] = true
			return nil
		})
	}

	host := build.NewHost(entry.Single("a.block.css"), "dist")
	c.Apply(host)
	comp, err := host.Run(context.Background(), nil)
	require.NoError(t, err)
	acknowledged.Wait()

	assert.Equal(t, [2]bool{true, true}, finished)
	assert.Empty(t, comp.Errors())
}

func TestController_SubscriberErrorsReachTheBuild(t *testing.T) {
	t.Parallel()

	a := &fakeAnalyzer{}
	c, _ := newController(t, a, realCompiler(t), passThroughFactory(nil))
	c.OnComplete(func(context.Context, *Completion) error { return errors.New("consumer rejected") })

	host := build.NewHost(entry.Spec{}, "dist")
	c.Apply(host)
	comp, err := host.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, comp.Errors(), 1)
	assert.EqualError(t, comp.Errors()[0], "consumer rejected")
}

func TestController_CompleteOncePerSignal(t *testing.T) {
	t.Parallel()

	a := &fakeAnalyzer{blocks: []*block.Block{mustBlock(t, "/p/a.block.css", "a", ":scope{color:red}")}}
	c, _ := newController(t, a, realCompiler(t), passThroughFactory(nil))

	var got completions
	c.OnComplete(got.record)
	var expired, pending int
	c.OnExpired(func() { expired++ })
	c.OnPending(func(*Pending) { pending++ })

	host := build.NewHost(entry.Single("a.block.css"), "dist")
	c.Apply(host)
	for i := 0; i < 4; i++ {
		_, err := host.Run(context.Background(), nil)
		require.NoError(t, err)
	}

	assert.Len(t, got.all(), 4)
	assert.Equal(t, 4, pending)
	assert.LessOrEqual(t, pending-expired, 1)
	for _, comp := range got.all() {
		_, isResult := comp.Result()
		_, isFailure := comp.Failure()
		assert.NotEqual(t, isResult, isFailure)
	}
}

func TestController_StagedAssetsBelongToTheirBuild(t *testing.T) {
	t.Parallel()

	a := &fakeAnalyzer{blocks: []*block.Block{mustBlock(t, "/p/a.block.css", "a", ":scope{color:red}")}}
	c, _ := newController(t, a, realCompiler(t), passThroughFactory(nil))

	host := build.NewHost(entry.Single("a.block.css"), "dist")
	c.Apply(host)
	first, err := host.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 2, first.Assets.Len())

	a.mu.Lock()
	a.err = errors.New("file not found")
	a.mu.Unlock()

	second, err := host.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, second.Assets.Len(), "a failed build does not reuse earlier assets")
}

func TestController_AbortedBuildDropsStagedAssets(t *testing.T) {
	t.Parallel()

	a := &fakeAnalyzer{
		blocks:  []*block.Block{mustBlock(t, "/p/a.block.css", "a", ":scope{color:red}")},
		gates:   map[int]chan struct{}{1: make(chan struct{})},
		started: make(chan int, 1),
	}
	c, _ := newController(t, a, realCompiler(t), passThroughFactory(nil))

	release := make(chan struct{})
	c.OnComplete(func(context.Context, *Completion) error {
		<-release
		return nil
	})

	stagedCount := func() int {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.staged)
	}

	host := build.NewHost(entry.Single("a.block.css"), "dist")
	c.Apply(host)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := host.Run(ctx, nil)
		done <- err
	}()

	require.Equal(t, 1, <-a.started)
	assert.Equal(t, 1, stagedCount())

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, stagedCount())

	close(release)
	c.Wait()
	assert.Zero(t, stagedCount(), "the finished attempt stages nothing for the aborted build")
}
