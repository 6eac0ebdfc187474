package block

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/blockforge/internal/testutil/mocks"
)

func TestFactory_GetLinksReferences(t *testing.T) {
	t.Parallel()

	fs := mocks.NewFileSystem()
	fs.AddFile("/p/src/nav.block.css", `@block icon from "./icon.block.css"; .item { color: red }`)
	fs.AddFile("/p/src/icon.block.css", `:scope { width: 1em }`)

	f := NewFactory(fs, "/p")
	nav, err := f.Get(context.Background(), "/p/src/nav.block.css")
	require.NoError(t, err)

	icon, ok := nav.Reference("icon")
	require.True(t, ok)
	assert.Equal(t, "icon", icon.Name)
	assert.Equal(t, "/p/src/icon.block.css", icon.Identifier)
	assert.Equal(t, []*Block{icon}, nav.Referenced())

	blocks := f.Blocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, "/p/src/icon.block.css", blocks[0].Identifier)
}

func TestFactory_ReadsEachFileOnce(t *testing.T) {
	t.Parallel()

	fs := mocks.NewFileSystem()
	fs.AddFile("/p/a.block.css", `.x{color:red}`)
	f := NewFactory(fs, "/p")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Get(context.Background(), "/p/a.block.css")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fs.Reads("/p/a.block.css"))

	f.Reset()
	assert.Empty(t, f.Blocks())
	_, err := f.Get(context.Background(), "/p/a.block.css")
	require.NoError(t, err)
	assert.Equal(t, 2, fs.Reads("/p/a.block.css"))
}

func TestFactory_Cycle(t *testing.T) {
	t.Parallel()

	fs := mocks.NewFileSystem()
	fs.AddFile("/p/a.block.css", `@block b from "./b.block.css"; .x{color:red}`)
	fs.AddFile("/p/b.block.css", `@block a from "./a.block.css"; .y{color:blue}`)

	f := NewFactory(fs, "/p")
	a, err := f.Get(context.Background(), "/p/a.block.css")
	require.NoError(t, err)

	b, ok := a.Reference("b")
	require.True(t, ok)
	back, ok := b.Reference("a")
	require.True(t, ok)
	assert.Same(t, a, back)
}

func TestFactory_MissingReference(t *testing.T) {
	t.Parallel()

	fs := mocks.NewFileSystem()
	fs.AddFile("/p/a.block.css", `@block gone from "./gone.block.css";`)

	f := NewFactory(fs, "/p")
	_, err := f.Get(context.Background(), "/p/a.block.css")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "file not found")
	assert.Contains(t, err.Error(), "gone.block.css")

	ids := make([]string, 0)
	for _, b := range f.Blocks() {
		ids = append(ids, b.Identifier)
	}
	assert.Equal(t, []string{"/p/a.block.css"}, ids)
	assert.Equal(t, []string{"/p/gone.block.css"}, f.Unresolved())
}

func TestFactory_UnresolvedTracksInvalidBlocks(t *testing.T) {
	t.Parallel()

	fs := mocks.NewFileSystem()
	fs.AddFile("/p/a.block.css", `@block b from "./b.block.css"; .x{color:red}`)
	fs.AddFile("/p/b.block.css", `@block nav "./nav.block.css";`)

	f := NewFactory(fs, "/p")
	_, err := f.Get(context.Background(), "/p/a.block.css")
	require.ErrorIs(t, err, ErrInvalidBlock)
	assert.Equal(t, []string{"/p/b.block.css"}, f.Unresolved())

	f.Reset()
	assert.Empty(t, f.Unresolved())
}

func TestFactory_PrepareForExitWaitsForReads(t *testing.T) {
	t.Parallel()

	fs := mocks.NewFileSystem()
	fs.AddFile("/p/slow.block.css", `.x{color:red}`)
	release := fs.Gate("/p/slow.block.css")

	f := NewFactory(fs, "/p", WithMaxConcurrency(1))
	loaded := make(chan error, 1)
	go func() {
		_, err := f.Get(context.Background(), "/p/slow.block.css")
		loaded <- err
	}()

	require.Eventually(t, func() bool { return fs.Reads("/p/slow.block.css") == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.PrepareForExit(ctx), context.DeadlineExceeded)

	release()
	require.NoError(t, f.PrepareForExit(context.Background()))
	require.NoError(t, <-loaded)
}

func TestFactory_AcquireRespectsContext(t *testing.T) {
	t.Parallel()

	fs := mocks.NewFileSystem()
	fs.AddFile("/p/a.block.css", `.x{color:red}`)
	fs.AddFile("/p/b.block.css", `.y{color:red}`)
	release := fs.Gate("/p/a.block.css")
	defer release()

	f := NewFactory(fs, "/p", WithMaxConcurrency(1))
	go func() { _, _ = f.Get(context.Background(), "/p/a.block.css") }()
	require.Eventually(t, func() bool { return fs.Reads("/p/a.block.css") == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Get(ctx, "/p/b.block.css")
	require.ErrorIs(t, err, context.Canceled)
}
