package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/blockforge/internal/adapters/artifactstore"
	"github.com/felixgeelhaar/blockforge/internal/domain/compilation"
	"github.com/felixgeelhaar/blockforge/internal/domain/config"
	"github.com/felixgeelhaar/blockforge/internal/domain/entry"
	"github.com/felixgeelhaar/blockforge/internal/testutil/mocks"
)

const (
	appTemplate = `import nav from "./nav.block.css"
<nav class="nav"><a class="nav.item">Home</a></nav>
`
	navBlock = `:scope { color: red; }
.item { margin: 0px; }
.unused { color: blue; }
`
)

func projectFS() *mocks.FileSystem {
	fs := mocks.NewFileSystem()
	fs.AddFile("/p/src/app.html", appTemplate)
	fs.AddFile("/p/src/nav.block.css", navBlock)
	return fs
}

func testConfig(entries ...string) *config.Config {
	cfg := &config.Config{Version: "v1", Entry: entry.List(entries...)}
	cfg.ApplyDefaults("/p")
	return cfg
}

func newApp(t *testing.T, cfg *config.Config, opts ...Option) *Blockforge {
	t.Helper()
	b, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func TestBlockforge_Build(t *testing.T) {
	t.Parallel()

	fs := projectFS()
	store := artifactstore.NewMemoryStore()
	logger := mocks.NewLogger()
	b := newApp(t, testConfig("src/app.html"), WithFileSystem(fs), WithArtifactStore(store), WithLogger(logger))

	report, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Empty(t, report.Errors)
	assert.Equal(t, "/p/dist/css-blocks.css", report.Output)
	assert.Equal(t, []string{"nav"}, report.Blocks)
	assert.Equal(t, []string{"/p/src/nav.block.css"}, report.FileDependencies)
	assert.Equal(t, []string{"src/app.html"}, report.Modules)
	assert.Equal(t, "nav__item", report.Classes["nav__item"])
	assert.NotContains(t, report.Classes, "nav__unused")
	assert.True(t, report.Published)
	require.Len(t, report.Written, 3)

	css, ok := fs.Content("/p/dist/css-blocks.css")
	require.True(t, ok)
	assert.Contains(t, css, ".nav{color:red}")
	assert.Contains(t, css, ".nav__item{margin:0}")
	assert.NotContains(t, css, "unused")
	assert.True(t, strings.HasSuffix(css, "/*# sourceMappingURL=css-blocks.css.map */"))

	log, ok := fs.Content("/p/dist/css-blocks.css.log")
	require.True(t, ok)
	assert.Contains(t, log, "removed unused selector .nav__unused")

	_, ok = fs.Content("/p/dist/css-blocks.css.map")
	assert.True(t, ok)

	assert.Len(t, store.Keys(), 3)
	obj, ok := store.Get(report.ID, "css-blocks.css")
	require.True(t, ok)
	assert.Equal(t, css, string(obj.Content))

	assert.Equal(t, compilation.StateIdle, b.Controller().State())
	assert.True(t, logger.Contains("[css-blocks] compiling src/nav.block.css"))
}

func TestBlockforge_BuildIsDeterministic(t *testing.T) {
	t.Parallel()

	fs := projectFS()
	b := newApp(t, testConfig("src/app.html"), WithFileSystem(fs))

	_, err := b.Build(context.Background())
	require.NoError(t, err)
	first, _ := fs.Content("/p/dist/css-blocks.css")
	firstMap, _ := fs.Content("/p/dist/css-blocks.css.map")

	_, err = b.Build(context.Background())
	require.NoError(t, err)
	second, _ := fs.Content("/p/dist/css-blocks.css")
	secondMap, _ := fs.Content("/p/dist/css-blocks.css.map")

	assert.Equal(t, first, second)
	assert.Equal(t, firstMap, secondMap)
}

func TestBlockforge_BuildFailure(t *testing.T) {
	t.Parallel()

	fs := mocks.NewFileSystem()
	fs.AddFile("/p/src/app.html", `import nav from "./missing.block.css"`)
	b := newApp(t, testConfig("src/app.html"), WithFileSystem(fs))

	report, err := b.Build(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, compilation.ErrAnalysis)
	assert.Contains(t, err.Error(), "file not found")
	require.NotNil(t, report)
	assert.Len(t, report.Errors, 1)
	assert.Empty(t, report.Written)
	assert.Empty(t, report.Modules)
	_, ok := fs.Content("/p/dist/css-blocks.css")
	assert.False(t, ok)
	assert.Equal(t, compilation.StateIdle, b.Controller().State())
}

func TestBlockforge_BlockEntryWithoutTemplates(t *testing.T) {
	t.Parallel()

	fs := projectFS()
	b := newApp(t, testConfig("src/nav.block.css"), WithFileSystem(fs))

	report, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"nav"}, report.Blocks)

	css, _ := fs.Content("/p/dist/css-blocks.css")
	assert.Contains(t, css, ".nav__unused", "nothing is removed without template analysis")
	assert.Empty(t, b.modules())
}

func TestBlockforge_InlineSourceMaps(t *testing.T) {
	t.Parallel()

	fs := projectFS()
	cfg := testConfig("src/app.html")
	cfg.Assets.InlineSourceMaps = true
	b := newApp(t, cfg, WithFileSystem(fs))

	report, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Written, 2)
	css, _ := fs.Content("/p/dist/css-blocks.css")
	assert.Contains(t, css, "sourceMappingURL=data:application/json")
}

func TestBlockforge_WatchPaths(t *testing.T) {
	t.Parallel()

	fs := projectFS()
	b := newApp(t, testConfig("src/app.html"), WithFileSystem(fs))
	assert.Equal(t, []string{"/p/src/app.html"}, b.WatchPaths())

	_, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/p/src/app.html", "/p/src/nav.block.css"}, b.WatchPaths())
}

func TestBlockforge_WatchPathsAfterFailedBuild(t *testing.T) {
	t.Parallel()

	fs := projectFS()
	fs.AddFile("/p/src/nav.block.css", "@block x from \"./x.block.css\";\n"+navBlock)
	b := newApp(t, testConfig("src/app.html"), WithFileSystem(fs))

	_, err := b.Build(context.Background())
	require.ErrorIs(t, err, compilation.ErrAnalysis)
	assert.Equal(t, []string{"/p/src/app.html", "/p/src/nav.block.css", "/p/src/x.block.css"}, b.WatchPaths())

	w := NewWatchMode(fs, WatchOptions{Root: "/p"}, b.WatchPaths, func(context.Context) error { return nil })
	lastMod := map[string]time.Time{}
	w.updateFileTimes(lastMod)

	fs.AddFile("/p/src/x.block.css", `:scope { color: blue; }`)
	assert.Equal(t, []string{"/p/src/x.block.css"}, w.checkForChanges(lastMod))

	report, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"nav", "x"}, report.Blocks)
	assert.Contains(t, b.WatchPaths(), "/p/src/x.block.css")
}

func TestNew_S3RequiresCredentials(t *testing.T) {
	t.Parallel()

	cfg := testConfig("src/app.html")
	cfg.Publish.S3 = config.S3Config{Endpoint: "localhost:9000", Bucket: "css"}
	_, err := New(cfg, WithFileSystem(projectFS()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create artifact store")
}
