// Package blockcompiler turns a parsed block into plain CSS with globally
// unique class names.
package blockcompiler

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/felixgeelhaar/blockforge/internal/domain/analysis"
	"github.com/felixgeelhaar/blockforge/internal/domain/block"
	"github.com/felixgeelhaar/blockforge/internal/domain/sourcemap"
	"github.com/felixgeelhaar/blockforge/internal/domain/stylesheet"
)

// DefaultCacheSize is the number of compiled blocks kept in memory.
const DefaultCacheSize = 256

// ErrNoStylesheet is returned when a block has nothing to compile.
var ErrNoStylesheet = errors.New("block has no stylesheet")

// Compiler compiles blocks and caches the results by content.
type Compiler struct {
	importer block.Importer
	cache    *lru.Cache[string, *CompiledRoot]
}

// New creates a compiler. Source names in maps are relative to the
// importer's root.
func New(importer block.Importer, cacheSize int) (*Compiler, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *CompiledRoot](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create compile cache: %w", err)
	}
	return &Compiler{importer: importer, cache: cache}, nil
}

// Compile rewrites the block's selectors to global class names. The analyses
// are not consulted; every declared style is emitted.
func (c *Compiler) Compile(b *block.Block, sheet *stylesheet.Stylesheet, _ []*analysis.Analysis) (*CompiledRoot, error) {
	if sheet == nil {
		return nil, fmt.Errorf("%s: %w", b.Identifier, ErrNoStylesheet)
	}

	key := cacheKey(b)
	if root, ok := c.cache.Get(key); ok {
		return root, nil
	}

	out := sheet.Clone()
	stylesheet.Walk(out.Nodes, func(r *stylesheet.Rule) {
		r.Selector = rewriteSelector(b, r.Selector)
	})

	root := &CompiledRoot{
		source:  c.importer.DebugIdentifier(b.Identifier),
		content: string(b.Source),
		sheet:   out,
	}
	c.cache.Add(key, root)
	return root, nil
}

// Cached reports whether a compiled form of the block is cached.
func (c *Compiler) Cached(b *block.Block) bool {
	return c.cache.Contains(cacheKey(b))
}

func cacheKey(b *block.Block) string {
	sum := blake2b.Sum256(b.Source)
	return b.Identifier + "#" + b.Name + "#" + hex.EncodeToString(sum[:])
}

func rewriteSelector(b *block.Block, selector string) string {
	out := stylesheet.MapClasses(selector, func(class string) string {
		return block.ClassName(b, class)
	})
	return strings.ReplaceAll(out, block.ScopeSelector, "."+b.Name)
}

// MapOptions selects how a source map is attached to the CSS text.
type MapOptions struct {
	// Inline embeds the map as a data URL annotation.
	Inline bool
	// Annotation links to an external "<To>.map" file.
	Annotation bool
}

// ResultOptions configures CompiledRoot.ToResult.
type ResultOptions struct {
	To  string
	Map MapOptions
}

// Result is compiled CSS text and its source map.
type Result struct {
	CSS string
	Map *sourcemap.Map
}

// CompiledRoot is a compiled block ready to be printed.
type CompiledRoot struct {
	source  string
	content string
	sheet   *stylesheet.Stylesheet
}

// ToResult prints the compiled block with one top-level rule per line and a
// line map back to the block file.
func (r *CompiledRoot) ToResult(opts ResultOptions) (Result, error) {
	b := sourcemap.NewBuilder(opts.To)
	b.AddSource(r.source, r.content)

	lines := make([]string, 0, len(r.sheet.Nodes))
	for i, n := range r.sheet.Nodes {
		lines = append(lines, stylesheet.Format(n))
		b.MapLine(i+1, r.source, n.Pos().Line)
	}
	m := b.Build()
	css := strings.Join(lines, "\n")

	switch {
	case opts.Map.Inline:
		url, err := m.DataURL()
		if err != nil {
			return Result{}, fmt.Errorf("encode source map: %w", err)
		}
		css += "\n" + sourcemap.Annotation(url)
	case opts.Map.Annotation:
		css += "\n" + sourcemap.Annotation(opts.To+".map")
	}
	return Result{CSS: css, Map: m}, nil
}
