package optimizer

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"

	"github.com/felixgeelhaar/blockforge/internal/domain/sourcemap"
	"github.com/felixgeelhaar/blockforge/internal/domain/stylesheet"
)

const cssMediaType = "text/css"

// Source is one compiled stylesheet handed to the optimizer.
type Source struct {
	Content   string
	Filename  string
	SourceMap *sourcemap.Map
}

// TemplateAnalysis is the optimizer's view of one analyzed template.
type TemplateAnalysis struct {
	Template string
	Elements int
	// Classes counts uses of each global class name.
	Classes map[string]int
}

// Result is the optimized artifact.
type Result struct {
	Content string
	// SourceMap is set when source maps are enabled. Optimizers that only
	// produce the JSON form set RawSourceMap instead.
	SourceMap    *sourcemap.Map
	RawSourceMap string
	Actions      []Action
	// Renames maps every class present in the output to its final name.
	Renames map[string]string
}

// Optimizer collects sources and analyses, then produces one stylesheet.
type Optimizer struct {
	opts     Options
	caps     Capabilities
	sources  []Source
	analyses []TemplateAnalysis
	minifier *minify.M
}

// New creates an optimizer.
func New(opts Options, caps Capabilities) *Optimizer {
	m := minify.New()
	m.AddFunc(cssMediaType, css.Minify)
	return &Optimizer{opts: opts, caps: caps, minifier: m}
}

// AddSource queues a compiled stylesheet.
func (o *Optimizer) AddSource(src Source) {
	o.sources = append(o.sources, src)
}

// AddAnalysis queues a template analysis.
func (o *Optimizer) AddAnalysis(a TemplateAnalysis) {
	o.analyses = append(o.analyses, a)
}

// origin is where a top-level output node came from.
type origin struct {
	source string
	line   int
}

type entry struct {
	node   stylesheet.Node
	text   string
	origin origin
}

// Optimize runs the enabled passes and renders the output.
func (o *Optimizer) Optimize(ctx context.Context, outputName string) (*Result, error) {
	entries, contents, err := o.collect()
	if err != nil {
		return nil, err
	}

	var actions []Action
	if o.opts.Enabled {
		if o.opts.RemoveUnused && len(o.analyses) > 0 {
			entries, actions = o.removeUnused(entries, actions)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	renames := identity(entries)
	if o.opts.Enabled && o.opts.RewriteIdents && o.caps.RewriteIdents {
		renames, actions = rewriteIdents(entries, actions)
	}

	for i := range entries {
		entries[i].text = stylesheet.Format(entries[i].node)
	}

	if o.opts.Enabled && o.opts.Minify {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, actions, err = o.minify(entries, actions)
		if err != nil {
			return nil, err
		}
	}

	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.text
	}
	res := &Result{
		Content: strings.Join(lines, "\n"),
		Actions: actions,
		Renames: renames,
	}

	if o.opts.SourceMap {
		b := sourcemap.NewBuilder(filepath.Base(outputName))
		for i, e := range entries {
			b.MapLine(i+1, e.origin.source, e.origin.line)
		}
		names := make([]string, 0, len(contents))
		for name := range contents {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			b.AddSource(name, contents[name])
		}
		res.SourceMap = b.Build()
	}
	return res, nil
}

// collect parses every source and resolves each top-level node back to its
// original file through the source's map.
func (o *Optimizer) collect() ([]entry, map[string]string, error) {
	var entries []entry
	contents := make(map[string]string)
	for _, src := range o.sources {
		sheet, err := stylesheet.Parse(src.Filename, []byte(src.Content))
		if err != nil {
			return nil, nil, fmt.Errorf("parse %s: %w", src.Filename, err)
		}
		for _, n := range sheet.Nodes {
			org := origin{source: src.Filename, line: n.Pos().Line}
			if src.SourceMap != nil {
				if s, l, ok := src.SourceMap.Lookup(n.Pos().Line); ok {
					org = origin{source: s, line: l}
					if c, ok := src.SourceMap.Content(s); ok && c != "" {
						contents[s] = c
					}
				}
			}
			entries = append(entries, entry{node: n, origin: org})
		}
	}
	return entries, contents, nil
}

func (o *Optimizer) used() map[string]bool {
	used := make(map[string]bool)
	for _, a := range o.analyses {
		for class, n := range a.Classes {
			if n > 0 {
				used[class] = true
			}
		}
	}
	return used
}

func (o *Optimizer) removeUnused(entries []entry, actions []Action) ([]entry, []Action) {
	used := o.used()
	kept := entries[:0]
	for _, e := range entries {
		var removed []string
		if prune(e.node, used, &removed) {
			kept = append(kept, e)
		}
		for _, sel := range removed {
			actions = append(actions, RemovedRule{Selector: sel, Source: e.origin.source, Line: e.origin.line})
		}
	}
	return kept, actions
}

// prune drops selectors naming unused classes and reports whether anything
// of the node is left.
func prune(n stylesheet.Node, used map[string]bool, removed *[]string) bool {
	switch v := n.(type) {
	case *stylesheet.Rule:
		var keep []string
		for _, sel := range stylesheet.SplitSelectors(v.Selector) {
			if allUsed(stylesheet.Classes(sel), used) {
				keep = append(keep, sel)
			} else {
				*removed = append(*removed, sel)
			}
		}
		v.Selector = strings.Join(keep, ",")
		return len(keep) > 0
	case *stylesheet.AtRule:
		if len(v.Nodes) == 0 {
			return true
		}
		kept := v.Nodes[:0]
		for _, child := range v.Nodes {
			if prune(child, used, removed) {
				kept = append(kept, child)
			}
		}
		v.Nodes = kept
		return len(kept) > 0
	}
	return true
}

func allUsed(classes []string, used map[string]bool) bool {
	for _, c := range classes {
		if !used[c] {
			return false
		}
	}
	return true
}

func classesOf(entries []entry) []string {
	seen := make(map[string]bool)
	for _, e := range entries {
		stylesheet.Walk([]stylesheet.Node{e.node}, func(r *stylesheet.Rule) {
			for _, c := range stylesheet.Classes(r.Selector) {
				seen[c] = true
			}
		})
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func identity(entries []entry) map[string]string {
	out := make(map[string]string)
	for _, c := range classesOf(entries) {
		out[c] = c
	}
	return out
}

func rewriteIdents(entries []entry, actions []Action) (map[string]string, []Action) {
	renames := make(map[string]string)
	for i, c := range classesOf(entries) {
		short := ShortIdent(i)
		renames[c] = short
		actions = append(actions, RewroteIdent{From: c, To: short})
	}
	for _, e := range entries {
		stylesheet.Walk([]stylesheet.Node{e.node}, func(r *stylesheet.Rule) {
			r.Selector = stylesheet.MapClasses(r.Selector, func(c string) string {
				if short, ok := renames[c]; ok {
					return short
				}
				return c
			})
		})
	}
	return renames, actions
}

func (o *Optimizer) minify(entries []entry, actions []Action) ([]entry, []Action, error) {
	saved, rules := 0, 0
	kept := entries[:0]
	for _, e := range entries {
		out, err := o.minifier.String(cssMediaType, e.text)
		if err != nil {
			return nil, nil, fmt.Errorf("minify %s:%d: %w", e.origin.source, e.origin.line, err)
		}
		out = strings.TrimSpace(out)
		if len(out) < len(e.text) {
			saved += len(e.text) - len(out)
			rules++
		}
		if out == "" {
			continue
		}
		e.text = out
		kept = append(kept, e)
	}
	if saved > 0 {
		actions = append(actions, Minified{Rules: rules, Saved: saved})
	}
	return kept, actions, nil
}

const identStart = "abcdefghijklmnopqrstuvwxyz"
const identRest = "abcdefghijklmnopqrstuvwxyz0123456789"

// ShortIdent returns the n-th short class name: a..z, then aa, ab, and so on.
// Names never start with a digit.
func ShortIdent(n int) string {
	if n < len(identStart) {
		return identStart[n : n+1]
	}
	n -= len(identStart)
	var suffix []byte
	for {
		suffix = append([]byte{identRest[n%len(identRest)]}, suffix...)
		n /= len(identRest)
		if n < len(identStart) {
			return identStart[n:n+1] + string(suffix)
		}
		n -= len(identStart)
	}
}
