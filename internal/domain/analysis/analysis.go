// Package analysis discovers the blocks a build uses and records how each
// template uses their styles.
package analysis

import (
	"fmt"
	"sort"

	"github.com/felixgeelhaar/blockforge/internal/domain/block"
	"github.com/felixgeelhaar/blockforge/internal/domain/optimizer"
)

// Style is one class of one block. An empty Class is the block root.
type Style struct {
	Block *block.Block
	Class string
}

// GlobalName returns the compiled class name of the style.
func (s Style) GlobalName() string {
	return block.ClassName(s.Block, s.Class)
}

// StyleUse counts the uses of a style in a template.
type StyleUse struct {
	Style
	Count int
}

// Analysis is the record of one template's block usage.
type Analysis struct {
	Template string

	blocks   map[string]*block.Block
	usage    map[Style]int
	elements int
}

func newAnalysis(template string) *Analysis {
	return &Analysis{
		Template: template,
		blocks:   make(map[string]*block.Block),
		usage:    make(map[Style]int),
	}
}

// TemplateName returns the template identifier.
func (a *Analysis) TemplateName() string {
	return a.Template
}

// ElementCount returns the number of elements that use block styles.
func (a *Analysis) ElementCount() int {
	return a.elements
}

// Blocks returns the imported blocks by local name.
func (a *Analysis) Blocks() map[string]*block.Block {
	out := make(map[string]*block.Block, len(a.blocks))
	for k, v := range a.blocks {
		out[k] = v
	}
	return out
}

// Styles returns every used style, ordered by global class name.
func (a *Analysis) Styles() []StyleUse {
	out := make([]StyleUse, 0, len(a.usage))
	for s, n := range a.usage {
		out = append(out, StyleUse{Style: s, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		gi, gj := out[i].GlobalName(), out[j].GlobalName()
		if gi != gj {
			return gi < gj
		}
		return out[i].Block.Identifier < out[j].Block.Identifier
	})
	return out
}

// ForOptimizer converts the analysis to the optimizer's input form.
func (a *Analysis) ForOptimizer() optimizer.TemplateAnalysis {
	classes := make(map[string]int, len(a.usage))
	for s, n := range a.usage {
		classes[s.GlobalName()] += n
	}
	return optimizer.TemplateAnalysis{
		Template: a.Template,
		Elements: a.elements,
		Classes:  classes,
	}
}

// Error reports a template or block that could not be analyzed.
type Error struct {
	Entry string
	Line  int
	Err   error
}

// Error returns the formatted error message.
func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("analyze %s:%d: %v", e.Entry, e.Line, e.Err)
	}
	return fmt.Sprintf("analyze %s: %v", e.Entry, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}
