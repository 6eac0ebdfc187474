// Package block models CSS block files: their name, their stylesheet and the
// other blocks they reference.
package block

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/felixgeelhaar/blockforge/internal/domain/stylesheet"
)

// DefaultExtension is the file suffix that marks a block file.
const DefaultExtension = ".block.css"

// ScopeSelector selects the root of a block.
const ScopeSelector = ":scope"

var (
	// ErrNotFound is returned when a block file does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrInvalidBlock is returned when a block file is malformed.
	ErrInvalidBlock = errors.New("invalid block")
)

var (
	namePattern      = regexp.MustCompile(`^-?[_a-zA-Z][_a-zA-Z0-9-]*$`)
	referencePattern = regexp.MustCompile(`^(\S+)\s+from\s+("[^"]*"|'[^']*')$`)
)

// Reference is an `@block <local> from "<path>"` statement.
type Reference struct {
	Local string
	Path  string
	Line  int
}

// Block is one parsed block file.
type Block struct {
	Name       string
	Identifier string
	Stylesheet *stylesheet.Stylesheet
	Source     []byte

	refs    []Reference
	classes map[string]bool

	mu     sync.RWMutex
	linked map[string]*Block
}

// Parse builds a block from the contents of the file at identifier. name is
// the default block name, usually derived from the file name.
func Parse(identifier, name string, src []byte) (*Block, error) {
	sheet, err := stylesheet.Parse(identifier, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBlock, err)
	}

	b := &Block{
		Name:       name,
		Identifier: identifier,
		Source:     src,
		classes:    make(map[string]bool),
		linked:     make(map[string]*Block),
	}

	nodes := make([]stylesheet.Node, 0, len(sheet.Nodes))
	for _, n := range sheet.Nodes {
		at, ok := n.(*stylesheet.AtRule)
		if !ok || at.Name != "block" {
			nodes = append(nodes, n)
			continue
		}
		ref, err := parseReference(at)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", identifier, at.Line, err)
		}
		b.refs = append(b.refs, ref)
	}
	sheet.Nodes = nodes

	var nameErr error
	stylesheet.Walk(sheet.Nodes, func(r *stylesheet.Rule) {
		for _, c := range stylesheet.Classes(r.Selector) {
			b.classes[c] = true
		}
		if !isScopeRule(r) {
			return
		}
		kept := r.Declarations[:0]
		for _, d := range r.Declarations {
			if d.Property != "block-name" {
				kept = append(kept, d)
				continue
			}
			if !namePattern.MatchString(d.Value) {
				nameErr = fmt.Errorf("%w: %s:%d: block-name %q is not a valid identifier", ErrInvalidBlock, identifier, d.Line, d.Value)
			}
			b.Name = d.Value
		}
		r.Declarations = kept
	})
	if nameErr != nil {
		return nil, nameErr
	}
	if !namePattern.MatchString(b.Name) {
		return nil, fmt.Errorf("%w: %s: block name %q is not a valid identifier", ErrInvalidBlock, identifier, b.Name)
	}

	b.Stylesheet = sheet
	return b, nil
}

func parseReference(at *stylesheet.AtRule) (Reference, error) {
	m := referencePattern.FindStringSubmatch(at.Prelude)
	if m == nil {
		return Reference{}, fmt.Errorf("%w: expected @block <name> from \"<path>\", got %q", ErrInvalidBlock, at.Prelude)
	}
	if !namePattern.MatchString(m[1]) {
		return Reference{}, fmt.Errorf("%w: reference name %q is not a valid identifier", ErrInvalidBlock, m[1])
	}
	return Reference{Local: m[1], Path: m[2][1 : len(m[2])-1], Line: at.Line}, nil
}

func isScopeRule(r *stylesheet.Rule) bool {
	for _, sel := range stylesheet.SplitSelectors(r.Selector) {
		if sel == ScopeSelector {
			return true
		}
	}
	return false
}

// References returns the block's `@block` statements in source order.
func (b *Block) References() []Reference {
	return append([]Reference(nil), b.refs...)
}

// Reference returns the linked block for a local reference name.
func (b *Block) Reference(local string) (*Block, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ref, ok := b.linked[local]
	return ref, ok
}

// Referenced returns the linked blocks sorted by identifier.
func (b *Block) Referenced() []*Block {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Block, 0, len(b.linked))
	for _, r := range b.linked {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

func (b *Block) link(local string, target *Block) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.linked[local] = target
}

// HasClass reports whether the block declares a class. The empty class and
// :scope name the block root, which always exists.
func (b *Block) HasClass(class string) bool {
	if class == "" || class == ScopeSelector {
		return true
	}
	return b.classes[class]
}

// Classes returns the declared class names, sorted.
func (b *Block) Classes() []string {
	out := make([]string, 0, len(b.classes))
	for c := range b.classes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ClassName returns the global class name for a block class. The block root
// maps to the block name.
func ClassName(b *Block, class string) string {
	if class == "" || class == ScopeSelector {
		return b.Name
	}
	return b.Name + "__" + class
}

// NameFromPath derives a block name from a file path by stripping the first
// matching extension.
func NameFromPath(path string, extensions []string) string {
	base := filepath.Base(path)
	for _, ext := range extensions {
		if strings.HasSuffix(base, ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IsBlockFile reports whether path ends with one of the block extensions.
func IsBlockFile(path string, extensions []string) bool {
	for _, ext := range extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
