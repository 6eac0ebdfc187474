// Package stylesheet holds the CSS syntax tree shared by the block compiler
// and the optimizer, with a tdewolff-based parser and a compact printer.
package stylesheet

import "strings"

// Position is the 1-based line a node starts on in its source.
type Position struct {
	Line int
}

// Pos returns the position.
func (p Position) Pos() Position { return p }

// Node is a top-level or nested stylesheet node.
type Node interface {
	Pos() Position
	node()
}

// Declaration is a single property: value pair.
type Declaration struct {
	Position
	Property string
	Value    string
}

// Rule is a qualified rule: a selector list and its declarations.
type Rule struct {
	Position
	Selector     string
	Declarations []Declaration
}

// AtRule is an at-rule. Statement at-rules have Block false. Block at-rules
// hold nested nodes (@media), declarations (@font-face) or, for at-rules the
// parser does not know, the raw body text.
type AtRule struct {
	Position
	Name         string
	Prelude      string
	Block        bool
	Nodes        []Node
	Declarations []Declaration
	Raw          string
}

// Comment is a top-level comment.
type Comment struct {
	Position
	Text string
}

func (*Rule) node()    {}
func (*AtRule) node()  {}
func (*Comment) node() {}

// Stylesheet is a parsed CSS document.
type Stylesheet struct {
	Nodes []Node
}

// Clone returns a deep copy of the stylesheet.
func (s *Stylesheet) Clone() *Stylesheet {
	if s == nil {
		return nil
	}
	return &Stylesheet{Nodes: cloneNodes(s.Nodes)}
}

func cloneNodes(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		switch v := n.(type) {
		case *Rule:
			c := *v
			c.Declarations = append([]Declaration(nil), v.Declarations...)
			out[i] = &c
		case *AtRule:
			c := *v
			c.Nodes = cloneNodes(v.Nodes)
			c.Declarations = append([]Declaration(nil), v.Declarations...)
			out[i] = &c
		case *Comment:
			c := *v
			out[i] = &c
		}
	}
	return out
}

// Walk calls fn for every rule, descending into at-rule blocks.
func Walk(nodes []Node, fn func(*Rule)) {
	for _, n := range nodes {
		switch v := n.(type) {
		case *Rule:
			fn(v)
		case *AtRule:
			Walk(v.Nodes, fn)
		}
	}
}

// String prints the stylesheet with one top-level node per line.
func (s *Stylesheet) String() string {
	lines := make([]string, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		lines = append(lines, Format(n))
	}
	return strings.Join(lines, "\n")
}

// Format prints a node in compact form.
func Format(n Node) string {
	var b strings.Builder
	writeNode(&b, n)
	return b.String()
}

func writeNode(b *strings.Builder, n Node) {
	switch v := n.(type) {
	case *Rule:
		b.WriteString(v.Selector)
		b.WriteByte('{')
		writeDeclarations(b, v.Declarations)
		b.WriteByte('}')
	case *AtRule:
		b.WriteByte('@')
		b.WriteString(v.Name)
		if v.Prelude != "" {
			b.WriteByte(' ')
			b.WriteString(v.Prelude)
		}
		if !v.Block {
			b.WriteByte(';')
			return
		}
		b.WriteByte('{')
		switch {
		case len(v.Nodes) > 0:
			for _, child := range v.Nodes {
				writeNode(b, child)
			}
		case len(v.Declarations) > 0:
			writeDeclarations(b, v.Declarations)
		default:
			b.WriteString(v.Raw)
		}
		b.WriteByte('}')
	case *Comment:
		b.WriteString(v.Text)
	}
}

func writeDeclarations(b *strings.Builder, decls []Declaration) {
	for i, d := range decls {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(d.Property)
		b.WriteByte(':')
		b.WriteString(d.Value)
	}
}
