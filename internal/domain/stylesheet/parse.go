package stylesheet

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// ParseError reports a syntax error in a stylesheet.
type ParseError struct {
	Source string
	Line   int
	Err    error
}

// Error returns the formatted error message.
func (e *ParseError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("%s:%d: %v", e.Source, e.Line, e.Err)
}

// Unwrap returns the underlying parser error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

type parser struct {
	p        *css.Parser
	source   string
	newlines []int
}

// Parse parses CSS text. source names the input in errors.
func Parse(source string, src []byte) (*Stylesheet, error) {
	ps := &parser{
		p:        css.NewParser(parse.NewInputBytes(src), false),
		source:   source,
		newlines: newlineOffsets(src),
	}
	nodes, err := ps.nodes(false)
	if err != nil {
		return nil, err
	}
	return &Stylesheet{Nodes: nodes}, nil
}

// nodes reads grammar units until the end of input or, when nested, until
// the closing EndAtRuleGrammar of the enclosing block.
func (ps *parser) nodes(nested bool) ([]Node, error) {
	var out []Node
	for {
		gt, _, data := ps.p.Next()
		switch gt {
		case css.ErrorGrammar:
			if err := ps.err(); err != nil {
				return nil, err
			}
			if nested {
				return nil, ps.fail(errors.New("unexpected end of input in at-rule"))
			}
			return out, nil
		case css.CommentGrammar:
			out = append(out, &Comment{Position: ps.pos(), Text: string(data)})
		case css.AtRuleGrammar:
			out = append(out, &AtRule{Position: ps.pos(), Name: atName(data), Prelude: joinTokens(ps.p.Values())})
		case css.BeginAtRuleGrammar:
			rule, err := ps.atRule(data)
			if err != nil {
				return nil, err
			}
			out = append(out, rule)
		case css.BeginRulesetGrammar:
			rule, err := ps.rule()
			if err != nil {
				return nil, err
			}
			out = append(out, rule)
		case css.EndAtRuleGrammar:
			if nested {
				return out, nil
			}
		case css.TokenGrammar:
			// CDO/CDC markers at the top level carry no style information.
		}
	}
}

func (ps *parser) rule() (*Rule, error) {
	rule := &Rule{Position: ps.pos(), Selector: joinTokens(ps.p.Values())}
	decls, err := ps.declarations(css.EndRulesetGrammar)
	if err != nil {
		return nil, err
	}
	rule.Declarations = decls
	return rule, nil
}

func (ps *parser) atRule(name []byte) (*AtRule, error) {
	rule := &AtRule{
		Position: ps.pos(),
		Name:     atName(name),
		Prelude:  joinTokens(ps.p.Values()),
		Block:    true,
	}

	switch strings.TrimPrefix(vendorless(rule.Name), "-") {
	case "font-face", "page":
		decls, err := ps.declarations(css.EndAtRuleGrammar)
		if err != nil {
			return nil, err
		}
		rule.Declarations = decls
	case "document", "keyframes", "layer", "media", "supports":
		nodes, err := ps.nodes(true)
		if err != nil {
			return nil, err
		}
		rule.Nodes = nodes
	default:
		var raw strings.Builder
		for {
			gt, _, data := ps.p.Next()
			if gt == css.EndAtRuleGrammar {
				break
			}
			if gt == css.ErrorGrammar {
				if err := ps.err(); err != nil {
					return nil, err
				}
				return nil, ps.fail(errors.New("unexpected end of input in at-rule"))
			}
			raw.Write(data)
		}
		rule.Raw = strings.TrimSpace(raw.String())
	}
	return rule, nil
}

func (ps *parser) declarations(end css.GrammarType) ([]Declaration, error) {
	var decls []Declaration
	for {
		gt, _, data := ps.p.Next()
		switch gt {
		case end:
			return decls, nil
		case css.DeclarationGrammar, css.CustomPropertyGrammar:
			decls = append(decls, Declaration{
				Position: ps.pos(),
				Property: string(data),
				Value:    joinTokens(ps.p.Values()),
			})
		case css.ErrorGrammar:
			if err := ps.err(); err != nil {
				return nil, err
			}
			return nil, ps.fail(errors.New("unexpected end of input in rule"))
		}
	}
}

// err returns the parser error, or nil at a clean end of input.
func (ps *parser) err() error {
	err := ps.p.Err()
	if err == nil || (errors.Is(err, io.EOF) && !ps.p.HasParseError()) {
		return nil
	}
	return ps.fail(err)
}

func (ps *parser) fail(err error) error {
	return &ParseError{Source: ps.source, Line: ps.pos().Line, Err: err}
}

func (ps *parser) pos() Position {
	offset := ps.p.Offset()
	return Position{Line: sort.SearchInts(ps.newlines, offset) + 1}
}

func newlineOffsets(src []byte) []int {
	var offsets []int
	for i, c := range src {
		if c == '\n' {
			offsets = append(offsets, i)
		}
	}
	return offsets
}

func joinTokens(tokens []css.Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.Write(t.Data)
	}
	return strings.TrimSpace(b.String())
}

func atName(data []byte) string {
	return strings.TrimPrefix(string(data), "@")
}

func vendorless(name string) string {
	if strings.HasPrefix(name, "-") {
		if i := strings.Index(name[1:], "-"); i != -1 {
			return name[i+2:]
		}
	}
	return name
}
