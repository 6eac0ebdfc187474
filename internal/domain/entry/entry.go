// Package entry turns the entry configuration of a build into the flat list
// of entry files the analyzer starts from.
package entry

import (
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// devServerPattern matches entries injected by development servers. They do
// not correspond to source files.
var devServerPattern = regexp.MustCompile(`/webpack-dev-server/|^webpack/hot/dev-server$`)

// Group is a named list of entry paths.
type Group struct {
	Name  string
	Paths []string
}

// Spec is the declared entry configuration of a build: a single path, a list
// of paths, or an ordered set of named groups. The zero Spec has no entries.
type Spec struct {
	path   string
	paths  []string
	groups []Group
	kind   kind
}

type kind int

const (
	kindNone kind = iota
	kindSingle
	kindList
	kindGroups
)

// Single returns a Spec holding one path.
func Single(path string) Spec {
	return Spec{path: path, kind: kindSingle}
}

// List returns a Spec holding an ordered list of paths.
func List(paths ...string) Spec {
	return Spec{paths: append([]string(nil), paths...), kind: kindList}
}

// Groups returns a Spec holding named groups in the given order.
func Groups(groups ...Group) Spec {
	out := make([]Group, len(groups))
	for i, g := range groups {
		out[i] = Group{Name: g.Name, Paths: append([]string(nil), g.Paths...)}
	}
	return Spec{groups: out, kind: kindGroups}
}

// IsZero reports whether no entry was declared.
func (s Spec) IsZero() bool {
	return s.kind == kindNone
}

// Enumerate flattens s in declaration order and drops dev-server
// injected paths. Duplicates present in the input are kept.
func Enumerate(s Spec) []string {
	raw := s.flat()
	entries := make([]string, 0, len(raw))
	for _, e := range raw {
		if IsInjected(e) {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

func (s Spec) flat() []string {
	switch s.kind {
	case kindSingle:
		return []string{s.path}
	case kindList:
		return s.paths
	case kindGroups:
		var raw []string
		for _, g := range s.groups {
			raw = append(raw, g.Paths...)
		}
		return raw
	default:
		return nil
	}
}

// IsInjected reports whether path is a dev-server injected entry.
func IsInjected(path string) bool {
	return devServerPattern.MatchString(path)
}

// UnmarshalYAML decodes a scalar, a sequence, or a mapping whose values are
// scalars or sequences. Mapping order is preserved.
func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*s = Spec{}
			return nil
		}
		*s = Single(node.Value)
		return nil
	case yaml.SequenceNode:
		var paths []string
		if err := node.Decode(&paths); err != nil {
			return fmt.Errorf("entry list: %w", err)
		}
		*s = List(paths...)
		return nil
	case yaml.MappingNode:
		groups := make([]Group, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			name := node.Content[i].Value
			var value Spec
			if err := value.UnmarshalYAML(node.Content[i+1]); err != nil {
				return fmt.Errorf("entry %q: %w", name, err)
			}
			if value.kind == kindGroups {
				return fmt.Errorf("entry %q: nested groups are not supported", name)
			}
			groups = append(groups, Group{Name: name, Paths: value.flat()})
		}
		*s = Groups(groups...)
		return nil
	default:
		return fmt.Errorf("entry: unsupported yaml node at line %d", node.Line)
	}
}

// MarshalYAML encodes s in the same shape it was declared with.
func (s Spec) MarshalYAML() (interface{}, error) {
	switch s.kind {
	case kindSingle:
		return s.path, nil
	case kindList:
		return s.paths, nil
	case kindGroups:
		node := &yaml.Node{Kind: yaml.MappingNode}
		for _, g := range s.groups {
			value := &yaml.Node{}
			if err := value.Encode(g.Paths); err != nil {
				return nil, err
			}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: g.Name}, value)
		}
		return node, nil
	default:
		return nil, nil
	}
}

// FromValue builds a Spec from a generically decoded value, as produced by
// TOML or JSON decoders. Table keys are sorted since those formats do not
// preserve order.
func FromValue(v interface{}) (Spec, error) {
	switch val := v.(type) {
	case nil:
		return Spec{}, nil
	case string:
		return Single(val), nil
	case []string:
		return List(val...), nil
	case []interface{}:
		paths, err := toStrings(val)
		if err != nil {
			return Spec{}, err
		}
		return List(paths...), nil
	case map[string]interface{}:
		names := make([]string, 0, len(val))
		for name := range val {
			names = append(names, name)
		}
		sort.Strings(names)

		groups := make([]Group, 0, len(names))
		for _, name := range names {
			switch item := val[name].(type) {
			case string:
				groups = append(groups, Group{Name: name, Paths: []string{item}})
			case []interface{}:
				paths, err := toStrings(item)
				if err != nil {
					return Spec{}, fmt.Errorf("entry %q: %w", name, err)
				}
				groups = append(groups, Group{Name: name, Paths: paths})
			default:
				return Spec{}, fmt.Errorf("entry %q: unsupported value of type %T", name, item)
			}
		}
		return Groups(groups...), nil
	default:
		return Spec{}, fmt.Errorf("entry: unsupported value of type %T", v)
	}
}

func toStrings(values []interface{}) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("entry paths must be strings, got %T", v)
		}
		out = append(out, s)
	}
	return out, nil
}
