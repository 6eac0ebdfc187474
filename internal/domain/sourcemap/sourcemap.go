// Package sourcemap reads and writes version 3 source maps at line
// granularity.
package sourcemap

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalid is returned for maps that are not well-formed version 3 maps.
var ErrInvalid = errors.New("invalid source map")

// Map is a version 3 source map.
type Map struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	SourceRoot     string   `json:"sourceRoot,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// Segment maps a generated column to a position in a source. All fields are
// zero-based.
type Segment struct {
	Column       int
	Source       int
	SourceLine   int
	SourceColumn int
}

// Parse decodes a JSON source map.
func Parse(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if m.Version != 3 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalid, m.Version)
	}
	if _, err := Decode(m.Mappings); err != nil {
		return nil, err
	}
	return &m, nil
}

// ParseString decodes a JSON source map held in a string.
func ParseString(s string) (*Map, error) {
	return Parse([]byte(s))
}

// JSON encodes the map.
func (m *Map) JSON() ([]byte, error) {
	out := *m
	if out.Sources == nil {
		out.Sources = []string{}
	}
	if out.Names == nil {
		out.Names = []string{}
	}
	return json.Marshal(&out)
}

// String returns the JSON form, or an empty string if encoding fails.
func (m *Map) String() string {
	data, err := m.JSON()
	if err != nil {
		return ""
	}
	return string(data)
}

// Lines decodes the mappings into one segment slice per generated line.
func (m *Map) Lines() ([][]Segment, error) {
	return Decode(m.Mappings)
}

// Lookup returns the original source and 1-based line of the first segment
// on a 1-based generated line.
func (m *Map) Lookup(line int) (source string, sourceLine int, ok bool) {
	lines, err := m.Lines()
	if err != nil || line < 1 || line > len(lines) || len(lines[line-1]) == 0 {
		return "", 0, false
	}
	seg := lines[line-1][0]
	if seg.Source < 0 || seg.Source >= len(m.Sources) {
		return "", 0, false
	}
	return m.Sources[seg.Source], seg.SourceLine + 1, true
}

// Content returns the embedded content of a source, if present.
func (m *Map) Content(source string) (string, bool) {
	for i, s := range m.Sources {
		if s == source && i < len(m.SourcesContent) {
			return m.SourcesContent[i], true
		}
	}
	return "", false
}

// DataURL returns the map as a base64 data URL for inline embedding.
func (m *Map) DataURL() (string, error) {
	data, err := m.JSON()
	if err != nil {
		return "", err
	}
	return "data:application/json;charset=utf-8;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Annotation returns the CSS comment that links a stylesheet to its map.
func Annotation(url string) string {
	return "/*# sourceMappingURL=" + url + " */"
}

// Builder accumulates line mappings for one generated file.
type Builder struct {
	file    string
	sources []string
	content []string
	index   map[string]int
	lines   map[int]Segment
}

// NewBuilder returns a builder for the generated file name.
func NewBuilder(file string) *Builder {
	return &Builder{
		file:  file,
		index: make(map[string]int),
		lines: make(map[int]Segment),
	}
}

// AddSource registers a source with optional content and returns its index.
// Registering a source twice returns the existing index.
func (b *Builder) AddSource(name, content string) int {
	if i, ok := b.index[name]; ok {
		if content != "" {
			b.content[i] = content
		}
		return i
	}
	b.index[name] = len(b.sources)
	b.sources = append(b.sources, name)
	b.content = append(b.content, content)
	return len(b.sources) - 1
}

// MapLine maps the start of a 1-based generated line to the start of a
// 1-based source line.
func (b *Builder) MapLine(generated int, source string, sourceLine int) {
	i := b.AddSource(source, "")
	b.lines[generated-1] = Segment{Source: i, SourceLine: sourceLine - 1}
}

// Build returns the accumulated map.
func (b *Builder) Build() *Map {
	last := -1
	for l := range b.lines {
		if l > last {
			last = l
		}
	}
	lines := make([][]Segment, last+1)
	keys := make([]int, 0, len(b.lines))
	for l := range b.lines {
		keys = append(keys, l)
	}
	sort.Ints(keys)
	for _, l := range keys {
		lines[l] = []Segment{b.lines[l]}
	}

	m := &Map{
		Version:  3,
		File:     b.file,
		Sources:  append([]string{}, b.sources...),
		Names:    []string{},
		Mappings: Encode(lines),
	}
	for _, c := range b.content {
		if c != "" {
			m.SourcesContent = append([]string{}, b.content...)
			break
		}
	}
	return m
}

// Encode writes segments as a VLQ mappings string.
func Encode(lines [][]Segment) string {
	var b strings.Builder
	var source, sourceLine, sourceColumn int
	for i, segs := range lines {
		if i > 0 {
			b.WriteByte(';')
		}
		column := 0
		for j, s := range segs {
			if j > 0 {
				b.WriteByte(',')
			}
			writeVLQ(&b, s.Column-column)
			writeVLQ(&b, s.Source-source)
			writeVLQ(&b, s.SourceLine-sourceLine)
			writeVLQ(&b, s.SourceColumn-sourceColumn)
			column, source, sourceLine, sourceColumn = s.Column, s.Source, s.SourceLine, s.SourceColumn
		}
	}
	return b.String()
}

// Decode parses a VLQ mappings string. Single-field segments and name
// indexes are accepted and dropped.
func Decode(mappings string) ([][]Segment, error) {
	if mappings == "" {
		return nil, nil
	}
	var lines [][]Segment
	var source, sourceLine, sourceColumn int
	for _, line := range strings.Split(mappings, ";") {
		var segs []Segment
		column := 0
		for _, field := range strings.Split(line, ",") {
			if field == "" {
				continue
			}
			values, err := readVLQ(field)
			if err != nil {
				return nil, err
			}
			switch len(values) {
			case 1:
				column += values[0]
				continue
			case 4, 5:
			default:
				return nil, fmt.Errorf("%w: segment %q has %d fields", ErrInvalid, field, len(values))
			}
			column += values[0]
			source += values[1]
			sourceLine += values[2]
			sourceColumn += values[3]
			segs = append(segs, Segment{Column: column, Source: source, SourceLine: sourceLine, SourceColumn: sourceColumn})
		}
		lines = append(lines, segs)
	}
	return lines, nil
}

const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

func writeVLQ(b *strings.Builder, v int) {
	u := v << 1
	if v < 0 {
		u = (-v << 1) | 1
	}
	for {
		digit := u & 31
		u >>= 5
		if u > 0 {
			digit |= 32
		}
		b.WriteByte(base64Chars[digit])
		if u == 0 {
			return
		}
	}
}

func readVLQ(s string) ([]int, error) {
	var out []int
	value, shift := 0, 0
	for i := 0; i < len(s); i++ {
		digit := strings.IndexByte(base64Chars, s[i])
		if digit < 0 {
			return nil, fmt.Errorf("%w: bad character %q in mappings", ErrInvalid, s[i])
		}
		value += (digit & 31) << shift
		if digit&32 != 0 {
			shift += 5
			continue
		}
		if value&1 == 1 {
			out = append(out, -(value >> 1))
		} else {
			out = append(out, value>>1)
		}
		value, shift = 0, 0
	}
	if shift != 0 {
		return nil, fmt.Errorf("%w: truncated segment %q", ErrInvalid, s)
	}
	return out, nil
}
