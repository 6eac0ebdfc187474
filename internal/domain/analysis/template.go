package analysis

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/blockforge/internal/domain/block"
)

var (
	importPattern = regexp.MustCompile(`import\s+([A-Za-z_][A-Za-z0-9_-]*)\s+from\s+["']([^"']+)["']`)
	classPattern  = regexp.MustCompile(`\bclass(?:Name)?\s*=\s*(?:"([^"]*)"|'([^']*)')`)
)

// analyzeTemplate records the block imports and class attribute uses of one
// template file.
func (r *Analyzer) analyzeTemplate(ctx context.Context, identifier string, src []byte) (*Analysis, []*block.Block, error) {
	text := string(src)
	a := newAnalysis(r.factory.Importer().DebugIdentifier(identifier))

	var imported []*block.Block
	for _, m := range importPattern.FindAllStringSubmatchIndex(text, -1) {
		local, path := text[m[2]:m[3]], text[m[4]:m[5]]
		if !block.IsBlockFile(path, r.factory.Extensions()) {
			continue
		}
		b, err := r.factory.Get(ctx, r.factory.Importer().Identifier(identifier, path))
		if err != nil {
			return nil, nil, &Error{Entry: a.Template, Line: lineAt(text, m[0]), Err: err}
		}
		a.blocks[local] = b
		imported = append(imported, b)
	}

	for _, m := range classPattern.FindAllStringSubmatchIndex(text, -1) {
		var value string
		if m[2] >= 0 {
			value = text[m[2]:m[3]]
		} else {
			value = text[m[4]:m[5]]
		}
		found := false
		for _, token := range strings.Fields(value) {
			local, class, _ := strings.Cut(token, ".")
			b, ok := a.blocks[local]
			if !ok {
				continue
			}
			if !b.HasClass(class) {
				return nil, nil, &Error{
					Entry: a.Template,
					Line:  lineAt(text, m[0]),
					Err:   fmt.Errorf("block %q has no class %q", local, class),
				}
			}
			a.usage[Style{Block: b, Class: class}]++
			found = true
		}
		if found {
			a.elements++
		}
	}
	return a, imported, nil
}

func lineAt(text string, offset int) int {
	return strings.Count(text[:offset], "\n") + 1
}
