package stylesheet

import "strings"

// MapClasses rewrites every class name in a selector with fn. Classes inside
// attribute selectors and quoted strings are left alone.
func MapClasses(selector string, fn func(class string) string) string {
	var b strings.Builder
	depth := 0
	var quote byte
	for i := 0; i < len(selector); {
		c := selector[i]
		switch {
		case quote != 0:
			if c == '\\' && i+1 < len(selector) {
				b.WriteString(selector[i : i+2])
				i += 2
				continue
			}
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[':
			depth++
		case c == ']':
			if depth > 0 {
				depth--
			}
		case c == '.' && depth == 0:
			end := identEnd(selector, i+1)
			if end > i+1 {
				b.WriteByte('.')
				b.WriteString(fn(selector[i+1 : end]))
				i = end
				continue
			}
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

// Classes returns the class names referenced by a selector in order of
// appearance.
func Classes(selector string) []string {
	var out []string
	MapClasses(selector, func(class string) string {
		out = append(out, class)
		return class
	})
	return out
}

// SplitSelectors splits a selector list on top-level commas.
func SplitSelectors(list string) []string {
	var out []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(list); i++ {
		c := list[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			if depth > 0 {
				depth--
			}
		case c == ',' && depth == 0:
			out = append(out, strings.TrimSpace(list[start:i]))
			start = i + 1
		}
	}
	return append(out, strings.TrimSpace(list[start:]))
}

func identEnd(s string, i int) int {
	start := i
	if i < len(s) && s[i] == '-' {
		i++
	}
	if i >= len(s) || !isNameStart(s[i]) {
		return start
	}
	for i < len(s) && isName(s[i]) {
		i++
	}
	return i
}

func isNameStart(c byte) bool {
	return c == '_' || c == '-' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isName(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}
