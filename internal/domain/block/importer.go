package block

import (
	"path/filepath"
	"strings"
)

// Importer maps block identifiers to file system paths and readable names.
// Identifiers are absolute, cleaned paths.
type Importer struct {
	Root string
}

// Identifier resolves a reference path relative to the file that made it.
func (i Importer) Identifier(from, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	base := i.Root
	if from != "" {
		base = filepath.Dir(from)
	}
	abs, err := filepath.Abs(filepath.Join(base, path))
	if err != nil {
		return filepath.Clean(filepath.Join(base, path))
	}
	return abs
}

// FilesystemPath returns the file backing an identifier, or "" when the
// identifier does not name a file.
func (i Importer) FilesystemPath(identifier string) string {
	if !filepath.IsAbs(identifier) {
		return ""
	}
	return identifier
}

// DebugIdentifier returns a short name for an identifier, relative to the
// root when possible.
func (i Importer) DebugIdentifier(identifier string) string {
	if i.Root == "" {
		return identifier
	}
	rel, err := filepath.Rel(i.Root, identifier)
	if err != nil || strings.HasPrefix(rel, "..") {
		return identifier
	}
	return filepath.ToSlash(rel)
}
