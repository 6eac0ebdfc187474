// Package testutil provides test helpers for blockforge tests.
package testutil

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

//go:embed fixtures
var fixturesFS embed.FS

// ProjectFixture is the embedded sample project: a template using a nav
// block that references a base block.
const ProjectFixture = "project"

// WriteTempFile writes content to dir/filename, creating parent directories.
func WriteTempFile(t *testing.T, dir, filename, content string) string {
	t.Helper()

	path := filepath.Join(dir, filename)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755), "failed to create directory for %s", filename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644), "failed to write temp file: %s", filename)
	return path
}

// WriteProject writes files, keyed by slash-separated relative path, into a
// fresh temp directory and returns it.
func WriteProject(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		WriteTempFile(t, dir, filepath.FromSlash(name), content)
	}
	return dir
}

// LoadFixture loads a file from the embedded fixtures directory.
func LoadFixture(t *testing.T, name string) []byte {
	t.Helper()

	content, err := fixturesFS.ReadFile("fixtures/" + name)
	require.NoError(t, err, "failed to load fixture: %s", name)
	return content
}

// CopyFixture copies an embedded fixture directory into a temp directory and
// returns the copy's path.
func CopyFixture(t *testing.T, name string) string {
	t.Helper()

	root := "fixtures/" + name
	files := map[string]string{}
	err := fs.WalkDir(fixturesFS, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := fixturesFS.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err, "failed to copy fixture: %s", name)
	return WriteProject(t, files)
}
