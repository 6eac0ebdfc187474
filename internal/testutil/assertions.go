package testutil

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/blockforge/internal/domain/sourcemap"
)

// AssertFileExists asserts that a file exists at the given path.
func AssertFileExists(t testing.TB, path string) {
	t.Helper()

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		assert.Fail(t, "file does not exist", "expected file to exist: %s", path)
		return
	}
	require.NoError(t, err)
	assert.False(t, info.IsDir(), "expected file but got directory: %s", path)
}

// AssertFileNotExists asserts that no file exists at the given path.
func AssertFileNotExists(t testing.TB, path string) {
	t.Helper()

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "expected file to not exist: %s", path)
}

// AssertFileContains asserts that a file contains the expected substring.
func AssertFileContains(t testing.TB, path, expected string, msgAndArgs ...interface{}) {
	t.Helper()

	content, err := os.ReadFile(path)
	require.NoError(t, err, "failed to read file: %s", path)
	assert.Contains(t, string(content), expected, msgAndArgs...)
}

// AssertFileNotContains asserts that a file does not contain the substring.
func AssertFileNotContains(t testing.TB, path, unexpected string, msgAndArgs ...interface{}) {
	t.Helper()

	content, err := os.ReadFile(path)
	require.NoError(t, err, "failed to read file: %s", path)
	assert.NotContains(t, string(content), unexpected, msgAndArgs...)
}

// AssertSourceMapLine asserts that generated line (1-based) of the map at
// path points into source.
func AssertSourceMapLine(t testing.TB, path string, line int, source string) {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err, "failed to read source map: %s", path)
	m, err := sourcemap.Parse(data)
	require.NoError(t, err, "invalid source map: %s", path)

	got, _, ok := m.Lookup(line)
	require.True(t, ok, "line %d of %s is unmapped", line, path)
	assert.Equal(t, source, got)
}
