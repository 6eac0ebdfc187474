package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/felixgeelhaar/blockforge/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopLogger(t *testing.T) {
	t.Parallel()

	logger := NewNopLogger()
	logger.Debug(context.Background(), "ignored")
	assert.Same(t, logger, logger.With(ports.F("k", "v")))
	assert.Equal(t, ports.LevelInfo, logger.Level())

	logger.SetLevel(ports.LevelDebug)
	assert.Equal(t, ports.LevelDebug, logger.Level())
}

func TestConsoleLogger_TextFiltersByLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewConsoleLogger(WithOutput(&buf), WithTimestamp(false))

	logger.Debug(context.Background(), "hidden")
	logger.Info(context.Background(), "compiled", ports.F("blocks", 2))

	assert.Equal(t, "[INFO] compiled blocks=2\n", buf.String())
}

func TestConsoleLogger_WithAddsFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewConsoleLogger(WithOutput(&buf), WithTimestamp(false), WithLevel(ports.LevelDebug))
	child := logger.With(ports.F("output", "app.css"))

	child.Debug(context.Background(), "trace", ports.F("step", "analyze"))

	assert.Equal(t, "[DEBUG] trace output=app.css step=analyze\n", buf.String())
}

func TestConsoleLogger_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewConsoleLogger(WithOutput(&buf), WithJSONFormat(true), WithTimestamp(false))

	logger.Error(context.Background(), "compilation failed", ports.F("error", errors.New("file not found")))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "compilation failed", entry["msg"])
	assert.Equal(t, "file not found", entry["error"])
	assert.NotContains(t, entry, "time")
}
