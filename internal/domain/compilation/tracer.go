package compilation

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/blockforge/internal/ports"
)

// Tracer writes debug messages tagged with the controller name. Paths under
// the project directory are shortened.
type Tracer struct {
	name       string
	projectDir string
	logger     ports.Logger
}

// NewTracer creates a tracer.
func NewTracer(name, projectDir string, logger ports.Logger) *Tracer {
	return &Tracer{name: name, projectDir: projectDir, logger: logger}
}

func (t *Tracer) format(format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	if t.projectDir != "" {
		msg = strings.ReplaceAll(msg, filepath.Clean(t.projectDir)+string(filepath.Separator), "")
	}
	return "[" + t.name + "] " + msg
}

// Trace logs a debug message.
func (t *Tracer) Trace(ctx context.Context, format string, args ...any) {
	if t.logger == nil {
		return
	}
	t.logger.Debug(ctx, t.format(format, args...))
}

// Error logs a failure.
func (t *Tracer) Error(ctx context.Context, err error, format string, args ...any) {
	if t.logger == nil {
		return
	}
	t.logger.Error(ctx, t.format(format, args...), ports.F("error", err))
}
