package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/felixgeelhaar/blockforge/internal/ports"
)

// LogEntry is one recorded log call.
type LogEntry struct {
	Level   ports.Level
	Message string
	Fields  []ports.Field
}

// Logger is a ports.Logger that records every entry.
type Logger struct {
	mu      *sync.Mutex
	entries *[]LogEntry
	fields  []ports.Field
	level   ports.Level
}

// NewLogger creates a recording logger at debug level.
func NewLogger() *Logger {
	return &Logger{mu: &sync.Mutex{}, entries: &[]LogEntry{}, level: ports.LevelDebug}
}

func (l *Logger) log(level ports.Level, msg string, fields []ports.Field) {
	if level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	all := append(append([]ports.Field{}, l.fields...), fields...)
	*l.entries = append(*l.entries, LogEntry{Level: level, Message: msg, Fields: all})
}

// Debug implements ports.Logger.
func (l *Logger) Debug(_ context.Context, msg string, fields ...ports.Field) {
	l.log(ports.LevelDebug, msg, fields)
}

// Info implements ports.Logger.
func (l *Logger) Info(_ context.Context, msg string, fields ...ports.Field) {
	l.log(ports.LevelInfo, msg, fields)
}

// Warn implements ports.Logger.
func (l *Logger) Warn(_ context.Context, msg string, fields ...ports.Field) {
	l.log(ports.LevelWarn, msg, fields)
}

// Error implements ports.Logger.
func (l *Logger) Error(_ context.Context, msg string, fields ...ports.Field) {
	l.log(ports.LevelError, msg, fields)
}

// With returns a logger sharing the same record with extra fields.
func (l *Logger) With(fields ...ports.Field) ports.Logger {
	return &Logger{
		mu:      l.mu,
		entries: l.entries,
		fields:  append(append([]ports.Field{}, l.fields...), fields...),
		level:   l.level,
	}
}

// Level implements ports.Logger.
func (l *Logger) Level() ports.Level { return l.level }

// SetLevel implements ports.Logger.
func (l *Logger) SetLevel(level ports.Level) { l.level = level }

// Entries returns the recorded entries.
func (l *Logger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), *l.entries...)
}

// Messages returns recorded messages at the given level.
func (l *Logger) Messages(level ports.Level) []string {
	var out []string
	for _, e := range l.Entries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

// Contains reports whether any message contains substr.
func (l *Logger) Contains(substr string) bool {
	for _, e := range l.Entries() {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}
