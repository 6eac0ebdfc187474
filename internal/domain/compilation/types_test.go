package compilation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_MessageAndIs(t *testing.T) {
	t.Parallel()

	err := NewCompileError("app.css", "nav.block.css", errors.New("bad"))
	assert.Equal(t, `app.css, block "nav.block.css": block failed to compile: bad`, err.Error())
	assert.ErrorIs(t, err, ErrCompilation)
	assert.NotErrorIs(t, err, ErrAnalysis)

	wrapped := fmt.Errorf("build: %w", err)
	assert.ErrorIs(t, wrapped, ErrCompilation)

	formatted := err.Format()
	assert.Contains(t, formatted, "[COMPILE_FAILED] block failed to compile")
	assert.Contains(t, formatted, "Block: nav.block.css")
	assert.Contains(t, formatted, "Cause: bad")
}

func TestError_WithoutContext(t *testing.T) {
	t.Parallel()

	err := &Error{Code: ErrCodeOptimizeFailed, Message: "optimization failed"}
	assert.Equal(t, "optimization failed", err.Error())
	assert.NoError(t, err.Unwrap())
}

func TestPending_ResolvesOnce(t *testing.T) {
	t.Parallel()

	p := newPending("out.css")
	m := newStyleMapping("out.css", nil, map[string]string{"a": "b"})
	p.resolve(m, nil)
	p.resolve(nil, errors.New("late"))

	select {
	case <-p.Done():
	default:
		t.Fatal("handle not resolved")
	}
	got, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, m, got)
	assert.NotEmpty(t, p.ID())
	assert.Equal(t, "out.css", p.OutputName())
}

func TestPending_WaitHonorsContext(t *testing.T) {
	t.Parallel()

	p := newPending("out.css")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPending_FreshIDs(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, newPending("a").ID(), newPending("a").ID())
}

func TestStyleMapping_ClassesCopy(t *testing.T) {
	t.Parallel()

	m := newStyleMapping("out.css", nil, map[string]string{"nav": "a", "nav__item": "b"})
	classes := m.Classes()
	classes["nav"] = "changed"
	assert.Equal(t, "a", m.Classes()["nav"])
	assert.Len(t, m.Classes(), 2)
}

func TestMappings_RegisterOncePerOutput(t *testing.T) {
	t.Parallel()

	m := NewMappings()
	p := newPending("out.css")
	assert.True(t, m.register(p))
	assert.False(t, m.register(newPending("out.css")))
	assert.True(t, m.register(newPending("other.css")))
	assert.Equal(t, []string{"other.css", "out.css"}, m.Outputs())

	got, ok := m.Get("out.css")
	require.True(t, ok)
	assert.Same(t, p, got)
}
