package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/blockforge/internal/domain/sourcemap"
)

func TestSet(t *testing.T) {
	t.Parallel()

	s := NewSet()
	assert.Zero(t, s.Len())

	m := sourcemap.NewBuilder("out.css").Build()
	s.Add("out.css", NewSourceMapped(".a{}", "out.css", m))
	s.Add("out.css.log", NewRaw("removed .b"))

	assert.Equal(t, []string{"out.css", "out.css.log"}, s.Names())

	css, ok := s.Get("out.css")
	require.True(t, ok)
	assert.Equal(t, ".a{}", string(css.Content()))
	assert.Same(t, m, css.SourceMap())

	log, ok := s.Get("out.css.log")
	require.True(t, ok)
	assert.Equal(t, "removed .b", string(log.Content()))
	assert.Nil(t, log.SourceMap())

	_, ok = s.Get("missing")
	assert.False(t, ok)

	s.Add("out.css.log", NewRaw(""))
	assert.Equal(t, 2, s.Len())
}
