package compilation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine_Transitions(t *testing.T) {
	t.Parallel()

	m, err := newMachine(NewTracer("test", "", nil))
	require.NoError(t, err)
	defer m.stop()

	var seen []State
	m.setHandler(func(_, to State) { seen = append(seen, to) })

	assert.Equal(t, StateIdle, m.state())
	m.send(EventSucceed)
	assert.Equal(t, StateIdle, m.state(), "no transition from idle on SUCCEED")

	m.send(EventStart)
	m.send(EventStart)
	m.send(EventFail)
	m.send(EventReset)
	m.send(EventStart)
	m.send(EventSucceed)

	assert.Equal(t, StateCompleted, m.state())
	assert.Equal(t, []State{StatePending, StateFailed, StateIdle, StatePending, StateCompleted}, seen)
}
