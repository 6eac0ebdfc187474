package compilation

import (
	"context"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/statekit"
)

// State is a lifecycle state of the controller.
type State string

const (
	idle      = "idle"
	pending   = "pending"
	completed = "completed"
	failed    = "failed"
)

const (
	// StateIdle means no compilation is pending.
	StateIdle State = idle
	// StatePending means a compilation is in flight.
	StatePending State = pending
	// StateCompleted means the latest compilation succeeded.
	StateCompleted State = completed
	// StateFailed means the latest compilation failed.
	StateFailed State = failed
)

// Event types for the lifecycle state machine.
const (
	EventStart   = "START"
	EventSucceed = "SUCCEED"
	EventFail    = "FAIL"
	EventReset   = "RESET"
)

// machineContext is the statekit context type. The controller keeps its own
// state, so it only counts attempts.
type machineContext struct {
	Attempts int
}

type machine struct {
	mu      sync.Mutex
	interp  *statekit.Interpreter[machineContext]
	handler func(from, to State)
}

func newMachine(trace *Tracer) (*machine, error) {
	def, err := statekit.NewMachine[machineContext]("compilation-lifecycle").
		WithInitial(idle).
		WithContext(machineContext{}).
		WithAction("countAttempt", func(c *machineContext, _ statekit.Event) {
			c.Attempts++
		}).
		WithAction("traceCompleted", func(_ *machineContext, _ statekit.Event) {
			trace.Trace(context.Background(), "compilation completed")
		}).
		WithAction("traceFailed", func(_ *machineContext, _ statekit.Event) {
			trace.Trace(context.Background(), "compilation failed")
		}).
		State(idle).
		On(EventStart).Target(pending).Done().
		State(pending).
		OnEntry("countAttempt").
		On(EventSucceed).Target(completed).
		On(EventFail).Target(failed).Done().
		State(completed).
		OnEntry("traceCompleted").
		On(EventReset).Target(idle).Done().
		State(failed).
		OnEntry("traceFailed").
		On(EventReset).Target(idle).Done().
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build state machine: %w", err)
	}

	interp := statekit.NewInterpreter(def)
	interp.Start()
	return &machine{interp: interp}, nil
}

func (m *machine) state() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State(m.interp.State().Value)
}

// send delivers an event. Events without a transition from the current
// state are ignored.
func (m *machine) send(event statekit.EventType) {
	m.mu.Lock()
	from := State(m.interp.State().Value)
	m.interp.Send(statekit.Event{Type: event})
	to := State(m.interp.State().Value)
	handler := m.handler
	m.mu.Unlock()

	if handler != nil && from != to {
		handler(from, to)
	}
}

func (m *machine) setHandler(fn func(from, to State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
}

func (m *machine) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interp.Stop()
}
