package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/chatter/internal/bus"
)

// EventChanged is published with a Change payload on every transition.
const EventChanged = "daemon.status_changed"

// State represents a daemon runtime state.
type State string

const (
	Booting      State = "BOOTING"
	AuthRequired State = "AUTH_REQUIRED"
	Ready        State = "READY"
	Degraded     State = "DEGRADED"
	Stopping     State = "STOPPING"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions. Degraded means at least
// one message could not be replicated to its peer.
var validTransitions = map[State][]State{
	Booting:      {AuthRequired, Ready, Stopping, Error},
	AuthRequired: {Ready, Stopping, Error},
	Ready:        {AuthRequired, Degraded, Stopping, Error},
	Degraded:     {Ready, AuthRequired, Stopping, Error},
	Error:        {Booting, Stopping},
	Stopping:     {},
}

// Machine tracks and enforces daemon runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.NewEvent(EventChanged, Change{From: from, To: to}))
	}
	return nil
}

// Signed moves to Ready or AuthRequired depending on whether an identity is
// signed in. Degraded is kept while signed in.
func (m *Machine) Signed(in bool) error {
	cur := m.Current()
	switch {
	case in && (cur == Ready || cur == Degraded):
		return nil
	case !in && cur == AuthRequired:
		return nil
	case in:
		return m.Transition(Ready)
	default:
		return m.Transition(AuthRequired)
	}
}

// Change is the payload for status change events.
type Change struct {
	From State
	To   State
}
