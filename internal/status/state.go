package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/crmchat/internal/bus"
)

// State represents a daemon runtime state.
type State string

const (
	Booting State = "BOOTING"
	// Offline means no backend is configured; local extraction and templates
	// still work but sends fail.
	Offline  State = "OFFLINE"
	Ready    State = "READY"
	Degraded State = "DEGRADED"
	Error    State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:  {Ready, Offline, Error},
	Offline:  {Error},
	Ready:    {Degraded, Error},
	Degraded: {Ready, Error},
	Error:    {Booting},
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
	return m.transitionLocked(to)
}

// TransitionFrom moves to a new state only when the machine is currently in
// from. It reports whether the transition happened.
func (m *Machine) TransitionFrom(from, to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != from {
		return false
	}
	return m.transitionLocked(to) == nil
}

func (m *Machine) transitionLocked(to State) error {
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Emit(bus.SessionStatusChanged, StatusChange{From: from, To: to})
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State `json:"from"`
	To   State `json:"to"`
}
