package status

import (
	"testing"

	"github.com/matheus3301/crmchat/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, Ready},
		{Booting, Offline},
		{Booting, Error},
		{Ready, Degraded},
		{Degraded, Ready},
		{Degraded, Error},
		{Error, Booting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, Degraded},
		{Offline, Ready},
		{Ready, Booting},
		{Error, Ready},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err == nil {
				t.Errorf("Transition(%s -> %s) should fail", tt.from, tt.to)
			}
			if m.Current() != tt.from {
				t.Errorf("state = %s, want %s (unchanged)", m.Current(), tt.from)
			}
		})
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Ready); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.SessionStatusChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.SessionStatusChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Booting || change.To != Ready {
		t.Errorf("change = %v -> %v, want BOOTING -> READY", change.From, change.To)
	}
}

// TestTransitionFromIgnoresOtherStates covers the sync loop flipping between
// READY and DEGRADED: a failure while still BOOTING must not move the machine.
func TestTransitionFromIgnoresOtherStates(t *testing.T) {
	m := NewMachine(nil)

	if m.TransitionFrom(Ready, Degraded) {
		t.Fatal("TransitionFrom(READY, DEGRADED) applied while BOOTING")
	}
	if m.Current() != Booting {
		t.Errorf("state = %s, want BOOTING", m.Current())
	}

	walkTo(t, m, Ready)
	if !m.TransitionFrom(Ready, Degraded) {
		t.Fatal("TransitionFrom(READY, DEGRADED) not applied")
	}
	if m.TransitionFrom(Ready, Degraded) {
		t.Error("second TransitionFrom(READY, DEGRADED) should be a no-op")
	}
	if !m.TransitionFrom(Degraded, Ready) {
		t.Error("recovery DEGRADED -> READY not applied")
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Booting:  {},
		Offline:  {Offline},
		Ready:    {Ready},
		Degraded: {Ready, Degraded},
		Error:    {Error},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
