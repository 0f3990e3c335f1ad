package status

import (
	"testing"
	"time"

	"github.com/matheus3301/chatter/internal/bus"
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
		{Booting, AuthRequired},
		{Booting, Ready},
		{Booting, Error},
		{AuthRequired, Ready},
		{Ready, AuthRequired},
		{Ready, Degraded},
		{Degraded, Ready},
		{Ready, Stopping},
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
	m := NewMachine(nil)
	if err := m.Transition(Degraded); err == nil {
		t.Error("Transition(BOOTING -> DEGRADED) should fail")
	}
	walkTo(t, m, Stopping)
	if err := m.Transition(Ready); err == nil {
		t.Error("STOPPING should be terminal")
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("daemon.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(AuthRequired); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		if evt.Kind != EventChanged {
			t.Errorf("event kind = %q, want %q", evt.Kind, EventChanged)
		}
		c, ok := evt.Payload.(Change)
		if !ok {
			t.Fatalf("payload type = %T, want Change", evt.Payload)
		}
		if c.From != Booting || c.To != AuthRequired {
			t.Errorf("change = %+v, want BOOTING -> AUTH_REQUIRED", c)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status event")
	}
}

func TestSigned(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Signed(false); err != nil {
		t.Fatal(err)
	}
	if m.Current() != AuthRequired {
		t.Fatalf("state = %s, want AUTH_REQUIRED", m.Current())
	}
	if err := m.Signed(false); err != nil {
		t.Errorf("repeated sign-out should be a no-op, got %v", err)
	}
	if err := m.Signed(true); err != nil {
		t.Fatal(err)
	}
	if err := m.Transition(Degraded); err != nil {
		t.Fatal(err)
	}
	if err := m.Signed(true); err != nil {
		t.Fatal(err)
	}
	if m.Current() != Degraded {
		t.Errorf("state = %s, want DEGRADED kept while signed in", m.Current())
	}
}

func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Booting:      {},
		AuthRequired: {AuthRequired},
		Ready:        {Ready},
		Degraded:     {Ready, Degraded},
		Stopping:     {Stopping},
		Error:        {Error},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
