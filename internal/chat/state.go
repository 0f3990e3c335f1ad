package chat

import (
	"fmt"
	"slices"
)

// State is the lifecycle state of a Session.
type State string

const (
	Idle       State = "IDLE"
	Subscribed State = "SUBSCRIBED"
	Closed     State = "CLOSED"
)

// validTransitions defines allowed state transitions. Subscribed -> Subscribed
// is a switch to another peer.
var validTransitions = map[State][]State{
	Idle:       {Subscribed, Closed},
	Subscribed: {Subscribed, Idle, Closed},
	Closed:     {},
}

func checkTransition(from, to State) error {
	if !slices.Contains(validTransitions[from], to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}
