package bus

import "time"

// Event represents a change notification published on the bus.
// Payloads are small keys (identities, log keys); subscribers re-read
// the store for the actual data.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// LogKey identifies one side of a conversation: the log owned by Owner
// holding messages exchanged with Partner.
type LogKey struct {
	Owner   string
	Partner string
}

// NewEvent stamps an event with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
