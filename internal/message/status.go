package message

import "slices"

// Status is the delivery state of a message.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// validTransitions defines allowed delivery status transitions.
// Server-driven progress is monotonic; failed and read are terminal.
var validTransitions = map[Status][]Status{
	StatusSending:   {StatusSent, StatusDelivered, StatusRead, StatusFailed},
	StatusSent:      {StatusDelivered, StatusRead},
	StatusDelivered: {StatusRead},
	StatusRead:      {},
	StatusFailed:    {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransition reports whether a message in status s may move to status to.
func (s Status) CanTransition(to Status) bool {
	return slices.Contains(validTransitions[s], to)
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(validTransitions[s]) == 0
}
