package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the id is not in the conversation list,
	// usually because the view is stale.
	ErrNotFound = errors.New("message not found")
	// ErrNotEditable is returned for kinds the user cannot edit or delete.
	ErrNotEditable = errors.New("message cannot be modified")
	// ErrNotOwner is returned when the requester did not send the message.
	ErrNotOwner = errors.New("message belongs to another sender")
	// ErrPending is returned for operations that need a confirmed (or failed) message.
	ErrPending = errors.New("message is still being sent")
	// ErrInvalidTransition is returned for a delivery status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidDraft is returned when a draft cannot be sent.
	ErrInvalidDraft = errors.New("invalid draft")
)

// DeliveryError wraps a transport failure for an edit or delete.
type DeliveryError struct {
	Op        string
	MessageID string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s message %s: %v", e.Op, e.MessageID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
