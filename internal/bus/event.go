package bus

import "time"

// Event kinds published by the daemon. Subscribers filter by prefix
// ("message.", "sync.", "session.").
const (
	MessageQueued     = "message.queued"
	MessageConfirmed  = "message.confirmed"
	MessageFailed     = "message.failed"
	MessageEdited     = "message.edited"
	MessageDeleted    = "message.deleted"
	MessageDiscarded  = "message.discarded"
	MessageIncoming   = "message.incoming"
	MessageStatus     = "message.status"
	MessageSendAck    = "message.send_ack"
	MessageSendFailed = "message.send_failed"

	SyncPage = "sync.page"

	SessionStatusChanged = "session.status_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	// Seq increases by one per published event, starting at 1.
	Seq       uint64
	Kind      string
	Timestamp time.Time
	Payload   any
}

// MessageRef identifies the message an event is about.
type MessageRef struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	// PreviousID is set when a temporary id was replaced by a server id.
	PreviousID string `json:"previous_id,omitempty"`
}
