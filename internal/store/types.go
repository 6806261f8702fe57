package store

import (
	"time"

	"github.com/matheus3301/crmchat/internal/message"
)

// Outbox statuses.
const (
	OutboxQueued  = "queued"
	OutboxSending = "sending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)

// OutboxEntry represents a pending outgoing message. ClientMsgID is the
// temporary id of the optimistic message it belongs to.
type OutboxEntry struct {
	ID             int64
	ClientMsgID    string
	ConversationID string
	Kind           message.Kind
	Content        string
	ReplyTo        string
	Attachments    []message.Attachment
	Status         string // queued, sending, sent, failed
	ErrorMessage   string
	ServerMsgID    string
	CreatedAt      time.Time
}
