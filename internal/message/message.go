package message

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the content type of a message.
type Kind string

const (
	KindText         Kind = "text"
	KindImage        Kind = "image"
	KindFile         Kind = "file"
	KindAudio        Kind = "audio"
	KindVideo        Kind = "video"
	KindLocation     Kind = "location"
	KindSystem       Kind = "system"
	KindNotification Kind = "notification"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindImage, KindFile, KindAudio, KindVideo, KindLocation, KindSystem, KindNotification:
		return true
	}
	return false
}

// UserMutable reports whether a user may send, edit or delete messages of this kind.
func (k Kind) UserMutable() bool {
	return k != KindSystem && k != KindNotification
}

// TempIDPrefix marks ids generated locally for optimistic messages.
const TempIDPrefix = "tmp-"

// NewTempID returns a fresh temporary id.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// IsTemporaryID reports whether id was generated locally and not yet confirmed.
func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Attachment describes a file attached to a message. Uploading is the transport's job.
type Attachment struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MediaType    string `json:"media_type"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// Message is a single chat message in a conversation.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	SenderID       string       `json:"sender_id"`
	SenderName     string       `json:"sender_name"`
	Kind           Kind         `json:"kind"`
	Content        string       `json:"content"`
	CreatedAt      time.Time    `json:"created_at"`
	Status         Status       `json:"status"`
	Edited         bool         `json:"edited"`
	ReplyTo        string       `json:"reply_to,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// Normalize fills defaults for messages received from the server.
// System and notification messages only ever carry the sent status.
func (m *Message) Normalize() {
	if m.Kind == "" {
		m.Kind = KindText
	}
	if m.Status == "" || !m.Kind.UserMutable() {
		m.Status = StatusSent
	}
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	if m.Attachments != nil {
		m.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	return m
}

// Draft is the user input for a new outgoing message.
type Draft struct {
	ConversationID string
	Kind           Kind
	Content        string
	ReplyTo        string
	Attachments    []Attachment
}
