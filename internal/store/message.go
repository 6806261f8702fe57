package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/matheus3301/crmchat/internal/message"
)

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// UpsertMessage inserts or updates a cached message (idempotent on conversation_id + msg_id).
func (db *DB) UpsertMessage(m message.Message) error {
	return upsertMessage(db, m)
}

// UpsertMessages writes a batch of messages in a single transaction.
func (db *DB) UpsertMessages(msgs []message.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range msgs {
		if err := upsertMessage(tx, m); err != nil {
			return fmt.Errorf("upsert message %q: %w", m.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func upsertMessage(ex execer, m message.Message) error {
	attachments, err := encodeAttachments(m.Attachments)
	if err != nil {
		return err
	}
	_, err = ex.Exec(`
		INSERT INTO messages (conversation_id, msg_id, sender_id, sender_name, kind, content, status, edited, reply_to, attachments, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
			sender_name = excluded.sender_name,
			content = excluded.content,
			status = excluded.status,
			edited = excluded.edited,
			attachments = excluded.attachments,
			updated_at = excluded.updated_at`,
		m.ConversationID, m.ID, m.SenderID, m.SenderName, string(m.Kind), m.Content, string(m.Status),
		m.Edited, m.ReplyTo, attachments, m.CreatedAt.UnixMilli(), time.Now().UnixMilli())
	return err
}

// DeleteMessage removes a cached message.
func (db *DB) DeleteMessage(conversationID, msgID string) error {
	_, err := db.Exec(`DELETE FROM messages WHERE conversation_id = ? AND msg_id = ?`, conversationID, msgID)
	return err
}

// ListMessages returns the latest limit messages of a conversation, oldest first.
func (db *DB) ListMessages(conversationID string, limit int) ([]message.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT msg_id, conversation_id, sender_id, sender_name, kind, content, status, edited, reply_to, attachments, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []message.Message
	for rows.Next() {
		var (
			m           message.Message
			kind        string
			status      string
			attachments string
			createdAt   int64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &kind, &m.Content, &status, &m.Edited, &m.ReplyTo, &attachments, &createdAt); err != nil {
			return nil, err
		}
		m.Kind = message.Kind(kind)
		m.Status = message.Status(status)
		m.CreatedAt = time.UnixMilli(createdAt)
		if m.Attachments, err = decodeAttachments(attachments); err != nil {
			return nil, fmt.Errorf("message %q: %w", m.ID, err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func encodeAttachments(a []message.Attachment) (string, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encode attachments: %w", err)
	}
	return string(b), nil
}

func decodeAttachments(s string) ([]message.Attachment, error) {
	if s == "" || s == "[]" {
		return nil, nil
	}
	var a []message.Attachment
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return nil, fmt.Errorf("decode attachments: %w", err)
	}
	return a, nil
}
