package store

import (
	"time"

	"github.com/matheus3301/crmchat/internal/message"
)

// QueueOutbox adds a message to the send outbox.
func (db *DB) QueueOutbox(e OutboxEntry) error {
	attachments, err := encodeAttachments(e.Attachments)
	if err != nil {
		return err
	}
	if e.Kind == "" {
		e.Kind = message.KindText
	}
	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO outbox (client_msg_id, conversation_id, kind, content, reply_to, attachments, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'queued', ?, ?)`,
		e.ClientMsgID, e.ConversationID, string(e.Kind), e.Content, e.ReplyTo, attachments, now, now)
	return err
}

// MarkOutboxSending updates an outbox entry to 'sending' status.
func (db *DB) MarkOutboxSending(clientMsgID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sending', updated_at = ? WHERE client_msg_id = ?`, now, clientMsgID)
	return err
}

// MarkOutboxSent updates an outbox entry to 'sent' with the server message ID.
func (db *DB) MarkOutboxSent(clientMsgID, serverMsgID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sent', server_msg_id = ?, updated_at = ? WHERE client_msg_id = ?`, serverMsgID, now, clientMsgID)
	return err
}

// MarkOutboxFailed updates an outbox entry to 'failed' with an error message.
func (db *DB) MarkOutboxFailed(clientMsgID, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'failed', error_message = ?, updated_at = ? WHERE client_msg_id = ?`, errMsg, now, clientMsgID)
	return err
}

// FailStaleSending marks entries left in 'sending' by a previous run as failed.
// Their optimistic messages died with that process, so they are not retried.
func (db *DB) FailStaleSending() (int64, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`UPDATE outbox SET status = 'failed', error_message = 'interrupted', updated_at = ? WHERE status = 'sending'`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const outboxColumns = `id, client_msg_id, conversation_id, kind, content, reply_to, attachments, status, error_message, server_msg_id, created_at`

// PendingOutbox returns outbox entries that are still queued.
func (db *DB) PendingOutbox() ([]OutboxEntry, error) {
	return db.queryOutbox(`SELECT ` + outboxColumns + `
		FROM outbox WHERE status = 'queued' ORDER BY created_at ASC, id ASC`)
}

// UnsentOutbox returns the entries of a conversation that never reached the
// server: queued, in flight or failed, oldest first.
func (db *DB) UnsentOutbox(conversationID string) ([]OutboxEntry, error) {
	return db.queryOutbox(`SELECT `+outboxColumns+`
		FROM outbox WHERE conversation_id = ? AND status IN ('queued', 'sending', 'failed')
		ORDER BY created_at ASC, id ASC`, conversationID)
}

// DeleteOutbox drops the entry of a discarded message. Sent entries are kept
// as the record of the server id.
func (db *DB) DeleteOutbox(clientMsgID string) error {
	_, err := db.Exec(`DELETE FROM outbox WHERE client_msg_id = ? AND status != 'sent'`, clientMsgID)
	return err
}

func (db *DB) queryOutbox(query string, args ...any) ([]OutboxEntry, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var (
			e           OutboxEntry
			kind        string
			attachments string
			createdAt   int64
		)
		if err := rows.Scan(&e.ID, &e.ClientMsgID, &e.ConversationID, &kind, &e.Content, &e.ReplyTo, &attachments, &e.Status, &e.ErrorMessage, &e.ServerMsgID, &createdAt); err != nil {
			return nil, err
		}
		e.Kind = message.Kind(kind)
		e.CreatedAt = time.UnixMilli(createdAt)
		if e.Attachments, err = decodeAttachments(attachments); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
