package store

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/matheus3301/crmchat/internal/message"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
	if result.From != 1 {
		t.Errorf("from = %d, want 1", result.From)
	}
}

func TestMigrateFreshDatabase(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "nested", "fresh.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if !result.Changed || result.From != 0 || result.Version != 1 {
		t.Errorf("result = %+v, want 0 -> 1 changed", result)
	}
}

func TestMigrateRefusesDirtySchema(t *testing.T) {
	db := testDB(t)
	if _, err := db.Exec(`UPDATE schema_migrations SET dirty = 1`); err != nil {
		t.Fatal(err)
	}
	_, err := db.Migrate()
	if !errors.Is(err, ErrDirtySchema) {
		t.Fatalf("Migrate() error = %v, want ErrDirtySchema", err)
	}
}

func TestMessageUpsertIdempotent(t *testing.T) {
	db := testDB(t)

	msg := message.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "agent-1",
		Kind:           message.KindText,
		Content:        "hello",
		Status:         message.StatusSent,
		CreatedAt:      time.UnixMilli(1000),
	}
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}
	msg.Content = "hello updated"
	msg.Edited = true
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("c1", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (idempotent upsert failed)", len(msgs))
	}
	if msgs[0].Content != "hello updated" || !msgs[0].Edited {
		t.Errorf("got %+v, want edited content", msgs[0])
	}
}

func TestListMessagesOldestFirst(t *testing.T) {
	db := testDB(t)

	for i, id := range []string{"m1", "m2", "m3"} {
		m := message.Message{ID: id, ConversationID: "c1", Kind: message.KindText, Status: message.StatusSent, CreatedAt: time.UnixMilli(int64(1000 * (i + 1)))}
		if err := db.UpsertMessage(m); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.UpsertMessage(message.Message{ID: "x", ConversationID: "other", CreatedAt: time.UnixMilli(5000)}); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("c1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != "m2" || msgs[1].ID != "m3" {
		t.Errorf("order = [%s %s], want [m2 m3]", msgs[0].ID, msgs[1].ID)
	}
}

func TestMessageAttachmentsRoundTrip(t *testing.T) {
	db := testDB(t)

	m := message.Message{
		ID:             "m1",
		ConversationID: "c1",
		Kind:           message.KindImage,
		Status:         message.StatusSent,
		CreatedAt:      time.UnixMilli(1000),
		Attachments: []message.Attachment{
			{ID: "a1", Name: "policy.png", MediaType: "image/png", Size: 2048, URL: "https://files/a1"},
		},
	}
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}
	msgs, err := db.ListMessages("c1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || len(msgs[0].Attachments) != 1 {
		t.Fatalf("got %+v, want one message with one attachment", msgs)
	}
	if got := msgs[0].Attachments[0]; got.Name != "policy.png" || got.Size != 2048 {
		t.Errorf("attachment = %+v", got)
	}
	if msgs[0].Kind != message.KindImage {
		t.Errorf("kind = %q, want image", msgs[0].Kind)
	}
}

func TestDeleteMessage(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessage(message.Message{ID: "m1", ConversationID: "c1", CreatedAt: time.UnixMilli(1000)}); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteMessage("c1", "m1"); err != nil {
		t.Fatal(err)
	}
	msgs, err := db.ListMessages("c1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages after delete, want 0", len(msgs))
	}
}

func TestOutbox(t *testing.T) {
	db := testDB(t)

	entry := OutboxEntry{
		ClientMsgID:    "tmp-1",
		ConversationID: "c1",
		Content:        "test msg",
		Attachments:    []message.Attachment{{Name: "a.pdf"}},
	}
	if err := db.QueueOutbox(entry); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending, want 1", len(pending))
	}
	if pending[0].ClientMsgID != "tmp-1" {
		t.Errorf("client_msg_id = %q, want tmp-1", pending[0].ClientMsgID)
	}
	if pending[0].Kind != message.KindText {
		t.Errorf("kind = %q, want text default", pending[0].Kind)
	}
	if len(pending[0].Attachments) != 1 || pending[0].Attachments[0].Name != "a.pdf" {
		t.Errorf("attachments = %+v", pending[0].Attachments)
	}

	if err := db.MarkOutboxSending("tmp-1"); err != nil {
		t.Fatal(err)
	}
	pending, err = db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending while sending, want 0", len(pending))
	}
	if err := db.MarkOutboxSent("tmp-1", "srv-1"); err != nil {
		t.Fatal(err)
	}

	var status, serverID string
	if err := db.QueryRow(`SELECT status, server_msg_id FROM outbox WHERE client_msg_id = ?`, "tmp-1").Scan(&status, &serverID); err != nil {
		t.Fatal(err)
	}
	if status != OutboxSent || serverID != "srv-1" {
		t.Errorf("row = (%s, %s), want (sent, srv-1)", status, serverID)
	}
}

func TestFailStaleSending(t *testing.T) {
	db := testDB(t)

	for _, id := range []string{"tmp-a", "tmp-b"} {
		if err := db.QueueOutbox(OutboxEntry{ClientMsgID: id, ConversationID: "c1", Content: "x"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.MarkOutboxSending("tmp-a"); err != nil {
		t.Fatal(err)
	}

	n, err := db.FailStaleSending()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("failed %d rows, want 1", n)
	}
	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ClientMsgID != "tmp-b" {
		t.Errorf("pending = %+v, want only tmp-b", pending)
	}
}

func TestUnsentOutbox(t *testing.T) {
	db := testDB(t)

	for _, e := range []OutboxEntry{
		{ClientMsgID: "tmp-queued", ConversationID: "c1", Content: "a"},
		{ClientMsgID: "tmp-failed", ConversationID: "c1", Content: "b"},
		{ClientMsgID: "tmp-sent", ConversationID: "c1", Content: "c"},
		{ClientMsgID: "tmp-other", ConversationID: "c2", Content: "d"},
	} {
		if err := db.QueueOutbox(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.MarkOutboxFailed("tmp-failed", "boom"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSent("tmp-sent", "srv-1"); err != nil {
		t.Fatal(err)
	}

	unsent, err := db.UnsentOutbox("c1")
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, e := range unsent {
		ids = append(ids, e.ClientMsgID)
		if e.CreatedAt.IsZero() {
			t.Errorf("%s: created_at not read", e.ClientMsgID)
		}
	}
	if want := []string{"tmp-queued", "tmp-failed"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("unsent = %v, want %v", ids, want)
	}
	if unsent[1].Status != OutboxFailed || unsent[1].ErrorMessage != "boom" {
		t.Errorf("failed row = %+v", unsent[1])
	}

	if err := db.DeleteOutbox("tmp-failed"); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteOutbox("tmp-sent"); err != nil {
		t.Fatal(err)
	}
	unsent, _ = db.UnsentOutbox("c1")
	if len(unsent) != 1 || unsent[0].ClientMsgID != "tmp-queued" {
		t.Errorf("after delete = %+v, want only tmp-queued", unsent)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM outbox WHERE client_msg_id = 'tmp-sent'`).Scan(&n); err != nil || n != 1 {
		t.Errorf("sent row removed: n=%d err=%v", n, err)
	}
}

func TestTemplatesSnapshot(t *testing.T) {
	db := testDB(t)

	raw, err := db.LoadTemplates()
	if err != nil {
		t.Fatal(err)
	}
	if raw != "" {
		t.Errorf("fresh db snapshot = %q, want empty", raw)
	}

	if err := db.SaveTemplates(`{"name":["姓名[:：]\\s*(\\S+)"]}`); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveTemplates(`{"phone":["(1\\d{10})"]}`); err != nil {
		t.Fatal(err)
	}
	raw, err = db.LoadTemplates()
	if err != nil {
		t.Fatal(err)
	}
	if raw != `{"phone":["(1\\d{10})"]}` {
		t.Errorf("snapshot = %q, want the last saved document", raw)
	}
}

func TestCursor(t *testing.T) {
	db := testDB(t)

	v, err := db.GetCursor("conversation:c1")
	if err != nil {
		t.Fatal(err)
	}
	if v != "" {
		t.Errorf("missing cursor = %q, want empty", v)
	}
	if err := db.SetCursor("conversation:c1", "m10"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetCursor("conversation:c1", "m12"); err != nil {
		t.Fatal(err)
	}
	v, err = db.GetCursor("conversation:c1")
	if err != nil {
		t.Fatal(err)
	}
	if v != "m12" {
		t.Errorf("cursor = %q, want m12", v)
	}
}

func TestUpsertMessagesBatch(t *testing.T) {
	db := testDB(t)

	batch := []message.Message{
		{ID: "m1", ConversationID: "c1", Content: "one", CreatedAt: time.UnixMilli(1000)},
		{ID: "m2", ConversationID: "c1", Content: "two", CreatedAt: time.UnixMilli(2000)},
		{ID: "m1", ConversationID: "c1", Content: "one again", CreatedAt: time.UnixMilli(1000)},
	}
	if err := db.UpsertMessages(batch); err != nil {
		t.Fatal(err)
	}
	msgs, err := db.ListMessages("c1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "one again" {
		t.Errorf("content = %q, want the later write", msgs[0].Content)
	}
}
