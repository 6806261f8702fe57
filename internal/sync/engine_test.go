package sync

import (
	"context"
	"errors"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/matheus3301/crmchat/internal/bus"
	"github.com/matheus3301/crmchat/internal/conversation"
	"github.com/matheus3301/crmchat/internal/message"
	"github.com/matheus3301/crmchat/internal/status"
	"github.com/matheus3301/crmchat/internal/store"
	"github.com/matheus3301/crmchat/internal/transport"
	"go.uber.org/zap"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fakeFetcher serves a fixed history per conversation, paged by id.
type fakeFetcher struct {
	mu     gosync.Mutex
	msgs   map[string][]message.Message
	afters []string
	err    error
}

func (f *fakeFetcher) Fetch(_ context.Context, conversationID, after string, limit int) (transport.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afters = append(f.afters, after)
	if f.err != nil {
		return transport.Page{}, f.err
	}
	all := f.msgs[conversationID]
	start := 0
	for i, m := range all {
		if m.ID == after {
			start = i + 1
		}
	}
	end := min(start+limit, len(all))
	page := transport.Page{Messages: append([]message.Message(nil), all[start:end]...), Cursor: after}
	if end > start {
		page.Cursor = all[end-1].ID
	}
	return page, nil
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func history(ids ...string) []message.Message {
	msgs := make([]message.Message, len(ids))
	for i, id := range ids {
		msgs[i] = message.Message{
			ID:        id,
			SenderID:  "customer-1",
			Kind:      message.KindText,
			Content:   "body " + id,
			Status:    message.StatusSent,
			CreatedAt: time.UnixMilli(int64(1000 * (i + 1))),
		}
	}
	return msgs
}

func newEngine(t *testing.T, f Fetcher, pageSize int) (*Engine, *conversation.Manager, *store.DB, *bus.Bus) {
	t.Helper()
	db := testDB(t)
	b := bus.New()
	logger, _ := zap.NewDevelopment()
	mgr := conversation.NewManager(conversation.Identity{ID: "agent-1"}, nil, b, logger)
	e := NewEngine(db, f, mgr, nil, b, logger, Options{Interval: time.Hour, PageSize: pageSize})
	return e, mgr, db, b
}

func TestSyncConversationIngestsPage(t *testing.T) {
	f := &fakeFetcher{msgs: map[string][]message.Message{"c1": history("m1", "m2")}}
	e, mgr, db, b := newEngine(t, f, 10)

	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	added, err := e.SyncConversation(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}

	msgs := mgr.Messages("c1")
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("manager list = %+v, want [m1 m2]", msgs)
	}

	cached, err := db.ListMessages("c1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(cached) != 2 {
		t.Errorf("got %d cached messages, want 2", len(cached))
	}

	cursor, err := db.GetCursor("conversation:c1")
	if err != nil {
		t.Fatal(err)
	}
	if cursor != "m2" {
		t.Errorf("cursor = %q, want m2", cursor)
	}

	select {
	case evt := <-ch:
		stats, ok := evt.Payload.(PageStats)
		if !ok {
			t.Fatalf("payload type = %T, want PageStats", evt.Payload)
		}
		if stats.Fetched != 2 || stats.Added != 2 || stats.ConversationID != "c1" {
			t.Errorf("stats = %+v", stats)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for sync.page event")
	}
}

func TestSyncConversationResumesFromCursor(t *testing.T) {
	f := &fakeFetcher{msgs: map[string][]message.Message{"c1": history("m1", "m2")}}
	e, mgr, _, _ := newEngine(t, f, 10)

	if _, err := e.SyncConversation(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	f.msgs["c1"] = history("m1", "m2", "m3")
	f.mu.Unlock()

	added, err := e.SyncConversation(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
	if got := f.afters[len(f.afters)-1]; got != "m2" {
		t.Errorf("last fetch after = %q, want m2", got)
	}
	if n := len(mgr.Messages("c1")); n != 3 {
		t.Errorf("got %d messages, want 3", n)
	}
}

func TestSyncConversationPagesUntilShortPage(t *testing.T) {
	f := &fakeFetcher{msgs: map[string][]message.Message{"c1": history("m1", "m2", "m3", "m4", "m5")}}
	e, mgr, _, _ := newEngine(t, f, 2)

	added, err := e.SyncConversation(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if added != 5 {
		t.Errorf("added = %d, want 5", added)
	}
	if len(f.afters) != 3 {
		t.Errorf("fetch calls = %d (%v), want 3", len(f.afters), f.afters)
	}
	msgs := mgr.Messages("c1")
	if len(msgs) != 5 || msgs[4].ID != "m5" {
		t.Errorf("manager list = %+v", msgs)
	}
}

func TestOpenLoadsCachedMessages(t *testing.T) {
	e, mgr, db, _ := newEngine(t, nil, 10)

	cached := history("m1", "m2")
	for i := range cached {
		cached[i].ConversationID = "c1"
	}
	if err := db.UpsertMessages(cached); err != nil {
		t.Fatal(err)
	}

	added, err := e.Open("c1")
	if err != nil {
		t.Fatal(err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}
	if convs := mgr.Conversations(); len(convs) != 1 || convs[0] != "c1" {
		t.Errorf("conversations = %v, want [c1]", convs)
	}
	msgs := mgr.Messages("c1")
	if len(msgs) != 2 || msgs[0].ID != "m1" {
		t.Errorf("manager list = %+v, want [m1 m2]", msgs)
	}

	// Opening again does not duplicate.
	if added, _ := e.Open("c1"); added != 0 {
		t.Errorf("second Open added %d, want 0", added)
	}
}

func TestPollAllDegradesAndRecovers(t *testing.T) {
	f := &fakeFetcher{msgs: map[string][]message.Message{"c1": history("m1")}}
	db := testDB(t)
	b := bus.New()
	mgr := conversation.NewManager(conversation.Identity{ID: "agent-1"}, nil, b, nil)
	machine := status.NewMachine(b)
	if err := machine.Transition(status.Ready); err != nil {
		t.Fatal(err)
	}
	e := NewEngine(db, f, mgr, machine, b, nil, Options{PageSize: 10})
	mgr.Open("c1")

	f.setErr(errors.New("connection refused"))
	e.pollAll(context.Background())
	if machine.Current() != status.Degraded {
		t.Errorf("state = %s, want DEGRADED", machine.Current())
	}

	f.setErr(nil)
	e.pollAll(context.Background())
	if machine.Current() != status.Ready {
		t.Errorf("state = %s, want READY", machine.Current())
	}
	if n := len(mgr.Messages("c1")); n != 1 {
		t.Errorf("got %d messages after recovery, want 1", n)
	}
}

// TestEngineMirrorsBusEvents verifies the cache follows the manager: pushed
// messages are written and deletes are dropped.
func TestEngineMirrorsBusEvents(t *testing.T) {
	e, mgr, db, b := newEngine(t, nil, 10)

	e.Start(context.Background())
	defer e.Stop()

	pushed := history("p1")[0]
	pushed.ConversationID = "c1"
	if !mgr.AppendIncoming(pushed) {
		t.Fatal("AppendIncoming rejected a new message")
	}
	waitCached(t, db, "c1", 1)

	b.Emit(bus.MessageDeleted, bus.MessageRef{ConversationID: "c1", MessageID: "p1"})
	waitCached(t, db, "c1", 0)
}

func TestEngineSkipsTemporaryMessages(t *testing.T) {
	e, mgr, db, _ := newEngine(t, nil, 10)

	e.Start(context.Background())
	defer e.Stop()

	if _, err := mgr.Send(message.Draft{ConversationID: "c1", Content: "pending"}); err != nil {
		t.Fatal(err)
	}
	// Events are handled in order, so once the marker is cached the
	// optimistic message has been seen too.
	marker := history("x1")[0]
	marker.ConversationID = "c2"
	mgr.AppendIncoming(marker)
	waitCached(t, db, "c2", 1)

	cached, err := db.ListMessages("c1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(cached) != 0 {
		t.Errorf("got %d cached messages, want 0 (optimistic entries are not cached)", len(cached))
	}
}

func waitCached(t *testing.T, db *store.DB, conversationID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		msgs, err := db.ListMessages(conversationID, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d cached messages, want %d", len(msgs), want)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// TestOpenRestoresUnsentOutbox covers a restart: a send interrupted while in
// flight comes back as failed and a queued one as still sending.
func TestOpenRestoresUnsentOutbox(t *testing.T) {
	e, mgr, db, _ := newEngine(t, nil, 10)

	for _, id := range []string{"tmp-1", "tmp-2", "tmp-3"} {
		if err := db.QueueOutbox(store.OutboxEntry{ClientMsgID: id, ConversationID: "c1", Content: "important " + id}); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.MarkOutboxSending("tmp-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.FailStaleSending(); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSending("tmp-3"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSent("tmp-3", "m9"); err != nil {
		t.Fatal(err)
	}

	added, err := e.Open("c1")
	if err != nil {
		t.Fatal(err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}

	failed, ok := mgr.Get("tmp-1")
	if !ok {
		t.Fatal("interrupted send is not visible after restart")
	}
	if failed.Status != message.StatusFailed || failed.Content != "important tmp-1" {
		t.Errorf("tmp-1 = %s %q, want failed %q", failed.Status, failed.Content, "important tmp-1")
	}
	if failed.SenderID != "agent-1" {
		t.Errorf("tmp-1 sender = %q, want agent-1", failed.SenderID)
	}
	queued, ok := mgr.Get("tmp-2")
	if !ok || queued.Status != message.StatusSending {
		t.Errorf("tmp-2 = %+v (found %v), want sending", queued, ok)
	}
	if _, ok := mgr.Get("tmp-3"); ok {
		t.Error("a sent outbox row was restored as optimistic")
	}

	if added, _ := e.Open("c1"); added != 0 {
		t.Errorf("second Open added %d, want 0", added)
	}
}

func TestSyncConversationAdvancesKnownMessages(t *testing.T) {
	f := &fakeFetcher{msgs: map[string][]message.Message{"c1": history("m1")}}
	e, mgr, _, _ := newEngine(t, f, 10)

	if _, err := e.SyncConversation(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	if got, _ := mgr.Get("m1"); got.Status != message.StatusSent {
		t.Fatalf("m1 status = %s, want sent", got.Status)
	}

	// The server now reports m1 as read and edited; the cursor is rewound
	// so the same page is served again.
	f.mu.Lock()
	f.msgs["c1"][0].Status = message.StatusRead
	f.msgs["c1"][0].Content = "body m1 (fixed)"
	f.msgs["c1"][0].Edited = true
	f.mu.Unlock()
	if err := e.db.SetCursor(cursorKey("c1"), ""); err != nil {
		t.Fatal(err)
	}

	added, err := e.SyncConversation(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if added != 0 {
		t.Errorf("added = %d, want 0", added)
	}
	got, _ := mgr.Get("m1")
	if got.Status != message.StatusRead {
		t.Errorf("m1 status = %s, want read", got.Status)
	}
	if got.Content != "body m1 (fixed)" || !got.Edited {
		t.Errorf("m1 = %q edited=%v, want the server edit", got.Content, got.Edited)
	}
}

func TestEngineDropsDiscardedOutboxRow(t *testing.T) {
	e, mgr, db, _ := newEngine(t, nil, 10)

	if err := db.QueueOutbox(store.OutboxEntry{ClientMsgID: "tmp-1", ConversationID: "c1", Content: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxFailed("tmp-1", "timeout"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Open("c1"); err != nil {
		t.Fatal(err)
	}

	e.Start(context.Background())
	defer e.Stop()

	if err := mgr.Discard(conversation.Handle{TempID: "tmp-1", ConversationID: "c1"}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		rows, err := db.UnsentOutbox("c1")
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("outbox still holds %d rows after discard", len(rows))
		}
		time.Sleep(10 * time.Millisecond)
	}
}
