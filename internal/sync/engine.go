// Package sync keeps open conversations current: it polls the backend for new
// messages, feeds them to the conversation manager and mirrors confirmed
// messages into the local cache.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/crmchat/internal/bus"
	"github.com/matheus3301/crmchat/internal/message"
	"github.com/matheus3301/crmchat/internal/metrics"
	"github.com/matheus3301/crmchat/internal/status"
	"github.com/matheus3301/crmchat/internal/store"
	"github.com/matheus3301/crmchat/internal/transport"
	"go.uber.org/zap"
)

// maxPagesPerRound bounds how far one conversation is paged in a single tick.
const maxPagesPerRound = 10

// Fetcher reads conversation history from the backend.
type Fetcher interface {
	Fetch(ctx context.Context, conversationID, after string, limit int) (transport.Page, error)
}

// Timeline is the part of the conversation manager the engine feeds.
type Timeline interface {
	Open(conversationID string)
	Conversations() []string
	Load(conversationID string, page []message.Message) int
	Merge(conversationID string, page []message.Message) (added, updated int)
	Restore(msg message.Message) bool
	Get(id string) (message.Message, bool)
}

// Options tunes the poll loop.
type Options struct {
	Interval time.Duration
	PageSize int
}

// Engine handles idempotent ingestion of backend messages.
type Engine struct {
	db       *store.DB
	fetcher  Fetcher
	timeline Timeline
	machine  *status.Machine
	bus      *bus.Bus
	logger   *zap.Logger
	opts     Options
	wake     chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewEngine creates a new sync engine. A nil fetcher disables polling; the
// cache mirror still runs.
func NewEngine(db *store.DB, fetcher Fetcher, timeline Timeline, machine *status.Machine, b *bus.Bus, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	return &Engine{
		db:       db,
		fetcher:  fetcher,
		timeline: timeline,
		machine:  machine,
		bus:      b,
		logger:   logger,
		opts:     opts,
		wake:     make(chan struct{}, 1),
	}
}

// Start subscribes to message events on the bus and starts the poll loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	ch, unsub := e.bus.Subscribe("message.", 256)

	go func() {
		defer close(e.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()

	if e.fetcher != nil {
		go e.loop(ctx)
	}
}

// Stop stops the engine and waits for the cache mirror to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

// Open starts tracking a conversation: cached messages are loaded into the
// manager right away, sends that never reached the server are restored from
// the outbox and a fetch is scheduled.
func (e *Engine) Open(conversationID string) (int, error) {
	e.timeline.Open(conversationID)
	cached, err := e.db.ListMessages(conversationID, e.opts.PageSize)
	if err != nil {
		return 0, fmt.Errorf("load cached messages: %w", err)
	}
	added := e.timeline.Load(conversationID, cached)

	unsent, err := e.db.UnsentOutbox(conversationID)
	if err != nil {
		return added, fmt.Errorf("load unsent messages: %w", err)
	}
	for _, entry := range unsent {
		if e.timeline.Restore(optimisticFromOutbox(entry)) {
			added++
		}
	}

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return added, nil
}

// optimisticFromOutbox rebuilds the optimistic message of an outbox row.
// Queued rows are still on their way; the outbox sender reconciles them.
func optimisticFromOutbox(entry store.OutboxEntry) message.Message {
	st := message.StatusSending
	if entry.Status == store.OutboxFailed {
		st = message.StatusFailed
	}
	return message.Message{
		ID:             entry.ClientMsgID,
		ConversationID: entry.ConversationID,
		Kind:           entry.Kind,
		Content:        entry.Content,
		CreatedAt:      entry.CreatedAt,
		Status:         st,
		ReplyTo:        entry.ReplyTo,
		Attachments:    entry.Attachments,
	}
}

func (e *Engine) loop(ctx context.Context) {
	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.pollAll(ctx)
		case <-e.wake:
			e.pollAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) pollAll(ctx context.Context) {
	var failed error
	for _, id := range e.timeline.Conversations() {
		if ctx.Err() != nil {
			return
		}
		if _, err := e.SyncConversation(ctx, id); err != nil {
			e.logger.Warn("sync conversation failed", zap.String("conversation_id", id), zap.Error(err))
			failed = err
		}
	}
	if e.machine == nil {
		return
	}
	if failed != nil {
		if e.machine.TransitionFrom(status.Ready, status.Degraded) {
			e.logger.Warn("backend unreachable, degraded", zap.Error(failed))
		}
	} else if e.machine.TransitionFrom(status.Degraded, status.Ready) {
		e.logger.Info("backend reachable again")
	}
}

// SyncConversation fetches everything newer than the stored cursor, merges
// it into the manager and returns the number of messages added. Messages the
// manager already holds take the server's status and content.
func (e *Engine) SyncConversation(ctx context.Context, conversationID string) (int, error) {
	if e.fetcher == nil {
		return 0, errors.New("sync: no backend configured")
	}
	key := cursorKey(conversationID)
	cursor, err := e.db.GetCursor(key)
	if err != nil {
		return 0, fmt.Errorf("read cursor: %w", err)
	}

	total := 0
	for range maxPagesPerRound {
		page, err := e.fetcher.Fetch(ctx, conversationID, cursor, e.opts.PageSize)
		if err != nil {
			metrics.SyncPages.WithLabelValues("error").Inc()
			return total, err
		}
		metrics.SyncPages.WithLabelValues("ok").Inc()

		if err := e.IngestPage(conversationID, page.Messages); err != nil {
			return total, err
		}
		added, updated := e.timeline.Merge(conversationID, page.Messages)
		total += added

		if page.Cursor != "" && page.Cursor != cursor {
			if err := e.db.SetCursor(key, page.Cursor); err != nil {
				return total, fmt.Errorf("write cursor: %w", err)
			}
		}
		e.bus.Emit(bus.SyncPage, PageStats{
			ConversationID: conversationID,
			Fetched:        len(page.Messages),
			Added:          added,
			Updated:        updated,
			Cursor:         page.Cursor,
		})

		if page.Cursor == "" || page.Cursor == cursor || len(page.Messages) < e.opts.PageSize {
			break
		}
		cursor = page.Cursor
	}
	return total, nil
}

// IngestPage writes a batch of messages to the cache in one transaction.
func (e *Engine) IngestPage(conversationID string, msgs []message.Message) error {
	for i := range msgs {
		if msgs[i].ConversationID == "" {
			msgs[i].ConversationID = conversationID
		}
	}
	if err := e.db.UpsertMessages(msgs); err != nil {
		return fmt.Errorf("ingest page: %w", err)
	}
	return nil
}

// PageStats is the payload of sync.page events.
type PageStats struct {
	ConversationID string `json:"conversation_id"`
	Fetched        int    `json:"fetched"`
	Added          int    `json:"added"`
	Updated        int    `json:"updated"`
	Cursor         string `json:"cursor,omitempty"`
}

func (e *Engine) handleEvent(evt bus.Event) {
	ref, ok := evt.Payload.(bus.MessageRef)
	if !ok {
		return
	}
	switch evt.Kind {
	case bus.MessageConfirmed, bus.MessageEdited, bus.MessageIncoming, bus.MessageStatus:
		if message.IsTemporaryID(ref.MessageID) {
			return
		}
		msg, ok := e.timeline.Get(ref.MessageID)
		if !ok {
			return
		}
		if err := e.db.UpsertMessage(msg); err != nil {
			e.logger.Error("failed to cache message", zap.Error(err), zap.String("msg_id", ref.MessageID))
		}
	case bus.MessageDeleted:
		if err := e.db.DeleteMessage(ref.ConversationID, ref.MessageID); err != nil {
			e.logger.Error("failed to drop cached message", zap.Error(err), zap.String("msg_id", ref.MessageID))
		}
	case bus.MessageDiscarded:
		if err := e.db.DeleteOutbox(ref.MessageID); err != nil {
			e.logger.Error("failed to drop discarded outbox row", zap.Error(err), zap.String("client_msg_id", ref.MessageID))
		}
	}
}

func cursorKey(conversationID string) string {
	return "conversation:" + conversationID
}
