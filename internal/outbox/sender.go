// Package outbox drains queued outgoing messages to the backend and reports
// the outcome back to the conversation manager.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/crmchat/internal/bus"
	"github.com/matheus3301/crmchat/internal/conversation"
	"github.com/matheus3301/crmchat/internal/message"
	"github.com/matheus3301/crmchat/internal/metrics"
	"github.com/matheus3301/crmchat/internal/store"
	"github.com/matheus3301/crmchat/internal/transport"
	"go.uber.org/zap"
)

// Transport delivers a new message and returns the server's copy.
type Transport interface {
	Send(ctx context.Context, req transport.SendRequest) (message.Message, error)
}

// Lifecycle is the part of the conversation manager the sender drives.
type Lifecycle interface {
	Send(d message.Draft) (conversation.Handle, error)
	ReconcileSuccess(h conversation.Handle, server message.Message) error
	ReconcileFailure(h conversation.Handle, cause error) error
}

// Sender drains the outbox and sends messages via the transport.
type Sender struct {
	db        *store.DB
	transport Transport
	lifecycle Lifecycle
	bus       *bus.Bus
	logger    *zap.Logger
	interval  time.Duration
	wake      chan struct{}
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSender creates a new outbox sender polling every interval.
func NewSender(db *store.DB, t Transport, lc Lifecycle, b *bus.Bus, logger *zap.Logger, interval time.Duration) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Sender{
		db:        db,
		transport: t,
		lifecycle: lc,
		bus:       b,
		logger:    logger,
		interval:  interval,
		wake:      make(chan struct{}, 1),
	}
}

// Submit appends the optimistic message and queues it for delivery. The
// returned handle is valid immediately; the outcome arrives on the bus.
func (s *Sender) Submit(d message.Draft) (conversation.Handle, error) {
	h, err := s.lifecycle.Send(d)
	if err != nil {
		return conversation.Handle{}, err
	}
	err = s.db.QueueOutbox(store.OutboxEntry{
		ClientMsgID:    h.TempID,
		ConversationID: h.ConversationID,
		Kind:           d.Kind,
		Content:        d.Content,
		ReplyTo:        d.ReplyTo,
		Attachments:    d.Attachments,
	})
	if err != nil {
		err = fmt.Errorf("queue outbox: %w", err)
		_ = s.lifecycle.ReconcileFailure(h, err)
		return h, err
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return h, nil
}

// Start begins polling the outbox for pending messages. Rows left in flight
// by a previous run are marked failed first.
func (s *Sender) Start(ctx context.Context) {
	if n, err := s.db.FailStaleSending(); err != nil {
		s.logger.Error("failed to reset stale outbox rows", zap.Error(err))
	} else if n > 0 {
		s.logger.Warn("outbox rows interrupted by restart marked failed", zap.Int64("count", n))
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop stops the sender loop and waits for an in-flight delivery to finish
// its store writes.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Sender) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-s.wake:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if ctx.Err() != nil {
			return
		}
		s.deliver(ctx, entry)
	}
}

func (s *Sender) deliver(ctx context.Context, entry store.OutboxEntry) {
	log := s.logger.With(zap.String("client_msg_id", entry.ClientMsgID), zap.String("conversation_id", entry.ConversationID))
	if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
		log.Error("failed to mark sending", zap.Error(err))
		return
	}
	h := conversation.Handle{ConversationID: entry.ConversationID, TempID: entry.ClientMsgID}

	sent, err := s.transport.Send(ctx, transport.SendRequest{
		ConversationID: entry.ConversationID,
		ClientID:       entry.ClientMsgID,
		Kind:           entry.Kind,
		Content:        entry.Content,
		ReplyTo:        entry.ReplyTo,
		Attachments:    entry.Attachments,
	})
	if err == nil && sent.ID == "" {
		err = errors.New("backend returned a message without id")
	}
	if err != nil {
		log.Error("failed to send message", zap.Error(err))
		metrics.SendsTotal.WithLabelValues("failed").Inc()
		if err := s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error()); err != nil {
			log.Error("failed to mark failed", zap.Error(err))
		}
		cause := &conversation.DeliveryError{Op: "send", MessageID: entry.ClientMsgID, Err: err}
		if err := s.lifecycle.ReconcileFailure(h, cause); err != nil {
			log.Warn("reconcile failure", zap.Error(err))
		}
		s.bus.Emit(bus.MessageSendFailed, map[string]string{
			"conversation_id": entry.ConversationID,
			"client_msg_id":   entry.ClientMsgID,
			"error":           err.Error(),
		})
		return
	}

	metrics.SendsTotal.WithLabelValues("sent").Inc()
	if err := s.db.MarkOutboxSent(entry.ClientMsgID, sent.ID); err != nil {
		log.Error("failed to mark sent", zap.Error(err))
	}
	if err := s.lifecycle.ReconcileSuccess(h, sent); err != nil {
		log.Error("reconcile success", zap.Error(err))
	}
	log.Info("message sent", zap.String("server_msg_id", sent.ID))
	s.bus.Emit(bus.MessageSendAck, map[string]string{
		"conversation_id": entry.ConversationID,
		"client_msg_id":   entry.ClientMsgID,
		"server_msg_id":   sent.ID,
	})
}
