// Package conversation owns the client-side message list of every open
// conversation: optimistic sends, reconciliation against server results,
// edits, deletes and pushed messages.
package conversation

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/crmchat/internal/bus"
	"github.com/matheus3301/crmchat/internal/message"
	"github.com/matheus3301/crmchat/internal/metrics"
	"go.uber.org/zap"
)

// Mutator applies edits and deletes on the server. Implemented by the transport.
type Mutator interface {
	Edit(ctx context.Context, conversationID, id, content string) (message.Message, error)
	Delete(ctx context.Context, conversationID, id string) error
}

// Identity is the local user the manager sends as.
type Identity struct {
	ID   string
	Name string
}

// Handle identifies an optimistic message until it is reconciled.
type Handle struct {
	ConversationID string
	TempID         string
}

// thread is the arena for one conversation: messages by id plus display order
// (oldest first).
type thread struct {
	order []string
	byID  map[string]*message.Message
}

func newThread() *thread {
	return &thread{byID: make(map[string]*message.Message)}
}

func (t *thread) append(m *message.Message) {
	t.order = append(t.order, m.ID)
	t.byID[m.ID] = m
}

func (t *thread) remove(id string) {
	if i := slices.Index(t.order, id); i >= 0 {
		t.order = slices.Delete(t.order, i, i+1)
	}
	delete(t.byID, id)
}

// Manager is the single owner of the conversation message lists. All
// mutations are serialized by one mutex; transport calls never hold it.
type Manager struct {
	mu      sync.Mutex
	threads map[string]*thread
	index   map[string]string // message id -> conversation id

	self    Identity
	mutator Mutator
	bus     *bus.Bus
	logger  *zap.Logger
	now     func() time.Time
}

// NewManager creates a manager sending as self. b may be nil.
func NewManager(self Identity, mutator Mutator, b *bus.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		threads: make(map[string]*thread),
		index:   make(map[string]string),
		self:    self,
		mutator: mutator,
		bus:     b,
		logger:  logger,
		now:     time.Now,
	}
}

// Self returns the identity messages are sent as.
func (m *Manager) Self() Identity {
	return m.self
}

// Open makes sure a list exists for conversationID.
func (m *Manager) Open(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thread(conversationID)
}

// Conversations returns the ids of all open conversations, sorted.
func (m *Manager) Conversations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.threads))
}

// Messages returns a snapshot of the conversation, most recent last.
func (m *Manager) Messages(conversationID string) []message.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[conversationID]
	if !ok {
		return nil
	}
	out := make([]message.Message, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id].Clone())
	}
	return out
}

// Get returns a copy of the message with the given id.
func (m *Manager) Get(id string) (message.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := m.lookup(id)
	if msg == nil {
		return message.Message{}, false
	}
	return msg.Clone(), true
}

// Send appends an optimistic message in the sending state and returns the
// handle used to reconcile it. Each call creates a distinct entry.
func (m *Manager) Send(d message.Draft) (Handle, error) {
	if d.ConversationID == "" {
		return Handle{}, fmt.Errorf("%w: missing conversation id", ErrInvalidDraft)
	}
	if d.Kind == "" {
		d.Kind = message.KindText
	}
	if !d.Kind.Valid() || !d.Kind.UserMutable() {
		return Handle{}, fmt.Errorf("%w: cannot send %q messages", ErrInvalidDraft, d.Kind)
	}
	if strings.TrimSpace(d.Content) == "" && len(d.Attachments) == 0 {
		return Handle{}, fmt.Errorf("%w: empty message", ErrInvalidDraft)
	}

	msg := &message.Message{
		ID:             message.NewTempID(),
		ConversationID: d.ConversationID,
		SenderID:       m.self.ID,
		SenderName:     m.self.Name,
		Kind:           d.Kind,
		Content:        d.Content,
		CreatedAt:      m.now(),
		Status:         message.StatusSending,
		ReplyTo:        d.ReplyTo,
		Attachments:    slices.Clone(d.Attachments),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.thread(d.ConversationID).append(msg)
	m.index[msg.ID] = d.ConversationID
	m.bus.Emit(bus.MessageQueued, bus.MessageRef{ConversationID: d.ConversationID, MessageID: msg.ID})
	return Handle{ConversationID: d.ConversationID, TempID: msg.ID}, nil
}

// ReconcileSuccess replaces the optimistic entry with the server's message in
// the same slot. If the entry is gone the server message is appended; if the
// server message already arrived by push, the optimistic entry is dropped.
func (m *Manager) ReconcileSuccess(h Handle, server message.Message) error {
	if server.ID == "" {
		return fmt.Errorf("reconcile %s: server message has no id", h.TempID)
	}
	// The optimistic slot lives in the handle's conversation whatever the
	// backend echoes back.
	if server.ConversationID != h.ConversationID {
		if server.ConversationID != "" {
			m.logger.Warn("server message names another conversation",
				zap.String("temp_id", h.TempID), zap.String("conversation_id", h.ConversationID),
				zap.String("server_conversation_id", server.ConversationID))
		}
		server.ConversationID = h.ConversationID
	}
	server.Normalize()
	if server.Status == message.StatusSending {
		server.Status = message.StatusSent
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.thread(server.ConversationID)
	ref := bus.MessageRef{ConversationID: server.ConversationID, MessageID: server.ID, PreviousID: h.TempID}
	msg := server.Clone()
	pos := slices.Index(t.order, h.TempID)

	switch existing, dup := t.byID[server.ID]; {
	case dup:
		*existing = msg
		if pos >= 0 {
			t.remove(h.TempID)
			delete(m.index, h.TempID)
		}
		metrics.ReconcileTotal.WithLabelValues("merged").Inc()
	case pos >= 0:
		t.order[pos] = server.ID
		delete(t.byID, h.TempID)
		delete(m.index, h.TempID)
		t.byID[server.ID] = &msg
		m.index[server.ID] = server.ConversationID
		metrics.ReconcileTotal.WithLabelValues("replaced").Inc()
	default:
		m.logger.Info("optimistic message gone, appending confirmed message",
			zap.String("temp_id", h.TempID), zap.String("msg_id", server.ID))
		t.append(&msg)
		m.index[server.ID] = server.ConversationID
		metrics.ReconcileTotal.WithLabelValues("appended").Inc()
	}
	m.bus.Emit(bus.MessageConfirmed, ref)
	return nil
}

// ReconcileFailure marks the optimistic entry failed, keeping its content and
// position. A second failure report is a no-op.
func (m *Manager) ReconcileFailure(h Handle, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := m.lookup(h.TempID)
	if msg == nil {
		m.logger.Warn("failure for unknown optimistic message", zap.String("temp_id", h.TempID))
		return fmt.Errorf("reconcile failure %s: %w", h.TempID, ErrNotFound)
	}
	if msg.Status == message.StatusFailed {
		return nil
	}
	if !msg.Status.CanTransition(message.StatusFailed) {
		return fmt.Errorf("reconcile failure %s (%s): %w", h.TempID, msg.Status, ErrInvalidTransition)
	}
	msg.Status = message.StatusFailed
	metrics.ReconcileTotal.WithLabelValues("failed").Inc()

	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	m.logger.Info("message send failed", zap.String("temp_id", h.TempID), zap.String("reason", reason))
	m.bus.Emit(bus.MessageFailed, bus.MessageRef{ConversationID: msg.ConversationID, MessageID: msg.ID})
	return nil
}

// Discard removes a failed optimistic message the user chose not to retry.
func (m *Manager) Discard(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := m.lookup(h.TempID)
	if msg == nil {
		return fmt.Errorf("discard %s: %w", h.TempID, ErrNotFound)
	}
	if msg.Status != message.StatusFailed {
		return fmt.Errorf("discard %s: %w", h.TempID, ErrPending)
	}
	m.removeLocked(msg)
	m.bus.Emit(bus.MessageDiscarded, bus.MessageRef{ConversationID: msg.ConversationID, MessageID: msg.ID})
	return nil
}

// Edit changes the content of a confirmed text message owned by senderID.
// The list is only updated once the server accepts the edit.
func (m *Manager) Edit(ctx context.Context, id, senderID, content string) (message.Message, error) {
	if strings.TrimSpace(content) == "" {
		return message.Message{}, fmt.Errorf("edit %s: %w: empty content", id, ErrInvalidDraft)
	}
	cur, err := m.checkMutable("edit", id, senderID)
	if err != nil {
		return message.Message{}, err
	}
	if cur.Kind != message.KindText {
		return message.Message{}, fmt.Errorf("edit %s: %w", id, ErrNotEditable)
	}
	if message.IsTemporaryID(id) {
		return message.Message{}, fmt.Errorf("edit %s: %w", id, ErrPending)
	}
	if m.mutator == nil {
		return message.Message{}, &DeliveryError{Op: "edit", MessageID: id, Err: fmt.Errorf("no transport configured")}
	}

	updated, err := m.mutator.Edit(ctx, cur.ConversationID, id, content)
	if err != nil {
		return message.Message{}, &DeliveryError{Op: "edit", MessageID: id, Err: err}
	}
	updated.ID = id
	updated.ConversationID = cur.ConversationID
	updated.Edited = true
	updated.Normalize()

	m.mu.Lock()
	defer m.mu.Unlock()
	msg := m.lookup(id)
	if msg == nil {
		m.logger.Warn("edited message left the list before the response", zap.String("msg_id", id))
		return updated.Clone(), nil
	}
	*msg = updated.Clone()
	m.bus.Emit(bus.MessageEdited, bus.MessageRef{ConversationID: msg.ConversationID, MessageID: id})
	return updated, nil
}

// Delete removes a message owned by senderID after the server confirms.
// A failed optimistic message is removed locally. Unknown ids leave the list
// unchanged and return ErrNotFound.
func (m *Manager) Delete(ctx context.Context, id, senderID string) error {
	cur, err := m.checkMutable("delete", id, senderID)
	if err != nil {
		return err
	}
	if message.IsTemporaryID(id) {
		return m.Discard(Handle{ConversationID: cur.ConversationID, TempID: id})
	}
	if m.mutator == nil {
		return &DeliveryError{Op: "delete", MessageID: id, Err: fmt.Errorf("no transport configured")}
	}
	if err := m.mutator.Delete(ctx, cur.ConversationID, id); err != nil {
		return &DeliveryError{Op: "delete", MessageID: id, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if msg := m.lookup(id); msg != nil {
		m.removeLocked(msg)
	}
	m.bus.Emit(bus.MessageDeleted, bus.MessageRef{ConversationID: cur.ConversationID, MessageID: id})
	return nil
}

// AppendIncoming adds a server-pushed or fetched message. Ids already in the
// list are ignored. It reports whether the message was added.
func (m *Manager) AppendIncoming(msg message.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(msg)
}

// Load appends a fetched page in order, skipping known ids, and returns the
// number of messages added.
func (m *Manager) Load(conversationID string, page []message.Message) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thread(conversationID)
	added := 0
	for _, msg := range page {
		if msg.ConversationID == "" {
			msg.ConversationID = conversationID
		}
		if m.appendLocked(msg) {
			added++
		}
	}
	return added
}

// Merge folds a page fetched from the server into the list. New ids are
// appended like Load; known ids take the server's delivery status when it is
// further along and the server's content when it changed there. It returns
// the number of messages added and updated.
func (m *Manager) Merge(conversationID string, page []message.Message) (added, updated int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thread(conversationID)
	for _, msg := range page {
		if msg.ConversationID == "" {
			msg.ConversationID = conversationID
		}
		if m.appendLocked(msg) {
			added++
			continue
		}
		if m.refreshLocked(msg) {
			updated++
		}
	}
	return added, updated
}

// Restore puts back an optimistic message that survived a restart in the
// outbox. Only temporary ids in the sending or failed state are accepted and
// known ids are left alone. Sender fields default to the manager's identity.
func (m *Manager) Restore(msg message.Message) bool {
	if !message.IsTemporaryID(msg.ID) || msg.ConversationID == "" {
		return false
	}
	if msg.Status != message.StatusSending && msg.Status != message.StatusFailed {
		return false
	}
	if msg.Kind == "" {
		msg.Kind = message.KindText
	}
	if msg.SenderID == "" {
		msg.SenderID, msg.SenderName = m.self.ID, m.self.Name
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.index[msg.ID]; ok {
		return false
	}
	c := msg.Clone()
	m.thread(msg.ConversationID).append(&c)
	m.index[msg.ID] = msg.ConversationID
	kind := bus.MessageQueued
	if msg.Status == message.StatusFailed {
		kind = bus.MessageFailed
	}
	m.bus.Emit(kind, bus.MessageRef{ConversationID: msg.ConversationID, MessageID: msg.ID})
	return true
}

// UpdateStatus applies a server-driven delivery status change. Repeating the
// current status is a no-op; going backwards is rejected.
func (m *Manager) UpdateStatus(id string, status message.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := m.lookup(id)
	if msg == nil {
		return fmt.Errorf("update status %s: %w", id, ErrNotFound)
	}
	if msg.Status == status {
		return nil
	}
	if !m.advanceLocked(msg, status) {
		return fmt.Errorf("update status %s (%s -> %s): %w", id, msg.Status, status, ErrInvalidTransition)
	}
	return nil
}

func (m *Manager) advanceLocked(msg *message.Message, status message.Status) bool {
	if !msg.Kind.UserMutable() || !msg.Status.CanTransition(status) {
		return false
	}
	msg.Status = status
	m.bus.Emit(bus.MessageStatus, bus.MessageRef{ConversationID: msg.ConversationID, MessageID: msg.ID})
	return true
}

// refreshLocked applies the server copy of a known message. A stale copy
// never moves the status backwards.
func (m *Manager) refreshLocked(fetched message.Message) bool {
	cur := m.lookup(fetched.ID)
	if cur == nil || message.IsTemporaryID(fetched.ID) {
		return false
	}
	fetched.Normalize()
	changed := false
	if fetched.Status != cur.Status && m.advanceLocked(cur, fetched.Status) {
		changed = true
	}
	if fetched.Content != cur.Content || (fetched.Edited && !cur.Edited) {
		cur.Content = fetched.Content
		cur.Attachments = slices.Clone(fetched.Attachments)
		cur.Edited = true
		m.bus.Emit(bus.MessageEdited, bus.MessageRef{ConversationID: cur.ConversationID, MessageID: cur.ID})
		changed = true
	}
	return changed
}

// Reset drops the list of a conversation.
func (m *Manager) Reset(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[conversationID]
	if !ok {
		return
	}
	for _, id := range t.order {
		delete(m.index, id)
	}
	delete(m.threads, conversationID)
}

func (m *Manager) checkMutable(op, id, senderID string) (message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := m.lookup(id)
	if msg == nil {
		m.logger.Warn(op+" on unknown message", zap.String("msg_id", id))
		return message.Message{}, fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	if !msg.Kind.UserMutable() {
		return message.Message{}, fmt.Errorf("%s %s: %w", op, id, ErrNotEditable)
	}
	if msg.SenderID != senderID {
		return message.Message{}, fmt.Errorf("%s %s: %w", op, id, ErrNotOwner)
	}
	return msg.Clone(), nil
}

func (m *Manager) appendLocked(msg message.Message) bool {
	if msg.ID == "" || msg.ConversationID == "" {
		return false
	}
	if _, ok := m.index[msg.ID]; ok {
		return false
	}
	msg.Normalize()
	c := msg.Clone()
	m.thread(msg.ConversationID).append(&c)
	m.index[msg.ID] = msg.ConversationID
	m.bus.Emit(bus.MessageIncoming, bus.MessageRef{ConversationID: msg.ConversationID, MessageID: msg.ID})
	return true
}

func (m *Manager) removeLocked(msg *message.Message) {
	if t, ok := m.threads[msg.ConversationID]; ok {
		t.remove(msg.ID)
	}
	delete(m.index, msg.ID)
}

func (m *Manager) lookup(id string) *message.Message {
	conv, ok := m.index[id]
	if !ok {
		return nil
	}
	t, ok := m.threads[conv]
	if !ok {
		return nil
	}
	return t.byID[id]
}

func (m *Manager) thread(conversationID string) *thread {
	t, ok := m.threads[conversationID]
	if !ok {
		t = newThread()
		m.threads[conversationID] = t
	}
	return t
}
