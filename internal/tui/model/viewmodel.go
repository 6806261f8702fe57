// Package model holds the TUI state fetched from the daemon.
package model

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/matheus3301/crmchat/internal/api"
	"github.com/matheus3301/crmchat/internal/message"
)

// Backend is the subset of the daemon client the TUI uses.
type Backend interface {
	Status(ctx context.Context) (*api.StatusResponse, error)
	Open(ctx context.Context, conversationID string) (*api.OpenResponse, error)
	List(ctx context.Context, conversationID string) (*api.ListResponse, error)
	Send(ctx context.Context, req *api.SendRequest) (*api.SendResponse, error)
	Edit(ctx context.Context, messageID, content string) (*api.EditResponse, error)
	Delete(ctx context.Context, messageID string) error
	Discard(ctx context.Context, conversationID, tempID string) error
	ExtractSelection(ctx context.Context, req *api.ExtractSelectionRequest) (*api.ExtractResponse, error)
}

// ErrNoConversation is returned by actions that need an open conversation.
var ErrNoConversation = errors.New("no conversation open")

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	ID    string
	Count int
	Last  *message.Message
}

// ViewModel caches daemon state between redraws.
type ViewModel struct {
	mu sync.RWMutex

	backend       Backend
	status        *api.StatusResponse
	conversations []ConversationSummary
	messages      []message.Message
	active        string
	fields        map[string]string
}

// NewViewModel creates a view model backed by the daemon client.
func NewViewModel(b Backend) *ViewModel {
	return &ViewModel{backend: b}
}

// LoadStatus fetches the daemon status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.backend.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = resp
	vm.mu.Unlock()
	return nil
}

// LoadConversations rebuilds the conversation list from the conversations
// the daemon tracks, most recent activity first.
func (vm *ViewModel) LoadConversations(ctx context.Context) error {
	if err := vm.LoadStatus(ctx); err != nil {
		return err
	}
	vm.mu.RLock()
	ids := append([]string(nil), vm.status.Conversations...)
	vm.mu.RUnlock()

	summaries := make([]ConversationSummary, 0, len(ids))
	for _, id := range ids {
		resp, err := vm.backend.List(ctx, id)
		if err != nil {
			return err
		}
		s := ConversationSummary{ID: id, Count: len(resp.Messages)}
		if n := len(resp.Messages); n > 0 {
			last := resp.Messages[n-1]
			s.Last = &last
		}
		summaries = append(summaries, s)
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return lastAt(summaries[i]).After(lastAt(summaries[j]))
	})

	vm.mu.Lock()
	vm.conversations = summaries
	vm.mu.Unlock()
	return nil
}

// OpenConversation starts tracking id on the daemon and makes it active.
func (vm *ViewModel) OpenConversation(ctx context.Context, id string) error {
	resp, err := vm.backend.Open(ctx, id)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.active = id
	vm.messages = resp.Messages
	vm.mu.Unlock()
	return nil
}

// Refresh reloads the active conversation.
func (vm *ViewModel) Refresh(ctx context.Context) error {
	id := vm.Active()
	if id == "" {
		return ErrNoConversation
	}
	resp, err := vm.backend.List(ctx, id)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	if vm.active == id {
		vm.messages = resp.Messages
	}
	vm.mu.Unlock()
	return nil
}

// SendText queues text in the active conversation and returns the temporary id.
func (vm *ViewModel) SendText(ctx context.Context, text, replyTo string) (string, error) {
	id := vm.Active()
	if id == "" {
		return "", ErrNoConversation
	}
	resp, err := vm.backend.Send(ctx, &api.SendRequest{
		ConversationID: id,
		Kind:           message.KindText,
		Content:        text,
		ReplyTo:        replyTo,
	})
	if err != nil {
		return "", err
	}
	return resp.TempID, vm.Refresh(ctx)
}

// EditMessage replaces the content of a sent message.
func (vm *ViewModel) EditMessage(ctx context.Context, messageID, content string) error {
	if _, err := vm.backend.Edit(ctx, messageID, content); err != nil {
		return err
	}
	return vm.Refresh(ctx)
}

// DeleteMessage deletes a sent message.
func (vm *ViewModel) DeleteMessage(ctx context.Context, messageID string) error {
	if err := vm.backend.Delete(ctx, messageID); err != nil {
		return err
	}
	return vm.Refresh(ctx)
}

// DiscardMessage drops a pending or failed message from the active conversation.
func (vm *ViewModel) DiscardMessage(ctx context.Context, tempID string) error {
	id := vm.Active()
	if id == "" {
		return ErrNoConversation
	}
	if err := vm.backend.Discard(ctx, id, tempID); err != nil {
		return err
	}
	return vm.Refresh(ctx)
}

// Prefill extracts one record from the given messages of the active conversation.
func (vm *ViewModel) Prefill(ctx context.Context, ids []string) (map[string]string, error) {
	id := vm.Active()
	if id == "" {
		return nil, ErrNoConversation
	}
	resp, err := vm.backend.ExtractSelection(ctx, &api.ExtractSelectionRequest{
		ConversationID: id,
		MessageIDs:     ids,
	})
	if err != nil {
		return nil, err
	}
	vm.mu.Lock()
	vm.fields = resp.Fields
	vm.mu.Unlock()
	return resp.Fields, nil
}

// Active returns the id of the open conversation.
func (vm *ViewModel) Active() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.active
}

// Close forgets the active conversation.
func (vm *ViewModel) Close() {
	vm.mu.Lock()
	vm.active = ""
	vm.messages = nil
	vm.mu.Unlock()
}

// Status returns the last fetched daemon status, or nil.
func (vm *ViewModel) Status() *api.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Conversations returns a snapshot of the conversation list.
func (vm *ViewModel) Conversations() []ConversationSummary {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.conversations
}

// Messages returns a snapshot of the active conversation, oldest first.
func (vm *ViewModel) Messages() []message.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.messages
}

// Message looks up id in the active conversation.
func (vm *ViewModel) Message(id string) (message.Message, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, m := range vm.messages {
		if m.ID == id {
			return m, true
		}
	}
	return message.Message{}, false
}

// Fields returns the last prefill result.
func (vm *ViewModel) Fields() map[string]string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.fields
}

func lastAt(s ConversationSummary) time.Time {
	if s.Last == nil {
		return time.Time{}
	}
	return s.Last.CreatedAt
}
