package api

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/crmchat/internal/bus"
	"github.com/matheus3301/crmchat/internal/conversation"
	"github.com/matheus3301/crmchat/internal/message"
	"github.com/matheus3301/crmchat/internal/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const conversationServiceName = "crmchat.v1.ConversationService"

// Submitter queues a draft for delivery. Implemented by the outbox sender.
type Submitter interface {
	Submit(d message.Draft) (conversation.Handle, error)
}

// Opener starts tracking a conversation. Implemented by the sync engine.
type Opener interface {
	Open(conversationID string) (int, error)
}

type StatusRequest struct{}

type StatusResponse struct {
	Profile       string   `json:"profile"`
	State         string   `json:"state"`
	UptimeMs      int64    `json:"uptime_ms"`
	SenderID      string   `json:"sender_id"`
	Conversations []string `json:"conversations"`
}

type OpenRequest struct {
	ConversationID string `json:"conversation_id"`
}

type OpenResponse struct {
	ConversationID string            `json:"conversation_id"`
	Loaded         int               `json:"loaded"`
	Messages       []message.Message `json:"messages"`
}

type ListRequest struct {
	ConversationID string `json:"conversation_id"`
}

type ListResponse struct {
	Messages []message.Message `json:"messages"`
}

type SendRequest struct {
	ConversationID string               `json:"conversation_id"`
	Kind           message.Kind         `json:"kind,omitempty"`
	Content        string               `json:"content"`
	ReplyTo        string               `json:"reply_to,omitempty"`
	Attachments    []message.Attachment `json:"attachments,omitempty"`
}

type SendResponse struct {
	ConversationID string `json:"conversation_id"`
	TempID         string `json:"temp_id"`
}

type EditRequest struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

type EditResponse struct {
	Message message.Message `json:"message"`
}

type DeleteRequest struct {
	MessageID string `json:"message_id"`
}

type DeleteResponse struct{}

type DiscardRequest struct {
	ConversationID string `json:"conversation_id"`
	TempID         string `json:"temp_id"`
}

type DiscardResponse struct{}

type WatchRequest struct {
	// Prefix filters event kinds ("message.", "sync.", "session."). Empty
	// means every event.
	Prefix string `json:"prefix,omitempty"`
}

// Event is one bus event as streamed to clients.
type Event struct {
	ID           string `json:"id"`
	Seq          uint64 `json:"seq"`
	Kind         string `json:"kind"`
	OccurredAtMs int64  `json:"occurred_at_ms"`
	Payload      any    `json:"payload,omitempty"`
}

// ConversationService implements crmchat.v1.ConversationService.
type ConversationService struct {
	profile   string
	startedAt time.Time
	manager   *conversation.Manager
	submitter Submitter
	opener    Opener
	machine   *status.Machine
	bus       *bus.Bus
}

// NewConversationService creates the conversation service.
func NewConversationService(profile string, manager *conversation.Manager, submitter Submitter, opener Opener, machine *status.Machine, b *bus.Bus) *ConversationService {
	return &ConversationService{
		profile:   profile,
		startedAt: time.Now(),
		manager:   manager,
		submitter: submitter,
		opener:    opener,
		machine:   machine,
		bus:       b,
	}
}

func (s *ConversationService) Status(_ context.Context, _ *StatusRequest) (*StatusResponse, error) {
	return &StatusResponse{
		Profile:       s.profile,
		State:         string(s.machine.Current()),
		UptimeMs:      time.Since(s.startedAt).Milliseconds(),
		SenderID:      s.manager.Self().ID,
		Conversations: s.manager.Conversations(),
	}, nil
}

func (s *ConversationService) Open(_ context.Context, req *OpenRequest) (*OpenResponse, error) {
	if req.ConversationID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "conversation_id is required")
	}
	loaded, err := s.opener.Open(req.ConversationID)
	if err != nil {
		return nil, err
	}
	return &OpenResponse{
		ConversationID: req.ConversationID,
		Loaded:         loaded,
		Messages:       s.manager.Messages(req.ConversationID),
	}, nil
}

func (s *ConversationService) List(_ context.Context, req *ListRequest) (*ListResponse, error) {
	return &ListResponse{Messages: s.manager.Messages(req.ConversationID)}, nil
}

func (s *ConversationService) Send(_ context.Context, req *SendRequest) (*SendResponse, error) {
	h, err := s.submitter.Submit(message.Draft{
		ConversationID: req.ConversationID,
		Kind:           req.Kind,
		Content:        req.Content,
		ReplyTo:        req.ReplyTo,
		Attachments:    req.Attachments,
	})
	if err != nil {
		return nil, err
	}
	return &SendResponse{ConversationID: h.ConversationID, TempID: h.TempID}, nil
}

func (s *ConversationService) Edit(ctx context.Context, req *EditRequest) (*EditResponse, error) {
	msg, err := s.manager.Edit(ctx, req.MessageID, s.manager.Self().ID, req.Content)
	if err != nil {
		return nil, err
	}
	return &EditResponse{Message: msg}, nil
}

func (s *ConversationService) Delete(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error) {
	if err := s.manager.Delete(ctx, req.MessageID, s.manager.Self().ID); err != nil {
		return nil, err
	}
	return &DeleteResponse{}, nil
}

func (s *ConversationService) Discard(_ context.Context, req *DiscardRequest) (*DiscardResponse, error) {
	h := conversation.Handle{ConversationID: req.ConversationID, TempID: req.TempID}
	if err := s.manager.Discard(h); err != nil {
		return nil, err
	}
	return &DiscardResponse{}, nil
}

// Watch streams bus events until the client goes away.
func (s *ConversationService) Watch(req *WatchRequest, stream grpc.ServerStream) error {
	ch, unsub := s.bus.Subscribe(req.Prefix, 64)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			out, err := toStruct(Event{
				ID:           uuid.NewString(),
				Seq:          evt.Seq,
				Kind:         evt.Kind,
				OccurredAtMs: evt.Timestamp.UnixMilli(),
				Payload:      evt.Payload,
			})
			if err != nil {
				return grpcstatus.Errorf(codes.Internal, "encode event: %v", err)
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

var conversationServiceDesc = grpc.ServiceDesc{
	ServiceName: conversationServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(conversationServiceName, "Status", (*ConversationService).Status),
		unary(conversationServiceName, "Open", (*ConversationService).Open),
		unary(conversationServiceName, "List", (*ConversationService).List),
		unary(conversationServiceName, "Send", (*ConversationService).Send),
		unary(conversationServiceName, "Edit", (*ConversationService).Edit),
		unary(conversationServiceName, "Delete", (*ConversationService).Delete),
		unary(conversationServiceName, "Discard", (*ConversationService).Discard),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := &structpb.Struct{}
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				var req WatchRequest
				if err := fromStruct(in, &req); err != nil {
					return grpcstatus.Errorf(codes.InvalidArgument, "decode request: %v", err)
				}
				return srv.(*ConversationService).Watch(&req, stream)
			},
		},
	},
}
