package api

import (
	"context"

	"github.com/matheus3301/crmchat/internal/selection"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

const extractServiceName = "crmchat.v1.ExtractService"

type ExtractTextRequest struct {
	Text string `json:"text"`
}

type ExtractSelectionRequest struct {
	ConversationID string   `json:"conversation_id"`
	MessageIDs     []string `json:"message_ids"`
	// AllKinds includes non-text messages in the selection.
	AllKinds bool `json:"all_kinds,omitempty"`
}

type ExtractResponse struct {
	Fields map[string]string `json:"fields"`
}

// ExtractService implements crmchat.v1.ExtractService.
type ExtractService struct {
	aggregator *selection.Aggregator
}

// NewExtractService creates the extraction service.
func NewExtractService(aggregator *selection.Aggregator) *ExtractService {
	return &ExtractService{aggregator: aggregator}
}

func (s *ExtractService) ExtractText(_ context.Context, req *ExtractTextRequest) (*ExtractResponse, error) {
	return &ExtractResponse{Fields: s.aggregator.ExtractText(req.Text)}, nil
}

func (s *ExtractService) ExtractSelection(_ context.Context, req *ExtractSelectionRequest) (*ExtractResponse, error) {
	if req.ConversationID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "conversation_id is required")
	}
	var opts []selection.Option
	if req.AllKinds {
		opts = append(opts, selection.AllKinds())
	}
	return &ExtractResponse{Fields: s.aggregator.Extract(req.ConversationID, req.MessageIDs, opts...)}, nil
}

var extractServiceDesc = grpc.ServiceDesc{
	ServiceName: extractServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(extractServiceName, "ExtractText", (*ExtractService).ExtractText),
		unary(extractServiceName, "ExtractSelection", (*ExtractService).ExtractSelection),
	},
}
