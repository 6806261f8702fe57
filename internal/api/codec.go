// Package api exposes the daemon over gRPC. Services are described by
// hand-written grpc.ServiceDesc values whose request and response messages are
// google.protobuf.Struct documents carrying the JSON form of Go types.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/matheus3301/crmchat/internal/conversation"
	"github.com/matheus3301/crmchat/internal/templates"
	"github.com/matheus3301/crmchat/internal/transport"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// toStruct converts a JSON-encodable value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return s, nil
}

// fromStruct decodes a Struct into v.
func fromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	b, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// unary builds a method whose handler decodes Req, calls fn and encodes Resp.
func unary[S, Req, Resp any](service, method string, fn func(srv S, ctx context.Context, req *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := &structpb.Struct{}
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, raw any) (any, error) {
				var req Req
				if err := fromStruct(raw.(*structpb.Struct), &req); err != nil {
					return nil, grpcstatus.Errorf(codes.InvalidArgument, "decode request: %v", err)
				}
				resp, err := fn(srv.(S), ctx, &req)
				if err != nil {
					return nil, toStatus(err)
				}
				return toStruct(resp)
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + service + "/" + method}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// invoke performs a unary call from the client side.
func invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, fullMethod string, req *Req) (*Resp, error) {
	in, err := toStruct(req)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := cc.Invoke(ctx, fullMethod, in, out); err != nil {
		return nil, err
	}
	var resp Resp
	if err := fromStruct(out, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// toStatus maps domain errors onto gRPC codes.
func toStatus(err error) error {
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}
	var (
		verr *templates.ValidationError
		derr *conversation.DeliveryError
		serr *transport.StatusError
	)
	switch {
	case errors.As(err, &verr), errors.Is(err, conversation.ErrInvalidDraft):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, conversation.ErrNotFound):
		return grpcstatus.Error(codes.NotFound, err.Error())
	case errors.Is(err, conversation.ErrNotOwner):
		return grpcstatus.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, conversation.ErrNotEditable),
		errors.Is(err, conversation.ErrPending),
		errors.Is(err, conversation.ErrInvalidTransition):
		return grpcstatus.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &serr) && serr.Code == 404:
		return grpcstatus.Error(codes.NotFound, err.Error())
	case errors.As(err, &derr), errors.Is(err, transport.ErrNotConfigured):
		return grpcstatus.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return grpcstatus.Error(codes.Canceled, err.Error())
	default:
		return grpcstatus.Error(codes.Internal, err.Error())
	}
}
