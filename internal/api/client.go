package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn   grpc.ClientConnInterface
	closer io.Closer
}

// Dial connects to the daemon's Unix domain socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn, closer: conn}, nil
}

// NewClient wraps an existing connection. Close is a no-op.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{conn: cc}
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func conversationMethod(name string) string { return "/" + conversationServiceName + "/" + name }

func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	return invoke[StatusRequest, StatusResponse](ctx, c.conn, conversationMethod("Status"), &StatusRequest{})
}

func (c *Client) Open(ctx context.Context, conversationID string) (*OpenResponse, error) {
	return invoke[OpenRequest, OpenResponse](ctx, c.conn, conversationMethod("Open"), &OpenRequest{ConversationID: conversationID})
}

func (c *Client) List(ctx context.Context, conversationID string) (*ListResponse, error) {
	return invoke[ListRequest, ListResponse](ctx, c.conn, conversationMethod("List"), &ListRequest{ConversationID: conversationID})
}

func (c *Client) Send(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	return invoke[SendRequest, SendResponse](ctx, c.conn, conversationMethod("Send"), req)
}

func (c *Client) Edit(ctx context.Context, messageID, content string) (*EditResponse, error) {
	return invoke[EditRequest, EditResponse](ctx, c.conn, conversationMethod("Edit"), &EditRequest{MessageID: messageID, Content: content})
}

func (c *Client) Delete(ctx context.Context, messageID string) error {
	_, err := invoke[DeleteRequest, DeleteResponse](ctx, c.conn, conversationMethod("Delete"), &DeleteRequest{MessageID: messageID})
	return err
}

func (c *Client) Discard(ctx context.Context, conversationID, tempID string) error {
	_, err := invoke[DiscardRequest, DiscardResponse](ctx, c.conn, conversationMethod("Discard"), &DiscardRequest{ConversationID: conversationID, TempID: tempID})
	return err
}

// Watch streams events matching prefix to fn until ctx ends, the stream
// fails or fn returns an error.
func (c *Client) Watch(ctx context.Context, prefix string, fn func(Event) error) error {
	stream, err := c.conn.NewStream(ctx, &conversationServiceDesc.Streams[0], conversationMethod("Watch"))
	if err != nil {
		return err
	}
	in, err := toStruct(&WatchRequest{Prefix: prefix})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(in); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		out := &structpb.Struct{}
		if err := stream.RecvMsg(out); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var evt Event
		if err := fromStruct(out, &evt); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
}

func (c *Client) ExtractText(ctx context.Context, text string) (*ExtractResponse, error) {
	return invoke[ExtractTextRequest, ExtractResponse](ctx, c.conn, "/"+extractServiceName+"/ExtractText", &ExtractTextRequest{Text: text})
}

func (c *Client) ExtractSelection(ctx context.Context, req *ExtractSelectionRequest) (*ExtractResponse, error) {
	return invoke[ExtractSelectionRequest, ExtractResponse](ctx, c.conn, "/"+extractServiceName+"/ExtractSelection", req)
}

func (c *Client) ExportTemplates(ctx context.Context) (*ExportResponse, error) {
	return invoke[ExportRequest, ExportResponse](ctx, c.conn, "/"+templateServiceName+"/Export", &ExportRequest{})
}

func (c *Client) ImportTemplates(ctx context.Context, document string) (*ImportResponse, error) {
	return invoke[ImportRequest, ImportResponse](ctx, c.conn, "/"+templateServiceName+"/Import", &ImportRequest{Document: document})
}
