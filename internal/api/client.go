package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the Control service.
type Client struct {
	conn grpc.ClientConnInterface
}

// Dial connects to a daemon's Unix socket.
func Dial(socketPath string) (*Client, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient("unix://"+socketPath, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to daemon: %w", err)
	}
	return NewClient(conn), conn, nil
}

// NewClient wraps an existing connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Call invokes a unary method with req encoded as a Struct and decodes the
// reply into resp. req may be nil.
func (c *Client) Call(ctx context.Context, method string, req, resp any) error {
	in := new(structpb.Struct)
	if req != nil {
		var err error
		if in, err = encode(req); err != nil {
			return err
		}
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(method), in, out); err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	return decode(out, resp)
}

func (c *Client) Status(ctx context.Context) (StatusReply, error) {
	var r StatusReply
	return r, c.Call(ctx, MethodGetStatus, nil, &r)
}

func (c *Client) Conversations(ctx context.Context) (ConversationsReply, error) {
	var r ConversationsReply
	return r, c.Call(ctx, MethodListConversations, nil, &r)
}

func (c *Client) Messages(ctx context.Context, conversationID string) (MessagesReply, error) {
	var r MessagesReply
	return r, c.Call(ctx, MethodListMessages, ConversationRequest{ConversationID: conversationID}, &r)
}

func (c *Client) Open(ctx context.Context, conversationID string) (ConversationReply, error) {
	var r ConversationReply
	return r, c.Call(ctx, MethodOpenConversation, ConversationRequest{ConversationID: conversationID}, &r)
}

func (c *Client) Send(ctx context.Context, req SendRequest) (MessageReply, error) {
	var r MessageReply
	return r, c.Call(ctx, MethodSendMessage, req, &r)
}

func (c *Client) Typing(ctx context.Context) (TypingReply, error) {
	var r TypingReply
	return r, c.Call(ctx, MethodListTyping, nil, &r)
}

func (c *Client) Pins(ctx context.Context, conversationID string) (PinsReply, error) {
	var r PinsReply
	return r, c.Call(ctx, MethodListPinned, ConversationRequest{ConversationID: conversationID}, &r)
}

func (c *Client) Notes(ctx context.Context) (NotesReply, error) {
	var r NotesReply
	return r, c.Call(ctx, MethodListNotes, nil, &r)
}

func (c *Client) Draft(ctx context.Context, conversationID string) (DraftReply, error) {
	var r DraftReply
	return r, c.Call(ctx, MethodGetDraft, ConversationRequest{ConversationID: conversationID}, &r)
}

func (c *Client) SetDraft(ctx context.Context, conversationID, text string) (DraftReply, error) {
	var r DraftReply
	return r, c.Call(ctx, MethodSetDraft, DraftRequest{ConversationID: conversationID, Text: text}, &r)
}

// WatchStream receives relayed bus events.
type WatchStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event.
func (w *WatchStream) Recv() (Event, error) {
	out := new(structpb.Struct)
	if err := w.stream.RecvMsg(out); err != nil {
		return Event{}, err
	}
	var evt Event
	return evt, decode(out, &evt)
}

// Watch opens an event stream filtered by kind prefix. Cancel ctx to end
// it.
func (c *Client) Watch(ctx context.Context, prefix string) (*WatchStream, error) {
	desc := &ControlServiceDesc.Streams[0]
	stream, err := c.conn.NewStream(ctx, desc, fullMethod(MethodWatch))
	if err != nil {
		return nil, err
	}
	in, err := encode(WatchRequest{Prefix: prefix})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &WatchStream{stream: stream}, nil
}
