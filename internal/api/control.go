// Package api exposes the daemon's state over gRPC on the session's Unix
// socket. Messages are google.protobuf.Struct values carrying the JSON
// form of the model types, so the service needs no generated code.
package api

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "chatsync.v1.Control"

// Method names of the Control service.
const (
	MethodGetStatus         = "GetStatus"
	MethodListConversations = "ListConversations"
	MethodListMessages      = "ListMessages"
	MethodOpenConversation  = "OpenConversation"
	MethodSendMessage       = "SendMessage"
	MethodListTyping        = "ListTyping"
	MethodListPinned        = "ListPinned"
	MethodListNotes         = "ListNotes"
	MethodGetDraft          = "GetDraft"
	MethodSetDraft          = "SetDraft"
	MethodWatch             = "Watch"
)

// ControlServer is the server side of the Control service.
type ControlServer interface {
	GetStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListConversations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OpenConversation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTyping(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPinned(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListNotes(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDraft(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetDraft(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Watch(*structpb.Struct, grpc.ServerStream) error
}

type unaryMethod func(ControlServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(ControlServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ControlServer).Watch(in, stream)
}

// ControlServiceDesc describes the Control service for grpc.Server.
var ControlServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodGetStatus, ControlServer.GetStatus),
		unary(MethodListConversations, ControlServer.ListConversations),
		unary(MethodListMessages, ControlServer.ListMessages),
		unary(MethodOpenConversation, ControlServer.OpenConversation),
		unary(MethodSendMessage, ControlServer.SendMessage),
		unary(MethodListTyping, ControlServer.ListTyping),
		unary(MethodListPinned, ControlServer.ListPinned),
		unary(MethodListNotes, ControlServer.ListNotes),
		unary(MethodGetDraft, ControlServer.GetDraft),
		unary(MethodSetDraft, ControlServer.SetDraft),
	},
	Streams: []grpc.StreamDesc{
		{StreamName: MethodWatch, Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "chatsync/v1/control.proto",
}

// RegisterControlServer registers srv on s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ControlServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// encode converts v to a Struct through its JSON form. v must marshal to a
// JSON object.
func encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return s, nil
}

// decode fills v from the JSON form of s.
func decode(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
