package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// Service names.
const (
	AccountServiceName = "chatter.v1.AccountService"
	FriendServiceName  = "chatter.v1.FriendService"
	ChatServiceName    = "chatter.v1.ChatService"
	StatusServiceName  = "chatter.v1.StatusService"
)

// Sender is the server side of a server-streaming call.
type Sender[T any] interface {
	Send(*T) error
	Context() context.Context
}

// AccountServer manages accounts and the signed-in identity.
type AccountServer interface {
	SignUp(context.Context, *SignUpRequest) (*IdentityResponse, error)
	SignIn(context.Context, *SignInRequest) (*IdentityResponse, error)
	SignOut(context.Context, *Empty) (*Empty, error)
	WhoAmI(context.Context, *Empty) (*IdentityResponse, error)
	GetProfile(context.Context, *GetProfileRequest) (*Profile, error)
	UpdateProfile(context.Context, *UpdateProfileRequest) (*Profile, error)
}

// FriendServer manages the friend graph and conversation summaries.
type FriendServer interface {
	FindByContact(context.Context, *FindByContactRequest) (*Profile, error)
	AddFriend(context.Context, *AddFriendRequest) (*Empty, error)
	ListFriends(context.Context, *Empty) (*ListFriendsResponse, error)
	WatchSummaries(*Empty, Sender[SummaryEvent]) error
}

// ChatServer drives the open conversation.
type ChatServer interface {
	OpenChat(context.Context, *OpenChatRequest) (*Empty, error)
	CloseChat(context.Context, *Empty) (*Empty, error)
	SendText(context.Context, *SendTextRequest) (*Empty, error)
	SendAttachment(context.Context, *SendAttachmentRequest) (*Empty, error)
	History(context.Context, *HistoryRequest) (*HistoryResponse, error)
	FetchAttachment(context.Context, *FetchAttachmentRequest) (*FetchAttachmentResponse, error)
	WatchChat(*Empty, Sender[ChatEvent]) error
}

// StatusServer reports daemon health.
type StatusServer interface {
	GetStatus(context.Context, *Empty) (*StatusResponse, error)
}

var AccountServiceDesc = grpc.ServiceDesc{
	ServiceName: AccountServiceName,
	HandlerType: (*AccountServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(AccountServiceName, "SignUp", AccountServer.SignUp),
		unary(AccountServiceName, "SignIn", AccountServer.SignIn),
		unary(AccountServiceName, "SignOut", AccountServer.SignOut),
		unary(AccountServiceName, "WhoAmI", AccountServer.WhoAmI),
		unary(AccountServiceName, "GetProfile", AccountServer.GetProfile),
		unary(AccountServiceName, "UpdateProfile", AccountServer.UpdateProfile),
	},
}

var watchSummariesStream = serverStream("WatchSummaries", FriendServer.WatchSummaries)

var FriendServiceDesc = grpc.ServiceDesc{
	ServiceName: FriendServiceName,
	HandlerType: (*FriendServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(FriendServiceName, "FindByContact", FriendServer.FindByContact),
		unary(FriendServiceName, "AddFriend", FriendServer.AddFriend),
		unary(FriendServiceName, "ListFriends", FriendServer.ListFriends),
	},
	Streams: []grpc.StreamDesc{watchSummariesStream},
}

var watchChatStream = serverStream("WatchChat", ChatServer.WatchChat)

var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ChatServiceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ChatServiceName, "OpenChat", ChatServer.OpenChat),
		unary(ChatServiceName, "CloseChat", ChatServer.CloseChat),
		unary(ChatServiceName, "SendText", ChatServer.SendText),
		unary(ChatServiceName, "SendAttachment", ChatServer.SendAttachment),
		unary(ChatServiceName, "History", ChatServer.History),
		unary(ChatServiceName, "FetchAttachment", ChatServer.FetchAttachment),
	},
	Streams: []grpc.StreamDesc{watchChatStream},
}

var StatusServiceDesc = grpc.ServiceDesc{
	ServiceName: StatusServiceName,
	HandlerType: (*StatusServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(StatusServiceName, "GetStatus", StatusServer.GetStatus),
	},
}

// Register installs every service on srv.
func Register(srv grpc.ServiceRegistrar, account AccountServer, friends FriendServer, chat ChatServer, status StatusServer) {
	srv.RegisterService(&AccountServiceDesc, account)
	srv.RegisterService(&FriendServiceDesc, friends)
	srv.RegisterService(&ChatServiceDesc, chat)
	srv.RegisterService(&StatusServiceDesc, status)
}

func unary[S, Req, Resp any](service, method string, fn func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func serverStream[S, Req, Resp any](name string, fn func(S, *Req, Sender[Resp]) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    name,
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(Req)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return fn(srv.(S), in, &streamSender[Resp]{stream})
		},
	}
}

type streamSender[T any] struct {
	grpc.ServerStream
}

func (s *streamSender[T]) Send(m *T) error { return s.SendMsg(m) }
