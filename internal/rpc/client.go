package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a typed client for every daemon service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon listening on socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) SignUp(ctx context.Context, in *SignUpRequest) (*IdentityResponse, error) {
	return invoke[IdentityResponse](ctx, c.conn, AccountServiceName, "SignUp", in)
}

func (c *Client) SignIn(ctx context.Context, in *SignInRequest) (*IdentityResponse, error) {
	return invoke[IdentityResponse](ctx, c.conn, AccountServiceName, "SignIn", in)
}

func (c *Client) SignOut(ctx context.Context) error {
	_, err := invoke[Empty](ctx, c.conn, AccountServiceName, "SignOut", &Empty{})
	return err
}

func (c *Client) WhoAmI(ctx context.Context) (*IdentityResponse, error) {
	return invoke[IdentityResponse](ctx, c.conn, AccountServiceName, "WhoAmI", &Empty{})
}

func (c *Client) GetProfile(ctx context.Context, identity string) (*Profile, error) {
	return invoke[Profile](ctx, c.conn, AccountServiceName, "GetProfile", &GetProfileRequest{Identity: identity})
}

func (c *Client) UpdateProfile(ctx context.Context, in *UpdateProfileRequest) (*Profile, error) {
	return invoke[Profile](ctx, c.conn, AccountServiceName, "UpdateProfile", in)
}

func (c *Client) FindByContact(ctx context.Context, email string) (*Profile, error) {
	return invoke[Profile](ctx, c.conn, FriendServiceName, "FindByContact", &FindByContactRequest{Email: email})
}

func (c *Client) AddFriend(ctx context.Context, identity string) error {
	_, err := invoke[Empty](ctx, c.conn, FriendServiceName, "AddFriend", &AddFriendRequest{Identity: identity})
	return err
}

func (c *Client) ListFriends(ctx context.Context) ([]*Profile, error) {
	resp, err := invoke[ListFriendsResponse](ctx, c.conn, FriendServiceName, "ListFriends", &Empty{})
	if err != nil {
		return nil, err
	}
	return resp.Friends, nil
}

// WatchSummaries streams conversation summary changes until ctx is done.
func (c *Client) WatchSummaries(ctx context.Context) (*Stream[SummaryEvent], error) {
	return watch[SummaryEvent](ctx, c.conn, &watchSummariesStream, FriendServiceName, &Empty{})
}

func (c *Client) OpenChat(ctx context.Context, peer string) error {
	_, err := invoke[Empty](ctx, c.conn, ChatServiceName, "OpenChat", &OpenChatRequest{Peer: peer})
	return err
}

func (c *Client) CloseChat(ctx context.Context) error {
	_, err := invoke[Empty](ctx, c.conn, ChatServiceName, "CloseChat", &Empty{})
	return err
}

func (c *Client) SendText(ctx context.Context, text string) error {
	_, err := invoke[Empty](ctx, c.conn, ChatServiceName, "SendText", &SendTextRequest{Text: text})
	return err
}

func (c *Client) SendAttachment(ctx context.Context, name string, data []byte) error {
	_, err := invoke[Empty](ctx, c.conn, ChatServiceName, "SendAttachment", &SendAttachmentRequest{Name: name, Data: data})
	return err
}

func (c *Client) History(ctx context.Context, peer string, limit int) ([]*Message, error) {
	resp, err := invoke[HistoryResponse](ctx, c.conn, ChatServiceName, "History", &HistoryRequest{Peer: peer, Limit: limit})
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// FetchAttachment downloads the attachment carried by message msgID of the
// conversation with peer (the open conversation when peer is empty).
func (c *Client) FetchAttachment(ctx context.Context, peer, msgID string) (*FetchAttachmentResponse, error) {
	return invoke[FetchAttachmentResponse](ctx, c.conn, ChatServiceName, "FetchAttachment", &FetchAttachmentRequest{Peer: peer, MsgID: msgID})
}

// WatchChat streams events of the open conversation until ctx is done.
func (c *Client) WatchChat(ctx context.Context) (*Stream[ChatEvent], error) {
	return watch[ChatEvent](ctx, c.conn, &watchChatStream, ChatServiceName, &Empty{})
}

func (c *Client) GetStatus(ctx context.Context) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.conn, StatusServiceName, "GetStatus", &Empty{})
}

// Stream is the client side of a server-streaming call.
type Stream[T any] struct {
	stream grpc.ClientStream
}

// Recv blocks for the next message. It returns io.EOF when the server ends the stream.
func (s *Stream[T]) Recv() (*T, error) {
	m := new(T)
	if err := s.stream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func invoke[Resp any](ctx context.Context, conn *grpc.ClientConn, service, method string, in any) (*Resp, error) {
	out := new(Resp)
	if err := conn.Invoke(ctx, "/"+service+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func watch[T any](ctx context.Context, conn *grpc.ClientConn, desc *grpc.StreamDesc, service string, in any) (*Stream[T], error) {
	st, err := conn.NewStream(ctx, desc, "/"+service+"/"+desc.StreamName)
	if err != nil {
		return nil, err
	}
	if err := st.SendMsg(in); err != nil {
		return nil, err
	}
	if err := st.CloseSend(); err != nil {
		return nil, err
	}
	return &Stream[T]{stream: st}, nil
}
