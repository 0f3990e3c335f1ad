package api

import (
	"context"
	"strings"

	"github.com/matheus3301/chatter/internal/attachment"
	"github.com/matheus3301/chatter/internal/chat"
	"github.com/matheus3301/chatter/internal/convlog"
	"github.com/matheus3301/chatter/internal/objstore"
	"github.com/matheus3301/chatter/internal/rpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// ChatService implements rpc.ChatServer on top of the daemon's chat session.
type ChatService struct {
	identity Identity
	session  *chat.Session
	logs     *convlog.Log
	objects  *objstore.Store
	resolver *attachment.Resolver
}

// NewChatService creates the chat service.
func NewChatService(id Identity, session *chat.Session, logs *convlog.Log, objects *objstore.Store, resolver *attachment.Resolver) *ChatService {
	return &ChatService{identity: id, session: session, logs: logs, objects: objects, resolver: resolver}
}

func (s *ChatService) OpenChat(ctx context.Context, req *rpc.OpenChatRequest) (*rpc.Empty, error) {
	if err := s.session.Open(ctx, req.Peer); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.Empty{}, nil
}

func (s *ChatService) CloseChat(_ context.Context, _ *rpc.Empty) (*rpc.Empty, error) {
	s.session.CloseChat()
	return &rpc.Empty{}, nil
}

func (s *ChatService) SendText(_ context.Context, req *rpc.SendTextRequest) (*rpc.Empty, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, toStatus(convlog.ErrEmptyMessage)
	}
	if err := s.session.Send(req.Text); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.Empty{}, nil
}

func (s *ChatService) SendAttachment(_ context.Context, req *rpc.SendAttachmentRequest) (*rpc.Empty, error) {
	if len(req.Data) == 0 {
		return nil, grpcstatus.Error(codes.InvalidArgument, "attachment is empty")
	}
	if err := s.session.SendAttachment(req.Name, req.Data); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.Empty{}, nil
}

func (s *ChatService) History(ctx context.Context, req *rpc.HistoryRequest) (*rpc.HistoryResponse, error) {
	viewer, err := requireIdentity(s.identity)
	if err != nil {
		return nil, err
	}
	peer, err := s.peerOrOpen(req.Peer)
	if err != nil {
		return nil, err
	}
	msgs, err := s.logs.History(ctx, viewer, peer, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &rpc.HistoryResponse{Messages: make([]*rpc.Message, len(msgs))}
	for i, m := range msgs {
		out := historyMessage(m, viewer, s.resolver.Cached)
		if out.Mine {
			out.Undelivered, err = s.logs.Undelivered(ctx, m.MsgID)
			if err != nil {
				return nil, toStatus(err)
			}
		}
		resp.Messages[i] = out
	}
	return resp, nil
}

// FetchAttachment returns the bytes of an attachment in the caller's own log.
func (s *ChatService) FetchAttachment(ctx context.Context, req *rpc.FetchAttachmentRequest) (*rpc.FetchAttachmentResponse, error) {
	viewer, err := requireIdentity(s.identity)
	if err != nil {
		return nil, err
	}
	peer, err := s.peerOrOpen(req.Peer)
	if err != nil {
		return nil, err
	}
	m, err := s.logs.Get(ctx, viewer, peer, req.MsgID)
	if err != nil {
		return nil, toStatus(err)
	}
	if !m.IsAttachment {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "message %s is not an attachment", req.MsgID)
	}
	data, err := s.objects.Open(m.Text)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.FetchAttachmentResponse{Ref: m.Text, Data: data}, nil
}

// peerOrOpen defaults an empty peer to the open conversation.
func (s *ChatService) peerOrOpen(peer string) (string, error) {
	if peer != "" {
		return peer, nil
	}
	h, ok := s.session.Peer()
	if !ok {
		return "", toStatus(chat.ErrNotOpen)
	}
	return h.Identity, nil
}

// WatchChat sends the current session state, then every session event.
func (s *ChatService) WatchChat(_ *rpc.Empty, stream rpc.Sender[rpc.ChatEvent]) error {
	ctx := stream.Context()
	events := s.session.Events(ctx)

	initial := []*rpc.ChatEvent{{Kind: rpc.ChatEventState, State: string(s.session.State())}}
	if h, ok := s.session.Peer(); ok {
		initial = append(initial,
			&rpc.ChatEvent{Kind: rpc.ChatEventPeer, Peer: headerToRPC(h)},
			&rpc.ChatEvent{Kind: rpc.ChatEventMessages, Messages: itemsToRPC(s.session.Items())},
		)
	}
	for _, evt := range initial {
		if err := stream.Send(evt); err != nil {
			return err
		}
	}

	for evt := range events {
		if err := stream.Send(chatEventToRPC(evt)); err != nil {
			return err
		}
	}
	return nil
}
