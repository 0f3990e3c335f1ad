package api

import (
	"context"

	"github.com/matheus3301/chatter/internal/convlog"
	"github.com/matheus3301/chatter/internal/friends"
	"github.com/matheus3301/chatter/internal/profile"
	"github.com/matheus3301/chatter/internal/rpc"
	"github.com/matheus3301/chatter/internal/summary"
	"go.uber.org/zap"
)

// FriendService implements rpc.FriendServer.
type FriendService struct {
	identity Identity
	graph    *friends.Graph
	profiles *profile.Service
	logs     *convlog.Log
	logger   *zap.Logger
}

// NewFriendService creates the friend service.
func NewFriendService(id Identity, graph *friends.Graph, profiles *profile.Service, logs *convlog.Log, logger *zap.Logger) *FriendService {
	return &FriendService{identity: id, graph: graph, profiles: profiles, logs: logs, logger: logger}
}

func (s *FriendService) FindByContact(ctx context.Context, req *rpc.FindByContactRequest) (*rpc.Profile, error) {
	caller, err := requireIdentity(s.identity)
	if err != nil {
		return nil, err
	}
	p, err := s.graph.FindByContact(ctx, caller, req.Email)
	if err != nil {
		return nil, toStatus(err)
	}
	return profileToRPC(p, ""), nil
}

func (s *FriendService) AddFriend(ctx context.Context, req *rpc.AddFriendRequest) (*rpc.Empty, error) {
	caller, err := requireIdentity(s.identity)
	if err != nil {
		return nil, err
	}
	if err := s.graph.AddFriend(ctx, caller, req.Identity); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.Empty{}, nil
}

func (s *FriendService) ListFriends(ctx context.Context, _ *rpc.Empty) (*rpc.ListFriendsResponse, error) {
	caller, err := requireIdentity(s.identity)
	if err != nil {
		return nil, err
	}
	ids, err := s.graph.ListFriends(ctx, caller)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &rpc.ListFriendsResponse{Friends: make([]*rpc.Profile, 0, len(ids))}
	for _, id := range ids {
		resp.Friends = append(resp.Friends, s.friendProfile(ctx, id))
	}
	return resp, nil
}

// WatchSummaries streams the last message of every conversation of the
// signed-in identity, resending a summary when the friend's display name
// changes. The stream ends when that identity signs out.
func (s *FriendService) WatchSummaries(_ *rpc.Empty, stream rpc.Sender[rpc.SummaryEvent]) error {
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()
	// Registered before the identity is read so a sign-out in between still
	// ends the stream.
	unregister := s.identity.OnIdentityChange(func(string) { cancel() })
	defer unregister()

	viewer, err := requireIdentity(s.identity)
	if err != nil {
		return err
	}

	idx := summary.New(ctx, viewer, s.logs, s.logger)
	defer idx.Close()
	go idx.Run(ctx, s.graph.Subscribe(ctx, viewer))

	type peerState struct {
		last summary.Change
		name string
		stop context.CancelFunc
	}
	peers := make(map[string]*peerState)
	renames := make(chan profile.Profile, 16)

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-idx.Changes():
			if !ok {
				return nil
			}
			if c.Removed {
				if ps, ok := peers[c.Peer]; ok {
					ps.stop()
					delete(peers, c.Peer)
				}
				if err := stream.Send(summaryToRPC(c, "")); err != nil {
					return err
				}
				continue
			}
			ps, ok := peers[c.Peer]
			if !ok {
				ps = &peerState{
					name: s.friendProfile(ctx, c.Peer).DisplayName,
					stop: s.followProfile(ctx, c.Peer, renames),
				}
				peers[c.Peer] = ps
			}
			ps.last = c
			if err := stream.Send(summaryToRPC(c, ps.name)); err != nil {
				return err
			}
		case p := <-renames:
			ps, ok := peers[p.Identity]
			if !ok || p.DisplayName == ps.name {
				continue
			}
			ps.name = p.DisplayName
			if err := stream.Send(summaryToRPC(ps.last, ps.name)); err != nil {
				return err
			}
		}
	}
}

// followProfile forwards profile changes of peer to out until the returned
// func is called or ctx is done.
func (s *FriendService) followProfile(ctx context.Context, peer string, out chan<- profile.Profile) context.CancelFunc {
	pctx, stop := context.WithCancel(ctx)
	go func() {
		for p := range s.profiles.Subscribe(pctx, peer) {
			select {
			case out <- p:
			case <-pctx.Done():
				return
			}
		}
	}()
	return stop
}

// friendProfile loads a friend's profile, falling back to a placeholder.
func (s *FriendService) friendProfile(ctx context.Context, id string) *rpc.Profile {
	p, err := s.profiles.Get(ctx, id)
	if err != nil {
		s.logger.Warn("friend profile unavailable", zap.String("identity", id), zap.Error(err))
		return &rpc.Profile{Identity: id, DisplayName: id, Missing: true}
	}
	return profileToRPC(p, "")
}
