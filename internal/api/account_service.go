package api

import (
	"context"
	"time"

	"github.com/matheus3301/chatter/internal/attachment"
	"github.com/matheus3301/chatter/internal/auth"
	"github.com/matheus3301/chatter/internal/objstore"
	"github.com/matheus3301/chatter/internal/profile"
	"github.com/matheus3301/chatter/internal/rpc"
	"go.uber.org/zap"
)

// AccountService implements rpc.AccountServer.
type AccountService struct {
	auth           *auth.Provider
	profiles       *profile.Service
	objects        *objstore.Store
	resolver       *attachment.Resolver
	resolveTimeout time.Duration
	logger         *zap.Logger
}

// NewAccountService creates the account service.
func NewAccountService(a *auth.Provider, profiles *profile.Service, objects *objstore.Store, resolver *attachment.Resolver, resolveTimeout time.Duration, logger *zap.Logger) *AccountService {
	return &AccountService{
		auth:           a,
		profiles:       profiles,
		objects:        objects,
		resolver:       resolver,
		resolveTimeout: resolveTimeout,
		logger:         logger,
	}
}

func (s *AccountService) SignUp(ctx context.Context, req *rpc.SignUpRequest) (*rpc.IdentityResponse, error) {
	var avatar *auth.Avatar
	if len(req.Avatar) > 0 {
		avatar = &auth.Avatar{Name: req.AvatarName, Data: req.Avatar}
	}
	id, err := s.auth.SignUp(ctx, req.Email, req.Password, req.DisplayName, avatar)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.identity(ctx, id), nil
}

func (s *AccountService) SignIn(ctx context.Context, req *rpc.SignInRequest) (*rpc.IdentityResponse, error) {
	id, err := s.auth.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.identity(ctx, id), nil
}

func (s *AccountService) SignOut(ctx context.Context, _ *rpc.Empty) (*rpc.Empty, error) {
	if err := s.auth.SignOut(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.Empty{}, nil
}

func (s *AccountService) WhoAmI(ctx context.Context, _ *rpc.Empty) (*rpc.IdentityResponse, error) {
	id, ok := s.auth.Current()
	if !ok {
		return &rpc.IdentityResponse{}, nil
	}
	return s.identity(ctx, id), nil
}

func (s *AccountService) GetProfile(ctx context.Context, req *rpc.GetProfileRequest) (*rpc.Profile, error) {
	id := req.Identity
	if id == "" {
		cur, err := requireIdentity(s.auth)
		if err != nil {
			return nil, err
		}
		id = cur
	}
	p, err := s.profiles.Get(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return profileToRPC(p, s.avatarURL(ctx, p.AvatarRef)), nil
}

func (s *AccountService) UpdateProfile(ctx context.Context, req *rpc.UpdateProfileRequest) (*rpc.Profile, error) {
	actor, err := requireIdentity(s.auth)
	if err != nil {
		return nil, err
	}
	p, err := s.profiles.Get(ctx, actor)
	if err != nil {
		return nil, toStatus(err)
	}
	if req.DisplayName != "" {
		p.DisplayName = req.DisplayName
	}
	if len(req.Avatar) > 0 {
		ref, err := s.objects.Upload(ctx, actor, req.AvatarName, req.Avatar)
		if err != nil {
			return nil, toStatus(err)
		}
		p.AvatarRef = ref
	}
	if err := s.profiles.Update(ctx, actor, p); err != nil {
		return nil, toStatus(err)
	}
	return s.GetProfile(ctx, &rpc.GetProfileRequest{Identity: actor})
}

func (s *AccountService) identity(ctx context.Context, id string) *rpc.IdentityResponse {
	resp := &rpc.IdentityResponse{Identity: id, SignedIn: true}
	if p, err := s.profiles.Get(ctx, id); err == nil {
		resp.Profile = profileToRPC(p, s.avatarURL(ctx, p.AvatarRef))
	} else {
		s.logger.Warn("own profile unavailable", zap.String("identity", id), zap.Error(err))
	}
	return resp
}

func (s *AccountService) avatarURL(ctx context.Context, ref string) string {
	if ref == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, s.resolveTimeout)
	defer cancel()
	u, err := s.resolver.Resolve(ctx, ref)
	if err != nil {
		s.logger.Debug("avatar unavailable", zap.String("ref", ref), zap.Error(err))
		return ""
	}
	return u
}
