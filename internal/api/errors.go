package api

import (
	"context"
	"errors"

	"github.com/matheus3301/chatter/internal/auth"
	"github.com/matheus3301/chatter/internal/chat"
	"github.com/matheus3301/chatter/internal/convlog"
	"github.com/matheus3301/chatter/internal/friends"
	"github.com/matheus3301/chatter/internal/profile"
	"github.com/matheus3301/chatter/internal/store"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}
	return grpcstatus.Error(codeOf(err), err.Error())
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return codes.AlreadyExists
	case errors.Is(err, profile.ErrForbidden):
		return codes.PermissionDenied
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, chat.ErrSignedOut):
		return codes.Unauthenticated
	case errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, profile.ErrInvalid),
		errors.Is(err, friends.ErrSelfFriend),
		errors.Is(err, convlog.ErrSelfConversation),
		errors.Is(err, convlog.ErrEmptyMessage):
		return codes.InvalidArgument
	case errors.Is(err, friends.ErrAmbiguousContact),
		errors.Is(err, friends.ErrPartialFriendship),
		errors.Is(err, convlog.ErrPartialReplication),
		errors.Is(err, chat.ErrNotOpen),
		errors.Is(err, chat.ErrClosed):
		return codes.FailedPrecondition
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}

// Identity is the signed-in identity source. *auth.Provider implements it.
type Identity interface {
	Current() (string, bool)
	OnIdentityChange(fn func(identity string)) func()
}

func requireIdentity(id Identity) (string, error) {
	cur, ok := id.Current()
	if !ok {
		return "", grpcstatus.Error(codes.Unauthenticated, chat.ErrSignedOut.Error())
	}
	return cur, nil
}
