// Package friends maintains the symmetric friend graph and contact lookup.
package friends

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/matheus3301/chatter/internal/bus"
	"github.com/matheus3301/chatter/internal/profile"
	"github.com/matheus3301/chatter/internal/store"
	"go.uber.org/zap"
)

// EventAdded is published with the owner identity whenever an edge is inserted.
const EventAdded = "friend.added"

var (
	ErrSelfFriend = errors.New("cannot befriend yourself")
	// ErrPartialFriendship means only the caller's edge was written. Calling
	// AddFriend again completes the friendship.
	ErrPartialFriendship = errors.New("friendship recorded on one side only")
	// ErrAmbiguousContact means more than one identity carries the contact.
	ErrAmbiguousContact = errors.New("contact matches more than one identity")
)

// Store is the persistence the graph needs. *store.DB implements it.
type Store interface {
	PutFriend(ctx context.Context, owner, partner string) (bool, error)
	ListFriends(ctx context.Context, owner string) ([]string, error)
	GetProfile(ctx context.Context, identity string) (*store.Profile, error)
	FindProfilesByEmail(ctx context.Context, email, exclude string) ([]store.Profile, error)
}

// Graph reads and writes friend edges.
type Graph struct {
	store  Store
	bus    *bus.Bus
	logger *zap.Logger
	resync time.Duration
}

// New creates a friend graph.
func New(st Store, b *bus.Bus, resync time.Duration, logger *zap.Logger) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resync <= 0 {
		resync = 2 * time.Second
	}
	return &Graph{store: st, bus: b, logger: logger, resync: resync}
}

// AddFriend records a <-> b. Both edges are upserts, so repeating the call
// repairs a friendship left one-sided by an earlier failure.
func (g *Graph) AddFriend(ctx context.Context, a, b string) error {
	if a == b {
		return ErrSelfFriend
	}
	if _, err := g.store.GetProfile(ctx, b); err != nil {
		return fmt.Errorf("get profile %s: %w", b, err)
	}
	if err := g.put(ctx, a, b); err != nil {
		return fmt.Errorf("add edge: %w", err)
	}
	if err := g.put(ctx, b, a); err != nil {
		g.logger.Error("reverse friend edge not written",
			zap.String("owner", b), zap.String("partner", a), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPartialFriendship, err)
	}
	return nil
}

func (g *Graph) put(ctx context.Context, owner, partner string) error {
	inserted, err := g.store.PutFriend(ctx, owner, partner)
	if err != nil {
		return err
	}
	if inserted && g.bus != nil {
		g.bus.Publish(bus.NewEvent(EventAdded, owner))
	}
	return nil
}

// ListFriends returns the partners of identity, oldest friendship first.
func (g *Graph) ListFriends(ctx context.Context, identity string) ([]string, error) {
	friends, err := g.store.ListFriends(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	return friends, nil
}

// FindByContact looks up the single identity other than caller whose profile
// carries email.
func (g *Graph) FindByContact(ctx context.Context, caller, email string) (profile.Profile, error) {
	email = profile.NormalizeEmail(email)
	if email == "" {
		return profile.Profile{}, fmt.Errorf("contact %q: %w", email, store.ErrNotFound)
	}
	matches, err := g.store.FindProfilesByEmail(ctx, email, caller)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("find contact: %w", err)
	}
	switch len(matches) {
	case 0:
		return profile.Profile{}, fmt.Errorf("contact %q: %w", email, store.ErrNotFound)
	case 1:
		p := matches[0]
		return profile.Profile{
			Identity:    p.Identity,
			DisplayName: p.DisplayName,
			Email:       p.Email,
			AvatarRef:   p.AvatarRef,
			UpdatedAt:   p.UpdatedAt,
		}, nil
	default:
		return profile.Profile{}, fmt.Errorf("contact %q (%d identities): %w", email, len(matches), ErrAmbiguousContact)
	}
}

// Subscribe streams the friend set of identity: the current set first, then
// the full set again whenever it changes. The channel closes when ctx is done.
func (g *Graph) Subscribe(ctx context.Context, identity string) <-chan []string {
	var (
		events <-chan bus.Event
		unsub  = func() {}
	)
	if g.bus != nil {
		events, unsub = g.bus.Subscribe(EventAdded, 16)
	}
	out := make(chan []string, 1)

	go func() {
		defer close(out)
		defer unsub()

		var last []string
		sent := false
		emit := func() bool {
			friends, err := g.store.ListFriends(ctx, identity)
			if err != nil {
				if ctx.Err() == nil {
					g.logger.Warn("read friends failed", zap.String("identity", identity), zap.Error(err))
				}
				return true
			}
			if sent && slices.Equal(friends, last) {
				return true
			}
			last, sent = friends, true
			select {
			case out <- slices.Clone(friends):
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		ticker := time.NewTicker(g.resync)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if owner, _ := evt.Payload.(string); owner != identity {
					continue
				}
			case <-ticker.C:
			}
			if !emit() {
				return
			}
		}
	}()
	return out
}
