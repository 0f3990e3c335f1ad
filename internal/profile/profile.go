// Package profile serves the public profile documents of identities.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/chatter/internal/bus"
	"github.com/matheus3301/chatter/internal/store"
	"go.uber.org/zap"
)

// EventUpdated is published with the identity as payload whenever a profile is written.
const EventUpdated = "profile.updated"

var (
	// ErrForbidden is returned when an identity tries to edit someone else's profile.
	ErrForbidden = errors.New("profile belongs to another identity")
	ErrInvalid   = errors.New("invalid profile")
)

// Profile is the public document of an identity.
type Profile struct {
	Identity    string
	DisplayName string
	Email       string
	AvatarRef   string
	UpdatedAt   int64
}

// Store is the profile persistence. *store.DB implements it.
type Store interface {
	UpsertProfile(ctx context.Context, p *store.Profile) error
	GetProfile(ctx context.Context, identity string) (*store.Profile, error)
}

// Service reads and writes profiles.
type Service struct {
	store  Store
	bus    *bus.Bus
	logger *zap.Logger
	resync time.Duration
}

// New creates a profile service.
func New(st Store, b *bus.Bus, resync time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resync <= 0 {
		resync = 2 * time.Second
	}
	return &Service{store: st, bus: b, logger: logger, resync: resync}
}

// NormalizeEmail is the form emails are stored and matched in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Get returns the profile of identity. Missing profiles yield store.ErrNotFound.
func (s *Service) Get(ctx context.Context, identity string) (Profile, error) {
	p, err := s.store.GetProfile(ctx, identity)
	if err != nil {
		return Profile{}, fmt.Errorf("get profile %s: %w", identity, err)
	}
	return fromStore(p), nil
}

// Create writes the initial profile of a newly registered identity.
func (s *Service) Create(ctx context.Context, p Profile) error {
	if p.Identity == "" || strings.TrimSpace(p.DisplayName) == "" {
		return fmt.Errorf("%w: identity and display name are required", ErrInvalid)
	}
	return s.write(ctx, p)
}

// Update replaces the profile of p.Identity. Only the identity itself may do so.
func (s *Service) Update(ctx context.Context, actor string, p Profile) error {
	if actor == "" || actor != p.Identity {
		return ErrForbidden
	}
	if strings.TrimSpace(p.DisplayName) == "" {
		return fmt.Errorf("%w: display name is required", ErrInvalid)
	}
	if _, err := s.store.GetProfile(ctx, p.Identity); err != nil {
		return fmt.Errorf("get profile %s: %w", p.Identity, err)
	}
	return s.write(ctx, p)
}

func (s *Service) write(ctx context.Context, p Profile) error {
	sp := &store.Profile{
		Identity:    p.Identity,
		DisplayName: strings.TrimSpace(p.DisplayName),
		Email:       NormalizeEmail(p.Email),
		AvatarRef:   p.AvatarRef,
	}
	if err := s.store.UpsertProfile(ctx, sp); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	if s.bus != nil {
		s.bus.Publish(bus.NewEvent(EventUpdated, p.Identity))
	}
	return nil
}

// Subscribe streams the profile of identity: the current document first (when
// it exists), then every change. The channel closes when ctx is done.
func (s *Service) Subscribe(ctx context.Context, identity string) <-chan Profile {
	var (
		events <-chan bus.Event
		unsub  = func() {}
	)
	if s.bus != nil {
		events, unsub = s.bus.Subscribe(EventUpdated, 16)
	}
	out := make(chan Profile, 1)

	go func() {
		defer close(out)
		defer unsub()

		var (
			last Profile
			sent bool
		)
		emit := func() bool {
			p, err := s.store.GetProfile(ctx, identity)
			if errors.Is(err, store.ErrNotFound) {
				return true
			}
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("read profile failed", zap.String("identity", identity), zap.Error(err))
				}
				return true
			}
			cur := fromStore(p)
			if sent && cur == last {
				return true
			}
			last, sent = cur, true
			select {
			case out <- cur:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		ticker := time.NewTicker(s.resync)
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
				if id, _ := evt.Payload.(string); id != identity {
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

func fromStore(p *store.Profile) Profile {
	return Profile{
		Identity:    p.Identity,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		AvatarRef:   p.AvatarRef,
		UpdatedAt:   p.UpdatedAt,
	}
}
