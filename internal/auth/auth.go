// Package auth is the local identity provider: accounts with bcrypt
// password hashes and the single signed-in identity of the workspace.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/matheus3301/chatter/internal/profile"
	"github.com/matheus3301/chatter/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const currentIdentityKey = "current_identity"

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidInput       = errors.New("invalid registration")
)

// Store is the persistence the provider needs. *store.DB implements it.
type Store interface {
	CreateAccount(ctx context.Context, a *store.Account) error
	GetAccountByEmail(ctx context.Context, email string) (*store.Account, error)
	DeleteAccount(ctx context.Context, identity string) error
	SetSetting(ctx context.Context, key, value string) error
	GetSetting(ctx context.Context, key string) (string, error)
	DeleteSetting(ctx context.Context, key string) error
}

// Uploader stores avatar images. *objstore.Store implements it.
type Uploader interface {
	Upload(ctx context.Context, owner, name string, data []byte) (string, error)
}

// ProfileCreator writes the profile of a new identity. *profile.Service implements it.
type ProfileCreator interface {
	Create(ctx context.Context, p profile.Profile) error
}

// Avatar is an optional image supplied at registration.
type Avatar struct {
	Name string
	Data []byte
}

// Provider manages accounts and the signed-in identity.
type Provider struct {
	store    Store
	uploader Uploader
	profiles ProfileCreator
	logger   *zap.Logger
	cost     int

	mu        sync.Mutex
	current   string
	listeners map[int]func(string)
	nextID    int
}

// New creates a provider and restores the identity signed in before the last restart.
func New(ctx context.Context, st Store, up Uploader, profiles ProfileCreator, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Provider{
		store:     st,
		uploader:  up,
		profiles:  profiles,
		logger:    logger,
		cost:      bcrypt.DefaultCost,
		listeners: make(map[int]func(string)),
	}
	id, err := st.GetSetting(ctx, currentIdentityKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("restore identity: %w", err)
	default:
		p.current = id
		logger.Info("restored signed-in identity", zap.String("identity", id))
	}
	return p, nil
}

// SignUp registers an account, uploads the avatar when given, writes the
// profile and signs the new identity in.
func (p *Provider) SignUp(ctx context.Context, email, password, displayName string, avatar *Avatar) (string, error) {
	email = profile.NormalizeEmail(email)
	if !strings.Contains(email, "@") {
		return "", fmt.Errorf("%w: email %q", ErrInvalidInput, email)
	}
	if len(password) < 6 {
		return "", fmt.Errorf("%w: password must have at least 6 characters", ErrInvalidInput)
	}
	if strings.TrimSpace(displayName) == "" {
		return "", fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	acct := &store.Account{Identity: uuid.NewString(), Email: email, PasswordHash: hash}
	if err := p.store.CreateAccount(ctx, acct); err != nil {
		return "", fmt.Errorf("create account: %w", err)
	}
	log := p.logger.With(zap.String("identity", acct.Identity))

	rollback := func(cause error) error {
		if err := p.store.DeleteAccount(context.WithoutCancel(ctx), acct.Identity); err != nil {
			log.Error("rollback account failed", zap.Error(err))
		}
		return cause
	}

	var avatarRef string
	if avatar != nil && len(avatar.Data) > 0 {
		avatarRef, err = p.uploader.Upload(ctx, acct.Identity, avatar.Name, avatar.Data)
		if err != nil {
			return "", rollback(fmt.Errorf("upload avatar: %w", err))
		}
	}
	err = p.profiles.Create(ctx, profile.Profile{
		Identity:    acct.Identity,
		DisplayName: displayName,
		Email:       email,
		AvatarRef:   avatarRef,
	})
	if err != nil {
		return "", rollback(fmt.Errorf("create profile: %w", err))
	}

	log.Info("account registered")
	if err := p.setCurrent(ctx, acct.Identity); err != nil {
		return "", err
	}
	return acct.Identity, nil
}

// SignIn checks the credentials and makes the account the signed-in identity.
func (p *Provider) SignIn(ctx context.Context, email, password string) (string, error) {
	acct, err := p.store.GetAccountByEmail(ctx, profile.NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("get account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	if err := p.setCurrent(ctx, acct.Identity); err != nil {
		return "", err
	}
	return acct.Identity, nil
}

// SignOut clears the signed-in identity. Signing out twice is a no-op.
func (p *Provider) SignOut(ctx context.Context) error {
	return p.setCurrent(ctx, "")
}

// Current returns the signed-in identity.
func (p *Provider) Current() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.current != ""
}

// OnIdentityChange registers fn to be called with the new identity ("" on
// sign-out) after every change. The returned func unregisters it.
func (p *Provider) OnIdentityChange(fn func(identity string)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *Provider) setCurrent(ctx context.Context, identity string) error {
	p.mu.Lock()
	if p.current == identity {
		p.mu.Unlock()
		return nil
	}
	var err error
	if identity == "" {
		err = p.store.DeleteSetting(ctx, currentIdentityKey)
	} else {
		err = p.store.SetSetting(ctx, currentIdentityKey, identity)
	}
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("persist identity: %w", err)
	}
	prev := p.current
	p.current = identity
	listeners := make([]func(string), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	if identity == "" {
		p.logger.Info("signed out", zap.String("identity", prev))
	} else {
		p.logger.Info("signed in", zap.String("identity", identity))
	}
	for _, fn := range listeners {
		fn(identity)
	}
	return nil
}
