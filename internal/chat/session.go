// Package chat hosts the conversation a signed-in identity has open: it
// follows the log with one peer, renders attachments as they resolve and
// sends messages without blocking the caller.
package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/chatter/internal/convlog"
	"github.com/matheus3301/chatter/internal/profile"
	"go.uber.org/zap"
)

var (
	ErrSignedOut = errors.New("no identity is signed in")
	ErrNotOpen   = errors.New("no conversation is open")
	ErrClosed    = errors.New("chat session closed")
)

// Logs is the conversation log. *convlog.Log implements it.
type Logs interface {
	Subscribe(ctx context.Context, viewer, peer string, opts convlog.SubscribeOptions) (*convlog.Subscription, error)
	Append(ctx context.Context, sender, peer, text string, isAttachment bool) (convlog.Message, error)
}

// Profiles loads and follows peer profiles. *profile.Service implements it.
type Profiles interface {
	Get(ctx context.Context, identity string) (profile.Profile, error)
	Subscribe(ctx context.Context, identity string) <-chan profile.Profile
}

// Identity reports the signed-in identity. *auth.Provider implements it.
type Identity interface {
	Current() (string, bool)
	OnIdentityChange(fn func(identity string)) func()
}

// Uploader stores attachment bytes. *objstore.Store implements it.
type Uploader interface {
	Upload(ctx context.Context, owner, name string, data []byte) (string, error)
}

// Resolver turns attachment references into URLs. *attachment.Resolver implements it.
type Resolver interface {
	Cached(ref string) (string, bool)
	ResolveAsync(ctx context.Context, ref string, fn func(url string, err error))
}

// Deps are the collaborators of a Session.
type Deps struct {
	Logs     Logs
	Profiles Profiles
	Identity Identity
	Uploader Uploader
	Resolver Resolver
}

// Config tunes a Session.
type Config struct {
	ResolveTimeout time.Duration
	SendTimeout    time.Duration
}

// Session is the single open conversation of the signed-in identity.
type Session struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	unidentify func()

	mu        sync.Mutex
	state     State
	epoch     uint64 // bumped on every identity change
	viewer    string
	peer      string
	header    PeerHeader
	gen       uint64
	sub       *convlog.Subscription
	subCancel context.CancelFunc
	items     []Item
	byID      map[string]int

	watchMu  sync.Mutex
	watchers map[int]chan Event
	nextW    int
}

// New creates an idle session. It tears itself down to Idle whenever the
// signed-in identity changes.
func New(deps Deps, cfg Config, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		deps:     deps,
		cfg:      cfg,
		logger:   logger.Named("chat"),
		ctx:      ctx,
		cancel:   cancel,
		state:    Idle,
		byID:     make(map[string]int),
		watchers: make(map[int]chan Event),
	}
	s.unidentify = deps.Identity.OnIdentityChange(s.identityChanged)
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Peer returns the header of the open conversation.
func (s *Session) Peer() (PeerHeader, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header, s.state == Subscribed
}

// Items returns the rendered messages of the open conversation in log order.
func (s *Session) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// Open switches the session to the conversation with peer. Updates of the
// previous conversation still in flight are discarded.
func (s *Session) Open(ctx context.Context, peer string) error {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	viewer, ok := s.deps.Identity.Current()
	if !ok {
		return ErrSignedOut
	}
	if peer == "" || peer == viewer {
		return convlog.ErrSelfConversation
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkTransition(s.state, Subscribed); err != nil {
		if s.state == Closed {
			return ErrClosed
		}
		return err
	}
	// A sign-out between the read above and taking the lock found the
	// session idle and left nothing to tear down.
	if s.epoch != epoch {
		return ErrSignedOut
	}
	if cur, ok := s.deps.Identity.Current(); !ok || cur != viewer {
		return ErrSignedOut
	}
	s.teardownLocked()

	subCtx, subCancel := context.WithCancel(s.ctx)
	sub, err := s.deps.Logs.Subscribe(subCtx, viewer, peer, convlog.SubscribeOptions{})
	if err != nil {
		subCancel()
		s.setStateLocked(Idle)
		return fmt.Errorf("subscribe to %s: %w", peer, err)
	}

	s.gen++
	gen := s.gen
	s.viewer, s.peer = viewer, peer
	s.sub, s.subCancel = sub, subCancel
	s.header = PeerHeader{Identity: peer, DisplayName: peer}
	s.setStateLocked(Subscribed)
	s.logger.Info("conversation opened", zap.String("viewer", viewer), zap.String("peer", peer))

	s.wg.Add(2)
	go s.forward(gen, sub)
	go s.loadPeer(subCtx, gen, peer)
	return nil
}

// CloseChat leaves the open conversation and returns to Idle.
func (s *Session) CloseChat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Subscribed {
		return
	}
	s.teardownLocked()
	s.setStateLocked(Idle)
}

// Send appends text to the open conversation in the background. Failures are
// logged and reported as notices. Blank text is rejected up front.
func (s *Session) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return convlog.ErrEmptyMessage
	}
	viewer, peer, err := s.target()
	if err != nil {
		return err
	}
	s.goSend(func(ctx context.Context) error {
		_, err := s.deps.Logs.Append(ctx, viewer, peer, text, false)
		return err
	}, peer)
	return nil
}

// SendAttachment uploads data and appends its reference to the open
// conversation in the background.
func (s *Session) SendAttachment(name string, data []byte) error {
	viewer, peer, err := s.target()
	if err != nil {
		return err
	}
	s.goSend(func(ctx context.Context) error {
		ref, err := s.deps.Uploader.Upload(ctx, viewer, name, data)
		if err != nil {
			return fmt.Errorf("upload %s: %w", name, err)
		}
		_, err = s.deps.Logs.Append(ctx, viewer, peer, ref, true)
		return err
	}, peer)
	return nil
}

func (s *Session) target() (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Closed:
		return "", "", ErrClosed
	case Idle:
		return "", "", ErrNotOpen
	}
	return s.viewer, s.peer, nil
}

func (s *Session) goSend(fn func(ctx context.Context) error, peer string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.SendTimeout)
		defer cancel()

		err := fn(ctx)
		switch {
		case err == nil:
		case errors.Is(err, convlog.ErrDeferred):
			s.logger.Warn("message delivery deferred", zap.String("peer", peer), zap.Error(err))
			s.notice("Message saved; delivery to " + peer + " will complete shortly")
		default:
			s.logger.Error("send failed", zap.String("peer", peer), zap.Error(err))
			s.notice("Send failed: " + err.Error())
		}
	}()
}

// Events streams session events until ctx is done or the session closes.
// Slow watchers miss events rather than stall the session.
func (s *Session) Events(ctx context.Context) <-chan Event {
	ch := make(chan Event, 64)
	s.watchMu.Lock()
	if s.watchers == nil {
		s.watchMu.Unlock()
		close(ch)
		return ch
	}
	id := s.nextW
	s.nextW++
	s.watchers[id] = ch
	s.watchMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.ctx.Done():
		}
		s.watchMu.Lock()
		if _, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(ch)
		}
		s.watchMu.Unlock()
	}()
	return ch
}

// Close tears the session down for good.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return
	}
	s.teardownLocked()
	s.setStateLocked(Closed)
	s.mu.Unlock()

	s.unidentify()
	s.cancel()
	s.wg.Wait()

	s.watchMu.Lock()
	for id, ch := range s.watchers {
		delete(s.watchers, id)
		close(ch)
	}
	s.watchers = nil
	s.watchMu.Unlock()
}

func (s *Session) identityChanged(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	if s.state != Subscribed || identity == s.viewer {
		return
	}
	s.logger.Info("identity changed, leaving conversation", zap.String("peer", s.peer))
	s.teardownLocked()
	s.setStateLocked(Idle)
}

// teardownLocked cancels the current subscription and clears rendered state.
func (s *Session) teardownLocked() {
	s.gen++
	if s.subCancel != nil {
		s.subCancel()
		s.subCancel = nil
	}
	if s.sub != nil {
		s.sub.Close()
		s.sub = nil
	}
	s.items = nil
	clear(s.byID)
	s.viewer, s.peer = "", ""
	s.header = PeerHeader{}
}

func (s *Session) setStateLocked(to State) {
	s.state = to
	s.emit(Event{Kind: EventState, State: to})
}

func (s *Session) forward(gen uint64, sub *convlog.Subscription) {
	defer s.wg.Done()
	for u := range sub.Updates() {
		s.apply(gen, u)
	}
}

func (s *Session) apply(gen uint64, u convlog.Update) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	var pending []string
	for _, m := range u.Messages {
		if _, seen := s.byID[m.MsgID]; seen {
			continue
		}
		it := newItem(m, s.viewer)
		if it.Pending {
			if url, ok := s.deps.Resolver.Cached(m.Text); ok {
				it.URL, it.Pending = url, false
			} else {
				pending = append(pending, m.Text)
			}
		}
		s.items = append(s.items, it)
	}
	slices.SortStableFunc(s.items, func(a, b Item) int {
		switch {
		case a.Less(b.Message):
			return -1
		case b.Less(a.Message):
			return 1
		}
		return 0
	})
	s.reindexLocked()
	s.emit(Event{Kind: EventMessages, Items: slices.Clone(s.items)})
	s.mu.Unlock()

	for _, ref := range pending {
		s.resolve(gen, ref)
	}
}

func (s *Session) reindexLocked() {
	clear(s.byID)
	for i, it := range s.items {
		s.byID[it.MsgID] = i
	}
}

func (s *Session) resolve(gen uint64, ref string) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ResolveTimeout)
	s.deps.Resolver.ResolveAsync(ctx, ref, func(url string, err error) {
		cancel()
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.gen {
			return
		}
		changed := false
		for i := range s.items {
			it := &s.items[i]
			if !it.IsAttachment || it.Text != ref || !it.Pending {
				continue
			}
			it.Pending = false
			if err != nil {
				it.Failed = true
			} else {
				it.URL = url
			}
			changed = true
		}
		if !changed {
			return
		}
		if err != nil {
			s.logger.Warn("attachment unavailable", zap.String("ref", ref), zap.Error(err))
			s.emit(Event{Kind: EventNotice, Notice: "Attachment unavailable: " + ref})
		}
		s.emit(Event{Kind: EventMessages, Items: slices.Clone(s.items)})
	})
}

// loadPeer fills the header of the open conversation and keeps it current
// until the conversation is left.
func (s *Session) loadPeer(ctx context.Context, gen uint64, peer string) {
	defer s.wg.Done()
	p, err := s.deps.Profiles.Get(ctx, peer)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("peer profile unavailable", zap.String("peer", peer), zap.Error(err))
		s.setPeer(gen, PeerHeader{Identity: peer, DisplayName: peer, Missing: true})
	} else {
		s.setPeer(gen, headerOf(p))
	}

	for p := range s.deps.Profiles.Subscribe(ctx, peer) {
		s.setPeer(gen, headerOf(p))
	}
}

func (s *Session) setPeer(gen uint64, h PeerHeader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || h == s.header {
		return
	}
	s.header = h
	s.emit(Event{Kind: EventPeer, Peer: h})
}

func headerOf(p profile.Profile) PeerHeader {
	return PeerHeader{Identity: p.Identity, DisplayName: p.DisplayName, AvatarRef: p.AvatarRef}
}

func (s *Session) notice(text string) {
	s.emit(Event{Kind: EventNotice, Notice: text})
}

func (s *Session) emit(evt Event) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- evt:
		default:
		}
	}
}
