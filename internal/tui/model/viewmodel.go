package model

import (
	"cmp"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/matheus3301/chatter/internal/rpc"
)

// Client is the subset of the daemon API the TUI drives.
type Client interface {
	GetStatus(ctx context.Context) (*rpc.StatusResponse, error)
	SignUp(ctx context.Context, in *rpc.SignUpRequest) (*rpc.IdentityResponse, error)
	SignIn(ctx context.Context, in *rpc.SignInRequest) (*rpc.IdentityResponse, error)
	SignOut(ctx context.Context) error
	GetProfile(ctx context.Context, identity string) (*rpc.Profile, error)
	FindByContact(ctx context.Context, email string) (*rpc.Profile, error)
	AddFriend(ctx context.Context, identity string) error
	ListFriends(ctx context.Context) ([]*rpc.Profile, error)
	OpenChat(ctx context.Context, peer string) error
	CloseChat(ctx context.Context) error
	SendText(ctx context.Context, text string) error
	SendAttachment(ctx context.Context, name string, data []byte) error
}

// FriendRow is one line of the friend list.
type FriendRow struct {
	Identity    string
	Name        string
	Email       string
	Preview     string
	Sender      string
	LastAt      int64
	HasMessages bool
}

// ViewModel caches daemon state from polls and streams and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	client    Client
	status    *rpc.StatusResponse
	me        *rpc.Profile
	friends   map[string]*rpc.Profile
	summaries map[string]*rpc.SummaryEvent
	chatState string
	peer      *rpc.Profile
	items     []*rpc.Message

	refreshCh chan struct{}
}

// NewViewModel creates a new view model connected to the daemon client.
func NewViewModel(c Client) *ViewModel {
	return &ViewModel{
		client:    c,
		friends:   make(map[string]*rpc.Profile),
		summaries: make(map[string]*rpc.SummaryEvent),
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadStatus fetches the daemon status and the signed-in profile. An identity
// change clears cached friends, summaries and the thread.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.client.GetStatus(ctx)
	if err != nil {
		return err
	}
	var me *rpc.Profile
	if resp.Identity != "" {
		if me, err = vm.client.GetProfile(ctx, resp.Identity); err != nil {
			return err
		}
	}
	vm.mu.Lock()
	if vm.status != nil && vm.status.Identity != resp.Identity {
		vm.resetLocked()
	}
	vm.status, vm.me = resp, me
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadFriends fetches the friend list.
func (vm *ViewModel) LoadFriends(ctx context.Context) error {
	list, err := vm.client.ListFriends(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.friends = make(map[string]*rpc.Profile, len(list))
	for _, p := range list {
		vm.friends[p.Identity] = p
	}
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// ApplySummary folds one summary stream event into the cache.
func (vm *ViewModel) ApplySummary(evt *rpc.SummaryEvent) {
	vm.mu.Lock()
	if evt.Removed {
		delete(vm.summaries, evt.Peer)
	} else {
		vm.summaries[evt.Peer] = evt
	}
	vm.mu.Unlock()
	vm.signalRefresh()
}

// ApplyChatEvent folds one chat stream event into the cache. It returns the
// notice text for notice events.
func (vm *ViewModel) ApplyChatEvent(evt *rpc.ChatEvent) string {
	vm.mu.Lock()
	defer vm.signalRefresh()
	defer vm.mu.Unlock()

	switch evt.Kind {
	case rpc.ChatEventState:
		vm.chatState = evt.State
		if evt.State != "SUBSCRIBED" {
			vm.peer, vm.items = nil, nil
		}
	case rpc.ChatEventPeer:
		vm.peer = evt.Peer
	case rpc.ChatEventMessages:
		vm.items = evt.Messages
	case rpc.ChatEventNotice:
		return evt.Notice
	}
	return ""
}

// ClearSummaries drops cached summaries before a summary stream restarts.
func (vm *ViewModel) ClearSummaries() {
	vm.mu.Lock()
	clear(vm.summaries)
	vm.mu.Unlock()
	vm.signalRefresh()
}

func (vm *ViewModel) resetLocked() {
	clear(vm.friends)
	clear(vm.summaries)
	vm.peer, vm.items, vm.chatState = nil, nil, ""
}

// Rows returns friends ordered by most recent message, then by name.
func (vm *ViewModel) Rows() []FriendRow {
	vm.mu.RLock()
	defer vm.mu.RUnlock()

	rows := make([]FriendRow, 0, len(vm.friends))
	for id, p := range vm.friends {
		row := FriendRow{Identity: id, Name: p.DisplayName, Email: p.Email}
		if s, ok := vm.summaries[id]; ok {
			row.Preview, row.Sender, row.LastAt, row.HasMessages = s.DisplayText, s.Sender, s.CreatedAt, true
		}
		if row.Name == "" {
			row.Name = id
		}
		rows = append(rows, row)
	}
	slices.SortFunc(rows, func(a, b FriendRow) int {
		if c := cmp.Compare(b.LastAt, a.LastAt); c != 0 {
			return c
		}
		if c := cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.Identity, b.Identity)
	})
	return rows
}

// Status returns the last polled status, or nil.
func (vm *ViewModel) Status() *rpc.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Me returns the signed-in profile, or nil.
func (vm *ViewModel) Me() *rpc.Profile {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.me
}

// SignedIn reports whether the last status had an identity.
func (vm *ViewModel) SignedIn() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status != nil && vm.status.Identity != ""
}

// Thread returns the open peer and its rendered messages.
func (vm *ViewModel) Thread() (*rpc.Profile, []*rpc.Message) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.peer, vm.items
}

// FriendCount returns the number of cached friends.
func (vm *ViewModel) FriendCount() int {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return len(vm.friends)
}

// SignIn signs in and refreshes status.
func (vm *ViewModel) SignIn(ctx context.Context, email, password string) error {
	if _, err := vm.client.SignIn(ctx, &rpc.SignInRequest{Email: email, Password: password}); err != nil {
		return err
	}
	return vm.LoadStatus(ctx)
}

// SignUp creates an account and refreshes status.
func (vm *ViewModel) SignUp(ctx context.Context, email, password, name string) error {
	req := &rpc.SignUpRequest{Email: email, Password: password, DisplayName: name}
	if _, err := vm.client.SignUp(ctx, req); err != nil {
		return err
	}
	return vm.LoadStatus(ctx)
}

// SignOut signs out and refreshes status.
func (vm *ViewModel) SignOut(ctx context.Context) error {
	if err := vm.client.SignOut(ctx); err != nil {
		return err
	}
	return vm.LoadStatus(ctx)
}

// AddFriend finds a user by email and adds them.
func (vm *ViewModel) AddFriend(ctx context.Context, email string) (*rpc.Profile, error) {
	p, err := vm.client.FindByContact(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := vm.client.AddFriend(ctx, p.Identity); err != nil {
		return nil, err
	}
	vm.mu.Lock()
	vm.friends[p.Identity] = p
	vm.mu.Unlock()
	vm.signalRefresh()
	return p, nil
}

// Find looks up a user by email.
func (vm *ViewModel) Find(ctx context.Context, email string) (*rpc.Profile, error) {
	return vm.client.FindByContact(ctx, email)
}

// Open opens the conversation with peer.
func (vm *ViewModel) Open(ctx context.Context, peer string) error {
	return vm.client.OpenChat(ctx, peer)
}

// CloseChat leaves the open conversation.
func (vm *ViewModel) CloseChat(ctx context.Context) error {
	return vm.client.CloseChat(ctx)
}

// SendText sends text to the open conversation.
func (vm *ViewModel) SendText(ctx context.Context, text string) error {
	return vm.client.SendText(ctx, text)
}

// SendFile reads path and sends it as an attachment.
func (vm *ViewModel) SendFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return vm.client.SendAttachment(ctx, filepath.Base(path), data)
}
