// Package summary derives the last-message summary of every conversation of
// one viewer from live tail subscriptions, one per friend.
package summary

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/matheus3301/chatter/internal/convlog"
	"go.uber.org/zap"
)

// AttachmentPlaceholder is shown instead of the reference of an attachment.
const AttachmentPlaceholder = "Image"

// ErrClosed is returned by Reconcile after Close.
var ErrClosed = errors.New("summary index closed")

// Summary is the last message of one conversation.
type Summary struct {
	Peer         string
	DisplayText  string
	Sender       string
	CreatedAt    int64
	Seq          int64
	IsAttachment bool
}

func (s Summary) older(m convlog.Message) bool {
	if s.CreatedAt != m.CreatedAt {
		return s.CreatedAt < m.CreatedAt
	}
	return s.Seq < m.Seq
}

// Change reports a new summary for Peer, or its removal.
type Change struct {
	Peer    string
	Summary Summary
	Removed bool
}

// Subscriber opens log subscriptions. *convlog.Log implements it.
type Subscriber interface {
	Subscribe(ctx context.Context, viewer, peer string, opts convlog.SubscribeOptions) (*convlog.Subscription, error)
}

type peerSub struct {
	sub *convlog.Subscription
}

// Index keeps one tail subscription per peer in the desired set.
type Index struct {
	viewer string
	logs   Subscriber
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// emitMu orders changes: a removal is never followed by a stale update.
	emitMu    sync.Mutex
	mu        sync.Mutex
	subs      map[string]*peerSub
	summaries map[string]Summary
	closed    bool

	changes chan Change
}

// New creates an index for viewer. Cancelling ctx tears it down like Close.
func New(ctx context.Context, viewer string, logs Subscriber, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Index{
		viewer:    viewer,
		logs:      logs,
		logger:    logger.With(zap.String("viewer", viewer)),
		ctx:       ctx,
		cancel:    cancel,
		subs:      make(map[string]*peerSub),
		summaries: make(map[string]Summary),
		changes:   make(chan Change, 16),
	}
}

// Changes streams summary changes. It is closed by Close.
func (i *Index) Changes() <-chan Change { return i.changes }

// Reconcile makes the active subscriptions match peers: missing ones are
// started, removed ones are cancelled and their summaries dropped.
func (i *Index) Reconcile(peers []string) error {
	i.emitMu.Lock()
	defer i.emitMu.Unlock()

	desired := make(map[string]struct{}, len(peers))
	for _, p := range peers {
		if p != "" && p != i.viewer {
			desired[p] = struct{}{}
		}
	}

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return ErrClosed
	}
	var (
		stale   []*peerSub
		removed []Change
	)
	for peer, ps := range i.subs {
		if _, ok := desired[peer]; ok {
			continue
		}
		delete(i.subs, peer)
		stale = append(stale, ps)
		if _, had := i.summaries[peer]; had {
			delete(i.summaries, peer)
			removed = append(removed, Change{Peer: peer, Removed: true})
		}
	}

	var errs []error
	for peer := range desired {
		if _, ok := i.subs[peer]; ok {
			continue
		}
		sub, err := i.logs.Subscribe(i.ctx, i.viewer, peer, convlog.SubscribeOptions{Tail: 1})
		if err != nil {
			i.logger.Warn("subscribe to conversation failed", zap.String("peer", peer), zap.Error(err))
			errs = append(errs, fmt.Errorf("subscribe %s: %w", peer, err))
			continue
		}
		ps := &peerSub{sub: sub}
		i.subs[peer] = ps
		i.wg.Add(1)
		go i.forward(peer, ps)
	}
	i.mu.Unlock()

	for _, ps := range stale {
		ps.sub.Close()
	}
	for _, c := range removed {
		if !i.emit(c) {
			break
		}
	}
	return errors.Join(errs...)
}

// Run reconciles against every friend set received until ctx is done or
// sets is closed.
func (i *Index) Run(ctx context.Context, sets <-chan []string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-i.ctx.Done():
			return
		case peers, ok := <-sets:
			if !ok {
				return
			}
			if err := i.Reconcile(peers); errors.Is(err, ErrClosed) {
				return
			}
		}
	}
}

// Snapshot returns the current summaries keyed by peer.
func (i *Index) Snapshot() map[string]Summary {
	i.mu.Lock()
	defer i.mu.Unlock()
	return maps.Clone(i.summaries)
}

// Active returns the peers with a live subscription, sorted.
func (i *Index) Active() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return slices.Sorted(maps.Keys(i.subs))
}

// Close cancels every subscription and closes Changes.
func (i *Index) Close() {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.closed = true
	i.cancel()
	subs := slices.Collect(maps.Values(i.subs))
	clear(i.subs)
	i.mu.Unlock()

	for _, ps := range subs {
		ps.sub.Close()
	}
	i.wg.Wait()

	i.emitMu.Lock()
	close(i.changes)
	i.emitMu.Unlock()
}

func (i *Index) forward(peer string, ps *peerSub) {
	defer i.wg.Done()
	for u := range ps.sub.Updates() {
		i.emitMu.Lock()
		c, ok := i.apply(peer, ps, u.Messages)
		sent := !ok || i.emit(c)
		i.emitMu.Unlock()
		if !sent {
			return
		}
	}
}

// apply folds msgs into the summary of peer, keeping the greatest (CreatedAt, Seq).
func (i *Index) apply(peer string, ps *peerSub, msgs []convlog.Message) (Change, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.subs[peer] != ps {
		return Change{}, false
	}
	cur, have := i.summaries[peer]
	changed := false
	for _, m := range msgs {
		if have && !cur.older(m) {
			continue
		}
		cur = Summary{
			Peer:         peer,
			DisplayText:  displayText(m),
			Sender:       m.Sender,
			CreatedAt:    m.CreatedAt,
			Seq:          m.Seq,
			IsAttachment: m.IsAttachment,
		}
		have, changed = true, true
	}
	if !changed {
		return Change{}, false
	}
	i.summaries[peer] = cur
	return Change{Peer: peer, Summary: cur}, true
}

func (i *Index) emit(c Change) bool {
	select {
	case i.changes <- c:
		return true
	case <-i.ctx.Done():
		return false
	}
}

func displayText(m convlog.Message) string {
	if m.IsAttachment {
		return AttachmentPlaceholder
	}
	return m.Text
}
