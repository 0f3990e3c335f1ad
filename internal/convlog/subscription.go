package convlog

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/chatter/internal/bus"
	"github.com/matheus3301/chatter/internal/store"
	"go.uber.org/zap"
)

// SubscribeOptions tunes a subscription.
type SubscribeOptions struct {
	// Tail limits the snapshot to the last Tail entries. Zero means the whole log.
	Tail int
	// ResyncInterval overrides the log's periodic re-read interval.
	ResyncInterval time.Duration
}

// Update is one batch delivered to a subscriber. The first update of a
// subscription is the snapshot; later ones only carry inserted entries.
//
// Entries arrive in insertion order of the viewer's log, which is not
// creation order: a copy completed by the Replicator lands after entries
// created later. Consumers merge each batch into their view with
// Message.Less.
type Update struct {
	Snapshot bool
	Messages []Message
}

// Subscription follows one log. Updates is closed once the subscription ends.
type Subscription struct {
	Viewer string
	Peer   string

	updates chan Update
	cancel  context.CancelFunc
	done    chan struct{}
}

// Updates returns the update stream.
func (s *Subscription) Updates() <-chan Update { return s.updates }

// Done is closed when the subscription has stopped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close cancels the subscription and waits for it to stop. Safe to call more than once.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Subscribe follows viewer's log with peer. Change notifications are treated
// as hints: the log is re-read past the last seen cursor on every hint and on
// a timer, so a dropped hint delays an entry but never loses it.
func (l *Log) Subscribe(ctx context.Context, viewer, peer string, opts SubscribeOptions) (*Subscription, error) {
	resync := opts.ResyncInterval
	if resync <= 0 {
		resync = l.opts.ResyncInterval
	}

	// Register before reading the snapshot so nothing falls between them.
	var (
		events <-chan bus.Event
		unsub  = func() {}
	)
	if l.bus != nil {
		events, unsub = l.bus.Subscribe(EventAppended, 64)
	}

	var (
		cursor   int64
		snapshot []store.Entry
		err      error
	)
	if opts.Tail > 0 {
		cursor, err = l.store.MaxSeq(ctx, viewer, peer)
		if err == nil {
			snapshot, err = l.store.TailEntries(ctx, viewer, peer, opts.Tail)
		}
	} else {
		snapshot, err = l.store.ListEntries(ctx, viewer, peer, 0)
	}
	if err != nil {
		unsub()
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		Viewer:  viewer,
		Peer:    peer,
		updates: make(chan Update, 16),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	p := &pump{
		log:    l,
		sub:    s,
		key:    bus.LogKey{Owner: viewer, Partner: peer},
		cursor: cursor,
		seen:   make(map[string]struct{}, len(snapshot)),
		logger: l.logger.With(zap.String("viewer", viewer), zap.String("peer", peer)),
	}
	first := p.accept(snapshot)
	go p.run(ctx, events, unsub, resync, first)
	return s, nil
}

type pump struct {
	log    *Log
	sub    *Subscription
	key    bus.LogKey
	cursor int64
	seen   map[string]struct{}
	logger *zap.Logger
}

func (p *pump) run(ctx context.Context, events <-chan bus.Event, unsub func(), resync time.Duration, snapshot []Message) {
	defer close(p.sub.done)
	defer close(p.sub.updates)
	defer unsub()

	if !p.send(ctx, Update{Snapshot: true, Messages: snapshot}) {
		return
	}

	ticker := time.NewTicker(resync)
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
			if key, _ := evt.Payload.(bus.LogKey); key != p.key {
				continue
			}
		case <-ticker.C:
		}

		entries, err := p.log.store.ListEntries(ctx, p.key.Owner, p.key.Partner, p.cursor)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Warn("re-read log failed", zap.Error(err))
			}
			continue
		}
		if msgs := p.accept(entries); len(msgs) > 0 {
			if !p.send(ctx, Update{Messages: msgs}) {
				return
			}
		}
	}
}

// accept advances the cursor and drops entries already delivered.
func (p *pump) accept(entries []store.Entry) []Message {
	out := make([]Message, 0, len(entries))
	for _, e := range entries {
		if e.Seq > p.cursor {
			p.cursor = e.Seq
		}
		if _, dup := p.seen[e.MsgID]; dup {
			continue
		}
		p.seen[e.MsgID] = struct{}{}
		out = append(out, fromEntry(e))
	}
	return out
}

func (p *pump) send(ctx context.Context, u Update) bool {
	select {
	case p.sub.updates <- u:
		return true
	case <-ctx.Done():
		return false
	}
}
