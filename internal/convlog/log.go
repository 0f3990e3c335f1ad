// Package convlog implements the per-user conversation logs: every message is
// stored twice, once in the sender's log and once in the peer's, and readers
// follow a single log through live subscriptions.
package convlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatter/internal/bus"
	"github.com/matheus3301/chatter/internal/store"
	"go.uber.org/zap"
)

// Bus event kinds.
const (
	EventAppended        = "log.appended"
	EventReplicaRepaired = "replica.repaired"
	EventReplicaFailed   = "replica.failed"
)

var (
	ErrEmptyMessage     = errors.New("message text is empty")
	ErrSelfConversation = errors.New("sender and peer are the same identity")
	// ErrPartialReplication means the sender's copy was written but the
	// peer's was not. Nothing compensates; the two logs disagree.
	ErrPartialReplication = errors.New("message stored for sender only")
	// ErrDeferred means the message is durable as a replica intent and will be
	// completed in the background. Callers must not retry.
	ErrDeferred = errors.New("message replication deferred")
)

// Store is the persistence the log needs. *store.DB implements it.
type Store interface {
	Now() int64
	PutEntry(ctx context.Context, e *store.Entry) (bool, error)
	ListEntries(ctx context.Context, owner, partner string, afterSeq int64) ([]store.Entry, error)
	TailEntries(ctx context.Context, owner, partner string, n int) ([]store.Entry, error)
	GetEntry(ctx context.Context, owner, partner, msgID string) (*store.Entry, error)
	GetReplica(ctx context.Context, msgID string) (*store.Replica, error)
	MaxSeq(ctx context.Context, owner, partner string) (int64, error)
	QueueReplica(ctx context.Context, r *store.Replica) error
	MarkReplicaDone(ctx context.Context, msgID string) error
	MarkReplicaRetry(ctx context.Context, msgID, errMsg string, maxAttempts int) (string, error)
	PendingReplicas(ctx context.Context, queuedBefore int64, limit int) ([]store.Replica, error)
}

// Message is one entry as seen by the owner of a log.
type Message struct {
	MsgID        string
	Text         string
	Sender       string
	CreatedAt    int64
	IsAttachment bool
	Seq          int64
}

// Less orders messages by creation time, then insertion cursor.
func (m Message) Less(o Message) bool {
	if m.CreatedAt != o.CreatedAt {
		return m.CreatedAt < o.CreatedAt
	}
	return m.Seq < o.Seq
}

func fromEntry(e store.Entry) Message {
	return Message{
		MsgID:        e.MsgID,
		Text:         e.Text,
		Sender:       e.Sender,
		CreatedAt:    e.CreatedAt,
		IsAttachment: e.IsAttachment,
		Seq:          e.Seq,
	}
}

// Options configures a Log.
type Options struct {
	// Repair writes a replica intent before the two copies so that a failed
	// second write is completed by the Replicator.
	Repair bool
	// ResyncInterval bounds how long a subscription can miss an entry when a
	// change notification is dropped.
	ResyncInterval time.Duration
}

// Log writes and follows conversation logs.
type Log struct {
	store  Store
	bus    *bus.Bus
	opts   Options
	logger *zap.Logger
}

// New creates a conversation log over st, publishing changes on b.
func New(st Store, b *bus.Bus, opts Options, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ResyncInterval <= 0 {
		opts.ResyncInterval = 2 * time.Second
	}
	return &Log{store: st, bus: b, opts: opts, logger: logger}
}

// Append stores text from sender to peer in both logs under one message id
// and one creation time.
func (l *Log) Append(ctx context.Context, sender, peer, text string, isAttachment bool) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, ErrEmptyMessage
	}
	if sender == peer {
		return Message{}, ErrSelfConversation
	}

	r := &store.Replica{
		MsgID:        uuid.NewString(),
		Sender:       sender,
		Peer:         peer,
		Text:         text,
		IsAttachment: isAttachment,
		CreatedAt:    l.store.Now(),
	}
	msg := Message{
		MsgID:        r.MsgID,
		Text:         r.Text,
		Sender:       r.Sender,
		CreatedAt:    r.CreatedAt,
		IsAttachment: r.IsAttachment,
	}
	log := l.logger.With(zap.String("msg_id", r.MsgID), zap.String("sender", sender), zap.String("peer", peer))

	if !l.opts.Repair {
		copies := r.Copies()
		if _, err := l.put(ctx, &copies[0]); err != nil {
			return Message{}, fmt.Errorf("write sender copy: %w", err)
		}
		msg.Seq = copies[0].Seq
		if _, err := l.put(ctx, &copies[1]); err != nil {
			log.Error("peer copy not written", zap.Error(err))
			return msg, fmt.Errorf("%w: %w", ErrPartialReplication, err)
		}
		return msg, nil
	}

	if err := l.store.QueueReplica(ctx, r); err != nil {
		return Message{}, fmt.Errorf("queue replica: %w", err)
	}
	seq, _, err := l.writeCopies(ctx, r)
	msg.Seq = seq
	if err != nil {
		log.Warn("inline replication failed, deferring", zap.Error(err))
		return msg, fmt.Errorf("%w: %w", ErrDeferred, err)
	}
	if err := l.store.MarkReplicaDone(ctx, r.MsgID); err != nil {
		// Both copies exist; the replicator will find them and mark it done.
		log.Warn("mark replica done failed", zap.Error(err))
	}
	return msg, nil
}

// History returns the last limit messages of viewer's log with peer,
// or the whole log when limit <= 0.
func (l *Log) History(ctx context.Context, viewer, peer string, limit int) ([]Message, error) {
	var (
		entries []store.Entry
		err     error
	)
	if limit > 0 {
		entries, err = l.store.TailEntries(ctx, viewer, peer, limit)
	} else {
		entries, err = l.store.ListEntries(ctx, viewer, peer, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	out := make([]Message, len(entries))
	for i, e := range entries {
		out[i] = fromEntry(e)
	}
	return out, nil
}

// Get returns one message of viewer's log with peer. Missing messages yield
// store.ErrNotFound.
func (l *Log) Get(ctx context.Context, viewer, peer, msgID string) (Message, error) {
	e, err := l.store.GetEntry(ctx, viewer, peer, msgID)
	if err != nil {
		return Message{}, fmt.Errorf("read message %s: %w", msgID, err)
	}
	return fromEntry(*e), nil
}

// Undelivered reports whether the peer copy of msgID is still missing: its
// replica intent is queued for repair or was abandoned.
func (l *Log) Undelivered(ctx context.Context, msgID string) (bool, error) {
	r, err := l.store.GetReplica(ctx, msgID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read replica %s: %w", msgID, err)
	}
	return r.Status != store.ReplicaDone, nil
}

// writeCopies upserts both copies of r, sender first. It returns the sender
// copy's seq when it was inserted by this call and whether anything was inserted.
func (l *Log) writeCopies(ctx context.Context, r *store.Replica) (int64, bool, error) {
	copies := r.Copies()
	var wrote bool
	for i := range copies {
		inserted, err := l.put(ctx, &copies[i])
		if err != nil {
			return copies[0].Seq, wrote, fmt.Errorf("write copy for %s: %w", copies[i].Owner, err)
		}
		wrote = wrote || inserted
	}
	return copies[0].Seq, wrote, nil
}

func (l *Log) put(ctx context.Context, e *store.Entry) (bool, error) {
	inserted, err := l.store.PutEntry(ctx, e)
	if err != nil {
		return false, err
	}
	if inserted && l.bus != nil {
		l.bus.Publish(bus.NewEvent(EventAppended, bus.LogKey{Owner: e.Owner, Partner: e.Partner}))
	}
	return inserted, nil
}
