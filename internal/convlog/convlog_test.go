package convlog

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/chatter/internal/bus"
	"github.com/matheus3301/chatter/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected write failure")

// flakyStore fails PutEntry for one log owner a fixed number of times (-1 = always).
type flakyStore struct {
	*store.DB
	mu        sync.Mutex
	failOwner string
	failures  int
}

func (f *flakyStore) PutEntry(ctx context.Context, e *store.Entry) (bool, error) {
	f.mu.Lock()
	fail := e.Owner == f.failOwner && f.failures != 0
	if fail && f.failures > 0 {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return false, errInjected
	}
	return f.DB.PutEntry(ctx, e)
}

func (f *flakyStore) heal() {
	f.mu.Lock()
	f.failures = 0
	f.mu.Unlock()
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newLog(t *testing.T, st Store, repair bool) (*Log, *bus.Bus) {
	t.Helper()
	b := bus.New()
	return New(st, b, Options{Repair: repair, ResyncInterval: 50 * time.Millisecond}, nil), b
}

func next(t *testing.T, s *Subscription) Update {
	t.Helper()
	select {
	case u, ok := <-s.Updates():
		require.True(t, ok, "updates closed")
		return u
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for update")
	}
	return Update{}
}

func expectQuiet(t *testing.T, s *Subscription, d time.Duration) {
	t.Helper()
	select {
	case u := <-s.Updates():
		t.Fatalf("unexpected update: %+v", u)
	case <-time.After(d):
	}
}

func TestAppendWritesBothCopies(t *testing.T) {
	db := testDB(t)
	l, _ := newLog(t, db, true)
	ctx := context.Background()

	msg, err := l.Append(ctx, "alice", "bob", "hello", false)
	require.NoError(t, err)
	require.NotEmpty(t, msg.MsgID)

	own, err := db.GetEntry(ctx, "alice", "bob", msg.MsgID)
	require.NoError(t, err)
	peer, err := db.GetEntry(ctx, "bob", "alice", msg.MsgID)
	require.NoError(t, err)

	for _, e := range []*store.Entry{own, peer} {
		assert.Equal(t, "hello", e.Text)
		assert.Equal(t, "alice", e.Sender)
		assert.Equal(t, msg.CreatedAt, e.CreatedAt)
		assert.False(t, e.IsAttachment)
	}

	r, err := db.GetReplica(ctx, msg.MsgID)
	require.NoError(t, err)
	assert.Equal(t, store.ReplicaDone, r.Status)
}

func TestAppendRejectsInvalidInput(t *testing.T) {
	db := testDB(t)
	l, _ := newLog(t, db, true)
	ctx := context.Background()

	_, err := l.Append(ctx, "alice", "bob", "", false)
	assert.ErrorIs(t, err, ErrEmptyMessage)
	_, err = l.Append(ctx, "alice", "bob", "   ", false)
	assert.ErrorIs(t, err, ErrEmptyMessage)
	_, err = l.Append(ctx, "alice", "alice", "hi", false)
	assert.ErrorIs(t, err, ErrSelfConversation)

	n, err := db.EntryCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSubscribeOrdering(t *testing.T) {
	db := testDB(t)
	l, _ := newLog(t, db, true)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three", "four"} {
		_, err := l.Append(ctx, "alice", "bob", text, false)
		require.NoError(t, err)
	}

	sub, err := l.Subscribe(ctx, "bob", "alice", SubscribeOptions{})
	require.NoError(t, err)
	defer sub.Close()

	snap := next(t, sub)
	require.True(t, snap.Snapshot)
	require.Len(t, snap.Messages, 4)
	for i := 1; i < len(snap.Messages); i++ {
		assert.Less(t, snap.Messages[i-1].CreatedAt, snap.Messages[i].CreatedAt)
		assert.True(t, snap.Messages[i-1].Less(snap.Messages[i]))
	}
	assert.Equal(t, "one", snap.Messages[0].Text)
	assert.Equal(t, "four", snap.Messages[3].Text)
}

func TestBothSidesReceiveMessageOnce(t *testing.T) {
	db := testDB(t)
	l, _ := newLog(t, db, true)
	ctx := context.Background()

	subA, err := l.Subscribe(ctx, "alice", "bob", SubscribeOptions{})
	require.NoError(t, err)
	defer subA.Close()
	subB, err := l.Subscribe(ctx, "bob", "alice", SubscribeOptions{})
	require.NoError(t, err)
	defer subB.Close()

	assert.Empty(t, next(t, subA).Messages)
	assert.Empty(t, next(t, subB).Messages)

	msg, err := l.Append(ctx, "alice", "bob", "hi", false)
	require.NoError(t, err)

	for _, sub := range []*Subscription{subA, subB} {
		u := next(t, sub)
		assert.False(t, u.Snapshot)
		require.Len(t, u.Messages, 1)
		assert.Equal(t, msg.MsgID, u.Messages[0].MsgID)
		assert.Equal(t, "hi", u.Messages[0].Text)
		assert.Equal(t, "alice", u.Messages[0].Sender)
		expectQuiet(t, sub, 200*time.Millisecond)
	}
}

func TestSubscribeTail(t *testing.T) {
	db := testDB(t)
	l, _ := newLog(t, db, true)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		_, err := l.Append(ctx, "alice", "bob", text, false)
		require.NoError(t, err)
	}

	sub, err := l.Subscribe(ctx, "alice", "bob", SubscribeOptions{Tail: 1})
	require.NoError(t, err)
	defer sub.Close()

	snap := next(t, sub)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "c", snap.Messages[0].Text)

	_, err = l.Append(ctx, "bob", "alice", "d", false)
	require.NoError(t, err)
	u := next(t, sub)
	require.Len(t, u.Messages, 1)
	assert.Equal(t, "d", u.Messages[0].Text)
	expectQuiet(t, sub, 200*time.Millisecond)
}

func TestSubscribeResyncsWithoutNotifications(t *testing.T) {
	db := testDB(t)
	// No bus: every change notification is lost.
	l := New(db, nil, Options{Repair: true, ResyncInterval: 30 * time.Millisecond}, nil)
	ctx := context.Background()

	sub, err := l.Subscribe(ctx, "alice", "bob", SubscribeOptions{})
	require.NoError(t, err)
	defer sub.Close()
	next(t, sub)

	_, err = l.Append(ctx, "bob", "alice", "are you there?", false)
	require.NoError(t, err)

	u := next(t, sub)
	require.Len(t, u.Messages, 1)
	assert.Equal(t, "are you there?", u.Messages[0].Text)
}

func TestSubscriptionClose(t *testing.T) {
	db := testDB(t)
	l, b := newLog(t, db, true)

	sub, err := l.Subscribe(context.Background(), "alice", "bob", SubscribeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, b.Len())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, b.Len())

	for range sub.Updates() {
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	db := testDB(t)
	l, _ := newLog(t, db, true)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := l.Subscribe(ctx, "alice", "bob", SubscribeOptions{})
	require.NoError(t, err)
	cancel()

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not stop")
	}
}

func TestLegacyPartialReplication(t *testing.T) {
	db := testDB(t)
	fs := &flakyStore{DB: db, failOwner: "bob", failures: -1}
	l, _ := newLog(t, fs, false)
	ctx := context.Background()

	msg, err := l.Append(ctx, "alice", "bob", "lost", false)
	require.ErrorIs(t, err, ErrPartialReplication)
	require.ErrorIs(t, err, errInjected)

	_, err = db.GetEntry(ctx, "alice", "bob", msg.MsgID)
	require.NoError(t, err, "sender copy should exist")
	_, err = db.GetEntry(ctx, "bob", "alice", msg.MsgID)
	assert.ErrorIs(t, err, store.ErrNotFound, "peer copy should be missing")

	// Nothing compensates: no intent was recorded and the replicator finds nothing.
	fs.heal()
	r := NewReplicator(l, ReplicatorConfig{}, nil)
	assert.Zero(t, r.Drain(ctx))
	_, err = db.GetEntry(ctx, "bob", "alice", msg.MsgID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLegacyFirstWriteFailureWritesNothing(t *testing.T) {
	db := testDB(t)
	fs := &flakyStore{DB: db, failOwner: "alice", failures: -1}
	l, _ := newLog(t, fs, false)
	ctx := context.Background()

	_, err := l.Append(ctx, "alice", "bob", "nope", false)
	require.ErrorIs(t, err, errInjected)
	assert.NotErrorIs(t, err, ErrPartialReplication)

	n, err := db.EntryCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRepairCompletesDeferredWrite(t *testing.T) {
	db := testDB(t)
	fs := &flakyStore{DB: db, failOwner: "bob", failures: 1}
	l, b := newLog(t, fs, true)
	ctx := context.Background()

	repaired, unsub := b.Subscribe(EventReplicaRepaired, 4)
	defer unsub()

	msg, err := l.Append(ctx, "alice", "bob", "eventually", false)
	require.ErrorIs(t, err, ErrDeferred)

	_, err = l.Get(ctx, "bob", "alice", msg.MsgID)
	require.ErrorIs(t, err, store.ErrNotFound)
	undelivered, err := l.Undelivered(ctx, msg.MsgID)
	require.NoError(t, err)
	assert.True(t, undelivered)

	r := NewReplicator(l, ReplicatorConfig{Grace: 0}, nil)
	assert.Equal(t, 1, r.Drain(ctx))

	undelivered, err = l.Undelivered(ctx, msg.MsgID)
	require.NoError(t, err)
	assert.False(t, undelivered)
	got, err := l.Get(ctx, "bob", "alice", msg.MsgID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Sender)

	peer, err := db.GetEntry(ctx, "bob", "alice", msg.MsgID)
	require.NoError(t, err)
	assert.Equal(t, msg.CreatedAt, peer.CreatedAt)
	assert.Equal(t, "eventually", peer.Text)

	rep, err := db.GetReplica(ctx, msg.MsgID)
	require.NoError(t, err)
	assert.Equal(t, store.ReplicaDone, rep.Status)

	select {
	case evt := <-repaired:
		assert.Equal(t, msg.MsgID, evt.Payload)
	case <-time.After(time.Second):
		t.Fatal("no replica.repaired event")
	}

	// A second pass has nothing left to do.
	assert.Zero(t, r.Drain(ctx))
}

func TestRepairedCopyReachesSubscriber(t *testing.T) {
	db := testDB(t)
	fs := &flakyStore{DB: db, failOwner: "bob", failures: 1}
	l, _ := newLog(t, fs, true)
	ctx := context.Background()

	sub, err := l.Subscribe(ctx, "bob", "alice", SubscribeOptions{})
	require.NoError(t, err)
	defer sub.Close()
	next(t, sub)

	msg, err := l.Append(ctx, "alice", "bob", "late", false)
	require.ErrorIs(t, err, ErrDeferred)

	r := NewReplicator(l, ReplicatorConfig{Interval: 20 * time.Millisecond}, nil)
	r.Start(ctx)
	defer r.Stop()

	u := next(t, sub)
	require.Len(t, u.Messages, 1)
	assert.Equal(t, msg.MsgID, u.Messages[0].MsgID)
}

func TestRepairedCopyArrivesAfterNewerMessages(t *testing.T) {
	db := testDB(t)
	fs := &flakyStore{DB: db, failOwner: "bob", failures: 1}
	l, _ := newLog(t, fs, true)
	ctx := context.Background()

	sub, err := l.Subscribe(ctx, "bob", "alice", SubscribeOptions{})
	require.NoError(t, err)
	defer sub.Close()
	next(t, sub)

	late, err := l.Append(ctx, "alice", "bob", "late", false)
	require.ErrorIs(t, err, ErrDeferred)
	after, err := l.Append(ctx, "alice", "bob", "after", false)
	require.NoError(t, err)

	u := next(t, sub)
	require.Len(t, u.Messages, 1)
	assert.Equal(t, after.MsgID, u.Messages[0].MsgID)

	r := NewReplicator(l, ReplicatorConfig{Interval: 20 * time.Millisecond}, nil)
	r.Start(ctx)
	defer r.Stop()

	u = next(t, sub)
	require.Len(t, u.Messages, 1)
	repaired := u.Messages[0]
	assert.Equal(t, late.MsgID, repaired.MsgID)
	assert.Less(t, repaired.CreatedAt, after.CreatedAt, "the repaired copy was created first")

	view := []Message{after, repaired}
	slices.SortFunc(view, func(a, b Message) int {
		if a.Less(b) {
			return -1
		}
		if b.Less(a) {
			return 1
		}
		return 0
	})
	assert.Equal(t, []string{"late", "after"}, []string{view[0].Text, view[1].Text})
}

func TestReplicatorGivesUp(t *testing.T) {
	db := testDB(t)
	fs := &flakyStore{DB: db, failOwner: "bob", failures: -1}
	l, b := newLog(t, fs, true)
	ctx := context.Background()

	failed, unsub := b.Subscribe(EventReplicaFailed, 4)
	defer unsub()

	msg, err := l.Append(ctx, "alice", "bob", "doomed", false)
	require.ErrorIs(t, err, ErrDeferred)

	r := NewReplicator(l, ReplicatorConfig{MaxAttempts: 2}, nil)
	assert.Zero(t, r.Drain(ctx))
	rep, err := db.GetReplica(ctx, msg.MsgID)
	require.NoError(t, err)
	assert.Equal(t, store.ReplicaQueued, rep.Status)
	assert.Equal(t, 1, rep.Attempts)

	assert.Zero(t, r.Drain(ctx))
	rep, err = db.GetReplica(ctx, msg.MsgID)
	require.NoError(t, err)
	assert.Equal(t, store.ReplicaFailed, rep.Status)
	assert.Contains(t, rep.ErrorMessage, errInjected.Error())

	select {
	case evt := <-failed:
		assert.Equal(t, msg.MsgID, evt.Payload)
	case <-time.After(time.Second):
		t.Fatal("no replica.failed event")
	}
	assert.Zero(t, r.Drain(ctx), "failed replicas are not retried")
}

func TestHistory(t *testing.T) {
	db := testDB(t)
	l, _ := newLog(t, db, true)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		_, err := l.Append(ctx, "alice", "bob", text, true)
		require.NoError(t, err)
	}

	all, err := l.History(ctx, "bob", "alice", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].IsAttachment)

	last, err := l.History(ctx, "bob", "alice", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "b", last[0].Text)
	assert.Equal(t, "c", last[1].Text)

	// Completed intents and unknown messages both count as delivered.
	undelivered, err := l.Undelivered(ctx, last[1].MsgID)
	require.NoError(t, err)
	assert.False(t, undelivered)
	undelivered, err = l.Undelivered(ctx, "no-such-message")
	require.NoError(t, err)
	assert.False(t, undelivered)
}
