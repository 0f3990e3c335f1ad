package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestMigrateSeedsClock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Hour).UnixMilli()
	if _, err := db.PutEntry(context.Background(), &Entry{Owner: "a", Partner: "b", MsgID: "m1", Sender: "a", Text: "hi", CreatedAt: future}); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	if got := db.Now(); got <= future {
		t.Errorf("Now() = %d, want > %d after reopen", got, future)
	}
}

func TestClockStrictlyIncreasing(t *testing.T) {
	fixed := time.UnixMilli(1000)
	c := NewClock(func() time.Time { return fixed })

	a, b, d := c.Next(), c.Next(), c.Next()
	if a != 1000 || b != 1001 || d != 1002 {
		t.Errorf("Next() = %d, %d, %d; want 1000, 1001, 1002", a, b, d)
	}
}

func TestPutEntryIdempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	e := &Entry{Owner: "a", Partner: "b", MsgID: "m1", Sender: "a", Text: "hi", CreatedAt: 10}
	inserted, err := db.PutEntry(ctx, e)
	if err != nil || !inserted {
		t.Fatalf("first PutEntry() = %v, %v; want true, nil", inserted, err)
	}
	if e.Seq == 0 {
		t.Error("Seq not populated on insert")
	}

	again := *e
	again.Seq = 0
	inserted, err = db.PutEntry(ctx, &again)
	if err != nil || inserted {
		t.Fatalf("second PutEntry() = %v, %v; want false, nil", inserted, err)
	}

	entries, err := db.ListEntries(ctx, "a", "b", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
}

func TestListEntriesOrderAndCursor(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	// Inserted out of created_at order.
	for _, e := range []Entry{
		{Owner: "a", Partner: "b", MsgID: "m2", Sender: "b", Text: "two", CreatedAt: 20},
		{Owner: "a", Partner: "b", MsgID: "m1", Sender: "a", Text: "one", CreatedAt: 10},
		{Owner: "a", Partner: "b", MsgID: "m3", Sender: "a", Text: "three", CreatedAt: 30},
		{Owner: "b", Partner: "a", MsgID: "m1", Sender: "a", Text: "one", CreatedAt: 10},
	} {
		if _, err := db.PutEntry(ctx, &e); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := db.ListEntries(ctx, "a", "b", 0)
	if err != nil {
		t.Fatal(err)
	}
	var texts []string
	for _, e := range entries {
		texts = append(texts, e.Text)
	}
	if len(texts) != 3 || texts[0] != "one" || texts[1] != "two" || texts[2] != "three" {
		t.Errorf("texts = %v, want [one two three]", texts)
	}

	// Cursor: entries inserted after the first one (m2).
	after, err := db.ListEntries(ctx, "a", "b", entries[1].Seq)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != 2 {
		t.Errorf("got %d entries after seq %d, want 2", len(after), entries[1].Seq)
	}

	tail, err := db.TailEntries(ctx, "a", "b", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 1 || tail[0].Text != "three" {
		t.Errorf("tail = %+v, want [three]", tail)
	}

	maxSeq, err := db.MaxSeq(ctx, "a", "b")
	if err != nil {
		t.Fatal(err)
	}
	if maxSeq != entries[2].Seq {
		t.Errorf("MaxSeq = %d, want %d", maxSeq, entries[2].Seq)
	}
}

func TestGetEntryNotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetEntry(context.Background(), "a", "b", "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFriends(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if ok, err := db.PutFriend(ctx, "a", "b"); err != nil || !ok {
		t.Fatalf("PutFriend() = %v, %v", ok, err)
	}
	if ok, err := db.PutFriend(ctx, "a", "b"); err != nil || ok {
		t.Fatalf("repeated PutFriend() = %v, %v; want false, nil", ok, err)
	}
	if _, err := db.PutFriend(ctx, "a", "c"); err != nil {
		t.Fatal(err)
	}

	friends, err := db.ListFriends(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(friends) != 2 {
		t.Errorf("got %v, want [b c]", friends)
	}

	has, err := db.HasFriend(ctx, "b", "a")
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Error("edge b->a must not exist, edges are one-way records")
	}
}

func TestProfiles(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, err := db.GetProfile(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetProfile(missing) err = %v, want ErrNotFound", err)
	}

	p := &Profile{Identity: "a", DisplayName: "Alice", Email: "alice@example.com"}
	if err := db.UpsertProfile(ctx, p); err != nil {
		t.Fatal(err)
	}
	p.DisplayName = "Alice B"
	if err := db.UpsertProfile(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetProfile(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.DisplayName != "Alice B" {
		t.Errorf("DisplayName = %q, want Alice B", got.DisplayName)
	}

	found, err := db.FindProfilesByEmail(ctx, "alice@example.com", "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 0 {
		t.Errorf("caller must be excluded, got %v", found)
	}
	found, err = db.FindProfilesByEmail(ctx, "alice@example.com", "b")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].Identity != "a" {
		t.Errorf("got %v, want [a]", found)
	}
}

func TestAccountsUniqueEmail(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.CreateAccount(ctx, &Account{Identity: "a", Email: "x@example.com", PasswordHash: []byte("h")}); err != nil {
		t.Fatal(err)
	}
	err := db.CreateAccount(ctx, &Account{Identity: "b", Email: "x@example.com", PasswordHash: []byte("h")})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}

	a, err := db.GetAccountByEmail(ctx, "x@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if a.Identity != "a" {
		t.Errorf("Identity = %q, want a", a.Identity)
	}
}

func TestReplicaLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	r := &Replica{MsgID: "m1", Sender: "a", Peer: "b", Text: "hi", CreatedAt: 5}
	if err := db.QueueReplica(ctx, r); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := db.QueueReplica(ctx, r); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingReplicas(ctx, time.Now().UnixMilli(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].MsgID != "m1" {
		t.Fatalf("pending = %+v, want [m1]", pending)
	}

	status, err := db.MarkReplicaRetry(ctx, "m1", "disk full", 2)
	if err != nil {
		t.Fatal(err)
	}
	if status != ReplicaQueued {
		t.Errorf("status after 1 attempt = %q, want queued", status)
	}
	status, err = db.MarkReplicaRetry(ctx, "m1", "disk full", 2)
	if err != nil {
		t.Fatal(err)
	}
	if status != ReplicaFailed {
		t.Errorf("status after 2 attempts = %q, want failed", status)
	}

	got, err := db.GetReplica(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Attempts != 2 || got.ErrorMessage != "disk full" {
		t.Errorf("replica = %+v", got)
	}

	if err := db.MarkReplicaDone(ctx, "m1"); err != nil {
		t.Fatal(err)
	}
	n, err := db.ReplicaCount(ctx, ReplicaDone)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("done count = %d, want 1", n)
	}
}

func TestReplicaCopies(t *testing.T) {
	r := &Replica{MsgID: "m1", Sender: "a", Peer: "b", Text: "hi", IsAttachment: true, CreatedAt: 7}
	c := r.Copies()
	if c[0].Owner != "a" || c[0].Partner != "b" || c[1].Owner != "b" || c[1].Partner != "a" {
		t.Errorf("copies keyed wrong: %+v", c)
	}
	for _, e := range c {
		if e.Sender != "a" || e.Text != "hi" || !e.IsAttachment || e.CreatedAt != 7 || e.MsgID != "m1" {
			t.Errorf("copy payload differs: %+v", e)
		}
	}
}

func TestSettings(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, err := db.GetSetting(ctx, "current_identity"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := db.SetSetting(ctx, "current_identity", "a"); err != nil {
		t.Fatal(err)
	}
	v, err := db.GetSetting(ctx, "current_identity")
	if err != nil || v != "a" {
		t.Fatalf("GetSetting() = %q, %v", v, err)
	}
	if err := db.DeleteSetting(ctx, "current_identity"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetSetting(ctx, "current_identity"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err after delete = %v, want ErrNotFound", err)
	}
}
