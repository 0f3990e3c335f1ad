package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("log.", 10)
	defer unsub()

	b.Publish(NewEvent("log.appended", LogKey{Owner: "a", Partner: "b"}))

	select {
	case evt := <-ch:
		if evt.Kind != "log.appended" {
			t.Errorf("got kind %q, want log.appended", evt.Kind)
		}
		key, ok := evt.Payload.(LogKey)
		if !ok || key.Owner != "a" || key.Partner != "b" {
			t.Errorf("payload = %#v, want LogKey{a b}", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("friend.", 10)
	defer unsub()

	b.Publish(Event{Kind: "log.appended"})
	b.Publish(Event{Kind: "friend.added"})

	select {
	case evt := <-ch:
		if evt.Kind != "friend.added" {
			t.Errorf("got kind %q, want friend.added", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("log.", 10)
	unsub()

	b.Publish(Event{Kind: "log.appended"})

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("received event after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
		t.Fatal("channel not closed after unsubscribe")
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
}

func TestCountByNamespace(t *testing.T) {
	b := New()
	_, unsubLog := b.Subscribe("log.appended", 1)
	_, unsubProfile := b.Subscribe("profile.updated", 1)
	defer unsubProfile()

	if got := b.Count("log."); got != 1 {
		t.Errorf("Count(log.) = %d, want 1", got)
	}
	if got := b.Count(""); got != 2 {
		t.Errorf("Count(\"\") = %d, want 2", got)
	}
	unsubLog()
	if got := b.Count("log."); got != 0 {
		t.Errorf("Count(log.) after unsubscribe = %d, want 0", got)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe("log.", 1)
	unsub()
	unsub()
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	b.Publish(Event{Kind: "test.one"})
	// Dropped, buffer is full.
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}
