package profile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/chatter/internal/bus"
	"github.com/matheus3301/chatter/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *Service {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, bus.New(), 50*time.Millisecond, nil)
}

func TestCreateAndGet(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, Profile{Identity: "u1", DisplayName: " Alice ", Email: " Alice@Example.com"}))

	p, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.DisplayName)
	assert.Equal(t, "alice@example.com", p.Email)

	_, err = s.Get(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, s.Create(ctx, Profile{Identity: "u2"}), ErrInvalid)
}

func TestUpdateIsSelfService(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, Profile{Identity: "u1", DisplayName: "Alice"}))

	err := s.Update(ctx, "u2", Profile{Identity: "u1", DisplayName: "Mallory"})
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, s.Update(ctx, "u1", Profile{Identity: "u1", DisplayName: "Alice B."}))
	p, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice B.", p.DisplayName)

	err = s.Update(ctx, "ghost", Profile{Identity: "ghost", DisplayName: "Boo"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSubscribe(t *testing.T) {
	s := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx, "u1")

	// Created after the subscription started.
	require.NoError(t, s.Create(ctx, Profile{Identity: "u1", DisplayName: "Alice"}))
	select {
	case p := <-ch:
		assert.Equal(t, "Alice", p.DisplayName)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial profile")
	}

	require.NoError(t, s.Update(ctx, "u1", Profile{Identity: "u1", DisplayName: "Alicia"}))
	select {
	case p := <-ch:
		assert.Equal(t, "Alicia", p.DisplayName)
	case <-time.After(2 * time.Second):
		t.Fatal("no profile update")
	}

	cancel()
	select {
	case _, ok := <-ch:
		for ok {
			_, ok = <-ch
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}
