package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/matheus3301/chatter/internal/bus"
	"github.com/matheus3301/chatter/internal/objstore"
	"github.com/matheus3301/chatter/internal/profile"
	"github.com/matheus3301/chatter/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type env struct {
	db       *store.DB
	objects  *objstore.Store
	profiles *profile.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	objects, err := objstore.New(filepath.Join(dir, "objects"), "")
	require.NoError(t, err)
	return &env{db: db, objects: objects, profiles: profile.New(db, bus.New(), 0, nil)}
}

func (e *env) provider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(context.Background(), e.db, e.objects, e.profiles, nil)
	require.NoError(t, err)
	p.cost = bcrypt.MinCost
	return p
}

func TestSignUpCreatesProfileAndSignsIn(t *testing.T) {
	e := newEnv(t)
	p := e.provider(t)
	ctx := context.Background()

	var seen []string
	unsub := p.OnIdentityChange(func(id string) { seen = append(seen, id) })
	defer unsub()

	id, err := p.SignUp(ctx, "Alice@Example.com", "secret1", "Alice", &Avatar{Name: "me.png", Data: []byte("png")})
	require.NoError(t, err)

	cur, ok := p.Current()
	assert.True(t, ok)
	assert.Equal(t, id, cur)
	assert.Equal(t, []string{id}, seen)

	prof, err := e.profiles.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Alice", prof.DisplayName)
	assert.Equal(t, "alice@example.com", prof.Email)
	assert.Contains(t, prof.AvatarRef, "images/"+id+"/")

	_, err = e.objects.ResolveURL(ctx, prof.AvatarRef)
	assert.NoError(t, err)
}

func TestSignUpValidation(t *testing.T) {
	p := newEnv(t).provider(t)
	ctx := context.Background()

	_, err := p.SignUp(ctx, "nope", "secret1", "A", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = p.SignUp(ctx, "a@b.c", "123", "A", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = p.SignUp(ctx, "a@b.c", "secret1", " ", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.SignUp(ctx, "a@b.c", "secret1", "A", nil)
	require.NoError(t, err)
	_, err = p.SignUp(ctx, "A@B.C", "secret2", "B", nil)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

type failingProfiles struct{}

func (failingProfiles) Create(context.Context, profile.Profile) error {
	return errors.New("profile store down")
}

func TestSignUpRollsBackAccount(t *testing.T) {
	e := newEnv(t)
	p, err := New(context.Background(), e.db, e.objects, failingProfiles{}, nil)
	require.NoError(t, err)
	p.cost = bcrypt.MinCost
	ctx := context.Background()

	_, err = p.SignUp(ctx, "a@b.c", "secret1", "A", nil)
	require.Error(t, err)
	_, ok := p.Current()
	assert.False(t, ok)

	_, err = e.db.GetAccountByEmail(ctx, "a@b.c")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSignInSignOut(t *testing.T) {
	e := newEnv(t)
	p := e.provider(t)
	ctx := context.Background()

	id, err := p.SignUp(ctx, "a@b.c", "secret1", "A", nil)
	require.NoError(t, err)
	require.NoError(t, p.SignOut(ctx))
	require.NoError(t, p.SignOut(ctx))
	_, ok := p.Current()
	assert.False(t, ok)

	_, err = p.SignIn(ctx, "a@b.c", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = p.SignIn(ctx, "x@y.z", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	got, err := p.SignIn(ctx, " A@B.C", "secret1")
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestIdentityIsRestored(t *testing.T) {
	e := newEnv(t)
	p := e.provider(t)
	ctx := context.Background()

	id, err := p.SignUp(ctx, "a@b.c", "secret1", "A", nil)
	require.NoError(t, err)

	restored := e.provider(t)
	cur, ok := restored.Current()
	assert.True(t, ok)
	assert.Equal(t, id, cur)

	require.NoError(t, restored.SignOut(ctx))
	_, ok = e.provider(t).Current()
	assert.False(t, ok)
}

func TestOnIdentityChangeUnsubscribe(t *testing.T) {
	e := newEnv(t)
	p := e.provider(t)
	ctx := context.Background()

	calls := 0
	unsub := p.OnIdentityChange(func(string) { calls++ })
	_, err := p.SignUp(ctx, "a@b.c", "secret1", "A", nil)
	require.NoError(t, err)
	unsub()
	require.NoError(t, p.SignOut(ctx))
	assert.Equal(t, 1, calls)
}
