package attachment

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Backend turns a storage reference into a fetchable URL.
type Backend interface {
	ResolveURL(ctx context.Context, ref string) (string, error)
}

// Resolver caches reference → URL for its lifetime. Entries are never
// invalidated; failed lookups are not cached.
type Resolver struct {
	backend Backend
	logger  *zap.Logger

	mu    sync.RWMutex
	cache map[string]string
	group singleflight.Group
}

// NewResolver creates a resolver over backend.
func NewResolver(backend Backend, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		backend: backend,
		logger:  logger,
		cache:   make(map[string]string),
	}
}

// Cached returns the URL for ref if it has already been resolved.
func (r *Resolver) Cached(ref string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.cache[ref]
	return u, ok
}

// Resolve returns the URL for ref. Concurrent misses for the same ref share
// one backend call.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	if u, ok := r.Cached(ref); ok {
		return u, nil
	}
	v, err, _ := r.group.Do(ref, func() (any, error) {
		if u, ok := r.Cached(ref); ok {
			return u, nil
		}
		u, err := r.backend.ResolveURL(ctx, ref)
		if err != nil {
			return "", err
		}
		r.mu.Lock()
		r.cache[ref] = u
		r.mu.Unlock()
		return u, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ResolveAsync resolves ref in the background and calls fn with the result.
// A cache hit calls fn synchronously.
func (r *Resolver) ResolveAsync(ctx context.Context, ref string, fn func(url string, err error)) {
	if u, ok := r.Cached(ref); ok {
		fn(u, nil)
		return
	}
	go func() {
		u, err := r.Resolve(ctx, ref)
		if err != nil {
			r.logger.Warn("resolve attachment failed", zap.String("ref", ref), zap.Error(err))
		}
		fn(u, err)
	}()
}

// Len reports the number of cached references.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
