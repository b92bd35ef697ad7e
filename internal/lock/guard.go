// Package lock serializes experiment processing per experiment id. The local
// guard covers single-instance deployments; the Redis lease extends the same
// contract across horizontally scaled instances.
package lock

import (
	"context"
	"sync"
)

// Guard grants at most one holder per key at a time. TryAcquire returns
// false without blocking when the key is already held; a true result must be
// paired with a Release call, typically deferred.
type Guard interface {
	TryAcquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// LocalGuard is an in-process Guard backed by a concurrent map insert.
type LocalGuard struct {
	held sync.Map
}

// NewLocalGuard returns an empty process-local guard.
func NewLocalGuard() *LocalGuard { return &LocalGuard{} }

// TryAcquire records the key if absent.
func (g *LocalGuard) TryAcquire(_ context.Context, key string) (bool, error) {
	_, loaded := g.held.LoadOrStore(key, struct{}{})
	return !loaded, nil
}

// Release forgets the key. Releasing an unheld key is a no-op.
func (g *LocalGuard) Release(_ context.Context, key string) error {
	g.held.Delete(key)
	return nil
}
