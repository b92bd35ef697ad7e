package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultLeaseTTL bounds how long a crashed holder can block reprocessing.
// Trial generation over a large dataset is slow, so the lease is generous;
// live holders do not depend on it because they release explicitly.
const DefaultLeaseTTL = 30 * time.Minute

// releaseScript deletes the lease only when the stored fencing value still
// belongs to this holder, so an expired lease reclaimed by another instance
// is never released by the original one.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard is a Guard backed by a Redis lease (SET NX PX with a random
// fencing value). It serializes processing across service instances.
type RedisGuard struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string

	mu     sync.Mutex
	tokens map[string]string
}

// NewRedisGuard returns a lease guard using the given client.
func NewRedisGuard(client redis.Cmdable, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &RedisGuard{
		client: client,
		ttl:    ttl,
		prefix: "engine:processing:",
		tokens: make(map[string]string),
	}
}

// TryAcquire takes the lease for the key if no live holder exists.
func (g *RedisGuard) TryAcquire(ctx context.Context, key string) (bool, error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, g.prefix+key, token, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease for %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	g.mu.Lock()
	g.tokens[key] = token
	g.mu.Unlock()
	return true, nil
}

// Release drops the lease if this instance still holds it. A lease that
// expired and was reclaimed elsewhere is left alone.
func (g *RedisGuard) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	token, ok := g.tokens[key]
	delete(g.tokens, key)
	g.mu.Unlock()
	if !ok {
		return nil
	}
	if err := releaseScript.Run(ctx, g.client, []string{g.prefix + key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lease for %s: %w", key, err)
	}
	return nil
}
