package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only while the caller still owns it.
// KEYS[1] = lease key
// ARGV[1] = fencing token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the TTL only while the caller still owns it.
// KEYS[1] = lease key
// ARGV[1] = fencing token
// ARGV[2] = ttl in milliseconds
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Client is the slice of the go-redis API the locker uses. Both
// *redis.Client and *redis.ClusterClient satisfy it.
type Client interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisLocker coordinates leases through a single Redis instance.
type RedisLocker struct {
	client Client
}

// NewRedisLocker connects a locker to the Redis at addr.
func NewRedisLocker(addr, password string, db int) *RedisLocker {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisLocker{client: rdb}
}

// NewRedisLockerFromClient wraps an existing client.
func NewRedisLockerFromClient(client Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire takes the episode lease with SET NX PX.
func (l *RedisLocker) Acquire(ctx context.Context, episodeID string, ttl time.Duration) (*Lease, error) {
	lease, err := newLease(episodeID, ttl)
	if err != nil {
		return nil, err
	}

	ok, err := l.client.SetNX(ctx, lease.Key, lease.Token, lease.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("lease: acquire: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHeld, episodeID)
	}
	return lease, nil
}

// Renew extends the lease by its TTL.
func (l *RedisLocker) Renew(ctx context.Context, lease *Lease) error {
	res, err := renewScript.Run(ctx, l.client, []string{lease.Key}, lease.Token, lease.TTL.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("lease: renew script: %w", err)
	}
	return scriptOutcome(res, lease.EpisodeID)
}

// Release gives the lease up.
func (l *RedisLocker) Release(ctx context.Context, lease *Lease) error {
	res, err := releaseScript.Run(ctx, l.client, []string{lease.Key}, lease.Token).Result()
	if err != nil {
		return fmt.Errorf("lease: release script: %w", err)
	}
	return scriptOutcome(res, lease.EpisodeID)
}

// scriptOutcome maps the 0/1 reply of the ownership scripts onto
// ErrNotHeld.
func scriptOutcome(res interface{}, episodeID string) error {
	n, ok := res.(int64)
	if !ok {
		return fmt.Errorf("lease: unexpected script reply %T", res)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotHeld, episodeID)
	}
	return nil
}
