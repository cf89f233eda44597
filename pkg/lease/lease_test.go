package lease

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerSerializesAcquire(t *testing.T) {
	now := time.UnixMilli(1724000000000)
	locker := NewMemoryLocker().WithClock(func() time.Time { return now })
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "ep-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "arbiter:lease:ep-1", lease.Key)
	assert.NotEmpty(t, lease.Token)

	_, err = locker.Acquire(ctx, "ep-1", time.Minute)
	assert.ErrorIs(t, err, ErrHeld)

	// A different episode is untouched.
	_, err = locker.Acquire(ctx, "ep-2", time.Minute)
	assert.NoError(t, err)

	require.NoError(t, locker.Release(ctx, lease))
	_, err = locker.Acquire(ctx, "ep-1", time.Minute)
	assert.NoError(t, err)
}

func TestMemoryLockerExpiryFencesStaleHolder(t *testing.T) {
	now := time.UnixMilli(1724000000000)
	locker := NewMemoryLocker().WithClock(func() time.Time { return now })
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "ep-1", time.Minute)
	require.NoError(t, err)

	// TTL elapses; the next caller takes over.
	now = now.Add(2 * time.Minute)
	fresh, err := locker.Acquire(ctx, "ep-1", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, locker.Release(ctx, stale), ErrNotHeld)
	assert.ErrorIs(t, locker.Renew(ctx, stale), ErrNotHeld)

	// Renew pushes the fresh lease's window out.
	now = now.Add(30 * time.Second)
	require.NoError(t, locker.Renew(ctx, fresh))
	now = now.Add(45 * time.Second)
	require.NoError(t, locker.Release(ctx, fresh))
}

func TestAcquireValidation(t *testing.T) {
	locker := NewMemoryLocker()

	_, err := locker.Acquire(context.Background(), "", time.Minute)
	assert.ErrorContains(t, err, "episode id")

	lease, err := locker.Acquire(context.Background(), "ep-1", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, lease.TTL)
}

// fakeRedis implements the Client slice in memory so the locker's
// SetNX/script wiring is testable without a server.
type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
}

var _ Client = (*fakeRedis)(nil)

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.values[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = fmt.Sprint(value)
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

// EvalSha stands in for both ownership scripts: a second arg means
// renew, none means release.
func (f *fakeRedis) EvalSha(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := keys[0]
	if f.values[key] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	if len(args) > 1 {
		ms, err := strconv.ParseInt(fmt.Sprint(args[1]), 10, 64)
		if err != nil {
			return redis.NewCmdResult(nil, err)
		}
		f.ttls[key] = time.Duration(ms) * time.Millisecond
	} else {
		delete(f.values, key)
		delete(f.ttls, key)
	}
	return redis.NewCmdResult(int64(1), nil)
}

func (f *fakeRedis) Eval(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.EvalSha(ctx, "", keys, args...)
}

func (f *fakeRedis) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeRedis) EvalShaRO(ctx context.Context, sha string, keys []string, args ...interface{}) *redis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeRedis) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func TestRedisLockerLifecycle(t *testing.T) {
	fake := newFakeRedis()
	locker := NewRedisLockerFromClient(fake)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "ep-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, lease.Token, fake.values[lease.Key])
	assert.Equal(t, time.Minute, fake.ttls[lease.Key])

	_, err = locker.Acquire(ctx, "ep-1", time.Minute)
	assert.ErrorIs(t, err, ErrHeld)

	// Renew forwards the TTL to PEXPIRE.
	lease.TTL = 2 * time.Minute
	require.NoError(t, locker.Renew(ctx, lease))
	assert.Equal(t, 2*time.Minute, fake.ttls[lease.Key])

	require.NoError(t, locker.Release(ctx, lease))
	assert.Empty(t, fake.values)

	_, err = locker.Acquire(ctx, "ep-1", time.Minute)
	assert.NoError(t, err)
}

func TestRedisLockerFencesStaleHolder(t *testing.T) {
	fake := newFakeRedis()
	locker := NewRedisLockerFromClient(fake)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "ep-1", time.Minute)
	require.NoError(t, err)

	// The key expired server-side and another process leased it.
	fake.mu.Lock()
	delete(fake.values, stale.Key)
	fake.mu.Unlock()
	fresh, err := locker.Acquire(ctx, "ep-1", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, locker.Release(ctx, stale), ErrNotHeld)
	assert.ErrorIs(t, locker.Renew(ctx, stale), ErrNotHeld)

	// The takeover is unaffected.
	assert.Equal(t, fresh.Token, fake.values[fresh.Key])
	require.NoError(t, locker.Release(ctx, fresh))
}

func TestOpenPicksBackend(t *testing.T) {
	assert.IsType(t, &MemoryLocker{}, Open(Config{}))
	assert.IsType(t, &RedisLocker{}, Open(Config{Endpoint: "localhost:6379"}))
}
