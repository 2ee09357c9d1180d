package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisTokenBlacklist(t *testing.T) {
	mr, client := newTestRedis(t)
	bl := NewRedisTokenBlacklist(client)
	ctx := context.Background()

	ok, err := bl.IsBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, bl.Add(ctx, "jti-1", time.Minute))
	ok, err = bl.IsBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = bl.IsBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, ok, "entry should expire with the token")
}

func TestBlacklistIgnoresExpiredTokens(t *testing.T) {
	_, client := newTestRedis(t)
	for name, bl := range map[string]TokenBlacklist{
		"redis":  NewRedisTokenBlacklist(client),
		"memory": NewInMemoryTokenBlacklist(),
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, bl.Add(context.Background(), "gone", 0))
			ok, err := bl.IsBlacklisted(context.Background(), "gone")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestInMemoryTokenBlacklistExpiry(t *testing.T) {
	bl := NewInMemoryTokenBlacklist()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bl.now = func() time.Time { return now }

	require.NoError(t, bl.Add(context.Background(), "a", time.Minute))
	ok, _ := bl.IsBlacklisted(context.Background(), "a")
	assert.True(t, ok)

	now = now.Add(time.Hour)
	ok, _ = bl.IsBlacklisted(context.Background(), "a")
	assert.False(t, ok)
}

func TestBlacklistClaimIsExclusive(t *testing.T) {
	_, client := newTestRedis(t)
	for name, bl := range map[string]TokenBlacklist{
		"redis":  NewRedisTokenBlacklist(client),
		"memory": NewInMemoryTokenBlacklist(),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := bl.Claim(ctx, "rotated", time.Minute)
					assert.NoError(t, err)
					if ok {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, wins)

			listed, err := bl.IsBlacklisted(ctx, "rotated")
			require.NoError(t, err)
			assert.True(t, listed)

			ok, err := bl.Claim(ctx, "expired", 0)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestInMemoryTokenBlacklistClaimAfterExpiry(t *testing.T) {
	bl := NewInMemoryTokenBlacklist()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bl.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := bl.Claim(ctx, "a", time.Minute)
	assert.True(t, ok)
	ok, _ = bl.Claim(ctx, "a", time.Minute)
	assert.False(t, ok)

	now = now.Add(time.Hour)
	ok, _ = bl.Claim(ctx, "a", time.Minute)
	assert.True(t, ok, "an expired entry no longer blocks the jti")
}

func TestRedisLockerReleaseKeepsForeignLock(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewRedisLocker(client, time.Second)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "DH1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:DH1"))

	// Simulate the lease expiring and another instance taking the key.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("lock:DH1", "someone-else"))

	unlock()
	got, err := mr.Get("lock:DH1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLockerTimesOut(t *testing.T) {
	_, client := newTestRedis(t)
	locker := NewRedisLocker(client, time.Minute)

	unlock, err := locker.Lock(context.Background(), "DH2")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "DH2")
	assert.ErrorIs(t, err, ErrLockNotAcquired)
}

func TestLockersSerialiseSameKey(t *testing.T) {
	_, client := newTestRedis(t)
	for name, locker := range map[string]Locker{
		"redis": NewRedisLocker(client, 5*time.Second),
		"local": NewLocalLocker(),
	} {
		t.Run(name, func(t *testing.T) {
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				inside  int
				maxSeen int
				counter int
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock, err := locker.Lock(context.Background(), "order")
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					inside++
					if inside > maxSeen {
						maxSeen = inside
					}
					mu.Unlock()

					time.Sleep(time.Millisecond)

					mu.Lock()
					inside--
					counter++
					mu.Unlock()
					unlock()
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, maxSeen)
			assert.Equal(t, 20, counter)
		})
	}
}

func TestLocalLockerCleansUp(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
	unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.locks)
}
