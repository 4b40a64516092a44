package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillpath/progression-engine/internal/domain/reward"
	"github.com/skillpath/progression-engine/internal/domain/streak"
	"github.com/skillpath/progression-engine/pkg/circuitbreaker"
)

func newTestCache(t *testing.T) (*miniredis.Miniredis, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewCacheWithClient(client)
}

func TestCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	mr, c := newTestCache(t)

	require.NoError(t, c.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))

	var got map[string]int
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, 1, got["a"])
	assert.Equal(t, time.Minute, mr.TTL("k"))

	require.NoError(t, c.Delete(ctx, "k"))
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrCacheMiss)

	assert.ErrorIs(t, c.Set(ctx, "", 1, time.Minute), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Set(ctx, "k", nil, time.Minute), ErrCacheNilValue)
	assert.ErrorIs(t, c.Set(ctx, "k", 1, -time.Second), ErrCacheInvalidTTL)
}

func TestCache_DeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mr, c := newTestCache(t)

	require.NoError(t, c.Set(ctx, StreakLeaderboardKey(10), []int{1}, time.Minute))
	require.NoError(t, c.Set(ctx, StreakLeaderboardKey(50), []int{1}, time.Minute))
	require.NoError(t, c.Set(ctx, SnapshotKey("u1"), 1, time.Minute))

	require.NoError(t, c.DeleteByPattern(ctx, PrefixStreakLeaderboard+"*"))

	assert.False(t, mr.Exists(StreakLeaderboardKey(10)))
	assert.False(t, mr.Exists(StreakLeaderboardKey(50)))
	assert.True(t, mr.Exists(SnapshotKey("u1")))
}

func TestCache_SetVersioned(t *testing.T) {
	ctx := context.Background()
	mr, c := newTestCache(t)

	ok, err := c.SetVersioned(ctx, "v", "second", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetVersioned(ctx, "v", "first", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.SetVersioned(ctx, "v", "again", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	var got string
	require.NoError(t, c.GetVersioned(ctx, "v", &got))
	assert.Equal(t, "second", got)
	assert.Equal(t, time.Minute, mr.TTL("v"))

	ok, err = c.SetVersioned(ctx, "v", "third", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, c.GetVersioned(ctx, "v", &got))
	assert.Equal(t, "third", got)

	assert.ErrorIs(t, c.GetVersioned(ctx, "missing", &got), ErrCacheMiss)
	_, err = c.SetVersioned(ctx, "v", "x", 4, 0)
	assert.ErrorIs(t, err, ErrCacheInvalidTTL)
}

func TestCache_Lock(t *testing.T) {
	ctx := context.Background()
	_, c := newTestCache(t)

	ok, err := c.TryLock(ctx, "sweep", "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.TryLock(ctx, "sweep", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Unlock(ctx, "sweep", "worker-b"))
	ok, err = c.TryLock(ctx, "sweep", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a foreign unlock must not release the lock")

	require.NoError(t, c.Unlock(ctx, "sweep", "worker-a"))
	ok, err = c.TryLock(ctx, "sweep", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProgressionCache_Snapshot(t *testing.T) {
	ctx := context.Background()
	_, c := newTestCache(t)
	pc := NewProgressionCache(c, nil)

	_, ok := pc.Snapshot(ctx, "u1")
	assert.False(t, ok)

	snap := reward.Derive("u1", 150, reward.DefaultCurve(), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	pc.StoreSnapshot(ctx, snap)

	got, ok := pc.Snapshot(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, int64(150), got.TotalXP)
	assert.Equal(t, 2, got.Level)
}

func TestProgressionCache_SnapshotKeepsHighestVersion(t *testing.T) {
	ctx := context.Background()
	_, c := newTestCache(t)
	pc := NewProgressionCache(c, nil)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	snapAt := func(xp, version int64) *reward.Snapshot {
		s := reward.Derive("u1", xp, reward.DefaultCurve(), at)
		s.Version = version
		return s
	}

	pc.StoreSnapshot(ctx, snapAt(320, 2))
	pc.StoreSnapshot(ctx, snapAt(120, 1))

	got, ok := pc.Snapshot(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, int64(320), got.TotalXP)
	assert.Equal(t, int64(2), got.Version)

	pc.StoreSnapshot(ctx, snapAt(500, 3))
	got, ok = pc.Snapshot(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, int64(500), got.TotalXP)
}

func TestProgressionCache_StreakLeaderboard(t *testing.T) {
	ctx := context.Background()
	_, c := newTestCache(t)
	pc := NewProgressionCache(c, nil)

	pc.StoreStreakLeaderboard(ctx, 10, nil)
	got, ok := pc.StreakLeaderboard(ctx, 10)
	require.True(t, ok)
	assert.Empty(t, got)

	entries := []streak.LeaderboardEntry{{Rank: 1, UserID: "u1", CurrentStreak: 4, LongestStreak: 9}}
	pc.StoreStreakLeaderboard(ctx, 10, entries)
	got, ok = pc.StreakLeaderboard(ctx, 10)
	require.True(t, ok)
	assert.Equal(t, entries, got)

	pc.InvalidateStreakLeaderboard(ctx)
	_, ok = pc.StreakLeaderboard(ctx, 10)
	assert.False(t, ok)
}

func TestProgressionCache_BreakerOpensWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	mr, c := newTestCache(t)
	pc := NewProgressionCache(c, nil)

	mr.Close()
	for i := 0; i < 3; i++ {
		_, ok := pc.Snapshot(ctx, "u1")
		assert.False(t, ok)
	}
	assert.Equal(t, circuitbreaker.StateOpen, pc.Breaker().State())

	// Misses while open never reach Redis and never panic.
	pc.StoreSnapshot(ctx, reward.EmptySnapshot("u1"))
	pc.InvalidateStreakLeaderboard(ctx)
}
