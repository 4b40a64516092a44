package redis

import (
	"context"
	"errors"

	"github.com/skillpath/progression-engine/internal/domain/reward"
	"github.com/skillpath/progression-engine/internal/domain/shared"
	"github.com/skillpath/progression-engine/internal/domain/streak"
	"github.com/skillpath/progression-engine/pkg/circuitbreaker"
	"github.com/skillpath/progression-engine/pkg/logger"
)

// ProgressionCache caches derived progression reads. Every method is best
// effort: Redis errors are logged and reported as misses, and a tripped
// breaker skips Redis entirely until it cools down.
type ProgressionCache struct {
	cache   *Cache
	breaker *circuitbreaker.Breaker
	log     *logger.Logger
}

// NewProgressionCache wraps cache with a breaker tuned for cache traffic.
func NewProgressionCache(cache *Cache, log *logger.Logger) *ProgressionCache {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("progression_cache"))

	settings := circuitbreaker.CacheSettings("redis")
	settings.IsFailure = func(err error) bool {
		return !errors.Is(err, ErrCacheMiss) && !errors.Is(err, context.Canceled)
	}
	settings.OnStateChange = func(name string, from, to circuitbreaker.State) {
		log.Warn("cache breaker changed state",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}

	return &ProgressionCache{
		cache:   cache,
		breaker: circuitbreaker.New(settings),
		log:     log,
	}
}

// Breaker exposes the breaker state for health reporting.
func (c *ProgressionCache) Breaker() *circuitbreaker.Breaker {
	return c.breaker
}

func (c *ProgressionCache) do(ctx context.Context, op string, fn func(context.Context) error) error {
	err := c.breaker.Execute(ctx, fn)
	if err != nil && !errors.Is(err, ErrCacheMiss) && !errors.Is(err, circuitbreaker.ErrOpen) {
		c.log.Warn("cache operation failed", logger.Operation(op), logger.Err(err))
	}
	return err
}

// Snapshot returns the cached snapshot of userID.
func (c *ProgressionCache) Snapshot(ctx context.Context, userID shared.UserID) (*reward.Snapshot, bool) {
	var s reward.Snapshot
	err := c.do(ctx, "get_snapshot", func(ctx context.Context) error {
		return c.cache.GetVersioned(ctx, SnapshotKey(string(userID)), &s)
	})
	if err != nil {
		return nil, false
	}
	return &s, true
}

// StoreSnapshot caches s unless the cache already holds the same or a later
// version of the user's snapshot.
func (c *ProgressionCache) StoreSnapshot(ctx context.Context, s *reward.Snapshot) {
	_ = c.do(ctx, "set_snapshot", func(ctx context.Context) error {
		_, err := c.cache.SetVersioned(ctx, SnapshotKey(string(s.UserID)), s, s.Version, TTLSnapshot)
		return err
	})
}

// StreakLeaderboard returns the cached leaderboard of size limit.
func (c *ProgressionCache) StreakLeaderboard(ctx context.Context, limit int) ([]streak.LeaderboardEntry, bool) {
	var entries []streak.LeaderboardEntry
	err := c.do(ctx, "get_streak_leaderboard", func(ctx context.Context) error {
		return c.cache.Get(ctx, StreakLeaderboardKey(limit), &entries)
	})
	if err != nil {
		return nil, false
	}
	return entries, true
}

// StoreStreakLeaderboard caches a leaderboard of size limit.
func (c *ProgressionCache) StoreStreakLeaderboard(ctx context.Context, limit int, entries []streak.LeaderboardEntry) {
	if entries == nil {
		entries = []streak.LeaderboardEntry{}
	}
	_ = c.do(ctx, "set_streak_leaderboard", func(ctx context.Context) error {
		return c.cache.Set(ctx, StreakLeaderboardKey(limit), entries, TTLStreakLeaderboard)
	})
}

// InvalidateStreakLeaderboard drops every cached leaderboard page.
func (c *ProgressionCache) InvalidateStreakLeaderboard(ctx context.Context) {
	_ = c.do(ctx, "invalidate_streak_leaderboard", func(ctx context.Context) error {
		return c.cache.DeleteByPattern(ctx, PrefixStreakLeaderboard+"*")
	})
}
