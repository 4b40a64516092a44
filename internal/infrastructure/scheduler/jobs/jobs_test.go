package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillpath/progression-engine/internal/domain/shared"
	"github.com/skillpath/progression-engine/internal/infrastructure/persistence/redis"
)

type fakeSweeper struct {
	n     int64
	err   error
	calls int
}

func (f *fakeSweeper) SweepExpired(ctx context.Context, asOf time.Time) (int64, error) {
	f.calls++
	return f.n, f.err
}

func newLocker(t *testing.T) *redis.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redis.NewCacheWithClient(client)
}

func TestSweepExpiredGoalsJob_Run(t *testing.T) {
	ctx := context.Background()
	sweeper := &fakeSweeper{n: 3}
	job := NewSweepExpiredGoalsJob(sweeper, newLocker(t), nil, SweepExpiredGoalsConfig{})

	require.NoError(t, job.Run(ctx))
	assert.Equal(t, 1, sweeper.calls)

	stats, ok := job.LastStats()
	require.True(t, ok)
	assert.Equal(t, int64(3), stats.Failed)
	assert.False(t, stats.Skipped)

	// The lock is released after the run.
	require.NoError(t, job.Run(ctx))
	assert.Equal(t, 2, sweeper.calls)
}

func TestSweepExpiredGoalsJob_SkipsWhenLocked(t *testing.T) {
	ctx := context.Background()
	locker := newLocker(t)
	ok, err := locker.TryLock(ctx, SweepExpiredGoalsJobName, "other-worker", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	sweeper := &fakeSweeper{}
	job := NewSweepExpiredGoalsJob(sweeper, locker, nil, SweepExpiredGoalsConfig{})
	require.NoError(t, job.Run(ctx))
	assert.Zero(t, sweeper.calls)

	stats, _ := job.LastStats()
	assert.True(t, stats.Skipped)
}

func TestSweepExpiredGoalsJob_PropagatesErrors(t *testing.T) {
	job := NewSweepExpiredGoalsJob(&fakeSweeper{err: shared.ErrTimeout}, nil, nil, SweepExpiredGoalsConfig{})
	assert.ErrorIs(t, job.Run(context.Background()), shared.ErrTimeout)
}

type fakeUsers struct {
	ids []shared.UserID
}

func (f *fakeUsers) ListUserIDs(ctx context.Context, after shared.UserID, limit int) ([]shared.UserID, error) {
	sorted := append([]shared.UserID(nil), f.ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := []shared.UserID{}
	for _, id := range sorted {
		if id > after {
			out = append(out, id)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeReconciler struct {
	mu      sync.Mutex
	seen    []shared.UserID
	drifted map[shared.UserID]bool
	failing map[shared.UserID]bool
}

func (f *fakeReconciler) Reconcile(ctx context.Context, userID shared.UserID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, userID)
	if f.failing[userID] {
		return false, errors.New("store down")
	}
	return f.drifted[userID], nil
}

func TestReconcileSnapshotsJob_PagesThroughUsers(t *testing.T) {
	users := &fakeUsers{ids: []shared.UserID{"e", "a", "d", "c", "b"}}
	rec := &fakeReconciler{
		drifted: map[shared.UserID]bool{"b": true, "e": true},
		failing: map[shared.UserID]bool{"c": true},
	}
	job := NewReconcileSnapshotsJob(users, rec, newLocker(t), nil, ReconcileSnapshotsConfig{BatchSize: 2})

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []shared.UserID{"a", "b", "c", "d", "e"}, rec.seen)

	stats, ok := job.LastStats()
	require.True(t, ok)
	assert.Equal(t, 5, stats.Scanned)
	assert.Equal(t, 2, stats.Repaired)
	assert.Equal(t, 1, stats.Failed)
}

func TestReconcileSnapshotsJob_AbortsAfterTooManyFailures(t *testing.T) {
	users := &fakeUsers{ids: []shared.UserID{"a", "b", "c"}}
	rec := &fakeReconciler{failing: map[shared.UserID]bool{"a": true, "b": true, "c": true}}
	job := NewReconcileSnapshotsJob(users, rec, nil, nil, ReconcileSnapshotsConfig{MaxFailures: 2})

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, ErrTooManyFailures)
	assert.Len(t, rec.seen, 2)
}
