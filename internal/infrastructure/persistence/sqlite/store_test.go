package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillpath/progression-engine/internal/domain/achievement"
	"github.com/skillpath/progression-engine/internal/domain/goal"
	"github.com/skillpath/progression-engine/internal/domain/reward"
	"github.com/skillpath/progression-engine/internal/domain/shared"
	"github.com/skillpath/progression-engine/internal/domain/store"
	"github.com/skillpath/progression-engine/internal/domain/streak"
)

var t0 = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(context.Background(), MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func appendEvent(t *testing.T, s *Store, user shared.UserID, amount int64, src reward.Source, at time.Time) {
	t.Helper()
	e, err := reward.NewEvent(reward.Grant{UserID: user, Amount: amount, Source: src}, at)
	require.NoError(t, err)
	require.NoError(t, s.Rewards().Append(context.Background(), e))
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, MemoryPath)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.migrate(ctx))

	var n int
	require.NoError(t, db.X().Get(&n, `SELECT COUNT(*) FROM schema_migrations`))
	assert.Equal(t, len(migrations), n)
}

func TestRewards_SumsAndHistory(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	total, err := s.Rewards().SumForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, total)

	appendEvent(t, s, "u1", 100, reward.SourcePractice, t0)
	appendEvent(t, s, "u1", 50, reward.SourceExam, t0.Add(time.Minute))
	appendEvent(t, s, "u1", 25, reward.SourcePractice, t0.Add(2*time.Minute))
	appendEvent(t, s, "u2", 999, reward.SourceBonus, t0)

	total, err = s.Rewards().SumForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(175), total)

	bySource, err := s.Rewards().SumBySource(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[reward.Source]int64{reward.SourcePractice: 125, reward.SourceExam: 50}, bySource)

	history, err := s.Rewards().History(ctx, "u1", t0.Add(30*time.Second))
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(25), history[0].Amount)
	assert.Equal(t, int64(50), history[1].Amount)
	assert.Equal(t, time.UTC, history[0].CreatedAt.Location())
}

func TestRewards_Snapshot(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, err := s.Rewards().FindSnapshot(ctx, "u1")
	assert.ErrorIs(t, err, shared.ErrSnapshotAbsent)

	first := reward.Derive("u1", 150, reward.DefaultCurve(), t0)
	require.NoError(t, s.Rewards().SaveSnapshot(ctx, first))
	assert.Equal(t, int64(1), first.Version)

	second := reward.Derive("u1", 300, reward.DefaultCurve(), t0)
	require.NoError(t, s.Rewards().SaveSnapshot(ctx, second))
	assert.Equal(t, int64(2), second.Version)

	snap, err := s.Rewards().FindSnapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), snap.TotalXP)
	assert.Equal(t, 3, snap.Level)
	assert.Equal(t, int64(2), snap.Version)
}

func TestRewards_ListUserIDs(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	for _, u := range []shared.UserID{"c", "a", "b", "a"} {
		appendEvent(t, s, u, 1, reward.SourceBonus, t0)
	}

	page, err := s.Rewards().ListUserIDs(ctx, "", 2)
	require.NoError(t, err)
	assert.Equal(t, []shared.UserID{"a", "b"}, page)

	page, err = s.Rewards().ListUserIDs(ctx, "b", 2)
	require.NoError(t, err)
	assert.Equal(t, []shared.UserID{"c"}, page)
}

func TestStreaks_SaveFindLeaderboard(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, err := s.Streaks().Find(ctx, "u1")
	assert.ErrorIs(t, err, shared.ErrStreakNotFound)

	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	states := []*streak.State{
		{UserID: "u1", CurrentStreak: 3, LongestStreak: 5, LastActivityDate: &day, FreezeTokens: 2, UpdatedAt: t0},
		{UserID: "u2", CurrentStreak: 3, LongestStreak: 9, LastActivityDate: &day, UpdatedAt: t0},
		{UserID: "u3", CurrentStreak: 0, LongestStreak: 4, UpdatedAt: t0},
		{UserID: "u4", CurrentStreak: 7, LongestStreak: 7, LastActivityDate: &day, UpdatedAt: t0},
	}
	for _, st := range states {
		require.NoError(t, s.Streaks().Save(ctx, st))
	}

	got, err := s.Streaks().Find(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.FreezeTokens)
	require.NotNil(t, got.LastActivityDate)
	assert.True(t, got.LastActivityDate.Equal(day))
	assert.Nil(t, got.LastFreezeDate)

	top, err := s.Streaks().Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, shared.UserID("u4"), top[0].UserID)
	assert.Equal(t, shared.UserID("u2"), top[1].UserID)
	assert.Equal(t, shared.UserID("u1"), top[2].UserID)
}

func newAchievement(t *testing.T, s *Store, code string, cond int64, hidden bool) *achievement.Achievement {
	t.Helper()
	a, err := achievement.New(achievement.Definition{
		Code:           code,
		Name:           code,
		Category:       achievement.CategoryPractice,
		ConditionType:  achievement.ConditionCount,
		ConditionValue: cond,
		XPReward:       50,
		IsHidden:       hidden,
	}, t0)
	require.NoError(t, err)
	require.NoError(t, s.Achievements().Create(context.Background(), a))
	return a
}

func TestAchievements_Catalog(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	visible := newAchievement(t, s, "first_steps", 1, false)
	newAchievement(t, s, "secret", 3, true)

	dup, err := achievement.New(achievement.Definition{
		Code: "first_steps", Name: "x", Category: achievement.CategoryExam,
		ConditionType: achievement.ConditionCount, ConditionValue: 1,
	}, t0)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Achievements().Create(ctx, dup), shared.ErrAchievementCodeTaken)

	list, err := s.Achievements().List(ctx, achievement.CatalogFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, visible.ID, list[0].ID)

	list, err = s.Achievements().List(ctx, achievement.CatalogFilter{IncludeHidden: true})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	exam := achievement.CategoryExam
	list, err = s.Achievements().List(ctx, achievement.CatalogFilter{Category: &exam, IncludeHidden: true})
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, s.Achievements().Delete(ctx, visible.ID))
	_, err = s.Achievements().FindByID(ctx, visible.ID)
	assert.ErrorIs(t, err, shared.ErrAchievementNotFound)
	assert.ErrorIs(t, s.Achievements().Delete(ctx, visible.ID), shared.ErrAchievementNotFound)
}

func TestAchievements_ProgressIsMonotonicAndUnlockIsCAS(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	a := newAchievement(t, s, "ten", 10, false)

	p, err := s.Achievements().FindProgress(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = s.Achievements().RaiseProgress(ctx, "u1", a.ID, 7, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.Progress)

	p, err = s.Achievements().RaiseProgress(ctx, "u1", a.ID, 3, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.Progress)

	won, err := s.Achievements().MarkUnlocked(ctx, "u1", a.ID, t0)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.Achievements().MarkUnlocked(ctx, "u1", a.ID, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, won)

	p, err = s.Achievements().FindProgress(ctx, "u1", a.ID)
	require.NoError(t, err)
	require.NotNil(t, p.UnlockedAt)
	assert.True(t, p.UnlockedAt.Equal(t0))

	drained, err := s.Achievements().DrainUnnotified(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, drained, 1)

	drained, err = s.Achievements().DrainUnnotified(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, drained)
}

func TestAchievements_DeleteCascadesProgress(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	a := newAchievement(t, s, "gone", 1, false)

	_, err := s.Achievements().RaiseProgress(ctx, "u1", a.ID, 1, t0)
	require.NoError(t, err)
	require.NoError(t, s.Achievements().Delete(ctx, a.ID))

	rows, err := s.Achievements().ListProgress(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func newGoal(t *testing.T, s *Store, user shared.UserID, end time.Time) *goal.Goal {
	t.Helper()
	g, err := goal.New(goal.Spec{
		UserID:      user,
		Title:       "Read docs",
		TargetValue: 5,
		StartDate:   t0.AddDate(0, 0, -7),
		EndDate:     end,
		XPReward:    100,
	}, t0)
	require.NoError(t, err)
	require.NoError(t, s.Goals().Create(context.Background(), g))
	return g
}

func TestGoals_TransitionGuardedOnActive(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	g := newGoal(t, s, "u1", t0.AddDate(0, 0, 7))

	completed, err := g.SetProgress(5, t0)
	require.NoError(t, err)
	require.True(t, completed)
	require.NoError(t, s.Goals().SaveTransition(ctx, g))

	stored, err := s.Goals().FindByIDForUpdate(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, goal.StatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)

	assert.ErrorIs(t, s.Goals().SaveTransition(ctx, g), shared.ErrGoalNotActive)
}

func TestGoals_FailExpiredAndQueries(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	expired := newGoal(t, s, "u1", t0.AddDate(0, 0, -1))
	boundary := newGoal(t, s, "u1", t0)
	live := newGoal(t, s, "u1", t0.AddDate(0, 0, 3))

	n, err := s.Goals().FailExpired(ctx, t0, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.Goals().FailExpired(ctx, t0, t0)
	require.NoError(t, err)
	assert.Zero(t, n)

	failed := goal.StatusFailed
	list, err := s.Goals().ListByUser(ctx, "u1", &failed)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, expired.ID, list[0].ID)
	assert.Equal(t, boundary.ID, list[1].ID)

	active, err := s.Goals().CountByStatus(ctx, "u1", goal.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, 1, active)

	all, err := s.Goals().ListByUser(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	assert.ErrorIs(t, s.Goals().Delete(ctx, live.ID, "someone-else"), shared.ErrGoalNotFound)
	require.NoError(t, s.Goals().Delete(ctx, live.ID, "u1"))
	_, err = s.Goals().FindByID(ctx, live.ID)
	assert.ErrorIs(t, err, shared.ErrGoalNotFound)
}

func TestAtomic_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(tx store.Store) error {
		e, err := reward.NewEvent(reward.Grant{UserID: "u1", Amount: 10, Source: reward.SourceBonus}, t0)
		require.NoError(t, err)
		require.NoError(t, tx.Rewards().Append(ctx, e))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	total, err := s.Rewards().SumForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestAtomic_NestedSharesTransaction(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	err := s.Atomic(ctx, func(tx store.Store) error {
		require.NoError(t, tx.LockUser(ctx, "u1"))
		return tx.Atomic(ctx, func(inner store.Store) error {
			e, err := reward.NewEvent(reward.Grant{UserID: "u1", Amount: 10, Source: reward.SourceBonus}, t0)
			if err != nil {
				return err
			}
			return inner.Rewards().Append(ctx, e)
		})
	})
	require.NoError(t, err)

	total, err := s.Rewards().SumForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)
}

func TestCheckConstraintMapsToInvariant(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	err := s.Streaks().Save(ctx, &streak.State{UserID: "u1", CurrentStreak: 5, LongestStreak: 1, UpdatedAt: t0})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}
