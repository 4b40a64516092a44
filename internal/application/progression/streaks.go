package progression

import (
	"context"
	"errors"
	"fmt"

	"github.com/skillpath/progression-engine/internal/domain/achievement"
	"github.com/skillpath/progression-engine/internal/domain/reward"
	"github.com/skillpath/progression-engine/internal/domain/shared"
	"github.com/skillpath/progression-engine/internal/domain/store"
	"github.com/skillpath/progression-engine/internal/domain/streak"
	"github.com/skillpath/progression-engine/pkg/logger"
)

// StreakTracker maintains daily activity streaks.
type StreakTracker struct {
	rt           *runtime
	ledger       *Ledger
	achievements *AchievementEngine
}

// ActivityResult is the outcome of RecordActivity.
type ActivityResult struct {
	State     *streak.State
	Outcome   streak.Outcome
	XPAwarded int64

	// Unlocked lists streak achievements this activity unlocked.
	Unlocked []*achievement.Achievement
}

// RecordActivity counts today as an active day for the user, awards the
// streak bonus and unlocks streak achievements. Repeated calls on the same
// day change nothing and award nothing.
func (t *StreakTracker) RecordActivity(ctx context.Context, userID shared.UserID) (*ActivityResult, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}

	var res *ActivityResult
	err := t.rt.mutate(ctx, "streaks.record_activity", userID, func(ctx context.Context, tx *unit) error {
		now := t.rt.clock.Now()
		state, err := t.findOrNew(ctx, tx, userID)
		if err != nil {
			return err
		}

		outcome := state.RecordActivity(t.rt.today(), now)
		res = &ActivityResult{State: state, Outcome: outcome, Unlocked: []*achievement.Achievement{}}
		if !outcome.Changed() {
			return nil
		}

		if err := state.Validate(); err != nil {
			return err
		}
		if err := tx.Streaks().Save(ctx, state); err != nil {
			return err
		}

		if bonus := streak.Bonus(state.CurrentStreak); bonus > 0 {
			_, _, err := t.ledger.grantTx(ctx, tx, reward.Grant{
				UserID:      userID,
				Amount:      bonus,
				Source:      reward.SourceStreak,
				Description: fmt.Sprintf("%d-day streak bonus", state.CurrentStreak),
			})
			if err != nil {
				return err
			}
			res.XPAwarded = bonus
		}

		res.Unlocked, err = t.achievements.checkAndUnlockTx(ctx, tx, userID, achievement.CategoryStreak, int64(state.CurrentStreak))
		return err
	})
	if err != nil {
		return nil, err
	}

	if res.Outcome.Changed() {
		t.rt.cache.InvalidateStreakLeaderboard(ctx)
		t.rt.log.Debug("activity recorded",
			logger.UserID(string(userID)),
			logger.String("outcome", res.Outcome.String()),
			logger.StreakDays(res.State.CurrentStreak),
			logger.XPAmount(res.XPAwarded),
		)
	}
	return res, nil
}

func (t *StreakTracker) findOrNew(ctx context.Context, tx store.Store, userID shared.UserID) (*streak.State, error) {
	state, err := tx.Streaks().Find(ctx, userID)
	if err == nil {
		return state, nil
	}
	if errors.Is(err, shared.ErrStreakNotFound) {
		return streak.NewState(userID, t.rt.clock.Now()), nil
	}
	return nil, err
}

// GetOrCreate returns the user's streak, creating an empty one on first access.
func (t *StreakTracker) GetOrCreate(ctx context.Context, userID shared.UserID) (*streak.State, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}

	var state *streak.State
	err := t.rt.mutate(ctx, "streaks.get_or_create", userID, func(ctx context.Context, tx *unit) error {
		s, err := tx.Streaks().Find(ctx, userID)
		if err == nil {
			state = s
			return nil
		}
		if !errors.Is(err, shared.ErrStreakNotFound) {
			return err
		}
		state = streak.NewState(userID, t.rt.clock.Now())
		return tx.Streaks().Save(ctx, state)
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// AddFreezeTokens credits count freeze tokens to the user.
func (t *StreakTracker) AddFreezeTokens(ctx context.Context, userID shared.UserID, count int) (*streak.State, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, shared.ErrInvalidFreezeCount
	}

	var state *streak.State
	err := t.rt.mutate(ctx, "streaks.add_freeze_tokens", userID, func(ctx context.Context, tx *unit) error {
		var err error
		state, err = t.findOrNew(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := state.AddFreezeTokens(count, t.rt.clock.Now()); err != nil {
			return err
		}
		return tx.Streaks().Save(ctx, state)
	})
	if err != nil {
		return nil, err
	}

	t.rt.log.Info("freeze tokens added",
		logger.UserID(string(userID)), logger.Int("count", count), logger.Int("balance", state.FreezeTokens))
	return state, nil
}

// Leaderboard returns the top streaks ranked by current streak, then longest
// streak, then user ID. Users without a running streak are left out.
func (t *StreakTracker) Leaderboard(ctx context.Context, limit int) ([]streak.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = t.rt.cfg.LeaderboardLimit
	}
	if limit > t.rt.cfg.MaxLeaderboardLimit {
		limit = t.rt.cfg.MaxLeaderboardLimit
	}

	if entries, ok := t.rt.cache.StreakLeaderboard(ctx, limit); ok {
		return entries, nil
	}

	var entries []streak.LeaderboardEntry
	err := t.rt.read(ctx, "streaks.leaderboard", "", func(ctx context.Context) error {
		states, err := t.rt.store.Streaks().Leaderboard(ctx, limit)
		if err != nil {
			return err
		}

		entries = make([]streak.LeaderboardEntry, 0, len(states))
		for i, s := range states {
			entries = append(entries, streak.LeaderboardEntry{
				Rank:          i + 1,
				UserID:        s.UserID,
				CurrentStreak: s.CurrentStreak,
				LongestStreak: s.LongestStreak,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.rt.cache.StoreStreakLeaderboard(ctx, limit, entries)
	return entries, nil
}
