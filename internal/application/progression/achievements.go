package progression

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/skillpath/progression-engine/internal/domain/achievement"
	"github.com/skillpath/progression-engine/internal/domain/reward"
	"github.com/skillpath/progression-engine/internal/domain/shared"
	"github.com/skillpath/progression-engine/internal/domain/store"
	"github.com/skillpath/progression-engine/pkg/logger"
)

// AchievementEngine tracks achievement progress and unlocks.
type AchievementEngine struct {
	rt     *runtime
	ledger *Ledger
}

// ProgressResult is the outcome of UpdateProgress.
type ProgressResult struct {
	Progress *achievement.Progress

	// Unlocked is true only for the call that flipped the achievement.
	Unlocked bool
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// UpdateProgress raises the user's progress on an achievement to value and
// unlocks it once the condition is met. Progress never decreases; the unlock
// and its XP reward happen exactly once.
func (e *AchievementEngine) UpdateProgress(ctx context.Context, userID shared.UserID, achievementID uuid.UUID, value int64) (*ProgressResult, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	if value < 0 {
		return nil, shared.ErrNegativeProgress
	}

	var res *ProgressResult
	err := e.rt.mutate(ctx, "achievements.update_progress", userID, func(ctx context.Context, tx *unit) error {
		a, err := tx.Achievements().FindByID(ctx, achievementID)
		if err != nil {
			return err
		}
		res, err = e.updateProgressTx(ctx, tx, userID, a, value)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *AchievementEngine) updateProgressTx(ctx context.Context, tx *unit, userID shared.UserID, a *achievement.Achievement, value int64) (*ProgressResult, error) {
	now := e.rt.clock.Now()
	repo := tx.Achievements()

	p, err := repo.RaiseProgress(ctx, userID, a.ID, value, now)
	if err != nil {
		return nil, err
	}
	if p.IsUnlocked || !a.IsMetBy(p.Progress) {
		return &ProgressResult{Progress: p}, nil
	}

	won, err := repo.MarkUnlocked(ctx, userID, a.ID, now)
	if err != nil {
		return nil, err
	}
	if !won {
		// Another transaction unlocked it first.
		p.IsUnlocked = true
		return &ProgressResult{Progress: p}, nil
	}

	at := now.UTC()
	p.IsUnlocked = true
	p.UnlockedAt = &at

	if a.XPReward > 0 {
		_, _, err := e.ledger.grantTx(ctx, tx, reward.Grant{
			UserID:      userID,
			Amount:      a.XPReward,
			Source:      reward.SourceAchievement,
			SourceID:    a.ID.String(),
			Description: fmt.Sprintf("Achievement: %s", a.Name),
		})
		if err != nil {
			return nil, err
		}
	}

	e.rt.log.Info("achievement unlocked",
		logger.UserID(string(userID)),
		logger.AchievementID(a.ID.String()),
		logger.String("code", a.Code),
		logger.XPAmount(a.XPReward),
	)
	return &ProgressResult{Progress: p, Unlocked: true}, nil
}

// CheckAndUnlock raises progress on every achievement of category whose
// condition value satisfies, hidden ones included, and returns those this
// call unlocked.
func (e *AchievementEngine) CheckAndUnlock(ctx context.Context, userID shared.UserID, category achievement.Category, value int64) ([]*achievement.Achievement, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	if !category.IsValid() {
		return nil, shared.Invariant("achievement", "CheckAndUnlock", "unknown category %q", category)
	}
	if value < 0 {
		return nil, shared.ErrNegativeProgress
	}

	var unlocked []*achievement.Achievement
	err := e.rt.mutate(ctx, "achievements.check_and_unlock", userID, func(ctx context.Context, tx *unit) error {
		var err error
		unlocked, err = e.checkAndUnlockTx(ctx, tx, userID, category, value)
		return err
	})
	if err != nil {
		return nil, err
	}
	return unlocked, nil
}

func (e *AchievementEngine) checkAndUnlockTx(ctx context.Context, tx *unit, userID shared.UserID, category achievement.Category, value int64) ([]*achievement.Achievement, error) {
	catalog, err := tx.Achievements().List(ctx, achievement.CatalogFilter{Category: &category, IncludeHidden: true})
	if err != nil {
		return nil, err
	}

	unlocked := make([]*achievement.Achievement, 0)
	for _, a := range catalog {
		if !a.IsMetBy(value) {
			continue
		}
		res, err := e.updateProgressTx(ctx, tx, userID, a, value)
		if err != nil {
			return nil, err
		}
		if res.Unlocked {
			unlocked = append(unlocked, a)
		}
	}
	return unlocked, nil
}

// UserAchievements returns the visible catalog joined with the user's
// progress. Entries the user never touched carry zero progress.
func (e *AchievementEngine) UserAchievements(ctx context.Context, userID shared.UserID) ([]achievement.UserAchievement, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}

	var out []achievement.UserAchievement
	err := e.rt.read(ctx, "achievements.user_achievements", userID, func(ctx context.Context) error {
		repo := e.rt.store.Achievements()
		catalog, err := repo.List(ctx, achievement.CatalogFilter{})
		if err != nil {
			return err
		}
		rows, err := repo.ListProgress(ctx, userID)
		if err != nil {
			return err
		}

		byID := make(map[uuid.UUID]*achievement.Progress, len(rows))
		for _, p := range rows {
			byID[p.AchievementID] = p
		}

		out = make([]achievement.UserAchievement, 0, len(catalog))
		for _, a := range catalog {
			p, ok := byID[a.ID]
			if !ok {
				p = achievement.DefaultProgress(userID, a.ID)
			}
			out = append(out, achievement.UserAchievement{Achievement: a, Progress: p})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DrainUnnotified marks the user's unlocked, unnotified achievements as
// notified and returns them. Each unlock is returned by exactly one call.
func (e *AchievementEngine) DrainUnnotified(ctx context.Context, userID shared.UserID) ([]*achievement.Progress, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}

	var drained []*achievement.Progress
	err := e.rt.mutate(ctx, "achievements.drain_unnotified", userID, func(ctx context.Context, tx *unit) error {
		var err error
		drained, err = tx.Achievements().DrainUnnotified(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return drained, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Create adds an achievement to the catalog.
func (e *AchievementEngine) Create(ctx context.Context, d achievement.Definition) (*achievement.Achievement, error) {
	a, err := achievement.New(d, e.rt.clock.Now())
	if err != nil {
		return nil, err
	}

	err = e.rt.atomic(ctx, "achievements.create", "", func(ctx context.Context, tx store.Store) error {
		return tx.Achievements().Create(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	e.rt.log.Info("achievement created", logger.AchievementID(a.ID.String()), logger.String("code", a.Code))
	return a, nil
}

// Update replaces the editable fields of a catalog entry.
func (e *AchievementEngine) Update(ctx context.Context, id uuid.UUID, d achievement.Definition) (*achievement.Achievement, error) {
	var a *achievement.Achievement
	err := e.rt.atomic(ctx, "achievements.update", "", func(ctx context.Context, tx store.Store) error {
		var err error
		a, err = tx.Achievements().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := a.Update(d, e.rt.clock.Now()); err != nil {
			return err
		}
		return tx.Achievements().Update(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Delete removes a catalog entry along with every user's progress on it.
func (e *AchievementEngine) Delete(ctx context.Context, id uuid.UUID) error {
	err := e.rt.atomic(ctx, "achievements.delete", "", func(ctx context.Context, tx store.Store) error {
		return tx.Achievements().Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	e.rt.log.Info("achievement deleted", logger.AchievementID(id.String()))
	return nil
}

// Get returns a catalog entry.
func (e *AchievementEngine) Get(ctx context.Context, id uuid.UUID) (*achievement.Achievement, error) {
	var a *achievement.Achievement
	err := e.rt.read(ctx, "achievements.get", "", func(ctx context.Context) error {
		var err error
		a, err = e.rt.store.Achievements().FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// List returns the catalog ordered by sort order. A nil category lists
// every category.
func (e *AchievementEngine) List(ctx context.Context, category *achievement.Category, includeHidden bool) ([]*achievement.Achievement, error) {
	if category != nil && !category.IsValid() {
		return nil, shared.Invariant("achievement", "List", "unknown category %q", *category)
	}

	var list []*achievement.Achievement
	err := e.rt.read(ctx, "achievements.list", "", func(ctx context.Context) error {
		var err error
		list, err = e.rt.store.Achievements().List(ctx, achievement.CatalogFilter{Category: category, IncludeHidden: includeHidden})
		return err
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}
