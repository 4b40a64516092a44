package progression

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skillpath/progression-engine/internal/domain/goal"
	"github.com/skillpath/progression-engine/internal/domain/reward"
	"github.com/skillpath/progression-engine/internal/domain/shared"
	"github.com/skillpath/progression-engine/internal/domain/store"
	"github.com/skillpath/progression-engine/pkg/logger"
	"github.com/skillpath/progression-engine/pkg/timeutil"
)

// GoalTracker manages user goals and their lifecycle.
type GoalTracker struct {
	rt     *runtime
	ledger *Ledger
}

// GoalResult is the outcome of a progress update.
type GoalResult struct {
	Goal *goal.Goal

	// Completed is true only for the update that completed the goal.
	Completed bool
	XPAwarded int64
}

// Create starts a new ACTIVE goal.
func (t *GoalTracker) Create(ctx context.Context, s goal.Spec) (*goal.Goal, error) {
	g, err := goal.New(s, t.rt.clock.Now())
	if err != nil {
		return nil, err
	}

	err = t.rt.mutate(ctx, "goals.create", g.UserID, func(ctx context.Context, tx *unit) error {
		return tx.Goals().Create(ctx, g)
	})
	if err != nil {
		return nil, err
	}

	t.rt.log.Info("goal created",
		logger.UserID(string(g.UserID)), logger.GoalID(g.ID.String()), logger.Int64("target", g.TargetValue))
	return g, nil
}

// SetProgress sets the goal's current value. Reaching the target completes
// the goal and grants its reward once.
func (t *GoalTracker) SetProgress(ctx context.Context, goalID uuid.UUID, value int64) (*GoalResult, error) {
	if value < 0 {
		return nil, shared.ErrNegativeGoalValue
	}
	return t.update(ctx, "goals.set_progress", goalID, func(*goal.Goal) int64 { return value })
}

// IncrementProgress adds delta to the goal's current value.
func (t *GoalTracker) IncrementProgress(ctx context.Context, goalID uuid.UUID, delta int64) (*GoalResult, error) {
	return t.update(ctx, "goals.increment_progress", goalID, func(g *goal.Goal) int64 { return g.CurrentValue + delta })
}

func (t *GoalTracker) update(ctx context.Context, op string, goalID uuid.UUID, next func(*goal.Goal) int64) (*GoalResult, error) {
	owner, err := t.owner(ctx, goalID)
	if err != nil {
		return nil, err
	}

	var res *GoalResult
	err = t.rt.mutate(ctx, op, owner, func(ctx context.Context, tx *unit) error {
		g, err := tx.Goals().FindByIDForUpdate(ctx, goalID)
		if err != nil {
			return err
		}

		completed, err := g.SetProgress(next(g), t.rt.clock.Now())
		if err != nil {
			return err
		}
		if err := tx.Goals().SaveTransition(ctx, g); err != nil {
			return err
		}

		res = &GoalResult{Goal: g, Completed: completed}
		t.rt.log.Debug("goal progress",
			logger.GoalID(g.ID.String()), logger.Int64("value", g.CurrentValue), logger.Float64("percent", g.Percent()))
		if !completed || g.XPReward <= 0 {
			return nil
		}

		_, _, err = t.ledger.grantTx(ctx, tx, reward.Grant{
			UserID:      g.UserID,
			Amount:      g.XPReward,
			Source:      reward.SourceGoal,
			SourceID:    g.ID.String(),
			Description: fmt.Sprintf("Goal completed: %s", g.Title),
		})
		if err != nil {
			return err
		}
		res.XPAwarded = g.XPReward
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Completed {
		t.rt.log.Info("goal completed",
			logger.UserID(string(owner)), logger.GoalID(goalID.String()), logger.XPAmount(res.XPAwarded))
	}
	return res, nil
}

// owner resolves the user whose lock guards the goal.
func (t *GoalTracker) owner(ctx context.Context, goalID uuid.UUID) (shared.UserID, error) {
	g, err := t.rt.store.Goals().FindByID(ctx, goalID)
	if err != nil {
		return "", err
	}
	return g.UserID, nil
}

// Abandon moves an ACTIVE goal to ABANDONED.
func (t *GoalTracker) Abandon(ctx context.Context, goalID uuid.UUID) (*goal.Goal, error) {
	owner, err := t.owner(ctx, goalID)
	if err != nil {
		return nil, err
	}

	var g *goal.Goal
	err = t.rt.mutate(ctx, "goals.abandon", owner, func(ctx context.Context, tx *unit) error {
		var err error
		g, err = tx.Goals().FindByIDForUpdate(ctx, goalID)
		if err != nil {
			return err
		}
		if err := g.Abandon(t.rt.clock.Now()); err != nil {
			return err
		}
		return tx.Goals().SaveTransition(ctx, g)
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// SweepExpired fails every ACTIVE goal whose end date is at or before asOf
// and returns how many it moved. A zero asOf means the start of today.
func (t *GoalTracker) SweepExpired(ctx context.Context, asOf time.Time) (int64, error) {
	now := t.rt.clock.Now()
	if asOf.IsZero() {
		asOf = timeutil.StartOfDay(now, t.rt.cfg.Location)
	}

	var n int64
	err := t.rt.atomic(ctx, "goals.sweep_expired", "", func(ctx context.Context, tx store.Store) error {
		var err error
		n, err = tx.Goals().FailExpired(ctx, asOf.UTC(), now)
		return err
	})
	if err != nil {
		return 0, err
	}

	if n > 0 {
		t.rt.log.Info("expired goals failed", logger.Time("as_of", asOf), logger.RowsAffected(n))
	}
	return n, nil
}

// Delete removes a goal owned by userID in any status.
func (t *GoalTracker) Delete(ctx context.Context, goalID uuid.UUID, userID shared.UserID) error {
	if err := validUser(userID); err != nil {
		return err
	}
	return t.rt.mutate(ctx, "goals.delete", userID, func(ctx context.Context, tx *unit) error {
		g, err := tx.Goals().FindByIDForUpdate(ctx, goalID)
		if err != nil {
			return err
		}
		if !g.OwnedBy(userID) {
			return shared.ErrGoalNotFound
		}
		return tx.Goals().Delete(ctx, goalID, userID)
	})
}

// Get returns a goal.
func (t *GoalTracker) Get(ctx context.Context, goalID uuid.UUID) (*goal.Goal, error) {
	var g *goal.Goal
	err := t.rt.read(ctx, "goals.get", "", func(ctx context.Context) error {
		var err error
		g, err = t.rt.store.Goals().FindByID(ctx, goalID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// ListForUser returns the user's goals by end date. A nil status lists all.
func (t *GoalTracker) ListForUser(ctx context.Context, userID shared.UserID, status *goal.Status) ([]*goal.Goal, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	if status != nil && !status.IsValid() {
		return nil, shared.Invariant("goal", "List", "unknown status %q", *status)
	}

	var goals []*goal.Goal
	err := t.rt.read(ctx, "goals.list", userID, func(ctx context.Context) error {
		var err error
		goals, err = t.rt.store.Goals().ListByUser(ctx, userID, status)
		return err
	})
	if err != nil {
		return nil, err
	}
	return goals, nil
}

// CountActive returns how many ACTIVE goals the user has.
func (t *GoalTracker) CountActive(ctx context.Context, userID shared.UserID) (int, error) {
	if err := validUser(userID); err != nil {
		return 0, err
	}

	var n int
	err := t.rt.read(ctx, "goals.count_active", userID, func(ctx context.Context) error {
		var err error
		n, err = t.rt.store.Goals().CountByStatus(ctx, userID, goal.StatusActive)
		return err
	})
	return n, err
}
