package progression

import (
	"context"
	"errors"

	"github.com/skillpath/progression-engine/internal/domain/reward"
	"github.com/skillpath/progression-engine/internal/domain/shared"
	"github.com/skillpath/progression-engine/internal/domain/store"
	"github.com/skillpath/progression-engine/pkg/logger"
)

// Ledger is the only writer of reward events and progression snapshots.
type Ledger struct {
	rt *runtime
}

// Grant appends an XP event and refreshes the user's snapshot from the sum of
// all their events. Zero-amount grants are recorded for traceability.
func (l *Ledger) Grant(ctx context.Context, g reward.Grant) (*reward.Event, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	var event *reward.Event
	err := l.rt.mutate(ctx, "ledger.grant", g.UserID, func(ctx context.Context, tx *unit) error {
		var err error
		event, _, err = l.grantTx(ctx, tx, g)
		return err
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// grantTx runs inside a transaction that already holds the user's lock.
func (l *Ledger) grantTx(ctx context.Context, tx *unit, g reward.Grant) (*reward.Event, *reward.Snapshot, error) {
	now := l.rt.clock.Now()
	event, err := reward.NewEvent(g, now)
	if err != nil {
		return nil, nil, err
	}

	repo := tx.Rewards()
	if err := repo.Append(ctx, event); err != nil {
		return nil, nil, err
	}

	snap, prevLevel, err := l.refreshTx(ctx, tx, g.UserID)
	if err != nil {
		return nil, nil, err
	}
	tx.snapshot = snap

	log := l.rt.log.With(logger.UserID(string(g.UserID)))
	if event.HasSourceID() {
		log = log.With(logger.String("source_id", event.SourceID))
	}
	log.Debug("xp granted",
		logger.XPAmount(event.Amount),
		logger.Source(string(event.Source)),
		logger.Int64("total_xp", snap.TotalXP),
	)
	if snap.Level > prevLevel {
		log.Info("level up", logger.LevelNumber(snap.Level), logger.Int("previous_level", prevLevel))
	}
	return event, snap, nil
}

// refreshTx recomputes and saves the snapshot, returning it with the level
// the previous snapshot held.
func (l *Ledger) refreshTx(ctx context.Context, tx store.Store, userID shared.UserID) (*reward.Snapshot, int, error) {
	repo := tx.Rewards()

	total, err := repo.SumForUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	prevLevel := 1
	prev, err := repo.FindSnapshot(ctx, userID)
	switch {
	case err == nil:
		prevLevel = prev.Level
	case !errors.Is(err, shared.ErrSnapshotAbsent):
		return nil, 0, err
	}

	snap := reward.Derive(userID, total, l.rt.cfg.Curve, l.rt.clock.Now())
	if err := repo.SaveSnapshot(ctx, snap); err != nil {
		return nil, 0, err
	}
	return snap, prevLevel, nil
}

// Snapshot returns the user's total XP and level. Users without events get
// level 1 and zero XP.
func (l *Ledger) Snapshot(ctx context.Context, userID shared.UserID) (*reward.Snapshot, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	if snap, ok := l.rt.cache.Snapshot(ctx, userID); ok {
		return snap, nil
	}

	var snap *reward.Snapshot
	err := l.rt.read(ctx, "ledger.snapshot", userID, func(ctx context.Context) error {
		s, err := l.rt.store.Rewards().FindSnapshot(ctx, userID)
		if err == nil {
			snap = s
			return nil
		}
		if !errors.Is(err, shared.ErrSnapshotAbsent) {
			return err
		}

		// No snapshot yet: derive one without persisting it.
		total, err := l.rt.store.Rewards().SumForUser(ctx, userID)
		if err != nil {
			return err
		}
		snap = reward.Derive(userID, total, l.rt.cfg.Curve, l.rt.clock.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	// A concurrent commit may have published a later version meanwhile; the
	// cache keeps whichever version is higher.
	l.rt.cache.StoreSnapshot(ctx, snap)
	return snap, nil
}

// TotalXP returns the user's total XP.
func (l *Ledger) TotalXP(ctx context.Context, userID shared.UserID) (int64, error) {
	snap, err := l.Snapshot(ctx, userID)
	if err != nil {
		return 0, err
	}
	return snap.TotalXP, nil
}

// Level returns the user's level.
func (l *Ledger) Level(ctx context.Context, userID shared.UserID) (int, error) {
	snap, err := l.Snapshot(ctx, userID)
	if err != nil {
		return 0, err
	}
	return snap.Level, nil
}

// LevelProgress returns where the user sits inside their level band.
func (l *Ledger) LevelProgress(ctx context.Context, userID shared.UserID) (reward.LevelProgress, error) {
	snap, err := l.Snapshot(ctx, userID)
	if err != nil {
		return reward.LevelProgress{}, err
	}
	return l.rt.cfg.Curve.Progress(snap.TotalXP), nil
}

// BreakdownBySource returns XP per source, with every source present.
func (l *Ledger) BreakdownBySource(ctx context.Context, userID shared.UserID) (map[reward.Source]int64, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}

	var sums map[reward.Source]int64
	err := l.rt.read(ctx, "ledger.breakdown", userID, func(ctx context.Context) error {
		var err error
		sums, err = l.rt.store.Rewards().SumBySource(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make(map[reward.Source]int64, len(reward.AllSources()))
	for _, src := range reward.AllSources() {
		out[src] = sums[src]
	}
	return out, nil
}

// History returns the user's events from the last windowDays days, newest
// first. A non-positive window uses the configured default.
func (l *Ledger) History(ctx context.Context, userID shared.UserID, windowDays int) ([]*reward.Event, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	if windowDays <= 0 {
		windowDays = l.rt.cfg.HistoryDays
	}
	since := l.rt.clock.Now().AddDate(0, 0, -windowDays)

	var events []*reward.Event
	err := l.rt.read(ctx, "ledger.history", userID, func(ctx context.Context) error {
		var err error
		events, err = l.rt.store.Rewards().History(ctx, userID, since)
		return err
	})
	return events, err
}

// Reconcile rebuilds the user's snapshot from the ledger. It reports whether
// the stored snapshot was missing or had drifted.
func (l *Ledger) Reconcile(ctx context.Context, userID shared.UserID) (bool, error) {
	if err := validUser(userID); err != nil {
		return false, err
	}

	var drifted bool
	err := l.rt.mutate(ctx, "ledger.reconcile", userID, func(ctx context.Context, tx *unit) error {
		repo := tx.Rewards()
		total, err := repo.SumForUser(ctx, userID)
		if err != nil {
			return err
		}

		want := reward.Derive(userID, total, l.rt.cfg.Curve, l.rt.clock.Now())
		have, err := repo.FindSnapshot(ctx, userID)
		switch {
		case err == nil:
			drifted = have.TotalXP != want.TotalXP || have.Level != want.Level
		case errors.Is(err, shared.ErrSnapshotAbsent):
			drifted = true
		default:
			return err
		}

		if !drifted {
			return nil
		}
		if err := repo.SaveSnapshot(ctx, want); err != nil {
			return err
		}
		tx.snapshot = want
		return nil
	})
	if err != nil {
		return false, err
	}
	if drifted {
		l.rt.log.Warn("snapshot rebuilt from ledger", logger.UserID(string(userID)))
	}
	return drifted, nil
}
