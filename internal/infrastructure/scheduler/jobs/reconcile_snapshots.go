package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/skillpath/progression-engine/internal/domain/shared"
	"github.com/skillpath/progression-engine/pkg/logger"
)

// UserLister pages through users with ledger events, ordered by ID.
type UserLister interface {
	ListUserIDs(ctx context.Context, after shared.UserID, limit int) ([]shared.UserID, error)
}

// Reconciler rebuilds a user's snapshot from the ledger.
type Reconciler interface {
	Reconcile(ctx context.Context, userID shared.UserID) (bool, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE SNAPSHOTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileSnapshotsJob checks every user's snapshot against the ledger and
// repairs drift.
type ReconcileSnapshotsJob struct {
	users      UserLister
	reconciler Reconciler
	locker     Locker
	owner      string
	log        *logger.Logger
	config     ReconcileSnapshotsConfig

	lastStats atomic.Value // ReconcileStats
}

// ReconcileSnapshotsConfig contains configuration for the reconcile job.
type ReconcileSnapshotsConfig struct {
	// BatchSize is how many users are read per page.
	BatchSize int

	// MaxFailures aborts the run after this many per-user errors.
	MaxFailures int

	LockTTL time.Duration
}

// DefaultReconcileSnapshotsConfig returns sensible defaults.
func DefaultReconcileSnapshotsConfig() ReconcileSnapshotsConfig {
	return ReconcileSnapshotsConfig{
		BatchSize:   500,
		MaxFailures: 50,
		LockTTL:     30 * time.Minute,
	}
}

// ReconcileStats describes one reconcile run.
type ReconcileStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Scanned   int
	Repaired  int
	Failed    int
	Skipped   bool
}

// ErrTooManyFailures aborts a reconcile run.
var ErrTooManyFailures = errors.New("too many reconcile failures")

// ReconcileSnapshotsJobName is the registered job name.
const ReconcileSnapshotsJobName = "reconcile-snapshots"

// NewReconcileSnapshotsJob creates the reconcile job. locker may be nil.
// A nil log logs through the run context.
func NewReconcileSnapshotsJob(users UserLister, reconciler Reconciler, locker Locker, log *logger.Logger, config ReconcileSnapshotsConfig) *ReconcileSnapshotsJob {
	if log != nil {
		log = log.With(logger.String("job", ReconcileSnapshotsJobName))
	}
	d := DefaultReconcileSnapshotsConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = d.BatchSize
	}
	if config.MaxFailures <= 0 {
		config.MaxFailures = d.MaxFailures
	}
	if config.LockTTL <= 0 {
		config.LockTTL = d.LockTTL
	}
	return &ReconcileSnapshotsJob{
		users:      users,
		reconciler: reconciler,
		locker:     locker,
		owner:      lockOwner(),
		log:        log,
		config:     config,
	}
}

// Name returns the job name.
func (j *ReconcileSnapshotsJob) Name() string { return ReconcileSnapshotsJobName }

// Description returns a human-readable description of the job.
func (j *ReconcileSnapshotsJob) Description() string {
	return "Rebuilds progression snapshots that drifted from the XP ledger"
}

// Run walks all users page by page.
func (j *ReconcileSnapshotsJob) Run(ctx context.Context) error {
	stats := ReconcileStats{StartedAt: time.Now()}

	ran, err := withLock(ctx, j.locker, ReconcileSnapshotsJobName, j.owner, j.config.LockTTL, func(ctx context.Context) error {
		return j.reconcileAll(ctx, &stats)
	})
	stats.Duration = time.Since(stats.StartedAt)
	stats.Skipped = !ran && err == nil
	j.lastStats.Store(stats)

	if err != nil {
		return fmt.Errorf("reconcile snapshots: %w", err)
	}
	log := jobLogger(ctx, j.log)
	if stats.Skipped {
		log.Info("reconcile skipped, another worker holds the lock")
		return nil
	}

	log.Info("reconcile finished",
		logger.Int("scanned", stats.Scanned),
		logger.Int("repaired", stats.Repaired),
		logger.Int("failed", stats.Failed),
		logger.Latency(stats.Duration),
	)
	return nil
}

func (j *ReconcileSnapshotsJob) reconcileAll(ctx context.Context, stats *ReconcileStats) error {
	var after shared.UserID
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := j.users.ListUserIDs(ctx, after, j.config.BatchSize)
		if err != nil {
			return err
		}

		for _, userID := range page {
			stats.Scanned++
			repaired, err := j.reconciler.Reconcile(ctx, userID)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				stats.Failed++
				jobLogger(ctx, j.log).Warn("reconcile user failed", logger.UserID(string(userID)), logger.Err(err))
				if stats.Failed >= j.config.MaxFailures {
					return fmt.Errorf("%w: %d", ErrTooManyFailures, stats.Failed)
				}
				continue
			}
			if repaired {
				stats.Repaired++
			}
		}

		if len(page) < j.config.BatchSize {
			return nil
		}
		after = page[len(page)-1]
	}
}

// LastStats returns the statistics of the most recent run.
func (j *ReconcileSnapshotsJob) LastStats() (ReconcileStats, bool) {
	s, ok := j.lastStats.Load().(ReconcileStats)
	return s, ok
}
