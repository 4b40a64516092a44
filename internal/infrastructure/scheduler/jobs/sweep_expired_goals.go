// Package jobs contains the worker's scheduled jobs.
package jobs

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/skillpath/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// GoalSweeper fails expired goals.
type GoalSweeper interface {
	SweepExpired(ctx context.Context, asOf time.Time) (int64, error)
}

// Locker is a cluster-wide mutex so only one worker runs a job at a time.
type Locker interface {
	TryLock(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, resource, owner string) error
}

// lockOwner identifies this process as a lock holder.
func lockOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString())
}

// withLock runs fn while holding resource. It reports false without running
// fn when another worker holds the lock. A nil locker always runs fn.
func withLock(ctx context.Context, locker Locker, resource, owner string, ttl time.Duration, fn func(context.Context) error) (bool, error) {
	if locker == nil {
		return true, fn(ctx)
	}

	ok, err := locker.TryLock(ctx, resource, owner, ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s lock: %w", resource, err)
	}
	if !ok {
		return false, nil
	}
	defer func() {
		// Release on a fresh context; ctx may already be cancelled.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = locker.Unlock(unlockCtx, resource, owner)
	}()

	return true, fn(ctx)
}

// jobLogger returns log, or the logger the scheduler attached to ctx when
// the job was built without one.
func jobLogger(ctx context.Context, log *logger.Logger) *logger.Logger {
	if log != nil {
		return log
	}
	return logger.FromContext(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// SWEEP EXPIRED GOALS JOB
// ══════════════════════════════════════════════════════════════════════════════

// SweepExpiredGoalsJob moves ACTIVE goals past their end date to FAILED.
type SweepExpiredGoalsJob struct {
	sweeper GoalSweeper
	locker  Locker
	owner   string
	log     *logger.Logger
	config  SweepExpiredGoalsConfig

	lastStats atomic.Value // SweepStats
}

// SweepExpiredGoalsConfig contains configuration for the sweep job.
type SweepExpiredGoalsConfig struct {
	// LockTTL bounds how long a crashed worker can block other sweeps.
	LockTTL time.Duration
}

// DefaultSweepExpiredGoalsConfig returns sensible defaults.
func DefaultSweepExpiredGoalsConfig() SweepExpiredGoalsConfig {
	return SweepExpiredGoalsConfig{LockTTL: 5 * time.Minute}
}

// SweepStats describes one sweep run.
type SweepStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Failed    int64
	Skipped   bool
}

// NewSweepExpiredGoalsJob creates the sweep job. locker may be nil on a
// single-worker deployment. A nil log logs through the run context.
func NewSweepExpiredGoalsJob(sweeper GoalSweeper, locker Locker, log *logger.Logger, config SweepExpiredGoalsConfig) *SweepExpiredGoalsJob {
	if log != nil {
		log = log.With(logger.String("job", SweepExpiredGoalsJobName))
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultSweepExpiredGoalsConfig().LockTTL
	}
	return &SweepExpiredGoalsJob{
		sweeper: sweeper,
		locker:  locker,
		owner:   lockOwner(),
		log:     log,
		config:  config,
	}
}

// SweepExpiredGoalsJobName is the registered job name.
const SweepExpiredGoalsJobName = "sweep-expired-goals"

// Name returns the job name.
func (j *SweepExpiredGoalsJob) Name() string { return SweepExpiredGoalsJobName }

// Description returns a human-readable description of the job.
func (j *SweepExpiredGoalsJob) Description() string {
	return "Fails active goals whose end date has passed"
}

// Run executes one sweep as of the start of today.
func (j *SweepExpiredGoalsJob) Run(ctx context.Context) error {
	stats := SweepStats{StartedAt: time.Now()}

	ran, err := withLock(ctx, j.locker, SweepExpiredGoalsJobName, j.owner, j.config.LockTTL, func(ctx context.Context) error {
		n, err := j.sweeper.SweepExpired(ctx, time.Time{})
		stats.Failed = n
		return err
	})
	stats.Duration = time.Since(stats.StartedAt)
	stats.Skipped = !ran && err == nil
	j.lastStats.Store(stats)

	if err != nil {
		return fmt.Errorf("sweep expired goals: %w", err)
	}
	log := jobLogger(ctx, j.log)
	if stats.Skipped {
		log.Info("sweep skipped, another worker holds the lock")
		return nil
	}

	log.Info("sweep finished", logger.RowsAffected(stats.Failed), logger.Latency(stats.Duration))
	return nil
}

// LastStats returns the statistics of the most recent run.
func (j *SweepExpiredGoalsJob) LastStats() (SweepStats, bool) {
	s, ok := j.lastStats.Load().(SweepStats)
	return s, ok
}
