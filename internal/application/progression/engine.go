// Package progression turns user activity into XP, levels, streaks,
// achievement unlocks and goal completions.
//
// Every mutating operation runs as one store transaction holding the user's
// lock, so concurrent calls for the same user are serialized while different
// users proceed in parallel. Transient store failures retry the whole
// operation; each operation is safe to repeat.
package progression

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skillpath/progression-engine/internal/domain/reward"
	"github.com/skillpath/progression-engine/internal/domain/shared"
	"github.com/skillpath/progression-engine/internal/domain/store"
	"github.com/skillpath/progression-engine/internal/domain/streak"
	"github.com/skillpath/progression-engine/pkg/logger"
	"github.com/skillpath/progression-engine/pkg/retry"
	"github.com/skillpath/progression-engine/pkg/timeutil"
)

// TracerName is the instrumentation name of engine spans.
const TracerName = "github.com/skillpath/progression-engine/progression"

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config tunes the engine. Zero values fall back to DefaultConfig.
type Config struct {
	// Location decides where a calendar day starts for streaks and sweeps.
	Location *time.Location

	// Curve maps total XP to levels.
	Curve reward.Curve

	// HistoryDays is the default window of Ledger.History.
	HistoryDays int

	// LeaderboardLimit is the default size of the streak leaderboard.
	LeaderboardLimit int

	// MaxLeaderboardLimit caps requested leaderboard sizes.
	MaxLeaderboardLimit int

	// Retry controls retries of transactions that hit transient conflicts.
	Retry retry.Policy
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Location:            time.UTC,
		Curve:               reward.DefaultCurve(),
		HistoryDays:         30,
		LeaderboardLimit:    10,
		MaxLeaderboardLimit: 100,
		Retry:               retry.DefaultPolicy(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Location == nil {
		c.Location = d.Location
	}
	if c.Curve.MaxLevel() == 0 {
		c.Curve = d.Curve
	}
	if c.HistoryDays <= 0 {
		c.HistoryDays = d.HistoryDays
	}
	if c.LeaderboardLimit <= 0 {
		c.LeaderboardLimit = d.LeaderboardLimit
	}
	if c.MaxLeaderboardLimit <= 0 {
		c.MaxLeaderboardLimit = d.MaxLeaderboardLimit
	}
	if c.LeaderboardLimit > c.MaxLeaderboardLimit {
		c.LeaderboardLimit = c.MaxLeaderboardLimit
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = d.Retry
	}
	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATORS
// ══════════════════════════════════════════════════════════════════════════════

// Cache holds derived reads. Implementations are best effort and never fail
// the calling operation.
//
// StoreSnapshot must keep the cached snapshot with the highest Version, so a
// read that loaded an older snapshot can never replace a newer commit.
type Cache interface {
	Snapshot(ctx context.Context, userID shared.UserID) (*reward.Snapshot, bool)
	StoreSnapshot(ctx context.Context, s *reward.Snapshot)
	StreakLeaderboard(ctx context.Context, limit int) ([]streak.LeaderboardEntry, bool)
	StoreStreakLeaderboard(ctx context.Context, limit int, entries []streak.LeaderboardEntry)
	InvalidateStreakLeaderboard(ctx context.Context)
}

type noCache struct{}

func (noCache) Snapshot(context.Context, shared.UserID) (*reward.Snapshot, bool)         { return nil, false }
func (noCache) StoreSnapshot(context.Context, *reward.Snapshot)                          {}
func (noCache) StreakLeaderboard(context.Context, int) ([]streak.LeaderboardEntry, bool) { return nil, false }
func (noCache) StoreStreakLeaderboard(context.Context, int, []streak.LeaderboardEntry)   {}
func (noCache) InvalidateStreakLeaderboard(context.Context)                              {}

// Deps are the engine's collaborators. Only Store is required.
type Deps struct {
	Store  store.Store
	Clock  timeutil.Clock
	Cache  Cache
	Logger *logger.Logger
	Tracer trace.Tracer
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Engine groups the four progression components over one store.
type Engine struct {
	Ledger       *Ledger
	Streaks      *StreakTracker
	Achievements *AchievementEngine
	Goals        *GoalTracker

	cfg Config
}

// New wires the components.
func New(deps Deps, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	if deps.Clock == nil {
		deps.Clock = timeutil.SystemClock{}
	}
	if deps.Cache == nil {
		deps.Cache = noCache{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(TracerName)
	}

	log := deps.Logger.Named("progression")
	policy := cfg.Retry
	if policy.Classify == nil {
		policy.Classify = shared.IsRetryable
	}
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, err error, wait time.Duration) {
			log.Warn("retrying progression transaction",
				logger.Attempt(attempt), logger.Duration("wait", wait), logger.Err(err))
		}
	}

	rt := &runtime{
		store:   deps.Store,
		clock:   deps.Clock,
		cfg:     cfg,
		retrier: retry.New(policy),
		cache:   deps.Cache,
		log:     log,
		tracer:  deps.Tracer,
	}

	ledger := &Ledger{rt: rt}
	achievements := &AchievementEngine{rt: rt, ledger: ledger}
	return &Engine{
		Ledger:       ledger,
		Streaks:      &StreakTracker{rt: rt, ledger: ledger, achievements: achievements},
		Achievements: achievements,
		Goals:        &GoalTracker{rt: rt, ledger: ledger},
		cfg:          cfg,
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// ══════════════════════════════════════════════════════════════════════════════
// RUNTIME
// ══════════════════════════════════════════════════════════════════════════════

// runtime is shared by every component.
type runtime struct {
	store   store.Store
	clock   timeutil.Clock
	cfg     Config
	retrier *retry.Retrier
	cache   Cache
	log     *logger.Logger
	tracer  trace.Tracer
}

// today returns the current calendar day in the configured location.
func (rt *runtime) today() time.Time {
	return timeutil.Day(rt.clock.Now(), rt.cfg.Location)
}

func (rt *runtime) startSpan(ctx context.Context, op string, userID shared.UserID) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("progression.operation", op)}
	if userID != "" {
		attrs = append(attrs, attribute.String("progression.user_id", string(userID)))
	}
	return rt.tracer.Start(ctx, "progression."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// unit is the transaction handed to a mutation. It remembers the snapshot
// the transaction saved so it can be published after the commit.
type unit struct {
	store.Store
	snapshot *reward.Snapshot
}

// mutate runs fn in a transaction holding userID's lock, retrying the whole
// transaction on transient failures, then publishes the committed snapshot.
func (rt *runtime) mutate(ctx context.Context, op string, userID shared.UserID, fn func(ctx context.Context, tx *unit) error) error {
	var committed *reward.Snapshot
	err := rt.atomic(ctx, op, userID, func(ctx context.Context, tx store.Store) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		u := &unit{Store: tx}
		if err := fn(ctx, u); err != nil {
			return err
		}
		committed = u.snapshot
		return nil
	})
	if err != nil {
		return err
	}

	if committed != nil {
		rt.cache.StoreSnapshot(ctx, committed)
	}
	return nil
}

// atomic runs fn in a retried transaction without taking a user lock.
func (rt *runtime) atomic(ctx context.Context, op string, userID shared.UserID, fn func(ctx context.Context, tx store.Store) error) (err error) {
	ctx, span := rt.startSpan(ctx, op, userID)
	defer func() { endSpan(span, err) }()

	start := time.Now()
	err = rt.retrier.Do(ctx, func(ctx context.Context) error {
		return rt.store.Atomic(ctx, func(tx store.Store) error {
			return fn(ctx, tx)
		})
	})
	if err != nil {
		rt.log.Debug("progression operation failed",
			logger.Operation(op), logger.UserID(string(userID)), logger.Latency(time.Since(start)), logger.Err(err))
	}
	return err
}

// read runs fn outside a transaction with tracing.
func (rt *runtime) read(ctx context.Context, op string, userID shared.UserID, fn func(ctx context.Context) error) (err error) {
	ctx, span := rt.startSpan(ctx, op, userID)
	defer func() { endSpan(span, err) }()
	return fn(ctx)
}

func validUser(userID shared.UserID) error {
	if !userID.IsValid() {
		return shared.ErrInvalidUserID
	}
	return nil
}
