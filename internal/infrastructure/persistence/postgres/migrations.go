package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one versioned schema change.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrations returns the embedded migrations in version order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_reward_ledger", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_streaks", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_achievements", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "create_goals", UpSQL: migration004Up, DownSQL: migration004Down},
		{Version: 5, Name: "add_snapshot_version", UpSQL: migration005Up, DownSQL: migration005Down},
	}
}

// Migrator applies embedded migrations and records them in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: Migrations(), tableName: "schema_migrations"}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.conn.Pool().Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, m.tableName))
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Pool().Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var v int
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		out[v] = at
	}
	return out, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			_, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName), mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}
	return nil
}

// Rollback reverts the most recently applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	last := 0
	for v := range applied {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return nil
	}

	for _, mig := range m.migrations {
		if mig.Version != last {
			continue
		}
		return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
				return fmt.Errorf("failed to rollback migration %d: %w", last, err)
			}
			_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
			return err
		})
	}
	return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
}

// Status lists migrations with their applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	for i := range out {
		if at, ok := applied[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: REWARD LEDGER
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Append-only XP ledger. Rows are never updated or deleted.
CREATE TABLE IF NOT EXISTS reward_events (
    seq BIGSERIAL UNIQUE,
    id UUID PRIMARY KEY,
    user_id TEXT NOT NULL,
    amount BIGINT NOT NULL,
    source TEXT NOT NULL,
    source_id TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT reward_amount_non_negative CHECK (amount >= 0),
    CONSTRAINT reward_valid_source CHECK (source IN ('practice', 'exam', 'achievement', 'goal', 'streak', 'bonus'))
);

CREATE INDEX IF NOT EXISTS idx_reward_events_user_created ON reward_events(user_id, created_at DESC, seq DESC);

-- Derived totals, rebuilt from reward_events on every grant.
CREATE TABLE IF NOT EXISTS progression_snapshots (
    user_id TEXT PRIMARY KEY,
    total_xp BIGINT NOT NULL DEFAULT 0,
    level INTEGER NOT NULL DEFAULT 1,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT snapshot_total_non_negative CHECK (total_xp >= 0),
    CONSTRAINT snapshot_level_positive CHECK (level >= 1)
);
`

const migration001Down = `
DROP TABLE IF EXISTS progression_snapshots;
DROP TABLE IF EXISTS reward_events;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: STREAKS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS streaks (
    user_id TEXT PRIMARY KEY,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_activity_date DATE,
    last_freeze_date DATE,
    freeze_tokens INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT streak_current_non_negative CHECK (current_streak >= 0),
    CONSTRAINT streak_longest_covers_current CHECK (longest_streak >= current_streak),
    CONSTRAINT streak_tokens_non_negative CHECK (freeze_tokens >= 0)
);

CREATE INDEX IF NOT EXISTS idx_streaks_leaderboard ON streaks(current_streak DESC, longest_streak DESC, user_id);
`

const migration002Down = `
DROP TABLE IF EXISTS streaks;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS achievements (
    id UUID PRIMARY KEY,
    code TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL,
    condition_type TEXT NOT NULL,
    condition_value BIGINT NOT NULL,
    xp_reward BIGINT NOT NULL DEFAULT 0,
    is_hidden BOOLEAN NOT NULL DEFAULT FALSE,
    rarity TEXT NOT NULL DEFAULT 'common',
    sort_order INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT achievement_valid_category CHECK (category IN ('practice', 'exam', 'streak', 'special')),
    CONSTRAINT achievement_condition_positive CHECK (condition_value > 0),
    CONSTRAINT achievement_reward_non_negative CHECK (xp_reward >= 0)
);

CREATE INDEX IF NOT EXISTS idx_achievements_category ON achievements(category, sort_order);

CREATE TABLE IF NOT EXISTS achievement_progress (
    user_id TEXT NOT NULL,
    achievement_id UUID NOT NULL REFERENCES achievements(id) ON DELETE CASCADE,
    progress BIGINT NOT NULL DEFAULT 0,
    is_unlocked BOOLEAN NOT NULL DEFAULT FALSE,
    unlocked_at TIMESTAMPTZ,
    is_notified BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, achievement_id),
    CONSTRAINT progress_unlock_stamped CHECK (is_unlocked = (unlocked_at IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_achievement_progress_unnotified
    ON achievement_progress(user_id) WHERE is_unlocked AND NOT is_notified;
`

const migration003Down = `
DROP TABLE IF EXISTS achievement_progress;
DROP TABLE IF EXISTS achievements;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: GOALS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
CREATE TABLE IF NOT EXISTS goals (
    id UUID PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    goal_type TEXT NOT NULL DEFAULT 'quantity',
    target_value BIGINT NOT NULL,
    current_value BIGINT NOT NULL DEFAULT 0,
    start_date TIMESTAMPTZ NOT NULL,
    end_date TIMESTAMPTZ NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    xp_reward BIGINT NOT NULL DEFAULT 0,
    completed_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT goal_valid_status CHECK (status IN ('active', 'completed', 'failed', 'abandoned')),
    CONSTRAINT goal_target_positive CHECK (target_value > 0),
    CONSTRAINT goal_current_non_negative CHECK (current_value >= 0),
    CONSTRAINT goal_reward_non_negative CHECK (xp_reward >= 0),
    CONSTRAINT goal_dates_ordered CHECK (end_date >= start_date)
);

CREATE INDEX IF NOT EXISTS idx_goals_user_end ON goals(user_id, end_date);
CREATE INDEX IF NOT EXISTS idx_goals_active_end ON goals(end_date) WHERE status = 'active';
`

const migration004Down = `
DROP TABLE IF EXISTS goals;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 005: SNAPSHOT VERSION
// ══════════════════════════════════════════════════════════════════════════════

// Bumped on every snapshot save; caches keep only the highest version.
const migration005Up = `
ALTER TABLE progression_snapshots ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 0;
`

const migration005Down = `
ALTER TABLE progression_snapshots DROP COLUMN IF EXISTS version;
`
