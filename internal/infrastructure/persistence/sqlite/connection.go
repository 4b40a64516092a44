// Package sqlite implements the progression store on an embedded SQLite
// database through sqlx. It backs single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/skillpath/progression-engine/internal/domain/shared"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// ErrMigrationFailed indicates a migration failure.
var ErrMigrationFailed = errors.New("sqlite: migration failed")

// DB is an open SQLite database with the progression schema applied.
type DB struct {
	db *sqlx.DB
}

// Open opens the database at path, creating its directory when needed,
// and applies pending migrations. Use MemoryPath for a throwaway database.
func Open(ctx context.Context, path string) (*DB, error) {
	dsn := "file::memory:?mode=memory"
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite: failed to create data directory: %w", err)
			}
		}
		dsn = "file:" + path + "?mode=rwc"
	}
	dsn += "&_foreign_keys=on&_txlock=immediate&_busy_timeout=5000"

	db, err := sqlx.ConnectContext(ctx, "sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to connect to database: %w", err)
	}

	// One connection serializes writers and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	d := &DB{db: db}
	if err := d.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

// X returns the underlying sqlx handle.
func (d *DB) X() *sqlx.DB { return d.db }

// Ping checks if the database is reachable.
func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

// Close closes the database.
func (d *DB) Close() error { return d.db.Close() }

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

type migration struct {
	version int
	name    string
	up      string
}

var migrations = []migration{
	{1, "create_reward_ledger", schemaRewardLedger},
	{2, "create_streaks", schemaStreaks},
	{3, "create_achievements", schemaAchievements},
	{4, "create_goals", schemaGoals},
	{5, "add_snapshot_version", schemaSnapshotVersion},
}

func (d *DB) migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("%w: create migrations table: %v", ErrMigrationFailed, err)
	}

	var applied []int
	if err := d.db.SelectContext(ctx, &applied, `SELECT version FROM schema_migrations`); err != nil {
		return fmt.Errorf("%w: list applied: %v", ErrMigrationFailed, err)
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, m := range migrations {
		if done[m.version] {
			continue
		}
		tx, err := d.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, m.version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, m.version, err)
		}
	}
	return nil
}

const schemaRewardLedger = `
CREATE TABLE IF NOT EXISTS reward_events (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    amount INTEGER NOT NULL CHECK (amount >= 0),
    source TEXT NOT NULL CHECK (source IN ('practice', 'exam', 'achievement', 'goal', 'streak', 'bonus')),
    source_id TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reward_events_user_created ON reward_events(user_id, created_at);

CREATE TABLE IF NOT EXISTS progression_snapshots (
    user_id TEXT PRIMARY KEY,
    total_xp INTEGER NOT NULL DEFAULT 0 CHECK (total_xp >= 0),
    level INTEGER NOT NULL DEFAULT 1 CHECK (level >= 1),
    updated_at TIMESTAMP NOT NULL
);
`

const schemaStreaks = `
CREATE TABLE IF NOT EXISTS streaks (
    user_id TEXT PRIMARY KEY,
    current_streak INTEGER NOT NULL DEFAULT 0 CHECK (current_streak >= 0),
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_activity_date DATE,
    last_freeze_date DATE,
    freeze_tokens INTEGER NOT NULL DEFAULT 0 CHECK (freeze_tokens >= 0),
    updated_at TIMESTAMP NOT NULL,
    CHECK (longest_streak >= current_streak)
);
`

const schemaAchievements = `
CREATE TABLE IF NOT EXISTS achievements (
    id TEXT PRIMARY KEY,
    code TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL CHECK (category IN ('practice', 'exam', 'streak', 'special')),
    condition_type TEXT NOT NULL,
    condition_value INTEGER NOT NULL CHECK (condition_value > 0),
    xp_reward INTEGER NOT NULL DEFAULT 0 CHECK (xp_reward >= 0),
    is_hidden BOOLEAN NOT NULL DEFAULT 0,
    rarity TEXT NOT NULL DEFAULT 'common',
    sort_order INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS achievement_progress (
    user_id TEXT NOT NULL,
    achievement_id TEXT NOT NULL REFERENCES achievements(id) ON DELETE CASCADE,
    progress INTEGER NOT NULL DEFAULT 0,
    is_unlocked BOOLEAN NOT NULL DEFAULT 0,
    unlocked_at TIMESTAMP,
    is_notified BOOLEAN NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (user_id, achievement_id)
);
`

const schemaGoals = `
CREATE TABLE IF NOT EXISTS goals (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    goal_type TEXT NOT NULL DEFAULT 'quantity',
    target_value INTEGER NOT NULL CHECK (target_value > 0),
    current_value INTEGER NOT NULL DEFAULT 0 CHECK (current_value >= 0),
    start_date TIMESTAMP NOT NULL,
    end_date TIMESTAMP NOT NULL,
    status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'completed', 'failed', 'abandoned')),
    xp_reward INTEGER NOT NULL DEFAULT 0 CHECK (xp_reward >= 0),
    completed_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_goals_user_end ON goals(user_id, end_date);
CREATE INDEX IF NOT EXISTS idx_goals_status_end ON goals(status, end_date);
`

// ══════════════════════════════════════════════════════════════════════════════
// ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func sqliteCode(err error) (sqlite3.ErrNo, sqlite3.ErrNoExtended, bool) {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code, se.ExtendedCode, true
	}
	return 0, 0, false
}

// IsUniqueViolation checks if the error is a unique or primary key violation.
func IsUniqueViolation(err error) bool {
	_, ext, ok := sqliteCode(err)
	return ok && (ext == sqlite3.ErrConstraintUnique || ext == sqlite3.ErrConstraintPrimaryKey)
}

// IsNoRows checks if the error is a "no rows" error.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	if code, ext, ok := sqliteCode(err); ok {
		switch {
		case code == sqlite3.ErrBusy || code == sqlite3.ErrLocked:
			return shared.WrapError("sqlite", op, shared.ErrConcurrentModification, "database is locked", err)
		case ext == sqlite3.ErrConstraintCheck:
			return shared.WrapError("sqlite", op, shared.ErrInvariantViolation, "check constraint rejected write", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return shared.WrapError("sqlite", op, shared.ErrTimeout, "query timed out", err)
	}
	return fmt.Errorf("sqlite %s: %w", op, err)
}

// placeholders returns "?, ?, ..." for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

const schemaSnapshotVersion = `
ALTER TABLE progression_snapshots ADD COLUMN version INTEGER NOT NULL DEFAULT 0;
`
