package sqlite

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/skillpath/progression-engine/internal/domain/achievement"
	"github.com/skillpath/progression-engine/internal/domain/goal"
	"github.com/skillpath/progression-engine/internal/domain/reward"
	"github.com/skillpath/progression-engine/internal/domain/shared"
	"github.com/skillpath/progression-engine/internal/domain/store"
	"github.com/skillpath/progression-engine/internal/domain/streak"
)

// Querier is implemented by both *sqlx.DB and *sqlx.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// Store implements store.Store on SQLite.
type Store struct {
	db   *sqlx.DB
	q    Querier
	inTx bool
}

var _ store.Store = (*Store)(nil)

// NewStore creates a Store over d.
func NewStore(d *DB) *Store {
	return &Store{db: d.db, q: d.db}
}

func (s *Store) Rewards() reward.Repository           { return &rewardRepo{q: s.q} }
func (s *Store) Streaks() streak.Repository           { return &streakRepo{q: s.q} }
func (s *Store) Achievements() achievement.Repository { return &achievementRepo{q: s.q} }
func (s *Store) Goals() goal.Repository               { return &goalRepo{q: s.q} }

// Atomic runs fn in an immediate transaction. With a single connection this
// serializes all transactions.
func (s *Store) Atomic(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify("Begin", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Store{db: s.db, q: tx, inTx: true}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return classify("Commit", tx.Commit())
}

// LockUser is a no-op: the immediate transaction already holds the write lock.
func (s *Store) LockUser(context.Context, shared.UserID) error {
	return nil
}
