package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/skillpath/progression-engine/internal/domain/achievement"
	"github.com/skillpath/progression-engine/internal/domain/goal"
	"github.com/skillpath/progression-engine/internal/domain/reward"
	"github.com/skillpath/progression-engine/internal/domain/shared"
	"github.com/skillpath/progression-engine/internal/domain/store"
	"github.com/skillpath/progression-engine/internal/domain/streak"
)

// Store implements store.Store on a pgx pool.
type Store struct {
	conn *Connection
	q    Querier
	inTx bool
}

var _ store.Store = (*Store)(nil)

// NewStore creates a Store over conn.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn, q: conn.Pool()}
}

func (s *Store) Rewards() reward.Repository           { return &rewardRepo{q: s.q} }
func (s *Store) Streaks() streak.Repository           { return &streakRepo{q: s.q} }
func (s *Store) Achievements() achievement.Repository { return &achievementRepo{q: s.q} }
func (s *Store) Goals() goal.Repository               { return &goalRepo{q: s.q} }

// Atomic runs fn in a read-committed transaction.
func (s *Store) Atomic(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	err := s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&Store{conn: s.conn, q: tx, inTx: true})
	})
	return classify("Atomic", err)
}

// LockUser takes a transaction-scoped advisory lock keyed by the user ID.
func (s *Store) LockUser(ctx context.Context, userID shared.UserID) error {
	if !s.inTx {
		return nil
	}
	_, err := s.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, string(userID))
	return classify("LockUser", err)
}

// scanner is satisfied by pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}
