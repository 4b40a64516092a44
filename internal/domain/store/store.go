// Package store defines the unit of work the progression services run in.
package store

import (
	"context"

	"github.com/skillpath/progression-engine/internal/domain/achievement"
	"github.com/skillpath/progression-engine/internal/domain/goal"
	"github.com/skillpath/progression-engine/internal/domain/reward"
	"github.com/skillpath/progression-engine/internal/domain/shared"
	"github.com/skillpath/progression-engine/internal/domain/streak"
)

// Store gives access to every repository, either directly or scoped to a
// transaction opened with Atomic.
type Store interface {
	Rewards() reward.Repository
	Streaks() streak.Repository
	Achievements() achievement.Repository
	Goals() goal.Repository

	// Atomic runs fn in a transaction. fn receives a Store whose repositories
	// share that transaction. The transaction commits if fn returns nil and
	// rolls back otherwise. Calling Atomic on a transactional Store runs fn
	// in the existing transaction.
	Atomic(ctx context.Context, fn func(tx Store) error) error

	// LockUser serialises transactions touching the same user until the
	// surrounding transaction ends. Outside a transaction it is a no-op.
	LockUser(ctx context.Context, userID shared.UserID) error
}
