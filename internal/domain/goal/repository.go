package goal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/skillpath/progression-engine/internal/domain/shared"
)

// Repository persists goals.
type Repository interface {
	// Create inserts a new goal.
	Create(ctx context.Context, g *Goal) error

	// FindByID returns a goal.
	// Returns shared.ErrGoalNotFound if it does not exist.
	FindByID(ctx context.Context, id uuid.UUID) (*Goal, error)

	// FindByIDForUpdate is FindByID holding a row lock until the end of the
	// surrounding transaction.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Goal, error)

	// SaveTransition writes value, status and completion time of a goal that
	// is still ACTIVE in the store. Returns shared.ErrGoalNotActive when the
	// stored goal has already left ACTIVE.
	SaveTransition(ctx context.Context, g *Goal) error

	// ListByUser returns the user's goals ordered by end date. A nil status
	// returns every goal.
	ListByUser(ctx context.Context, userID shared.UserID, status *Status) ([]*Goal, error)

	// CountByStatus counts the user's goals in a status.
	CountByStatus(ctx context.Context, userID shared.UserID, status Status) (int, error)

	// Delete removes a goal owned by userID.
	// Returns shared.ErrGoalNotFound if there is no such goal for that user.
	Delete(ctx context.Context, id uuid.UUID, userID shared.UserID) error

	// FailExpired moves every ACTIVE goal with end_date <= asOf to FAILED and
	// returns how many rows changed.
	FailExpired(ctx context.Context, asOf time.Time, now time.Time) (int64, error)
}
