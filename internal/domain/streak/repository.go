package streak

import (
	"context"

	"github.com/skillpath/progression-engine/internal/domain/shared"
)

// Repository persists streak state.
type Repository interface {
	// Find returns the user's state.
	// Returns shared.ErrStreakNotFound if none exists.
	Find(ctx context.Context, userID shared.UserID) (*State, error)

	// Save upserts the state.
	Save(ctx context.Context, s *State) error

	// Leaderboard returns the top states by current streak, then longest
	// streak, then user ID.
	Leaderboard(ctx context.Context, limit int) ([]*State, error)
}
