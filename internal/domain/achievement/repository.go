package achievement

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/skillpath/progression-engine/internal/domain/shared"
)

// CatalogFilter selects catalog entries.
type CatalogFilter struct {
	Category      *Category
	IncludeHidden bool
}

// Repository persists the catalog and per-user progress.
type Repository interface {
	// ══════════════════════════════════════════════════════════════════════
	// Catalog
	// ══════════════════════════════════════════════════════════════════════

	// Create inserts a catalog entry.
	// Returns shared.ErrAchievementCodeTaken if the code is in use.
	Create(ctx context.Context, a *Achievement) error

	// Update saves the editable fields of an existing entry.
	// Returns shared.ErrAchievementNotFound if it does not exist.
	Update(ctx context.Context, a *Achievement) error

	// Delete removes the entry and every user's progress for it.
	// Returns shared.ErrAchievementNotFound if it does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// FindByID returns an entry.
	// Returns shared.ErrAchievementNotFound if it does not exist.
	FindByID(ctx context.Context, id uuid.UUID) (*Achievement, error)

	// List returns entries ordered by sort order, then code.
	List(ctx context.Context, filter CatalogFilter) ([]*Achievement, error)

	// ══════════════════════════════════════════════════════════════════════
	// Progress
	// ══════════════════════════════════════════════════════════════════════

	// RaiseProgress creates the row if needed and sets
	// progress = max(progress, value), returning the stored row.
	RaiseProgress(ctx context.Context, userID shared.UserID, id uuid.UUID, value int64, now time.Time) (*Progress, error)

	// MarkUnlocked flips is_unlocked from false to true and stamps unlockedAt.
	// It reports false when the row was already unlocked.
	MarkUnlocked(ctx context.Context, userID shared.UserID, id uuid.UUID, at time.Time) (bool, error)

	// FindProgress returns a progress row, or nil if the user never touched it.
	FindProgress(ctx context.Context, userID shared.UserID, id uuid.UUID) (*Progress, error)

	// ListProgress returns every progress row of the user.
	ListProgress(ctx context.Context, userID shared.UserID) ([]*Progress, error)

	// DrainUnnotified marks unlocked, unnotified rows as notified and returns
	// exactly the rows it changed.
	DrainUnnotified(ctx context.Context, userID shared.UserID) ([]*Progress, error)
}
