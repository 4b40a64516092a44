package reward

import (
	"context"
	"time"

	"github.com/skillpath/progression-engine/internal/domain/shared"
)

// Repository persists the ledger and its snapshots.
// Implementations must never update or delete events.
type Repository interface {
	// Append stores a new event.
	Append(ctx context.Context, e *Event) error

	// SumForUser returns the sum of all event amounts for the user (0 if none).
	SumForUser(ctx context.Context, userID shared.UserID) (int64, error)

	// SumBySource returns per-source totals. Sources without events are omitted.
	SumBySource(ctx context.Context, userID shared.UserID) (map[Source]int64, error)

	// History returns events created at or after since, newest first.
	History(ctx context.Context, userID shared.UserID, since time.Time) ([]*Event, error)

	// FindSnapshot returns the cached snapshot.
	// Returns shared.ErrSnapshotAbsent if the user has none yet.
	FindSnapshot(ctx context.Context, userID shared.UserID) (*Snapshot, error)

	// SaveSnapshot upserts the snapshot.
	SaveSnapshot(ctx context.Context, s *Snapshot) error

	// ListUserIDs pages through users that have ledger events, ordered by ID.
	ListUserIDs(ctx context.Context, after shared.UserID, limit int) ([]shared.UserID, error)
}
