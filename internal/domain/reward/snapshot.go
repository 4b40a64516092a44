package reward

import (
	"time"

	"github.com/skillpath/progression-engine/internal/domain/shared"
)

// Snapshot is the cached total and level for a user. It is derived from
// events and may always be rebuilt from them.
//
// Version increases by one on every save. Saves happen under the user's
// lock, so a higher version is always the later commit. A snapshot derived
// without being saved has version 0.
type Snapshot struct {
	UserID    shared.UserID
	TotalXP   int64
	Level     int
	Version   int64
	UpdatedAt time.Time
}

// EmptySnapshot is the state of a user with no events.
func EmptySnapshot(userID shared.UserID) *Snapshot {
	return &Snapshot{UserID: userID, TotalXP: 0, Level: 1}
}

// Derive builds the snapshot for total using curve.
func Derive(userID shared.UserID, total int64, curve Curve, now time.Time) *Snapshot {
	return &Snapshot{
		UserID:    userID,
		TotalXP:   total,
		Level:     curve.Level(total),
		UpdatedAt: now.UTC(),
	}
}
