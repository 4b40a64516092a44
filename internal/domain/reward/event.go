// Package reward contains the XP ledger domain: append-only reward events,
// the derived progression snapshot, and the level curve.
package reward

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skillpath/progression-engine/internal/domain/shared"
)

// Source identifies what kind of activity produced a reward event.
type Source string

const (
	SourcePractice    Source = "practice"
	SourceExam        Source = "exam"
	SourceAchievement Source = "achievement"
	SourceGoal        Source = "goal"
	SourceStreak      Source = "streak"
	SourceBonus       Source = "bonus"
)

// AllSources lists every source in display order.
func AllSources() []Source {
	return []Source{SourcePractice, SourceExam, SourceAchievement, SourceGoal, SourceStreak, SourceBonus}
}

// IsValid checks the source is one of the known values.
func (s Source) IsValid() bool {
	switch s {
	case SourcePractice, SourceExam, SourceAchievement, SourceGoal, SourceStreak, SourceBonus:
		return true
	}
	return false
}

// String returns the string representation.
func (s Source) String() string {
	return string(s)
}

// Grant is a request to award XP.
type Grant struct {
	UserID      shared.UserID
	Amount      int64
	Source      Source
	SourceID    string // optional reference to the entity that caused the grant
	Description string
}

// Validate rejects grants that must never reach the ledger.
func (g Grant) Validate() error {
	if !g.UserID.IsValid() {
		return shared.ErrInvalidUserID
	}
	if g.Amount < 0 {
		return shared.ErrNegativeGrant
	}
	if !g.Source.IsValid() {
		return shared.ErrUnknownSource
	}
	return nil
}

// Event is one immutable ledger entry.
type Event struct {
	ID          uuid.UUID
	UserID      shared.UserID
	Amount      int64
	Source      Source
	SourceID    string
	Description string
	CreatedAt   time.Time
}

// NewEvent validates g and builds the event recorded for it.
func NewEvent(g Grant, now time.Time) (*Event, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &Event{
		ID:          uuid.New(),
		UserID:      g.UserID,
		Amount:      g.Amount,
		Source:      g.Source,
		SourceID:    strings.TrimSpace(g.SourceID),
		Description: strings.TrimSpace(g.Description),
		CreatedAt:   now.UTC(),
	}, nil
}

// HasSourceID reports whether the event references an originating entity.
func (e *Event) HasSourceID() bool {
	return e.SourceID != ""
}
