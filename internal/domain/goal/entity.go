// Package goal contains user-defined goals and their lifecycle.
//
// A goal starts ACTIVE and leaves it exactly once, to COMPLETED, FAILED or
// ABANDONED. Terminal goals are never mutated again, only deleted.
package goal

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skillpath/progression-engine/internal/domain/shared"
)

// Status is the lifecycle position of a goal.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAbandoned Status = "abandoned"
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusFailed, StatusAbandoned:
		return true
	}
	return false
}

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	return s != StatusActive
}

// Type is the metric the goal tracks.
type Type string

const (
	TypeSkill    Type = "skill"
	TypeQuantity Type = "quantity"
	TypeTime     Type = "time"
	TypeTests    Type = "tests"
	TypeStreak   Type = "streak"
	TypeScore    Type = "score"
)

// IsValid checks if the goal type is known.
func (t Type) IsValid() bool {
	switch t {
	case TypeSkill, TypeQuantity, TypeTime, TypeTests, TypeStreak, TypeScore:
		return true
	}
	return false
}

const maxTitleLength = 200

// Goal is a user's target on a metric with a deadline.
type Goal struct {
	ID           uuid.UUID
	UserID       shared.UserID
	Title        string
	Description  string
	Type         Type
	TargetValue  int64
	CurrentValue int64
	StartDate    time.Time
	EndDate      time.Time
	Status       Status
	XPReward     int64
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Spec holds what a user provides when creating a goal.
type Spec struct {
	UserID      shared.UserID
	Title       string
	Description string
	Type        Type
	TargetValue int64
	StartDate   time.Time
	EndDate     time.Time
	XPReward    int64
}

// New validates s and creates an ACTIVE goal with no progress.
func New(s Spec, now time.Time) (*Goal, error) {
	title := strings.TrimSpace(s.Title)
	if s.Type == "" {
		s.Type = TypeQuantity
	}

	switch {
	case !s.UserID.IsValid():
		return nil, shared.ErrInvalidUserID
	case title == "":
		return nil, shared.NewDomainError("goal", "Create", shared.ErrEmptyValue, "title cannot be empty")
	case len(title) > maxTitleLength:
		return nil, shared.Invariant("goal", "Create", "title longer than %d characters", maxTitleLength)
	case !s.Type.IsValid():
		return nil, shared.Invariant("goal", "Create", "unknown goal type %q", s.Type)
	case s.TargetValue <= 0:
		return nil, shared.Invariant("goal", "Create", "target value must be positive")
	case s.XPReward < 0:
		return nil, shared.Invariant("goal", "Create", "xp reward cannot be negative")
	case s.StartDate.IsZero() || s.EndDate.IsZero():
		return nil, shared.Invariant("goal", "Create", "start and end dates are required")
	case s.EndDate.Before(s.StartDate):
		return nil, shared.Invariant("goal", "Create", "end date precedes start date")
	}

	ts := now.UTC()
	return &Goal{
		ID:          uuid.New(),
		UserID:      s.UserID,
		Title:       title,
		Description: strings.TrimSpace(s.Description),
		Type:        s.Type,
		TargetValue: s.TargetValue,
		StartDate:   s.StartDate.UTC(),
		EndDate:     s.EndDate.UTC(),
		Status:      StatusActive,
		XPReward:    s.XPReward,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}, nil
}

// SetProgress sets the current value and completes the goal when it reaches
// the target. It reports whether this call completed the goal.
func (g *Goal) SetProgress(value int64, now time.Time) (bool, error) {
	if g.Status != StatusActive {
		return false, shared.ErrGoalNotActive
	}
	if value < 0 {
		return false, shared.ErrNegativeGoalValue
	}

	ts := now.UTC()
	g.CurrentValue = value
	g.UpdatedAt = ts

	if g.CurrentValue >= g.TargetValue {
		g.Status = StatusCompleted
		g.CompletedAt = &ts
		return true, nil
	}
	return false, nil
}

// Abandon moves an ACTIVE goal to ABANDONED.
func (g *Goal) Abandon(now time.Time) error {
	if g.Status != StatusActive {
		return shared.ErrGoalNotActive
	}
	g.Status = StatusAbandoned
	g.UpdatedAt = now.UTC()
	return nil
}

// Percent returns progress toward the target, capped at 100.
func (g *Goal) Percent() float64 {
	if g.TargetValue <= 0 {
		return 0
	}
	pct := 100 * float64(g.CurrentValue) / float64(g.TargetValue)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// OwnedBy reports whether the goal belongs to userID.
func (g *Goal) OwnedBy(userID shared.UserID) bool {
	return g.UserID == userID
}
