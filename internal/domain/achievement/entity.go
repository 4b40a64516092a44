// Package achievement contains the achievement catalog and per-user unlock
// progress.
package achievement

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skillpath/progression-engine/internal/domain/shared"
)

// Category groups achievements by the metric stream that feeds them.
type Category string

const (
	CategoryPractice Category = "practice"
	CategoryExam     Category = "exam"
	CategoryStreak   Category = "streak"
	CategorySpecial  Category = "special"
)

// IsValid checks if the category is known.
func (c Category) IsValid() bool {
	switch c {
	case CategoryPractice, CategoryExam, CategoryStreak, CategorySpecial:
		return true
	}
	return false
}

// ConditionType describes what conditionValue measures.
type ConditionType string

const (
	ConditionCount  ConditionType = "count"
	ConditionStreak ConditionType = "streak"
	ConditionScore  ConditionType = "score"
	ConditionTime   ConditionType = "time"
)

// IsValid checks if the condition type is known.
func (c ConditionType) IsValid() bool {
	switch c {
	case ConditionCount, ConditionStreak, ConditionScore, ConditionTime:
		return true
	}
	return false
}

// Rarity is a presentation hint for badges.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// IsValid checks if the rarity is known.
func (r Rarity) IsValid() bool {
	switch r {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	}
	return false
}

// Achievement is a catalog entry.
type Achievement struct {
	ID             uuid.UUID
	Code           string
	Name           string
	Description    string
	Category       Category
	ConditionType  ConditionType
	ConditionValue int64
	XPReward       int64
	IsHidden       bool
	Rarity         Rarity
	SortOrder      int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Definition holds the admin-editable fields of an achievement.
type Definition struct {
	Code           string
	Name           string
	Description    string
	Category       Category
	ConditionType  ConditionType
	ConditionValue int64
	XPReward       int64
	IsHidden       bool
	Rarity         Rarity
	SortOrder      int
}

// Validate checks the definition.
func (d *Definition) Validate() error {
	d.Code = strings.TrimSpace(d.Code)
	d.Name = strings.TrimSpace(d.Name)
	if d.Rarity == "" {
		d.Rarity = RarityCommon
	}

	switch {
	case d.Code == "":
		return shared.NewDomainError("achievement", "Validate", shared.ErrEmptyValue, "code cannot be empty")
	case d.Name == "":
		return shared.NewDomainError("achievement", "Validate", shared.ErrEmptyValue, "name cannot be empty")
	case !d.Category.IsValid():
		return shared.Invariant("achievement", "Validate", "unknown category %q", d.Category)
	case !d.ConditionType.IsValid():
		return shared.Invariant("achievement", "Validate", "unknown condition type %q", d.ConditionType)
	case d.ConditionValue <= 0:
		return shared.Invariant("achievement", "Validate", "condition value must be positive")
	case d.XPReward < 0:
		return shared.Invariant("achievement", "Validate", "xp reward cannot be negative")
	case !d.Rarity.IsValid():
		return shared.Invariant("achievement", "Validate", "unknown rarity %q", d.Rarity)
	}
	return nil
}

// New creates a catalog entry from a definition.
func New(d Definition, now time.Time) (*Achievement, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	a := &Achievement{ID: uuid.New(), CreatedAt: now.UTC()}
	a.apply(d, now)
	return a, nil
}

// Update replaces the editable fields.
func (a *Achievement) Update(d Definition, now time.Time) error {
	if err := d.Validate(); err != nil {
		return err
	}
	a.apply(d, now)
	return nil
}

func (a *Achievement) apply(d Definition, now time.Time) {
	a.Code = d.Code
	a.Name = d.Name
	a.Description = strings.TrimSpace(d.Description)
	a.Category = d.Category
	a.ConditionType = d.ConditionType
	a.ConditionValue = d.ConditionValue
	a.XPReward = d.XPReward
	a.IsHidden = d.IsHidden
	a.Rarity = d.Rarity
	a.SortOrder = d.SortOrder
	a.UpdatedAt = now.UTC()
}

// IsMetBy reports whether value satisfies the unlock condition.
func (a *Achievement) IsMetBy(value int64) bool {
	return value >= a.ConditionValue
}

// Progress is one user's state for one achievement.
type Progress struct {
	UserID        shared.UserID
	AchievementID uuid.UUID
	Progress      int64
	IsUnlocked    bool
	UnlockedAt    *time.Time
	IsNotified    bool
	UpdatedAt     time.Time
}

// DefaultProgress is the state of an achievement the user never touched.
func DefaultProgress(userID shared.UserID, achievementID uuid.UUID) *Progress {
	return &Progress{UserID: userID, AchievementID: achievementID}
}

// Percent returns progress toward the condition, capped at 100.
func (p *Progress) Percent(a *Achievement) float64 {
	if p.IsUnlocked {
		return 100
	}
	if a.ConditionValue <= 0 {
		return 0
	}
	pct := 100 * float64(p.Progress) / float64(a.ConditionValue)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// UserAchievement is a catalog entry joined with the user's progress.
type UserAchievement struct {
	Achievement *Achievement
	Progress    *Progress
}
