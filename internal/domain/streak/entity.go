// Package streak contains the daily activity streak state machine.
//
// Day values are calendar dates represented as midnight UTC (see
// pkg/timeutil.Day). The tracker decides which day "today" is; the entity
// only compares dates.
package streak

import (
	"time"

	"github.com/skillpath/progression-engine/internal/domain/shared"
	"github.com/skillpath/progression-engine/pkg/timeutil"
)

// bonusTable is the XP bonus by streak length; day 1 is index 0 and the last
// entry applies to every longer streak.
var bonusTable = [...]int64{0, 5, 10, 15, 25, 35, 50, 75, 100, 150}

// Bonus returns the XP bonus for a streak of the given length.
func Bonus(currentStreak int) int64 {
	idx := currentStreak - 1
	if idx < 0 {
		idx = 0
	}
	if idx > len(bonusTable)-1 {
		idx = len(bonusTable) - 1
	}
	return bonusTable[idx]
}

// Outcome describes what a recorded activity did to the streak.
type Outcome int

const (
	// OutcomeAlreadyRecorded means today was already counted; nothing changed.
	OutcomeAlreadyRecorded Outcome = iota
	// OutcomeStarted means the first ever activity began a streak of 1.
	OutcomeStarted
	// OutcomeContinued means activity on consecutive days extended the streak.
	OutcomeContinued
	// OutcomeFrozen means a freeze token bridged the gap; the streak is unchanged.
	OutcomeFrozen
	// OutcomeReset means a gap broke the streak and it restarted at 1.
	OutcomeReset
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAlreadyRecorded:
		return "already_recorded"
	case OutcomeStarted:
		return "started"
	case OutcomeContinued:
		return "continued"
	case OutcomeFrozen:
		return "frozen"
	case OutcomeReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Changed reports whether the outcome mutated state.
func (o Outcome) Changed() bool {
	return o != OutcomeAlreadyRecorded
}

// State is one user's streak.
type State struct {
	UserID           shared.UserID
	CurrentStreak    int
	LongestStreak    int
	LastActivityDate *time.Time
	LastFreezeDate   *time.Time
	FreezeTokens     int
	UpdatedAt        time.Time
}

// NewState returns the zero state created on first access.
func NewState(userID shared.UserID, now time.Time) *State {
	return &State{UserID: userID, UpdatedAt: now.UTC()}
}

// RecordActivity applies one day of activity. today must be a day value.
//
// A first-ever activity always starts a streak of 1 and never spends a
// freeze token, even when the user holds some. Spending one there would
// leave the streak at 0 and buy nothing.
func (s *State) RecordActivity(today, now time.Time) Outcome {
	if s.LastActivityDate != nil && timeutil.DaysBetween(*s.LastActivityDate, today) <= 0 {
		// Same day, or a day the clock has already moved past.
		return OutcomeAlreadyRecorded
	}

	var outcome Outcome
	switch {
	case s.LastActivityDate == nil && s.CurrentStreak == 0:
		s.CurrentStreak = 1
		outcome = OutcomeStarted
	case s.LastActivityDate != nil && timeutil.DaysBetween(*s.LastActivityDate, today) == 1:
		s.CurrentStreak++
		outcome = OutcomeContinued
	case s.canFreeze(today):
		s.FreezeTokens--
		frozeOn := today
		s.LastFreezeDate = &frozeOn
		outcome = OutcomeFrozen
	default:
		s.CurrentStreak = 1
		outcome = OutcomeReset
	}

	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
	day := today
	s.LastActivityDate = &day
	s.UpdatedAt = now.UTC()
	return outcome
}

// canFreeze reports whether a token may bridge a gap ending today.
// Tokens only preserve a streak above 0, so a first-ever activity or a
// zero streak resets to 1 with the tokens kept. At most one is spent per day.
func (s *State) canFreeze(today time.Time) bool {
	if s.FreezeTokens <= 0 || s.CurrentStreak <= 0 {
		return false
	}
	if s.LastFreezeDate != nil && timeutil.SameDay(*s.LastFreezeDate, today) {
		return false
	}
	return true
}

// AddFreezeTokens credits count tokens.
func (s *State) AddFreezeTokens(count int, now time.Time) error {
	if count < 1 {
		return shared.ErrInvalidFreezeCount
	}
	s.FreezeTokens += count
	s.UpdatedAt = now.UTC()
	return nil
}

// Validate checks the stored invariants.
func (s *State) Validate() error {
	if !s.UserID.IsValid() {
		return shared.ErrInvalidUserID
	}
	if s.CurrentStreak < 0 || s.LongestStreak < 0 || s.FreezeTokens < 0 {
		return shared.Invariant("streak", "Validate", "streak counters cannot be negative")
	}
	if s.LongestStreak < s.CurrentStreak {
		return shared.Invariant("streak", "Validate", "longest streak %d below current %d", s.LongestStreak, s.CurrentStreak)
	}
	return nil
}

// LeaderboardEntry is one ranked row of the streak leaderboard.
type LeaderboardEntry struct {
	Rank          int
	UserID        shared.UserID
	CurrentStreak int
	LongestStreak int
}
