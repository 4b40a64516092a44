package streak

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillpath/progression-engine/internal/domain/shared"
	"github.com/skillpath/progression-engine/pkg/timeutil"
)

var day1 = timeutil.Date(2024, 3, 1)

func stateAt(current, longest, tokens int, last time.Time) *State {
	l := last
	return &State{
		UserID:           "u1",
		CurrentStreak:    current,
		LongestStreak:    longest,
		LastActivityDate: &l,
		FreezeTokens:     tokens,
	}
}

func TestBonus(t *testing.T) {
	assert.Equal(t, int64(0), Bonus(0))
	assert.Equal(t, int64(0), Bonus(1))
	assert.Equal(t, int64(5), Bonus(2))
	assert.Equal(t, int64(25), Bonus(5))
	assert.Equal(t, int64(150), Bonus(10))
	assert.Equal(t, int64(150), Bonus(365))
	assert.Equal(t, int64(0), Bonus(-3))
}

func TestRecordActivity_FirstEver(t *testing.T) {
	s := NewState("u1", day1)
	s.FreezeTokens = 2

	out := s.RecordActivity(day1, day1)

	assert.Equal(t, OutcomeStarted, out)
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 1, s.LongestStreak)
	assert.Equal(t, 2, s.FreezeTokens, "no token is spent without a streak to keep")
	require.NotNil(t, s.LastActivityDate)
	assert.Equal(t, day1, *s.LastActivityDate)
}

func TestRecordActivity_ZeroStreakKeepsTokens(t *testing.T) {
	s := stateAt(0, 4, 1, day1)

	out := s.RecordActivity(timeutil.AddDays(day1, 3), day1)

	assert.Equal(t, OutcomeReset, out)
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 1, s.FreezeTokens)
	assert.Nil(t, s.LastFreezeDate)
}

func TestRecordActivity_SameDayIsNoop(t *testing.T) {
	s := stateAt(3, 4, 1, day1)

	out := s.RecordActivity(day1, day1.Add(5*time.Hour))

	assert.Equal(t, OutcomeAlreadyRecorded, out)
	assert.False(t, out.Changed())
	assert.Equal(t, 3, s.CurrentStreak)
	assert.Equal(t, 1, s.FreezeTokens)
}

func TestRecordActivity_ClockBehindLastActivityIsNoop(t *testing.T) {
	s := stateAt(3, 4, 0, day1)

	out := s.RecordActivity(timeutil.AddDays(day1, -1), day1)

	assert.Equal(t, OutcomeAlreadyRecorded, out)
	assert.Equal(t, day1, *s.LastActivityDate)
}

func TestRecordActivity_Consecutive(t *testing.T) {
	s := stateAt(5, 5, 0, day1)

	out := s.RecordActivity(timeutil.AddDays(day1, 1), day1)

	assert.Equal(t, OutcomeContinued, out)
	assert.Equal(t, 6, s.CurrentStreak)
	assert.Equal(t, 6, s.LongestStreak)
}

func TestRecordActivity_MissedDayWithFreeze(t *testing.T) {
	s := stateAt(5, 5, 1, day1)
	today := timeutil.AddDays(day1, 2)

	out := s.RecordActivity(today, today)

	assert.Equal(t, OutcomeFrozen, out)
	assert.Equal(t, 5, s.CurrentStreak)
	assert.Equal(t, 5, s.LongestStreak)
	assert.Equal(t, 0, s.FreezeTokens)
	require.NotNil(t, s.LastFreezeDate)
	assert.Equal(t, today, *s.LastFreezeDate)
	assert.Equal(t, today, *s.LastActivityDate)
}

func TestRecordActivity_MissedDayWithoutFreeze(t *testing.T) {
	s := stateAt(5, 5, 0, day1)

	out := s.RecordActivity(timeutil.AddDays(day1, 2), day1)

	assert.Equal(t, OutcomeReset, out)
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 5, s.LongestStreak)
}

func TestRecordActivity_FreezeThenContinue(t *testing.T) {
	s := stateAt(5, 5, 1, day1)

	s.RecordActivity(timeutil.AddDays(day1, 2), day1)
	out := s.RecordActivity(timeutil.AddDays(day1, 3), day1)

	assert.Equal(t, OutcomeContinued, out)
	assert.Equal(t, 6, s.CurrentStreak)
}

func TestRecordActivity_LongestNeverBelowCurrent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 50; run++ {
		s := NewState("u1", day1)
		day := day1
		for i := 0; i < 60; i++ {
			day = timeutil.AddDays(day, rng.Intn(4))
			if rng.Intn(5) == 0 {
				require.NoError(t, s.AddFreezeTokens(1+rng.Intn(2), day))
			}
			s.RecordActivity(day, day)
			require.GreaterOrEqual(t, s.LongestStreak, s.CurrentStreak)
			require.GreaterOrEqual(t, s.CurrentStreak, 1)
			require.GreaterOrEqual(t, s.FreezeTokens, 0)
			require.NoError(t, s.Validate())
		}
	}
}

func TestAddFreezeTokens(t *testing.T) {
	s := NewState("u1", day1)

	require.NoError(t, s.AddFreezeTokens(3, day1))
	assert.Equal(t, 3, s.FreezeTokens)

	err := s.AddFreezeTokens(0, day1)
	assert.ErrorIs(t, err, shared.ErrInvariantViolation)
	assert.Equal(t, 3, s.FreezeTokens)
}

func TestValidate(t *testing.T) {
	s := stateAt(3, 2, 0, day1)
	assert.ErrorIs(t, s.Validate(), shared.ErrInvariantViolation)
}
