package goal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillpath/progression-engine/internal/domain/shared"
)

var (
	now   = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	start = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	end   = time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)
)

func newGoal(t *testing.T) *Goal {
	t.Helper()
	g, err := New(Spec{
		UserID:      "u1",
		Title:       "Solve 20 katas",
		TargetValue: 20,
		StartDate:   start,
		EndDate:     end,
		XPReward:    200,
	}, now)
	require.NoError(t, err)
	return g
}

func TestNew(t *testing.T) {
	g := newGoal(t)

	assert.Equal(t, StatusActive, g.Status)
	assert.Equal(t, TypeQuantity, g.Type)
	assert.Zero(t, g.CurrentValue)
	assert.Nil(t, g.CompletedAt)
}

func TestNew_Validation(t *testing.T) {
	base := Spec{UserID: "u1", Title: "t", TargetValue: 1, StartDate: start, EndDate: end}

	tests := []struct {
		name   string
		mutate func(*Spec)
	}{
		{"no user", func(s *Spec) { s.UserID = "" }},
		{"no title", func(s *Spec) { s.Title = "  " }},
		{"zero target", func(s *Spec) { s.TargetValue = 0 }},
		{"negative reward", func(s *Spec) { s.XPReward = -1 }},
		{"bad type", func(s *Spec) { s.Type = "vibes" }},
		{"missing dates", func(s *Spec) { s.EndDate = time.Time{} }},
		{"end before start", func(s *Spec) { s.EndDate = start.Add(-time.Hour) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			tt.mutate(&s)
			_, err := New(s, now)
			assert.True(t, shared.IsValidation(err), "got %v", err)
		})
	}
}

func TestSetProgress(t *testing.T) {
	g := newGoal(t)

	completed, err := g.SetProgress(5, now)
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Equal(t, int64(5), g.CurrentValue)
	assert.InDelta(t, 25.0, g.Percent(), 1e-9)

	completed, err = g.SetProgress(20, now)
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, StatusCompleted, g.Status)
	require.NotNil(t, g.CompletedAt)

	completed, err = g.SetProgress(25, now)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
	assert.False(t, completed)
	assert.Equal(t, int64(20), g.CurrentValue)
}

func TestSetProgress_CanDecreaseWhileActive(t *testing.T) {
	g := newGoal(t)
	_, _ = g.SetProgress(10, now)

	completed, err := g.SetProgress(3, now)
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Equal(t, int64(3), g.CurrentValue)
}

func TestSetProgress_Negative(t *testing.T) {
	g := newGoal(t)
	_, err := g.SetProgress(-1, now)
	assert.ErrorIs(t, err, shared.ErrInvariantViolation)
	assert.Equal(t, StatusActive, g.Status)
}

func TestAbandon(t *testing.T) {
	g := newGoal(t)
	require.NoError(t, g.Abandon(now))
	assert.Equal(t, StatusAbandoned, g.Status)
	assert.True(t, g.Status.IsTerminal())

	assert.ErrorIs(t, g.Abandon(now), shared.ErrInvalidState)
	_, err := g.SetProgress(1, now)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

