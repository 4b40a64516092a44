package achievement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillpath/progression-engine/internal/domain/shared"
)

func validDefinition() Definition {
	return Definition{
		Code:           "streak-7",
		Name:           "Week Warrior",
		Category:       CategoryStreak,
		ConditionType:  ConditionStreak,
		ConditionValue: 7,
		XPReward:       100,
	}
}

func TestNew(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	a, err := New(validDefinition(), now)
	require.NoError(t, err)
	assert.Equal(t, RarityCommon, a.Rarity)
	assert.Equal(t, now, a.CreatedAt)
	assert.True(t, a.IsMetBy(7))
	assert.False(t, a.IsMetBy(6))
}

func TestDefinition_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Definition)
	}{
		{"empty code", func(d *Definition) { d.Code = " " }},
		{"empty name", func(d *Definition) { d.Name = "" }},
		{"bad category", func(d *Definition) { d.Category = "social" }},
		{"bad condition", func(d *Definition) { d.ConditionType = "mood" }},
		{"zero condition", func(d *Definition) { d.ConditionValue = 0 }},
		{"negative reward", func(d *Definition) { d.XPReward = -5 }},
		{"bad rarity", func(d *Definition) { d.Rarity = "mythic" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDefinition()
			tt.mutate(&d)
			err := d.Validate()
			assert.True(t, shared.IsValidation(err), "got %v", err)
		})
	}
}

func TestUpdate(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a, err := New(validDefinition(), now)
	require.NoError(t, err)

	d := validDefinition()
	d.Name = "Seven Days"
	d.Rarity = RarityEpic
	later := now.Add(time.Hour)
	require.NoError(t, a.Update(d, later))

	assert.Equal(t, "Seven Days", a.Name)
	assert.Equal(t, RarityEpic, a.Rarity)
	assert.Equal(t, now, a.CreatedAt)
	assert.Equal(t, later, a.UpdatedAt)

	d.ConditionValue = -1
	assert.Error(t, a.Update(d, later))
	assert.Equal(t, int64(7), a.ConditionValue)
}

func TestProgress_Percent(t *testing.T) {
	a := &Achievement{ConditionValue: 10}
	p := DefaultProgress("u1", a.ID)

	assert.Equal(t, 0.0, p.Percent(a))
	p.Progress = 4
	assert.InDelta(t, 40.0, p.Percent(a), 1e-9)
	p.Progress = 25
	assert.Equal(t, 100.0, p.Percent(a))
	p.Progress = 1
	p.IsUnlocked = true
	assert.Equal(t, 100.0, p.Percent(a))
}
