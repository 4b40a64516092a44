package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDay(t *testing.T) {
	almaty := time.FixedZone("Asia/Almaty", 5*60*60)

	// 20:30 UTC on Jan 1 is already Jan 2 in Almaty.
	ts := time.Date(2024, 1, 1, 20, 30, 0, 0, time.UTC)

	assert.Equal(t, Date(2024, 1, 1), Day(ts, time.UTC))
	assert.Equal(t, Date(2024, 1, 2), Day(ts, almaty))
	assert.Equal(t, Date(2024, 1, 1), Day(ts, nil))
}

func TestStartOfDay(t *testing.T) {
	almaty := time.FixedZone("Asia/Almaty", 5*60*60)
	ts := time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC)

	start := StartOfDay(ts, almaty)
	assert.Equal(t, time.Date(2024, 3, 9, 19, 0, 0, 0, time.UTC), start.UTC())
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		name string
		a, b time.Time
		want int
	}{
		{"same day", Date(2024, 1, 1), Date(2024, 1, 1), 0},
		{"next day", Date(2024, 1, 1), Date(2024, 1, 2), 1},
		{"across month", Date(2024, 1, 31), Date(2024, 2, 2), 2},
		{"leap day", Date(2024, 2, 28), Date(2024, 3, 1), 2},
		{"backwards", Date(2024, 1, 5), Date(2024, 1, 1), -4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysBetween(tt.a, tt.b))
		})
	}
}

func TestSameDayAndAddDays(t *testing.T) {
	d := Date(2024, 12, 31)
	assert.True(t, SameDay(d, d.Add(5*time.Hour)))
	assert.False(t, SameDay(d, AddDays(d, 1)))
	assert.Equal(t, Date(2025, 1, 1), AddDays(d, 1))
	assert.Equal(t, Date(2024, 12, 30), AddDays(d, -1))
}

func TestFixedClock(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewFixedClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), c.Now())

	c.AdvanceDays(2)
	assert.Equal(t, start.Add(time.Hour).AddDate(0, 0, 2), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}
