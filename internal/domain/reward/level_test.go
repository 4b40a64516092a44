package reward

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurve_LevelBoundaries(t *testing.T) {
	c := DefaultCurve()

	tests := []struct {
		xp   int64
		want int
	}{
		{-50, 1},
		{0, 1},
		{99, 1},
		{100, 2},
		{249, 2},
		{250, 3},
		{150, 2},
		{499999, 19},
		{500000, 20},
		{10_000_000, 20},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Level(tt.xp), "xp=%d", tt.xp)
	}
}

func TestCurve_LevelMatchesEveryThreshold(t *testing.T) {
	c := DefaultCurve()
	for i := 1; i <= c.MaxLevel(); i++ {
		th := c.Threshold(i)
		assert.Equal(t, i, c.Level(th), "at threshold of level %d", i)
		if i > 1 {
			assert.Equal(t, i-1, c.Level(th-1), "just below level %d", i)
		}
	}
}

func TestCurve_LevelIsMonotonic(t *testing.T) {
	c := DefaultCurve()
	prev := c.Level(0)
	for xp := int64(0); xp <= 600000; xp += 37 {
		l := c.Level(xp)
		assert.GreaterOrEqual(t, l, prev)
		assert.GreaterOrEqual(t, l, 1)
		prev = l
	}
}

func TestCurve_Progress(t *testing.T) {
	c := DefaultCurve()

	p := c.Progress(175)
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, int64(75), p.IntoLevel)
	require.NotNil(t, p.Span)
	assert.Equal(t, int64(150), *p.Span)
	require.NotNil(t, p.Next)
	assert.Equal(t, int64(250), *p.Next)
	assert.InDelta(t, 50.0, p.Percent, 1e-9)
	assert.False(t, p.IsMax)

	p = c.Progress(0)
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, 0.0, p.Percent)
}

func TestCurve_ProgressAtMaxLevel(t *testing.T) {
	c := DefaultCurve()

	for _, xp := range []int64{500000, 750000} {
		p := c.Progress(xp)
		assert.Equal(t, MaxLevel, p.Level)
		assert.Nil(t, p.Span)
		assert.Nil(t, p.Next)
		assert.True(t, p.IsMax)
		assert.Equal(t, 100.0, p.Percent)
		assert.Equal(t, xp-500000, p.IntoLevel)
	}
}

func TestNewCurve_Validation(t *testing.T) {
	_, err := NewCurve(nil)
	assert.Error(t, err)

	_, err = NewCurve([]int64{10, 20})
	assert.Error(t, err)

	_, err = NewCurve([]int64{0, 50, 50})
	assert.Error(t, err)

	c, err := NewCurve([]int64{0, 10})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Level(10))
	assert.True(t, c.Progress(15).IsMax)
}

func TestCurve_SingleLevel(t *testing.T) {
	c, err := NewCurve([]int64{0})
	require.NoError(t, err)

	p := c.Progress(42)
	assert.Equal(t, 1, p.Level)
	assert.True(t, p.IsMax)
	assert.Equal(t, 100.0, p.Percent)
}
