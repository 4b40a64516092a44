package reward

import (
	"fmt"
)

// MaxLevel is the highest reachable level on the default curve.
const MaxLevel = 20

// defaultThresholds holds the minimum total XP for levels 1..MaxLevel.
var defaultThresholds = [MaxLevel]int64{
	0, 100, 250, 500, 1000,
	2000, 4000, 7000, 11000, 16000,
	22000, 30000, 40000, 55000, 75000,
	100000, 150000, 225000, 350000, 500000,
}

// Curve maps total XP to a level. It is immutable once built.
type Curve struct {
	thresholds []int64
}

// DefaultCurve returns the standard 20-level curve.
func DefaultCurve() Curve {
	th := make([]int64, MaxLevel)
	copy(th, defaultThresholds[:])
	return Curve{thresholds: th}
}

// NewCurve builds a curve from a strictly increasing table starting at 0.
func NewCurve(thresholds []int64) (Curve, error) {
	if len(thresholds) == 0 {
		return Curve{}, fmt.Errorf("level curve: empty threshold table")
	}
	if thresholds[0] != 0 {
		return Curve{}, fmt.Errorf("level curve: first threshold must be 0, got %d", thresholds[0])
	}
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] <= thresholds[i-1] {
			return Curve{}, fmt.Errorf("level curve: threshold %d (%d) is not above %d", i, thresholds[i], thresholds[i-1])
		}
	}
	th := make([]int64, len(thresholds))
	copy(th, thresholds)
	return Curve{thresholds: th}, nil
}

// MaxLevel returns the number of levels on the curve.
func (c Curve) MaxLevel() int {
	return len(c.thresholds)
}

// Threshold returns the minimum XP for level, clamped to the table.
func (c Curve) Threshold(level int) int64 {
	if level < 1 {
		level = 1
	}
	if level > len(c.thresholds) {
		level = len(c.thresholds)
	}
	return c.thresholds[level-1]
}

// Level returns the largest i+1 with xp >= threshold[i]. Never below 1.
func (c Curve) Level(xp int64) int {
	level := 1
	for i := 1; i < len(c.thresholds); i++ {
		if xp < c.thresholds[i] {
			break
		}
		level = i + 1
	}
	return level
}

// LevelProgress describes how far a total sits inside its level band.
// Span and Next are nil at the top level.
type LevelProgress struct {
	Level     int
	IntoLevel int64
	Span      *int64
	Next      *int64
	Percent   float64
	IsMax     bool
}

// Progress returns the position of xp within its level band.
func (c Curve) Progress(xp int64) LevelProgress {
	if xp < 0 {
		xp = 0
	}
	level := c.Level(xp)
	low := c.thresholds[level-1]

	if level >= len(c.thresholds) {
		return LevelProgress{
			Level:     level,
			IntoLevel: xp - low,
			Percent:   100,
			IsMax:     true,
		}
	}

	high := c.thresholds[level]
	span := high - low
	into := xp - low
	return LevelProgress{
		Level:     level,
		IntoLevel: into,
		Span:      &span,
		Next:      &high,
		Percent:   100 * float64(into) / float64(span),
	}
}
