package spaced_repetition

import (
	"fmt"
	"time"

	"github.com/example/deckbot/pkg/models"
)

// LevelTable maps a mastery level to the delay before the next review.
// It is a value type: copies cannot affect the table a Scheduler was built with.
type LevelTable struct {
	intervals [models.MaxLevel + 1]time.Duration
}

// DefaultLevelTable returns the standard table: 0h, 4h, 8h, 1d, 3d, 1w, 2w, ~1 month, ~3 months
func DefaultLevelTable() LevelTable {
	return LevelTable{intervals: [models.MaxLevel + 1]time.Duration{
		0,
		4 * time.Hour,
		8 * time.Hour,
		24 * time.Hour,
		72 * time.Hour,
		168 * time.Hour,
		336 * time.Hour,
		730 * time.Hour,
		2190 * time.Hour,
	}}
}

// NewLevelTable builds a table from exactly MaxLevel+1 non-negative, non-decreasing intervals
func NewLevelTable(intervals []time.Duration) (LevelTable, error) {
	var t LevelTable
	if len(intervals) != len(t.intervals) {
		return t, fmt.Errorf("%w: level table needs %d intervals, got %d", ErrInvalidInput, len(t.intervals), len(intervals))
	}
	for i, d := range intervals {
		if d < 0 {
			return LevelTable{}, fmt.Errorf("%w: negative interval for level %d", ErrInvalidInput, i)
		}
		if i > 0 && d < intervals[i-1] {
			return LevelTable{}, fmt.Errorf("%w: interval for level %d is shorter than level %d", ErrInvalidInput, i, i-1)
		}
		t.intervals[i] = d
	}
	return t, nil
}

// IntervalFor returns the review delay for a level
func (t LevelTable) IntervalFor(level int) (time.Duration, error) {
	if level < 0 || level > models.MaxLevel {
		return 0, fmt.Errorf("%w: level %d outside [0,%d]", ErrInvalidInput, level, models.MaxLevel)
	}
	return t.intervals[level], nil
}

// Intervals returns a copy of the table
func (t LevelTable) Intervals() []time.Duration {
	out := make([]time.Duration, len(t.intervals))
	copy(out, t.intervals[:])
	return out
}

// NextLevel applies one review outcome to a level.
// A failure drops two levels but never below 1, so a reviewed card never returns to the "new" level 0.
func NextLevel(current int, wasSuccessful bool) int {
	if wasSuccessful {
		return min(current+1, models.MaxLevel)
	}
	return max(current-2, 1)
}
