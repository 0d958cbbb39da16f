// Package spaced_repetition holds the fixed-difficulty interval policy:
// difficulty picks the first review delay and the point values, and every
// review doubles the interval.
package spaced_repetition

import (
	"time"

	"github.com/example/studyplan/pkg/models"
)

// Default review delays in days after the first completion
const (
	DefaultIntervalEasy   = 15
	DefaultIntervalMedium = 10
	DefaultIntervalHard   = 7
)

// Points per review
const (
	ReviewPointsEasy   = 1
	ReviewPointsMedium = 2
	ReviewPointsHard   = 3
)

// Points per completion
const (
	CompletionPointsEasy   = 5
	CompletionPointsMedium = 10
	CompletionPointsHard   = 15
)

// DefaultInterval returns the delay before the first review. Unknown
// difficulties are treated as medium.
func DefaultInterval(d models.Difficulty) int {
	switch d {
	case models.DifficultyEasy:
		return DefaultIntervalEasy
	case models.DifficultyHard:
		return DefaultIntervalHard
	default:
		return DefaultIntervalMedium
	}
}

// GrowInterval doubles the current interval, never returning less than one day.
func GrowInterval(currentDays int) int {
	next := currentDays * 2
	if next < 1 {
		return 1
	}
	return next
}

func ReviewPoints(d models.Difficulty) int {
	switch d {
	case models.DifficultyEasy:
		return ReviewPointsEasy
	case models.DifficultyHard:
		return ReviewPointsHard
	default:
		return ReviewPointsMedium
	}
}

func CompletionPoints(d models.Difficulty) int {
	switch d {
	case models.DifficultyEasy:
		return CompletionPointsEasy
	case models.DifficultyHard:
		return CompletionPointsHard
	default:
		return CompletionPointsMedium
	}
}

// AddDays returns t moved by a number of calendar days.
func AddDays(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DueBefore returns the exclusive upper bound for next-review timestamps
// that are due on the day of now: the following midnight in loc.
func DueBefore(now time.Time, loc *time.Location) time.Time {
	return StartOfDay(now, loc).AddDate(0, 0, 1)
}

// IsDue compares at day granularity: a review scheduled for any time today,
// or earlier, is due.
func IsDue(nextReview *time.Time, now time.Time, loc *time.Location) bool {
	if nextReview == nil {
		return false
	}
	return !StartOfDay(*nextReview, loc).After(StartOfDay(now, loc))
}
