package spaced_repetition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/studyplan/pkg/models"
)

var tiers = []models.Difficulty{models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard}

func TestPointsIncreaseWithDifficulty(t *testing.T) {
	for i := 1; i < len(tiers); i++ {
		assert.Greater(t, ReviewPoints(tiers[i]), ReviewPoints(tiers[i-1]), "review points %s", tiers[i])
		assert.Greater(t, CompletionPoints(tiers[i]), CompletionPoints(tiers[i-1]), "completion points %s", tiers[i])
	}
	for _, d := range tiers {
		assert.Greater(t, CompletionPoints(d), ReviewPoints(d), "completion must beat review for %s", d)
	}
}

func TestDefaultInterval(t *testing.T) {
	tests := []struct {
		d    models.Difficulty
		want int
	}{
		{models.DifficultyEasy, 15},
		{models.DifficultyMedium, 10},
		{models.DifficultyHard, 7},
		{models.Difficulty("impossible"), 10},
		{models.Difficulty(""), 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultInterval(tt.d), "difficulty %q", tt.d)
	}
	assert.Equal(t, ReviewPoints(models.DifficultyMedium), ReviewPoints("unknown"))
	assert.Equal(t, CompletionPoints(models.DifficultyMedium), CompletionPoints("unknown"))
}

func TestGrowInterval(t *testing.T) {
	assert.Equal(t, 1, GrowInterval(0))
	assert.Equal(t, 1, GrowInterval(-3))
	for n := 1; n <= 64; n++ {
		assert.Equal(t, 2*n, GrowInterval(n))
	}

	interval := 0
	for i := 0; i < 10; i++ {
		next := GrowInterval(interval)
		require.GreaterOrEqual(t, next, interval)
		interval = next
	}
	assert.Equal(t, 512, interval)
}

func TestIsDue(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	at := func(tm time.Time) *time.Time { return &tm }

	tests := []struct {
		name string
		next *time.Time
		want bool
	}{
		{name: "never scheduled", next: nil, want: false},
		{name: "earlier today", next: at(now.Add(-time.Hour)), want: true},
		{name: "later today", next: at(time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)), want: true},
		{name: "tomorrow", next: at(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)), want: false},
		{name: "hard topic completed 10 days ago", next: at(AddDays(now.AddDate(0, 0, -10), DefaultInterval(models.DifficultyHard))), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDue(tt.next, now, time.UTC))
		})
	}
}

func TestIsDueUsesReviewTimeZone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 20:00 UTC on the 10th is already the 11th in Tokyo
	now := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
	next := time.Date(2026, 3, 11, 1, 0, 0, 0, time.UTC)

	assert.False(t, IsDue(&next, now, time.UTC))
	assert.True(t, IsDue(&next, now, tokyo))
}

func TestDueBefore(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	bound := DueBefore(now, time.UTC)
	assert.True(t, bound.Equal(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)))

	justBefore := bound.Add(-time.Nanosecond)
	assert.True(t, IsDue(&justBefore, now, time.UTC))
	assert.False(t, IsDue(&bound, now, time.UTC))
}
