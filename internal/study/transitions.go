package study

import (
	"fmt"
	"time"

	"github.com/example/studyplan/internal/rewards"
	sr "github.com/example/studyplan/internal/spaced_repetition"
	"github.com/example/studyplan/pkg/models"
)

// applyComplete marks the topic completed at now and returns the reward it earns.
// Completing an already completed topic applies the same effects again.
func applyComplete(topic *models.Topic, now time.Time) rewards.Entry {
	points := sr.CompletionPoints(topic.Difficulty)
	next := sr.AddDays(now, sr.DefaultInterval(topic.Difficulty))

	topic.Completed = true
	topic.IntervalDays = 1
	topic.CompletedAt = &now
	topic.LastReviewed = &now
	topic.NextReview = &next
	topic.Points = points

	return rewards.Entry{
		Action:      models.ActionTopicCompleted,
		Points:      points,
		Description: fmt.Sprintf("Completed topic: %s (%s)", topic.Title, topic.Difficulty),
		At:          now,
	}
}

// applyReview grows the interval and reschedules from now. The topic does not
// need to be completed.
func applyReview(topic *models.Topic, now time.Time) rewards.Entry {
	topic.IntervalDays = sr.GrowInterval(topic.IntervalDays)
	next := sr.AddDays(now, topic.IntervalDays)
	topic.LastReviewed = &now
	topic.NextReview = &next

	return rewards.Entry{
		Action:      models.ActionTopicReviewed,
		Points:      sr.ReviewPoints(topic.Difficulty),
		Description: fmt.Sprintf("Reviewed topic: %s (%s)", topic.Title, topic.Difficulty),
		At:          now,
	}
}
