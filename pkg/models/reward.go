package models

import "time"

// RewardAction names the learner action a reward was granted for
type RewardAction string

const (
	ActionTopicCompleted RewardAction = "topic_completed"
	ActionTopicReviewed  RewardAction = "topic_reviewed"
	ActionAchievement    RewardAction = "achievement"
	ActionStreakBonus    RewardAction = "streak_bonus"
)

// RewardEvent is an immutable entry of a user's reward history
type RewardEvent struct {
	ID          int64        `json:"id" db:"id"`
	UserID      int64        `json:"userId" db:"user_id"`
	Action      RewardAction `json:"action" db:"action"`
	Points      int          `json:"points" db:"points"`
	Description string       `json:"description" db:"description"`
	Timestamp   time.Time    `json:"timestamp" db:"created_at"`
}
