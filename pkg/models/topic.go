package models

import "time"

// Difficulty is the fixed difficulty tier of a topic.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known tiers.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Topic is a unit of study owned by a Subject and scheduled for review
type Topic struct {
	ID           int64      `json:"id" db:"id"`
	SubjectID    int64      `json:"subjectId" db:"subject_id"`
	Title        string     `json:"title" db:"title"`
	Difficulty   Difficulty `json:"difficulty" db:"difficulty"`
	Notes        string     `json:"notes" db:"notes"`
	Completed    bool       `json:"completed" db:"completed"`
	Points       int        `json:"points" db:"points"`              // points of the latest completion, not cumulative
	IntervalDays int        `json:"intervalDays" db:"interval_days"` // 0 until first completion or review
	LastReviewed *time.Time `json:"lastReviewed" db:"last_reviewed"`
	NextReview   *time.Time `json:"nextReview" db:"next_review"`
	CompletedAt  *time.Time `json:"completedAt" db:"completed_at"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
}
