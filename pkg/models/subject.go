package models

import "time"

// Subject groups topics and determines who owns them
type Subject struct {
	ID         int64      `json:"id" db:"id"`
	UserID     int64      `json:"userId" db:"user_id"`
	Title      string     `json:"title" db:"title"`
	Difficulty Difficulty `json:"difficulty" db:"difficulty"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
}
