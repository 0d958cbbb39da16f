package models

import "time"

// Notification is a message shown to a user, optionally about a topic
type Notification struct {
	ID         int64     `json:"id" db:"id"`
	UserID     int64     `json:"userId" db:"user_id"`
	TopicID    *int64    `json:"topicId,omitempty" db:"topic_id"`
	TopicTitle *string   `json:"topicTitle,omitempty" db:"topic_title"`
	Title      string    `json:"title" db:"title"`
	Message    string    `json:"message" db:"message"`
	Read       bool      `json:"read" db:"is_read"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}
