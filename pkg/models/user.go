package models

import "time"

// User is a learner. Points is a cached sum of the user's reward history.
type User struct {
	ID             int64     `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Email          string    `json:"email" db:"email"`
	Points         int       `json:"points" db:"points"`
	TelegramChatID *int64    `json:"telegramChatId,omitempty" db:"telegram_chat_id"` // set when the user linked the bot
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}
