package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/studyplan/internal/apperr"
)

// LinkCodeRepository stores one-time codes that prove control of a Telegram chat
type LinkCodeRepository struct {
	db sqlx.ExtContext
}

// NewLinkCodeRepository creates a new repository instance on a DB or a transaction
func NewLinkCodeRepository(db sqlx.ExtContext) *LinkCodeRepository {
	return &LinkCodeRepository{db: db}
}

// Create stores code for chatID until expiresAt. Earlier codes of the same
// chat and every expired code are dropped.
func (r *LinkCodeRepository) Create(ctx context.Context, code string, chatID int64, now, expiresAt time.Time) error {
	query := r.db.Rebind("DELETE FROM telegram_link_codes WHERE chat_id = ? OR expires_at <= ?")
	if _, err := r.db.ExecContext(ctx, query, chatID, now.UTC()); err != nil {
		return fmt.Errorf("failed to prune link codes: %w", err)
	}

	query = r.db.Rebind("INSERT INTO telegram_link_codes (code, chat_id, expires_at) VALUES (?, ?, ?)")
	if _, err := r.db.ExecContext(ctx, query, code, chatID, expiresAt.UTC()); err != nil {
		return fmt.Errorf("failed to store link code: %w", err)
	}
	return nil
}

// Consume deletes a code that is still valid at now and returns its chat.
func (r *LinkCodeRepository) Consume(ctx context.Context, code string, now time.Time) (int64, error) {
	var chatID int64
	query := r.db.Rebind("DELETE FROM telegram_link_codes WHERE code = ? AND expires_at > ? RETURNING chat_id")
	err := r.db.QueryRowxContext(ctx, query, code, now.UTC()).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.Validation("invalid link code",
			apperr.FieldError{Field: "code", Error: "unknown or expired, send /start to the bot for a new one"})
	}
	if err != nil {
		return 0, fmt.Errorf("failed to consume link code: %w", err)
	}
	return chatID, nil
}
