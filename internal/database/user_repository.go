package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/studyplan/internal/apperr"
	"github.com/example/studyplan/pkg/models"
)

const userColumns = "id, name, email, points, telegram_chat_id, created_at"

// UserRepository handles database operations for users
type UserRepository struct {
	db sqlx.ExtContext
}

// NewUserRepository creates a new repository instance on a DB or a transaction
func NewUserRepository(db sqlx.ExtContext) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user with zero points
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := r.db.Rebind(`
		INSERT INTO users (name, email, points, telegram_chat_id, created_at)
		VALUES (?, ?, 0, ?, ?)
		RETURNING id
	`)
	user.Points = 0
	user.CreatedAt = user.CreatedAt.UTC()
	err := r.db.QueryRowxContext(ctx, query, user.Name, user.Email, user.TelegramChatID, user.CreatedAt).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID returns a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	query := r.db.Rebind("SELECT " + userColumns + " FROM users WHERE id = ?")
	err := sqlx.GetContext(ctx, r.db, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetByTelegramChatID returns the user linked to a Telegram chat
func (r *UserRepository) GetByTelegramChatID(ctx context.Context, chatID int64) (*models.User, error) {
	var user models.User
	query := r.db.Rebind("SELECT " + userColumns + " FROM users WHERE telegram_chat_id = ?")
	err := sqlx.GetContext(ctx, r.db, &user, query, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// SetTelegramChatID links (or unlinks, with nil) a Telegram chat to the user
func (r *UserRepository) SetTelegramChatID(ctx context.Context, userID int64, chatID *int64) error {
	query := r.db.Rebind("UPDATE users SET telegram_chat_id = ? WHERE id = ?")
	result, err := r.db.ExecContext(ctx, query, chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

// ReleaseTelegramChat unlinks the chat from whichever user holds it
func (r *UserRepository) ReleaseTelegramChat(ctx context.Context, chatID int64) error {
	query := r.db.Rebind("UPDATE users SET telegram_chat_id = NULL WHERE telegram_chat_id = ?")
	if _, err := r.db.ExecContext(ctx, query, chatID); err != nil {
		return fmt.Errorf("failed to release telegram chat: %w", err)
	}
	return nil
}

// AddPoints increments the cached point total and returns the new value.
// The increment happens in the database; callers never write the total directly.
func (r *UserRepository) AddPoints(ctx context.Context, userID int64, delta int) (int, error) {
	var total int
	query := r.db.Rebind("UPDATE users SET points = points + ? WHERE id = ? RETURNING points")
	err := r.db.QueryRowxContext(ctx, query, delta, userID).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.NotFound("user not found")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to add points: %w", err)
	}
	return total, nil
}

// PointDrift is a user whose cached total differs from the ledger sum
type PointDrift struct {
	UserID    int64 `db:"user_id"`
	Cached    int   `db:"cached"`
	LedgerSum int   `db:"ledger_sum"`
}

// ListPointDrift returns every user whose cached total disagrees with their reward history
func (r *UserRepository) ListPointDrift(ctx context.Context) ([]PointDrift, error) {
	var drift []PointDrift
	query := `
		SELECT u.id AS user_id, u.points AS cached, COALESCE(SUM(e.points), 0) AS ledger_sum
		FROM users u
		LEFT JOIN reward_events e ON e.user_id = u.id
		GROUP BY u.id, u.points
		HAVING u.points <> COALESCE(SUM(e.points), 0)
		ORDER BY u.id
	`
	if err := sqlx.SelectContext(ctx, r.db, &drift, query); err != nil {
		return nil, fmt.Errorf("failed to check point totals: %w", err)
	}
	return drift, nil
}
