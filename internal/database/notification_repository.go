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

const notificationColumns = "id, user_id, topic_id, title, message, is_read, created_at"

// NotificationRepository handles database operations for notifications
type NotificationRepository struct {
	db sqlx.ExtContext
}

// NewNotificationRepository creates a new repository instance
func NewNotificationRepository(db sqlx.ExtContext) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Insert stores a new unread notification. It reports false without error when
// an unread notification for the same (user, topic) already exists.
func (r *NotificationRepository) Insert(ctx context.Context, n *models.Notification) (bool, error) {
	query := r.db.Rebind(`
		INSERT INTO notifications (user_id, topic_id, title, message, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
		RETURNING id
	`)
	n.Read = false
	n.CreatedAt = n.CreatedAt.UTC()
	err := r.db.QueryRowxContext(ctx, query, n.UserID, n.TopicID, n.Title, n.Message, false, n.CreatedAt).Scan(&n.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create notification: %w", err)
	}
	return true, nil
}

// HasUnread reports whether the user has an unread notification about the topic
func (r *NotificationRepository) HasUnread(ctx context.Context, userID, topicID int64) (bool, error) {
	var exists bool
	query := r.db.Rebind(`
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE user_id = ? AND topic_id = ? AND is_read = ?
		)
	`)
	if err := r.db.QueryRowxContext(ctx, query, userID, topicID, false).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check notifications: %w", err)
	}
	return exists, nil
}

// ListForUser returns the user's notifications, newest first, with the topic title
func (r *NotificationRepository) ListForUser(ctx context.Context, userID int64) ([]models.Notification, error) {
	notifications := []models.Notification{}
	query := r.db.Rebind(`
		SELECT n.id, n.user_id, n.topic_id, t.title AS topic_title, n.title, n.message, n.is_read, n.created_at
		FROM notifications n
		LEFT JOIN topics t ON t.id = n.topic_id
		WHERE n.user_id = ?
		ORDER BY n.created_at DESC, n.id DESC
	`)
	if err := sqlx.SelectContext(ctx, r.db, &notifications, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead sets is_read for a notification owned by userID in a single statement
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID int64) (*models.Notification, error) {
	var n models.Notification
	query := r.db.Rebind(`
		UPDATE notifications SET is_read = ?
		WHERE id = ? AND user_id = ?
		RETURNING ` + notificationColumns)
	err := sqlx.GetContext(ctx, r.db, &n, query, true, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("notification not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return &n, nil
}
