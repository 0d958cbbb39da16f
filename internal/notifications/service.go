// Package notifications stores user notifications and their read state.
package notifications

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/studyplan/internal/apperr"
	"github.com/example/studyplan/internal/database"
	"github.com/example/studyplan/internal/validation"
	"github.com/example/studyplan/pkg/models"
)

// Service is the notification store
type Service struct {
	repo    *database.NotificationRepository
	timeout time.Duration
	now     func() time.Time
}

func NewService(db *sqlx.DB, timeout time.Duration, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{repo: database.NewNotificationRepository(db), timeout: timeout, now: now}
}

// Draft is a notification to create
type Draft struct {
	UserID  int64  `json:"userId" validate:"required"`
	TopicID *int64 `json:"topicId"`
	Title   string `json:"title" validate:"required"`
	Message string `json:"message" validate:"required"`
}

// Create stores a new unread notification. It returns nil without error when
// an unread notification about the same topic is already pending.
func (s *Service) Create(ctx context.Context, d Draft) (*models.Notification, error) {
	if err := validation.Struct(d); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n := &models.Notification{
		UserID:    d.UserID,
		TopicID:   d.TopicID,
		Title:     d.Title,
		Message:   d.Message,
		CreatedAt: s.now(),
	}
	created, err := s.repo.Insert(ctx, n)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to create notification")
	}
	if !created {
		return nil, nil
	}
	return n, nil
}

// CreateIfAbsent skips the insert when the user already has an unread
// notification about the topic. The store rejects a racing duplicate too.
func (s *Service) CreateIfAbsent(ctx context.Context, d Draft) (*models.Notification, error) {
	if d.TopicID != nil {
		pending, err := s.HasUnread(ctx, d.UserID, *d.TopicID)
		if err != nil {
			return nil, err
		}
		if pending {
			return nil, nil
		}
	}
	return s.Create(ctx, d)
}

// HasUnread reports whether an unread notification about topicID is pending for userID.
func (s *Service) HasUnread(ctx context.Context, userID, topicID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pending, err := s.repo.HasUnread(ctx, userID, topicID)
	if err != nil {
		return false, apperr.Wrap(err, "failed to check notifications")
	}
	return pending, nil
}

// Inbox is a user's notification list
type Inbox struct {
	Notifications []models.Notification `json:"notifications"`
	Count         int                   `json:"count"`
	UnreadCount   int                   `json:"unreadCount"`
}

// ListForUser returns every notification of the user, newest first.
func (s *Service) ListForUser(ctx context.Context, userID int64) (*Inbox, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	list, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list notifications")
	}
	inbox := &Inbox{Notifications: list, Count: len(list)}
	for _, n := range list {
		if !n.Read {
			inbox.UnreadCount++
		}
	}
	return inbox, nil
}

// MarkRead marks a notification read. A notification of another user is
// reported as not found.
func (s *Service) MarkRead(ctx context.Context, id, userID int64) (*models.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.repo.MarkRead(ctx, id, userID)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to mark notification read")
	}
	return n, nil
}
