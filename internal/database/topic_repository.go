package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/studyplan/internal/apperr"
	"github.com/example/studyplan/pkg/models"
)

const topicColumns = `id, subject_id, title, difficulty, notes, completed, points, interval_days,
	last_reviewed, next_review, completed_at, created_at`

// TopicRepository handles database operations for topics
type TopicRepository struct {
	db sqlx.ExtContext
}

// NewTopicRepository creates a new repository instance
func NewTopicRepository(db sqlx.ExtContext) *TopicRepository {
	return &TopicRepository{db: db}
}

// Create inserts a topic with its initial schedule fields
func (r *TopicRepository) Create(ctx context.Context, topic *models.Topic) error {
	query := r.db.Rebind(`
		INSERT INTO topics (
			subject_id, title, difficulty, notes, completed, points, interval_days,
			last_reviewed, next_review, completed_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	topic.CreatedAt = topic.CreatedAt.UTC()
	err := r.db.QueryRowxContext(ctx, query,
		topic.SubjectID,
		topic.Title,
		topic.Difficulty,
		topic.Notes,
		topic.Completed,
		topic.Points,
		topic.IntervalDays,
		utc(topic.LastReviewed),
		utc(topic.NextReview),
		utc(topic.CompletedAt),
		topic.CreatedAt,
	).Scan(&topic.ID)
	if err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}
	return nil
}

// GetByID returns a topic by ID
func (r *TopicRepository) GetByID(ctx context.Context, id int64) (*models.Topic, error) {
	var topic models.Topic
	query := r.db.Rebind("SELECT " + topicColumns + " FROM topics WHERE id = ?")
	err := sqlx.GetContext(ctx, r.db, &topic, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("topic not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get topic: %w", err)
	}
	return &topic, nil
}

// ListBySubject returns the topics of a subject, newest first
func (r *TopicRepository) ListBySubject(ctx context.Context, subjectID int64) ([]models.Topic, error) {
	topics := []models.Topic{}
	query := r.db.Rebind("SELECT " + topicColumns + " FROM topics WHERE subject_id = ? ORDER BY created_at DESC, id DESC")
	if err := sqlx.SelectContext(ctx, r.db, &topics, query, subjectID); err != nil {
		return nil, fmt.Errorf("failed to get topics: %w", err)
	}
	return topics, nil
}

// UpdateSchedule writes the lifecycle fields of a topic
func (r *TopicRepository) UpdateSchedule(ctx context.Context, topic *models.Topic) error {
	query := r.db.Rebind(`
		UPDATE topics SET
			completed = ?,
			points = ?,
			interval_days = ?,
			last_reviewed = ?,
			next_review = ?,
			completed_at = ?
		WHERE id = ?
	`)
	result, err := r.db.ExecContext(ctx, query,
		topic.Completed,
		topic.Points,
		topic.IntervalDays,
		utc(topic.LastReviewed),
		utc(topic.NextReview),
		utc(topic.CompletedAt),
		topic.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update topic: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound("topic not found")
	}
	return nil
}

// ListDue returns completed topics whose next review is strictly before the given instant
func (r *TopicRepository) ListDue(ctx context.Context, before time.Time) ([]models.Topic, error) {
	var topics []models.Topic
	query := r.db.Rebind(`
		SELECT ` + topicColumns + `
		FROM topics
		WHERE completed = ?
		AND next_review IS NOT NULL
		AND next_review < ?
		ORDER BY next_review ASC, id ASC
	`)
	if err := sqlx.SelectContext(ctx, r.db, &topics, query, true, before.UTC()); err != nil {
		return nil, fmt.Errorf("failed to get due topics: %w", err)
	}
	return topics, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
