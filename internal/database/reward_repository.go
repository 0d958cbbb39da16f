package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/studyplan/pkg/models"
)

// RewardRepository handles the append-only reward history
type RewardRepository struct {
	db sqlx.ExtContext
}

// NewRewardRepository creates a new repository instance
func NewRewardRepository(db sqlx.ExtContext) *RewardRepository {
	return &RewardRepository{db: db}
}

// Insert appends an event. There is no update or delete for reward events.
func (r *RewardRepository) Insert(ctx context.Context, event *models.RewardEvent) error {
	query := r.db.Rebind(`
		INSERT INTO reward_events (user_id, action, points, description, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`)
	event.Timestamp = event.Timestamp.UTC()
	err := r.db.QueryRowxContext(ctx, query,
		event.UserID,
		event.Action,
		event.Points,
		event.Description,
		event.Timestamp,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to append reward event: %w", err)
	}
	return nil
}

// ActionStats aggregates the history of one action
type ActionStats struct {
	Action models.RewardAction `db:"action"`
	Count  int                 `db:"count"`
	Points int                 `db:"points"`
}

// StatsByAction groups a user's history by action
func (r *RewardRepository) StatsByAction(ctx context.Context, userID int64) ([]ActionStats, error) {
	var stats []ActionStats
	query := r.db.Rebind(`
		SELECT action, COUNT(*) AS count, COALESCE(SUM(points), 0) AS points
		FROM reward_events
		WHERE user_id = ?
		GROUP BY action
		ORDER BY action
	`)
	if err := sqlx.SelectContext(ctx, r.db, &stats, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get reward stats: %w", err)
	}
	return stats, nil
}

// Recent returns the n most recent events; insertion order breaks timestamp ties.
func (r *RewardRepository) Recent(ctx context.Context, userID int64, n int) ([]models.RewardEvent, error) {
	events := []models.RewardEvent{}
	query := r.db.Rebind(`
		SELECT id, user_id, action, points, description, created_at
		FROM reward_events
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`)
	if err := sqlx.SelectContext(ctx, r.db, &events, query, userID, n); err != nil {
		return nil, fmt.Errorf("failed to get reward history: %w", err)
	}
	return events, nil
}
