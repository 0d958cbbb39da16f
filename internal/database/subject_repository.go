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

// SubjectRepository handles database operations for subjects
type SubjectRepository struct {
	db sqlx.ExtContext
}

// NewSubjectRepository creates a new repository instance
func NewSubjectRepository(db sqlx.ExtContext) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// Create inserts a new subject
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	query := r.db.Rebind(`
		INSERT INTO subjects (user_id, title, difficulty, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`)
	subject.CreatedAt = subject.CreatedAt.UTC()
	err := r.db.QueryRowxContext(ctx, query,
		subject.UserID,
		subject.Title,
		subject.Difficulty,
		subject.CreatedAt,
	).Scan(&subject.ID)
	if err != nil {
		return fmt.Errorf("failed to create subject: %w", err)
	}
	return nil
}

// GetByID returns a subject by ID
func (r *SubjectRepository) GetByID(ctx context.Context, id int64) (*models.Subject, error) {
	var subject models.Subject
	query := r.db.Rebind("SELECT id, user_id, title, difficulty, created_at FROM subjects WHERE id = ?")
	err := sqlx.GetContext(ctx, r.db, &subject, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("subject not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subject: %w", err)
	}
	return &subject, nil
}

// EnsureOwnership returns the subject if it exists and belongs to userID
func (r *SubjectRepository) EnsureOwnership(ctx context.Context, subjectID, userID int64) (*models.Subject, error) {
	subject, err := r.GetByID(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if subject.UserID != userID {
		return nil, apperr.Forbidden("not authorized")
	}
	return subject, nil
}
