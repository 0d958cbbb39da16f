// Package testutil provides an in-memory database and seed helpers for tests.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/example/studyplan/internal/database"
	"github.com/example/studyplan/pkg/models"
)

// T0 is the fixed reference time used by tests.
var T0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

var seq atomic.Int64

// NewDB opens a fresh in-memory SQLite database with the schema applied.
func NewDB(tb testing.TB) *sqlx.DB {
	tb.Helper()
	db, err := database.Connect(database.Options{DBType: "sqlite", SQLitePath: ":memory:"})
	require.NoError(tb, err)
	tb.Cleanup(func() { db.Close() })
	return db
}

// SeedUser inserts a user with a unique email.
func SeedUser(tb testing.TB, db *sqlx.DB) *models.User {
	tb.Helper()
	n := seq.Add(1)
	user := &models.User{
		Name:      fmt.Sprintf("learner %d", n),
		Email:     fmt.Sprintf("learner%d@example.com", n),
		CreatedAt: T0,
	}
	require.NoError(tb, database.NewUserRepository(db).Create(context.Background(), user))
	return user
}

// SeedSubject inserts a subject owned by userID.
func SeedSubject(tb testing.TB, db *sqlx.DB, userID int64, title string) *models.Subject {
	tb.Helper()
	subject := &models.Subject{
		UserID:     userID,
		Title:      title,
		Difficulty: models.DifficultyMedium,
		CreatedAt:  T0,
	}
	require.NoError(tb, database.NewSubjectRepository(db).Create(context.Background(), subject))
	return subject
}

// SeedTopic inserts a not-yet-completed topic.
func SeedTopic(tb testing.TB, db *sqlx.DB, subjectID int64, title string, d models.Difficulty) *models.Topic {
	tb.Helper()
	topic := &models.Topic{
		SubjectID:  subjectID,
		Title:      title,
		Difficulty: d,
		CreatedAt:  T0,
	}
	require.NoError(tb, database.NewTopicRepository(db).Create(context.Background(), topic))
	return topic
}

// SeedCompletedTopic inserts a topic completed at completedAt and scheduled
// intervalDays later.
func SeedCompletedTopic(tb testing.TB, db *sqlx.DB, subjectID int64, title string, d models.Difficulty, completedAt time.Time, intervalDays int) *models.Topic {
	tb.Helper()
	next := completedAt.AddDate(0, 0, intervalDays)
	topic := &models.Topic{
		SubjectID:    subjectID,
		Title:        title,
		Difficulty:   d,
		Completed:    true,
		IntervalDays: 1,
		LastReviewed: &completedAt,
		NextReview:   &next,
		CompletedAt:  &completedAt,
		CreatedAt:    completedAt,
	}
	require.NoError(tb, database.NewTopicRepository(db).Create(context.Background(), topic))
	return topic
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
