// Package rewards keeps the append-only reward history and the cached point
// total of every user in step.
package rewards

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/studyplan/internal/apperr"
	"github.com/example/studyplan/internal/database"
	"github.com/example/studyplan/internal/logger"
	"github.com/example/studyplan/pkg/models"
)

// RecentLimit is the number of events returned in a summary
const RecentLimit = 10

// Ledger appends reward events and reports totals
type Ledger struct {
	db  *sqlx.DB
	log *logger.Logger
	now func() time.Time
}

// NewLedger creates a ledger over db
func NewLedger(db *sqlx.DB, log *logger.Logger) *Ledger {
	if log == nil {
		log = logger.NewNop()
	}
	return &Ledger{db: db, log: log, now: time.Now}
}

// Entry describes a reward to grant
type Entry struct {
	Action      models.RewardAction
	Points      int
	Description string
	At          time.Time // zero means now
}

// Append records an entry in its own transaction and returns the new total.
func (l *Ledger) Append(ctx context.Context, userID int64, entry Entry) (int, error) {
	var total int
	err := database.InTx(ctx, l.db, func(tx *sqlx.Tx) error {
		var err error
		total, err = l.AppendTx(ctx, tx, userID, entry)
		return err
	})
	if err != nil {
		return 0, apperr.Wrap(err, "failed to record reward")
	}
	return total, nil
}

// AppendTx records an entry inside tx: the event row and the point
// increment commit or roll back together.
func (l *Ledger) AppendTx(ctx context.Context, tx *sqlx.Tx, userID int64, entry Entry) (int, error) {
	if entry.Points < 0 {
		return 0, apperr.Validation("points must not be negative",
			apperr.FieldError{Field: "points", Error: "must not be negative"})
	}

	at := entry.At
	if at.IsZero() {
		at = l.now()
	}
	event := &models.RewardEvent{
		UserID:      userID,
		Action:      entry.Action,
		Points:      entry.Points,
		Description: entry.Description,
		Timestamp:   at,
	}
	if err := database.NewRewardRepository(tx).Insert(ctx, event); err != nil {
		return 0, err
	}
	return database.NewUserRepository(tx).AddPoints(ctx, userID, entry.Points)
}

// Stats counts events by action
type Stats struct {
	TopicsCompleted int `json:"topicsCompleted"`
	TopicsReviewed  int `json:"topicsReviewed"`
	Achievements    int `json:"achievements"`
	StreakBonuses   int `json:"streakBonuses"`
}

// Summary is a user's reward overview
type Summary struct {
	CurrentPoints     int                  `json:"currentPoints"`
	TotalPointsEarned int                  `json:"totalPointsEarned"`
	TotalRewards      int                  `json:"totalRewards"`
	Consistent        bool                 `json:"consistent"`
	RecentRewards     []models.RewardEvent `json:"recentRewards"`
	Stats             Stats                `json:"stats"`
}

// Summary returns the cached total next to the ledger sum, the most recent
// events and per-action counts.
func (l *Ledger) Summary(ctx context.Context, userID int64) (*Summary, error) {
	user, err := database.NewUserRepository(l.db).GetByID(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to load user")
	}

	rewards := database.NewRewardRepository(l.db)
	byAction, err := rewards.StatsByAction(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to load reward stats")
	}
	recent, err := rewards.Recent(ctx, userID, RecentLimit)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to load reward history")
	}

	summary := &Summary{
		CurrentPoints: user.Points,
		RecentRewards: recent,
	}
	for _, s := range byAction {
		summary.TotalPointsEarned += s.Points
		summary.TotalRewards += s.Count
		switch s.Action {
		case models.ActionTopicCompleted:
			summary.Stats.TopicsCompleted = s.Count
		case models.ActionTopicReviewed:
			summary.Stats.TopicsReviewed = s.Count
		case models.ActionAchievement:
			summary.Stats.Achievements = s.Count
		case models.ActionStreakBonus:
			summary.Stats.StreakBonuses = s.Count
		}
	}
	summary.Consistent = summary.CurrentPoints == summary.TotalPointsEarned
	return summary, nil
}

// Reconcile reports every user whose cached total differs from the sum of
// their history. Totals are left untouched; the caller decides what to do.
func (l *Ledger) Reconcile(ctx context.Context) ([]error, error) {
	drift, err := database.NewUserRepository(l.db).ListPointDrift(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to reconcile points")
	}

	var problems []error
	for _, d := range drift {
		l.log.Warn("point total out of step with reward history",
			"user_id", d.UserID,
			"cached", d.Cached,
			"ledger_sum", d.LedgerSum,
		)
		problems = append(problems, apperr.Inconsistent(
			fmt.Sprintf("user %d: cached points %d, reward history %d", d.UserID, d.Cached, d.LedgerSum)))
	}
	return problems, nil
}
