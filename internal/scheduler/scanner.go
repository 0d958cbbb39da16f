package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/studyplan/internal/apperr"
	"github.com/example/studyplan/internal/database"
	"github.com/example/studyplan/internal/logger"
	"github.com/example/studyplan/internal/notifications"
	sr "github.com/example/studyplan/internal/spaced_repetition"
	"github.com/example/studyplan/pkg/models"
)

// Notifier pushes a freshly created review notification to an external channel
type Notifier interface {
	NotifyReviewDue(ctx context.Context, userID int64, n *models.Notification) error
}

// ScannerConfig tunes the due-review scan
type ScannerConfig struct {
	Location *time.Location // day boundaries for due checks
	Timeout  time.Duration  // bound for a whole run
	Now      func() time.Time
}

// Scanner turns due topics into review notifications
type Scanner struct {
	db            *sqlx.DB
	notifications *notifications.Service
	notifier      Notifier
	log           *logger.Logger
	loc           *time.Location
	timeout       time.Duration
	now           func() time.Time
}

// NewScanner creates a scanner. notifier may be nil.
func NewScanner(db *sqlx.DB, ns *notifications.Service, notifier Notifier, log *logger.Logger, cfg ScannerConfig) *Scanner {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Scanner{
		db:            db,
		notifications: ns,
		notifier:      notifier,
		log:           log,
		loc:           cfg.Location,
		timeout:       cfg.Timeout,
		now:           cfg.Now,
	}
}

// ScanResult counts what a run did
type ScanResult struct {
	Due        int `json:"due"`
	Created    int `json:"created"`
	Skipped    int `json:"skipped"`    // an unread notification was already pending
	Unresolved int `json:"unresolved"` // subject could not be loaded
}

type dueTopic struct {
	topic   models.Topic
	subject *models.Subject
}

// RunDueReviewScan creates one unread notification for every completed topic
// whose review is due today or earlier, unless one is already pending.
// A store failure ends the run early; due topics stay due for the next run.
func (s *Scanner) RunDueReviewScan(ctx context.Context) (*ScanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now()
	result := &ScanResult{}

	topics, err := database.NewTopicRepository(s.db).ListDue(ctx, sr.DueBefore(now, s.loc))
	if err != nil {
		return result, apperr.Wrap(err, "failed to load due topics")
	}

	subjects := database.NewSubjectRepository(s.db)
	resolved := make(map[int64]*models.Subject)
	byUser := make(map[int64][]dueTopic)

	for _, topic := range topics {
		if !sr.IsDue(topic.NextReview, now, s.loc) {
			continue
		}
		result.Due++

		subject, seen := resolved[topic.SubjectID]
		if !seen {
			subject, err = subjects.GetByID(ctx, topic.SubjectID)
			if err != nil && !apperr.Is(err, apperr.KindNotFound) {
				return result, apperr.Wrap(err, "failed to load subject")
			}
			// a missing subject is cached as nil so it is not looked up again this run
			resolved[topic.SubjectID] = subject
		}
		if subject == nil {
			result.Unresolved++
			s.log.Warn("skipping due topic without subject",
				"topic_id", topic.ID,
				"subject_id", topic.SubjectID,
			)
			continue
		}
		byUser[subject.UserID] = append(byUser[subject.UserID], dueTopic{topic: topic, subject: subject})
	}

	userIDs := make([]int64, 0, len(byUser))
	for id := range byUser {
		userIDs = append(userIDs, id)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })

	for _, userID := range userIDs {
		created := 0
		for _, item := range byUser[userID] {
			n, err := s.notify(ctx, userID, item)
			if err != nil {
				return result, err
			}
			if n == nil {
				result.Skipped++
				continue
			}
			created++
			result.Created++
		}
		s.log.Debug("review notifications for user",
			"user_id", userID,
			"due", len(byUser[userID]),
			"created", created,
		)
	}

	s.log.Info("due review scan finished",
		"due", result.Due,
		"created", result.Created,
		"skipped", result.Skipped,
		"unresolved", result.Unresolved,
	)
	return result, nil
}

func (s *Scanner) notify(ctx context.Context, userID int64, item dueTopic) (*models.Notification, error) {
	topicID := item.topic.ID
	n, err := s.notifications.CreateIfAbsent(ctx, notifications.Draft{
		UserID:  userID,
		TopicID: &topicID,
		Title:   fmt.Sprintf("Review Due: %s", item.topic.Title),
		Message: fmt.Sprintf(`It's time to review "%s" from "%s". This will help reinforce your learning!`,
			item.topic.Title, item.subject.Title),
	})
	if err != nil {
		return nil, err
	}
	if n == nil || s.notifier == nil {
		return n, nil
	}

	if err := s.notifier.NotifyReviewDue(ctx, userID, n); err != nil {
		s.log.Warn("failed to push review notification",
			"user_id", userID,
			"notification_id", n.ID,
			"error", err,
		)
	}
	return n, nil
}
