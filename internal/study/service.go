// Package study implements subjects, topics and the two topic transitions,
// complete and review, together with the point awards they produce.
package study

import (
	"context"
	"encoding/base32"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/example/studyplan/internal/apperr"
	"github.com/example/studyplan/internal/database"
	"github.com/example/studyplan/internal/logger"
	"github.com/example/studyplan/internal/rewards"
	"github.com/example/studyplan/internal/validation"
	"github.com/example/studyplan/pkg/models"
)

// Config tunes the service
type Config struct {
	StoreTimeout time.Duration
	Now          func() time.Time
}

// Service coordinates topic state and the reward ledger
type Service struct {
	db      *sqlx.DB
	ledger  *rewards.Ledger
	log     *logger.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewService(db *sqlx.DB, ledger *rewards.Ledger, log *logger.Logger, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		db:      db,
		ledger:  ledger,
		log:     log,
		timeout: cfg.StoreTimeout,
		now:     cfg.Now,
	}
}

// TransitionResult is returned by Complete and Review
type TransitionResult struct {
	Topic        *models.Topic `json:"topic"`
	PointsEarned int           `json:"pointsEarned"`
	NewTotal     int           `json:"newTotal"`
}

// Complete marks a topic completed and awards completion points.
func (s *Service) Complete(ctx context.Context, userID, topicID int64) (*TransitionResult, error) {
	return s.transition(ctx, "complete", userID, topicID, applyComplete)
}

// Review grows the topic's interval and awards review points.
func (s *Service) Review(ctx context.Context, userID, topicID int64) (*TransitionResult, error) {
	return s.transition(ctx, "review", userID, topicID, applyReview)
}

func (s *Service) transition(ctx context.Context, name string, userID, topicID int64, apply func(*models.Topic, time.Time) rewards.Entry) (*TransitionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	topic, err := s.authorizedTopic(ctx, userID, topicID)
	if err != nil {
		return nil, err
	}

	entry := apply(topic, s.now())

	var total int
	err = database.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := database.NewTopicRepository(tx).UpdateSchedule(ctx, topic); err != nil {
			return err
		}
		total, err = s.ledger.AppendTx(ctx, tx, userID, entry)
		return err
	})
	if err != nil {
		s.log.Error("topic transition failed",
			"transition", name,
			"user_id", userID,
			"topic_id", topicID,
			"error", err,
		)
		return nil, apperr.Wrap(err, "failed to "+name+" topic")
	}

	s.log.Info("topic transition applied",
		"transition", name,
		"user_id", userID,
		"topic_id", topicID,
		"interval_days", topic.IntervalDays,
		"points", entry.Points,
		"total", total,
	)
	return &TransitionResult{Topic: topic, PointsEarned: entry.Points, NewTotal: total}, nil
}

// authorizedTopic loads the topic and checks that its subject belongs to userID.
func (s *Service) authorizedTopic(ctx context.Context, userID, topicID int64) (*models.Topic, error) {
	topic, err := database.NewTopicRepository(s.db).GetByID(ctx, topicID)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to load topic")
	}
	if _, err := database.NewSubjectRepository(s.db).EnsureOwnership(ctx, topic.SubjectID, userID); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			// a topic whose subject vanished is not reachable by anyone
			return nil, apperr.NotFound("topic not found")
		}
		return nil, apperr.Wrap(err, "failed to load subject")
	}
	return topic, nil
}

// NewUser is the input of CreateUser
type NewUser struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

// CreateUser registers a learner with zero points.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user := &models.User{Name: in.Name, Email: in.Email, CreatedAt: s.now()}
	if err := database.NewUserRepository(s.db).Create(ctx, user); err != nil {
		return nil, apperr.Wrap(err, "failed to create user")
	}
	return user, nil
}

// LinkCodeTTL is how long a code handed out by the bot can be redeemed
const LinkCodeTTL = 10 * time.Minute

// IssueTelegramLinkCode returns a one-time code for chatID. The bot sends it
// to that chat only.
func (s *Service) IssueTelegramLinkCode(ctx context.Context, chatID int64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	id, err := uuid.NewRandom()
	if err != nil {
		return "", apperr.Dependency(err, "failed to generate link code")
	}
	code := linkCodeEncoding.EncodeToString(id[:5])

	now := s.now()
	if err := database.NewLinkCodeRepository(s.db).Create(ctx, code, chatID, now, now.Add(LinkCodeTTL)); err != nil {
		return "", apperr.Wrap(err, "failed to issue link code")
	}
	return code, nil
}

var linkCodeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// LinkTelegramInput is the input of LinkTelegram
type LinkTelegramInput struct {
	Code string `json:"code" validate:"required"`
}

// LinkTelegram redeems a code issued by the bot and routes the chat's
// reminders to userID. A chat linked to another account before moves over.
func (s *Service) LinkTelegram(ctx context.Context, userID int64, in LinkTelegramInput) error {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	if err := validation.Struct(in); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var chatID int64
	err := database.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		users := database.NewUserRepository(tx)
		if _, err := users.GetByID(ctx, userID); err != nil {
			return err
		}
		var err error
		chatID, err = database.NewLinkCodeRepository(tx).Consume(ctx, in.Code, s.now())
		if err != nil {
			return err
		}
		if err := users.ReleaseTelegramChat(ctx, chatID); err != nil {
			return err
		}
		return users.SetTelegramChatID(ctx, userID, &chatID)
	})
	if err != nil {
		return apperr.Wrap(err, "failed to link telegram chat")
	}
	s.log.Info("telegram chat linked", "user_id", userID, "chat_id", chatID)
	return nil
}

// NewSubject is the input of CreateSubject
type NewSubject struct {
	Title      string            `json:"title" validate:"required"`
	Difficulty models.Difficulty `json:"difficulty" validate:"omitempty,difficulty"`
}

// CreateSubject creates a subject owned by userID.
func (s *Service) CreateSubject(ctx context.Context, userID int64, in NewSubject) (*models.Subject, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.Difficulty == "" {
		in.Difficulty = models.DifficultyMedium
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := database.NewUserRepository(s.db).GetByID(ctx, userID); err != nil {
		return nil, apperr.Wrap(err, "failed to load user")
	}

	subject := &models.Subject{
		UserID:     userID,
		Title:      in.Title,
		Difficulty: in.Difficulty,
		CreatedAt:  s.now(),
	}
	if err := database.NewSubjectRepository(s.db).Create(ctx, subject); err != nil {
		return nil, apperr.Wrap(err, "failed to create subject")
	}
	return subject, nil
}

// NewTopic is the input of CreateTopic
type NewTopic struct {
	SubjectID  int64             `json:"subjectId" validate:"required"`
	Title      string            `json:"title" validate:"required"`
	Difficulty models.Difficulty `json:"difficulty" validate:"omitempty,difficulty"`
	Notes      string            `json:"notes"`
}

// CreateTopic adds a new, not yet completed topic to a subject owned by userID.
func (s *Service) CreateTopic(ctx context.Context, userID int64, in NewTopic) (*models.Topic, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.Difficulty == "" {
		in.Difficulty = models.DifficultyMedium
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := database.NewSubjectRepository(s.db).EnsureOwnership(ctx, in.SubjectID, userID); err != nil {
		return nil, apperr.Wrap(err, "failed to load subject")
	}

	topic := &models.Topic{
		SubjectID:  in.SubjectID,
		Title:      in.Title,
		Difficulty: in.Difficulty,
		Notes:      in.Notes,
		CreatedAt:  s.now(),
	}
	if err := database.NewTopicRepository(s.db).Create(ctx, topic); err != nil {
		return nil, apperr.Wrap(err, "failed to create topic")
	}
	return topic, nil
}

// ListTopics returns the topics of a subject owned by userID, newest first.
func (s *Service) ListTopics(ctx context.Context, userID, subjectID int64) ([]models.Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := database.NewSubjectRepository(s.db).EnsureOwnership(ctx, subjectID, userID); err != nil {
		return nil, apperr.Wrap(err, "failed to load subject")
	}
	topics, err := database.NewTopicRepository(s.db).ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list topics")
	}
	return topics, nil
}

// Rewards returns the reward summary of userID.
func (s *Service) Rewards(ctx context.Context, userID int64) (*rewards.Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.ledger.Summary(ctx, userID)
}
