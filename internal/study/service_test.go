package study

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/example/studyplan/internal/apperr"
	"github.com/example/studyplan/internal/database"
	"github.com/example/studyplan/internal/logger"
	"github.com/example/studyplan/internal/rewards"
	sr "github.com/example/studyplan/internal/spaced_repetition"
	"github.com/example/studyplan/internal/testutil"
	"github.com/example/studyplan/pkg/models"
)

type fixture struct {
	db      *sqlx.DB
	svc     *Service
	ledger  *rewards.Ledger
	now     time.Time
	user    *models.User
	subject *models.Subject
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{db: testutil.NewDB(t), now: testutil.T0}
	f.ledger = rewards.NewLedger(f.db, logger.NewNop())
	f.svc = NewService(f.db, f.ledger, logger.NewNop(), Config{
		StoreTimeout: time.Second,
		Now:          func() time.Time { return f.now },
	})
	f.user = testutil.SeedUser(t, f.db)
	f.subject = testutil.SeedSubject(t, f.db, f.user.ID, "Biology")
	return f
}

func (f *fixture) history(t *testing.T, userID int64) []models.RewardEvent {
	t.Helper()
	events, err := database.NewRewardRepository(f.db).Recent(context.Background(), userID, 100)
	require.NoError(t, err)
	return events
}

func TestComplete_FreshMediumTopic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	topic := testutil.SeedTopic(t, f.db, f.subject.ID, "Mitosis", models.DifficultyMedium)

	res, err := f.svc.Complete(ctx, f.user.ID, topic.ID)
	require.NoError(t, err)

	assert.Equal(t, sr.CompletionPoints(models.DifficultyMedium), res.PointsEarned)
	assert.Equal(t, sr.CompletionPoints(models.DifficultyMedium), res.NewTotal)

	stored, err := database.NewTopicRepository(f.db).GetByID(ctx, topic.ID)
	require.NoError(t, err)
	assert.True(t, stored.Completed)
	assert.Equal(t, 1, stored.IntervalDays)
	assert.Equal(t, sr.CompletionPoints(models.DifficultyMedium), stored.Points)
	require.NotNil(t, stored.CompletedAt)
	require.NotNil(t, stored.NextReview)
	assert.True(t, stored.CompletedAt.Equal(testutil.T0))
	assert.True(t, stored.LastReviewed.Equal(testutil.T0))
	assert.True(t, stored.NextReview.Equal(stored.CompletedAt.AddDate(0, 0, sr.DefaultInterval(models.DifficultyMedium))))

	events := f.history(t, f.user.ID)
	require.Len(t, events, 1)
	assert.Equal(t, models.ActionTopicCompleted, events[0].Action)
	assert.Equal(t, "Completed topic: Mitosis (medium)", events[0].Description)

	user, err := database.NewUserRepository(f.db).GetByID(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, sr.CompletionPoints(models.DifficultyMedium), user.Points)
}

func TestComplete_RepeatsEffects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	topic := testutil.SeedTopic(t, f.db, f.subject.ID, "Mitosis", models.DifficultyHard)

	_, err := f.svc.Complete(ctx, f.user.ID, topic.ID)
	require.NoError(t, err)
	_, err = f.svc.Review(ctx, f.user.ID, topic.ID)
	require.NoError(t, err)

	f.now = testutil.T0.AddDate(0, 0, 3)
	res, err := f.svc.Complete(ctx, f.user.ID, topic.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Topic.IntervalDays, "completion resets the interval")
	assert.True(t, res.Topic.NextReview.Equal(f.now.AddDate(0, 0, 7)))
	assert.Equal(t, 15+3+15, res.NewTotal)
	assert.Len(t, f.history(t, f.user.ID), 3)
}

func TestReview_DoublesInterval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	topic := testutil.SeedTopic(t, f.db, f.subject.ID, "Meiosis", models.DifficultyEasy)

	_, err := f.svc.Complete(ctx, f.user.ID, topic.ID)
	require.NoError(t, err)

	f.now = testutil.T0.AddDate(0, 0, 15)
	first, err := f.svc.Review(ctx, f.user.ID, topic.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Topic.IntervalDays)
	assert.True(t, first.Topic.NextReview.Equal(f.now.AddDate(0, 0, 2)))
	assert.Equal(t, sr.ReviewPoints(models.DifficultyEasy), first.PointsEarned)

	second, err := f.svc.Review(ctx, f.user.ID, topic.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, second.Topic.IntervalDays)
	assert.Equal(t, 5+1+1, second.NewTotal)

	reviewed := 0
	for _, e := range f.history(t, f.user.ID) {
		if e.Action == models.ActionTopicReviewed {
			reviewed++
			assert.Equal(t, sr.ReviewPoints(models.DifficultyEasy), e.Points)
		}
	}
	assert.Equal(t, 2, reviewed)

	stored, err := database.NewTopicRepository(f.db).GetByID(ctx, topic.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.IntervalDays)
	assert.Equal(t, 5, stored.Points, "topic points track the completion award only")
}

func TestReview_IncompleteTopicGrowsFromZero(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	topic := testutil.SeedTopic(t, f.db, f.subject.ID, "Enzymes", models.DifficultyHard)

	res, err := f.svc.Review(ctx, f.user.ID, topic.ID)
	require.NoError(t, err)
	assert.False(t, res.Topic.Completed)
	assert.Equal(t, 1, res.Topic.IntervalDays)
	require.NotNil(t, res.Topic.NextReview)
	assert.True(t, res.Topic.NextReview.Equal(testutil.T0.AddDate(0, 0, 1)))
	assert.Equal(t, 3, res.NewTotal)
}

func TestTransitions_Forbidden(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	topic := testutil.SeedTopic(t, f.db, f.subject.ID, "Cells", models.DifficultyMedium)
	intruder := testutil.SeedUser(t, f.db)

	_, err := f.svc.Complete(ctx, intruder.ID, topic.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = f.svc.Review(ctx, intruder.ID, topic.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	stored, err := database.NewTopicRepository(f.db).GetByID(ctx, topic.ID)
	require.NoError(t, err)
	assert.False(t, stored.Completed)
	assert.Zero(t, stored.IntervalDays)
	assert.Nil(t, stored.NextReview)
	assert.Empty(t, f.history(t, intruder.ID))
	assert.Empty(t, f.history(t, f.user.ID))
}

func TestTransitions_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Complete(context.Background(), f.user.ID, 404)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = f.svc.Review(context.Background(), f.user.ID, 404)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestTransitions_LedgerFailureRollsBackTopic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	topic := testutil.SeedTopic(t, f.db, f.subject.ID, "Cells", models.DifficultyMedium)

	_, err := f.db.Exec("DROP TABLE reward_events")
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, f.user.ID, topic.ID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindDependency))

	stored, err := database.NewTopicRepository(f.db).GetByID(ctx, topic.ID)
	require.NoError(t, err)
	assert.False(t, stored.Completed)
	assert.Nil(t, stored.NextReview)

	user, err := database.NewUserRepository(f.db).GetByID(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Zero(t, user.Points)
}

func TestTransitions_TotalMatchesHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	topics := []*models.Topic{
		testutil.SeedTopic(t, f.db, f.subject.ID, "A", models.DifficultyEasy),
		testutil.SeedTopic(t, f.db, f.subject.ID, "B", models.DifficultyMedium),
		testutil.SeedTopic(t, f.db, f.subject.ID, "C", models.DifficultyHard),
	}

	for i, topic := range topics {
		_, err := f.svc.Complete(ctx, f.user.ID, topic.ID)
		require.NoError(t, err)
		for j := 0; j <= i; j++ {
			_, err = f.svc.Review(ctx, f.user.ID, topic.ID)
			require.NoError(t, err)
		}

		summary, err := f.svc.Rewards(ctx, f.user.ID)
		require.NoError(t, err)
		sum := 0
		for _, e := range f.history(t, f.user.ID) {
			sum += e.Points
		}
		assert.Equal(t, sum, summary.TotalPointsEarned)
		assert.Equal(t, sum, summary.CurrentPoints)
		assert.True(t, summary.Consistent)
	}
}

func TestCreateSubjectAndTopic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	subject, err := f.svc.CreateSubject(ctx, f.user.ID, NewSubject{Title: "  Chemistry "})
	require.NoError(t, err)
	assert.Equal(t, "Chemistry", subject.Title)
	assert.Equal(t, models.DifficultyMedium, subject.Difficulty)

	topic, err := f.svc.CreateTopic(ctx, f.user.ID, NewTopic{SubjectID: subject.ID, Title: " Bonds ", Difficulty: models.DifficultyHard})
	require.NoError(t, err)
	assert.Equal(t, "Bonds", topic.Title)
	assert.False(t, topic.Completed)
	assert.Zero(t, topic.IntervalDays)
	assert.Nil(t, topic.NextReview)

	f.now = f.now.Add(time.Minute)
	_, err = f.svc.CreateTopic(ctx, f.user.ID, NewTopic{SubjectID: subject.ID, Title: "Acids"})
	require.NoError(t, err)

	topics, err := f.svc.ListTopics(ctx, f.user.ID, subject.ID)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, "Acids", topics[0].Title)
	assert.Equal(t, models.DifficultyMedium, topics[0].Difficulty)
}

func TestCreateTopic_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CreateTopic(ctx, f.user.ID, NewTopic{SubjectID: f.subject.ID, Title: "   "})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, []apperr.FieldError{{Field: "title", Error: "this field is required"}}, apperr.FieldsOf(err))

	_, err = f.svc.CreateTopic(ctx, f.user.ID, NewTopic{SubjectID: f.subject.ID, Title: "x", Difficulty: "brutal"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	other := testutil.SeedUser(t, f.db)
	_, err = f.svc.CreateTopic(ctx, other.ID, NewTopic{SubjectID: f.subject.ID, Title: "x"})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = f.svc.ListTopics(ctx, other.ID, f.subject.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	user, err := f.svc.CreateUser(ctx, NewUser{Name: "Ada", Email: " Ada@Example.com "})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)

	_, err = f.svc.CreateUser(ctx, NewUser{Name: "Ada", Email: "not-an-email"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestLinkTelegram(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	users := database.NewUserRepository(f.db)

	code, err := f.svc.IssueTelegramLinkCode(ctx, 777)
	require.NoError(t, err)
	assert.Len(t, code, 8)

	// unknown users keep the code redeemable
	err = f.svc.LinkTelegram(ctx, 9999, LinkTelegramInput{Code: code})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, f.svc.LinkTelegram(ctx, f.user.ID, LinkTelegramInput{Code: " " + strings.ToLower(code) + " "}))
	stored, err := users.GetByID(ctx, f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TelegramChatID)
	assert.Equal(t, int64(777), *stored.TelegramChatID)

	err = f.svc.LinkTelegram(ctx, f.user.ID, LinkTelegramInput{Code: code})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "codes are single use")

	err = f.svc.LinkTelegram(ctx, f.user.ID, LinkTelegramInput{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestLinkTelegram_ExpiredCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	code, err := f.svc.IssueTelegramLinkCode(ctx, 777)
	require.NoError(t, err)

	f.now = f.now.Add(LinkCodeTTL)
	err = f.svc.LinkTelegram(ctx, f.user.ID, LinkTelegramInput{Code: code})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestLinkTelegram_NewCodeReplacesOld(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.svc.IssueTelegramLinkCode(ctx, 777)
	require.NoError(t, err)
	second, err := f.svc.IssueTelegramLinkCode(ctx, 777)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	err = f.svc.LinkTelegram(ctx, f.user.ID, LinkTelegramInput{Code: first})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	require.NoError(t, f.svc.LinkTelegram(ctx, f.user.ID, LinkTelegramInput{Code: second}))
}

func TestLinkTelegram_ChatMovesToTheAccountThatProvedIt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	users := database.NewUserRepository(f.db)
	other := testutil.SeedUser(t, f.db)

	// a chat id alone cannot be claimed: the direct write collides
	require.NoError(t, users.SetTelegramChatID(ctx, other.ID, testutil.Ptr(int64(424242))))
	assert.Error(t, users.SetTelegramChatID(ctx, f.user.ID, testutil.Ptr(int64(424242))))

	code, err := f.svc.IssueTelegramLinkCode(ctx, 424242)
	require.NoError(t, err)
	require.NoError(t, f.svc.LinkTelegram(ctx, f.user.ID, LinkTelegramInput{Code: code}))

	linked, err := users.GetByTelegramChatID(ctx, 424242)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, linked.ID)

	previous, err := users.GetByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Nil(t, previous.TelegramChatID)
}

func TestTransitions_ConcurrentCallsKeepTotalsConsistent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.svc.timeout = 10 * time.Second

	const n = 8
	topics := make([]*models.Topic, n)
	for i := range topics {
		topics[i] = testutil.SeedTopic(t, f.db, f.subject.ID, fmt.Sprintf("Topic %d", i), models.DifficultyHard)
	}

	var g errgroup.Group
	for _, topic := range topics {
		topicID := topic.ID
		g.Go(func() error {
			if _, err := f.svc.Complete(ctx, f.user.ID, topicID); err != nil {
				return err
			}
			_, err := f.svc.Review(ctx, f.user.ID, topicID)
			return err
		})
	}
	require.NoError(t, g.Wait())

	want := n * (sr.CompletionPoints(models.DifficultyHard) + sr.ReviewPoints(models.DifficultyHard))
	summary, err := f.ledger.Summary(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, want, summary.CurrentPoints)
	assert.Equal(t, want, summary.TotalPointsEarned)
	assert.Equal(t, 2*n, summary.TotalRewards)
	assert.True(t, summary.Consistent)

	problems, err := f.ledger.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, problems)
}
