package excel

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/example/studyplan/internal/logger"
	"github.com/example/studyplan/internal/rewards"
	"github.com/example/studyplan/internal/study"
	"github.com/example/studyplan/internal/testutil"
	"github.com/example/studyplan/pkg/models"
)

func newService(t *testing.T) (*study.Service, *models.User, *models.Subject) {
	t.Helper()
	db := testutil.NewDB(t)
	svc := study.NewService(db, rewards.NewLedger(db, nil), logger.NewNop(), study.Config{StoreTimeout: time.Second})
	user := testutil.SeedUser(t, db)
	subject := testutil.SeedSubject(t, db, user.ID, "Chemistry")
	testutil.SeedTopic(t, db, subject.ID, "Acids", models.DifficultyMedium)
	return svc, user, subject
}

func TestImportTopics_Excel(t *testing.T) {
	ctx := context.Background()
	svc, user, subject := newService(t)

	path := filepath.Join(t.TempDir(), "topics.xlsx")
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Title", "Difficulty", "Notes"},
		{"Bonds", "hard", "covalent and ionic"},
		{"Acids", "easy", ""},
		{"Gases", 2, ""},
		{"", "", ""},
		{"", "medium", "missing title"},
		{"Salts", "brutal", ""},
	}
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cellName, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	cfg := DefaultImportConfig()
	cfg.FilePath = path
	cfg.UserID = user.ID
	cfg.SubjectID = subject.ID

	result, err := ImportTopics(ctx, svc, cfg)
	require.NoError(t, err)
	assert.Equal(t, 5, result.TotalProcessed)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, result.Errors, 2)

	topics, err := svc.ListTopics(ctx, user.ID, subject.ID)
	require.NoError(t, err)
	byTitle := map[string]models.Topic{}
	for _, topic := range topics {
		byTitle[topic.Title] = topic
	}
	assert.Len(t, byTitle, 3)
	assert.Equal(t, models.DifficultyHard, byTitle["Bonds"].Difficulty)
	assert.Equal(t, "covalent and ionic", byTitle["Bonds"].Notes)
	assert.Equal(t, models.DifficultyEasy, byTitle["Gases"].Difficulty)
}

func TestImportTopics_CSV(t *testing.T) {
	ctx := context.Background()
	svc, user, subject := newService(t)

	path := filepath.Join(t.TempDir(), "topics.csv")
	content := "Title,Difficulty,Notes\nRedox,5,\"electron transfer, oxidation\"\nCatalysts\nredox,1,\nIsomers,10,\nAlkanes,3abc,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := DefaultImportConfig()
	cfg.FilePath = path
	cfg.UserID = user.ID
	cfg.SubjectID = subject.ID

	result, err := ImportTopics(ctx, svc, cfg)
	require.NoError(t, err)
	assert.Equal(t, 5, result.TotalProcessed)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Row 5")
	assert.Contains(t, result.Errors[1], "Row 6")

	topics, err := svc.ListTopics(ctx, user.ID, subject.ID)
	require.NoError(t, err)
	require.Len(t, topics, 3)
}

func TestImportTopics_ForeignSubject(t *testing.T) {
	svc, _, subject := newService(t)

	path := filepath.Join(t.TempDir(), "topics.csv")
	require.NoError(t, os.WriteFile(path, []byte("Title\nRedox\n"), 0o644))

	cfg := DefaultImportConfig()
	cfg.FilePath = path
	cfg.UserID = 9999
	cfg.SubjectID = subject.ID

	_, err := ImportTopics(context.Background(), svc, cfg)
	require.Error(t, err)
}

func TestParseDifficulty(t *testing.T) {
	tests := map[string]models.Difficulty{
		"":       "",
		"Easy":   models.DifficultyEasy,
		" hard ": models.DifficultyHard,
		"1":      models.DifficultyEasy,
		"3":      models.DifficultyMedium,
		"4":      models.DifficultyHard,
		"5":      models.DifficultyHard,
		"9":      models.Difficulty("9"),
		"0":      models.Difficulty("0"),
		"-3":     models.Difficulty("-3"),
		"3abc":   models.Difficulty("3abc"),
		"brutal": models.Difficulty("brutal"),
	}
	for in, want := range tests {
		assert.Equal(t, want, parseDifficulty(in), "input %q", in)
	}
}

func TestColumnToIndex(t *testing.T) {
	assert.Equal(t, 0, columnToIndex("A"))
	assert.Equal(t, 2, columnToIndex("c"))
	assert.Equal(t, 26, columnToIndex("AA"))
}
