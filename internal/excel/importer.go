// Package excel imports topics for a subject from Excel or CSV sheets.
package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/example/studyplan/internal/study"
	"github.com/example/studyplan/pkg/models"
)

// TopicCreator creates and lists topics on behalf of a user
type TopicCreator interface {
	CreateTopic(ctx context.Context, userID int64, in study.NewTopic) (*models.Topic, error)
	ListTopics(ctx context.Context, userID, subjectID int64) ([]models.Topic, error)
}

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath         string // Path to the Excel or CSV file
	UserID           int64  // Owner of the subject
	SubjectID        int64  // Subject receiving the topics
	TitleColumn      string // Column with the topic title
	DifficultyColumn string // Column with easy/medium/hard or a 1-5 rating
	NotesColumn      string // Column with free-form notes
	SheetName        string // Name of the sheet to import, first sheet when empty
	StartRow         int    // The row to start importing from (1-based index)
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		TitleColumn:      "A",
		DifficultyColumn: "B",
		NotesColumn:      "C",
		StartRow:         2, // By default, start from the second row (skip header)
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int      `json:"totalProcessed"`
	Created        int      `json:"created"`
	Skipped        int      `json:"skipped"` // a topic with the same title already exists
	Errors         []string `json:"errors"`
}

// ImportTopics imports topics from an Excel or CSV file
func ImportTopics(ctx context.Context, topics TopicCreator, config ImportConfig) (*ImportResult, error) {
	rows, err := readRows(config)
	if err != nil {
		return nil, err
	}

	existing, err := topics.ListTopics(ctx, config.UserID, config.SubjectID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[strings.ToLower(t.Title)] = true
	}

	result := &ImportResult{Errors: make([]string, 0)}
	for i, row := range rows {
		rowNum := i + 1
		if rowNum < config.StartRow || isBlank(row) {
			continue
		}
		result.TotalProcessed++

		in := study.NewTopic{
			SubjectID:  config.SubjectID,
			Title:      strings.TrimSpace(cell(row, config.TitleColumn)),
			Difficulty: parseDifficulty(cell(row, config.DifficultyColumn)),
			Notes:      strings.TrimSpace(cell(row, config.NotesColumn)),
		}
		key := strings.ToLower(in.Title)
		if in.Title != "" && seen[key] {
			result.Skipped++
			continue
		}

		if _, err := topics.CreateTopic(ctx, config.UserID, in); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
			continue
		}
		seen[key] = true
		result.Created++
	}
	return result, nil
}

func readRows(config ImportConfig) ([][]string, error) {
	if strings.ToLower(filepath.Ext(config.FilePath)) == ".csv" {
		return readCSV(config.FilePath)
	}
	return readExcel(config)
}

// readExcel returns the rows of the configured sheet
func readExcel(config ImportConfig) ([][]string, error) {
	f, err := excelize.OpenFile(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := config.SheetName
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return rows, nil
}

// readCSV returns every record of a CSV file
func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func cell(row []string, column string) string {
	if column == "" {
		return ""
	}
	if idx := columnToIndex(column); idx >= 0 && idx < len(row) {
		return row[idx]
	}
	return ""
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// parseDifficulty accepts a tier name or a 1-5 rating. Anything else,
// out-of-range ratings included, is passed through for validation to
// reject; empty means the default tier.
func parseDifficulty(s string) models.Difficulty {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if d := models.Difficulty(s); d.Valid() {
		return d
	}
	rating, err := parseIntInRange(s, 1, 5)
	if err != nil {
		return models.Difficulty(s)
	}
	switch {
	case rating <= 2:
		return models.DifficultyEasy
	case rating == 3:
		return models.DifficultyMedium
	default:
		return models.DifficultyHard
	}
}

// Helper function to convert Excel column letter to index
func columnToIndex(column string) int {
	column = strings.ToUpper(column)
	index := 0
	for i := 0; i < len(column); i++ {
		index = index*26 + int(column[i]-'A'+1)
	}
	return index - 1
}

// Helper function to parse an integer that must lie within [min, max]
func parseIntInRange(s string, min, max int) (int, error) {
	val, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if val < min || val > max {
		return 0, fmt.Errorf("%d is outside %d-%d", val, min, max)
	}
	return val, nil
}
