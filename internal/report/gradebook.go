// Package report renders teacher-facing exports.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-progress/internal/curriculum"
	"github.com/p-n-ai/pai-progress/internal/progress"
)

const (
	AttemptsSheet = "Attempts"

	// MasterySheet is named for its scope: it only sees the exported
	// attempts, not a student's stored mastery across every teacher.
	MasterySheet = "Quiz Mastery"
	timeFormat   = "2006-01-02 15:04"
)

var attemptHeaders = []string{"Submitted", "Student", "Quiz", "Topic", "Correct", "Total", "Percentage"}

// WriteGradebook writes an xlsx workbook with two sheets: every attempt in
// submission order, and a student-by-topic mastery grid recomputed from
// those attempts only. Topics follow catalog order.
func WriteGradebook(w io.Writer, catalog *curriculum.Catalog, attempts []progress.Attempt, completionThreshold int) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", AttemptsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(MasterySheet); err != nil {
		return fmt.Errorf("create mastery sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := writeAttempts(f, attempts, header); err != nil {
		return err
	}
	if err := writeMastery(f, catalog, attempts, completionThreshold, header); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeAttempts(f *excelize.File, attempts []progress.Attempt, style int) error {
	sorted := append([]progress.Attempt(nil), attempts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SubmittedAt.Before(sorted[j].SubmittedAt)
	})

	if err := writeRow(f, AttemptsSheet, 1, toAny(attemptHeaders)); err != nil {
		return err
	}
	if err := styleHeader(f, AttemptsSheet, len(attemptHeaders), style); err != nil {
		return err
	}

	for i, a := range sorted {
		row := []any{
			a.SubmittedAt.UTC().Format(timeFormat),
			a.UserID,
			a.QuizID,
			a.Topic,
			a.Score,
			a.Total,
			a.Percentage,
		}
		if err := writeRow(f, AttemptsSheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeMastery(f *excelize.File, catalog *curriculum.Catalog, attempts []progress.Attempt, threshold int, style int) error {
	topics := catalog.Topics()

	byStudent := make(map[string]map[string][]progress.Attempt)
	for _, a := range attempts {
		if byStudent[a.UserID] == nil {
			byStudent[a.UserID] = make(map[string][]progress.Attempt)
		}
		byStudent[a.UserID][a.Topic] = append(byStudent[a.UserID][a.Topic], a)
	}
	students := make([]string, 0, len(byStudent))
	for id := range byStudent {
		students = append(students, id)
	}
	sort.Strings(students)

	header := []any{"Student (these quizzes only)"}
	for _, t := range topics {
		header = append(header, t.Title)
	}
	if err := writeRow(f, MasterySheet, 1, header); err != nil {
		return err
	}
	if err := styleHeader(f, MasterySheet, len(header), style); err != nil {
		return err
	}

	for i, student := range students {
		row := []any{student}
		for _, t := range topics {
			history := byStudent[student][t.Slug]
			if len(history) == 0 {
				row = append(row, "")
				continue
			}
			mastery := progress.Mastery(history)
			row = append(row, fmt.Sprintf("%d%% (%s)", mastery, progress.CompletionStatus(mastery, threshold)))
		}
		if err := writeRow(f, MasterySheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func styleHeader(f *excelize.File, sheet string, cols, style int) error {
	end, err := excelize.CoordinatesToCellName(cols, 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", end, style)
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
