package report_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-progress/internal/curriculum"
	"github.com/p-n-ai/pai-progress/internal/progress"
	"github.com/p-n-ai/pai-progress/internal/report"
)

func TestWriteGradebook(t *testing.T) {
	catalog, err := curriculum.NewCatalog([]curriculum.Topic{
		{Slug: "polynomial-functions", Title: "Polynomial Functions", Order: 1},
		{Slug: "rational-functions", Title: "Rational Functions", Order: 2},
	})
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	attempts := []progress.Attempt{
		{UserID: "student-2", QuizID: "poly-basics", Topic: "polynomial-functions", Score: 4, Total: 4, Percentage: 100, SubmittedAt: base.Add(time.Hour)},
		{UserID: "student-1", QuizID: "poly-basics", Topic: "polynomial-functions", Score: 3, Total: 5, Percentage: 60, SubmittedAt: base},
		{UserID: "student-1", QuizID: "poly-basics", Topic: "polynomial-functions", Score: 4, Total: 5, Percentage: 80, SubmittedAt: base.Add(2 * time.Hour)},
	}

	var buf bytes.Buffer
	if err := report.WriteGradebook(&buf, catalog, attempts, 75); err != nil {
		t.Fatalf("WriteGradebook() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(report.AttemptsSheet)
	if err != nil {
		t.Fatalf("GetRows(Attempts) error = %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("Attempts rows = %d, want header + 3", len(rows))
	}
	if rows[0][0] != "Submitted" || rows[1][1] != "student-1" || rows[1][6] != "60" {
		t.Errorf("Attempts sheet not in submission order: %v", rows)
	}

	grid, err := f.GetRows(report.MasterySheet)
	if err != nil {
		t.Fatalf("GetRows(Mastery) error = %v", err)
	}
	if len(grid) != 3 {
		t.Fatalf("Mastery rows = %d, want header + 2 students", len(grid))
	}
	if grid[0][0] != "Student (these quizzes only)" || grid[0][1] != "Polynomial Functions" || grid[0][2] != "Rational Functions" {
		t.Errorf("Mastery header = %v", grid[0])
	}
	if grid[1][0] != "student-1" || grid[1][1] != "70% (In Progress)" {
		t.Errorf("student-1 row = %v, want 70%% (In Progress)", grid[1])
	}
	if grid[2][0] != "student-2" || grid[2][1] != "100% (Completed)" {
		t.Errorf("student-2 row = %v, want 100%% (Completed)", grid[2])
	}
}

func TestWriteGradebook_Empty(t *testing.T) {
	catalog, err := curriculum.NewCatalog([]curriculum.Topic{{Slug: "polynomial-functions", Title: "Polynomial Functions", Order: 1}})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := report.WriteGradebook(&buf, catalog, nil, 75); err != nil {
		t.Fatalf("WriteGradebook() error = %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); len(sheets) != 2 || sheets[0] != "Attempts" || sheets[1] != "Quiz Mastery" {
		t.Errorf("sheets = %v, want Attempts and Quiz Mastery", sheets)
	}
}
