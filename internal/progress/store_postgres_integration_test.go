//go:build integration

package progress_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/p-n-ai/pai-progress/internal/notify"
	"github.com/p-n-ai/pai-progress/internal/platform/database"
	"github.com/p-n-ai/pai-progress/internal/progress"
)

func startPostgres(t *testing.T) *database.DB {
	t.Helper()
	ctx := t.Context()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("pai"),
		postgres.WithUsername("pai"),
		postgres.WithPassword("pai"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = ctr.Terminate(context.Background())
	})

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	db, err := database.New(ctx, url, 4, 1)
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// Migrations are idempotent.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	return db
}

func TestPostgresStore_Integration(t *testing.T) {
	db := startPostgres(t)
	ctx := t.Context()

	store, err := progress.NewPostgresStore(db.Pool)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}

	submitted := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	for i, a := range []progress.Attempt{
		{Score: 3, Total: 5, Percentage: 60},
		{Score: 4, Total: 5, Percentage: 80},
	} {
		a.ID = uuid.NewString()
		a.UserID = "u1"
		a.TeacherID = "t1"
		a.QuizID = "poly-basics"
		a.Topic = "polynomial-functions"
		a.SubmittedAt = submitted.Add(time.Duration(i) * time.Minute)
		if err := store.AppendAttempt(ctx, a); err != nil {
			t.Fatalf("AppendAttempt() error = %v", err)
		}
	}

	attempts, err := store.ListAttempts(ctx, "u1", "polynomial-functions")
	if err != nil {
		t.Fatalf("ListAttempts() error = %v", err)
	}
	if len(attempts) != 2 || progress.Mastery(attempts) != 70 {
		t.Errorf("ListAttempts() = %d attempts, mastery %d; want 2, 70", len(attempts), progress.Mastery(attempts))
	}

	n, err := store.CountAttempts(ctx, "u1")
	if err != nil || n != 2 {
		t.Errorf("CountAttempts() = %d, %v; want 2", n, err)
	}

	byTeacher, err := store.TeacherAttempts(ctx, "t1")
	if err != nil || len(byTeacher) != 2 {
		t.Errorf("TeacherAttempts() = %d, %v; want 2", len(byTeacher), err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	viewed := progress.TopicProgress{Topic: "polynomial-functions", Status: progress.StatusInProgress, MaterialsViewed: true, LastActivity: &now}
	if err := store.SaveProgress(ctx, "u1", viewed); err != nil {
		t.Fatalf("SaveProgress() error = %v", err)
	}
	// A later upsert without the flag keeps materials_viewed.
	quizzed := progress.TopicProgress{Topic: "polynomial-functions", Mastery: 70, Status: progress.StatusInProgress, QuizzesAttempted: 2, LastActivity: &now}
	if err := store.SaveProgress(ctx, "u1", quizzed); err != nil {
		t.Fatalf("SaveProgress() error = %v", err)
	}

	pm, err := store.GetProgress(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProgress() error = %v", err)
	}
	got := pm["polynomial-functions"]
	if got.Mastery != 70 || got.QuizzesAttempted != 2 || !got.MaterialsViewed {
		t.Errorf("GetProgress() = %+v, want mastery 70, 2 attempts, materials viewed", got)
	}

	ok, err := store.GrantAchievement(ctx, "u1", progress.Achievement{ID: progress.FirstQuizAchievement})
	if err != nil || !ok {
		t.Fatalf("GrantAchievement() = %v, %v; want true", ok, err)
	}
	ok, err = store.GrantAchievement(ctx, "u1", progress.Achievement{ID: progress.FirstQuizAchievement})
	if err != nil || ok {
		t.Errorf("second GrantAchievement() = %v, %v; want false", ok, err)
	}
	have, err := store.Achievements(ctx, "u1")
	if err != nil || len(have) != 1 {
		t.Errorf("Achievements() = %v, %v; want 1", have, err)
	}
}

func TestPostgresLog_Integration(t *testing.T) {
	db := startPostgres(t)
	ctx := t.Context()

	log := notify.NewPostgresLog(db.Pool)
	err := log.Append(ctx, notify.Activity{
		TeacherID: "t1",
		StudentID: "u1",
		Kind:      notify.KindQuizSubmitted,
		Topic:     "polynomial-functions",
		Message:   "u1 scored 3/4",
		Data:      map[string]any{"percentage": 75},
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	var count int
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM teacher_activities WHERE teacher_id = 't1'`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("teacher_activities rows = %d, want 1", count)
	}
}
