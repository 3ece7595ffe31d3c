// Package notify records teacher-facing activity emitted by student actions
// and streams it to connected teacher dashboards.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// Activity kinds.
const (
	KindQuizSubmitted       = "quiz_submitted"
	KindAchievementUnlocked = "achievement_unlocked"
	KindMaterialsViewed     = "materials_viewed"
)

// Activity is one entry in a teacher's activity feed.
type Activity struct {
	ID          string         `json:"id"`
	TeacherID   string         `json:"teacher_id"`
	StudentID   string         `json:"student_id"`
	StudentName string         `json:"student_name,omitempty"`
	Kind        string         `json:"kind"`
	Topic       string         `json:"topic,omitempty"`
	QuizID      string         `json:"quiz_id,omitempty"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Log is an append-only activity log keyed by teacher.
type Log interface {
	Append(ctx context.Context, activity Activity) error
}

// NopLog ignores all activity.
type NopLog struct{}

func (NopLog) Append(context.Context, Activity) error {
	return nil
}

func prepare(a Activity) (Activity, error) {
	if a.TeacherID == "" {
		return a, fmt.Errorf("teacher_id is required")
	}
	if a.Kind == "" {
		return a, fmt.Errorf("kind is required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	return a, nil
}

// MemoryLog stores activity in memory for tests and single-node development.
type MemoryLog struct {
	mu         sync.Mutex
	activities []Activity
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		activities: []Activity{},
	}
}

func (l *MemoryLog) Append(_ context.Context, activity Activity) error {
	activity, err := prepare(activity)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.activities = append(l.activities, activity)
	l.mu.Unlock()

	return nil
}

// Activities returns a copy of everything appended so far.
func (l *MemoryLog) Activities() []Activity {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Activity{}, l.activities...)
}

// PostgresLog inserts activity into the teacher_activities table.
type PostgresLog struct {
	pool *pgxpool.Pool
}

func NewPostgresLog(pool *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{pool: pool}
}

func (l *PostgresLog) Append(ctx context.Context, activity Activity) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("activity log pool is nil")
	}
	activity, err := prepare(activity)
	if err != nil {
		return err
	}

	payload := activity.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal activity data: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err = l.pool.Exec(ctx,
		`INSERT INTO teacher_activities
		   (id, teacher_id, student_id, student_name, kind, topic, quiz_id, message, data, created_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10)`,
		activity.ID,
		activity.TeacherID,
		activity.StudentID,
		nullIfEmpty(activity.StudentName),
		activity.Kind,
		nullIfEmpty(activity.Topic),
		nullIfEmpty(activity.QuizID),
		activity.Message,
		string(data),
		activity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}

	slog.Debug("activity logged",
		"kind", activity.Kind,
		"teacher_id", activity.TeacherID,
		"student_id", activity.StudentID,
	)
	return nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
