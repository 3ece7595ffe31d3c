package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed progress store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) AppendAttempt(ctx context.Context, attempt Attempt) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if attempt.UserID == "" {
		return fmt.Errorf("user_id is required")
	}

	submittedAt := attempt.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO quiz_attempts (id, user_id, teacher_id, quiz_id, topic, score, total, percentage, submitted_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)`,
		attempt.ID,
		attempt.UserID,
		nullIfEmpty(attempt.TeacherID),
		attempt.QuizID,
		attempt.Topic,
		attempt.Score,
		attempt.Total,
		attempt.Percentage,
		submittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAttempts(ctx context.Context, userID, topic string) ([]Attempt, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return s.queryAttempts(ctx,
		`SELECT id::text, user_id, COALESCE(teacher_id, ''), quiz_id, topic, score, total, percentage, submitted_at
		 FROM quiz_attempts
		 WHERE user_id = $1 AND topic = $2
		 ORDER BY submitted_at ASC`,
		userID, topic,
	)
}

func (s *PostgresStore) CountAttempts(ctx context.Context, userID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM quiz_attempts WHERE user_id = $1`,
		userID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) TeacherAttempts(ctx context.Context, teacherID string) ([]Attempt, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return s.queryAttempts(ctx,
		`SELECT id::text, user_id, COALESCE(teacher_id, ''), quiz_id, topic, score, total, percentage, submitted_at
		 FROM quiz_attempts
		 WHERE teacher_id = $1
		 ORDER BY submitted_at ASC`,
		teacherID,
	)
}

func (s *PostgresStore) GetProgress(ctx context.Context, userID string) (map[string]TopicProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT topic, mastery, status, last_activity, quizzes_attempted,
		        last_quiz_score, last_quiz_correct, last_quiz_total, materials_viewed
		 FROM topic_progress
		 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	defer rows.Close()

	out := make(map[string]TopicProgress)
	for rows.Next() {
		var p TopicProgress
		var status string
		if err := rows.Scan(
			&p.Topic,
			&p.Mastery,
			&status,
			&p.LastActivity,
			&p.QuizzesAttempted,
			&p.LastQuizScore,
			&p.LastQuizCorrect,
			&p.LastQuizTotal,
			&p.MaterialsViewed,
		); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		p.Status = Status(status)
		out[p.Topic] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SaveProgress(ctx context.Context, userID string, p TopicProgress) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if userID == "" || p.Topic == "" {
		return fmt.Errorf("user_id and topic are required")
	}
	status := p.Status
	if status == "" {
		status = StatusNotStarted
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO topic_progress
		   (user_id, topic, mastery, status, last_activity, quizzes_attempted,
		    last_quiz_score, last_quiz_correct, last_quiz_total, materials_viewed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (user_id, topic) DO UPDATE SET
		   mastery = EXCLUDED.mastery,
		   status = EXCLUDED.status,
		   last_activity = EXCLUDED.last_activity,
		   quizzes_attempted = EXCLUDED.quizzes_attempted,
		   last_quiz_score = EXCLUDED.last_quiz_score,
		   last_quiz_correct = EXCLUDED.last_quiz_correct,
		   last_quiz_total = EXCLUDED.last_quiz_total,
		   materials_viewed = topic_progress.materials_viewed OR EXCLUDED.materials_viewed`,
		userID,
		p.Topic,
		p.Mastery,
		string(status),
		p.LastActivity,
		p.QuizzesAttempted,
		p.LastQuizScore,
		p.LastQuizCorrect,
		p.LastQuizTotal,
		p.MaterialsViewed,
	)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) Achievements(ctx context.Context, userID string) (map[string]Achievement, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT achievement_id, unlocked_at FROM achievements WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query achievements: %w", err)
	}

	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Achievement, error) {
		var a Achievement
		err := row.Scan(&a.ID, &a.UnlockedAt)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan achievements: %w", err)
	}

	out := make(map[string]Achievement, len(list))
	for _, a := range list {
		out[a.ID] = a
	}
	return out, nil
}

func (s *PostgresStore) GrantAchievement(ctx context.Context, userID string, achievement Achievement) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if achievement.ID == "" {
		return false, fmt.Errorf("achievement id is required")
	}
	unlockedAt := achievement.UnlockedAt
	if unlockedAt.IsZero() {
		unlockedAt = time.Now()
	}

	cmd, err := s.pool.Exec(ctx,
		`INSERT INTO achievements (user_id, achievement_id, unlocked_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, achievement_id) DO NOTHING`,
		userID,
		achievement.ID,
		unlockedAt,
	)
	if err != nil {
		return false, fmt.Errorf("grant achievement: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (s *PostgresStore) queryAttempts(ctx context.Context, query string, args ...any) ([]Attempt, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}

	attempts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Attempt, error) {
		var a Attempt
		err := row.Scan(
			&a.ID,
			&a.UserID,
			&a.TeacherID,
			&a.QuizID,
			&a.Topic,
			&a.Score,
			&a.Total,
			&a.Percentage,
			&a.SubmittedAt,
		)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan attempts: %w", err)
	}
	return attempts, nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
