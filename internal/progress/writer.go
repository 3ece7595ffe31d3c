package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-progress/internal/curriculum"
	"github.com/p-n-ai/pai-progress/internal/notify"
)

// ErrUnknownTopic is returned for slugs that are not in the catalog.
var ErrUnknownTopic = errors.New("unknown topic")

// WriterConfig holds dependencies for the progress writer.
type WriterConfig struct {
	Catalog    *curriculum.Catalog
	Store      Store
	Activity   notify.Log
	Thresholds *Thresholds // nil means DefaultThresholds
	Now        func() time.Time
}

// Writer persists quiz outcomes: the attempt, the recomputed topic progress,
// achievements and the teacher notification. The steps are independent
// writes without a transaction around them.
type Writer struct {
	catalog    *curriculum.Catalog
	store      Store
	activity   notify.Log
	thresholds Thresholds
	now        func() time.Time
}

// NewWriter creates a new progress writer.
func NewWriter(cfg WriterConfig) *Writer {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	activity := cfg.Activity
	if activity == nil {
		activity = notify.NopLog{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Writer{
		catalog:    cfg.Catalog,
		store:      store,
		activity:   activity,
		thresholds: cfg.Thresholds.Or(),
		now:        now,
	}
}

// Outcome describes what Record persisted.
type Outcome struct {
	Attempt  Attempt       `json:"attempt"`
	Progress TopicProgress `json:"progress"`
	Granted  []Achievement `json:"granted,omitempty"`
}

// Record appends attempt and refreshes the actor's progress for its topic.
// If the attempt itself cannot be stored nothing else is written, so mastery
// stays recomputable from the log. Failures in later steps are joined and
// returned alongside the partially filled Outcome.
func (w *Writer) Record(ctx context.Context, actor Actor, attempt Attempt) (Outcome, error) {
	topic, ok := w.catalog.Get(attempt.Topic)
	if !ok {
		return Outcome{Attempt: attempt}, fmt.Errorf("%w: %s", ErrUnknownTopic, attempt.Topic)
	}

	now := w.now()
	attempt.UserID = actor.UserID
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.SubmittedAt.IsZero() {
		attempt.SubmittedAt = now
	}
	out := Outcome{Attempt: attempt}

	if err := w.store.AppendAttempt(ctx, attempt); err != nil {
		return out, fmt.Errorf("recording attempt: %w", err)
	}

	var errs []error

	progress, err := w.refreshProgress(ctx, actor.UserID, attempt, now)
	if err != nil {
		errs = append(errs, err)
	} else {
		out.Progress = progress
	}

	granted, err := w.grantAchievements(ctx, actor.UserID, topic, out.Progress, now)
	if err != nil {
		errs = append(errs, err)
	}
	out.Granted = granted

	if err := w.notifySubmission(ctx, actor, attempt, out); err != nil {
		errs = append(errs, fmt.Errorf("notifying teacher: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		slog.Warn("quiz outcome partially persisted",
			"user_id", actor.UserID,
			"attempt_id", attempt.ID,
			"error", err,
		)
		return out, err
	}

	slog.Info("quiz outcome recorded",
		"user_id", actor.UserID,
		"topic", attempt.Topic,
		"score", attempt.Score,
		"total", attempt.Total,
		"mastery", out.Progress.Mastery,
		"status", out.Progress.Status,
	)
	return out, nil
}

// refreshProgress recomputes mastery from the full attempt history.
func (w *Writer) refreshProgress(ctx context.Context, userID string, attempt Attempt, now time.Time) (TopicProgress, error) {
	attempts, err := w.store.ListAttempts(ctx, userID, attempt.Topic)
	if err != nil {
		return TopicProgress{}, fmt.Errorf("loading attempt history: %w", err)
	}
	existing, err := w.store.GetProgress(ctx, userID)
	if err != nil {
		return TopicProgress{}, fmt.Errorf("loading progress: %w", err)
	}

	mastery := Mastery(attempts)
	p := existing[attempt.Topic]
	p.Topic = attempt.Topic
	p.Mastery = mastery
	p.Status = CompletionStatus(mastery, w.thresholds.Completion)
	p.LastActivity = &now
	p.QuizzesAttempted = len(attempts)
	p.LastQuizScore = attempt.Percentage
	p.LastQuizCorrect = attempt.Score
	p.LastQuizTotal = attempt.Total

	if err := w.store.SaveProgress(ctx, userID, p); err != nil {
		return TopicProgress{}, fmt.Errorf("saving progress: %w", err)
	}
	return p, nil
}

// grantAchievements unlocks first-quiz and the topic's bound achievement.
// Already unlocked achievements are skipped.
func (w *Writer) grantAchievements(ctx context.Context, userID string, topic curriculum.Topic, p TopicProgress, now time.Time) ([]Achievement, error) {
	have, err := w.store.Achievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading achievements: %w", err)
	}

	// The attempt is already in the log, so first-quiz is due whenever it
	// is not yet held. A grant that failed earlier is retried here.
	var candidates []string
	if _, ok := have[FirstQuizAchievement]; !ok {
		candidates = append(candidates, FirstQuizAchievement)
	}
	if topic.Achievement != "" && p.Mastery >= w.thresholds.Achievement {
		if _, ok := have[topic.Achievement]; !ok {
			candidates = append(candidates, topic.Achievement)
		}
	}

	var granted []Achievement
	var errs []error
	for _, id := range candidates {
		a := Achievement{ID: id, UnlockedAt: now}
		ok, err := w.store.GrantAchievement(ctx, userID, a)
		if err != nil {
			errs = append(errs, fmt.Errorf("granting %s: %w", id, err))
			continue
		}
		if ok {
			granted = append(granted, a)
		}
	}
	return granted, errors.Join(errs...)
}

func (w *Writer) notifySubmission(ctx context.Context, actor Actor, attempt Attempt, out Outcome) error {
	teacherID := attempt.TeacherID
	if teacherID == "" {
		teacherID = actor.TeacherID
	}
	if teacherID == "" {
		return nil
	}

	name := actor.Name
	if name == "" {
		name = actor.UserID
	}

	var errs []error
	err := w.activity.Append(ctx, notify.Activity{
		TeacherID:   teacherID,
		StudentID:   actor.UserID,
		StudentName: actor.Name,
		Kind:        notify.KindQuizSubmitted,
		Topic:       attempt.Topic,
		QuizID:      attempt.QuizID,
		Message:     fmt.Sprintf("%s scored %d/%d (%d%%) on %s", name, attempt.Score, attempt.Total, attempt.Percentage, attempt.QuizID),
		Data: map[string]any{
			"attempt_id": attempt.ID,
			"percentage": attempt.Percentage,
			"mastery":    out.Progress.Mastery,
			"status":     string(out.Progress.Status),
		},
		CreatedAt: attempt.SubmittedAt,
	})
	if err != nil {
		errs = append(errs, err)
	}

	for _, a := range out.Granted {
		if err := w.activity.Append(ctx, notify.Activity{
			TeacherID:   teacherID,
			StudentID:   actor.UserID,
			StudentName: actor.Name,
			Kind:        notify.KindAchievementUnlocked,
			Topic:       attempt.Topic,
			Message:     fmt.Sprintf("%s unlocked %s", name, a.ID),
			Data:        map[string]any{"achievement": a.ID},
			CreatedAt:   a.UnlockedAt,
		}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MarkMaterialsViewed flags a topic's lesson material as seen. A Not Started
// topic moves to In Progress.
func (w *Writer) MarkMaterialsViewed(ctx context.Context, actor Actor, slug string) (TopicProgress, error) {
	if _, ok := w.catalog.Get(slug); !ok {
		return TopicProgress{}, fmt.Errorf("%w: %s", ErrUnknownTopic, slug)
	}

	existing, err := w.store.GetProgress(ctx, actor.UserID)
	if err != nil {
		return TopicProgress{}, fmt.Errorf("loading progress: %w", err)
	}

	now := w.now()
	p, ok := existing[slug]
	if !ok {
		p = TopicProgress{Topic: slug, Status: StatusNotStarted}
	}
	p.MaterialsViewed = true
	p.LastActivity = &now
	if p.Status == StatusNotStarted || p.Status == "" {
		p.Status = StatusInProgress
	}

	if err := w.store.SaveProgress(ctx, actor.UserID, p); err != nil {
		return TopicProgress{}, fmt.Errorf("saving progress: %w", err)
	}
	return p, nil
}

// Thresholds returns the thresholds the writer applies.
func (w *Writer) Thresholds() Thresholds {
	return w.thresholds
}

// Progress returns the actor's progress map.
func (w *Writer) Progress(ctx context.Context, actor Actor) (map[string]TopicProgress, error) {
	return w.store.GetProgress(ctx, actor.UserID)
}

// Achievements returns the actor's unlocked achievements.
func (w *Writer) Achievements(ctx context.Context, actor Actor) (map[string]Achievement, error) {
	return w.store.Achievements(ctx, actor.UserID)
}
