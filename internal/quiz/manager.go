package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-progress/internal/curriculum"
	"github.com/p-n-ai/pai-progress/internal/progress"
)

const (
	// untimedCheckpointTTL bounds how long an untimed session stays resumable.
	untimedCheckpointTTL = 24 * time.Hour
	// checkpointGrace keeps a timed checkpoint around slightly past its deadline.
	checkpointGrace = time.Minute
	// submittedRetention is how long a finished session stays readable.
	submittedRetention = time.Hour
	persistWarning     = "your score was calculated but could not be saved; please retry later or tell your teacher"
)

// Source is where quizzes and the topic catalog come from.
type Source interface {
	Catalog() *curriculum.Catalog
	GetQuiz(id string) (curriculum.Quiz, bool)
}

// ManagerConfig holds dependencies for the session manager.
type ManagerConfig struct {
	Source      Source
	Writer      *progress.Writer // also supplies the unlock threshold
	Checkpoints CheckpointStore
	Now         func() time.Time
}

// Manager owns the live quiz sessions of this process.
type Manager struct {
	source      Source
	writer      *progress.Writer
	checkpoints CheckpointStore
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session // by session ID
	active   map[string]string   // SessionKey -> in-progress session ID
}

// NewManager creates a new session manager.
func NewManager(cfg ManagerConfig) *Manager {
	checkpoints := cfg.Checkpoints
	if checkpoints == nil {
		checkpoints = NewMemoryCheckpoints()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		source:      cfg.Source,
		writer:      cfg.Writer,
		checkpoints: checkpoints,
		now:         now,
		sessions:    make(map[string]*Session),
		active:      make(map[string]string),
	}
}

// Start opens a session for quizID, or returns the actor's session that is
// already in progress. A checkpoint left by an earlier process is resumed
// with its original ID and deadline.
func (m *Manager) Start(ctx context.Context, actor progress.Actor, quizID string) (*Session, error) {
	quiz, ok := m.source.GetQuiz(quizID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQuizNotFound, quizID)
	}

	pm, err := m.writer.Progress(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("loading progress: %w", err)
	}
	if !progress.IsUnlocked(m.source.Catalog(), quiz.Topic, pm, m.writer.Thresholds().Unlock) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, quiz.Topic)
	}
	if len(quiz.Questions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoQuestions, quiz.ID)
	}

	key := SessionKey(actor.UserID, quiz.ID)
	now := m.now()

	m.mu.Lock()
	if id, ok := m.active[key]; ok {
		if s := m.sessions[id]; s != nil && s.State() == StateInProgress {
			m.mu.Unlock()
			return s, nil
		}
		delete(m.active, key)
	}
	m.mu.Unlock()

	cp, found, err := m.checkpoints.Load(ctx, key)
	if err != nil {
		slog.Warn("checkpoint unavailable, starting fresh", "key", key, "error", err)
		found = false
	}
	if found && !cp.Deadline.IsZero() && !now.Before(cp.Deadline) {
		// Expired while no process held it; the answers are gone.
		found = false
	}
	if !found {
		cp = Checkpoint{SessionID: uuid.NewString(), StartedAt: now}
		if limit := quiz.TimeLimit(); limit > 0 {
			cp.Deadline = now.Add(limit)
		}
	}

	s := NewSession(cp.SessionID, actor, quiz)
	if err := s.Start(cp.StartedAt, cp.Deadline); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if id, ok := m.active[key]; ok {
		// Lost a race with a concurrent Start for the same quiz.
		existing := m.sessions[id]
		m.mu.Unlock()
		return existing, nil
	}
	m.sessions[s.ID] = s
	m.active[key] = s.ID
	m.mu.Unlock()

	if !found {
		ttl := untimedCheckpointTTL
		if !cp.Deadline.IsZero() {
			ttl = cp.Deadline.Sub(now) + checkpointGrace
		}
		if err := m.checkpoints.Save(ctx, key, cp, ttl); err != nil {
			slog.Warn("saving checkpoint failed", "key", key, "error", err)
		}
	}

	slog.Info("quiz session started",
		"session_id", s.ID,
		"user_id", actor.UserID,
		"quiz_id", quiz.ID,
		"resumed", found,
	)
	return s, nil
}

// Get returns the actor's session by ID.
func (m *Manager) Get(actor progress.Actor, id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok || s.Actor.UserID != actor.UserID {
		return nil, ErrNotFound
	}
	return s, nil
}

// Answer records answers on the actor's session.
func (m *Manager) Answer(actor progress.Actor, id string, answers progress.Answers) error {
	s, err := m.Get(actor, id)
	if err != nil {
		return err
	}
	return s.Answer(m.now(), answers)
}

// Submit scores the actor's session and persists the outcome. A failure to
// persist does not fail the submission; it is reported in Warning.
func (m *Manager) Submit(ctx context.Context, actor progress.Actor, id string) (Submission, error) {
	s, err := m.Get(actor, id)
	if err != nil {
		return Submission{}, err
	}
	return m.finalize(ctx, s, false)
}

// Expire force-submits a session whose time ran out, with whatever answers
// it holds.
func (m *Manager) Expire(ctx context.Context, s *Session) (Submission, error) {
	return m.finalize(ctx, s, true)
}

// ExpireDue force-submits every session past its deadline. It also drops
// finished sessions older than the retention window and untimed sessions
// left in progress longer than their checkpoint lives. It returns the
// number of sessions expired.
func (m *Manager) ExpireDue(ctx context.Context) int {
	now := m.now()

	var due, abandoned []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		v := s.Snapshot(now)
		switch {
		case v.State == StateInProgress && v.Deadline != nil && !now.Before(*v.Deadline):
			due = append(due, s)
		case v.State == StateInProgress && v.Deadline == nil && now.Sub(v.StartedAt) > untimedCheckpointTTL:
			delete(m.sessions, id)
			if m.active[s.Key] == id {
				delete(m.active, s.Key)
			}
			abandoned = append(abandoned, s)
		case v.Submission != nil && now.Sub(v.Submission.SubmittedAt) > submittedRetention:
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range abandoned {
		if err := m.checkpoints.Delete(ctx, s.Key); err != nil {
			slog.Warn("deleting checkpoint failed", "key", s.Key, "error", err)
		}
		slog.Info("released abandoned quiz session", "session_id", s.ID, "user_id", s.Actor.UserID)
	}

	expired := 0
	for _, s := range due {
		if _, err := m.Expire(ctx, s); err != nil {
			// Lost the race to a manual submit.
			continue
		}
		expired++
	}
	return expired
}

// Sessions returns the number of sessions held, finished ones included.
func (m *Manager) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time {
	return m.now()
}

// Active returns the number of in-progress sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *Manager) finalize(ctx context.Context, s *Session, forced bool) (Submission, error) {
	sub, err := s.Close(m.now(), forced)
	if err != nil {
		return Submission{}, err
	}

	m.mu.Lock()
	if m.active[s.Key] == s.ID {
		delete(m.active, s.Key)
	}
	m.mu.Unlock()

	if err := m.checkpoints.Delete(ctx, s.Key); err != nil {
		slog.Warn("deleting checkpoint failed", "key", s.Key, "error", err)
	}

	outcome, err := m.writer.Record(ctx, s.Actor, progress.Attempt{
		TeacherID:   firstNonEmpty(s.Quiz.TeacherID, s.Actor.TeacherID),
		QuizID:      s.Quiz.ID,
		Topic:       s.Quiz.Topic,
		Score:       sub.Result.Correct,
		Total:       sub.Result.Total,
		Percentage:  sub.Result.Percentage,
		SubmittedAt: sub.SubmittedAt,
	})
	if err != nil {
		slog.Error("persisting quiz submission failed",
			"session_id", s.ID,
			"user_id", s.Actor.UserID,
			"quiz_id", s.Quiz.ID,
			"error", err,
		)
		sub.Warning = persistWarning
	}
	sub.Outcome = &outcome
	s.Settle(sub.Outcome, sub.Warning)

	slog.Info("quiz session submitted",
		"session_id", s.ID,
		"user_id", s.Actor.UserID,
		"quiz_id", s.Quiz.ID,
		"correct", sub.Result.Correct,
		"total", sub.Result.Total,
		"forced", sub.Forced,
	)
	return sub, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
