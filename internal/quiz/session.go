// Package quiz runs quiz sessions: question ordering, answer collection,
// countdown deadlines and the one-way transition to a scored submission.
package quiz

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/p-n-ai/pai-progress/internal/curriculum"
	"github.com/p-n-ai/pai-progress/internal/progress"
)

var (
	ErrNotFound         = errors.New("quiz session not found")
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrLocked           = errors.New("topic is locked")
	ErrNoQuestions      = errors.New("quiz has no questions yet")
	ErrNotStarted       = errors.New("quiz session not started")
	ErrIncomplete       = errors.New("every question needs an answer before submitting")
	ErrAlreadySubmitted = errors.New("quiz session already submitted")
	ErrTimeUp           = errors.New("quiz time is up")
	ErrUnknownQuestion  = errors.New("unknown question")
)

// State is a quiz session's position in its lifecycle. Transitions only
// move forward: NotStarted -> InProgress -> Submitted.
type State string

const (
	StateNotStarted State = "not_started"
	StateInProgress State = "in_progress"
	StateSubmitted  State = "submitted"
)

// Submission is the terminal record of a session.
type Submission struct {
	Result      progress.Result   `json:"result"`
	Outcome     *progress.Outcome `json:"outcome,omitempty"`
	Forced      bool              `json:"forced"`
	SubmittedAt time.Time         `json:"submitted_at"`
	// Warning is set when scoring succeeded but persisting it did not.
	Warning string `json:"warning,omitempty"`
}

// Session is one student's pass through a quiz. A retake is a new Session.
type Session struct {
	ID    string
	Key   string
	Actor progress.Actor
	Quiz  curriculum.Quiz

	mu         sync.Mutex
	state      State
	questions  []curriculum.Question
	answers    progress.Answers
	startedAt  time.Time
	deadline   time.Time
	submission *Submission
}

// NewSession creates a session in the NotStarted state.
func NewSession(id string, actor progress.Actor, quiz curriculum.Quiz) *Session {
	return &Session{
		ID:      id,
		Key:     SessionKey(actor.UserID, quiz.ID),
		Actor:   actor,
		Quiz:    quiz,
		state:   StateNotStarted,
		answers: progress.Answers{},
	}
}

// SessionKey identifies the (user, quiz) pair a deadline belongs to.
func SessionKey(userID, quizID string) string {
	return userID + ":" + quizID
}

// Start moves the session to InProgress. Questions are shuffled once, here,
// when the quiz asks for it. deadline is zero for untimed quizzes.
func (s *Session) Start(now, deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateNotStarted {
		if s.state == StateSubmitted {
			return ErrAlreadySubmitted
		}
		return nil
	}

	if s.Quiz.RandomizeQuestions {
		s.questions = Shuffle(s.Quiz.Questions, s.ID)
	} else {
		s.questions = append([]curriculum.Question(nil), s.Quiz.Questions...)
	}
	s.startedAt = now
	s.deadline = deadline
	s.state = StateInProgress
	return nil
}

// Answer records answers by question ID. Existing answers are overwritten.
func (s *Session) Answer(now time.Time, answers progress.Answers) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateNotStarted:
		return ErrNotStarted
	case StateSubmitted:
		return ErrAlreadySubmitted
	}
	if s.expiredLocked(now) {
		return ErrTimeUp
	}

	for id := range answers {
		if !s.hasQuestionLocked(id) {
			return ErrUnknownQuestion
		}
	}
	for id, v := range answers {
		s.answers[id] = v
	}
	return nil
}

// Close performs the InProgress -> Submitted transition and scores the
// answers. A manual close requires every question to be answered unless
// the deadline has passed; a forced close never does. Only the first
// successful call wins; later calls return ErrAlreadySubmitted and change
// nothing.
func (s *Session) Close(now time.Time, forced bool) (Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateNotStarted:
		return Submission{}, ErrNotStarted
	case StateSubmitted:
		return Submission{}, ErrAlreadySubmitted
	}

	if s.expiredLocked(now) {
		forced = true
	}
	if !forced && !s.completeLocked() {
		return Submission{}, ErrIncomplete
	}

	sub := Submission{
		Result:      progress.Score(s.questions, s.answers),
		Forced:      forced,
		SubmittedAt: now,
	}
	s.state = StateSubmitted
	s.submission = &sub
	return sub, nil
}

// Settle attaches the persistence outcome to a submitted session.
func (s *Session) Settle(outcome *progress.Outcome, warning string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submission == nil {
		return
	}
	s.submission.Outcome = outcome
	s.submission.Warning = warning
}

// Expired reports whether the session is in progress past its deadline.
func (s *Session) Expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateInProgress && s.expiredLocked(now)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View is a read-only snapshot of a session.
type View struct {
	ID         string                `json:"id"`
	QuizID     string                `json:"quiz_id"`
	Topic      string                `json:"topic"`
	Title      string                `json:"title"`
	State      State                 `json:"state"`
	Questions  []curriculum.Question `json:"questions"`
	Answers    progress.Answers      `json:"answers"`
	StartedAt  time.Time             `json:"started_at"`
	Deadline   *time.Time            `json:"deadline,omitempty"`
	Remaining  int                   `json:"remaining_seconds,omitempty"`
	Submission *Submission           `json:"submission,omitempty"`
}

// Snapshot returns the session as seen at now.
func (s *Session) Snapshot(now time.Time) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:        s.ID,
		QuizID:    s.Quiz.ID,
		Topic:     s.Quiz.Topic,
		Title:     s.Quiz.Title,
		State:     s.state,
		Questions: append([]curriculum.Question(nil), s.questions...),
		Answers:   make(progress.Answers, len(s.answers)),
		StartedAt: s.startedAt,
	}
	for k, a := range s.answers {
		v.Answers[k] = a
	}
	if !s.deadline.IsZero() {
		d := s.deadline
		v.Deadline = &d
		if s.state == StateInProgress && now.Before(d) {
			v.Remaining = int(d.Sub(now).Seconds())
		}
	}
	if s.submission != nil {
		sub := *s.submission
		v.Submission = &sub
	}
	return v
}

func (s *Session) expiredLocked(now time.Time) bool {
	return !s.deadline.IsZero() && !now.Before(s.deadline)
}

func (s *Session) completeLocked() bool {
	for _, q := range s.questions {
		if strings.TrimSpace(s.answers[q.ID]) == "" {
			return false
		}
	}
	return true
}

func (s *Session) hasQuestionLocked(id string) bool {
	for _, q := range s.questions {
		if q.ID == id {
			return true
		}
	}
	return false
}
