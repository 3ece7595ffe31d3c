// Package progress implements topic progression for students: unlock
// evaluation, quiz scoring, mastery aggregation and progress persistence.
package progress

import "time"

// Status is the coarse state of a student's work on a topic.
type Status string

const (
	StatusNotStarted Status = "Not Started"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
)

// Role is the portal role of an authenticated user.
type Role string

const (
	RoleStudent   Role = "student"
	RoleTeacher   Role = "teacher"
	RolePrincipal Role = "principal"
	RoleAdmin     Role = "admin"
)

// Actor is the authenticated user on whose behalf an operation runs.
// It is passed explicitly instead of being read from ambient state.
type Actor struct {
	UserID    string
	Name      string
	Role      Role
	TeacherID string // the student's assigned teacher, if any
}

// TopicProgress is the per-(user, topic) summary. It is a cache derived from
// the attempt log plus the materials-viewed flag.
type TopicProgress struct {
	Topic            string     `json:"topic"`
	Mastery          int        `json:"mastery"`
	Status           Status     `json:"status"`
	LastActivity     *time.Time `json:"last_activity,omitempty"`
	QuizzesAttempted int        `json:"quizzes_attempted"`
	LastQuizScore    int        `json:"last_quiz_score"`
	LastQuizCorrect  int        `json:"last_quiz_correct"`
	LastQuizTotal    int        `json:"last_quiz_total"`
	MaterialsViewed  bool       `json:"materials_viewed"`
}

// Attempt is one quiz submission. Attempts are append-only.
type Attempt struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	TeacherID   string    `json:"teacher_id,omitempty"` // owner of the quiz
	QuizID      string    `json:"quiz_id"`
	Topic       string    `json:"topic"`
	Score       int       `json:"score"`
	Total       int       `json:"total"`
	Percentage  int       `json:"percentage"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Achievement is a one-time badge granted to a student.
type Achievement struct {
	ID         string    `json:"id"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// FirstQuizAchievement is granted on a student's first ever quiz submission.
const FirstQuizAchievement = "first-quiz"

// Thresholds are the mastery percentages that drive progression. Zero is a
// valid value for each: it means the gate is always met.
type Thresholds struct {
	Unlock      int // predecessor mastery needed to open a topic
	Completion  int // mastery at which a topic is Completed
	Achievement int // mastery that grants a topic's bound achievement
}

// DefaultThresholds returns 75 to unlock and complete, 85 for achievements.
func DefaultThresholds() Thresholds {
	return Thresholds{Unlock: 75, Completion: 75, Achievement: 85}
}

// Or returns *t, or the defaults when t is nil.
func (t *Thresholds) Or() Thresholds {
	if t == nil {
		return DefaultThresholds()
	}
	return *t
}
