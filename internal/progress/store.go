package progress

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store persists attempts, topic progress and achievements. Records are
// partitioned by user; no two students ever write the same record.
type Store interface {
	AppendAttempt(ctx context.Context, attempt Attempt) error
	ListAttempts(ctx context.Context, userID, topic string) ([]Attempt, error)
	CountAttempts(ctx context.Context, userID string) (int, error)
	TeacherAttempts(ctx context.Context, teacherID string) ([]Attempt, error)

	GetProgress(ctx context.Context, userID string) (map[string]TopicProgress, error)
	SaveProgress(ctx context.Context, userID string, progress TopicProgress) error

	Achievements(ctx context.Context, userID string) (map[string]Achievement, error)
	// GrantAchievement is idempotent; it reports false when the achievement
	// was already unlocked.
	GrantAchievement(ctx context.Context, userID string, achievement Achievement) (bool, error)
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	attempts     []Attempt
	progress     map[string]map[string]TopicProgress
	achievements map[string]map[string]Achievement
	mu           sync.RWMutex
}

// NewMemoryStore creates a new in-memory progress store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		progress:     make(map[string]map[string]TopicProgress),
		achievements: make(map[string]map[string]Achievement),
	}
}

func (s *MemoryStore) AppendAttempt(_ context.Context, attempt Attempt) error {
	if attempt.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if attempt.ID == "" {
		return fmt.Errorf("attempt id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, attempt)
	return nil
}

func (s *MemoryStore) ListAttempts(_ context.Context, userID, topic string) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Attempt
	for _, a := range s.attempts {
		if a.UserID == userID && a.Topic == topic {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) CountAttempts(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, a := range s.attempts {
		if a.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) TeacherAttempts(_ context.Context, teacherID string) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Attempt
	for _, a := range s.attempts {
		if a.TeacherID == teacherID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (s *MemoryStore) GetProgress(_ context.Context, userID string) (map[string]TopicProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]TopicProgress, len(s.progress[userID]))
	for k, v := range s.progress[userID] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) SaveProgress(_ context.Context, userID string, progress TopicProgress) error {
	if userID == "" || progress.Topic == "" {
		return fmt.Errorf("user_id and topic are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress[userID] == nil {
		s.progress[userID] = make(map[string]TopicProgress)
	}
	s.progress[userID][progress.Topic] = progress
	return nil
}

func (s *MemoryStore) Achievements(_ context.Context, userID string) (map[string]Achievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Achievement, len(s.achievements[userID]))
	for k, v := range s.achievements[userID] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) GrantAchievement(_ context.Context, userID string, achievement Achievement) (bool, error) {
	if achievement.ID == "" {
		return false, fmt.Errorf("achievement id is required")
	}
	if achievement.UnlockedAt.IsZero() {
		achievement.UnlockedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.achievements[userID] == nil {
		s.achievements[userID] = make(map[string]Achievement)
	}
	if _, ok := s.achievements[userID][achievement.ID]; ok {
		return false, nil
	}
	s.achievements[userID][achievement.ID] = achievement
	return true, nil
}
