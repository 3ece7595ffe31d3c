package progress

import "github.com/p-n-ai/pai-progress/internal/curriculum"

// IsUnlocked reports whether slug is accessible given a user's progress map.
// The first topic is always unlocked. Any other topic needs its predecessor
// to be Completed with mastery at or above threshold. Unknown topics,
// missing predecessors and missing progress entries are locked.
func IsUnlocked(catalog *curriculum.Catalog, slug string, progress map[string]TopicProgress, threshold int) bool {
	topic, ok := catalog.Get(slug)
	if !ok {
		return false
	}
	if topic.Order == 1 {
		return true
	}

	prev, ok := catalog.Predecessor(slug)
	if !ok {
		return false
	}
	p, ok := progress[prev.Slug]
	if !ok {
		return false
	}
	return p.Status == StatusCompleted && p.Mastery >= threshold
}

// TopicState is a catalog entry annotated for one user.
type TopicState struct {
	Topic    curriculum.Topic `json:"topic"`
	Progress TopicProgress    `json:"progress"`
	Unlocked bool             `json:"unlocked"`
}

// Overview annotates every catalog topic with the user's progress and lock
// state, in prerequisite order. Topics without progress report Not Started.
func Overview(catalog *curriculum.Catalog, progress map[string]TopicProgress, threshold int) []TopicState {
	topics := catalog.Topics()
	out := make([]TopicState, 0, len(topics))
	for _, t := range topics {
		p, ok := progress[t.Slug]
		if !ok {
			p = TopicProgress{Topic: t.Slug, Status: StatusNotStarted}
		}
		out = append(out, TopicState{
			Topic:    t,
			Progress: p,
			Unlocked: IsUnlocked(catalog, t.Slug, progress, threshold),
		})
	}
	return out
}
