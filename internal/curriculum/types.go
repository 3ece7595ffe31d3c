package curriculum

import (
	"fmt"
	"sort"
	"time"
)

// Topic is a unit of curriculum content. Order defines the linear
// prerequisite chain: topic N requires topic N-1.
type Topic struct {
	Slug        string `yaml:"slug" json:"slug"`
	Title       string `yaml:"title" json:"title"`
	Order       int    `yaml:"order" json:"order"`
	Achievement string `yaml:"achievement,omitempty" json:"achievement,omitempty"`
}

// QuestionType selects the comparison rule used when scoring.
type QuestionType string

const (
	MultipleChoice QuestionType = "multipleChoice"
	Identification QuestionType = "identification"
	Enumeration    QuestionType = "enumeration"
)

// Question is a single quiz item. Options and CorrectAnswerIndex apply to
// multiple choice; AnswerKey holds the single identification answer or the
// enumeration items.
type Question struct {
	ID                 string       `yaml:"id" json:"id"`
	Text               string       `yaml:"text" json:"text"`
	Type               QuestionType `yaml:"type" json:"type"`
	Options            []string     `yaml:"options,omitempty" json:"options,omitempty"`
	CorrectAnswerIndex int          `yaml:"correct_answer_index,omitempty" json:"-"`
	AnswerKey          []string     `yaml:"answer_key,omitempty" json:"-"`
}

// Quiz is a teacher-authored question set bound to a topic.
type Quiz struct {
	ID                 string     `yaml:"id" json:"id"`
	Topic              string     `yaml:"topic" json:"topic"`
	Title              string     `yaml:"title" json:"title"`
	TeacherID          string     `yaml:"teacher_id" json:"teacher_id"`
	RandomizeQuestions bool       `yaml:"randomize_questions" json:"randomize_questions"`
	TimeLimitMinutes   int        `yaml:"time_limit_minutes" json:"time_limit_minutes,omitempty"`
	Questions          []Question `yaml:"questions" json:"questions"`
}

// TimeLimit returns the quiz duration, or zero when the quiz is untimed.
func (q Quiz) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitMinutes) * time.Minute
}

// Validate checks answer keys against question types.
func (q Quiz) Validate() error {
	seen := make(map[string]bool, len(q.Questions))
	for _, question := range q.Questions {
		if seen[question.ID] {
			return fmt.Errorf("quiz %s: duplicate question id %q", q.ID, question.ID)
		}
		seen[question.ID] = true

		switch question.Type {
		case MultipleChoice:
			if question.CorrectAnswerIndex < 0 || question.CorrectAnswerIndex >= len(question.Options) {
				return fmt.Errorf("quiz %s: question %s: correct_answer_index %d out of range",
					q.ID, question.ID, question.CorrectAnswerIndex)
			}
		case Identification:
			if len(question.AnswerKey) != 1 {
				return fmt.Errorf("quiz %s: question %s: identification needs exactly one answer key entry", q.ID, question.ID)
			}
		case Enumeration:
			if len(question.AnswerKey) == 0 {
				return fmt.Errorf("quiz %s: question %s: enumeration needs an answer key", q.ID, question.ID)
			}
		default:
			return fmt.Errorf("quiz %s: question %s: unknown type %q", q.ID, question.ID, question.Type)
		}
	}
	return nil
}

// Catalog is the ordered, read-only list of topics.
type Catalog struct {
	topics  []Topic
	bySlug  map[string]Topic
	byOrder map[int]Topic
}

// NewCatalog builds a catalog sorted by Order. Slugs and orders must be unique.
func NewCatalog(topics []Topic) (*Catalog, error) {
	c := &Catalog{
		topics:  make([]Topic, 0, len(topics)),
		bySlug:  make(map[string]Topic, len(topics)),
		byOrder: make(map[int]Topic, len(topics)),
	}
	for _, t := range topics {
		if t.Slug == "" {
			return nil, fmt.Errorf("topic %q has no slug", t.Title)
		}
		if t.Order < 1 {
			return nil, fmt.Errorf("topic %s: order must be >= 1, got %d", t.Slug, t.Order)
		}
		if _, dup := c.bySlug[t.Slug]; dup {
			return nil, fmt.Errorf("duplicate topic slug %q", t.Slug)
		}
		if other, dup := c.byOrder[t.Order]; dup {
			return nil, fmt.Errorf("topics %s and %s share order %d", other.Slug, t.Slug, t.Order)
		}
		c.bySlug[t.Slug] = t
		c.byOrder[t.Order] = t
		c.topics = append(c.topics, t)
	}
	sort.Slice(c.topics, func(i, j int) bool { return c.topics[i].Order < c.topics[j].Order })
	return c, nil
}

// Topics returns the topics in prerequisite order.
func (c *Catalog) Topics() []Topic {
	return append([]Topic(nil), c.topics...)
}

// Get returns a topic by slug.
func (c *Catalog) Get(slug string) (Topic, bool) {
	t, ok := c.bySlug[slug]
	return t, ok
}

// Predecessor returns the topic whose order is one less than slug's.
func (c *Catalog) Predecessor(slug string) (Topic, bool) {
	t, ok := c.bySlug[slug]
	if !ok {
		return Topic{}, false
	}
	prev, ok := c.byOrder[t.Order-1]
	return prev, ok
}

// Gaps returns the orders missing between 1 and the highest order.
func (c *Catalog) Gaps() []int {
	var gaps []int
	if len(c.topics) == 0 {
		return gaps
	}
	last := c.topics[len(c.topics)-1].Order
	for o := 1; o < last; o++ {
		if _, ok := c.byOrder[o]; !ok {
			gaps = append(gaps, o)
		}
	}
	return gaps
}
