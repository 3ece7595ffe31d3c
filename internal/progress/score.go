package progress

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/p-n-ai/pai-progress/internal/curriculum"
)

// Answers maps question IDs to the student's raw answer. Multiple choice
// answers hold the selected option index in decimal; enumeration answers
// hold one item per line.
type Answers map[string]string

// Result is the outcome of scoring a question set.
type Result struct {
	Correct    int `json:"correct"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// Score counts correct answers. It is pure: identical inputs always produce
// identical results.
func Score(questions []curriculum.Question, answers Answers) Result {
	correct := 0
	for _, q := range questions {
		if IsCorrect(q, answers[q.ID]) {
			correct++
		}
	}
	return Result{
		Correct:    correct,
		Total:      len(questions),
		Percentage: Percentage(correct, len(questions)),
	}
}

// IsCorrect applies the comparison rule for the question's type.
func IsCorrect(q curriculum.Question, answer string) bool {
	switch q.Type {
	case curriculum.MultipleChoice:
		idx, err := strconv.Atoi(strings.TrimSpace(answer))
		return err == nil && idx == q.CorrectAnswerIndex
	case curriculum.Identification:
		if len(q.AnswerKey) == 0 {
			return false
		}
		given := normalize(answer)
		return given != "" && given == normalize(q.AnswerKey[0])
	case curriculum.Enumeration:
		want := itemSet(q.AnswerKey)
		got := itemSet(strings.Split(answer, "\n"))
		if len(want) == 0 || len(got) != len(want) {
			return false
		}
		for item := range got {
			if !want[item] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Percentage returns round(100*correct/total), or 0 when total is 0.
func Percentage(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(correct) / float64(total)))
}

// normalize trims, composes and case-folds s so that visually identical
// answers compare equal.
func normalize(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// itemSet normalizes items into a set. Blank items are dropped and
// duplicates collapse.
func itemSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		if n := normalize(item); n != "" {
			set[n] = true
		}
	}
	return set
}
