package progress

// Mastery aggregates a topic's attempt history into a 0-100 percentage:
// round(100 * sum(score) / sum(total)). It is recomputed from the full
// history after every submission so it never drifts from the attempt log.
func Mastery(attempts []Attempt) int {
	score, total := 0, 0
	for _, a := range attempts {
		score += a.Score
		total += a.Total
	}
	return Percentage(score, total)
}

// CompletionStatus maps a mastery value to the status stored after a quiz.
func CompletionStatus(mastery, threshold int) Status {
	if mastery >= threshold {
		return StatusCompleted
	}
	return StatusInProgress
}
