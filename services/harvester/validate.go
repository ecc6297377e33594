package harvester

import (
	"fmt"
	"log/slog"
)

// Report aggregates what happened to a batch of candidates. The run is
// reported successful regardless of counts; enforcing a floor is the
// caller's call, not the pipeline's.
type Report struct {
	Total       int
	Rejected    int
	Duplicates  int
	PerYear     map[int]int
	PerCategory map[string]int
}

func checkQuestion(q Question) error {
	if q.ID == "" {
		return fmt.Errorf("missing id")
	}
	if q.Category == "" {
		return fmt.Errorf("missing category")
	}
	if q.Year <= 0 {
		return fmt.Errorf("missing year")
	}
	if q.Text == "" {
		return fmt.Errorf("missing text")
	}
	if q.Explanation == "" {
		return fmt.Errorf("missing explanation")
	}
	if len(q.Choices) < 2 {
		return fmt.Errorf("need at least 2 choices, got %d", len(q.Choices))
	}
	for i, c := range q.Choices {
		if c == "" {
			return fmt.Errorf("choice %d is blank", i)
		}
	}
	if q.AnswerIndex < 0 || q.AnswerIndex >= len(q.Choices) {
		return fmt.Errorf("answerIndex %d out of range [0, %d)", q.AnswerIndex, len(q.Choices))
	}
	return nil
}

// Validate enforces the record schema and deduplicates by id, first
// occurrence wins. Randomized sampling can re-derive the same id several
// times within one run, so in-batch duplicates are expected, not a bug.
// One bad record never fails the batch.
func Validate(candidates []Question) ([]Question, Report) {
	report := Report{
		PerYear:     map[int]int{},
		PerCategory: map[string]int{},
	}

	var accepted []Question
	seen := make(map[string]struct{}, len(candidates))
	for _, q := range candidates {
		err := checkQuestion(q)
		if err != nil {
			report.Rejected++
			slog.Warn("dropping invalid question", "id", q.ID, "err", err)
			continue
		}
		if _, dup := seen[q.ID]; dup {
			report.Duplicates++
			continue
		}
		seen[q.ID] = struct{}{}

		accepted = append(accepted, q)
		report.Total++
		report.PerYear[q.Year]++
		report.PerCategory[q.Category]++
	}

	return accepted, report
}
