package harvester

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"apharvest/lib/normalize"
	"apharvest/lib/scrapers/apsiken"
)

// StableID builds the canonical question id. Ids derive from the year
// and the source's own question number where known, so re-harvesting the
// same logical question always lands on the same id.
func StableID(year, number int) string {
	return fmt.Sprintf("ap-%d-q%03d", year, number)
}

var stableIDRegex = regexp.MustCompile(`^ap-(\d{4})-q(\d+)$`)

// sequencer allocates per-year fallback numbers for questions whose
// source number could not be parsed, without colliding with ids already
// present in the dataset.
type sequencer struct {
	next map[int]int
}

func newSequencer() *sequencer {
	return &sequencer{next: map[int]int{}}
}

func (s *sequencer) seed(questions []Question) {
	for _, q := range questions {
		groups := stableIDRegex.FindStringSubmatch(q.ID)
		if groups == nil {
			continue
		}
		year, _ := strconv.Atoi(groups[1])
		n, _ := strconv.Atoi(groups[2])
		if n >= s.next[year] {
			s.next[year] = n + 1
		}
	}
}

func (s *sequencer) allocate(year int) int {
	if s.next[year] == 0 {
		s.next[year] = 1
	}
	n := s.next[year]
	s.next[year]++
	return n
}

// normalizeCandidate converts a source-native record into a canonical
// Question: era → Gregorian year, category path → canonical taxonomy,
// choice sanitation with answer-index repair, stable id assignment.
// Failures are per-record; the caller counts and skips.
func normalizeCandidate(raw apsiken.RawQuestion, session apsiken.Session, seq *sequencer) (Question, error) {
	year, err := normalize.EraToGregorian(raw.EraLabel)
	if err != nil {
		if session.Year == 0 {
			return Question{}, err
		}
		year = session.Year
	}

	choices, answerIndex, err := normalize.SanitizeChoices(raw.Choices, raw.AnswerIndex)
	if err != nil {
		return Question{}, err
	}

	path := raw.CategoryPath
	if len(path) == 0 && session.Category != "" {
		path = []string{session.Category}
	}

	number := raw.Number
	if number <= 0 {
		number = seq.allocate(year)
	}

	return Question{
		ID:          StableID(year, number),
		Category:    normalize.CategoryPath(path),
		Year:        year,
		Text:        strings.TrimSpace(raw.Text),
		Choices:     choices,
		AnswerIndex: answerIndex,
		Explanation: strings.TrimSpace(raw.Explanation),
		SourceURL:   raw.SourceURL,
	}, nil
}
