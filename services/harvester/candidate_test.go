package harvester

import (
	"testing"

	"apharvest/lib/scrapers/apsiken"

	"github.com/stretchr/testify/require"
)

func TestStableID(t *testing.T) {
	require.Equal(t, "ap-2025-q007", StableID(2025, 7))
	require.Equal(t, "ap-2019-q080", StableID(2019, 80))
	require.Equal(t, "ap-2025-q123", StableID(2025, 123))
}

func TestSequencerSeedsPastExistingIDs(t *testing.T) {
	seq := newSequencer()
	seq.seed([]Question{
		{ID: "ap-2025-q003"},
		{ID: "ap-2025-q001"},
		{ID: "ap-2019-q010"},
		{ID: "legacy-id"}, // ignored
	})

	require.Equal(t, 4, seq.allocate(2025))
	require.Equal(t, 5, seq.allocate(2025))
	require.Equal(t, 11, seq.allocate(2019))
	// untouched year starts at 1
	require.Equal(t, 1, seq.allocate(2009))
}

func rawQuestion() apsiken.RawQuestion {
	return apsiken.RawQuestion{
		EraLabel:     "令和7年春期",
		CategoryPath: []string{"ネットワーク"},
		Text:         " サブネットマスクとは。 ",
		Choices:      []string{"a", "b", "c", "d"},
		AnswerIndex:  2,
		Explanation:  " 解説。 ",
		SourceURL:    "https://example.com/q1",
		Number:       12,
	}
}

func TestNormalizeCandidate(t *testing.T) {
	q, err := normalizeCandidate(rawQuestion(), apsiken.Session{}, newSequencer())
	require.NoError(t, err)

	require.Equal(t, Question{
		ID:          "ap-2025-q012",
		Category:    "network",
		Year:        2025,
		Text:        "サブネットマスクとは。",
		Choices:     []string{"a", "b", "c", "d"},
		AnswerIndex: 2,
		Explanation: "解説。",
		SourceURL:   "https://example.com/q1",
	}, q)
}

func TestNormalizeCandidateYearFallsBackToSession(t *testing.T) {
	raw := rawQuestion()
	raw.EraLabel = "unknown era"

	q, err := normalizeCandidate(raw, apsiken.Session{Year: 2019}, newSequencer())
	require.NoError(t, err)
	require.Equal(t, 2019, q.Year)
	require.Equal(t, "ap-2019-q012", q.ID)
}

func TestNormalizeCandidateNoYearAnywhere(t *testing.T) {
	raw := rawQuestion()
	raw.EraLabel = "unknown era"

	_, err := normalizeCandidate(raw, apsiken.Session{}, newSequencer())
	require.Error(t, err)
}

func TestNormalizeCandidateCategoryFallsBackToSession(t *testing.T) {
	raw := rawQuestion()
	raw.CategoryPath = nil

	q, err := normalizeCandidate(raw, apsiken.Session{Category: "セキュリティ"}, newSequencer())
	require.NoError(t, err)
	require.Equal(t, "security", q.Category)
}

func TestNormalizeCandidateAllocatesMissingNumber(t *testing.T) {
	raw := rawQuestion()
	raw.Number = 0

	seq := newSequencer()
	seq.seed([]Question{{ID: "ap-2025-q005"}})
	q, err := normalizeCandidate(raw, apsiken.Session{}, seq)
	require.NoError(t, err)
	require.Equal(t, "ap-2025-q006", q.ID)
}

func TestNormalizeCandidateBadChoices(t *testing.T) {
	raw := rawQuestion()
	raw.Choices = []string{"a", " ", "", ""}
	raw.AnswerIndex = 1

	_, err := normalizeCandidate(raw, apsiken.Session{}, newSequencer())
	require.Error(t, err)
}

func TestQuestionIdentity(t *testing.T) {
	a := testQuestion("ap-2025-q001", "same")
	b := testQuestion("ap-2024-q033", "same")
	b.Year = 2024
	b.Explanation = "different prose"
	require.Equal(t, a.Identity(), b.Identity())

	c := testQuestion("ap-2025-q001", "same")
	c.Choices = []string{"a", "bc", "d"}
	require.NotEqual(t, a.Identity(), c.Identity())

	// the choice separator is unambiguous: ["ab","c"] != ["a","bc"]
	d := testQuestion("x", "same")
	d.Choices = []string{"ab", "c"}
	e := testQuestion("x", "same")
	e.Choices = []string{"a", "bc"}
	require.NotEqual(t, d.Identity(), e.Identity())
}
