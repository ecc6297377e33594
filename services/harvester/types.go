// Package harvester orchestrates fetching, extraction and normalization
// per exam session, then validates, deduplicates and merges the result
// into the versioned question dataset consumed by the mobile app.
package harvester

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"slices"
	"time"
)

// Question is the canonical unit record.
type Question struct {
	ID          string   `json:"id"`
	Category    string   `json:"category"`
	Year        int      `json:"year"`
	Text        string   `json:"text"`
	Choices     []string `json:"choices"`
	AnswerIndex int      `json:"answerIndex"`
	Explanation string   `json:"explanation"`
	SourceURL   string   `json:"sourceUrl"`
}

func (q Question) Equal(other Question) bool {
	return q.ID == other.ID &&
		q.Category == other.Category &&
		q.Year == other.Year &&
		q.Text == other.Text &&
		q.AnswerIndex == other.AnswerIndex &&
		q.Explanation == other.Explanation &&
		q.SourceURL == other.SourceURL &&
		slices.Equal(q.Choices, other.Choices)
}

// Identity fingerprints the question content (normalized text and
// choices), independent of id or provenance. The randomized sampler uses
// it to recognize re-drawn questions, since the site serves the same
// question under ever-changing request parameters.
func (q Question) Identity() string {
	h := sha256.New()
	io.WriteString(h, q.Text)
	for _, c := range q.Choices {
		h.Write([]byte{0})
		io.WriteString(h, c)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Dataset is the persisted artifact. Version and GeneratedAt advance
// together, and only when a merge actually changes content, so the
// consumer can treat an unchanged GeneratedAt as "nothing to re-import".
type Dataset struct {
	Version        int        `json:"version"`
	GeneratedAt    time.Time  `json:"generatedAt"`
	SourceSessions []string   `json:"sourceSessions"`
	Questions      []Question `json:"questions"`
}

// Index returns the id → Question view of the dataset.
func (ds Dataset) Index() map[string]Question {
	index := make(map[string]Question, len(ds.Questions))
	for _, q := range ds.Questions {
		index[q.ID] = q
	}
	return index
}
