package harvester

import (
	"fmt"
	"slices"
	"time"
)

// Policy decides which record survives an id collision during a merge.
type Policy int

const (
	// PreferNew replaces the existing record with the incoming one.
	PreferNew Policy = iota
	// PreferExisting keeps the existing record unchanged.
	PreferExisting
)

func (p Policy) String() string {
	switch p {
	case PreferNew:
		return "prefer-new"
	case PreferExisting:
		return "prefer-existing"
	}
	return "unknown"
}

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "prefer-new", "":
		return PreferNew, nil
	case "prefer-existing":
		return PreferExisting, nil
	}
	return PreferNew, fmt.Errorf("unknown merge policy %q", s)
}

type MergeResult struct {
	Inserted int
	Replaced int
	Changed  bool
}

// Merge reconciles a freshly harvested batch against the previously
// persisted dataset. The generation (version, generatedAt) advances only
// when content actually changed; a no-op merge returns the existing
// dataset untouched so the downstream consumer skips re-importing.
// A missing prior dataset is the zero Dataset, never an error.
func Merge(existing Dataset, incoming []Question, sessions []string, policy Policy, now time.Time) (Dataset, MergeResult) {
	index := make(map[string]int, len(existing.Questions))
	for i, q := range existing.Questions {
		index[q.ID] = i
	}

	questions := slices.Clone(existing.Questions)
	var res MergeResult
	for _, q := range incoming {
		i, ok := index[q.ID]
		if !ok {
			index[q.ID] = len(questions)
			questions = append(questions, q)
			res.Inserted++
			continue
		}
		if policy == PreferNew && !questions[i].Equal(q) {
			questions[i] = q
			res.Replaced++
		}
	}

	res.Changed = res.Inserted > 0 || res.Replaced > 0
	if !res.Changed {
		return existing, res
	}

	return Dataset{
		Version:        existing.Version + 1,
		GeneratedAt:    now,
		SourceSessions: unionSessions(existing.SourceSessions, sessions),
		Questions:      questions,
	}, res
}

// unionSessions unions contributing session labels, preserving first
// occurrence order.
func unionSessions(prior, incoming []string) []string {
	seen := make(map[string]struct{}, len(prior)+len(incoming))
	var out []string
	for _, s := range prior {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, s := range incoming {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
