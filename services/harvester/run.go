package harvester

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"apharvest/lib/scrapers/apsiken"
)

type RunOptions struct {
	Sessions []apsiken.Session
	Session  SessionOptions

	// OutPath is where the merged dataset is written. InPath defaults to
	// OutPath; separating them supports merge rehearsals against a copy.
	OutPath string
	InPath  string

	// Resume seeds the already-seen set from the prior dataset so an
	// interrupted run picks up where it left off instead of re-capturing
	// everything.
	Resume bool

	Policy Policy

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

type RunResult struct {
	Outcomes []Outcome
	Report   Report
	Merge    MergeResult
	Dataset  Dataset
}

// Run harvests every configured session sequentially, validates and
// merges the union of captures into the persisted dataset, and always
// flushes the result, even on partial failure. It errors only when every
// session failed outright; anything less is a degraded but usable run.
func Run(ctx context.Context, client *apsiken.Client, opts RunOptions) (RunResult, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.InPath == "" {
		opts.InPath = opts.OutPath
	}
	opts.Session = opts.Session.withDefaults()

	existing, err := LoadDataset(opts.InPath)
	if err != nil {
		return RunResult{}, err
	}

	// The sequencer is always seeded from the prior dataset: fallback
	// numbering must never collide with persisted ids. The seen set is
	// only seeded on resume, so a fresh run still re-captures content
	// and lets the merge policy arbitrate.
	seq := newSequencer()
	seq.seed(existing.Questions)

	resumeSeen := map[string]struct{}{}
	if opts.Resume {
		for _, q := range existing.Questions {
			resumeSeen[q.Identity()] = struct{}{}
		}
		slog.InfoContext(ctx, "resuming from prior dataset",
			"path", opts.InPath, "known", len(resumeSeen))
	}

	var result RunResult
	var candidates []Question
	var sessionLabels []string
	failed := 0

	for _, session := range opts.Sessions {
		// each session gets its own seen set: questions genuinely recur
		// across administrations, and a repeat from another session must
		// neither feed this session's convergence streak nor be skipped.
		seen := make(map[string]struct{}, len(resumeSeen))
		for identity := range resumeSeen {
			seen[identity] = struct{}{}
		}
		h := &sessionHarvester{
			client:  client,
			session: session,
			opts:    opts.Session,
			seen:    seen,
			seq:     seq,
		}
		captured, outcome := h.run(ctx)
		result.Outcomes = append(result.Outcomes, outcome)

		if outcome.State == StateFailed {
			// a failed session contributes nothing: its partial captures
			// are dropped so provenance only ever names sessions whose
			// records made it into the batch. The fetched responses are
			// already cached, so a re-run replays them without traffic.
			failed++
			slog.ErrorContext(ctx, "session failed",
				"session", session.Label, "err", outcome.Err)
			continue
		}
		candidates = append(candidates, captured...)
		sessionLabels = append(sessionLabels, session.Label)
		slog.InfoContext(ctx, "session finished",
			"session", session.Label,
			"state", outcome.State.String(),
			"extracted", outcome.Extracted,
			"requests", outcome.Requests,
		)
	}

	accepted, report := Validate(candidates)
	result.Report = report

	merged, mergeResult := Merge(existing, accepted, sessionLabels, opts.Policy, opts.Now())
	result.Merge = mergeResult
	result.Dataset = merged

	err = WriteDataset(opts.OutPath, merged)
	if err != nil {
		return result, err
	}
	slog.InfoContext(ctx, "dataset written",
		"path", opts.OutPath,
		"version", merged.Version,
		"questions", len(merged.Questions),
		"inserted", mergeResult.Inserted,
		"replaced", mergeResult.Replaced,
	)

	if len(opts.Sessions) > 0 && failed == len(opts.Sessions) {
		return result, errors.New("all sessions failed")
	}
	return result, nil
}
