package harvester

import (
	"context"
	"log/slog"

	"apharvest/lib/scrapers/apsiken"
)

type State int

const (
	StateIdle State = iota
	StateFetching
	StateExtracting
	StateContinuing
	StateConverged
	StateCapped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateExtracting:
		return "extracting"
	case StateContinuing:
		return "continuing"
	case StateConverged:
		return "converged"
	case StateCapped:
		return "capped"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type SessionOptions struct {
	// MaxRequests caps question fetches per session. Exhausting it is a
	// legitimate terminal state (Capped), not a failure: the randomized
	// endpoint gives no reliable way to know the total up front.
	MaxRequests int
	// MaxQno bounds the question number attempted in randomized mode.
	MaxQno int
	// StreakThreshold is how many consecutive already-seen draws signal
	// that the sample space is exhausted.
	StreakThreshold int
	// ExtractTolerance is how many consecutive shape mismatches are
	// skipped before the session is declared structurally broken.
	ExtractTolerance int
	// PageAttempts is how many times one question number is re-fetched
	// when the site serves the config page instead of a question.
	PageAttempts int
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.MaxRequests == 0 {
		o.MaxRequests = 200
	}
	if o.MaxQno == 0 {
		o.MaxQno = 80
	}
	if o.StreakThreshold == 0 {
		o.StreakThreshold = 25
	}
	if o.ExtractTolerance == 0 {
		o.ExtractTolerance = 5
	}
	if o.PageAttempts == 0 {
		o.PageAttempts = 3
	}
	return o
}

// Outcome reports how one session terminated. Converged and Capped are
// both successes; Capped marks a best-effort partial set.
type Outcome struct {
	Session         string
	State           State
	Requests        int
	Extracted       int
	ExtractErrors   int
	NormalizeErrors int
	Err             error
}

// sessionHarvester drives one session to a terminal state. Requests
// within a session are strictly sequential: the throttle delay stays
// meaningful and the convergence streak is well defined.
type sessionHarvester struct {
	client  *apsiken.Client
	session apsiken.Session
	opts    SessionOptions

	// seen holds this session's content identities, pre-populated from
	// the prior dataset on resume so restarted runs never lose captured
	// records. Sessions do not share it: the same question recurring in
	// another administration is a distinct record there.
	seen map[string]struct{}
	seq  *sequencer

	state    State
	requests int
}

func (h *sessionHarvester) outcome(captured []Question, extractErrors, normalizeErrors int, err error) ([]Question, Outcome) {
	return captured, Outcome{
		Session:         h.session.Label,
		State:           h.state,
		Requests:        h.requests,
		Extracted:       len(captured),
		ExtractErrors:   extractErrors,
		NormalizeErrors: normalizeErrors,
		Err:             err,
	}
}

func (h *sessionHarvester) run(ctx context.Context) ([]Question, Outcome) {
	slog.InfoContext(ctx, "harvesting session",
		"session", h.session.Label,
		"year", h.session.Year,
		"mode", sessionMode(h.session),
	)
	if h.session.Deterministic() {
		return h.runDeterministic(ctx)
	}
	return h.runRandomized(ctx)
}

func sessionMode(s apsiken.Session) string {
	if s.Deterministic() {
		return "api"
	}
	return "randomized"
}

// capture normalizes a raw record and folds it into the seen set.
// Returns whether the record's identity was genuinely new.
func (h *sessionHarvester) capture(ctx context.Context, raw apsiken.RawQuestion, captured *[]Question) (isNew bool, err error) {
	q, err := normalizeCandidate(raw, h.session, h.seq)
	if err != nil {
		slog.WarnContext(ctx, "skipping non-normalizable record",
			"session", h.session.Label, "err", err)
		return false, err
	}

	identity := q.Identity()
	if _, ok := h.seen[identity]; ok {
		return false, nil
	}
	h.seen[identity] = struct{}{}
	*captured = append(*captured, q)
	return true, nil
}

func (h *sessionHarvester) runRandomized(ctx context.Context) ([]Question, Outcome) {
	var captured []Question
	var extractErrors, normalizeErrors, consecutiveExtractErrors int

	h.state = StateFetching
	state, err := h.client.StartState(ctx, h.session)
	if err != nil {
		h.state = terminalForFetchError(ctx)
		return h.outcome(captured, extractErrors, normalizeErrors, err)
	}

	streak := 0
	totalHint := 0

	for qno := 0; qno < h.opts.MaxQno; qno++ {
		if ctx.Err() != nil {
			// abort requested: stop issuing requests, keep what we have
			h.state = StateCapped
			return h.outcome(captured, extractErrors, normalizeErrors, nil)
		}
		if h.requests >= h.opts.MaxRequests {
			h.state = StateCapped
			return h.outcome(captured, extractErrors, normalizeErrors, nil)
		}

		page, ok, fatalErr := h.fetchQuestionPage(ctx, state, qno, &extractErrors, &consecutiveExtractErrors)
		if fatalErr != nil {
			h.state = terminalForFetchError(ctx)
			return h.outcome(captured, extractErrors, normalizeErrors, fatalErr)
		}
		if !ok {
			slog.WarnContext(ctx, "question page never materialized",
				"session", h.session.Label, "qno", qno)
			continue
		}

		// thread the hidden params into the next request, forcing the
		// grading result so the site keeps serving new questions
		state.Hidden = page.Hidden
		state.Hidden.Result = "0"

		if page.Total > 0 {
			totalHint = page.Total
		}

		isNew, err := h.capture(ctx, page.Question, &captured)
		if err != nil {
			normalizeErrors++
			continue
		}
		if isNew {
			streak = 0
			h.state = StateContinuing
		} else {
			streak++
			if streak >= h.opts.StreakThreshold {
				h.state = StateConverged
				return h.outcome(captured, extractErrors, normalizeErrors, nil)
			}
		}

		// the total hint is an early exit only, never the sole
		// convergence criterion
		if totalHint > 0 && len(captured) >= totalHint {
			h.state = StateConverged
			return h.outcome(captured, extractErrors, normalizeErrors, nil)
		}
	}

	h.state = StateCapped
	return h.outcome(captured, extractErrors, normalizeErrors, nil)
}

// fetchQuestionPage fetches and parses one question number, retrying a
// bounded number of times when the site responds with the config page.
// ok=false means the page stayed unparseable within tolerance; a non-nil
// error is session-fatal.
func (h *sessionHarvester) fetchQuestionPage(
	ctx context.Context,
	state apsiken.PageState,
	qno int,
	extractErrors *int,
	consecutive *int,
) (apsiken.Page, bool, error) {
	for attempt := 0; attempt < h.opts.PageAttempts && h.requests < h.opts.MaxRequests; attempt++ {
		h.state = StateFetching
		body, err := h.client.QuestionPage(ctx, h.session, state, qno)
		h.requests++
		if err != nil {
			return apsiken.Page{}, false, err
		}

		h.state = StateExtracting
		page, err := apsiken.ParseQuestionPage(body, h.session)
		if err == nil {
			*consecutive = 0
			return page, true, nil
		}

		*extractErrors++
		*consecutive++
		slog.WarnContext(ctx, "extraction failed",
			"session", h.session.Label, "qno", qno, "attempt", attempt+1, "err", err)
		if *consecutive > h.opts.ExtractTolerance {
			return apsiken.Page{}, false, err
		}
	}

	return apsiken.Page{}, false, nil
}

func (h *sessionHarvester) runDeterministic(ctx context.Context) ([]Question, Outcome) {
	var captured []Question
	var extractErrors, normalizeErrors, consecutiveExtractErrors int

	pageToken := ""
	for {
		if ctx.Err() != nil {
			h.state = StateCapped
			return h.outcome(captured, extractErrors, normalizeErrors, nil)
		}
		if h.requests >= h.opts.MaxRequests {
			h.state = StateCapped
			return h.outcome(captured, extractErrors, normalizeErrors, nil)
		}

		h.state = StateFetching
		body, err := h.client.APIPage(ctx, h.session, pageToken)
		h.requests++
		if err != nil {
			h.state = terminalForFetchError(ctx)
			return h.outcome(captured, extractErrors, normalizeErrors, err)
		}

		h.state = StateExtracting
		raws, next, err := apsiken.ParseAPIPage(body)
		if err != nil {
			extractErrors++
			consecutiveExtractErrors++
			slog.WarnContext(ctx, "extraction failed",
				"session", h.session.Label, "page", pageToken, "err", err)
			if consecutiveExtractErrors > h.opts.ExtractTolerance {
				h.state = StateFailed
				return h.outcome(captured, extractErrors, normalizeErrors, err)
			}
			continue
		}
		consecutiveExtractErrors = 0

		for _, raw := range raws {
			_, err := h.capture(ctx, raw, &captured)
			if err != nil {
				normalizeErrors++
			}
		}

		if next == "" {
			h.state = StateConverged
			return h.outcome(captured, extractErrors, normalizeErrors, nil)
		}
		h.state = StateContinuing
		pageToken = next
	}
}

// terminalForFetchError distinguishes an externally requested abort
// (flush what we have) from a genuine session failure.
func terminalForFetchError(ctx context.Context) State {
	if ctx.Err() != nil {
		return StateCapped
	}
	return StateFailed
}
