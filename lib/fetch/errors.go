package fetch

import "fmt"

// NetworkError is returned once the retry budget is exhausted on a
// transient failure, or immediately on a non-retryable status.
type NetworkError struct {
	URL    string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: http %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RateLimitError means the server kept signaling throttling even after
// retries. The caller decides whether to abort the session or continue
// off cached data.
type RateLimitError struct {
	URL    string
	Status int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("fetch %s: rate limited (http %d)", e.URL, e.Status)
}
