package fetch

import (
	"time"

	"github.com/mazen160/go-random"
)

// RetryPolicy bounds how transient failures are retried. It lives apart
// from the client so backoff behavior is testable without network I/O.
type RetryPolicy struct {
	// MaxAttempts includes the initial request.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// JitterFraction adds up to this fraction of the computed delay.
	JitterFraction float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		BaseDelay:      time.Second,
		MaxDelay:       time.Second * 30,
		Multiplier:     2,
		JitterFraction: 0.25,
	}
}

// Delay computes the backoff before the given 1-based retry attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
	}
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	bound := int(delay * p.JitterFraction / float64(time.Millisecond))
	if bound > 0 {
		jitter, err := random.IntRange(0, bound)
		if err == nil {
			delay += float64(time.Duration(jitter) * time.Millisecond)
		}
	}

	return time.Duration(delay)
}
