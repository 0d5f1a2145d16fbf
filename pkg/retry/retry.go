package retry

import (
	"errors"
	"time"
)

const (
	defaultAttempts = 3
	defaultInitial  = 2 * time.Second
	defaultMax      = 30 * time.Second
)

// Retryable is implemented by errors that know whether another attempt may help.
type Retryable interface {
	error
	Retryable() bool
}

// Policy bounds attempts and shapes exponential backoff between them.
type Policy struct {
	// Attempts counts total calls, including the first.
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	// Sleep blocks between attempts. A dispatched call is never cut short,
	// so Sleep takes no context.
	Sleep func(time.Duration)
	// OnRetry observes each scheduled retry.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// DefaultPolicy is 3 attempts waiting 2s then 4s, capped at 30s.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: defaultAttempts,
		Initial:  defaultInitial,
		Max:      defaultMax,
		Sleep:    time.Sleep,
	}
}

// Backoff returns the wait before retry number n (1-based).
func (p Policy) Backoff(n int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = defaultInitial
	}
	maxWait := p.Max
	if maxWait <= 0 {
		maxWait = defaultMax
	}

	wait := initial
	for i := 1; i < n; i++ {
		wait *= 2
		if wait >= maxWait {
			return maxWait
		}
	}
	if wait > maxWait {
		wait = maxWait
	}
	return wait
}

// IsRetryable reports whether any error in err's chain asks to be retried.
func IsRetryable(err error) bool {
	var r Retryable
	return errors.As(err, &r) && r.Retryable()
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// policy runs out of attempts. The last error is returned unchanged.
func Do[T any](policy Policy, fn func(attempt int) (T, error)) (T, error) {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var (
		result T
		err    error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = fn(attempt)
		if err == nil || !IsRetryable(err) || attempt == attempts {
			return result, err
		}

		wait := policy.Backoff(attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, wait, err)
		}
		sleep(wait)
	}
	return result, err
}
