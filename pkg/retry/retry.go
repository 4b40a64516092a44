// Package retry re-runs whole operations that failed with a transient error,
// using exponential backoff with jitter.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// transientError marks an error as worth another attempt.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so that the default classifier retries it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was wrapped with Transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// stopError aborts the retry loop regardless of the classifier.
type stopError struct{ err error }

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

// Stop wraps err so that no further attempts are made.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// Policy describes how often and how fast to retry.
type Policy struct {
	// MaxAttempts counts the first call. Values below 1 mean a single attempt.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps a single wait.
	MaxDelay time.Duration

	// Multiplier grows the wait after each attempt.
	Multiplier float64

	// Jitter randomises each wait by ±Jitter of its value (0..1).
	Jitter float64

	// Classify decides whether an error is retryable.
	// Nil means only errors wrapped with Transient are retried.
	Classify func(error) bool

	// OnRetry observes every scheduled retry.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultPolicy suits short store transactions contending on a row lock.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   20 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2,
		Jitter:      0.2,
	}
}

// Retrier executes operations under a Policy.
type Retrier struct {
	policy Policy
}

// New creates a Retrier. Zero fields in p fall back to DefaultPolicy.
func New(p Policy) *Retrier {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = d.Jitter
	}
	return &Retrier{policy: p}
}

// Policy returns the effective policy.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do calls op until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done. The last error is returned unwrapped from any
// Transient or Stop marker.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		last = unwrapMarker(err)

		var stop *stopError
		if errors.As(err, &stop) || !r.retryable(err) || attempt >= r.policy.MaxAttempts {
			return last
		}

		wait := r.backoff(attempt)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, last, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last
		case <-timer.C:
		}
	}
}

func (r *Retrier) retryable(err error) bool {
	if IsTransient(err) {
		return true
	}
	if r.policy.Classify != nil {
		return r.policy.Classify(err)
	}
	return false
}

func (r *Retrier) backoff(attempt int) time.Duration {
	wait := float64(r.policy.BaseDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if wait > float64(r.policy.MaxDelay) {
		wait = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter > 0 {
		wait += wait * r.policy.Jitter * (rand.Float64()*2 - 1)
	}
	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}

func unwrapMarker(err error) error {
	switch e := err.(type) {
	case *transientError:
		return e.err
	case *stopError:
		return e.err
	}
	return err
}

