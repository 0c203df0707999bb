package durable

import (
	"errors"
	"math"
	"time"
)

// RetryPolicy controls how often a failing activity is re-invoked.
// Delay: min(InitialDelay * Multiplier^(attempt-1), MaxDelay)
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy is used by activities that mutate stores
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// NoRetry runs an activity exactly once
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

// SetDefaults fills in zero values
func (p *RetryPolicy) SetDefaults() {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2.0
	}
}

// CalculateDelay returns the wait before the attempt after the given one
func (p RetryPolicy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	return time.Duration(delay)
}

// ShouldRetry reports whether a failed attempt is worth repeating
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if err == nil || attempt >= p.MaxAttempts {
		return false
	}

	var permanent *PermanentError
	return !errors.As(err, &permanent)
}

// PermanentError marks an activity failure that retrying cannot fix
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the engine does not retry it
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}
