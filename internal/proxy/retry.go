package proxy

import (
	"fmt"
	"time"
)

// State is a step of the completion retry state machine.
type State int

const (
	Attempting State = iota
	BackoffWaiting
	Succeeded
	FailedFatal
	FailedExhausted
)

func (s State) String() string {
	switch s {
	case Attempting:
		return "attempting"
	case BackoffWaiting:
		return "backoff_waiting"
	case Succeeded:
		return "succeeded"
	case FailedFatal:
		return "failed_fatal"
	case FailedExhausted:
		return "failed_exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Step is one transition of the state machine. Attempt is 1-based. Wait is
// set for BackoffWaiting; Err is set for the two failure states.
type Step struct {
	State   State
	Attempt int
	Wait    time.Duration
	Err     *Error
}

func (s Step) terminal() bool {
	return s.State == Succeeded || s.State == FailedFatal || s.State == FailedExhausted
}

// rateLimitBackoff is 2^attempt seconds: 2s, 4s, 8s...
func rateLimitBackoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

// networkBackoff is attempt seconds: 1s, 2s, 3s...
func networkBackoff(attempt int) time.Duration {
	return time.Duration(attempt) * time.Second
}

// next classifies the outcome of attempt. A nil err means success.
// Only rate limits and transport failures are retried; any other HTTP
// failure, server errors included, ends the call at once.
func next(attempt, maxAttempts int, err *Error) Step {
	if err == nil {
		return Step{State: Succeeded, Attempt: attempt}
	}
	err.Attempts = attempt

	switch err.Kind {
	case KindRateLimited:
		if attempt < maxAttempts {
			return Step{State: BackoffWaiting, Attempt: attempt, Wait: rateLimitBackoff(attempt)}
		}
		return Step{State: FailedExhausted, Attempt: attempt, Err: &Error{
			Kind:     KindRateLimited,
			Status:   err.Status,
			Message:  fmt.Sprintf("rate limited after %d attempts, please try again in a few minutes", attempt),
			Attempts: attempt,
		}}
	case KindNetworkError:
		if attempt < maxAttempts {
			return Step{State: BackoffWaiting, Attempt: attempt, Wait: networkBackoff(attempt)}
		}
		return Step{State: FailedExhausted, Attempt: attempt, Err: err}
	default:
		return Step{State: FailedFatal, Attempt: attempt, Err: err}
	}
}
