package proxy

import (
	"errors"
	"fmt"
)

// Kind classifies a failed completion call.
type Kind int

const (
	KindAPIError Kind = iota
	KindRateLimited
	KindAuthenticationFailed
	KindServiceUnavailable
	KindNetworkError
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindAuthenticationFailed:
		return "authentication_failed"
	case KindServiceUnavailable:
		return "service_unavailable"
	case KindNetworkError:
		return "network_error"
	default:
		return "api_error"
	}
}

// Error is the classified failure of a completion call.
type Error struct {
	Kind     Kind
	Status   int    // HTTP status, 0 for transport failures
	Message  string // user-facing summary
	Attempts int    // attempts made before giving up
	Err      error  // underlying cause, if any
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the classification of err, or false if err is not a
// classified completion error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsRateLimited reports whether err is a rate limit that outlasted retries.
func IsRateLimited(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindRateLimited
}

func statusError(status int, serverMsg string) *Error {
	switch {
	case status == 401:
		return &Error{Kind: KindAuthenticationFailed, Status: status,
			Message: "authentication failed, check the OpenRouter API key"}
	case status >= 500:
		return &Error{Kind: KindServiceUnavailable, Status: status,
			Message: "the AI model is currently unavailable, try again later"}
	default:
		if serverMsg == "" {
			serverMsg = "Unknown error"
		}
		return &Error{Kind: KindAPIError, Status: status,
			Message: "API error: " + serverMsg}
	}
}
