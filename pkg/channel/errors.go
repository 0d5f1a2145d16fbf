package channel

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a delivery failure.
type Kind string

const (
	KindTransport   Kind = "transport"
	KindRateLimited Kind = "rate_limited"
	KindAPI         Kind = "api"
	KindFormat      Kind = "format"
)

// Error is a classified delivery failure. Only transport failures are
// retryable; rate limits carry the server-advertised wait.
type Error struct {
	Kind       Kind
	Op         string
	Detail     string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the retry combinator may try again.
func (e *Error) Retryable() bool {
	return e != nil && e.Kind == KindTransport
}

// TransportError wraps a timeout or connection failure.
func TransportError(op string, err error) error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

// RateLimitError reports a rate-limit rejection and the advertised wait.
func RateLimitError(op string, retryAfter time.Duration) error {
	return &Error{
		Kind:       KindRateLimited,
		Op:         op,
		Detail:     fmt.Sprintf("retry after %ds", int(retryAfter/time.Second)),
		RetryAfter: retryAfter,
	}
}

// APIError reports a fatal semantic rejection such as a bad channel or auth.
func APIError(op string, detail string) error {
	return &Error{Kind: KindAPI, Op: op, Detail: detail}
}

// FormatError reports content that cannot be composed into a post.
func FormatError(op string, detail string) error {
	return &Error{Kind: KindFormat, Op: op, Detail: detail}
}

// KindOf returns the classification of err, or "" when it is unclassified.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return ""
}

// IsRetryable reports whether err is a retryable delivery failure.
func IsRetryable(err error) bool {
	var classified *Error
	return errors.As(err, &classified) && classified.Retryable()
}

// RetryAfterOf returns the advertised wait carried by a rate-limit error.
func RetryAfterOf(err error) (time.Duration, bool) {
	var classified *Error
	if errors.As(err, &classified) && classified.Kind == KindRateLimited {
		return classified.RetryAfter, true
	}
	return 0, false
}
