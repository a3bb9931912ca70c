package llm

import (
	"errors"
	"fmt"
)

// Kind classifies a remote-client failure.
type Kind string

const (
	// KindInput covers bad caller input: undecodable or unsupported images.
	KindInput Kind = "input"
	// KindTransient covers transport errors, rate limits and 5xx responses.
	KindTransient Kind = "transient"
	// KindBackend covers other non-success responses and malformed bodies.
	KindBackend Kind = "backend"
)

var (
	ErrEmptyImage        = errors.New("image payload is empty")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrEmptyResponse     = errors.New("backend returned no text")
)

// Error is the structured failure every RemoteClient call returns instead
// of panicking.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another credential might succeed.
func (e *Error) Retryable() bool { return e.Kind != KindInput }

func inputError(err error) *Error {
	return &Error{Kind: KindInput, Message: err.Error(), Err: err}
}

func shouldRetry(statusCode int) bool {
	switch statusCode {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}
