package llms

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a backend answers without any content.
var ErrEmptyResponse = errors.New("the assistant returned an empty response")

// Chat is a reasoning backend. Messages are ordered oldest first and the
// reply is the assistant's full answer. Errors carry a short message that is
// safe to show to a user.
type Chat interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// ChatFunc adapts a function to [Chat].
type ChatFunc func(ctx context.Context, messages []Message) (string, error)

func (f ChatFunc) Chat(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

// ChatError pairs a short, human readable description with the underlying
// failure.
type ChatError struct {
	Message string
	Err     error
}

func (e *ChatError) Error() string { return e.Message }

func (e *ChatError) Unwrap() error { return e.Err }

// ErrorForStatus describes an unsuccessful HTTP status of a backend.
func ErrorForStatus(statusCode int, err error) *ChatError {
	switch {
	case statusCode == 401 || statusCode == 403:
		return &ChatError{Message: "the assistant rejected our credentials", Err: err}
	case statusCode == 429:
		return &ChatError{Message: "the assistant is busy right now", Err: err}
	case statusCode >= 500:
		return &ChatError{Message: "the assistant service is unavailable", Err: err}
	default:
		return &ChatError{Message: "the assistant could not handle the request", Err: err}
	}
}

// ErrorForTransport describes a failure to reach a backend at all.
func ErrorForTransport(err error) *ChatError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ChatError{Message: "the assistant took too long to answer", Err: err}
	}
	return &ChatError{Message: "the assistant could not be reached", Err: err}
}
