package jobs

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned by Job.Run to report a clean stop in
// response to its cancellation token, distinct from a failure.
var ErrCancelled = errors.New("jobs: cancelled")

// NotFoundError reports an unregistered job ID.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("jobs: job %q not found", e.ID)
}

// RetryableError is returned by Job.Run to request the scheduler's
// backoff-and-retry path rather than a terminal failure.
type RetryableError struct {
	Message string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("jobs: %s", e.Message)
}

// Retryable wraps msg as a *RetryableError.
func Retryable(msg string) error {
	return &RetryableError{Message: msg}
}
