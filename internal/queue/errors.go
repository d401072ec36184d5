package queue

import (
	"errors"
	"fmt"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrUnknownKind  = errors.New("unknown task kind")

	// ErrLeaseLost means the task was taken back (visibility timeout) and
	// possibly claimed by another worker; the caller's result is discarded.
	ErrLeaseLost = errors.New("task claim lost")
)

// PermanentPrefix starts the last_error of every task dead-lettered by a
// Permanent error.
const PermanentPrefix = "permanent: "

// Permanent marks a handler error as non-retryable. The task is
// dead-lettered on the first failure instead of consuming its budget.
//
//	return queue.Permanent(fmt.Errorf("registration %s: %w", id, ErrGone))
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var e permanentError
	return errors.As(err, &e)
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return fmt.Sprintf("%s%v", PermanentPrefix, e.err) }
func (e permanentError) Unwrap() error { return e.err }
