package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/0x6d61/sqlsiphon/internal/dialect"
	"github.com/0x6d61/sqlsiphon/internal/payload"
)

// DefaultRetries is how many times one oracle call is attempted.
const DefaultRetries = 3

// AbortedError reports a value whose extraction gave up after repeated
// ambiguous answers or transport failures. It is scoped to one value.
type AbortedError struct {
	Attempts int
	Err      error
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("extraction aborted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *AbortedError) Unwrap() error { return e.Err }

// Permanent marks err as failing the same way on every attempt, so Retry
// returns it at once.
func Permanent(err error) error {
	return &permanentError{err: err}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Retry calls fn until it succeeds, at most attempts times. Configuration
// errors, permanent errors, over-long values and cancellation are returned
// at once; anything else is retried.
func Retry[T any](ctx context.Context, attempts int, fn func() (T, error)) (T, error) {
	if attempts < 1 {
		attempts = 1
	}
	var (
		zero T
		last error
	)
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if fatal(ctx, err) {
			if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
				return zero, ctxErr
			}
			return zero, err
		}
		last = err
	}
	return zero, &AbortedError{Attempts: attempts, Err: last}
}

func fatal(ctx context.Context, err error) bool {
	var (
		cfg     *dialect.ConfigError
		aborted *AbortedError
		perm    *permanentError
	)
	return ctx.Err() != nil ||
		errors.As(err, &cfg) ||
		errors.As(err, &aborted) ||
		errors.As(err, &perm) ||
		errors.Is(err, ErrTooLong) ||
		errors.Is(err, payload.ErrUnsupported)
}
