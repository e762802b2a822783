// Package fallback runs an ordered list of attempts until one succeeds.
//
// Each attempt runs under its own timeout. An attempt that does not honor
// cancellation is abandoned once its timeout fires, so a hung collaborator
// never stalls the chain.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned when every attempt in the chain failed.
var ErrExhausted = errors.New("all fallback attempts failed")

// Attempt is a single named step of a chain.
type Attempt[T any] struct {
	Name    string
	Timeout time.Duration // zero means no per-attempt timeout
	Run     func(ctx context.Context) (T, error)
}

// Failure records why an attempt did not produce a value.
type Failure struct {
	Name    string
	Err     error
	Elapsed time.Duration
}

// Outcome describes the result of a chain run.
type Outcome[T any] struct {
	Value    T
	Source   string // name of the attempt that produced Value
	Failures []Failure
}

// Run tries attempts in order and returns the first successful value.
// Cancellation of ctx aborts the chain instead of moving to the next attempt.
func Run[T any](ctx context.Context, attempts ...Attempt[T]) (Outcome[T], error) {
	var out Outcome[T]
	if len(attempts) == 0 {
		return out, fmt.Errorf("%w: no attempts configured", ErrExhausted)
	}

	errs := make([]error, 0, len(attempts)+1)
	errs = append(errs, ErrExhausted)

	for _, a := range attempts {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		start := time.Now()
		v, err := runOne(ctx, a)
		if err == nil {
			out.Value = v
			out.Source = a.Name
			return out, nil
		}

		// A cancelled parent is not a provider failure.
		if ctx.Err() != nil {
			return out, ctx.Err()
		}

		out.Failures = append(out.Failures, Failure{Name: a.Name, Err: err, Elapsed: time.Since(start)})
		errs = append(errs, fmt.Errorf("%s: %w", a.Name, err))
	}

	return out, errors.Join(errs...)
}

type result[T any] struct {
	v   T
	err error
}

func runOne[T any](ctx context.Context, a Attempt[T]) (T, error) {
	attemptCtx := ctx
	cancel := func() {}
	if a.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, a.Timeout)
	}
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := a.Run(attemptCtx)
		done <- result[T]{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-attemptCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("attempt timed out after %s: %w", a.Timeout, attemptCtx.Err())
	}
}
