package request

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/pfrederiksen/wca-events/internal/logger"
)

// Call is a pending network operation producing a T.
type Call[T any] func(ctx context.Context) (T, error)

// Identity is a transform that passes the settled value through unchanged.
func Identity[T any](v T) (T, error) {
	return v, nil
}

// One settles a single call and applies transform to its value.
//
// Failures (including panics in call or transform) are logged under the
// failure sentinel and returned wrapped by it, so callers can match the
// failure with errors.Is.
func One[T, R any](ctx context.Context, call Call[T], transform func(T) (R, error), failure error) (R, error) {
	var zero R

	v, err := settle(ctx, call)
	if err != nil {
		return zero, fail(failure, 1, err)
	}

	r, err := apply(transform, v)
	if err != nil {
		return zero, fail(failure, 1, err)
	}
	return r, nil
}

// All runs every call concurrently and waits for all of them to settle before
// applying transform to the values, in input order.
//
// All is all-or-nothing: if any call fails, the remaining calls see a
// cancelled context, the successful values are discarded and the first error
// is returned. Callers that need partial results must absorb per-item
// failures inside their calls.
func All[T, R any](ctx context.Context, calls []Call[T], transform func([]T) (R, error), failure error) (R, error) {
	var zero R

	values := make([]T, len(calls))
	group, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		group.Go(func() error {
			v, err := settle(gctx, call)
			if err != nil {
				return err
			}
			values[i] = v
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return zero, fail(failure, len(calls), err)
	}

	r, err := apply(transform, values)
	if err != nil {
		return zero, fail(failure, len(calls), err)
	}
	return r, nil
}

func settle[T any](ctx context.Context, call Call[T]) (v T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in call: %v", p)
		}
	}()
	return call(ctx)
}

func apply[T, R any](transform func(T) (R, error), v T) (r R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in transform: %v", p)
		}
	}()
	return transform(v)
}

func fail(failure error, calls int, err error) error {
	logger.Error(failure.Error(), logger.Fields{"calls": calls}, err)
	return fmt.Errorf("%w: %w", failure, err)
}
