// Package concurrent runs independent operations in parallel and hands their
// results back as they complete.
package concurrent

import (
	"context"
	"iter"

	"golang.org/x/sync/errgroup"
)

// Op is a single unit of work, typically one download.
type Op[T any] func(ctx context.Context) (T, error)

type options struct {
	limit int
}

// Option configures Complete.
type Option func(*options)

// WithLimit bounds the number of operations running at once. Zero or a
// negative value leaves parallelism to the scheduler.
func WithLimit(n int) Option {
	return func(o *options) {
		o.limit = n
	}
}

type result[T any] struct {
	value T
	err   error
}

// Complete starts every op and returns a single-pass sequence of their
// results in completion order.
//
// The first failure is yielded and ends the sequence. Operations still in
// flight at that point are not awaited; their context is cancelled once the
// consumer stops, but nothing guarantees that they abort. Operations not yet
// started are skipped.
func Complete[T any](ctx context.Context, ops []Op[T], opts ...Option) iter.Seq2[T, error] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.limit <= 0 {
		o.limit = -1
	}

	return func(yield func(T, error) bool) {
		if len(ops) == 0 {
			return
		}
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		// buffered so that abandoned operations never block
		results := make(chan result[T], len(ops))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.limit)
		go func() {
			for _, op := range ops {
				g.Go(func() error {
					// the sequence already ended
					if err := gctx.Err(); err != nil {
						return err
					}
					v, err := op(gctx)
					results <- result[T]{value: v, err: err}
					return err
				})
			}
			_ = g.Wait()
		}()

		for range ops {
			var r result[T]
			select {
			case r = <-results:
			case <-ctx.Done():
				var zero T
				yield(zero, ctx.Err())
				return
			}
			if r.err != nil {
				yield(r.value, r.err)
				return
			}
			if !yield(r.value, nil) {
				return
			}
		}
	}
}

// Collect drains Complete into a slice, stopping at the first failure.
func Collect[T any](ctx context.Context, ops []Op[T], opts ...Option) ([]T, error) {
	var values []T
	for v, err := range Complete(ctx, ops, opts...) {
		if err != nil {
			return values, err
		}
		values = append(values, v)
	}
	return values, nil
}
