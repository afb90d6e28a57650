package memo

import (
	"context"
	"iter"
	"sync"
)

// SeqFunc produces a sequence of values for owner. An element with a non-nil
// error ends the sequence.
type SeqFunc[O Owner, T any] func(ctx context.Context, owner O) iter.Seq2[T, error]

// Sequence is a named, lazily produced sequence of an owner. See Mode for the
// caching policies.
type Sequence[O Owner, T any] struct {
	name string
	doc  string
	fn   SeqFunc[O, T]
	mode Mode
}

// NewSequence declares a sequence produced by fn. Without options it is
// Uncached.
func NewSequence[O Owner, T any](name, doc string, fn SeqFunc[O, T], opts ...Option) *Sequence[O, T] {
	o := newOptions(opts)
	return &Sequence[O, T]{
		name: name,
		doc:  doc,
		fn:   fn,
		mode: o.mode,
	}
}

// AbstractSequence declares a sequence without an implementation.
func AbstractSequence[O Owner, T any](name, doc string, opts ...Option) *Sequence[O, T] {
	return NewSequence[O, T](name, doc, nil, opts...)
}

// Implement returns a copy of s produced by fn.
func (s *Sequence[O, T]) Implement(fn SeqFunc[O, T]) *Sequence[O, T] {
	impl := *s
	impl.fn = fn
	return &impl
}

func (s *Sequence[O, T]) Name() string      { return s.name }
func (s *Sequence[O, T]) Doc() string       { return s.doc }
func (s *Sequence[O, T]) CacheName() string { return CacheName }
func (s *Sequence[O, T]) Mode() Mode        { return s.mode }
func (s *Sequence[O, T]) IsAbstract() bool  { return s.fn == nil }

// All returns the sequence for owner.
func (s *Sequence[O, T]) All(ctx context.Context, owner O) iter.Seq2[T, error] {
	if s.fn == nil {
		return func(yield func(T, error) bool) {
			var zero T
			yield(zero, &NotImplementedError{Name: s.name})
		}
	}
	switch s.mode {
	case Lazy:
		return s.lazy(ctx, owner)
	case Materialized:
		return s.materialized(ctx, owner)
	}
	return s.fn(ctx, owner)
}

func (s *Sequence[O, T]) lazy(ctx context.Context, owner O) iter.Seq2[T, error] {
	c := owner.memoCache()
	cur := c.loadOrStore(s.name, func() any {
		next, stop := iter.Pull2(s.fn(ctx, owner))
		return &cursor[T]{next: next, stop: stop}
	}).(*cursor[T])

	return func(yield func(T, error) bool) {
		for {
			v, err, ok := cur.pull()
			if !ok {
				return
			}
			if err != nil {
				// a failed sequence is not kept, the next access starts over
				c.forgetValue(s.name, cur)
				cur.close()
				yield(v, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

func (s *Sequence[O, T]) materialized(ctx context.Context, owner O) iter.Seq2[T, error] {
	c := owner.memoCache()
	return func(yield func(T, error) bool) {
		if v, ok := c.load(s.name); ok {
			for _, item := range as[[]T](v) {
				if !yield(item, nil) {
					return
				}
			}
			return
		}

		// only a complete traversal is stored
		var items []T
		for item, err := range s.fn(ctx, owner) {
			if err != nil {
				yield(item, err)
				return
			}
			items = append(items, item)
			if !yield(item, nil) {
				return
			}
		}
		c.store(s.name, items)
	}
}

// cursor is the live state of a Lazy sequence shared by every traversal.
type cursor[T any] struct {
	mu   sync.Mutex
	next func() (T, error, bool)
	stop func()
	done bool
}

func (c *cursor[T]) pull() (T, error, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	if c.done {
		return zero, nil, false
	}
	v, err, ok := c.next()
	if !ok {
		c.done = true
		c.stop()
		return zero, nil, false
	}
	return v, err, true
}

func (c *cursor[T]) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.done {
		c.done = true
		c.stop()
	}
}
