package memo

import (
	"context"
)

// Func computes a single value for owner.
type Func[O Owner, T any] func(ctx context.Context, owner O) (T, error)

// Property is a named, lazily computed value of an owner.
//
// Without caching every Get invokes the computation. With caching the first
// successful result is stored in the owner's Cache under the property name
// and returned by every later Get; failures are not stored, so the next Get
// tries again. Concurrent first accesses on one owner share one computation.
type Property[O Owner, T any] struct {
	name  string
	doc   string
	fn    Func[O, T]
	cache bool
}

// NewProperty declares a property computed by fn.
func NewProperty[O Owner, T any](name, doc string, fn Func[O, T], opts ...Option) *Property[O, T] {
	o := newOptions(opts)
	return &Property[O, T]{
		name:  name,
		doc:   doc,
		fn:    fn,
		cache: o.cache,
	}
}

// Abstract declares a property without an implementation. Get fails with a
// NotImplementedError until Implement supplies one.
func Abstract[O Owner, T any](name, doc string, opts ...Option) *Property[O, T] {
	return NewProperty[O, T](name, doc, nil, opts...)
}

// Implement returns a copy of p computed by fn.
func (p *Property[O, T]) Implement(fn Func[O, T]) *Property[O, T] {
	impl := *p
	impl.fn = fn
	return &impl
}

// Name is the name of the wrapped computation, also its cache key.
func (p *Property[O, T]) Name() string { return p.name }

// Doc is the documentation of the wrapped computation.
func (p *Property[O, T]) Doc() string { return p.doc }

// CacheName is the field name of the owner's embedded Cache.
func (p *Property[O, T]) CacheName() string { return CacheName }

// IsAbstract reports whether the property lacks an implementation.
func (p *Property[O, T]) IsAbstract() bool { return p.fn == nil }

// IsCached reports whether the property caches its value.
func (p *Property[O, T]) IsCached() bool { return p.cache }

// Get returns the value of the property for owner.
func (p *Property[O, T]) Get(ctx context.Context, owner O) (T, error) {
	var zero T
	if p.fn == nil {
		return zero, &NotImplementedError{Name: p.name}
	}
	if !p.cache {
		return p.fn(ctx, owner)
	}

	c := owner.memoCache()
	if v, ok := c.load(p.name); ok {
		return as[T](v), nil
	}
	v, err, _ := c.flight.Do(p.name, func() (any, error) {
		if v, ok := c.load(p.name); ok {
			return v, nil
		}
		v, err := p.fn(ctx, owner)
		if err != nil {
			return nil, err
		}
		c.store(p.name, v)
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	return as[T](v), nil
}
