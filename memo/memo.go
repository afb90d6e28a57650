// Package memo exposes expensive computations (network round trips, derived
// data) as lazily evaluated properties of an owning object, optionally cached
// on that object.
package memo

import (
	"fmt"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/singleflight"
	"golang.org/x/xerrors"
)

// CacheName is the field name of the Cache embedded in every owner, where
// all properties store their values.
const CacheName = "Cache"

// ErrNotImplemented is matched by errors returned from abstract properties.
var ErrNotImplemented = xerrors.New("not implemented")

// NotImplementedError is returned when an abstract property is accessed before
// a concrete implementation was supplied.
type NotImplementedError struct {
	Name string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("%s: abstract property must be implemented", e.Name)
}

func (e *NotImplementedError) Is(target error) bool {
	return target == ErrNotImplemented
}

// Owner is implemented by any struct embedding Cache.
type Owner interface {
	memoCache() *Cache
}

// Cache holds the memoized values of a single owner. Embed it (by value) into
// a struct to make that struct an Owner. The zero value is ready to use and
// is never shared between instances.
type Cache struct {
	mu     sync.Mutex
	values map[string]any
	flight singleflight.Group
}

func (c *Cache) memoCache() *Cache {
	return c
}

type closer interface {
	close()
}

func (c *Cache) load(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[name]
	return v, ok
}

func (c *Cache) store(name string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[name] = v
}

func (c *Cache) loadOrStore(name string, mk func() any) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.values[name]; ok {
		return v
	}
	if c.values == nil {
		c.values = make(map[string]any)
	}
	v := mk()
	c.values[name] = v
	return v
}

// forgetValue removes name only while it still holds v.
func (c *Cache) forgetValue(name string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.values[name]; ok && cur == v {
		delete(c.values, name)
	}
}

// Forget removes a single cached entry. The next access recomputes it.
func (c *Cache) Forget(name string) {
	c.mu.Lock()
	v, ok := c.values[name]
	delete(c.values, name)
	c.mu.Unlock()
	if cl, isCloser := v.(closer); ok && isCloser {
		cl.close()
	}
}

// Reset drops every cached entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	values := c.values
	c.values = nil
	c.mu.Unlock()
	for _, v := range values {
		if cl, ok := v.(closer); ok {
			cl.close()
		}
	}
}

// Names returns the sorted names of the cached entries.
func (c *Cache) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := maps.Keys(c.values)
	slices.Sort(names)
	return names
}

// IsCached reports whether name is present in owner's cache, regardless of
// the cached value being a zero value.
func IsCached(owner Owner, name string) bool {
	_, ok := owner.memoCache().load(name)
	return ok
}

// Mode selects how a Sequence caches its elements.
type Mode int

const (
	// Uncached re-invokes the computation on every access.
	Uncached Mode = iota
	// Lazy caches the live sequence. Later traversals continue where the
	// previous one stopped and see nothing once it is exhausted.
	Lazy
	// Materialized collects the first complete traversal and replays it.
	Materialized
)

func (m Mode) String() string {
	switch m {
	case Lazy:
		return "lazy"
	case Materialized:
		return "materialized"
	}
	return "uncached"
}

type options struct {
	cache   bool
	mode    Mode
	modeSet bool
}

// Option configures a Property or Sequence when it is declared.
type Option func(*options)

// Cached enables caching. Sequences cache in Lazy mode.
func Cached() Option {
	return WithCache(true)
}

// WithCache toggles caching, typically from a configuration value.
func WithCache(enabled bool) Option {
	return func(o *options) {
		o.cache = enabled
		if !enabled {
			o.mode, o.modeSet = Uncached, true
		}
	}
}

// WithMode sets the caching mode of a Sequence explicitly.
func WithMode(mode Mode) Option {
	return func(o *options) {
		o.mode, o.modeSet = mode, true
		o.cache = mode != Uncached
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if !o.modeSet && o.cache {
		o.mode = Lazy
	}
	return o
}

// as converts a cached value back to T; a nil interface yields the zero value.
func as[T any](v any) T {
	t, _ := v.(T)
	return t
}
