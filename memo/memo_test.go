package memo_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquasecurity/dependency-check/memo"
)

type klass struct {
	memo.Cache
}

type item struct {
	Name   string
	Result any
}

var errSome = errors.New("AN ERROR OCCURRED")

func collect[T any](t *testing.T, seq iter.Seq2[T, error]) []T {
	t.Helper()
	var got []T
	for v, err := range seq {
		require.NoError(t, err)
		got = append(got, v)
	}
	return got
}

func TestProperty(t *testing.T) {
	caches := []struct {
		name   string
		opts   []memo.Option
		cached bool
	}{
		{name: "default"},
		{name: "cached", opts: []memo.Option{memo.Cached()}, cached: true},
		{name: "cache toggled off", opts: []memo.Option{memo.WithCache(false)}},
		{name: "cache toggled on", opts: []memo.Option{memo.WithCache(true)}, cached: true},
	}
	items := []string{"ITEM0", "ITEM1", "ITEM2", "ITEM3", "ITEM4"}

	for _, c := range caches {
		for _, raises := range []bool{true, false} {
			for _, result := range []any{nil, false, "X", 23} {
				name := fmt.Sprintf("%s raises=%t result=%v", c.name, raises, result)
				t.Run(name, func(t *testing.T) {
					var calls int
					prop := memo.NewProperty("prop", "This prop deserves some docs.",
						func(ctx context.Context, k *klass) (any, error) {
							calls++
							if raises {
								return nil, errSome
							}
							return result, nil
						}, c.opts...)
					iterProp := memo.NewSequence("iter_prop", "This prop also deserves some docs.",
						func(ctx context.Context, k *klass) iter.Seq2[item, error] {
							return func(yield func(item, error) bool) {
								calls++
								if raises {
									yield(item{}, errSome)
									return
								}
								for _, i := range items {
									if !yield(item{Name: i, Result: result}, nil) {
										return
									}
								}
							}
						}, c.opts...)

					assert.Equal(t, "prop", prop.Name())
					assert.Equal(t, "This prop deserves some docs.", prop.Doc())
					assert.Equal(t, "iter_prop", iterProp.Name())
					assert.Equal(t, memo.CacheName, prop.CacheName())
					assert.Equal(t, memo.CacheName, iterProp.CacheName())

					k := &klass{}
					ctx := context.Background()

					if raises {
						_, err := prop.Get(ctx, k)
						assert.ErrorIs(t, err, errSome)

						var iterErr error
						for _, err := range iterProp.All(ctx, k) {
							iterErr = err
						}
						assert.ErrorIs(t, iterErr, errSome)
						assert.Equal(t, 2, calls)
						assert.False(t, memo.IsCached(k, "prop"))
						assert.False(t, memo.IsCached(k, "iter_prop"))
						return
					}

					// results can be repeatedly fetched
					got, err := prop.Get(ctx, k)
					require.NoError(t, err)
					assert.Equal(t, result, got)
					got, err = prop.Get(ctx, k)
					require.NoError(t, err)
					assert.Equal(t, result, got)

					// and repeatedly iterated
					results1 := collect(t, iterProp.All(ctx, k))
					var want []item
					for _, i := range items {
						want = append(want, item{Name: i, Result: result})
					}
					assert.Equal(t, want, results1)
					results2 := collect(t, iterProp.All(ctx, k))

					if !c.cached {
						assert.Equal(t, results1, results2)
						assert.Equal(t, 4, calls)
						assert.Empty(t, k.Names())
						return
					}

					// the computation still only ran once
					got, err = prop.Get(ctx, k)
					require.NoError(t, err)
					assert.Equal(t, result, got)
					assert.Equal(t, 2, calls)
					assert.Equal(t, []string{"iter_prop", "prop"}, k.Names())

					// cached sequences are exhausted after the first traversal
					assert.Empty(t, results2)
				})
			}
		}
	}
}

func TestAbstract(t *testing.T) {
	ctx := context.Background()
	for _, opts := range [][]memo.Option{nil, {memo.Cached()}} {
		prop := memo.Abstract[*klass, int]("prop", "An abstract prop.", opts...)
		seq := memo.AbstractSequence[*klass, int]("iface_prop", "An abstract sequence.", opts...)
		assert.True(t, prop.IsAbstract())
		assert.True(t, seq.IsAbstract())

		k := &klass{}
		_, err := prop.Get(ctx, k)
		assert.ErrorIs(t, err, memo.ErrNotImplemented)
		var nie *memo.NotImplementedError
		require.ErrorAs(t, err, &nie)
		assert.Equal(t, "prop", nie.Name)
		assert.EqualError(t, err, "prop: abstract property must be implemented")

		for _, err := range seq.All(ctx, k) {
			assert.ErrorIs(t, err, memo.ErrNotImplemented)
		}
		assert.False(t, memo.IsCached(k, "prop"))

		impl := prop.Implement(func(ctx context.Context, k *klass) (int, error) {
			return 7, nil
		})
		assert.False(t, impl.IsAbstract())
		assert.True(t, prop.IsAbstract())
		got, err := impl.Get(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, 7, got)

		seqImpl := seq.Implement(func(ctx context.Context, k *klass) iter.Seq2[int, error] {
			return func(yield func(int, error) bool) {
				yield(1, nil)
			}
		})
		assert.Equal(t, []int{1}, collect(t, seqImpl.All(ctx, k)))
	}
}

func TestIsCached(t *testing.T) {
	ctx := context.Background()
	var value any
	foo := memo.NewProperty("FOO", "", func(ctx context.Context, k *klass) (any, error) {
		return value, nil
	}, memo.Cached())
	bar := memo.NewProperty("BAR", "", func(ctx context.Context, k *klass) (int, error) {
		return 7, nil
	}, memo.Cached())

	k := &klass{}
	assert.False(t, memo.IsCached(k, "FOO"))

	_, err := bar.Get(ctx, k)
	require.NoError(t, err)
	assert.False(t, memo.IsCached(k, "FOO"))

	// a nil value is still cached
	_, err = foo.Get(ctx, k)
	require.NoError(t, err)
	assert.True(t, memo.IsCached(k, "FOO"))

	k.Forget("FOO")
	assert.False(t, memo.IsCached(k, "FOO"))
	assert.True(t, memo.IsCached(k, "BAR"))

	value = 23
	got, err := foo.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, 23, got)
	assert.True(t, memo.IsCached(k, "FOO"))

	k.Reset()
	assert.False(t, memo.IsCached(k, "FOO"))
	assert.False(t, memo.IsCached(k, "BAR"))
	assert.Empty(t, k.Names())
}

func TestProperty_Instances(t *testing.T) {
	ctx := context.Background()
	prop := memo.NewProperty("id", "", func(ctx context.Context, k *named) (string, error) {
		return k.name, nil
	}, memo.Cached())

	a, b := &named{name: "a"}, &named{name: "b"}
	var wg sync.WaitGroup
	for _, k := range []*named{a, b, a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := prop.Get(ctx, k)
			assert.NoError(t, err)
			assert.Equal(t, k.name, got)
		}()
	}
	wg.Wait()
}

type named struct {
	memo.Cache
	name string
}

func TestProperty_Concurrent(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	release := make(chan struct{})
	prop := memo.NewProperty("slow", "", func(ctx context.Context, k *klass) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}, memo.Cached())

	k := &klass{}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := prop.Get(ctx, k)
			assert.NoError(t, err)
			assert.Equal(t, 42, got)
		}()
	}
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestProperty_ErrorNotCached(t *testing.T) {
	ctx := context.Background()
	var calls int
	prop := memo.NewProperty("flaky", "", func(ctx context.Context, k *klass) (int, error) {
		calls++
		if calls == 1 {
			return 0, errSome
		}
		return calls, nil
	}, memo.Cached())

	k := &klass{}
	_, err := prop.Get(ctx, k)
	require.ErrorIs(t, err, errSome)
	assert.False(t, memo.IsCached(k, "flaky"))

	got, err := prop.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
	got, err = prop.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

func countingSeq(calls *int, n int) memo.SeqFunc[*klass, int] {
	return func(ctx context.Context, k *klass) iter.Seq2[int, error] {
		return func(yield func(int, error) bool) {
			*calls++
			for i := 0; i < n; i++ {
				if !yield(i, nil) {
					return
				}
			}
		}
	}
}

func TestSequence_Lazy(t *testing.T) {
	ctx := context.Background()
	var calls int
	seq := memo.NewSequence("numbers", "", countingSeq(&calls, 5), memo.WithMode(memo.Lazy))
	assert.Equal(t, memo.Lazy, seq.Mode())

	k := &klass{}
	var first []int
	for v, err := range seq.All(ctx, k) {
		require.NoError(t, err)
		first = append(first, v)
		if len(first) == 2 {
			break
		}
	}
	assert.Equal(t, []int{0, 1}, first)

	// the next traversal resumes the same cursor
	assert.Equal(t, []int{2, 3, 4}, collect(t, seq.All(ctx, k)))
	assert.Empty(t, collect(t, seq.All(ctx, k)))
	assert.Equal(t, 1, calls)

	k.Forget("numbers")
	assert.Equal(t, []int{0, 1, 2, 3, 4}, collect(t, seq.All(ctx, k)))
	assert.Equal(t, 2, calls)
}

func TestSequence_LazyError(t *testing.T) {
	ctx := context.Background()
	var calls int
	seq := memo.NewSequence("failing", "", func(ctx context.Context, k *klass) iter.Seq2[int, error] {
		return func(yield func(int, error) bool) {
			calls++
			if !yield(1, nil) {
				return
			}
			if calls == 1 {
				yield(0, errSome)
				return
			}
			yield(2, nil)
		}
	}, memo.Cached())

	k := &klass{}
	var got []int
	var gotErr error
	for v, err := range seq.All(ctx, k) {
		if err != nil {
			gotErr = err
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{1}, got)
	assert.ErrorIs(t, gotErr, errSome)
	assert.False(t, memo.IsCached(k, "failing"))

	assert.Equal(t, []int{1, 2}, collect(t, seq.All(ctx, k)))
	assert.Equal(t, 2, calls)
}

func TestSequence_Materialized(t *testing.T) {
	ctx := context.Background()
	var calls int
	seq := memo.NewSequence("numbers", "", countingSeq(&calls, 3), memo.WithMode(memo.Materialized))

	k := &klass{}
	// an incomplete traversal is not stored
	for range seq.All(ctx, k) {
		break
	}
	assert.False(t, memo.IsCached(k, "numbers"))

	assert.Equal(t, []int{0, 1, 2}, collect(t, seq.All(ctx, k)))
	assert.Equal(t, []int{0, 1, 2}, collect(t, seq.All(ctx, k)))
	assert.True(t, memo.IsCached(k, "numbers"))
	assert.Equal(t, 2, calls)
}

func TestCacheName(t *testing.T) {
	field, ok := reflect.TypeOf((*klass)(nil)).Elem().FieldByName(memo.CacheName)
	require.True(t, ok)
	assert.True(t, field.Anonymous)
	assert.Equal(t, reflect.TypeOf((*memo.Cache)(nil)).Elem(), field.Type)
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "uncached", memo.Uncached.String())
	assert.Equal(t, "lazy", memo.Lazy.String())
	assert.Equal(t, "materialized", memo.Materialized.String())
}
