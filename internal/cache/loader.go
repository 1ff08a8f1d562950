package cache

import (
	"context"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Loader fills a cache on demand. Concurrent misses for one key share a
// single load.
type Loader[T any] struct {
	cache Cache[T]
	group singleflight.Group
	// gen is bumped by Purge; loads started before a purge are not stored.
	gen atomic.Uint64
}

// NewLoader creates a loader backed by c.
func NewLoader[T any](c Cache[T]) *Loader[T] {
	return &Loader[T]{cache: c}
}

// Get returns the cached value for key or runs load to produce it.
//
// The shared load runs with a context that keeps ctx's values but not its
// cancellation, so one caller going away does not fail the others. Each
// caller still stops waiting when its own ctx is done.
func (l *Loader[T]) Get(ctx context.Context, key string, load func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}
	gen := l.gen.Load()
	ch := l.group.DoChan(strconv.FormatUint(gen, 10)+"/"+key, func() (any, error) {
		v, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		if l.gen.Load() == gen {
			l.cache.Set(key, v)
		}
		return v, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Purge invalidates every cached value. Loads already running finish but
// their results are not cached, and later callers start a fresh load.
func (l *Loader[T]) Purge() {
	l.gen.Add(1)
	l.cache.Purge()
}
