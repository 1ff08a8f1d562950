package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %v, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d", c.Size())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](4, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	c.Set("other", "v")
	now = now.Add(30 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}
	now = now.Add(time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after expiry")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("Stats() = %d, %d", hits, misses)
	}
}

func TestLRUCachePurge(t *testing.T) {
	c := NewLRUCache[int](4, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Purge()
	if c.Size() != 0 {
		t.Errorf("Size() after purge = %d", c.Size())
	}
	c.Set("c", 3)
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Error("cache unusable after purge")
	}
}

func TestLoaderCollapsesConcurrentMisses(t *testing.T) {
	l := NewLoader[int](NewLRUCache[int](4, time.Minute))
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := l.Get(context.Background(), "k", func(context.Context) (int, error) {
				calls.Add(1)
				<-release
				return 42, nil
			})
			if err != nil {
				t.Error(err)
			}
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() > int32(len(results)) || calls.Load() < 1 {
		t.Errorf("unexpected load count %d", calls.Load())
	}
	for _, v := range results {
		if v != 42 {
			t.Errorf("got %d, want 42", v)
		}
	}

	// Served from cache now.
	v, _ := l.Get(context.Background(), "k", func(context.Context) (int, error) { return 0, errors.New("should not load") })
	if v != 42 {
		t.Errorf("expected cached value, got %d", v)
	}
}

func TestLoaderPurgeForcesReload(t *testing.T) {
	l := NewLoader[int](NewLRUCache[int](4, time.Minute))
	n := 0
	load := func(context.Context) (int, error) { n++; return n, nil }

	first, _ := l.Get(context.Background(), "k", load)
	l.Purge()
	second, _ := l.Get(context.Background(), "k", load)
	if first != 1 || second != 2 {
		t.Errorf("got %d then %d, want 1 then 2", first, second)
	}
}

func TestLoaderDoesNotCacheErrors(t *testing.T) {
	l := NewLoader[int](NewLRUCache[int](4, time.Minute))
	boom := errors.New("boom")
	if _, err := l.Get(context.Background(), "k", func(context.Context) (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("Get() error = %v", err)
	}
	v, err := l.Get(context.Background(), "k", func(context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Errorf("Get() = %d, %v", v, err)
	}
}

type countingCleaner struct{ n int }

func (c *countingCleaner) CleanExpired() int { c.n++; return 1 }

func TestManagerCleanAll(t *testing.T) {
	m := NewManager(nil)
	a, b := &countingCleaner{}, &countingCleaner{}
	m.Register(a)
	m.Register(b)
	if got := m.CleanAll(); got != 2 {
		t.Errorf("CleanAll() = %d", got)
	}
	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}

func TestLoaderSharedLoadSurvivesCanceledCaller(t *testing.T) {
	l := NewLoader[int](NewLRUCache[int](4, time.Minute))

	started := make(chan struct{})
	release := make(chan struct{})
	load := func(ctx context.Context) (int, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 42, nil
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := l.Get(firstCtx, "k", load)
		firstErr <- err
	}()
	<-started

	type result struct {
		v   int
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := l.Get(context.Background(), "k", func(context.Context) (int, error) {
			return 0, errors.New("second load must not run")
		})
		second <- result{v, err}
	}()

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("canceled caller error = %v, want context.Canceled", err)
	}

	// Give the second caller time to join the in-flight load.
	time.Sleep(20 * time.Millisecond)
	close(release)

	got := <-second
	if got.err != nil || got.v != 42 {
		t.Fatalf("live caller got %d, %v; want 42, nil", got.v, got.err)
	}
	if v, err := l.Get(context.Background(), "k", load); err != nil || v != 42 {
		t.Errorf("cached value = %d, %v", v, err)
	}
}
