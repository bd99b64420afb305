package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeSource returns queued results in order; the last one repeats.
type fakeSource struct {
	mu      sync.Mutex
	results []fakeResult
	calls   atomic.Int32
	block   chan struct{}
}

type fakeResult struct {
	entries []Entry
	err     error
}

func (f *fakeSource) FetchCatalog(ctx context.Context) ([]Entry, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.entries, r.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func entriesNamed(name string) []Entry {
	return []Entry{{Name: name, BaseIDs: []int{1}, Prices: Branch(nil)}}
}

func TestCacheServesFreshSnapshot(t *testing.T) {
	source := &fakeSource{results: []fakeResult{{entries: entriesNamed("first")}}}
	clock := &fakeClock{now: testTime}
	cache := NewCache(source, CacheOptions{Freshness: 5 * time.Minute, Now: clock.Now})

	first, err := cache.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	clock.Advance(4 * time.Minute)
	second, err := cache.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if first.Snapshot != second.Snapshot {
		t.Error("Expected the same snapshot within the freshness window")
	}
	if source.calls.Load() != 1 {
		t.Errorf("Expected 1 remote call, got %d", source.calls.Load())
	}

	clock.Advance(time.Minute)
	third, err := cache.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if third.Snapshot == first.Snapshot || third.Snapshot.Version != 2 {
		t.Errorf("Expected a new snapshot with version 2, got version %d", third.Snapshot.Version)
	}
}

func TestCacheStaleServingAfterFailures(t *testing.T) {
	fetchErr := errors.New("connection refused")
	source := &fakeSource{results: []fakeResult{
		{entries: entriesNamed("good")},
		{err: fetchErr},
		{err: fetchErr},
		{entries: entriesNamed("newer")},
	}}
	clock := &fakeClock{now: testTime}

	var failureCounts []int
	var recovered int
	cache := NewCache(source, CacheOptions{
		Freshness:    5 * time.Minute,
		Now:          clock.Now,
		OnFetchError: func(err error, consecutive int) { failureCounts = append(failureCounts, consecutive) },
		OnRecover:    func(snap *Snapshot, failures int) { recovered = failures },
	})

	good, err := cache.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Initial fetch failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		clock.Advance(6 * time.Minute)
		res, err := cache.Fetch(context.Background())
		if err != nil {
			t.Fatalf("Fetch %d should serve stale data, got error %v", i+1, err)
		}
		if !res.Stale {
			t.Errorf("Fetch %d: expected stale result", i+1)
		}
		if !errors.Is(res.Warning, ErrFetchFailed) || !errors.Is(res.Warning, fetchErr) {
			t.Errorf("Fetch %d: expected warning wrapping ErrFetchFailed and cause, got %v", i+1, res.Warning)
		}
		if res.Snapshot != good.Snapshot {
			t.Errorf("Fetch %d: expected the last good snapshot", i+1)
		}
	}

	clock.Advance(6 * time.Minute)
	res, err := cache.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Third fetch failed: %v", err)
	}
	if res.Stale || res.Warning != nil {
		t.Error("Expected a clean result after recovery")
	}
	if res.Snapshot.Entries[0].Name != "newer" {
		t.Errorf("Expected replaced snapshot, got %s", res.Snapshot.Entries[0].Name)
	}
	if good.Snapshot.Entries[0].Name != "good" {
		t.Error("Previously served snapshot was mutated")
	}

	if len(failureCounts) != 2 || failureCounts[0] != 1 || failureCounts[1] != 2 {
		t.Errorf("Expected failure hooks [1 2], got %v", failureCounts)
	}
	if recovered != 2 {
		t.Errorf("Expected recovery after 2 failures, got %d", recovered)
	}
}

func TestCacheUnavailableWithoutSnapshot(t *testing.T) {
	source := &fakeSource{results: []fakeResult{{err: errors.New("dns failure")}}}
	cache := NewCache(source, CacheOptions{})

	_, err := cache.Fetch(context.Background())
	if !errors.Is(err, ErrCatalogUnavailable) {
		t.Errorf("Expected ErrCatalogUnavailable, got %v", err)
	}
	if cache.Current() != nil {
		t.Error("Expected no snapshot")
	}
}

func TestCacheInvalidate(t *testing.T) {
	source := &fakeSource{results: []fakeResult{
		{entries: entriesNamed("first")},
		{entries: entriesNamed("second")},
	}}
	cache := NewCache(source, CacheOptions{Freshness: time.Hour})

	if _, err := cache.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	cache.Invalidate()
	res, err := cache.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.Snapshot.Entries[0].Name != "second" {
		t.Errorf("Expected invalidate to force a refetch, got %s", res.Snapshot.Entries[0].Name)
	}

	// Back inside the freshness window.
	if _, err := cache.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if source.calls.Load() != 2 {
		t.Errorf("Expected 2 remote calls, got %d", source.calls.Load())
	}
}

func TestCacheInvalidateDuringRefresh(t *testing.T) {
	source := &fakeSource{
		results: []fakeResult{
			{entries: entriesNamed("before")},
			{entries: entriesNamed("after")},
		},
		block: make(chan struct{}),
	}
	cache := NewCache(source, CacheOptions{Freshness: time.Hour})

	done := make(chan Result, 1)
	go func() {
		res, err := cache.Fetch(context.Background())
		if err != nil {
			t.Errorf("Fetch failed: %v", err)
		}
		done <- res
	}()

	deadline := time.Now().Add(time.Second)
	for source.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Remote fetch never started")
		}
		time.Sleep(time.Millisecond)
	}

	cache.Invalidate()
	close(source.block)
	if res := <-done; res.Snapshot == nil || res.Snapshot.Entries[0].Name != "before" {
		t.Fatalf("Unexpected in-flight result %+v", res)
	}

	res, err := cache.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.Snapshot.Entries[0].Name != "after" {
		t.Errorf("Expected invalidate during refresh to force another fetch, got %s", res.Snapshot.Entries[0].Name)
	}
	if source.calls.Load() != 2 {
		t.Errorf("Expected 2 remote calls, got %d", source.calls.Load())
	}
}

func TestCacheSingleFlight(t *testing.T) {
	source := &fakeSource{
		results: []fakeResult{{entries: entriesNamed("shared")}},
		block:   make(chan struct{}),
	}
	cache := NewCache(source, CacheOptions{})

	const callers = 10
	var wg sync.WaitGroup
	snapshots := make([]*Snapshot, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := cache.Fetch(context.Background())
			if err != nil {
				t.Errorf("Fetch failed: %v", err)
				return
			}
			snapshots[i] = res.Snapshot
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(source.block)
	wg.Wait()

	if source.calls.Load() != 1 {
		t.Errorf("Expected 1 remote call, got %d", source.calls.Load())
	}
	for i, s := range snapshots {
		if s != snapshots[0] {
			t.Errorf("Caller %d got a different snapshot", i)
		}
	}
}

func TestCacheCallerCancellation(t *testing.T) {
	source := &fakeSource{
		results: []fakeResult{{entries: entriesNamed("slow")}},
		block:   make(chan struct{}),
	}
	cache := NewCache(source, CacheOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := cache.Fetch(ctx)
	if !errors.Is(err, ErrCatalogUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected unavailable wrapping deadline exceeded, got %v", err)
	}

	// The shared fetch still completes for later callers.
	close(source.block)
	res, err := cache.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch after cancellation failed: %v", err)
	}
	if res.Snapshot.Entries[0].Name != "slow" {
		t.Errorf("Unexpected snapshot %s", res.Snapshot.Entries[0].Name)
	}
}
