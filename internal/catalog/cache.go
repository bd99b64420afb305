package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rewired-gh/skupricer/internal/logger"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrCatalogUnavailable means no fetch has ever succeeded and the latest one failed.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	// ErrFetchFailed marks a failed refresh that was absorbed by serving the last snapshot.
	ErrFetchFailed = errors.New("catalog fetch failed")
)

// DefaultFreshness is used when CacheOptions.Freshness is not set.
const DefaultFreshness = 5 * time.Minute

const flightKey = "catalog"

// Source fetches the full catalog.
type Source interface {
	FetchCatalog(ctx context.Context) ([]Entry, error)
}

// CacheOptions configures a Cache.
type CacheOptions struct {
	Freshness time.Duration
	// OnFetchError is called once per failed remote fetch with the number of
	// consecutive failures so far.
	OnFetchError func(err error, consecutive int)
	// OnRecover is called on the first success after one or more failures.
	OnRecover func(snap *Snapshot, failures int)
	Now       func() time.Time
}

// Result is what Fetch hands back. Warning is set, wrapping ErrFetchFailed, when
// Snapshot is stale because the refresh failed.
type Result struct {
	Snapshot *Snapshot
	Stale    bool
	Warning  error
}

// Cache holds the current catalog snapshot and refreshes it when it ages out.
type Cache struct {
	source Source
	opts   CacheOptions
	group  singleflight.Group

	version atomic.Uint64

	mu       sync.RWMutex
	current  *Snapshot
	forced   bool
	failures int
	// generation counts Invalidate calls; a refresh only clears forced if none
	// happened while it was in flight.
	generation uint64
}

// NewCache creates a cache over source.
func NewCache(source Source, opts CacheOptions) *Cache {
	if opts.Freshness <= 0 {
		opts.Freshness = DefaultFreshness
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		source: source,
		opts:   opts,
	}
}

// Fetch returns the cached snapshot while it is fresh, otherwise refreshes it.
// Concurrent callers share one remote fetch. A caller whose ctx ends while waiting
// is treated as a failed fetch.
func (c *Cache) Fetch(ctx context.Context) (Result, error) {
	c.mu.RLock()
	snap, forced := c.current, c.forced
	c.mu.RUnlock()

	if snap != nil && !forced && snap.Age(c.opts.Now()) < c.opts.Freshness {
		return Result{Snapshot: snap}, nil
	}

	// The shared fetch must not die with whichever caller started it.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		return c.refresh(flightCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return c.fallback(res.Err)
		}
		return Result{Snapshot: res.Val.(*Snapshot)}, nil
	case <-ctx.Done():
		return c.fallback(ctx.Err())
	}
}

// Invalidate makes the next Fetch bypass the freshness window.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.forced = true
	c.generation++
	c.mu.Unlock()
}

// Current returns the held snapshot without fetching. It is nil before the first success.
func (c *Cache) Current() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *Cache) refresh(ctx context.Context) (*Snapshot, error) {
	c.mu.RLock()
	generation := c.generation
	c.mu.RUnlock()

	start := c.opts.Now()
	entries, err := c.source.FetchCatalog(ctx)
	if err != nil {
		c.mu.Lock()
		c.failures++
		failures := c.failures
		held := c.current != nil
		c.mu.Unlock()

		if held {
			logger.Warn("Catalog fetch failed (%d in a row), serving last snapshot: %v", failures, err)
		} else {
			logger.Error("Catalog fetch failed (%d in a row), no snapshot held: %v", failures, err)
		}
		if c.opts.OnFetchError != nil {
			c.opts.OnFetchError(err, failures)
		}
		return nil, err
	}

	snap := NewSnapshot(entries, c.opts.Now(), c.version.Add(1))

	c.mu.Lock()
	c.current = snap
	if c.generation == generation {
		c.forced = false
	}
	failures := c.failures
	c.failures = 0
	c.mu.Unlock()

	logger.Info("Catalog refreshed: %d entries, %d base ids (version %d, %v)",
		len(snap.Entries), len(snap.Index), snap.Version, snap.FetchedAt.Sub(start))
	if failures > 0 && c.opts.OnRecover != nil {
		c.opts.OnRecover(snap, failures)
	}
	return snap, nil
}

func (c *Cache) fallback(cause error) (Result, error) {
	snap := c.Current()
	if snap == nil {
		return Result{}, fmt.Errorf("%w: %w", ErrCatalogUnavailable, cause)
	}
	return Result{
		Snapshot: snap,
		Stale:    true,
		Warning:  fmt.Errorf("%w: %w", ErrFetchFailed, cause),
	}, nil
}
