// Package reqcache coalesces identical outbound requests. At most one
// execution per request key is in flight; completed responses are reused
// until their TTL expires.
package reqcache

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/singleflight"

	"metasearch/packages/metrics"
	"metasearch/packages/request"
)

type Options struct {
	TTL           time.Duration
	SweepInterval time.Duration
	// FetchTimeout bounds the shared execution, independent of any one waiter.
	FetchTimeout time.Duration
	RetryDelay   time.Duration
}

type entry struct {
	resp     *request.Response
	storedAt time.Time
}

type Cache struct {
	opts Options
	now  func() time.Time

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[request.Key]entry

	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 250 * time.Millisecond
	}

	c := &Cache{
		opts:    opts,
		now:     time.Now,
		entries: make(map[request.Key]entry),
		stop:    make(chan struct{}),
	}
	if opts.SweepInterval > 0 {
		c.wg.Add(1)
		go c.janitor(opts.SweepInterval)
	}
	return c
}

// Cacheable reports whether a completed response may be reused.
type Cacheable func(resp *request.Response) bool

// Successful keeps responses below 400.
func Successful(resp *request.Response) bool {
	return resp.StatusCode < http.StatusBadRequest
}

// Coalesce returns the cached response for req, joins an identical in-flight
// execution, or starts one. Only Successful responses are stored.
func (c *Cache) Coalesce(ctx context.Context, req *request.Request, exec request.Executor) (*request.Response, error) {
	return c.CoalesceIf(ctx, req, exec, nil)
}

// CoalesceIf is Coalesce with an extra check on the fetched response: it is
// stored only when it is Successful and cacheable accepts it. Waiters share
// the same *Response and must not modify it. A waiter whose ctx ends stops
// waiting; the execution itself continues for the others.
func (c *Cache) CoalesceIf(ctx context.Context, req *request.Request, exec request.Executor, cacheable Cacheable) (*request.Response, error) {
	key := req.Key()
	if resp, ok := c.lookup(key); ok {
		metrics.RequestCache.WithLabelValues("hit").Inc()
		return resp, nil
	}

	ch := c.group.DoChan(string(key), func() (any, error) {
		if resp, ok := c.lookup(key); ok {
			return resp, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.FetchTimeout)
		defer cancel()

		resp, err := c.execute(fetchCtx, req, exec)
		if err != nil {
			return nil, err
		}
		if Successful(resp) && (cacheable == nil || cacheable(resp)) {
			c.store(key, resp)
		}
		return resp, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.RequestCache.WithLabelValues("shared").Inc()
		} else {
			metrics.RequestCache.WithLabelValues("miss").Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*request.Response), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Wrap returns an Executor that routes every request through the cache.
func (c *Cache) Wrap(exec request.Executor) request.Executor {
	return request.ExecutorFunc(func(ctx context.Context, req *request.Request) (*request.Response, error) {
		return c.Coalesce(ctx, req, exec)
	})
}

// execute retries a transport error once. Failures are never stored.
func (c *Cache) execute(ctx context.Context, req *request.Request, exec request.Executor) (*request.Response, error) {
	return retry.DoWithData(
		func() (*request.Response, error) {
			return exec.Execute(ctx, req)
		},
		retry.Attempts(2),
		retry.Delay(c.opts.RetryDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Retrying outbound request", "indexer", req.Indexer, "url", req.URL, "attempt", n+1, "error", err)
		}),
	)
}

func (c *Cache) lookup(key request.Key) (*request.Response, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.expired(e) {
		return nil, false
	}
	return e.resp, true
}

func (c *Cache) store(key request.Key, resp *request.Response) {
	c.mu.Lock()
	c.entries[key] = entry{resp: resp, storedAt: c.now()}
	c.mu.Unlock()
}

// Forget drops the stored response for req, if any.
func (c *Cache) Forget(req *request.Request) {
	c.mu.Lock()
	delete(c.entries, req.Key())
	c.mu.Unlock()
}

func (c *Cache) expired(e entry) bool {
	return c.now().Sub(e.storedAt) >= c.opts.TTL
}

// Sweep evicts expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) janitor(interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				slog.Debug("Evicted expired cache entries", "count", n)
			}
		case <-c.stop:
			return
		}
	}
}

// Close stops the janitor. The cache stays usable.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
	c.wg.Wait()
}
