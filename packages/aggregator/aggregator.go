// Package aggregator fans one query out to many indexers and merges what comes back.
package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"metasearch/packages/definition"
	"metasearch/packages/domain"
	"metasearch/packages/engine"
	"metasearch/packages/metrics"
	"metasearch/packages/query"
)

// Searcher runs one recipe. *engine.Engine satisfies it.
type Searcher interface {
	Search(ctx context.Context, def *definition.Definition, q query.Query) (engine.Result, error)
}

type Registry interface {
	Get(id string) (*definition.Definition, bool)
	All() []*definition.Definition
}

// StatusRecorder keeps the latest status of every indexer.
type StatusRecorder interface {
	Record(ctx context.Context, statuses []domain.Status) error
}

type Options struct {
	MaxWorkers int
	Timeout    time.Duration
}

type Aggregator struct {
	searcher Searcher
	registry Registry
	recorder StatusRecorder
	opts     Options
	now      func() time.Time
}

// Response always carries one status per requested indexer, whatever happened
// to the others.
type Response struct {
	Releases []domain.Release
	Statuses map[string]domain.Status
}

func New(searcher Searcher, registry Registry, recorder StatusRecorder, opts Options) *Aggregator {
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	return &Aggregator{
		searcher: searcher,
		registry: registry,
		recorder: recorder,
		opts:     opts,
		now:      time.Now,
	}
}

// collector gathers results in completion order. Once closed it ignores
// indexers that report after the deadline.
type collector struct {
	mu       sync.Mutex
	releases []domain.Release
	statuses map[string]domain.Status
	closed   bool
}

func (c *collector) add(st domain.Status, releases []domain.Release) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.statuses[st.Indexer] = st
	c.releases = append(c.releases, releases...)
}

// Search queries the given indexers, or every registered one when ids is
// empty. It never fails as a whole: failures, unknown ids, indexers that
// cannot serve q and indexers still running at the deadline are reported in
// Response.Statuses. Only indexers that were searched reach the recorder.
func (a *Aggregator) Search(ctx context.Context, q query.Query, ids []string) Response {
	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	candidates, missing := a.resolve(ids)
	c := &collector{statuses: make(map[string]domain.Status, len(candidates)+len(missing))}
	for _, id := range missing {
		c.statuses[id] = domain.Status{
			Indexer: id,
			Code:    domain.StatusNotConfigured,
			Message: "no such indexer",
			At:      a.now(),
		}
	}
	defs := make([]*definition.Definition, 0, len(candidates))
	for _, def := range candidates {
		if err := def.Serves(q); err != nil {
			slog.Debug("Skipping indexer", "indexer", def.ID, "reason", err)
			c.statuses[def.ID] = domain.Status{
				Indexer: def.ID,
				Code:    domain.StatusUnsupported,
				Message: err.Error(),
				At:      a.now(),
			}
			continue
		}
		defs = append(defs, def)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(a.opts.MaxWorkers)
		for _, def := range defs {
			def := def // per-iteration copy; module targets go 1.21 loop semantics
			g.Go(func() error {
				a.searchOne(gCtx, def, q, c)
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Aggregate search deadline reached", "timeout", a.opts.Timeout)
	}

	c.mu.Lock()
	c.closed = true
	for _, def := range defs {
		if _, ok := c.statuses[def.ID]; ok {
			continue
		}
		c.statuses[def.ID] = domain.Status{
			Indexer:  def.ID,
			Code:     domain.StatusTimedOut,
			Message:  "no answer before the search deadline",
			Duration: a.opts.Timeout,
			At:       a.now(),
		}
		metrics.IndexerSearches.WithLabelValues(def.ID, string(domain.StatusTimedOut)).Inc()
	}
	resp := Response{Releases: c.releases, Statuses: c.statuses}
	c.mu.Unlock()

	a.record(ctx, defs, resp.Statuses)
	slog.Info("Aggregate search finished", "term", q.Term, "indexers", len(resp.Statuses), "results", len(resp.Releases))
	return resp
}

func (a *Aggregator) searchOne(ctx context.Context, def *definition.Definition, q query.Query, c *collector) {
	if ctx.Err() != nil {
		return
	}
	start := a.now()
	res, err := a.searcher.Search(ctx, def, q)
	elapsed := a.now().Sub(start)

	st := domain.Status{
		Indexer:  def.ID,
		Code:     domain.StatusFromError(err),
		Results:  len(res.Releases),
		Dropped:  res.Dropped,
		Duration: elapsed,
		At:       a.now(),
	}
	if err != nil {
		st.Message = err.Error()
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			st.Code = domain.StatusTimedOut
		}
		slog.Warn("Indexer search failed", "indexer", def.ID, "status", st.Code, "error", err)
	} else {
		slog.Info("Indexer search finished", "indexer", def.ID, "results", st.Results, "dropped", st.Dropped, "duration", elapsed)
	}

	metrics.IndexerSearches.WithLabelValues(def.ID, string(st.Code)).Inc()
	metrics.IndexerSearchDuration.WithLabelValues(def.ID).Observe(elapsed.Seconds())

	if err != nil {
		c.add(st, nil)
		return
	}
	c.add(st, res.Releases)
}

// resolve splits ids into known definitions and unknown ids, keeping the
// request order and dropping repeats.
func (a *Aggregator) resolve(ids []string) ([]*definition.Definition, []string) {
	if len(ids) == 0 {
		return a.registry.All(), nil
	}
	var (
		defs    []*definition.Definition
		missing []string
	)
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if def, ok := a.registry.Get(id); ok {
			defs = append(defs, def)
		} else {
			missing = append(missing, id)
		}
	}
	return defs, missing
}

// record stores the statuses of the searched indexers.
func (a *Aggregator) record(ctx context.Context, searched []*definition.Definition, statuses map[string]domain.Status) {
	if a.recorder == nil || len(searched) == 0 {
		return
	}
	list := make([]domain.Status, 0, len(searched))
	for _, def := range searched {
		if st, ok := statuses[def.ID]; ok {
			list = append(list, st)
		}
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := a.recorder.Record(recordCtx, list); err != nil {
		slog.Error("Failed to record indexer statuses", "error", err)
	}
}
