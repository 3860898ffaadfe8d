// Package engine runs one indexer recipe against one query.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"metasearch/packages/definition"
	"metasearch/packages/domain"
	"metasearch/packages/query"
	"metasearch/packages/reqcache"
	"metasearch/packages/request"
)

type State int

const (
	NotAuthenticated State = iota
	Authenticating
	Authenticated
	Searching
	Extracting
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case NotAuthenticated:
		return "not-authenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Searching:
		return "searching"
	case Extracting:
		return "extracting"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool { return s == Done || s == Failed }

type Result struct {
	Releases []domain.Release
	// Dropped counts rows that lacked a required field.
	Dropped int
	State   State
}

// SettingsLookup resolves per-indexer setting overrides.
type SettingsLookup func(indexerID, setting string) (string, bool)

type Engine struct {
	exec     request.Executor
	cache    *reqcache.Cache
	settings SettingsLookup
	now      func() time.Time
}

type Option func(*Engine)

func WithSettings(lookup SettingsLookup) Option {
	return func(e *Engine) { e.settings = lookup }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New returns an engine that sends requests with exec. Search requests, and
// login steps marked cacheable, go through cache when it is not nil.
func New(exec request.Executor, cache *reqcache.Cache, opts ...Option) *Engine {
	e := &Engine{exec: exec, cache: cache, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search drives the recipe to Done or Failed. Errors are *domain.Error values
// classified as auth, transport, parse or definition failures.
func (e *Engine) Search(ctx context.Context, def *definition.Definition, q query.Query) (Result, error) {
	r := &run{
		engine: e,
		def:    def,
		query:  q,
		config: def.ResolveSettings(e.settings),
		state:  NotAuthenticated,
	}
	res, err := r.execute(ctx)
	res.State = r.state
	return res, err
}

type run struct {
	engine *Engine
	def    *definition.Definition
	query  query.Query
	config map[string]string
	state  State
}

func (r *run) transition(to State) {
	slog.Debug("Indexer state change", "indexer", r.def.ID, "from", r.state.String(), "to", to.String())
	r.state = to
}

func (r *run) fail(err error) error {
	r.transition(Failed)
	return err
}

func (r *run) execute(ctx context.Context) (Result, error) {
	r.transition(Authenticating)
	if err := r.login(ctx); err != nil {
		return Result{}, r.fail(err)
	}
	r.transition(Authenticated)

	r.transition(Searching)
	req, resp, err := r.search(ctx)
	if err != nil {
		return Result{}, r.fail(err)
	}

	r.transition(Extracting)
	res, err := r.extract(resp)
	if err != nil {
		r.forget(req)
		return Result{}, r.fail(err)
	}
	r.transition(Done)
	return res, nil
}

func (r *run) login(ctx context.Context) error {
	for i, step := range r.def.Login {
		req, err := r.buildLogin(step)
		if err != nil {
			return err
		}

		var resp *request.Response
		if step.Cacheable {
			resp, err = r.cached(ctx, req, func(resp *request.Response) bool {
				p := newPage(definition.ResponseHTML, resp)
				return !p.matches(step.Failure) && (step.Success == nil || p.matches(step.Success))
			})
		} else {
			resp, err = r.engine.exec.Execute(ctx, req)
		}
		if err != nil {
			return r.transportError(err, "login step %d", i)
		}

		p := newPage(definition.ResponseHTML, resp)
		switch {
		case p.matches(step.Failure):
			return domain.AuthError(r.def.ID, nil, "login step %d: failure indicator matched", i)
		case step.Success != nil && !p.matches(step.Success):
			return domain.AuthError(r.def.ID, nil, "login step %d: success indicator not found", i)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return domain.AuthError(r.def.ID, nil, "login step %d: status %d", i, resp.StatusCode)
		case resp.IsServerError():
			return domain.TransportError(r.def.ID, nil, "login step %d: status %d", i, resp.StatusCode)
		}
	}
	return nil
}

func (r *run) search(ctx context.Context) (*request.Request, *request.Response, error) {
	req, err := r.buildSearch()
	if err != nil {
		return nil, nil, err
	}
	resp, err := r.cached(ctx, req, r.reusable)
	if err != nil {
		return nil, nil, r.transportError(err, "search request")
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, nil, domain.AuthError(r.def.ID, nil, "search returned status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, nil, domain.TransportError(r.def.ID, nil, "search returned status %d", resp.StatusCode)
	}
	return req, resp, nil
}

// reusable rejects search pages that report an authentication problem.
func (r *run) reusable(resp *request.Response) bool {
	s := &r.def.Search
	if s.Response == definition.ResponseRSS {
		if te, ok := parseTorznabError(resp.Body); ok && te.Code >= 100 && te.Code < 200 {
			return false
		}
	}
	return !newPage(s.Response, resp).matches(s.AuthError)
}

func (r *run) cached(ctx context.Context, req *request.Request, cacheable reqcache.Cacheable) (*request.Response, error) {
	if r.engine.cache == nil {
		return r.engine.exec.Execute(ctx, req)
	}
	return r.engine.cache.CoalesceIf(ctx, req, r.engine.exec, cacheable)
}

func (r *run) forget(req *request.Request) {
	if r.engine.cache != nil {
		r.engine.cache.Forget(req)
	}
}

// transportError keeps classified errors as they are and wraps anything
// else, including context expiry, as a transport failure.
func (r *run) transportError(err error, format string, args ...any) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.TransportError(r.def.ID, err, format, args...)
}
