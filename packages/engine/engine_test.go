package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metasearch/packages/category"
	"metasearch/packages/definition"
	"metasearch/packages/domain"
	"metasearch/packages/query"
	"metasearch/packages/reqcache"
	"metasearch/packages/request"
)

var fixedNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

// fakeSite answers by url path and records every request it sees.
type fakeSite struct {
	mu       sync.Mutex
	routes   map[string]*request.Response
	requests []*request.Request
	err      error
}

func newFakeSite(routes map[string]*request.Response) *fakeSite {
	return &fakeSite{routes: routes}
}

func (f *fakeSite) Execute(_ context.Context, req *request.Request) (*request.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	path, _, _ := strings.Cut(req.URL, "?")
	if resp, ok := f.routes[path]; ok {
		return resp, nil
	}
	return &request.Response{StatusCode: 404}, nil
}

func (f *fakeSite) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if strings.HasPrefix(r.URL, path) {
			n++
		}
	}
	return n
}

func page200(body string) *request.Response {
	return &request.Response{StatusCode: 200, Body: []byte(body)}
}

func mustLoad(t *testing.T, doc string) *definition.Definition {
	t.Helper()
	def, err := definition.LoadDefinition([]byte(doc))
	require.NoError(t, err)
	return def
}

func newTestEngine(exec request.Executor, cache *reqcache.Cache) *Engine {
	settings := func(id, name string) (string, bool) {
		switch name {
		case "username":
			return "alice", true
		case "password":
			return "secret", true
		}
		return "", false
	}
	return New(exec, cache, WithSettings(settings), WithClock(func() time.Time { return fixedNow }))
}

const trackerDoc = `
id: tracker
name: Tracker
version: 1
links: [https://tracker.example/]
titlenormalizer: ru
stripnonlatin: true
capabilities: {tv: true}
settings:
  - {name: username}
  - {name: password}
categories:
  - {site: "4", ids: [5000]}
  - {site: "7", ids: [2000]}
login:
  - path: login.php
    method: post
    form:
      - {name: login_username, value: "{{ .Config.username }}"}
      - {name: login_password, value: "{{ .Config.password }}"}
    success: {contains: logout.php}
search:
  path: tracker.php
  params:
    - {name: nm, value: "{{ .Keywords }}"}
    - {name: f, value: "{{ join .Categories \",\" }}"}
  rows: {selector: "tr.row"}
  layout: {selector: "table#results"}
  autherror: {selector: "form#login"}
  fields:
    - {name: category, selector: "td.cat a@data-cat"}
    - {name: title, selector: a.title}
    - {name: link, selector: "a.dl@href"}
    - {name: details, selector: "a.title@href"}
    - {name: size, selector: td.size}
    - {name: seeders, selector: td.seed, optional: true}
    - {name: date, selector: td.date, optional: true}
`

const trackerResults = `<html><body><a href="logout.php">Logout</a>
<table id="results">
<tr class="row"><td class="cat"><a data-cat="4">TV</a></td><td><a class="title" href="viewtopic.php?t=1">Сериал / Series / Сезон 3 (Серии 1-4)</a></td><td><a class="dl" href="dl.php?t=1">dl</a></td><td class="size">1.5 GB</td><td class="seed">1,234</td><td class="date">24-Авг-22</td></tr>
<tr class="row"><td class="cat"><a data-cat="99">?</a></td><td><a class="title" href="viewtopic.php?t=2">Some Movie 2020</a></td><td><a class="dl" href="dl.php?t=2">dl</a></td><td class="size">700 MB</td></tr>
<tr class="row"><td class="cat"><a data-cat="4">TV</a></td><td></td><td><a class="dl" href="dl.php?t=3">dl</a></td></tr>
</table></body></html>`

func trackerSite(results string) *fakeSite {
	return newFakeSite(map[string]*request.Response{
		"https://tracker.example/login.php":   page200(`<a href="logout.php">Logout</a>`),
		"https://tracker.example/tracker.php": page200(results),
	})
}

func seriesQuery() query.Query {
	q := query.Parse("Series S03")
	q.Categories = []category.ID{category.TV}
	return q
}

func TestSearchPrivateHTML(t *testing.T) {
	site := trackerSite(trackerResults)
	eng := newTestEngine(site, nil)

	res, err := eng.Search(context.Background(), mustLoad(t, trackerDoc), seriesQuery())
	require.NoError(t, err)
	assert.Equal(t, Done, res.State)
	assert.Equal(t, 1, res.Dropped)
	require.Len(t, res.Releases, 2)

	require.Len(t, site.requests, 2)
	login := site.requests[0]
	assert.Equal(t, "POST", login.Method)
	assert.Equal(t, "https://tracker.example/login.php", login.URL)
	assert.Equal(t, request.BodyForm, login.Kind)
	assert.Equal(t, []request.KV{{Name: "login_username", Value: "alice"}, {Name: "login_password", Value: "secret"}}, login.Form)
	assert.Equal(t, "https://tracker.example/tracker.php?nm=Series+S03&f=4", site.requests[1].URL)

	first := res.Releases[0]
	assert.Equal(t, "Series S3E1-4", first.Title)
	assert.Equal(t, "https://tracker.example/dl.php?t=1", first.Link)
	assert.Equal(t, "https://tracker.example/viewtopic.php?t=1", first.Details)
	assert.Equal(t, []category.ID{category.TV}, first.Categories)
	assert.Equal(t, int64(1610612736), first.Size)
	require.NotNil(t, first.Seeders)
	assert.Equal(t, 1234, *first.Seeders)
	assert.Equal(t, time.Date(2022, 8, 24, 0, 0, 0, 0, time.UTC), first.PublishDate)
	assert.Equal(t, "tracker", first.Indexer)

	second := res.Releases[1]
	assert.Equal(t, "Some Movie 2020", second.Title)
	assert.Equal(t, []category.ID{category.Other}, second.Categories)
	assert.Equal(t, int64(700<<20), second.Size)
	assert.Nil(t, second.Seeders)
}

func TestSearchFailures(t *testing.T) {
	tests := []struct {
		name    string
		login   *request.Response
		results *request.Response
		kind    error
		state   State
	}{
		{
			name:    "login success marker missing",
			login:   page200("<form id=login></form>"),
			results: page200(trackerResults),
			kind:    domain.ErrAuth,
		},
		{
			name:    "login unauthorized",
			login:   &request.Response{StatusCode: 403, Body: []byte("logout.php")},
			results: page200(trackerResults),
			kind:    domain.ErrAuth,
		},
		{
			name:    "search page asks for login",
			login:   page200("logout.php"),
			results: page200(`<form id="login"></form>`),
			kind:    domain.ErrAuth,
		},
		{
			name:    "layout missing",
			login:   page200("logout.php"),
			results: page200(`<html><body><p>maintenance</p></body></html>`),
			kind:    domain.ErrParse,
		},
		{
			name:    "server error",
			login:   page200("logout.php"),
			results: &request.Response{StatusCode: 503},
			kind:    domain.ErrTransport,
		},
		{
			name:  "rows without extractable items",
			login: page200("logout.php"),
			results: page200(`<table id="results">
<tr class="row"><td>nothing</td></tr><tr class="row"><td>here</td></tr></table>`),
			kind: domain.ErrExtraction,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := newFakeSite(map[string]*request.Response{
				"https://tracker.example/login.php":   tt.login,
				"https://tracker.example/tracker.php": tt.results,
			})
			res, err := newTestEngine(site, nil).Search(context.Background(), mustLoad(t, trackerDoc), seriesQuery())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			assert.Equal(t, Failed, res.State)
			assert.Empty(t, res.Releases)
		})
	}
}

func TestLoginFailureSkipsSearch(t *testing.T) {
	site := trackerSite(trackerResults)
	site.routes["https://tracker.example/login.php"] = page200("wrong password")

	_, err := newTestEngine(site, nil).Search(context.Background(), mustLoad(t, trackerDoc), seriesQuery())
	assert.ErrorIs(t, err, domain.ErrAuth)
	assert.Equal(t, 0, site.count("https://tracker.example/tracker.php"))
}

func TestEmptyResultPage(t *testing.T) {
	site := trackerSite(`<html><body><table id="results"></table></body></html>`)
	res, err := newTestEngine(site, nil).Search(context.Background(), mustLoad(t, trackerDoc), seriesQuery())
	require.NoError(t, err)
	assert.Equal(t, Done, res.State)
	assert.Empty(t, res.Releases)
}

func TestTransportErrorKeepsCause(t *testing.T) {
	site := trackerSite(trackerResults)
	site.err = context.DeadlineExceeded

	res, err := newTestEngine(site, nil).Search(context.Background(), mustLoad(t, trackerDoc), seriesQuery())
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, Failed, res.State)
	assert.Equal(t, "failed", res.State.String())
}

func TestSearchGoesThroughCache(t *testing.T) {
	cache := reqcache.New(reqcache.Options{TTL: time.Minute})
	defer cache.Close()

	site := trackerSite(trackerResults)
	eng := newTestEngine(site, cache)
	def := mustLoad(t, trackerDoc)

	for i := 0; i < 2; i++ {
		_, err := eng.Search(context.Background(), def, seriesQuery())
		require.NoError(t, err)
	}
	assert.Equal(t, 2, site.count("https://tracker.example/login.php"))
	assert.Equal(t, 1, site.count("https://tracker.example/tracker.php"))
}

func TestFailedSearchIsNotReused(t *testing.T) {
	tests := []struct {
		name   string
		failed *request.Response
		kind   error
	}{
		{"rate limited", &request.Response{StatusCode: 429}, domain.ErrTransport},
		{"forbidden", &request.Response{StatusCode: 403}, domain.ErrAuth},
		{"login form instead of results", page200(`<form id="login"></form>`), domain.ErrAuth},
		{"maintenance page", page200(`<html><body><p>maintenance</p></body></html>`), domain.ErrParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := reqcache.New(reqcache.Options{TTL: time.Minute})
			defer cache.Close()

			site := trackerSite(trackerResults)
			site.routes["https://tracker.example/tracker.php"] = tt.failed
			eng := newTestEngine(site, cache)
			def := mustLoad(t, trackerDoc)

			_, err := eng.Search(context.Background(), def, seriesQuery())
			require.ErrorIs(t, err, tt.kind)

			site.mu.Lock()
			site.routes["https://tracker.example/tracker.php"] = page200(trackerResults)
			site.mu.Unlock()

			res, err := eng.Search(context.Background(), def, seriesQuery())
			require.NoError(t, err)
			assert.Len(t, res.Releases, 2)
			assert.Equal(t, 2, site.count("https://tracker.example/tracker.php"))
		})
	}
}

func TestTorznabAuthErrorIsNotReused(t *testing.T) {
	cache := reqcache.New(reqcache.Options{TTL: time.Minute})
	defer cache.Close()

	site := newFakeSite(map[string]*request.Response{
		"https://feed.example/api/": page200(`<?xml version="1.0" encoding="UTF-8"?><error code="100" description="Incorrect user credentials"/>`),
	})
	eng := newTestEngine(site, cache)
	def := mustLoad(t, feedDoc)

	_, err := eng.Search(context.Background(), def, query.Parse("x"))
	require.ErrorIs(t, err, domain.ErrAuth)
	assert.Equal(t, 0, cache.Len())
}

func TestFailedCacheableLoginIsNotReused(t *testing.T) {
	cache := reqcache.New(reqcache.Options{TTL: time.Minute})
	defer cache.Close()

	doc := strings.Replace(trackerDoc, "    method: post\n", "    method: post\n    cacheable: true\n", 1)
	site := trackerSite(trackerResults)
	site.routes["https://tracker.example/login.php"] = page200("wrong password")
	eng := newTestEngine(site, cache)
	def := mustLoad(t, doc)

	_, err := eng.Search(context.Background(), def, seriesQuery())
	require.ErrorIs(t, err, domain.ErrAuth)

	site.mu.Lock()
	site.routes["https://tracker.example/login.php"] = page200(`<a href="logout.php">Logout</a>`)
	site.mu.Unlock()

	_, err = eng.Search(context.Background(), def, seriesQuery())
	require.NoError(t, err)
	assert.Equal(t, 2, site.count("https://tracker.example/login.php"))
}

func TestCacheableLoginStep(t *testing.T) {
	cache := reqcache.New(reqcache.Options{TTL: time.Minute})
	defer cache.Close()

	doc := strings.Replace(trackerDoc, "    method: post\n", "    method: post\n    cacheable: true\n", 1)
	site := trackerSite(trackerResults)
	eng := newTestEngine(site, cache)
	def := mustLoad(t, doc)

	for i := 0; i < 3; i++ {
		_, err := eng.Search(context.Background(), def, seriesQuery())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, site.count("https://tracker.example/login.php"))
}

const jsonDoc = `
id: jsonapi
name: JSON API
version: 1
links: [https://api.example/]
capabilities: {imdb: true}
search:
  path: api/search
  method: post
  bodykind: json
  body: '{"q":"{{ .Keywords }}","imdb":"{{ .Query.IMDBID }}","tvdb":"{{ .Query.TVDBID }}"}'
  response: json
  rows: {selector: "data.items"}
  fields:
    - {name: title, selector: name}
    - {name: id, selector: id}
    - {name: link, text: "download/{{ .Result.id }}"}
    - {name: magnet, selector: magnet, optional: true}
    - {name: size, selector: bytes}
    - {name: seeders, selector: stats.seeders}
    - name: date
      selector: added
      filters: [{name: dateparse}]
    - {name: category, selector: cat, default: "5040"}
`

func TestSearchPublicJSON(t *testing.T) {
	site := newFakeSite(map[string]*request.Response{
		"https://api.example/api/search": page200(`{"data":{"items":[
{"id":17,"name":"Movie.2020.1080p","bytes":1073741824,"stats":{"seeders":5},"added":"2024-01-02T03:04:05Z","magnet":"magnet:?xt=urn:btih:C12FE1C06BBA254A9DC9F519B335AA7C1367A88A&dn=x"},
{"id":18,"name":null}
]}}`),
	})
	q := query.FromRequest(query.SearchRequest{Text: "Movie 2020", IMDBID: "tt0111161", TVDBID: "81189"})

	res, err := newTestEngine(site, nil).Search(context.Background(), mustLoad(t, jsonDoc), q)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dropped)
	require.Len(t, res.Releases, 1)

	require.Len(t, site.requests, 1)
	req := site.requests[0]
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, request.BodyJSON, req.Kind)
	assert.Equal(t, `{"q":"Movie 2020","imdb":"tt0111161","tvdb":""}`, req.Body)

	rel := res.Releases[0]
	assert.Equal(t, "Movie.2020.1080p", rel.Title)
	assert.Equal(t, "https://api.example/download/17", rel.Link)
	assert.Equal(t, "c12fe1c06bba254a9dc9f519b335aa7c1367a88a", rel.InfoHash)
	assert.Equal(t, int64(1073741824), rel.Size)
	assert.Equal(t, []category.ID{category.TVHD}, rel.Categories)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), rel.PublishDate.UTC())
}

func TestSearchInvalidJSON(t *testing.T) {
	site := newFakeSite(map[string]*request.Response{
		"https://api.example/api/search": page200(`<html>oops</html>`),
	})
	res, err := newTestEngine(site, nil).Search(context.Background(), mustLoad(t, jsonDoc), query.Parse("x"))
	assert.ErrorIs(t, err, domain.ErrParse)
	assert.Equal(t, Failed, res.State)
}

const feedDoc = `
id: feed
name: Feed
version: 1
links: [https://feed.example/api]
search:
  path: "?t=search"
  params:
    - {name: q, value: "{{ .Keywords }}"}
    - {name: cat, value: "{{ join .Categories \",\" }}"}
  response: rss
`

const feedBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:torznab="http://torznab.com/schemas/2015/feed">
<channel>
<item>
<title>Show.S01E05.1080p</title>
<guid>https://feed.example/details/1</guid>
<link>https://feed.example/dl/1.torrent</link>
<comments>https://feed.example/details/1</comments>
<pubDate>Mon, 02 Jan 2006 15:04:05 -0700</pubDate>
<size>2147483648</size>
<enclosure url="https://feed.example/dl/1.torrent" length="2147483648" type="application/x-bittorrent"/>
<torznab:attr name="category" value="5000"/>
<torznab:attr name="category" value="5040"/>
<torznab:attr name="seeders" value="12"/>
<torznab:attr name="infohash" value="C12FE1C06BBA254A9DC9F519B335AA7C1367A88A"/>
</item>
</channel>
</rss>`

func TestSearchTorznabFeed(t *testing.T) {
	site := newFakeSite(map[string]*request.Response{
		"https://feed.example/api/": page200(feedBody),
	})
	q := query.Parse("Show S01E05")
	q.Categories = []category.ID{category.TV}

	res, err := newTestEngine(site, nil).Search(context.Background(), mustLoad(t, feedDoc), q)
	require.NoError(t, err)
	require.Len(t, res.Releases, 1)
	assert.Equal(t, "https://feed.example/api/?t=search&q=Show+S01E05&cat=5000", site.requests[0].URL)

	rel := res.Releases[0]
	assert.Equal(t, "Show.S01E05.1080p", rel.Title)
	assert.Equal(t, "https://feed.example/dl/1.torrent", rel.Link)
	assert.Equal(t, "https://feed.example/details/1", rel.Details)
	assert.Equal(t, []category.ID{category.TV, category.TVHD}, rel.Categories)
	assert.Equal(t, int64(2147483648), rel.Size)
	require.NotNil(t, rel.Seeders)
	assert.Equal(t, 12, *rel.Seeders)
	assert.Nil(t, rel.Leechers)
	assert.Equal(t, "c12fe1c06bba254a9dc9f519b335aa7c1367a88a", rel.InfoHash)
	assert.True(t, rel.PublishDate.Equal(time.Date(2006, 1, 2, 22, 4, 5, 0, time.UTC)))
}

func TestTorznabErrorDocument(t *testing.T) {
	tests := []struct {
		body string
		kind error
	}{
		{`<?xml version="1.0" encoding="UTF-8"?><error code="100" description="Incorrect user credentials"/>`, domain.ErrAuth},
		{`<?xml version="1.0" encoding="UTF-8"?><error code="201" description="Incorrect parameter"/>`, domain.ErrParse},
		{`not xml at all`, domain.ErrParse},
	}
	for _, tt := range tests {
		site := newFakeSite(map[string]*request.Response{"https://feed.example/api/": page200(tt.body)})
		_, err := newTestEngine(site, nil).Search(context.Background(), mustLoad(t, feedDoc), query.Parse("x"))
		assert.ErrorIs(t, err, tt.kind, tt.body)
	}
}

func TestPostFormSearch(t *testing.T) {
	doc := strings.Replace(trackerDoc, "  path: tracker.php\n", "  path: tracker.php\n  method: post\n", 1)
	site := trackerSite(trackerResults)

	_, err := newTestEngine(site, nil).Search(context.Background(), mustLoad(t, doc), seriesQuery())
	require.NoError(t, err)
	search := site.requests[1]
	assert.Equal(t, "https://tracker.example/tracker.php", search.URL)
	assert.Equal(t, request.BodyForm, search.Kind)
	assert.Equal(t, []request.KV{{Name: "nm", Value: "Series S03"}, {Name: "f", Value: "4"}}, search.Form)
}

func TestWithQuery(t *testing.T) {
	params := []request.KV{{Name: "b", Value: "x y"}, {Name: "a", Value: "1&2"}}
	tests := []struct {
		target string
		want   string
	}{
		{"https://x/s", "https://x/s?b=x+y&a=1%262"},
		{"https://x/s?t=1", "https://x/s?t=1&b=x+y&a=1%262"},
		{"https://x/s?", "https://x/s?b=x+y&a=1%262"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, withQuery(tt.target, params))
	}
	assert.Equal(t, "https://x/s", withQuery("https://x/s", nil))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "not-authenticated", NotAuthenticated.String())
	assert.Equal(t, "extracting", Extracting.String())
	assert.True(t, Done.Terminal())
	assert.False(t, Searching.Terminal())
}
