package engine

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"metasearch/packages/definition"
	"metasearch/packages/domain"
	"metasearch/packages/request"
)

type queryData struct {
	Term      string
	Season    int
	HasSeason bool
	Episode   string
	IMDBID    string
	TVDBID    string
}

// requestData is the dot value of login and search templates.
type requestData struct {
	Keywords   string
	Query      queryData
	Categories []string
	Config     map[string]string
}

func (r *run) templateData() requestData {
	q := r.query
	data := requestData{
		Keywords: q.Keywords(),
		Query: queryData{
			Term:      strings.TrimSpace(q.Term),
			Season:    q.Season,
			HasSeason: q.HasSeason,
			Episode:   q.Episode,
		},
		Categories: r.siteCategories(),
		Config:     r.config,
	}
	if r.def.Capabilities.IMDB {
		data.Query.IMDBID = q.IMDBID
	}
	if r.def.Capabilities.TVDB {
		data.Query.TVDBID = q.TVDBID
	}
	return data
}

// siteCategories translates the query categories into site tokens. Recipes
// without a category map receive the global ids.
func (r *run) siteCategories() []string {
	cm := r.def.CategoryMap()
	if cm.Len() > 0 {
		return cm.SiteTokens(r.query.Categories)
	}
	out := make([]string, 0, len(r.query.Categories))
	for _, id := range r.query.Categories {
		out = append(out, strconv.Itoa(int(id)))
	}
	return out
}

func (r *run) buildLogin(step definition.LoginStep) (*request.Request, error) {
	data := r.templateData()
	path, err := step.Path.Render(data)
	if err != nil {
		return nil, r.renderError(err, "login path")
	}
	params, err := r.renderParams(step.Params, data)
	if err != nil {
		return nil, err
	}
	form, err := r.renderParams(step.Form, data)
	if err != nil {
		return nil, err
	}
	target, err := r.def.Resolve(path)
	if err != nil {
		return nil, r.renderError(err, "login url")
	}

	req := &request.Request{
		Method:  step.Method,
		Headers: headers(step.Headers),
		Indexer: r.def.ID,
	}
	if step.Method == http.MethodGet {
		req.URL = withQuery(target, append(params, form...))
		return req, nil
	}
	req.URL = withQuery(target, params)
	req.Kind = request.BodyForm
	req.Form = form
	return req, nil
}

func (r *run) buildSearch() (*request.Request, error) {
	s := &r.def.Search
	data := r.templateData()

	path, err := s.Path.Render(data)
	if err != nil {
		return nil, r.renderError(err, "search path")
	}
	params, err := r.renderParams(s.Params, data)
	if err != nil {
		return nil, err
	}
	target, err := r.def.Resolve(path)
	if err != nil {
		return nil, r.renderError(err, "search url")
	}

	req := &request.Request{
		Method:  s.Method,
		Headers: headers(s.Headers),
		Indexer: r.def.ID,
	}
	if s.Method == http.MethodGet {
		req.URL = withQuery(target, params)
		return req, nil
	}

	switch kind := request.BodyKind(s.BodyKind); kind {
	case request.BodyRaw, request.BodyJSON:
		body, err := s.Body.Render(data)
		if err != nil {
			return nil, r.renderError(err, "search body")
		}
		req.URL = withQuery(target, params)
		req.Kind = kind
		req.Body = body
	default:
		req.URL = target
		req.Kind = request.BodyForm
		req.Form = params
	}
	return req, nil
}

func (r *run) renderParams(params []definition.Param, data requestData) ([]request.KV, error) {
	out := make([]request.KV, 0, len(params))
	for _, p := range params {
		v, err := p.Value.Render(data)
		if err != nil {
			return nil, r.renderError(err, "param %q", p.Name)
		}
		out = append(out, request.KV{Name: p.Name, Value: v})
	}
	return out, nil
}

func (r *run) renderError(err error, format string, args ...any) error {
	return domain.DefinitionError(r.def.ID, err, format, args...)
}

func headers(in map[string]string) http.Header {
	if len(in) == 0 {
		return nil
	}
	h := make(http.Header, len(in))
	for k, v := range in {
		h.Set(k, v)
	}
	return h
}

// withQuery appends params to target in declaration order. url.Values would
// sort them, and some sites care about the order.
func withQuery(target string, params []request.KV) string {
	if len(params) == 0 {
		return target
	}
	var b strings.Builder
	b.WriteString(target)
	sep := "&"
	switch {
	case strings.HasSuffix(target, "?"), strings.HasSuffix(target, "&"):
		sep = ""
	case !strings.Contains(target, "?"):
		sep = "?"
	}
	for _, p := range params {
		b.WriteString(sep)
		b.WriteString(url.QueryEscape(p.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
		sep = "&"
	}
	return b.String()
}
