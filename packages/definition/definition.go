// Package definition loads declarative indexer recipes.
package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"metasearch/packages/category"
	"metasearch/packages/domain"
	"metasearch/packages/query"
	"metasearch/packages/titlenorm"
)

type ResponseKind string

const (
	ResponseHTML ResponseKind = "html"
	ResponseJSON ResponseKind = "json"
	ResponseRSS  ResponseKind = "rss"
)

// Canonical field names. Any other field name is a scratch value usable
// from later text templates.
const (
	FieldTitle    = "title"
	FieldLink     = "link"
	FieldDetails  = "details"
	FieldSize     = "size"
	FieldSeeders  = "seeders"
	FieldLeechers = "leechers"
	FieldDate     = "date"
	FieldCategory = "category"
	FieldInfoHash = "infohash"
	FieldMagnet   = "magnet"
)

var idRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

type Definition struct {
	ID              string            `yaml:"id"`
	Name            string            `yaml:"name"`
	Version         int               `yaml:"version"`
	Description     string            `yaml:"description"`
	Language        string            `yaml:"language"`
	Type            string            `yaml:"type"`
	Links           []string          `yaml:"links"`
	TitleNormalizer string            `yaml:"titlenormalizer"`
	StripNonLatin   bool              `yaml:"stripnonlatin"`
	Capabilities    Capabilities      `yaml:"capabilities"`
	Settings        []Setting         `yaml:"settings"`
	Categories      []CategoryMapping `yaml:"categories"`
	Login           []LoginStep       `yaml:"login"`
	Search          Search            `yaml:"search"`

	categoryMap CategoryMap
	normalizer  titlenorm.Func
}

type Capabilities struct {
	TV    bool `yaml:"tv"`
	Movie bool `yaml:"movie"`
	IMDB  bool `yaml:"imdb"`
	TVDB  bool `yaml:"tvdb"`
}

type Setting struct {
	Name    string `yaml:"name"`
	Default string `yaml:"default"`
	Label   string `yaml:"label"`
}

type Param struct {
	Name  string   `yaml:"name"`
	Value Template `yaml:"value"`
}

// Indicator matches a response when any of its conditions hold.
type Indicator struct {
	Contains string `yaml:"contains"`
	Selector string `yaml:"selector"`
	Status   int    `yaml:"status"`
}

func (i *Indicator) empty() bool {
	return i.Contains == "" && i.Selector == "" && i.Status == 0
}

type LoginStep struct {
	Path      Template          `yaml:"path"`
	Method    string            `yaml:"method"`
	Params    []Param           `yaml:"params"`
	Form      []Param           `yaml:"form"`
	Headers   map[string]string `yaml:"headers"`
	Cacheable bool              `yaml:"cacheable"`
	Success   *Indicator        `yaml:"success"`
	Failure   *Indicator        `yaml:"failure"`
}

type Rows struct {
	Selector string `yaml:"selector"`
}

type Search struct {
	Path      Template          `yaml:"path"`
	Method    string            `yaml:"method"`
	Params    []Param           `yaml:"params"`
	Body      Template          `yaml:"body"`
	BodyKind  string            `yaml:"bodykind"`
	Headers   map[string]string `yaml:"headers"`
	Response  ResponseKind      `yaml:"response"`
	Rows      Rows              `yaml:"rows"`
	NoResults *Indicator        `yaml:"noresults"`
	Layout    *Indicator        `yaml:"layout"`
	AuthError *Indicator        `yaml:"autherror"`
	Fields    []FieldRule       `yaml:"fields"`
}

type FieldRule struct {
	Name      string   `yaml:"name"`
	Selector  string   `yaml:"selector"`
	Attribute string   `yaml:"attribute"`
	Text      Template `yaml:"text"`
	Filters   []Filter `yaml:"filters"`
	Default   string   `yaml:"default"`
	Optional  bool     `yaml:"optional"`
}

type Filter struct {
	Name string   `yaml:"name"`
	Args []string `yaml:"args"`

	re *regexp.Regexp
}

// Regexp is the compiled pattern of re_replace and regexp filters.
func (f Filter) Regexp() *regexp.Regexp { return f.re }

// filterArity is the minimum number of arguments per filter.
var filterArity = map[string]int{
	"trim":        0,
	"lowercase":   0,
	"uppercase":   0,
	"replace":     2,
	"re_replace":  2,
	"regexp":      1,
	"split":       2,
	"prepend":     1,
	"append":      1,
	"querystring": 1,
	"urldecode":   0,
	"urlencode":   0,
	"diacritics":  0,
	"dateparse":   0,
	"timeago":     0,
}

// LoadDefinition decodes and validates one recipe document. Every failure is
// a domain.ErrDefinition.
func LoadDefinition(document []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(document))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.DefinitionError("", nil, "empty document")
		}
		return nil, domain.DefinitionError(guessID(document), err, "decode recipe")
	}
	if err := def.validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

func (d *Definition) validate() error {
	fail := func(format string, args ...any) error {
		return domain.DefinitionError(d.ID, nil, format, args...)
	}

	if !idRegex.MatchString(d.ID) {
		return fail("invalid id %q", d.ID)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fail("name is required")
	}
	if d.Version < 1 {
		return fail("version must be >= 1, got %d", d.Version)
	}
	if len(d.Links) == 0 {
		return fail("at least one link is required")
	}
	for _, link := range d.Links {
		u, err := url.Parse(link)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fail("link %q is not an absolute http(s) url", link)
		}
	}

	d.normalizer = titlenorm.Identity
	if d.TitleNormalizer != "" {
		fn, ok := titlenorm.Lookup(d.TitleNormalizer)
		if !ok {
			return fail("unknown title normalizer %q", d.TitleNormalizer)
		}
		d.normalizer = fn
	}

	seen := make(map[string]bool, len(d.Settings))
	for _, s := range d.Settings {
		if s.Name == "" || seen[s.Name] {
			return fail("setting name %q is empty or duplicated", s.Name)
		}
		seen[s.Name] = true
	}

	for i, c := range d.Categories {
		if strings.TrimSpace(c.Site) == "" {
			return fail("category %d has no site token", i)
		}
		for _, id := range c.IDs {
			if id <= 0 {
				return fail("category %q maps to invalid id %d", c.Site, id)
			}
		}
	}
	d.categoryMap = NewCategoryMap(d.Categories)

	for i := range d.Login {
		step := &d.Login[i]
		step.Method = normalizeMethod(step.Method)
		if step.Method == "" {
			return fail("login step %d: unsupported method", i)
		}
		for _, ind := range []*Indicator{step.Success, step.Failure} {
			if ind != nil && ind.empty() {
				return fail("login step %d: indicator without condition", i)
			}
		}
	}

	return d.validateSearch(fail)
}

func (d *Definition) validateSearch(fail func(string, ...any) error) error {
	s := &d.Search
	s.Method = normalizeMethod(s.Method)
	if s.Method == "" {
		return fail("search: unsupported method")
	}
	if s.Response == "" {
		s.Response = ResponseHTML
	}
	switch s.Response {
	case ResponseHTML, ResponseJSON:
		if strings.TrimSpace(s.Rows.Selector) == "" {
			return fail("search: rows selector is required for %s responses", s.Response)
		}
	case ResponseRSS:
	default:
		return fail("search: unknown response kind %q", s.Response)
	}
	switch s.BodyKind {
	case "", "form", "raw", "json":
	default:
		return fail("search: unknown body kind %q", s.BodyKind)
	}
	for _, ind := range []*Indicator{s.NoResults, s.Layout, s.AuthError} {
		if ind != nil && ind.empty() {
			return fail("search: indicator without condition")
		}
	}

	names := make(map[string]bool, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == "" {
			return fail("search: field %d has no name", i)
		}
		names[f.Name] = true
		if f.Attribute == "" && s.Response == ResponseHTML {
			if sel, attr, ok := strings.Cut(f.Selector, "@"); ok {
				f.Selector, f.Attribute = sel, attr
			}
		}
		for j := range f.Filters {
			if err := compileFilter(&f.Filters[j]); err != nil {
				return fail("search: field %q: %v", f.Name, err)
			}
		}
	}
	if s.Response != ResponseRSS {
		if !names[FieldTitle] {
			return fail("search: required field %q is not declared", FieldTitle)
		}
		if !names[FieldLink] && !names[FieldMagnet] {
			return fail("search: one of %q or %q must be declared", FieldLink, FieldMagnet)
		}
	}
	return nil
}

// NewFilter builds a validated filter outside of a recipe document.
func NewFilter(name string, args ...string) (Filter, error) {
	f := Filter{Name: name, Args: args}
	return f, compileFilter(&f)
}

func compileFilter(f *Filter) error {
	arity, ok := filterArity[f.Name]
	if !ok {
		return fmt.Errorf("unknown filter %q", f.Name)
	}
	if len(f.Args) < arity {
		return fmt.Errorf("filter %q needs %d arguments, got %d", f.Name, arity, len(f.Args))
	}
	switch f.Name {
	case "re_replace", "regexp":
		re, err := regexp.Compile(f.Args[0])
		if err != nil {
			return fmt.Errorf("filter %q: %w", f.Name, err)
		}
		f.re = re
	case "split":
		if _, err := strconv.Atoi(f.Args[1]); err != nil {
			return fmt.Errorf("filter split: index %q is not a number", f.Args[1])
		}
	}
	return nil
}

func normalizeMethod(m string) string {
	switch strings.ToUpper(strings.TrimSpace(m)) {
	case "", "GET":
		return "GET"
	case "POST":
		return "POST"
	default:
		return ""
	}
}

// guessID pulls the id out of a document that failed to decode, for logs.
func guessID(document []byte) string {
	var head struct {
		ID string `yaml:"id"`
	}
	_ = yaml.Unmarshal(document, &head)
	return head.ID
}

func (d *Definition) BaseURL() string {
	base := d.Links[0]
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

// Resolve turns a recipe path into an absolute url against the base link.
func (d *Definition) Resolve(path string) (string, error) {
	base, err := url.Parse(d.BaseURL())
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimSpace(path))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func (d *Definition) CategoryMap() CategoryMap { return d.categoryMap }

func (d *Definition) NormalizeTitle(title string, cats []category.ID) string {
	if d.normalizer == nil {
		return title
	}
	return d.normalizer(title, cats, titlenorm.Options{StripNonLatin: d.StripNonLatin})
}

// IsPublic reports whether the indexer needs no login.
func (d *Definition) IsPublic() bool { return len(d.Login) == 0 }

func (c Capabilities) declared() bool { return c.TV || c.Movie || c.IMDB || c.TVDB }

// Serves returns nil when the recipe can answer q, or the reason it cannot.
// Recipes that declare no capabilities take any text or category search.
func (d *Definition) Serves(q query.Query) error {
	if len(q.Categories) > 0 && d.categoryMap.Len() > 0 && !d.categoryMap.Supports(q.Categories) {
		return errors.New("no site category serves the requested categories")
	}
	if q.IsIDSearch() {
		imdb := q.IMDBID != "" && d.Capabilities.IMDB
		tvdb := q.TVDBID != "" && d.Capabilities.TVDB
		if !imdb && !tvdb {
			return errors.New("id search not supported")
		}
	}
	if !d.Capabilities.declared() {
		return nil
	}
	tv := q.HasSeason || q.HasEpisode() || q.TVDBID != "" || allUnder(q.Categories, category.TV)
	if tv && !d.Capabilities.TV {
		return errors.New("tv search not supported")
	}
	if allUnder(q.Categories, category.Movies) && !d.Capabilities.Movie {
		return errors.New("movie search not supported")
	}
	return nil
}

func allUnder(ids []category.ID, parent category.ID) bool {
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if id.Parent() != parent {
			return false
		}
	}
	return true
}

// ResolveSettings returns the setting values, letting lookup override the
// declared defaults.
func (d *Definition) ResolveSettings(lookup func(indexerID, setting string) (string, bool)) map[string]string {
	out := make(map[string]string, len(d.Settings))
	for _, s := range d.Settings {
		out[s.Name] = s.Default
		if lookup == nil {
			continue
		}
		if v, ok := lookup(d.ID, s.Name); ok {
			out[s.Name] = v
		}
	}
	return out
}
