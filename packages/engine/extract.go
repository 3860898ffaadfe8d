package engine

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"metasearch/packages/definition"
	"metasearch/packages/request"
)

// rawItem is one located result row before field rules run.
type rawItem interface {
	value(rule definition.FieldRule) (string, bool)
}

// page wraps a response and parses it at most once per representation.
type page struct {
	kind definition.ResponseKind
	resp *request.Response

	doc    *goquery.Document
	docErr error
	parsed bool
}

func newPage(kind definition.ResponseKind, resp *request.Response) *page {
	return &page{kind: kind, resp: resp}
}

func (p *page) html() (*goquery.Document, error) {
	if !p.parsed {
		p.parsed = true
		p.doc, p.docErr = goquery.NewDocumentFromReader(bytes.NewReader(p.resp.Body))
	}
	return p.doc, p.docErr
}

// has reports whether selector matches: a CSS selector for html pages, a
// gjson path for json ones. rss pages only support text indicators.
func (p *page) has(selector string) bool {
	switch p.kind {
	case definition.ResponseJSON:
		return gjson.GetBytes(p.resp.Body, selector).Exists()
	case definition.ResponseRSS:
		return false
	default:
		doc, err := p.html()
		return err == nil && doc.Find(selector).Length() > 0
	}
}

// matches reports whether any condition of ind holds. A nil indicator never matches.
func (p *page) matches(ind *definition.Indicator) bool {
	if ind == nil {
		return false
	}
	if ind.Status != 0 && p.resp.StatusCode == ind.Status {
		return true
	}
	if ind.Contains != "" && bytes.Contains(p.resp.Body, []byte(ind.Contains)) {
		return true
	}
	return ind.Selector != "" && p.has(ind.Selector)
}

// rows locates the result rows. A malformed body is an error; a well-formed
// body without rows is an empty slice.
func (p *page) rows(selector string) ([]rawItem, error) {
	switch p.kind {
	case definition.ResponseJSON:
		return jsonRows(p.resp.Body, selector)
	case definition.ResponseRSS:
		return rssRows(p.resp.Body)
	default:
		doc, err := p.html()
		if err != nil {
			return nil, err
		}
		var items []rawItem
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			items = append(items, htmlItem{s})
		})
		return items, nil
	}
}

type htmlItem struct {
	sel *goquery.Selection
}

func (h htmlItem) value(rule definition.FieldRule) (string, bool) {
	s := h.sel
	if rule.Selector != "" {
		s = s.Find(rule.Selector).First()
	}
	if s.Length() == 0 {
		return "", false
	}
	if rule.Attribute != "" {
		return s.Attr(rule.Attribute)
	}
	return strings.TrimSpace(s.Text()), true
}

func jsonRows(body []byte, path string) ([]rawItem, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("response is not valid json")
	}
	var items []rawItem
	gjson.GetBytes(body, path).ForEach(func(_, v gjson.Result) bool {
		items = append(items, jsonItem{v})
		return true
	})
	return items, nil
}

type jsonItem struct {
	res gjson.Result
}

func (j jsonItem) value(rule definition.FieldRule) (string, bool) {
	r := j.res
	if rule.Selector != "" {
		r = r.Get(rule.Selector)
	}
	if !r.Exists() || r.Type == gjson.Null {
		return "", false
	}
	return r.String(), true
}

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title      string       `xml:"title"`
	GUID       string       `xml:"guid"`
	Link       string       `xml:"link"`
	Comments   string       `xml:"comments"`
	PubDate    string       `xml:"pubDate"`
	Size       string       `xml:"size"`
	Categories []string     `xml:"category"`
	Enclosure  rssEnclosure `xml:"enclosure"`
	Attrs      []rssAttr    `xml:"attr"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length string `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

type rssAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// torznabError is the error document Torznab endpoints answer with.
type torznabError struct {
	XMLName     xml.Name `xml:"error"`
	Code        int      `xml:"code,attr"`
	Description string   `xml:"description,attr"`
}

func rssRows(body []byte) ([]rawItem, error) {
	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, err
	}
	items := make([]rawItem, 0, len(feed.Channel.Items))
	for _, it := range feed.Channel.Items {
		items = append(items, it)
	}
	return items, nil
}

func parseTorznabError(body []byte) (torznabError, bool) {
	var e torznabError
	if err := xml.Unmarshal(body, &e); err != nil {
		return e, false
	}
	return e, true
}

// value resolves rss selectors: item element names, "enclosure@<attr>" and
// "attr:<name>" for torznab/newznab attributes.
func (it rssItem) value(rule definition.FieldRule) (string, bool) {
	sel := rule.Selector
	if name, ok := strings.CutPrefix(sel, "attr:"); ok {
		var vals []string
		for _, a := range it.Attrs {
			if a.Name == name {
				vals = append(vals, a.Value)
			}
		}
		return strings.Join(vals, ","), len(vals) > 0
	}

	var v string
	switch sel {
	case "title":
		v = it.Title
	case "guid":
		v = it.GUID
	case "link":
		v = it.Enclosure.URL
		if v == "" {
			v = it.Link
		}
	case "comments":
		v = it.Comments
	case "pubDate":
		v = it.PubDate
	case "size":
		v = it.Size
		if v == "" {
			v = it.Enclosure.Length
		}
	case "category":
		v = strings.Join(it.Categories, ",")
	case "enclosure@url":
		v = it.Enclosure.URL
	case "enclosure@length":
		v = it.Enclosure.Length
	case "enclosure@type":
		v = it.Enclosure.Type
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// defaultRSSFields is used when an rss recipe declares no fields.
var defaultRSSFields = []definition.FieldRule{
	{Name: definition.FieldTitle, Selector: "title"},
	{Name: definition.FieldLink, Selector: "link", Optional: true},
	{Name: definition.FieldDetails, Selector: "comments", Optional: true},
	{Name: definition.FieldDate, Selector: "pubDate", Optional: true},
	{Name: definition.FieldSize, Selector: "size", Optional: true},
	{Name: definition.FieldCategory, Selector: "attr:category", Optional: true},
	{Name: definition.FieldSeeders, Selector: "attr:seeders", Optional: true},
	{Name: definition.FieldLeechers, Selector: "attr:leechers", Optional: true},
	{Name: definition.FieldInfoHash, Selector: "attr:infohash", Optional: true},
	{Name: definition.FieldMagnet, Selector: "attr:magneturl", Optional: true},
}
