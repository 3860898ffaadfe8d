package engine

import (
	"log/slog"
	"strings"
	"time"

	"metasearch/packages/category"
	"metasearch/packages/definition"
	"metasearch/packages/domain"
	"metasearch/packages/request"
)

func (r *run) extract(resp *request.Response) (Result, error) {
	s := &r.def.Search
	id := r.def.ID

	if s.Response == definition.ResponseRSS {
		if te, ok := parseTorznabError(resp.Body); ok {
			if te.Code >= 100 && te.Code < 200 {
				return Result{}, domain.AuthError(id, nil, "torznab error %d: %s", te.Code, te.Description)
			}
			return Result{}, domain.ParseError(id, nil, "torznab error %d: %s", te.Code, te.Description)
		}
	}

	p := newPage(s.Response, resp)
	if p.matches(s.AuthError) {
		return Result{}, domain.AuthError(id, nil, "search page asks for authentication")
	}

	rows, err := p.rows(s.Rows.Selector)
	if err != nil {
		return Result{}, domain.ParseError(id, err, "parse %s response", s.Response)
	}
	if len(rows) == 0 {
		if s.Layout != nil && !p.matches(s.Layout) {
			return Result{}, domain.ParseError(id, nil, "expected page layout not found")
		}
		if s.NoResults != nil && !p.matches(s.NoResults) {
			return Result{}, domain.ParseError(id, nil, "no result rows and no empty-result marker")
		}
		return Result{}, nil
	}

	fields := s.Fields
	if s.Response == definition.ResponseRSS && len(fields) == 0 {
		fields = defaultRSSFields
	}

	now := r.engine.now()
	var res Result
	for i, row := range rows {
		rel, err := r.release(row, fields, now)
		if err != nil {
			res.Dropped++
			slog.Debug("Dropping result row", "indexer", id, "row", i, "error", err)
			continue
		}
		res.Releases = append(res.Releases, rel)
	}
	if len(res.Releases) == 0 {
		return res, domain.ExtractionError(id, nil, "%d rows found but none could be extracted", len(rows))
	}
	return res, nil
}

// release runs the field rules over one row. Rules see the values of the
// rules declared before them through .Result.
func (r *run) release(item rawItem, fields []definition.FieldRule, now time.Time) (domain.Release, error) {
	values := make(map[string]string, len(fields))
	for _, rule := range fields {
		v, ok := r.fieldValue(item, rule, values, now)
		if !ok && rule.Default != "" {
			v, ok = rule.Default, true
		}
		if !ok {
			if isRequired(rule) {
				return domain.Release{}, domain.ExtractionError(r.def.ID, nil, "field %q: no match", rule.Name)
			}
			continue
		}
		values[rule.Name] = v
	}
	return r.assemble(values, now)
}

func isRequired(rule definition.FieldRule) bool {
	return !rule.Optional && (rule.Name == definition.FieldTitle || rule.Name == definition.FieldLink)
}

func (r *run) fieldValue(item rawItem, rule definition.FieldRule, values map[string]string, now time.Time) (string, bool) {
	var (
		v  string
		ok bool
	)
	if !rule.Text.IsZero() {
		out, err := rule.Text.Render(map[string]any{"Result": values, "Config": r.config})
		if err != nil {
			slog.Debug("Field template failed", "indexer", r.def.ID, "field", rule.Name, "error", err)
			return "", false
		}
		v, ok = out, true
	} else {
		v, ok = item.value(rule)
	}
	if !ok {
		return "", false
	}
	v, ok = applyFilters(v, rule.Filters, now)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func (r *run) assemble(values map[string]string, now time.Time) (domain.Release, error) {
	id := r.def.ID
	title := strings.Join(strings.Fields(values[definition.FieldTitle]), " ")
	if title == "" {
		return domain.Release{}, domain.ExtractionError(id, nil, "empty title")
	}

	cats := r.categories(values[definition.FieldCategory])
	rel := domain.Release{
		Title:      r.def.NormalizeTitle(title, cats),
		Categories: cats,
		Indexer:    id,
	}
	if len(rel.Categories) == 0 {
		rel.Categories = []category.ID{category.Other}
	}

	magnet := strings.TrimSpace(values[definition.FieldMagnet])
	if link := strings.TrimSpace(values[definition.FieldLink]); link != "" {
		resolved, err := r.resolve(link)
		if err != nil {
			return domain.Release{}, domain.ExtractionError(id, err, "link %q", link)
		}
		rel.Link = resolved
	}
	if rel.Link == "" {
		rel.Link = magnet
	}
	if rel.Link == "" {
		return domain.Release{}, domain.ExtractionError(id, nil, "no link or magnet")
	}

	if details := strings.TrimSpace(values[definition.FieldDetails]); details != "" {
		if resolved, err := r.resolve(details); err == nil {
			rel.Details = resolved
		}
	}
	if v, ok := values[definition.FieldSize]; ok {
		rel.Size, _ = parseSize(v)
	}
	if v, ok := values[definition.FieldSeeders]; ok {
		if n, ok := parseCount(v); ok {
			rel.Seeders = &n
		}
	}
	if v, ok := values[definition.FieldLeechers]; ok {
		if n, ok := parseCount(v); ok {
			rel.Leechers = &n
		}
	}
	if v, ok := values[definition.FieldDate]; ok {
		rel.PublishDate, _ = parseDate(v, now)
	}

	rel.InfoHash = normalizeInfoHash(values[definition.FieldInfoHash])
	if rel.InfoHash == "" {
		rel.InfoHash = infoHashFromMagnet(magnet)
	}
	if rel.InfoHash == "" {
		rel.InfoHash = infoHashFromMagnet(rel.Link)
	}
	return rel, nil
}

// categories maps the comma separated site tokens of a row. Recipes without
// a category map carry global ids directly.
func (r *run) categories(raw string) []category.ID {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	cm := r.def.CategoryMap()
	if cm.Len() == 0 {
		if ids := category.ParseList(raw); len(ids) > 0 {
			return ids
		}
		return []category.ID{category.Other}
	}
	return cm.MapAll(strings.Split(raw, ","))
}

func (r *run) resolve(link string) (string, error) {
	if strings.HasPrefix(strings.ToLower(link), "magnet:") {
		return link, nil
	}
	return r.def.Resolve(link)
}
