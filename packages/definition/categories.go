package definition

import (
	"strings"

	"metasearch/packages/category"
)

type CategoryMapping struct {
	Site string        `yaml:"site"`
	IDs  []category.ID `yaml:"ids"`
	Desc string        `yaml:"desc"`
}

// CategoryMap relates site tokens to global ids. It is built once and only
// read afterwards, so the same token always yields the same set.
type CategoryMap struct {
	forward map[string][]category.ID
	order   []string
}

func NewCategoryMap(entries []CategoryMapping) CategoryMap {
	m := CategoryMap{forward: make(map[string][]category.ID, len(entries))}
	for _, e := range entries {
		token := strings.TrimSpace(e.Site)
		if token == "" {
			continue
		}
		if _, ok := m.forward[token]; !ok {
			m.order = append(m.order, token)
		}
		m.forward[token] = category.Normalize(append(m.forward[token], e.IDs...))
	}
	return m
}

// Map returns the global ids for a site token. Unknown tokens map to Other.
func (m CategoryMap) Map(token string) []category.ID {
	ids, ok := m.forward[strings.TrimSpace(token)]
	if !ok || len(ids) == 0 {
		return []category.ID{category.Other}
	}
	return append([]category.ID(nil), ids...)
}

// MapAll maps several site tokens and merges the result.
func (m CategoryMap) MapAll(tokens []string) []category.ID {
	var ids []category.ID
	for _, t := range tokens {
		ids = append(ids, m.Map(t)...)
	}
	return category.Normalize(ids)
}

// SiteTokens returns, in declaration order, the site tokens that serve any of
// the query categories. A parent query id also selects its children.
func (m CategoryMap) SiteTokens(query []category.ID) []string {
	var tokens []string
	for _, token := range m.order {
		if matchesAny(m.forward[token], query) {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

func (m CategoryMap) Len() int { return len(m.order) }

// Supports reports whether any mapped token can serve the query categories.
// An empty query matches everything.
func (m CategoryMap) Supports(query []category.ID) bool {
	return len(query) == 0 || len(m.SiteTokens(query)) > 0
}

func matchesAny(ids, query []category.ID) bool {
	for _, q := range query {
		for _, id := range ids {
			if q.Contains(id) {
				return true
			}
		}
	}
	return false
}
