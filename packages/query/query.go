// Package query
package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"metasearch/packages/category"
)

// Only upper-case S/E markers are tokens. Season is exactly two digits, episode one or two.
var (
	seasonEpisodeRegex = regexp.MustCompile(`\bS(\d{2})(?: ?E(\d{1,2}))?\b`)
	episodeOnlyRegex   = regexp.MustCompile(`\bE(\d{1,2})\b`)
	imdbDigitsRegex    = regexp.MustCompile(`^\d{1,8}$`)
)

// Query is the canonical structured search. Treat it as a value: helpers never modify it.
type Query struct {
	Raw        string
	Term       string
	Season     int
	HasSeason  bool
	Episode    string
	IMDBID     string
	TVDBID     string
	Categories []category.ID
}

// SearchRequest is the inbound structured request handed over by the API layer.
type SearchRequest struct {
	Text       string
	Season     *int
	Episode    string
	IMDBID     string
	TVDBID     string
	Categories []category.ID
}

// Parse extracts a season/episode token from raw text. Input that matches no
// pattern is returned verbatim as the term.
func Parse(raw string) Query {
	q := Query{Raw: raw, Term: raw}

	if loc := seasonEpisodeRegex.FindStringSubmatchIndex(raw); loc != nil {
		season, _ := strconv.Atoi(raw[loc[2]:loc[3]])
		q.Season = season
		q.HasSeason = true
		if loc[4] >= 0 {
			q.Episode = trimEpisode(raw[loc[4]:loc[5]])
		}
		q.Term = cut(raw, loc[0], loc[1])
		return q
	}

	if loc := episodeOnlyRegex.FindStringSubmatchIndex(raw); loc != nil {
		q.Episode = trimEpisode(raw[loc[2]:loc[3]])
		q.Term = cut(raw, loc[0], loc[1])
	}
	return q
}

// FromRequest parses the free text and lets explicit request fields win.
func FromRequest(req SearchRequest) Query {
	q := Parse(req.Text)
	if req.Season != nil {
		q.Season = *req.Season
		q.HasSeason = true
	}
	if ep := strings.TrimSpace(req.Episode); ep != "" {
		q.Episode = trimEpisode(ep)
	}
	q.IMDBID = NormalizeIMDBID(req.IMDBID)
	q.TVDBID = strings.TrimSpace(req.TVDBID)
	q.Categories = category.Normalize(req.Categories)
	return q
}

func (q Query) HasEpisode() bool { return q.Episode != "" }

// IsIDSearch reports whether the query carries an external id and no free text.
func (q Query) IsIDSearch() bool {
	return strings.TrimSpace(q.Term) == "" && (q.IMDBID != "" || q.TVDBID != "")
}

// EpisodeSearchString renders the scene-style token: S01E05, S01 or E05.
func (q Query) EpisodeSearchString() string {
	switch {
	case q.HasSeason && q.HasEpisode():
		return fmt.Sprintf("S%02dE%s", q.Season, padEpisode(q.Episode))
	case q.HasSeason:
		return fmt.Sprintf("S%02d", q.Season)
	case q.HasEpisode():
		return "E" + padEpisode(q.Episode)
	default:
		return ""
	}
}

// Keywords is the term followed by the episode search string.
func (q Query) Keywords() string {
	parts := make([]string, 0, 2)
	if term := strings.TrimSpace(q.Term); term != "" {
		parts = append(parts, term)
	}
	if ep := q.EpisodeSearchString(); ep != "" {
		parts = append(parts, ep)
	}
	return strings.Join(parts, " ")
}

// NormalizeIMDBID returns ids in the tt0000000 form, or "" when the input is not an imdb id.
func NormalizeIMDBID(raw string) string {
	id := strings.ToLower(strings.TrimSpace(raw))
	id = strings.TrimPrefix(id, "tt")
	if !imdbDigitsRegex.MatchString(id) {
		return ""
	}
	n, _ := strconv.Atoi(id)
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("tt%07d", n)
}

func cut(raw string, start, end int) string {
	return strings.Join(strings.Fields(raw[:start]+" "+raw[end:]), " ")
}

func trimEpisode(ep string) string {
	if n, err := strconv.Atoi(ep); err == nil {
		return strconv.Itoa(n)
	}
	return ep
}

func padEpisode(ep string) string {
	if n, err := strconv.Atoi(ep); err == nil {
		return fmt.Sprintf("%02d", n)
	}
	return ep
}
