package titlenorm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/unicode/norm"

	"metasearch/packages/category"
)

// locale is the vocabulary one parser understands. Word lists are regex
// alternations, longest form first.
type locale struct {
	key       string
	script    *unicode.RangeTable
	season    string
	episode   string
	of        string
	padSeason bool
	// episodeNeedsTV keeps episode-only titles unchanged unless the categories
	// say TV. English film titles use "Episode N" too.
	episodeNeedsTV bool
	// ascii locales can rely on \b, which only knows ASCII word characters.
	ascii bool
}

var locales = []locale{
	{
		key:            "en",
		script:         unicode.Latin,
		season:         `seasons|season`,
		episode:        `episodes|episode`,
		of:             `of`,
		episodeNeedsTV: true,
		ascii:          true,
	},
	{
		key:     "ru",
		script:  unicode.Cyrillic,
		season:  `сезоны|сезон`,
		episode: `серии|серия|эпизоды|эпизод|выпуски|выпуск`,
		of:      `из`,
	},
	{
		key:       "uk",
		script:    unicode.Cyrillic,
		season:    `сезони|сезон`,
		episode:   `серії|серія|епізоди|епізод|випуски|випуск`,
		of:        `із|з`,
		padSeason: true,
	},
}

const (
	numberPart = `\d+`
	rangePart  = `\d+(?:\s*-\s*\d+)?`
	listPart   = `\d+(?:\s*-\s*\d+)?(?:\s*,\s*\d+(?:\s*-\s*\d+)?)*`
	totalPart  = `\d+|[XxХх]+|\?+`

	wordSep   = `\s*:?\s*`
	seasonSep = `\s*[,;/]?\s*`

	tokenOpen  = "\x00"
	tokenClose = "\x01"
)

var (
	dashRegex         = regexp.MustCompile(`\p{Pd}`)
	tokenRegex        = regexp.MustCompile(`\x00([^\x00\x01]*)\x01`)
	emptyBracketRegex = regexp.MustCompile(`\(\s*(?:[,;]\s*)*\)|\[\s*(?:[,;]\s*)*\]`)
	leadingSepRegex   = regexp.MustCompile(`([(\[])\s*[,;]\s*`)
	trailingSepRegex  = regexp.MustCompile(`\s*[,;]\s*([)\]])`)
	seasonOnlyRegex   = regexp.MustCompile(`^S\d+$`)
)

type rule struct {
	re     *regexp.Regexp
	format func(groups []string) string
}

func (l locale) word(alternation string) string {
	if l.ascii {
		return `\b(?:` + alternation + `)\b`
	}
	return `(?:` + alternation + `)`
}

// rules are applied in order; the combined season+episode forms must run
// before the single forms consume their words.
func (l locale) rules() []rule {
	season, episode, of := l.word(l.season), l.word(l.episode), l.word(l.of)
	compile := func(pattern string) *regexp.Regexp {
		return regexp.MustCompile(`(?i)` + pattern)
	}

	return []rule{
		{
			re: compile(season + wordSep + `(` + numberPart + `)` + seasonSep + episode + wordSep + `(` + listPart + `)\s*` + of + `\s*(` + totalPart + `)`),
			format: func(g []string) string {
				return "S" + l.formatSeason(g[1]) + "E" + formatEpisodes(g[2]) + " of " + formatTotal(g[3])
			},
		},
		{
			re: compile(season + wordSep + `(` + numberPart + `)` + seasonSep + episode + wordSep + `(` + listPart + `)`),
			format: func(g []string) string {
				return "S" + l.formatSeason(g[1]) + "E" + formatEpisodes(g[2])
			},
		},
		{
			re: compile(season + wordSep + `(` + rangePart + `)`),
			format: func(g []string) string {
				return "S" + l.formatSeason(g[1])
			},
		},
		{
			re: compile(episode + wordSep + `(` + listPart + `)\s*` + of + `\s*(` + totalPart + `)`),
			format: func(g []string) string {
				return "E" + formatEpisodes(g[1]) + " of " + formatTotal(g[2])
			},
		},
		{
			re: compile(episode + wordSep + `(` + listPart + `)`),
			format: func(g []string) string {
				return "E" + formatEpisodes(g[1])
			},
		},
	}
}

// formatSeason keeps ranges verbatim and pads single seasons only where the
// locale asks for it.
func (l locale) formatSeason(raw string) string {
	raw = strings.Join(strings.Fields(raw), "")
	if strings.Contains(raw, "-") || !l.padSeason {
		return raw
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return raw
	}
	return fmt.Sprintf("%02d", n)
}

func formatTotal(raw string) string {
	return strings.NewReplacer("Х", "X", "х", "x").Replace(raw)
}

func newLocaleParser(l locale) Func {
	rules := l.rules()
	seasonWord := regexp.MustCompile(`(?i)` + l.word(l.season))

	return func(title string, cats []category.ID, opts Options) string {
		if len(cats) > 0 && !category.AnyTV(cats) {
			return title
		}
		if !containsScript(title, l.script) {
			return title
		}
		if l.episodeNeedsTV && !category.AnyTV(cats) && !seasonWord.MatchString(title) {
			return title
		}

		work := prepare(title)
		for _, r := range rules {
			work = rewrite(r.re, work, r.format)
		}
		if !strings.Contains(work, tokenOpen) {
			return title
		}

		out := assemble(work, opts.StripNonLatin)
		if strings.TrimSpace(out) == "" {
			return title
		}
		return out
	}
}

func containsScript(s string, script *unicode.RangeTable) bool {
	for _, r := range s {
		if unicode.Is(script, r) {
			return true
		}
	}
	return false
}

func prepare(title string) string {
	work := strings.NewReplacer(tokenOpen, "", tokenClose, "").Replace(title)
	work = norm.NFC.String(work)
	return dashRegex.ReplaceAllString(work, "-")
}

// rewrite replaces every match with its formatted descriptor wrapped in token
// markers, so later passes and segment assembly can find it again.
func rewrite(re *regexp.Regexp, s string, format func([]string) string) string {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return s
	}

	var b strings.Builder
	last := 0
	for _, loc := range matches {
		b.WriteString(s[last:loc[0]])
		groups := make([]string, len(loc)/2)
		for i := range groups {
			if loc[2*i] >= 0 {
				groups[i] = s[loc[2*i]:loc[2*i+1]]
			}
		}
		b.WriteString(tokenOpen + format(groups) + tokenClose)
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func untoken(s string) string {
	return tokenRegex.ReplaceAllString(s, "$1")
}

type segment struct {
	text   string
	rest   string
	tokens []string
	latin  bool
}

func splitSegment(s string) segment {
	seg := segment{text: strings.TrimSpace(untoken(s))}
	for _, m := range tokenRegex.FindAllStringSubmatch(s, -1) {
		seg.tokens = append(seg.tokens, m[1])
	}

	rest := tokenRegex.ReplaceAllString(s, "")
	rest = emptyBracketRegex.ReplaceAllString(rest, "")
	rest = leadingSepRegex.ReplaceAllString(rest, "$1")
	rest = trailingSepRegex.ReplaceAllString(rest, "$1")
	rest = emptyBracketRegex.ReplaceAllString(rest, "")
	rest = strings.Join(strings.Fields(rest), " ")
	if strings.IndexFunc(rest, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) < 0 {
		rest = ""
	}
	seg.rest = rest

	script := whatlanggo.DetectScript(rest)
	seg.latin = script == nil || script == unicode.Latin
	return seg
}

// assemble handles titles made of parallel "/"-separated names. Latin
// segments keep their descriptors in place; descriptors of dropped or
// non-Latin segments move to the end of the title.
func assemble(work string, stripNonLatin bool) string {
	raw := strings.Split(work, "/")
	if len(raw) == 1 {
		return untoken(work)
	}

	segs := make([]segment, 0, len(raw))
	for _, s := range raw {
		segs = append(segs, splitSegment(s))
	}

	if stripNonLatin {
		if out, ok := joinSegments(segs, true); ok {
			return out
		}
	}
	out, _ := joinSegments(segs, false)
	return out
}

func joinSegments(segs []segment, stripNonLatin bool) (string, bool) {
	var parts, trailing []string
	for _, s := range segs {
		switch {
		case s.rest == "":
			trailing = append(trailing, s.tokens...)
		case s.latin:
			parts = append(parts, s.text)
		case stripNonLatin:
			trailing = append(trailing, s.tokens...)
		default:
			parts = append(parts, s.rest)
			trailing = append(trailing, s.tokens...)
		}
	}
	if stripNonLatin && len(parts) == 0 {
		return "", false
	}

	out := strings.Join(parts, " / ")
	if t := mergeTokens(trailing); t != "" {
		if out != "" {
			out += " "
		}
		out += t
	}
	return out, true
}

// mergeTokens glues a bare season to the episode descriptor that follows it.
func mergeTokens(tokens []string) string {
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if i+1 < len(tokens) && seasonOnlyRegex.MatchString(t) && strings.HasPrefix(tokens[i+1], "E") {
			t += tokens[i+1]
			i++
		}
		out = append(out, t)
	}
	return strings.Join(out, " ")
}
