package engine

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mozillazg/go-unidecode"

	"metasearch/packages/definition"
)

// applyFilters runs the chain in order. A filter that cannot produce a value
// (regexp without a match, split index out of range) ends the chain with ok=false.
func applyFilters(value string, filters []definition.Filter, now time.Time) (string, bool) {
	for _, f := range filters {
		var ok bool
		value, ok = applyFilter(value, f, now)
		if !ok {
			return "", false
		}
	}
	return value, true
}

func applyFilter(v string, f definition.Filter, now time.Time) (string, bool) {
	args := f.Args
	switch f.Name {
	case "trim":
		return strings.TrimSpace(v), true
	case "lowercase":
		return strings.ToLower(v), true
	case "uppercase":
		return strings.ToUpper(v), true
	case "replace":
		return strings.ReplaceAll(v, args[0], args[1]), true
	case "re_replace":
		return f.Regexp().ReplaceAllString(v, args[1]), true
	case "regexp":
		m := f.Regexp().FindStringSubmatch(v)
		if m == nil {
			return "", false
		}
		if len(m) > 1 {
			return m[1], true
		}
		return m[0], true
	case "split":
		parts := strings.Split(v, args[0])
		idx, _ := strconv.Atoi(args[1])
		if idx < 0 {
			idx += len(parts)
		}
		if idx < 0 || idx >= len(parts) {
			return "", false
		}
		return parts[idx], true
	case "prepend":
		return args[0] + v, true
	case "append":
		return v + args[0], true
	case "querystring":
		u, err := url.Parse(strings.TrimSpace(v))
		if err != nil {
			return "", false
		}
		return u.Query().Get(args[0]), true
	case "urldecode":
		out, err := url.QueryUnescape(v)
		if err != nil {
			return "", false
		}
		return out, true
	case "urlencode":
		return url.QueryEscape(v), true
	case "diacritics":
		return unidecode.Unidecode(v), true
	case "dateparse":
		if len(args) > 0 && args[0] != "" {
			t, err := time.ParseInLocation(args[0], strings.TrimSpace(v), time.UTC)
			if err != nil {
				return "", false
			}
			return t.Format(time.RFC3339), true
		}
		t, ok := parseDate(v, now)
		if !ok {
			return "", false
		}
		return t.Format(time.RFC3339), true
	case "timeago":
		t, ok := parseTimeAgo(strings.TrimSpace(v), now)
		if !ok {
			return "", false
		}
		return t.Format(time.RFC3339), true
	default:
		return v, true
	}
}
