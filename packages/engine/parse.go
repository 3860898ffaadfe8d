package engine

import (
	"encoding/base32"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/dustin/go-humanize"
)

var (
	sizeRegex      = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)*)\s*(tib|tb|тб|gib|gb|гб|mib|mb|мб|kib|kb|кб|bytes|byte|b|б)?`)
	digitsRegex    = regexp.MustCompile(`-?\d+`)
	magnetRegex    = regexp.MustCompile(`(?i)xt=urn:btih:([a-f0-9]{40}|[a-z2-7]{32})`)
	timeagoRegex   = regexp.MustCompile(`(?i)(\d+)\s*(sec|second|min|minute|hour|day|week|month|year)s?\s+ago`)
	todayRegex     = regexp.MustCompile(`(?i)^(?:today|сегодня)(?:\s+(?:at\s+|в\s+)?(\d{1,2}):(\d{2}))?$`)
	yesterdayRegex = regexp.MustCompile(`(?i)^(?:yesterday|вчера)(?:\s+(?:at\s+|в\s+)?(\d{1,2}):(\d{2}))?$`)
	ruDateRegex    = regexp.MustCompile(`^(\d{1,2})[-\s.]([А-Яа-яЁё]{3})[А-Яа-яЁё.]*[-\s.](\d{2}|\d{4})(?:\s+(\d{1,2}):(\d{2}))?$`)
)

// Trackers mean binary multiples whatever the label says, so every unit is
// handed to humanize in its IEC form.
var sizeUnits = map[string]string{
	"": "B", "b": "B", "б": "B", "byte": "B", "bytes": "B",
	"kb": "KiB", "kib": "KiB", "кб": "KiB",
	"mb": "MiB", "mib": "MiB", "мб": "MiB",
	"gb": "GiB", "gib": "GiB", "гб": "GiB",
	"tb": "TiB", "tib": "TiB", "тб": "TiB",
}

var ruMonths = map[string]time.Month{
	"янв": time.January, "фев": time.February, "мар": time.March, "апр": time.April,
	"май": time.May, "мая": time.May, "июн": time.June, "июл": time.July, "авг": time.August,
	"сен": time.September, "окт": time.October, "ноя": time.November, "дек": time.December,
}

// dateparse reads numeric dates month first; these day-first forms win.
var dayFirstLayouts = []string{
	"02.01.2006 15:04",
	"02.01.2006",
	"02-01-2006 15:04",
	"02-01-2006",
}

// parseSize understands "1.5 GB", "700 MiB", "1,2 ГБ" and plain byte counts.
func parseSize(s string) (int64, bool) {
	m := sizeRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	unit, ok := sizeUnits[strings.ToLower(m[2])]
	if !ok {
		return 0, false
	}
	n, err := humanize.ParseBytes(decimalNumber(m[1]) + " " + unit)
	if err != nil {
		return 0, false
	}
	return int64(n), true
}

// decimalNumber turns "1,2" into "1.2" and drops thousands separators from
// "1,234" and "1,234.5".
func decimalNumber(number string) string {
	switch {
	case strings.Contains(number, ",") && strings.Contains(number, "."):
		return strings.ReplaceAll(number, ",", "")
	case strings.Count(number, ",") == 1 && len(number)-strings.Index(number, ",") != 4:
		return strings.Replace(number, ",", ".", 1)
	default:
		return strings.ReplaceAll(number, ",", "")
	}
}

// parseCount reads seeders/leechers style numbers ("1,234", " 12 ").
func parseCount(s string) (int, bool) {
	clean := strings.NewReplacer(",", "", " ", "", "\u00a0", "").Replace(s)
	m := digitsRegex.FindString(clean)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseDate tries day-first layouts, Russian month names and relative
// expressions before handing the rest to dateparse.
func parseDate(s string, now time.Time) (time.Time, bool) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dayFirstLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if t, ok := parseRussianDate(s); ok {
		return t, true
	}
	if t, ok := parseTimeAgo(s, now); ok {
		return t, true
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func parseRussianDate(s string) (time.Time, bool) {
	m := ruDateRegex.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	month, ok := ruMonths[strings.ToLower(m[2])]
	if !ok {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[3])
	if year < 100 {
		year += 2000
	}
	hour, minute := 0, 0
	if m[4] != "" {
		hour, _ = strconv.Atoi(m[4])
		minute, _ = strconv.Atoi(m[5])
	}
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC), true
}

func parseTimeAgo(s string, now time.Time) (time.Time, bool) {
	if m := todayRegex.FindStringSubmatch(s); m != nil {
		return atClock(now, m[1], m[2]), true
	}
	if m := yesterdayRegex.FindStringSubmatch(s); m != nil {
		return atClock(now.AddDate(0, 0, -1), m[1], m[2]), true
	}
	m := timeagoRegex.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	value, _ := strconv.Atoi(m[1])
	switch strings.ToLower(m[2]) {
	case "sec", "second":
		return now.Add(-time.Duration(value) * time.Second), true
	case "min", "minute":
		return now.Add(-time.Duration(value) * time.Minute), true
	case "hour":
		return now.Add(-time.Duration(value) * time.Hour), true
	case "day":
		return now.AddDate(0, 0, -value), true
	case "week":
		return now.AddDate(0, 0, -value*7), true
	case "month":
		return now.AddDate(0, -value, 0), true
	default:
		return now.AddDate(-value, 0, 0), true
	}
}

func atClock(day time.Time, hour, minute string) time.Time {
	if hour == "" {
		return day
	}
	h, _ := strconv.Atoi(hour)
	m, _ := strconv.Atoi(minute)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}

// normalizeInfoHash returns a lower-case hex info hash, converting the
// base32 form used by some magnets.
func normalizeInfoHash(raw string) string {
	raw = strings.TrimSpace(raw)
	switch len(raw) {
	case 40:
		if _, err := hex.DecodeString(raw); err == nil {
			return strings.ToLower(raw)
		}
	case 32:
		if b, err := base32.StdEncoding.DecodeString(strings.ToUpper(raw)); err == nil {
			return hex.EncodeToString(b)
		}
	}
	return ""
}

func infoHashFromMagnet(link string) string {
	m := magnetRegex.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	return normalizeInfoHash(m[1])
}
