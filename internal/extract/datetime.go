package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateToken is one datetime occurrence found in free text.
type dateToken struct {
	t       time.Time
	hasTime bool
}

var (
	// Four-digit year, ., - or / separators, optional time part.
	fullDateRe = regexp.MustCompile(`(\d{4})\s?[.\-/]\s?(\d{1,2})\s?[.\-/]\s?(\d{1,2})\.?(?:[ T]*(\d{1,2}):(\d{2})(?::(\d{2}))?)?`)
	// Two-digit year form, common in board listings.
	shortDateRe = regexp.MustCompile(`\b(\d{2})[.\-/](\d{1,2})[.\-/](\d{1,2})(?:[ ]+(\d{1,2}):(\d{2})(?::(\d{2}))?)?`)
)

// ParseLoose interprets one string as a datetime: ISO forms first, then
// the regex battery. Returns the UTC time, whether a time-of-day was
// present, and whether anything parsed at all.
func ParseLoose(s string) (time.Time, bool, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true, true
		}
	}
	for _, layout := range []string{"2006-01-02", "2006.01.02"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, false, true
		}
	}
	tokens := findDateTokens(s)
	if len(tokens) == 0 {
		return time.Time{}, false, false
	}
	best := bestToken(tokens)
	return best.t, best.hasTime, true
}

// findDateTokens scans free text for every recognizable datetime.
func findDateTokens(s string) []dateToken {
	var out []dateToken
	for _, m := range fullDateRe.FindAllStringSubmatch(s, -1) {
		if tok, ok := tokenFromMatch(m, false); ok {
			out = append(out, tok)
		}
	}
	for _, m := range shortDateRe.FindAllStringSubmatch(s, -1) {
		if tok, ok := tokenFromMatch(m, true); ok {
			out = append(out, tok)
		}
	}
	return out
}

func tokenFromMatch(m []string, shortYear bool) (dateToken, bool) {
	year, _ := strconv.Atoi(m[1])
	if shortYear {
		year += 2000
	}
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return dateToken{}, false
	}
	if year < 1990 || year > time.Now().UTC().Year()+1 {
		return dateToken{}, false
	}

	hasTime := m[4] != ""
	hour, min, sec := 0, 0, 0
	if hasTime {
		hour, _ = strconv.Atoi(m[4])
		min, _ = strconv.Atoi(m[5])
		if m[6] != "" {
			sec, _ = strconv.Atoi(m[6])
		}
		if hour > 23 || min > 59 {
			hasTime = false
			hour, min, sec = 0, 0, 0
		}
	}
	return dateToken{
		t:       time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC),
		hasTime: hasTime,
	}, true
}

// bestToken prefers tokens carrying a time-of-day; within that group the
// latest wins.
func bestToken(tokens []dateToken) dateToken {
	best := tokens[0]
	for _, tok := range tokens[1:] {
		if tok.hasTime != best.hasTime {
			if tok.hasTime {
				best = tok
			}
			continue
		}
		if tok.t.After(best.t) {
			best = tok
		}
	}
	return best
}
