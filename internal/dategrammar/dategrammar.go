// Package dategrammar parses scraped date text using a per-venue date
// grammar: a Go reference layout such as "Mon Jan 2" discovered once per
// venue and stored alongside its selectors.
//
// Venue listings usually omit the year, so a year-less grammar resolves to
// the nearest future occurrence of the month/day pair: the current year when
// that date is still ahead, otherwise the next year. Ordinal suffixes
// ("June 1st") are stripped before any parse attempt.
package dategrammar

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Invalid is the sentinel grammar returned by discovery when the sampled
// dates carry too little information to parse (for example a bare day
// number).
const Invalid = "INVALID"

var ordinalPattern = regexp.MustCompile(`(\d+)(st|nd|rd|th)`)

// Normalize strips ordinal suffixes ("1st" -> "1") and surrounding
// whitespace from raw date text.
func Normalize(raw string) string {
	return strings.TrimSpace(ordinalPattern.ReplaceAllString(raw, "$1"))
}

// HasYear reports whether a layout carries a year token ("2006" or "06").
func HasYear(layout string) bool {
	return strings.Contains(layout, "2006") || strings.Contains(layout, "06")
}

// HasMonth reports whether a layout carries a month token ("January",
// "Jan", "01" or "1"). The hour token "15" is masked first so its digit
// does not read as a numeric month.
func HasMonth(layout string) bool {
	if strings.Contains(layout, "Jan") {
		return true
	}
	return strings.Contains(strings.ReplaceAll(layout, "15", ""), "1")
}

// Parse parses raw date text with the given grammar. Year-less grammars
// resolve to the nearest future occurrence of the month/day relative to
// today. A grammar without a month token cannot identify a calendar day and
// is rejected.
func Parse(raw, layout string, today time.Time) (time.Time, error) {
	if layout == "" || strings.EqualFold(layout, Invalid) {
		return time.Time{}, fmt.Errorf("no usable date grammar")
	}

	raw = Normalize(raw)

	if HasYear(layout) {
		t, err := time.Parse(layout, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing %q with grammar %q: %w", raw, layout, err)
		}
		return dateOnly(t), nil
	}

	if !HasMonth(layout) {
		return time.Time{}, fmt.Errorf("grammar %q has no month token, cannot resolve %q", layout, raw)
	}

	// Append the current year, then roll forward if the naive date already
	// passed.
	t, err := time.Parse(layout+" 2006", fmt.Sprintf("%s %d", raw, today.Year()))
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %q with grammar %q: %w", raw, layout, err)
	}
	parsed := dateOnly(t)
	if parsed.Before(dateOnly(today)) {
		parsed = parsed.AddDate(1, 0, 0)
	}
	return parsed, nil
}

// Format renders a parsed date back through the same grammar. Together with
// Parse this gives round-trip stability: re-parsing the formatted value
// yields the identical date.
func Format(t time.Time, layout string) string {
	return t.Format(layout)
}

// SuccessRate returns the fraction of raw dates a grammar can parse, in
// [0, 1]. An empty sample scores zero.
func SuccessRate(raws []string, layout string, today time.Time) float64 {
	if len(raws) == 0 {
		return 0
	}
	parsed := 0
	for _, raw := range raws {
		if _, err := Parse(raw, layout, today); err == nil {
			parsed++
		}
	}
	return float64(parsed) / float64(len(raws))
}

// ParseISO parses the ISO 8601 shapes seen in embedded structured event
// data: full RFC 3339 timestamps, timestamps without a zone, and bare dates.
func ParseISO(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return dateOnly(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized ISO date %q", raw)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
