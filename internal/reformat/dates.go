// Package reformat rewrites delimited files with normalized date columns and
// a new field delimiter.
package reformat

import (
	"strings"
	"time"
)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// DefaultLayout is the output layout when none is given.
const DefaultLayout = "2006-01-02"

// Date layouts split by year format for proper 2-digit year handling.
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"2006-01-02T15:04:05Z07:00", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 3:04 PM",
		"Jan 2, 2006", "January 2, 2006", "2 Jan 2006", "02-Jan-2006", "2-Jan-06",
		"20060102",
	}
)

// ParseDate parses s with the first matching known layout. Four-digit year
// layouts are tried first; two-digit years beyond now+TwoDigitYearPivot are
// moved back a century.
func ParseDate(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if layout == "2-Jan-06" {
				t = pivot(t, now)
			}
			return t, true
		}
	}

	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return pivot(t, now), true
		}
	}

	return time.Time{}, false
}

func pivot(t, now time.Time) time.Time {
	if t.Year() > now.Year()+TwoDigitYearPivot {
		return t.AddDate(-100, 0, 0)
	}
	return t
}

var patternReplacer = strings.NewReplacer(
	"YYYY", "2006",
	"YY", "06",
	"MM", "01",
	"DD", "02",
	"M", "1",
	"D", "2",
)

// Layout converts a user pattern such as MM/DD/YYYY into a Go time layout.
// Values that already look like a Go layout are returned unchanged; an empty
// pattern yields DefaultLayout.
func Layout(pattern string) string {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return DefaultLayout
	}
	if strings.Contains(pattern, "2006") || (strings.Contains(pattern, "06") && strings.Contains(pattern, "01")) {
		return pattern
	}
	return patternReplacer.Replace(strings.ToUpper(pattern))
}
