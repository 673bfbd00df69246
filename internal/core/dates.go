package core

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 0

// spreadsheetEpoch is day zero of the 1900 date system as used by Excel and
// LibreOffice. Starting on Dec 30 absorbs the fictitious 1900-02-29.
var spreadsheetEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// serialPattern matches values treated as spreadsheet day serials. Five
// integer digits cover dates up to the year 2173.
var serialPattern = regexp.MustCompile(`^\d{1,5}(\.\d+)?$`)

// Explicit layouts, day first, tried in order.
var (
	fourDigitYearLayouts = []string{
		"02/01/2006", "2/1/2006",
		"02-01-2006", "2-1-2006",
		"02.01.2006", "2.1.2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"20060102",
	}
	twoDigitYearLayouts = []string{
		"02/01/06", "2/1/06", "02-01-06", "2-1-06", "02.01.06", "2.1.06",
	}
	genericLayouts = []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"02/01/2006 15:04:05",
		"02/01/2006 15:04",
		"2 January 2006",
		"2 Jan 2006",
		"January 2, 2006",
		"Jan 2, 2006",
		"January 2 2006",
	}
)

// frenchMonths maps folded French month names to their English form so the
// generic layouts can parse "12 février 1990".
var frenchMonths = strings.NewReplacer(
	"janvier", "January",
	"fevrier", "February",
	"mars", "March",
	"avril", "April",
	"mai", "May",
	"juin", "June",
	"juillet", "July",
	"aout", "August",
	"septembre", "September",
	"octobre", "October",
	"novembre", "November",
	"decembre", "December",
	"1er", "1",
)

// ParseSerialDate converts a spreadsheet day serial to a date. The fractional
// part (time of day) is ignored.
func ParseSerialDate(s string) (time.Time, bool) {
	if !serialPattern.MatchString(s) {
		return time.Time{}, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, false
	}
	return spreadsheetEpoch.AddDate(0, 0, int(math.Floor(f))), true
}

// ParseDate interprets s as a calendar date. Numeric values are treated as
// spreadsheet serials, then the explicit layouts are tried, then the generic
// fallback. now anchors the two-digit year pivot.
func ParseDate(s string, now time.Time) (time.Time, bool) {
	s = CollapseSpaces(s)
	if s == "" {
		return time.Time{}, false
	}

	if t, ok := ParseSerialDate(s); ok {
		return t, true
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := now.Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	candidates := []string{s}
	if translated := frenchMonths.Replace(FoldText(s)); translated != FoldText(s) {
		candidates = append(candidates, translated)
	}
	for _, c := range candidates {
		for _, layout := range genericLayouts {
			if t, err := time.Parse(layout, c); err == nil {
				y, m, d := t.Date()
				return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
			}
		}
	}

	return time.Time{}, false
}
