package recon

import (
	"strings"
	"time"

	"github.com/warp/authz-report/table"
)

// OutputDateLayout is how every parsed date is rendered (MM/DD/YYYY).
const OutputDateLayout = "01/02/2006"

// dateLayouts are tried in order: numeric, ISO, day-first, month-first.
var dateLayouts = []string{
	"20060102",
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02/01/2006",
	"02-01-2006",
	"01/02/2006",
	"01-02-2006",
}

// ParseDate parses a raw register date. ok is false for missing or
// unrecognized input.
func ParseDate(v table.Value) (time.Time, bool) {
	s, ok := v.Str()
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeDate re-renders a raw date as MM/DD/YYYY, or Missing.
func NormalizeDate(v table.Value) table.Value {
	t, ok := ParseDate(v)
	if !ok {
		return table.Missing
	}
	return table.Text(t.Format(OutputDateLayout))
}

// parseOutputDate reads back a date rendered by NormalizeDate.
func parseOutputDate(v table.Value) (time.Time, bool) {
	s, ok := v.Str()
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(OutputDateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// YearDiff is year(expiry) - year(effective) for two normalized dates,
// or 0 when either is missing.
func YearDiff(effective, expiry table.Value) int {
	eff, ok1 := parseOutputDate(effective)
	exp, ok2 := parseOutputDate(expiry)
	if !ok1 || !ok2 {
		return 0
	}
	return exp.Year() - eff.Year()
}
