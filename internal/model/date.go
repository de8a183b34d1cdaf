package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DatePrecision marks how much of a release date is actually known.
type DatePrecision int

// Date precisions, from least to most precise.
const (
	PrecisionUnknown DatePrecision = 0
	PrecisionYear    DatePrecision = 1
	PrecisionMonth   DatePrecision = 2
	PrecisionDay     DatePrecision = 3
)

func (p DatePrecision) String() string {
	switch p {
	case PrecisionYear:
		return "year"
	case PrecisionMonth:
		return "month"
	case PrecisionDay:
		return "day"
	default:
		return "unknown"
	}
}

// ParseDate parses a scraper-supplied date and infers its precision:
// "2019" is year precision, "2019-12" month, "2019-12-08" (optionally followed
// by a time) day. An empty string yields the zero time with unknown precision.
func ParseDate(s string) (time.Time, DatePrecision, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, PrecisionUnknown, nil
	}
	if len(s) > 10 && (s[10] == 'T' || s[10] == ' ') {
		s = s[:10]
	}
	switch len(s) {
	case 4:
		y, err := strconv.Atoi(s)
		if err != nil {
			return time.Time{}, PrecisionUnknown, eris.Wrapf(err, "model: parse year %q", s)
		}
		return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC), PrecisionYear, nil
	case 7:
		t, err := time.Parse("2006-01", s)
		if err != nil {
			return time.Time{}, PrecisionUnknown, eris.Wrapf(err, "model: parse month %q", s)
		}
		return t, PrecisionMonth, nil
	case 10:
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, PrecisionUnknown, eris.Wrapf(err, "model: parse day %q", s)
		}
		return t, PrecisionDay, nil
	}
	return time.Time{}, PrecisionUnknown, eris.Errorf("model: unrecognized date %q", s)
}

// Pin truncates t to the start of the period its precision describes.
func Pin(t time.Time, p DatePrecision) time.Time {
	switch p {
	case PrecisionYear, PrecisionUnknown:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	case PrecisionMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// Span returns the inclusive-start, exclusive-end interval covered by a date
// of the given precision. Unknown precision reports ok=false: it is
// compatible with any date.
func Span(t time.Time, p DatePrecision) (start, end time.Time, ok bool) {
	if p == PrecisionUnknown {
		return time.Time{}, time.Time{}, false
	}
	start = Pin(t, p)
	switch p {
	case PrecisionYear:
		end = start.AddDate(1, 0, 0)
	case PrecisionMonth:
		end = start.AddDate(0, 1, 0)
	default:
		end = start.AddDate(0, 0, 1)
	}
	return start, end, true
}

// FormatDate renders t at the given precision.
func FormatDate(t time.Time, p DatePrecision) string {
	switch p {
	case PrecisionUnknown:
		return ""
	case PrecisionYear:
		return t.Format("2006")
	case PrecisionMonth:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}
