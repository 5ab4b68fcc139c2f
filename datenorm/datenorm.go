package datenorm

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrFormatMismatch is returned when a date string matches none of the
// candidate formats.
var ErrFormatMismatch = errors.New("date does not match any format")

// FormatSpec names a Go time layout accepted by the normalizer.
type FormatSpec struct {
	Name   string
	Layout string
}

// DefaultFormats are the layouts used on news search result pages, tried in
// order: abbreviated month first, then full month.
var DefaultFormats = []FormatSpec{
	{Name: "abbreviated-month", Layout: "Jan 2, 2006"},
	{Name: "full-month", Layout: "January 2, 2006"},
}

// Result is the outcome of one normalization attempt. OK is false when no
// format matched; Format holds the name of the matching format otherwise.
type Result struct {
	Time   time.Time
	Format string
	OK     bool
}

// Prepare strips period characters and truncates the leading month token to
// three characters, so "Sept. 5, 2024" and "September 5, 2024" both become
// "Sep 5, 2024".
func Prepare(raw string) string {
	s := strings.TrimSpace(strings.ReplaceAll(raw, ".", ""))
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}

	month := fields[0]
	if len(month) > 3 {
		fields[0] = month[:3]
	}

	return strings.Join(fields, " ")
}

// Attempt tries each format in order against the prepared string and reports
// the first match. Dates are midnight UTC.
func Attempt(raw string, formats []FormatSpec) Result {
	return AttemptIn(raw, formats, time.UTC)
}

// AttemptIn is Attempt with dates read as wall-clock midnight in loc, so they
// compare against local times the way the page displays them.
func AttemptIn(raw string, formats []FormatSpec, loc *time.Location) Result {
	s := Prepare(raw)
	if s == "" {
		return Result{}
	}

	for _, f := range formats {
		t, err := time.ParseInLocation(f.Layout, s, loc)
		if err != nil {
			continue
		}
		return Result{Time: t, Format: f.Name, OK: true}
	}

	return Result{}
}

// Normalize converts a human-readable date into a timestamp. It returns an
// error wrapping ErrFormatMismatch if none of the formats match.
func Normalize(raw string, formats []FormatSpec) (time.Time, error) {
	res := Attempt(raw, formats)
	if !res.OK {
		return time.Time{}, fmt.Errorf("%w: %q", ErrFormatMismatch, raw)
	}
	return res.Time, nil
}
