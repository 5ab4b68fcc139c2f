package discovery

import "time"

// Horizon returns the cutoff for a trailing window of months ending at now.
// Windows shorter than one month are widened to one month. Subtraction is by
// calendar month and clamps to the end of shorter months, so March 31 minus
// one month is the last day of February.
func Horizon(now time.Time, months int) time.Time {
	if months < 1 {
		months = 1
	}

	year, month, day := now.Date()
	first := time.Date(year, month-time.Month(months), 1, 0, 0, 0, 0, now.Location())

	if last := daysIn(first.Year(), first.Month(), now.Location()); day > last {
		day = last
	}

	return time.Date(first.Year(), first.Month(), day,
		now.Hour(), now.Minute(), now.Second(), now.Nanosecond(), now.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
