package post

import (
	"regexp"
	"strconv"
	"time"
)

// DayEpoch is the date of day-001 in the 100 days of code log.
var DayEpoch = time.Date(2025, time.January, 8, 0, 0, 0, 0, time.UTC)

var (
	isoDateRe = regexp.MustCompile(`(\d{4})[/-](\d{2})[/-](\d{2})`)
	compactRe = regexp.MustCompile(`(\d{2})(\d{2})(\d{2})`)
	dayNumRe  = regexp.MustCompile(`day-(\d{3})`)
)

// ExtractDate reads the date a stored path encodes. Patterns are tried in
// order: YYYY-MM-DD or YYYY/MM/DD, DDMMYY, day-NNN. Paths that carry no
// usable date sort as now.
func ExtractDate(p string, now time.Time) time.Time {
	if m := isoDateRe.FindStringSubmatch(p); m != nil {
		if d, ok := calendarDate(m[1], m[2], m[3]); ok {
			return d
		}
	}
	if m := compactRe.FindStringSubmatch(p); m != nil {
		if d, ok := calendarDate("20"+m[3], m[2], m[1]); ok {
			return d
		}
	}
	if m := dayNumRe.FindStringSubmatch(p); m != nil {
		n, _ := strconv.Atoi(m[1])
		return DayEpoch.AddDate(0, 0, n-1)
	}
	return now
}

func calendarDate(y, m, d string) (time.Time, bool) {
	t, err := time.Parse(time.DateOnly, y+"-"+m+"-"+d)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
