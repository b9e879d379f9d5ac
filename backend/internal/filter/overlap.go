package filter

import (
	"regexp"
	"strconv"
	"time"
)

// Overlaps is the three-way inclusive interval test: the record starts inside
// the range, ends inside it, or encloses it.
func Overlaps(start, end, from, to time.Time) bool {
	startIn := !start.Before(from) && !start.After(to)
	endIn := !end.Before(from) && !end.After(to)
	encloses := start.Before(from) && end.After(to)
	return startIn || endIn || encloses
}

// Matches applies Overlaps against the range
func (r DateRange) Matches(start, end time.Time) bool {
	return Overlaps(start, end, r.From, r.To)
}

// "2021-2025", "2021 - 2025" and "2021-07 - 2025-06"
var yearOfStudyPattern = regexp.MustCompile(`^\s*(\d{4})(?:-\d{2})?\s*-\s*(\d{4})(?:-\d{2})?\s*$`)

// ParseYearOfStudy reads the two years of a year-of-study label and returns
// January 1st of each. Labels in any other shape do not parse.
func ParseYearOfStudy(label string) (start, end time.Time, ok bool) {
	m := yearOfStudyPattern.FindStringSubmatch(label)
	if m == nil {
		return time.Time{}, time.Time{}, false
	}
	startYear, _ := strconv.Atoi(m[1])
	endYear, _ := strconv.Atoi(m[2])
	if endYear < startYear {
		return time.Time{}, time.Time{}, false
	}
	start = time.Date(startYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	end = time.Date(endYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start, end, true
}
