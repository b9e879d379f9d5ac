package export

import (
	"time"

	"student_achievements/backend/internal/shared"
)

const monthYearLayout = "Jan 2006"

// MonthYear renders t as "Jan 2023"
func MonthYear(t time.Time) string {
	return t.UTC().Format(monthYearLayout)
}

func timeframe(a shared.Achievement, sep string) string {
	to := "Present"
	if a.ToDate != nil {
		to = MonthYear(*a.ToDate)
	}
	return MonthYear(a.FromDate) + sep + to
}

// DocumentTimeframe is the report form, "Jan 2023 – Present"
func DocumentTimeframe(a shared.Achievement) string {
	return timeframe(a, " – ")
}

// TimelineEntry is the spreadsheet form, "Jan 2023 - Mar 2023"
func TimelineEntry(a shared.Achievement) string {
	return timeframe(a, " - ")
}
