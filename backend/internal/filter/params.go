// Package filter turns listing query parameters into a student-level
// predicate, a category set and an optional month-anchored date range.
package filter

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"student_achievements/backend/internal/shared"
	"student_achievements/backend/internal/store"
)

// MonthLayout is the wire format of fromYear / toYear
const MonthLayout = "2006-01"

// Toggle binds a boolean query parameter to the category it enables
type Toggle struct {
	Param    string
	Category shared.Category
}

// Toggles lists the eight category switches in the order they are applied
var Toggles = []Toggle{
	{"hasInterned", shared.CategoryInternships},
	{"isPlaced", shared.CategoryPlacement},
	{"isHigherEd", shared.CategoryHigherEducation},
	{"isCompExam", shared.CategoryCompetitive},
	{"isCourse", shared.CategoryCourse},
	{"isAchievement", shared.CategoryCoCurricular},
	{"isParticipation", shared.CategoryParticipation},
	{"isExtraC", shared.CategoryExtraCurricular},
}

// DateRange is a closed interval between two month-start instants
type DateRange struct {
	From time.Time
	To   time.Time
}

// Params is the parsed form of a listing or export query
type Params struct {
	Batch      string
	CGPAMin    *float64
	CGPAMax    *float64
	Search     string
	Range      *DateRange
	Categories []shared.Category
}

// CategoryFilterActive is true when at least one toggle is set
func (p Params) CategoryFilterActive() bool {
	return len(p.Categories) > 0
}

// HasCategory reports whether c was toggled on
func (p Params) HasCategory(c shared.Category) bool {
	for _, selected := range p.Categories {
		if selected == c {
			return true
		}
	}
	return false
}

// StudentQuery returns the store-level predicate. Owners found by the
// achievement search pre-pass are passed in by the caller.
func (p Params) StudentQuery(searchOwners []string) store.StudentQuery {
	return store.StudentQuery{
		Batch:   p.Batch,
		CGPAMin: p.CGPAMin,
		CGPAMax: p.CGPAMax,
		Search:  p.Search,
		AlsoIDs: searchOwners,
	}
}

// ParseParams reads the listing query parameters. Absent parameters are
// inert; malformed ones are validation errors.
func ParseParams(values url.Values) (Params, error) {
	var p Params

	p.Batch = strings.TrimSpace(values.Get("batch"))
	p.Search = strings.TrimSpace(values.Get("search"))

	var err error
	if p.CGPAMin, err = parseCGPA(values.Get("cgpaMin"), "cgpaMin"); err != nil {
		return Params{}, err
	}
	if p.CGPAMax, err = parseCGPA(values.Get("cgpaMax"), "cgpaMax"); err != nil {
		return Params{}, err
	}
	if p.CGPAMin != nil && p.CGPAMax != nil && *p.CGPAMin > *p.CGPAMax {
		return Params{}, shared.NewValidationError("cgpaMin must not exceed cgpaMax")
	}

	if p.Range, err = parseRange(values.Get("fromYear"), values.Get("toYear")); err != nil {
		return Params{}, err
	}

	for _, t := range Toggles {
		if values.Get(t.Param) == "true" {
			p.Categories = append(p.Categories, t.Category)
		}
	}

	return p, nil
}

func parseCGPA(raw, name string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, shared.NewValidationError(fmt.Sprintf("%s must be a number", name))
	}
	if v < 0 || v > 10 {
		return nil, shared.NewValidationError(fmt.Sprintf("%s must be between 0 and 10", name))
	}
	return &v, nil
}

func parseRange(fromRaw, toRaw string) (*DateRange, error) {
	fromRaw, toRaw = strings.TrimSpace(fromRaw), strings.TrimSpace(toRaw)
	if fromRaw == "" && toRaw == "" {
		return nil, nil
	}
	if fromRaw == "" || toRaw == "" {
		return nil, shared.NewValidationError("fromYear and toYear must be supplied together")
	}

	from, err := ParseMonth(fromRaw)
	if err != nil {
		return nil, shared.NewValidationError("fromYear must use the YYYY-MM format")
	}
	to, err := ParseMonth(toRaw)
	if err != nil {
		return nil, shared.NewValidationError("toYear must use the YYYY-MM format")
	}
	if from.After(to) {
		return nil, shared.NewValidationError("fromYear must not be after toYear")
	}
	return &DateRange{From: from, To: to}, nil
}

// ParseMonth parses YYYY-MM into the first instant of that month in UTC
func ParseMonth(s string) (time.Time, error) {
	return time.ParseInLocation(MonthLayout, s, time.UTC)
}
