package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"student_achievements/backend/internal/filter"
	"student_achievements/backend/internal/report"
	"student_achievements/backend/internal/shared"
)

// SheetName is the name of the single worksheet
const SheetName = "Filtered Students"

// TimelineSuffix marks the timeline column of a category
const TimelineSuffix = "_timeline"

// SpreadsheetContentType is the media type of the xlsx payload
const SpreadsheetContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// StaticColumns are the student fields selectable as columns, in the order
// used when the caller selects none.
var StaticColumns = []string{"name", "email", "rollNumber", "yearOfStudy", "batch", "cgpa", "createdAt"}

// Column is a resolved spreadsheet column. Value is chosen once per export
// and applied to every row.
type Column struct {
	Key    string
	Header string
	Width  float64
	Value  func(j *report.Joined) interface{}
}

var staticHeaders = map[string]struct {
	header string
	width  float64
	value  func(s *shared.Student) interface{}
}{
	"name":        {"Name", 25, func(s *shared.Student) interface{} { return s.Name }},
	"email":       {"Email", 30, func(s *shared.Student) interface{} { return s.Email }},
	"rollNumber":  {"Roll Number", 20, func(s *shared.Student) interface{} { return s.RollNumber }},
	"yearOfStudy": {"Year of Study", 20, func(s *shared.Student) interface{} { return s.YearOfStudy }},
	"batch":       {"Batch", 10, func(s *shared.Student) interface{} { return s.Batch }},
	"cgpa": {"CGPA", 10, func(s *shared.Student) interface{} {
		if s.CGPA == nil {
			return ""
		}
		return *s.CGPA
	}},
	"createdAt": {"Created At", 25, func(s *shared.Student) interface{} {
		return s.CreatedAt.UTC().Format("2006-01-02 15:04:05")
	}},
}

func categoryHeader(c shared.Category) string {
	switch c {
	case shared.CategoryInternships:
		return "Internship (Companies)"
	case shared.CategoryPlacement:
		return "Placement (Companies)"
	case shared.CategoryCourse:
		return "Courses"
	}
	return string(c)
}

func timelineHeader(c shared.Category) string {
	if c == shared.CategoryInternships {
		return "Internship (Timeline)"
	}
	return string(c) + " (Timeline)"
}

// ParseColumnKeys splits the comma separated column parameter, dropping
// blanks and repeats.
func ParseColumnKeys(raw string) []string {
	seen := map[string]bool{}
	keys := []string{}
	for _, part := range strings.Split(raw, ",") {
		key := strings.TrimSpace(part)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}

// ResolveColumns maps the requested keys to columns. An empty request gets
// the static columns. When the internship toggle is on, the internship
// roster and timeline columns are appended if missing.
func ResolveColumns(keys []string, p filter.Params) ([]Column, error) {
	if len(keys) == 0 {
		keys = append([]string(nil), StaticColumns...)
	}

	if p.HasCategory(shared.CategoryInternships) {
		for _, required := range []string{string(shared.CategoryInternships), string(shared.CategoryInternships) + TimelineSuffix} {
			if !containsKey(keys, required) {
				keys = append(keys, required)
			}
		}
	}

	columns := make([]Column, 0, len(keys))
	for _, key := range keys {
		col, err := resolveColumn(key)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	return columns, nil
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func resolveColumn(key string) (Column, error) {
	if static, ok := staticHeaders[key]; ok {
		value := static.value
		return Column{
			Key:    key,
			Header: static.header,
			Width:  static.width,
			Value:  func(j *report.Joined) interface{} { return value(&j.Student) },
		}, nil
	}

	if label, ok := strings.CutSuffix(key, TimelineSuffix); ok {
		c, err := shared.ParseCategory(label)
		if err != nil {
			return Column{}, unknownColumn(key)
		}
		return Column{
			Key:    key,
			Header: timelineHeader(c),
			Width:  40,
			Value: func(j *report.Joined) interface{} {
				return roster(j.Groups.Get(c), "; ", TimelineEntry)
			},
		}, nil
	}

	c, err := shared.ParseCategory(key)
	if err != nil {
		return Column{}, unknownColumn(key)
	}
	return Column{
		Key:    key,
		Header: categoryHeader(c),
		Width:  40,
		Value: func(j *report.Joined) interface{} {
			return roster(j.Groups.Get(c), ", ", func(a shared.Achievement) string {
				if a.CompanyName != "" {
					return a.CompanyName
				}
				return a.Title
			})
		},
	}, nil
}

func unknownColumn(key string) error {
	return shared.NewValidationError(fmt.Sprintf("unknown column %q", key))
}

func roster(achievements []shared.Achievement, sep string, item func(shared.Achievement) string) string {
	if len(achievements) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(achievements))
	for _, a := range achievements {
		parts = append(parts, item(a))
	}
	return strings.Join(parts, sep)
}

// WriteSpreadsheet renders the whole workbook before writing any byte to w,
// so a rendering failure leaves w untouched.
func WriteSpreadsheet(w io.Writer, joined []report.Joined, columns []Column) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	for i, col := range columns {
		if err := sw.SetColWidth(i+1, i+1, col.Width); err != nil {
			return err
		}
	}

	header := make([]interface{}, len(columns))
	for i, col := range columns {
		header[i] = excelize.Cell{StyleID: bold, Value: col.Header}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	for r := range joined {
		row := make([]interface{}, len(columns))
		for i, col := range columns {
			row[i] = col.Value(&joined[r])
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}

	if err := sw.Flush(); err != nil {
		return err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return err
	}
	_, err = buf.WriteTo(w)
	return err
}
