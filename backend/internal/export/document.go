package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-pdf/fpdf"

	"student_achievements/backend/internal/report"
	"student_achievements/backend/internal/shared"
)

// DocumentContentType is the media type of the report payload
const DocumentContentType = "application/pdf"

// DocumentKind selects the wording and detail block of a report
type DocumentKind int

const (
	// FullReport lists every selected achievement with the full student block
	FullReport DocumentKind = iota
	// SelectiveReport lists an explicit category selection
	SelectiveReport
)

func (k DocumentKind) title() string {
	if k == SelectiveReport {
		return "Selective Achievement Report"
	}
	return "Student Achievement Report"
}

func (k DocumentKind) section() string {
	if k == SelectiveReport {
		return "Selected Achievements & Uploads"
	}
	return "Achievements & Uploads"
}

func (k DocumentKind) empty() string {
	if k == SelectiveReport {
		return "No achievements found for selected categories."
	}
	return "No uploads/achievements found."
}

// Page geometry in millimetres. 14mm is roughly 40pt.
const (
	pageMargin  = 14.0
	borderInset = 7.0
	lineHeight  = 5.5
)

type document struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

// WriteDocument renders the report for one joined student. fpdf finishes
// the whole document before its first write to w, so a render error leaves
// w untouched.
func WriteDocument(w io.Writer, j *report.Joined, kind DocumentKind) error {
	pdf := renderDocument(j, kind)
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

func renderDocument(j *report.Joined, kind DocumentKind) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle(kind.title(), true)

	// Every page, including those opened by automatic breaks, gets the border.
	pdf.SetHeaderFunc(func() {
		width, height := pdf.GetPageSize()
		pdf.SetDrawColor(0, 0, 0)
		pdf.SetLineWidth(0.3)
		pdf.Rect(borderInset, borderInset, width-2*borderInset, height-2*borderInset, "D")
	})

	d := &document{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	pdf.AddPage()

	d.title(kind.title())
	d.details(&j.Student, kind)
	d.achievements(j.Groups, kind)
	return pdf
}

func (d *document) title(text string) {
	d.pdf.SetFont("Times", "BU", 22)
	d.pdf.CellFormat(0, 12, d.tr(text), "", 1, "C", false, 0, "")
	d.pdf.Ln(6)
}

func (d *document) heading(text string) {
	d.ensureSpace(3 * lineHeight)
	d.pdf.SetTextColor(0, 0, 0)
	d.pdf.SetFont("Times", "U", 13)
	d.pdf.CellFormat(0, 7, d.tr(text), "", 1, "L", false, 0, "")
	d.pdf.Ln(2)
}

func (d *document) field(label, value string) {
	d.ensureSpace(lineHeight)
	d.pdf.SetFont("Times", "B", 12)
	text := d.tr(label + ": ")
	d.pdf.CellFormat(d.pdf.GetStringWidth(text), lineHeight+0.5, text, "", 0, "L", false, 0, "")
	d.pdf.SetFont("Times", "", 12)
	d.pdf.MultiCell(0, lineHeight+0.5, d.tr(value), "", "L", false)
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func (d *document) details(s *shared.Student, kind DocumentKind) {
	d.heading("Student Details")

	yearOfStudy := s.YearOfStudy
	if yearOfStudy == "" {
		yearOfStudy = "Not specified"
	}
	cgpa := "N/A"
	if s.CGPA != nil {
		cgpa = strconv.FormatFloat(*s.CGPA, 'f', -1, 64)
	}

	d.field("Name", s.Name)
	d.field("Email", s.Email)
	d.field("Year of Study", yearOfStudy)
	d.field("Batch", s.Batch)
	d.field("CGPA", cgpa)
	d.field("Interned", yesNo(s.HasInterned))
	d.field("Placed", yesNo(s.IsPlaced))

	if kind == FullReport {
		start, end := "N/A", "N/A"
		if s.StartOfStudy != nil {
			start = MonthYear(*s.StartOfStudy)
		}
		if s.EndOfStudy != nil {
			end = MonthYear(*s.EndOfStudy)
		}
		d.field("Start of Study", start)
		d.field("End of Study", end)
	}
	d.pdf.Ln(lineHeight)
}

func (d *document) achievements(groups report.Grouped, kind DocumentKind) {
	d.heading(kind.section())

	if groups.Len() == 0 {
		d.pdf.SetFont("Times", "", 12)
		d.pdf.MultiCell(0, lineHeight, d.tr(kind.empty()), "", "L", false)
		return
	}

	for _, group := range groups {
		// Keep the category heading on the same page as its first entry.
		d.ensureSpace(7 + d.entryHeight(group.Achievements[0], 1))
		d.pdf.SetFont("Times", "B", 12)
		d.pdf.SetTextColor(0, 0, 255)
		d.pdf.CellFormat(0, 7, d.tr(string(group.Category)), "", 1, "L", false, 0, "")
		d.pdf.SetTextColor(0, 0, 0)

		for i, a := range group.Achievements {
			d.entry(a, i+1)
		}

		d.separator()
	}
}

func entryLines(a shared.Achievement, n int) (title, description, short, file string) {
	title = fmt.Sprintf("%d. %s (%s)", n, orNA(a.Title), DocumentTimeframe(a))
	description = "Description: " + orNA(a.Description)
	short = "Short Description: " + orNA(a.ShortDescription)
	file = "File: N/A"
	if a.HasFile() {
		file = "File: " + a.File.Filename
	}
	return title, description, short, file
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// entryHeight measures an entry with the fonts it will be drawn in
func (d *document) entryHeight(a shared.Achievement, n int) float64 {
	width := d.contentWidth()
	title, description, short, file := entryLines(a, n)

	d.pdf.SetFont("Times", "B", 11)
	lines := len(d.pdf.SplitText(d.tr(title), width))
	d.pdf.SetFont("Times", "", 11)
	for _, text := range []string{description, short, file} {
		lines += len(d.pdf.SplitText(d.tr(text), width))
	}
	return float64(lines)*lineHeight + lineHeight/2
}

func (d *document) entry(a shared.Achievement, n int) {
	d.ensureSpace(d.entryHeight(a, n))

	title, description, short, file := entryLines(a, n)

	d.pdf.SetFont("Times", "B", 11)
	d.pdf.MultiCell(0, lineHeight, d.tr(title), "", "L", false)
	d.pdf.SetFont("Times", "", 11)
	d.pdf.MultiCell(0, lineHeight, d.tr(description), "", "L", false)
	d.pdf.MultiCell(0, lineHeight, d.tr(short), "", "L", false)
	d.pdf.MultiCell(0, lineHeight, d.tr(file), "", "L", false)
	d.pdf.Ln(lineHeight / 2)
}

func (d *document) separator() {
	d.pdf.Ln(1.5)
	d.ensureSpace(3)
	left, _, right, _ := d.pdf.GetMargins()
	width, _ := d.pdf.GetPageSize()
	y := d.pdf.GetY()
	d.pdf.SetDrawColor(204, 204, 204)
	d.pdf.Line(left, y, width-right, y)
	d.pdf.SetDrawColor(0, 0, 0)
	d.pdf.Ln(3)
}

func (d *document) contentWidth() float64 {
	left, _, right, _ := d.pdf.GetMargins()
	width, _ := d.pdf.GetPageSize()
	return width - left - right
}

// ensureSpace starts a new page when h millimetres do not fit above the
// bottom margin. A block taller than a page starts at the top and relies on
// the automatic break.
func (d *document) ensureSpace(h float64) {
	_, height := d.pdf.GetPageSize()
	y := d.pdf.GetY()
	if y > pageMargin+1 && y+h > height-pageMargin {
		d.pdf.AddPage()
	}
}
