package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"student_achievements/backend/internal/filter"
	"student_achievements/backend/internal/report"
	"student_achievements/backend/internal/shared"
)

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func sampleJoined() []report.Joined {
	cgpa := 8.5
	return []report.Joined{
		{
			Student: shared.Student{
				ID: "s1", Name: "Asha Rao", Email: "asha@college.edu", RollNumber: "21CS001",
				YearOfStudy: "2021-2025", Batch: "N", CGPA: &cgpa,
				PasswordHash: "$2a$10$hash", OTP: "123456",
				CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			},
			Groups: report.GroupByCategory([]shared.Achievement{
				{
					ID: "a1", Category: shared.CategoryInternships, Title: "Backend Intern", CompanyName: "Kappa",
					FromDate: month(2023, time.January), ToDate: ptr(month(2023, time.March)),
					File: &shared.Attachment{Filename: "offer.letter.pdf", ContentType: "application/pdf", Data: []byte("pdf-bytes")},
				},
				{
					ID: "a2", Category: shared.CategoryInternships, Title: "Research Intern",
					FromDate: month(2023, time.June),
				},
				{
					ID: "a3", Category: shared.CategoryCourse, Title: "Go: Advanced!",
					FromDate: month(2022, time.May),
					File: &shared.Attachment{Filename: "certificate", ContentType: "image/png", Data: []byte("png-bytes")},
				},
			}),
		},
		{
			Student: shared.Student{ID: "s2", Name: "Bala", Email: "bala@college.edu", RollNumber: "21CS002", Batch: "P"},
		},
	}
}

func TestViews(t *testing.T) {
	joined := sampleJoined()

	t.Run("Listing Hides Attachment Bytes", func(t *testing.T) {
		raw, err := json.Marshal(StudentViews(joined))
		require.NoError(t, err)
		body := string(raw)

		assert.NotContains(t, body, "pdf-bytes")
		assert.NotContains(t, body, "$2a$10$hash")
		assert.NotContains(t, body, "123456")
		assert.Contains(t, body, `"file":{"filename":"offer.letter.pdf","contentType":"application/pdf","id":"a1"}`)
	})

	t.Run("Category Order Preserved", func(t *testing.T) {
		raw, err := json.Marshal(NewGroupedView(joined[0].Groups))
		require.NoError(t, err)
		body := string(raw)
		assert.Less(t, strings.Index(body, `"Internships"`), strings.Index(body, `"Course"`))

		var decoded map[string][]map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Len(t, decoded["Internships"], 2)
	})

	t.Run("Empty Groups Encode As Object", func(t *testing.T) {
		raw, err := json.Marshal(StudentViews(joined[1:]))
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"achievementsByCategory":{}`)
	})

	t.Run("Detail Always Blanks Password", func(t *testing.T) {
		raw, err := json.Marshal(NewStudentDetail(&joined[0]))
		require.NoError(t, err)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, "", decoded["password"])
		assert.Equal(t, "Asha Rao", decoded["name"])
		assert.NotContains(t, string(raw), "$2a$10$hash")
	})
}

func readSheet(t *testing.T, data []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	return rows
}

func TestSpreadsheet(t *testing.T) {
	joined := sampleJoined()

	t.Run("Default Columns", func(t *testing.T) {
		cols, err := ResolveColumns(nil, filter.Params{})
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, WriteSpreadsheet(&buf, joined, cols))

		rows := readSheet(t, buf.Bytes())
		require.Len(t, rows, 3)
		assert.Equal(t, []string{"Name", "Email", "Roll Number", "Year of Study", "Batch", "CGPA", "Created At"}, rows[0])
		assert.Equal(t, []string{"Asha Rao", "asha@college.edu", "21CS001", "2021-2025", "N", "8.5", "2024-01-02 03:04:05"}, rows[1])
		assert.Equal(t, "Bala", rows[2][0])
	})

	t.Run("Category Rosters And Timelines", func(t *testing.T) {
		cols, err := ResolveColumns(ParseColumnKeys("name, Course,Internships_timeline,Placement,name"), filter.Params{})
		require.NoError(t, err)
		require.Len(t, cols, 4)

		var buf bytes.Buffer
		require.NoError(t, WriteSpreadsheet(&buf, joined, cols))

		rows := readSheet(t, buf.Bytes())
		assert.Equal(t, []string{"Name", "Courses", "Internship (Timeline)", "Placement (Companies)"}, rows[0])
		assert.Equal(t, []string{"Asha Rao", "Go: Advanced!", "Jan 2023 - Mar 2023; Jun 2023 - Present", "-"}, rows[1])
		assert.Equal(t, []string{"Bala", "-", "-", "-"}, rows[2])
	})

	t.Run("Internship Toggle Completes Columns", func(t *testing.T) {
		p, err := filter.ParseParams(url.Values{"hasInterned": {"true"}})
		require.NoError(t, err)

		cols, err := ResolveColumns([]string{"name"}, p)
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, WriteSpreadsheet(&buf, joined[:1], cols))

		rows := readSheet(t, buf.Bytes())
		assert.Equal(t, []string{"Name", "Internship (Companies)", "Internship (Timeline)"}, rows[0])
		assert.Equal(t, "Kappa, Research Intern", rows[1][1])
	})

	t.Run("Completion Does Not Duplicate", func(t *testing.T) {
		p := filter.Params{Categories: []shared.Category{shared.CategoryInternships}}
		cols, err := ResolveColumns([]string{"Internships_timeline", "email", "Internships"}, p)
		require.NoError(t, err)

		keys := []string{}
		for _, c := range cols {
			keys = append(keys, c.Key)
		}
		assert.Equal(t, []string{"Internships_timeline", "email", "Internships"}, keys)
	})

	t.Run("Unknown Column", func(t *testing.T) {
		_, err := ResolveColumns([]string{"name", "salary"}, filter.Params{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrValidation))

		_, err = ResolveColumns([]string{"Gardening_timeline"}, filter.Params{})
		assert.True(t, errors.Is(err, shared.ErrValidation))
	})
}

func TestDocument(t *testing.T) {
	t.Run("Renders A PDF", func(t *testing.T) {
		joined := sampleJoined()
		var buf bytes.Buffer
		require.NoError(t, WriteDocument(&buf, &joined[0], FullReport))
		assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	})

	t.Run("Written Straight To The Response", func(t *testing.T) {
		joined := sampleJoined()
		w := &recordingWriter{}
		require.NoError(t, WriteDocument(w, &joined[0], FullReport))
		assert.Equal(t, 1, w.writes)
		assert.True(t, bytes.HasPrefix(w.buf.Bytes(), []byte("%PDF-")))
	})

	t.Run("Empty Report", func(t *testing.T) {
		joined := sampleJoined()
		pdf := renderDocument(&joined[1], SelectiveReport)
		require.NoError(t, pdf.Error())
		assert.Equal(t, 1, pdf.PageCount())
	})

	t.Run("Long Reports Paginate", func(t *testing.T) {
		achievements := []shared.Achievement{}
		for i := 0; i < 60; i++ {
			achievements = append(achievements, shared.Achievement{
				ID:               fmt.Sprintf("a%d", i),
				Category:         shared.Categories[i%len(shared.Categories)],
				Title:            fmt.Sprintf("Achievement %d", i),
				Description:      strings.Repeat("A long description that wraps across the line. ", 6),
				ShortDescription: "Short",
				FromDate:         month(2022, time.January),
			})
		}
		j := report.Joined{Student: shared.Student{Name: "Asha"}, Groups: report.GroupByCategory(achievements)}

		pdf := renderDocument(&j, FullReport)
		require.NoError(t, pdf.Error())
		assert.Greater(t, pdf.PageCount(), 3)
	})
}

type memOpener map[string][]byte

func (m memOpener) Open(_ context.Context, a *shared.Achievement) (io.ReadCloser, error) {
	data, ok := m[a.ID]
	if !ok {
		return nil, shared.NewNotFoundError("file not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestArchive(t *testing.T) {
	t.Run("Sanitize And Extension", func(t *testing.T) {
		assert.Equal(t, "Go__Advanced_", Sanitize("Go: Advanced!"))
		assert.Equal(t, "Asha_Rao", Sanitize("Asha Rao"))
		assert.Equal(t, "pdf", Extension("offer.letter.pdf"))
		assert.Equal(t, "", Extension("certificate"))
		assert.Equal(t, "_x", Extension("evil.pdf/../../x"))
	})

	t.Run("Roll Number Cannot Escape Its Folder", func(t *testing.T) {
		assert.Equal(t, "21CS-001", PathSegment("21CS-001"))
		assert.Equal(t, "21CS_001", PathSegment("21CS/001"))
		assert.Equal(t, "____etc", PathSegment("../../etc"))
		assert.Equal(t, "a_b", PathSegment("a\\b"))

		s := &shared.Student{Name: "Asha", RollNumber: "../../etc"}
		a := &shared.Achievement{Title: "Cert", File: &shared.Attachment{Filename: "c.pdf"}}
		dir, base, ext := EntryPath(s, a)
		assert.Equal(t, "Asha_____etc", dir)
		assert.Equal(t, "Cert", base)
		assert.Equal(t, "pdf", ext)

		entry := pathSet{}.claim(dir, base, ext)
		assert.NotContains(t, entry, "..")
		assert.Equal(t, 1, strings.Count(entry, "/"))
	})

	t.Run("Entries Per Student Folder", func(t *testing.T) {
		joined := sampleJoined()
		files := memOpener{"a1": []byte("pdf-bytes"), "a3": []byte("png-bytes")}

		var buf bytes.Buffer
		n, err := WriteArchive(context.Background(), &buf, joined, files)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
		require.NoError(t, err)

		contents := map[string]string{}
		for _, f := range zr.File {
			rc, err := f.Open()
			require.NoError(t, err)
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			rc.Close()
			contents[f.Name] = string(data)
		}

		assert.Equal(t, map[string]string{
			"Asha_Rao_21CS001/Backend_Intern.pdf": "pdf-bytes",
			"Asha_Rao_21CS001/Go__Advanced_":      "png-bytes",
		}, contents)
	})

	t.Run("Colliding Titles Get Suffixes", func(t *testing.T) {
		file := func(id string) shared.Achievement {
			return shared.Achievement{ID: id, Category: shared.CategoryCourse, Title: "Cert", File: &shared.Attachment{Filename: "c.pdf"}}
		}
		joined := []report.Joined{{
			Student: shared.Student{Name: "A", RollNumber: "1"},
			Groups:  report.GroupByCategory([]shared.Achievement{file("x"), file("y"), file("z")}),
		}}

		var buf bytes.Buffer
		_, err := WriteArchive(context.Background(), &buf, joined, memOpener{"x": {1}, "y": {2}, "z": {3}})
		require.NoError(t, err)

		zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
		require.NoError(t, err)
		names := []string{}
		for _, f := range zr.File {
			names = append(names, f.Name)
		}
		assert.Equal(t, []string{"A_1/Cert.pdf", "A_1/Cert_2.pdf", "A_1/Cert_3.pdf"}, names)
	})

	t.Run("Missing Blob Fails", func(t *testing.T) {
		joined := sampleJoined()
		_, err := WriteArchive(context.Background(), io.Discard, joined, memOpener{"a1": []byte("x")})
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})
}

// recordingWriter counts the writes it receives
type recordingWriter struct {
	buf    bytes.Buffer
	writes int
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.writes++
	return w.buf.Write(p)
}
