// Package admin serves the administrator's student listing, reports and
// exports, and bulk registration.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/rs/zerolog"

	"student_achievements/backend/internal/export"
	"student_achievements/backend/internal/filter"
	"student_achievements/backend/internal/importer"
	"student_achievements/backend/internal/report"
	"student_achievements/backend/internal/shared"
)

// Download is a payload the handler sends to the client. Unless Stream is
// set, Write is expected to finish or fail before the response starts.
type Download struct {
	Filename    string
	ContentType string
	Stream      bool
	Write       func(ctx context.Context, w io.Writer) error
}

// Service implements the admin reporting operations
type Service struct {
	engine   *report.Engine
	files    export.Opener
	importer *importer.Reconciler
	logger   zerolog.Logger
}

// NewService creates a new admin Service
func NewService(engine *report.Engine, files export.Opener, reconciler *importer.Reconciler, logger zerolog.Logger) *Service {
	return &Service{
		engine:   engine,
		files:    files,
		importer: reconciler,
		logger:   logger,
	}
}

// ============================================================================
// Listing
// ============================================================================

// ListStudents returns the filtered students with their grouped achievements
func (s *Service) ListStudents(ctx context.Context, query url.Values) ([]export.StudentView, error) {
	p, err := filter.ParseParams(query)
	if err != nil {
		return nil, err
	}

	joined, err := s.engine.Run(ctx, p)
	if err != nil {
		return nil, err
	}
	return export.StudentViews(joined), nil
}

// GetStudent returns one student with every achievement
func (s *Service) GetStudent(ctx context.Context, id string) (*export.StudentDetail, error) {
	j, err := s.engine.One(ctx, id, report.Selection{})
	if err != nil {
		return nil, notFound(err)
	}
	detail := export.NewStudentDetail(j)
	return &detail, nil
}

// ============================================================================
// Documents
// ============================================================================

// StudentReport renders the PDF report of one student, restricted by the
// toggled categories and date range of query.
func (s *Service) StudentReport(ctx context.Context, id string, query url.Values) (*Download, error) {
	p, err := filter.ParseParams(query)
	if err != nil {
		return nil, err
	}

	j, err := s.engine.One(ctx, id, report.Selection{Params: &p})
	if err != nil {
		return nil, notFound(err)
	}

	return &Download{
		Filename:    fmt.Sprintf("student_%s_report.pdf", j.Student.ID),
		ContentType: export.DocumentContentType,
		Write: func(_ context.Context, w io.Writer) error {
			return export.WriteDocument(w, j, export.FullReport)
		},
	}, nil
}

// SelectiveReport renders the PDF report of an explicit category selection.
// Labels match regardless of case.
func (s *Service) SelectiveReport(ctx context.Context, id string, labels []string) (*Download, error) {
	if len(labels) == 0 {
		return nil, shared.NewValidationError("No categories selected")
	}

	categories := make([]shared.Category, 0, len(labels))
	for _, label := range labels {
		c, err := shared.ParseCategoryFold(label)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}

	j, err := s.engine.One(ctx, id, report.Selection{Categories: categories})
	if err != nil {
		return nil, notFound(err)
	}

	return &Download{
		Filename:    fmt.Sprintf("student_%s_selective_report.pdf", j.Student.ID),
		ContentType: export.DocumentContentType,
		Write: func(_ context.Context, w io.Writer) error {
			return export.WriteDocument(w, j, export.SelectiveReport)
		},
	}, nil
}

// ============================================================================
// Exports
// ============================================================================

// Spreadsheet builds the filtered listing as a workbook with the columns
// named in the comma separated "columns" parameter.
func (s *Service) Spreadsheet(ctx context.Context, query url.Values) (*Download, error) {
	p, err := filter.ParseParams(query)
	if err != nil {
		return nil, err
	}

	columns, err := export.ResolveColumns(export.ParseColumnKeys(query.Get("columns")), p)
	if err != nil {
		return nil, err
	}

	joined, err := s.engine.Run(ctx, p)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int("students", len(joined)).Int("columns", len(columns)).Msg("spreadsheet export")
	return &Download{
		Filename:    "Student_Report.xlsx",
		ContentType: export.SpreadsheetContentType,
		Write: func(_ context.Context, w io.Writer) error {
			return export.WriteSpreadsheet(w, joined, columns)
		},
	}, nil
}

// Archive collects the attachments of the filtered listing into a zip,
// one folder per student.
func (s *Service) Archive(ctx context.Context, query url.Values) (*Download, error) {
	p, err := filter.ParseParams(query)
	if err != nil {
		return nil, err
	}

	joined, err := s.engine.Run(ctx, p)
	if err != nil {
		return nil, err
	}

	return &Download{
		Filename:    "Filtered_Documents.zip",
		ContentType: export.ArchiveContentType,
		Stream:      true,
		Write: func(ctx context.Context, w io.Writer) error {
			n, err := export.WriteArchive(ctx, w, joined, s.files)
			if err != nil {
				return err
			}
			s.logger.Info().Int("students", len(joined)).Int("files", n).Msg("archive export")
			return nil
		},
	}, nil
}

// ============================================================================
// Bulk Registration
// ============================================================================

// BulkImport registers the students listed in an uploaded workbook
func (s *Service) BulkImport(ctx context.Context, payload []byte) (importer.Result, error) {
	return s.importer.Import(ctx, payload)
}

func notFound(err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewNotFoundError("Student not found")
	}
	return err
}
