// Package achievement manages a student's achievement records and their
// certificate attachments.
package achievement

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"student_achievements/backend/internal/blob"
	"student_achievements/backend/internal/filter"
	"student_achievements/backend/internal/shared"
	"student_achievements/backend/internal/store"
)

// Input carries the form fields of an upload or edit. On edit an empty
// field keeps the stored value; Ongoing clears the end date.
type Input struct {
	Category         string `json:"category" validate:"required"`
	Title            string `json:"title" validate:"required,max=200"`
	Description      string `json:"description" validate:"required"`
	ShortDescription string `json:"shortDescription" validate:"required,max=500"`
	CompanyName      string `json:"companyName"`
	FromDate         string `json:"fromDate" validate:"required"`
	ToDate           string `json:"toDate"`
	Ongoing          bool   `json:"ongoing"`
}

// File is an uploaded certificate
type File struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Service implements achievement upload, edit, delete and lookup
type Service struct {
	achievements store.AchievementStore
	students     store.StudentStore
	files        *blob.Attachments
	maxBytes     int64
	logger       zerolog.Logger
	now          func() time.Time
}

// NewService creates a new achievement Service
func NewService(db *store.Store, files *blob.Attachments, maxBytes int64, logger zerolog.Logger) *Service {
	return &Service{
		achievements: db.Achievements,
		students:     db.Students,
		files:        files,
		maxBytes:     maxBytes,
		logger:       logger,
		now:          time.Now,
	}
}

// ============================================================================
// Upload & Edit
// ============================================================================

// Upload stores a new achievement for owner and sets the owner's derived
// flag for its category.
func (s *Service) Upload(ctx context.Context, owner string, in Input, file *File) (*shared.Achievement, error) {
	// 1. Validate fields and file
	a := &shared.Achievement{StudentID: owner}
	if err := apply(a, in); err != nil {
		return nil, err
	}
	if file == nil || len(file.Data) == 0 {
		return nil, shared.NewValidationError("No file uploaded")
	}
	fileType, err := s.checkFile(file)
	if err != nil {
		return nil, err
	}

	// 2. Store bytes, then the record
	attachment, err := s.files.Prepare(ctx, owner, file.Filename, file.ContentType, file.Data)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	a.ID = uuid.NewString()
	a.File = attachment
	a.FileType = fileType
	a.CreatedAt = now
	a.UpdatedAt = now

	if err := s.achievements.Insert(ctx, a); err != nil {
		s.files.Discard(ctx, attachment)
		return nil, err
	}

	// 3. Derived flag
	if err := s.setFlag(ctx, owner, a.Category); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("achievementId", a.ID).
		Str("studentId", owner).
		Str("category", string(a.Category)).
		Msg("achievement uploaded")
	return withoutData(a), nil
}

// Edit merges in into the caller's achievement, optionally replacing the
// attachment. Only the owning student may edit.
func (s *Service) Edit(ctx context.Context, caller shared.Identity, id string, in Input, file *File) (*shared.Achievement, error) {
	current, err := s.owned(ctx, caller, id, false)
	if err != nil {
		return nil, err
	}

	// 1. Merge supplied fields over the stored record
	merged := mergeInput(current, in)
	updated := *current
	updated.File = nil
	if err := apply(&updated, merged); err != nil {
		return nil, err
	}

	// 2. Replacement attachment
	var replacement *shared.Attachment
	if file != nil && len(file.Data) > 0 {
		fileType, err := s.checkFile(file)
		if err != nil {
			return nil, err
		}
		replacement, err = s.files.Prepare(ctx, current.StudentID, file.Filename, file.ContentType, file.Data)
		if err != nil {
			return nil, err
		}
		updated.File = replacement
		updated.FileType = fileType
	}
	updated.UpdatedAt = s.now().UTC()

	if err := s.achievements.Update(ctx, &updated); err != nil {
		s.files.Discard(ctx, replacement)
		return nil, err
	}
	if replacement != nil {
		s.files.Discard(ctx, current.File)
	}

	// 3. Derived flag for the new category
	if err := s.setFlag(ctx, current.StudentID, updated.Category); err != nil {
		return nil, err
	}

	result, err := s.achievements.FindByID(ctx, id, false)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("achievementId", id).Str("studentId", current.StudentID).Msg("achievement updated")
	return result, nil
}

func mergeInput(a *shared.Achievement, in Input) Input {
	pick := func(v, fallback string) string {
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		return v
	}

	toDate := ""
	if a.ToDate != nil {
		toDate = a.ToDate.Format(time.RFC3339)
	}
	if in.Ongoing {
		toDate = ""
	}
	return Input{
		Category:         pick(in.Category, string(a.Category)),
		Title:            pick(in.Title, a.Title),
		Description:      pick(in.Description, a.Description),
		ShortDescription: pick(in.ShortDescription, a.ShortDescription),
		CompanyName:      pick(in.CompanyName, a.CompanyName),
		FromDate:         pick(in.FromDate, a.FromDate.Format(time.RFC3339)),
		ToDate:           pick(in.ToDate, toDate),
		Ongoing:          in.Ongoing,
	}
}

// apply validates in and copies it onto a
func apply(a *shared.Achievement, in Input) error {
	in.Category = strings.TrimSpace(in.Category)
	in.Title = strings.TrimSpace(in.Title)
	in.CompanyName = strings.TrimSpace(in.CompanyName)
	if err := shared.ValidateStruct(in); err != nil {
		return err
	}

	category, err := shared.ParseCategory(in.Category)
	if err != nil {
		return err
	}
	if category.RequiresCompany() && in.CompanyName == "" {
		return shared.NewValidationError("companyName is required for " + string(category))
	}

	from, err := parseDate(in.FromDate, "fromDate")
	if err != nil {
		return err
	}
	if in.Ongoing && strings.TrimSpace(in.ToDate) != "" {
		return shared.NewValidationError("toDate must be empty for an ongoing achievement")
	}
	var to *time.Time
	if strings.TrimSpace(in.ToDate) != "" {
		t, err := parseDate(in.ToDate, "toDate")
		if err != nil {
			return err
		}
		if t.Before(from) {
			return shared.NewValidationError("toDate must not be before fromDate")
		}
		to = &t
	}

	a.Category = category
	a.Title = in.Title
	a.Description = in.Description
	a.ShortDescription = in.ShortDescription
	a.CompanyName = in.CompanyName
	a.FromDate = from
	a.ToDate = to
	return nil
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", filter.MonthLayout}

func parseDate(raw, field string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, shared.NewValidationError(field + " must be a date (YYYY-MM-DD)")
}

// checkFile bounds the upload size and derives the record's file type
func (s *Service) checkFile(file *File) (string, error) {
	if s.maxBytes > 0 && int64(len(file.Data)) > s.maxBytes {
		return "", shared.NewValidationError("File too large")
	}
	if strings.TrimSpace(file.Filename) == "" {
		return "", shared.NewValidationError("file name is required")
	}

	contentType := file.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(file.Data)
		file.ContentType = contentType
	}

	switch {
	case strings.HasPrefix(contentType, "image/"):
		return shared.FileTypeImage, nil
	case strings.HasPrefix(contentType, "application/pdf"):
		return shared.FileTypePDF, nil
	}
	return "", shared.NewValidationError("only image and PDF files are accepted")
}

func (s *Service) setFlag(ctx context.Context, studentID string, c shared.Category) error {
	flag, ok := c.Flag()
	if !ok {
		return nil
	}
	if err := s.students.SetFlag(ctx, studentID, flag); err != nil {
		s.logger.Error().Err(err).Str("studentId", studentID).Str("flag", string(flag)).Msg("failed to set student flag")
		return err
	}
	return nil
}

func withoutData(a *shared.Achievement) *shared.Achievement {
	c := *a
	if a.File != nil {
		f := *a.File
		f.Data = nil
		c.File = &f
	}
	return &c
}

// ============================================================================
// Delete & Lookup
// ============================================================================

// owned loads an achievement visible to caller. Admins see every record;
// students see only their own and get not found otherwise.
func (s *Service) owned(ctx context.Context, caller shared.Identity, id string, adminAllowed bool) (*shared.Achievement, error) {
	a, err := s.achievements.FindByID(ctx, id, false)
	if err != nil {
		return nil, notFound(err, "Achievement not found")
	}
	if caller.Owns(a.StudentID) || (adminAllowed && caller.IsAdmin()) {
		return a, nil
	}
	return nil, shared.NewNotFoundError("Achievement not found")
}

// Delete removes an achievement. The owning student or any admin may delete.
func (s *Service) Delete(ctx context.Context, caller shared.Identity, id string) error {
	a, err := s.owned(ctx, caller, id, true)
	if err != nil {
		return err
	}
	if err := s.achievements.Delete(ctx, id); err != nil {
		return notFound(err, "Achievement not found")
	}
	s.files.Discard(ctx, a.File)

	s.logger.Info().Str("achievementId", id).Str("by", caller.ID).Str("role", caller.Role).Msg("achievement deleted")
	return nil
}

// ListByCategory returns a student's achievements of one category, newest
// first and without attachment bytes.
func (s *Service) ListByCategory(ctx context.Context, caller shared.Identity, studentID, category string) ([]shared.Achievement, error) {
	if !caller.Owns(studentID) && !caller.IsAdmin() {
		return nil, shared.NewForbiddenError("Unauthorized access")
	}
	c, err := shared.ParseCategory(category)
	if err != nil {
		return nil, err
	}
	return s.achievements.FindByStudentAndCategory(ctx, studentID, c)
}

// OpenAttachment streams an achievement's file to its owner or an admin
func (s *Service) OpenAttachment(ctx context.Context, caller shared.Identity, id string) (io.ReadCloser, *shared.Attachment, error) {
	a, err := s.owned(ctx, caller, id, true)
	if err != nil {
		return nil, nil, err
	}
	if !a.HasFile() {
		return nil, nil, shared.NewNotFoundError("File not found")
	}

	rc, err := s.files.Open(ctx, a)
	if err != nil {
		return nil, nil, notFound(err, "File not found")
	}
	return rc, a.File, nil
}

func notFound(err error, message string) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewNotFoundError(message)
	}
	return err
}
