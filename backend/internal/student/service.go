// Package student serves a student's own profile and academic standing.
package student

import (
	"context"
	"io"
	"net/http"
	"path"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"student_achievements/backend/internal/blob"
	"student_achievements/backend/internal/shared"
	"student_achievements/backend/internal/store"
)

// CGPAUpdate is the body of a CGPA change
type CGPAUpdate struct {
	CGPA *float64 `json:"cgpa" validate:"required,gte=0,lte=10"`
}

// Photo is an uploaded profile picture
type Photo struct {
	Filename string
	Data     []byte
}

// photoTypes maps the accepted sniffed content types to stored extensions
var photoTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// Service reads and updates student records
type Service struct {
	students      store.StudentStore
	photos        blob.Store
	maxPhotoBytes int64
	logger        zerolog.Logger
}

// NewService creates a new student Service
func NewService(students store.StudentStore, photos blob.Store, maxPhotoBytes int64, logger zerolog.Logger) *Service {
	return &Service{
		students:      students,
		photos:        photos,
		maxPhotoBytes: maxPhotoBytes,
		logger:        logger,
	}
}

// PhotoKey is the object key of a student's stored profile photo
func PhotoKey(studentID, filename string) string {
	return path.Join("profile-photos", studentID, filename)
}

// PhotoURL is where the API serves a student's profile photo
func PhotoURL(studentID string) string {
	return "/api/students/" + studentID + "/profile-photo"
}

// Profile returns the student record without credentials
func (s *Service) Profile(ctx context.Context, id string) (*shared.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	student.PasswordHash = ""
	student.OTP = ""
	student.OTPExpiry = nil
	return student, nil
}

// UpdateCGPA stores a new CGPA in [0, 10] and returns the stored value
func (s *Service) UpdateCGPA(ctx context.Context, id string, req CGPAUpdate) (float64, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return 0, shared.NewValidationError("Invalid CGPA")
	}

	if err := s.students.UpdateCGPA(ctx, id, *req.CGPA); err != nil {
		return 0, err
	}

	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		return 0, err
	}
	stored := *req.CGPA
	if student.CGPA != nil {
		stored = *student.CGPA
	}

	s.logger.Info().Str("studentId", id).Float64("cgpa", stored).Msg("cgpa updated")
	return stored, nil
}

// ============================================================================
// Profile Photo
// ============================================================================

// SetProfilePhoto stores a JPEG or PNG photo for the student and returns its
// file name. The previous photo, if any, is removed afterwards.
func (s *Service) SetProfilePhoto(ctx context.Context, id string, photo *Photo) (string, error) {
	// 1. Validate
	if photo == nil || len(photo.Data) == 0 {
		return "", shared.NewValidationError("No file uploaded")
	}
	if s.maxPhotoBytes > 0 && int64(len(photo.Data)) > s.maxPhotoBytes {
		return "", shared.NewValidationError("File too large")
	}
	contentType := http.DetectContentType(photo.Data)
	ext, ok := photoTypes[contentType]
	if !ok {
		return "", shared.NewValidationError("Only JPEG and PNG images are allowed")
	}

	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		return "", err
	}

	// 2. Store the new photo, then point the record at it
	filename := uuid.NewString() + ext
	if err := s.photos.Put(ctx, PhotoKey(id, filename), contentType, photo.Data); err != nil {
		return "", err
	}
	if err := s.students.SetProfilePhoto(ctx, id, filename); err != nil {
		s.removePhoto(ctx, id, filename)
		return "", err
	}

	// 3. Drop the replaced one
	if student.ProfilePhoto != "" && student.ProfilePhoto != filename {
		s.removePhoto(ctx, id, student.ProfilePhoto)
	}

	s.logger.Info().Str("studentId", id).Str("photo", filename).Msg("profile photo updated")
	return filename, nil
}

// OpenProfilePhoto returns the photo of studentID and its content type. A
// student may only read their own.
func (s *Service) OpenProfilePhoto(ctx context.Context, caller shared.Identity, studentID string) (io.ReadCloser, string, error) {
	if !caller.Owns(studentID) && !caller.IsAdmin() {
		return nil, "", shared.NewForbiddenError("Unauthorized access")
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, "", err
	}
	if student.ProfilePhoto == "" {
		return nil, "", shared.NewNotFoundError("Profile photo not found")
	}

	rc, err := s.photos.Open(ctx, PhotoKey(studentID, student.ProfilePhoto))
	if err != nil {
		return nil, "", err
	}
	return rc, photoContentType(student.ProfilePhoto), nil
}

func photoContentType(filename string) string {
	ext := path.Ext(filename)
	for contentType, e := range photoTypes {
		if e == ext {
			return contentType
		}
	}
	return "application/octet-stream"
}

func (s *Service) removePhoto(ctx context.Context, id, filename string) {
	if err := s.photos.Delete(ctx, PhotoKey(id, filename)); err != nil {
		s.logger.Error().Err(err).Str("studentId", id).Str("photo", filename).Msg("failed to delete profile photo")
	}
}
