// ============================================================================
// backend/internal/shared/models.go
// Shared data models and structs for MongoDB documents
// ============================================================================

package shared

import (
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// User Models
// ============================================================================

// Student represents a student account. Password and OTP fields are never
// serialised to JSON.
type Student struct {
	ID           string     `bson:"_id" json:"id"`
	Name         string     `bson:"name" json:"name"`
	Email        string     `bson:"email" json:"email"`
	PasswordHash string     `bson:"password" json:"-"`
	StartOfStudy *time.Time `bson:"startOfStudy,omitempty" json:"startOfStudy,omitempty"`
	EndOfStudy   *time.Time `bson:"endOfStudy,omitempty" json:"endOfStudy,omitempty"`
	YearOfStudy  string     `bson:"yearOfStudy" json:"yearOfStudy"`
	Batch        string     `bson:"batch" json:"batch"`
	CGPA         *float64   `bson:"cgpa" json:"cgpa"`
	HasInterned  bool       `bson:"hasInterned" json:"hasInterned"`
	IsPlaced     bool       `bson:"isPlaced" json:"isPlaced"`
	RollNumber   string     `bson:"rollNumber" json:"rollNumber"`
	ProfilePhoto string     `bson:"profilePhoto,omitempty" json:"profilePhoto,omitempty"` // file name under the student's photo prefix
	CreatedAt    time.Time  `bson:"createdAt" json:"createdAt"`

	// One-time code for password recovery
	OTP       string     `bson:"otp,omitempty" json:"-"`
	OTPExpiry *time.Time `bson:"otpExpiry,omitempty" json:"-"`
}

// Admin represents an administrator account
type Admin struct {
	ID           string    `bson:"_id" json:"id"`
	Name         string    `bson:"name" json:"name"`
	Email        string    `bson:"email" json:"email"`
	EmpNo        string    `bson:"emp_no" json:"emp_no"`
	PasswordHash string    `bson:"password" json:"-"`
	Role         string    `bson:"role" json:"role"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`

	OTP       string     `bson:"otp,omitempty" json:"-"`
	OTPExpiry *time.Time `bson:"otpExpiry,omitempty" json:"-"`
}

// Role constants
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Identity is the authenticated caller of a request
type Identity struct {
	ID   string
	Role string
}

// IsAdmin reports whether the caller holds the admin role
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Owns reports whether the caller is the student with the given id
func (i Identity) Owns(studentID string) bool {
	return i.Role == RoleStudent && i.ID == studentID
}

// StudentFlag names a derived boolean on the student record
type StudentFlag string

const (
	FlagHasInterned StudentFlag = "hasInterned"
	FlagIsPlaced    StudentFlag = "isPlaced"
)

// ============================================================================
// Achievement Models
// ============================================================================

// Achievement is one record owned by a student
type Achievement struct {
	ID               string      `bson:"_id" json:"id"`
	StudentID        string      `bson:"studentId" json:"studentId"`
	Category         Category    `bson:"category" json:"category"`
	Title            string      `bson:"title" json:"title"`
	Description      string      `bson:"description" json:"description"`
	ShortDescription string      `bson:"shortDescription" json:"shortDescription"`
	CompanyName      string      `bson:"companyName,omitempty" json:"companyName,omitempty"`
	FromDate         time.Time   `bson:"fromDate" json:"fromDate"`
	ToDate           *time.Time  `bson:"toDate,omitempty" json:"toDate,omitempty"`
	File             *Attachment `bson:"file,omitempty" json:"-"`
	FileType         string      `bson:"fileType,omitempty" json:"fileType,omitempty"`
	CreatedAt        time.Time   `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time   `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// HasFile reports whether the achievement carries an attachment
func (a *Achievement) HasFile() bool {
	return a.File != nil && a.File.Filename != ""
}

// Attachment is the certificate uploaded with an achievement. Data is set
// only for inline storage and only when a read asked for bytes; StorageKey is
// set when the bytes live in the blob store.
type Attachment struct {
	Filename    string `bson:"filename" json:"filename"`
	ContentType string `bson:"contentType" json:"contentType"`
	Size        int64  `bson:"size,omitempty" json:"size,omitempty"`
	Data        []byte `bson:"data,omitempty" json:"-"`
	StorageKey  string `bson:"storageKey,omitempty" json:"-"`
}

// File types derived from the upload's media type
const (
	FileTypeImage = "image"
	FileTypePDF   = "pdf"
)

// ============================================================================
// Category
// ============================================================================

// Category is one of the eight fixed achievement classifications
type Category string

const (
	CategoryInternships     Category = "Internships"
	CategoryPlacement       Category = "Placement"
	CategoryHigherEducation Category = "Higher Education"
	CategoryCompetitive     Category = "Competitive Exams"
	CategoryCourse          Category = "Course"
	CategoryCoCurricular    Category = "Achievements (Co-Curriculum)"
	CategoryParticipation   Category = "Participation"
	CategoryExtraCurricular Category = "Extra-Curricular Activities"
)

// Categories lists every category in display order
var Categories = []Category{
	CategoryInternships,
	CategoryPlacement,
	CategoryHigherEducation,
	CategoryCompetitive,
	CategoryCourse,
	CategoryCoCurricular,
	CategoryParticipation,
	CategoryExtraCurricular,
}

// ParseCategory accepts an exact category label
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", NewValidationError(fmt.Sprintf("invalid category %q", s))
}

// ParseCategoryFold accepts a category label ignoring case and surrounding space
func ParseCategoryFold(s string) (Category, error) {
	trimmed := strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(string(c), trimmed) {
			return c, nil
		}
	}
	return "", NewValidationError(fmt.Sprintf("invalid category %q", s))
}

// UnmarshalText rejects labels outside the closed set
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Flag returns the derived student flag set by creating an achievement of
// this category.
func (c Category) Flag() (StudentFlag, bool) {
	switch c {
	case CategoryInternships:
		return FlagHasInterned, true
	case CategoryPlacement:
		return FlagIsPlaced, true
	}
	return "", false
}

// RequiresCompany reports whether achievements of this category need a company name
func (c Category) RequiresCompany() bool {
	return c == CategoryInternships || c == CategoryPlacement
}
