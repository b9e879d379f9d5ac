// Package store is the record store accessor: typed reads and single-document
// writes over the students, admins and achievements collections.
package store

import (
	"context"
	"time"

	"student_achievements/backend/internal/shared"
)

// Collection names
const (
	StudentsCollection     = "students"
	AdminsCollection       = "admins"
	AchievementsCollection = "studentachievements"
)

// StudentQuery is the student-level predicate. Nil bounds and empty strings
// are inert. When Search is set a student matches if its name, email or roll
// number contains the term, or if its id is in AlsoIDs.
type StudentQuery struct {
	Batch   string
	CGPAMin *float64
	CGPAMax *float64
	Search  string
	AlsoIDs []string
}

// StudentStore reads and writes student records
type StudentStore interface {
	Find(ctx context.Context, q StudentQuery) ([]shared.Student, error)
	FindByID(ctx context.Context, id string) (*shared.Student, error)
	FindByEmail(ctx context.Context, email string) (*shared.Student, error)
	FindByRollNumber(ctx context.Context, roll string) (*shared.Student, error)
	FindByEmailOrRoll(ctx context.Context, email, roll string) (*shared.Student, error)
	Insert(ctx context.Context, s *shared.Student) error
	UpdateCGPA(ctx context.Context, id string, cgpa float64) error
	SetPasswordHash(ctx context.Context, id, hash string) error
	SetProfilePhoto(ctx context.Context, id, filename string) error
	SetFlag(ctx context.Context, id string, flag shared.StudentFlag) error
	SetOTP(ctx context.Context, id, code string, expiry time.Time) error
	// ConsumeOTP checks and clears the code in one operation. It returns
	// ErrNotFound when no student with that roll number holds an unexpired
	// matching code.
	ConsumeOTP(ctx context.Context, roll, code string, now time.Time) (*shared.Student, error)
}

// AdminStore reads and writes admin records
type AdminStore interface {
	FindByID(ctx context.Context, id string) (*shared.Admin, error)
	FindByEmail(ctx context.Context, email string) (*shared.Admin, error)
	FindByEmailOrEmpNo(ctx context.Context, email, empNo string) (*shared.Admin, error)
	Insert(ctx context.Context, a *shared.Admin) error
	SetPasswordHash(ctx context.Context, id, hash string) error
	SetOTP(ctx context.Context, id, code string, expiry time.Time) error
	ConsumeOTP(ctx context.Context, email, code string, now time.Time) (*shared.Admin, error)
}

// AchievementStore reads and writes achievement records. withData controls
// whether inline attachment bytes are loaded.
type AchievementStore interface {
	FindByStudent(ctx context.Context, studentID string, withData bool) ([]shared.Achievement, error)
	FindByStudentAndCategory(ctx context.Context, studentID string, category shared.Category) ([]shared.Achievement, error)
	FindByID(ctx context.Context, id string, withData bool) (*shared.Achievement, error)
	// OwnersMatching returns the distinct owners of achievements whose title,
	// description, short description or company name contains term, ignoring case.
	OwnersMatching(ctx context.Context, term string) ([]string, error)
	Insert(ctx context.Context, a *shared.Achievement) error
	// Update replaces the mutable fields. The attachment is replaced only
	// when a.File is non-nil.
	Update(ctx context.Context, a *shared.Achievement) error
	Delete(ctx context.Context, id string) error
}

// Store bundles the three accessors
type Store struct {
	Students     StudentStore
	Admins       AdminStore
	Achievements AchievementStore
}
