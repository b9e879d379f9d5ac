package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"student_achievements/backend/internal/shared"
)

// NewMemoryStore returns mutex-guarded in-process accessors. Records are
// copied on the way in and out so callers never share state with the store.
func NewMemoryStore() *Store {
	return &Store{
		Students:     &MemoryStudents{},
		Admins:       &MemoryAdmins{},
		Achievements: &MemoryAchievements{},
	}
}

func containsFoldString(field, term string) bool {
	return strings.Contains(strings.ToLower(field), strings.ToLower(term))
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ============================================================================
// Students
// ============================================================================

// MemoryStudents implements StudentStore
type MemoryStudents struct {
	mu   sync.RWMutex
	rows []*shared.Student
}

func cloneStudent(s *shared.Student) *shared.Student {
	c := *s
	c.StartOfStudy = cloneTime(s.StartOfStudy)
	c.EndOfStudy = cloneTime(s.EndOfStudy)
	c.OTPExpiry = cloneTime(s.OTPExpiry)
	if s.CGPA != nil {
		v := *s.CGPA
		c.CGPA = &v
	}
	return &c
}

func (m *MemoryStudents) Find(_ context.Context, q StudentQuery) ([]shared.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	also := make(map[string]bool, len(q.AlsoIDs))
	for _, id := range q.AlsoIDs {
		also[id] = true
	}

	result := []shared.Student{}
	for _, s := range m.rows {
		if q.Batch != "" && s.Batch != q.Batch {
			continue
		}
		if q.CGPAMin != nil && (s.CGPA == nil || *s.CGPA < *q.CGPAMin) {
			continue
		}
		if q.CGPAMax != nil && (s.CGPA == nil || *s.CGPA > *q.CGPAMax) {
			continue
		}
		if q.Search != "" {
			direct := containsFoldString(s.Name, q.Search) ||
				containsFoldString(s.Email, q.Search) ||
				containsFoldString(s.RollNumber, q.Search)
			if !direct && !also[s.ID] {
				continue
			}
		}
		result = append(result, *cloneStudent(s))
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStudents) first(match func(*shared.Student) bool) (*shared.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.rows {
		if match(s) {
			return cloneStudent(s), nil
		}
	}
	return nil, shared.NewNotFoundError("student not found")
}

func (m *MemoryStudents) FindByID(_ context.Context, id string) (*shared.Student, error) {
	return m.first(func(s *shared.Student) bool { return s.ID == id })
}

func (m *MemoryStudents) FindByEmail(_ context.Context, email string) (*shared.Student, error) {
	return m.first(func(s *shared.Student) bool { return s.Email == email })
}

func (m *MemoryStudents) FindByRollNumber(_ context.Context, roll string) (*shared.Student, error) {
	return m.first(func(s *shared.Student) bool { return s.RollNumber == roll })
}

func (m *MemoryStudents) FindByEmailOrRoll(_ context.Context, email, roll string) (*shared.Student, error) {
	return m.first(func(s *shared.Student) bool { return s.Email == email || s.RollNumber == roll })
}

func (m *MemoryStudents) Insert(_ context.Context, s *shared.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.rows {
		if existing.ID == s.ID || existing.Email == s.Email || existing.RollNumber == s.RollNumber {
			return shared.NewConflictError("a record with the same identity already exists")
		}
	}
	m.rows = append(m.rows, cloneStudent(s))
	return nil
}

func (m *MemoryStudents) mutate(id string, fn func(*shared.Student)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.rows {
		if s.ID == id {
			fn(s)
			return nil
		}
	}
	return shared.NewNotFoundError("student not found")
}

func (m *MemoryStudents) UpdateCGPA(_ context.Context, id string, cgpa float64) error {
	return m.mutate(id, func(s *shared.Student) { s.CGPA = &cgpa })
}

func (m *MemoryStudents) SetPasswordHash(_ context.Context, id, hash string) error {
	return m.mutate(id, func(s *shared.Student) { s.PasswordHash = hash })
}

func (m *MemoryStudents) SetProfilePhoto(_ context.Context, id, filename string) error {
	return m.mutate(id, func(s *shared.Student) { s.ProfilePhoto = filename })
}

func (m *MemoryStudents) SetFlag(_ context.Context, id string, flag shared.StudentFlag) error {
	return m.mutate(id, func(s *shared.Student) {
		switch flag {
		case shared.FlagHasInterned:
			s.HasInterned = true
		case shared.FlagIsPlaced:
			s.IsPlaced = true
		}
	})
}

func (m *MemoryStudents) SetOTP(_ context.Context, id, code string, expiry time.Time) error {
	return m.mutate(id, func(s *shared.Student) {
		s.OTP = code
		s.OTPExpiry = &expiry
	})
}

func (m *MemoryStudents) ConsumeOTP(_ context.Context, roll, code string, now time.Time) (*shared.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.rows {
		if s.RollNumber != roll {
			continue
		}
		if s.OTP == "" || s.OTP != code || s.OTPExpiry == nil || !s.OTPExpiry.After(now) {
			break
		}
		s.OTP = ""
		s.OTPExpiry = nil
		return cloneStudent(s), nil
	}
	return nil, shared.NewNotFoundError("invalid or expired code")
}

// ============================================================================
// Admins
// ============================================================================

// MemoryAdmins implements AdminStore
type MemoryAdmins struct {
	mu   sync.RWMutex
	rows []*shared.Admin
}

func cloneAdmin(a *shared.Admin) *shared.Admin {
	c := *a
	c.OTPExpiry = cloneTime(a.OTPExpiry)
	return &c
}

func (m *MemoryAdmins) first(match func(*shared.Admin) bool) (*shared.Admin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.rows {
		if match(a) {
			return cloneAdmin(a), nil
		}
	}
	return nil, shared.NewNotFoundError("admin not found")
}

func (m *MemoryAdmins) FindByID(_ context.Context, id string) (*shared.Admin, error) {
	return m.first(func(a *shared.Admin) bool { return a.ID == id })
}

func (m *MemoryAdmins) FindByEmail(_ context.Context, email string) (*shared.Admin, error) {
	return m.first(func(a *shared.Admin) bool { return a.Email == email })
}

func (m *MemoryAdmins) FindByEmailOrEmpNo(_ context.Context, email, empNo string) (*shared.Admin, error) {
	return m.first(func(a *shared.Admin) bool { return a.Email == email || a.EmpNo == empNo })
}

func (m *MemoryAdmins) Insert(_ context.Context, a *shared.Admin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.rows {
		if existing.ID == a.ID || existing.Email == a.Email || existing.EmpNo == a.EmpNo {
			return shared.NewConflictError("a record with the same identity already exists")
		}
	}
	m.rows = append(m.rows, cloneAdmin(a))
	return nil
}

func (m *MemoryAdmins) mutate(id string, fn func(*shared.Admin)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.rows {
		if a.ID == id {
			fn(a)
			return nil
		}
	}
	return shared.NewNotFoundError("admin not found")
}

func (m *MemoryAdmins) SetPasswordHash(_ context.Context, id, hash string) error {
	return m.mutate(id, func(a *shared.Admin) { a.PasswordHash = hash })
}

func (m *MemoryAdmins) SetOTP(_ context.Context, id, code string, expiry time.Time) error {
	return m.mutate(id, func(a *shared.Admin) {
		a.OTP = code
		a.OTPExpiry = &expiry
	})
}

func (m *MemoryAdmins) ConsumeOTP(_ context.Context, email, code string, now time.Time) (*shared.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.rows {
		if a.Email != email {
			continue
		}
		if a.OTP == "" || a.OTP != code || a.OTPExpiry == nil || !a.OTPExpiry.After(now) {
			break
		}
		a.OTP = ""
		a.OTPExpiry = nil
		return cloneAdmin(a), nil
	}
	return nil, shared.NewNotFoundError("invalid or expired code")
}

// ============================================================================
// Achievements
// ============================================================================

// MemoryAchievements implements AchievementStore
type MemoryAchievements struct {
	mu   sync.RWMutex
	rows []*shared.Achievement
}

func cloneAchievement(a *shared.Achievement, withData bool) *shared.Achievement {
	c := *a
	c.ToDate = cloneTime(a.ToDate)
	if a.File != nil {
		f := *a.File
		if withData && a.File.Data != nil {
			f.Data = append([]byte(nil), a.File.Data...)
		} else {
			f.Data = nil
		}
		c.File = &f
	}
	return &c
}

func (m *MemoryAchievements) FindByStudent(_ context.Context, studentID string, withData bool) ([]shared.Achievement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []shared.Achievement{}
	for _, a := range m.rows {
		if a.StudentID == studentID {
			result = append(result, *cloneAchievement(a, withData))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryAchievements) FindByStudentAndCategory(_ context.Context, studentID string, category shared.Category) ([]shared.Achievement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []shared.Achievement{}
	for i := len(m.rows) - 1; i >= 0; i-- {
		a := m.rows[i]
		if a.StudentID == studentID && a.Category == category {
			result = append(result, *cloneAchievement(a, false))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryAchievements) FindByID(_ context.Context, id string, withData bool) (*shared.Achievement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.rows {
		if a.ID == id {
			return cloneAchievement(a, withData), nil
		}
	}
	return nil, shared.NewNotFoundError("achievement not found")
}

func (m *MemoryAchievements) OwnersMatching(_ context.Context, term string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := map[string]bool{}
	owners := []string{}
	for _, a := range m.rows {
		if seen[a.StudentID] {
			continue
		}
		if containsFoldString(a.Title, term) ||
			containsFoldString(a.Description, term) ||
			containsFoldString(a.ShortDescription, term) ||
			containsFoldString(a.CompanyName, term) {
			seen[a.StudentID] = true
			owners = append(owners, a.StudentID)
		}
	}
	return owners, nil
}

func (m *MemoryAchievements) Insert(_ context.Context, a *shared.Achievement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.rows {
		if existing.ID == a.ID {
			return shared.NewConflictError("a record with the same identity already exists")
		}
	}
	m.rows = append(m.rows, cloneAchievement(a, true))
	return nil
}

func (m *MemoryAchievements) Update(_ context.Context, a *shared.Achievement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.rows {
		if existing.ID != a.ID {
			continue
		}
		existing.Category = a.Category
		existing.Title = a.Title
		existing.Description = a.Description
		existing.ShortDescription = a.ShortDescription
		existing.CompanyName = a.CompanyName
		existing.FromDate = a.FromDate
		existing.ToDate = cloneTime(a.ToDate)
		existing.UpdatedAt = a.UpdatedAt
		if a.File != nil {
			existing.File = cloneAchievement(a, true).File
			existing.FileType = a.FileType
		}
		return nil
	}
	return shared.NewNotFoundError("achievement not found")
}

func (m *MemoryAchievements) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, a := range m.rows {
		if a.ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return shared.NewNotFoundError("achievement not found")
}
