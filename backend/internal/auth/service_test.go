package auth

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"student_achievements/backend/internal/mailer"
	"student_achievements/backend/internal/shared"
	"student_achievements/backend/internal/store"
)

type captureSender struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (c *captureSender) Send(_ context.Context, msg mailer.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureSender) last() mailer.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent[len(c.sent)-1]
}

var otpPattern = regexp.MustCompile(`<strong>(\d{6})</strong>`)

func (c *captureSender) lastCode(t *testing.T) string {
	t.Helper()
	m := otpPattern.FindStringSubmatch(c.last().HTML)
	require.Len(t, m, 2)
	return m[1]
}

func newTestService() (*Service, *store.Store, *captureSender) {
	db := store.NewMemoryStore()
	mail := &captureSender{}
	security := shared.SecurityConfig{
		JWTSecret:          "test-secret",
		JWTExpirationHours: 24,
		ResetTokenTTL:      15 * time.Minute,
		OTPTTL:             10 * time.Minute,
		BCryptCost:         bcrypt.MinCost,
	}
	return NewService(db, mail, security, zerolog.Nop()), db, mail
}

func registerAsha(t *testing.T, svc *Service) *shared.Student {
	t.Helper()
	_, student, err := svc.RegisterStudent(context.Background(), StudentRegistration{
		Name: "Asha Rao", Email: "asha@college.edu", Password: "CegStud@0001",
		StartOfStudy: "2021-07", EndOfStudy: "2025-06", Batch: "N", RollNumber: "21CS0001",
	})
	require.NoError(t, err)
	return student
}

func TestRegistrationAndLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("Register Student Then Login", func(t *testing.T) {
		svc, _, _ := newTestService()
		student := registerAsha(t, svc)
		assert.Equal(t, "2021-07 - 2025-06", student.YearOfStudy)
		assert.NotEqual(t, "CegStud@0001", student.PasswordHash)

		token, got, err := svc.LoginStudent(ctx, Credentials{Email: "asha@college.edu", Password: "CegStud@0001"})
		require.NoError(t, err)
		assert.Equal(t, student.ID, got.ID)

		id, err := svc.Parse(token)
		require.NoError(t, err)
		assert.Equal(t, shared.Identity{ID: student.ID, Role: shared.RoleStudent}, id)
	})

	t.Run("Duplicate Student", func(t *testing.T) {
		svc, _, _ := newTestService()
		registerAsha(t, svc)

		_, _, err := svc.RegisterStudent(ctx, StudentRegistration{
			Name: "Other", Email: "other@college.edu", Password: "x", RollNumber: "21CS0001",
		})
		assert.True(t, errors.Is(err, shared.ErrConflict))
	})

	t.Run("Registration Validation", func(t *testing.T) {
		svc, _, _ := newTestService()
		_, _, err := svc.RegisterStudent(ctx, StudentRegistration{Name: "No Roll", Email: "x@college.edu", Password: "x"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrValidation))
		assert.Contains(t, shared.Message(err), "rollNumber is required")

		cgpa := 11.0
		_, _, err = svc.RegisterStudent(ctx, StudentRegistration{
			Name: "High", Email: "h@college.edu", Password: "x", RollNumber: "9", CGPA: &cgpa,
		})
		assert.True(t, errors.Is(err, shared.ErrValidation))
	})

	t.Run("Register Admin Then Login", func(t *testing.T) {
		svc, _, _ := newTestService()
		_, admin, err := svc.RegisterAdmin(ctx, AdminRegistration{Name: "Ravi", Email: "ravi@college.edu", EmpNo: "E100", Password: "Admin@100"})
		require.NoError(t, err)
		assert.Equal(t, shared.RoleAdmin, admin.Role)

		_, _, err = svc.RegisterAdmin(ctx, AdminRegistration{Name: "Ravi 2", Email: "ravi2@college.edu", EmpNo: "E100", Password: "x"})
		assert.True(t, errors.Is(err, shared.ErrConflict))

		token, _, err := svc.LoginAdmin(ctx, Credentials{Email: "ravi@college.edu", Password: "Admin@100"})
		require.NoError(t, err)
		id, err := svc.Parse(token)
		require.NoError(t, err)
		assert.True(t, id.IsAdmin())
	})

	t.Run("Wrong Password And Unknown Email Look The Same", func(t *testing.T) {
		svc, _, _ := newTestService()
		registerAsha(t, svc)

		_, _, errWrong := svc.LoginStudent(ctx, Credentials{Email: "asha@college.edu", Password: "nope"})
		_, _, errUnknown := svc.LoginStudent(ctx, Credentials{Email: "ghost@college.edu", Password: "nope"})
		assert.True(t, errors.Is(errWrong, shared.ErrUnauthorized))
		assert.Equal(t, shared.Message(errWrong), shared.Message(errUnknown))

		// Students cannot log in as admins
		_, _, err := svc.LoginAdmin(ctx, Credentials{Email: "asha@college.edu", Password: "CegStud@0001"})
		assert.True(t, errors.Is(err, shared.ErrUnauthorized))
	})

	t.Run("Tampered Token", func(t *testing.T) {
		svc, _, _ := newTestService()
		token, err := svc.issue("u1", shared.RoleAdmin, "", time.Hour)
		require.NoError(t, err)

		_, err = svc.Parse(token + "x")
		assert.True(t, errors.Is(err, shared.ErrUnauthorized))

		expired, err := svc.issue("u1", shared.RoleAdmin, "", -time.Minute)
		require.NoError(t, err)
		_, err = svc.Parse(expired)
		assert.True(t, errors.Is(err, shared.ErrUnauthorized))
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	student := registerAsha(t, svc)
	caller := shared.Identity{ID: student.ID, Role: shared.RoleStudent}

	t.Run("Too Short", func(t *testing.T) {
		err := svc.ChangePassword(ctx, caller, "CegStud@0001", "short")
		assert.True(t, errors.Is(err, shared.ErrValidation))
	})

	t.Run("Wrong Current Password", func(t *testing.T) {
		err := svc.ChangePassword(ctx, caller, "wrong-password", "brand-new-pass")
		assert.True(t, errors.Is(err, shared.ErrValidation))
		assert.Equal(t, "Incorrect current password", shared.Message(err))
	})

	t.Run("Success", func(t *testing.T) {
		require.NoError(t, svc.ChangePassword(ctx, caller, "CegStud@0001", "brand-new-pass"))

		_, _, err := svc.LoginStudent(ctx, Credentials{Email: "asha@college.edu", Password: "brand-new-pass"})
		require.NoError(t, err)
		_, _, err = svc.LoginStudent(ctx, Credentials{Email: "asha@college.edu", Password: "CegStud@0001"})
		assert.Error(t, err)
	})
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()

	t.Run("Student Flow", func(t *testing.T) {
		svc, _, mail := newTestService()
		registerAsha(t, svc)

		require.NoError(t, svc.RequestReset(ctx, shared.RoleStudent, "21CS0001"))
		svc.Wait()
		assert.Equal(t, "asha@college.edu", mail.last().To)
		code := mail.lastCode(t)

		resetToken, err := svc.VerifyOTP(ctx, shared.RoleStudent, "21CS0001", code)
		require.NoError(t, err)

		// The code is single use
		_, err = svc.VerifyOTP(ctx, shared.RoleStudent, "21CS0001", code)
		assert.True(t, errors.Is(err, shared.ErrValidation))

		// A reset token is not an access token
		_, err = svc.Parse(resetToken)
		assert.True(t, errors.Is(err, shared.ErrUnauthorized))

		require.NoError(t, svc.ResetPassword(ctx, shared.RoleStudent, resetToken, "reset-password-1"))
		_, _, err = svc.LoginStudent(ctx, Credentials{Email: "asha@college.edu", Password: "reset-password-1"})
		require.NoError(t, err)
	})

	t.Run("Admin Flow", func(t *testing.T) {
		svc, _, mail := newTestService()
		_, _, err := svc.RegisterAdmin(ctx, AdminRegistration{Name: "Ravi", Email: "ravi@college.edu", EmpNo: "E1", Password: "Admin@001"})
		require.NoError(t, err)

		require.NoError(t, svc.RequestReset(ctx, shared.RoleAdmin, "ravi@college.edu"))
		svc.Wait()
		assert.Equal(t, "Admin Password Reset OTP", mail.last().Subject)

		resetToken, err := svc.VerifyOTP(ctx, shared.RoleAdmin, "ravi@college.edu", mail.lastCode(t))
		require.NoError(t, err)

		// Tokens are bound to their role
		err = svc.ResetPassword(ctx, shared.RoleStudent, resetToken, "whatever-123")
		assert.True(t, errors.Is(err, shared.ErrUnauthorized))

		require.NoError(t, svc.ResetPassword(ctx, shared.RoleAdmin, resetToken, "admin-reset-1"))
	})

	t.Run("Expired Code", func(t *testing.T) {
		svc, _, mail := newTestService()
		registerAsha(t, svc)

		require.NoError(t, svc.RequestReset(ctx, shared.RoleStudent, "21CS0001"))
		svc.Wait()
		code := mail.lastCode(t)

		svc.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
		_, err := svc.VerifyOTP(ctx, shared.RoleStudent, "21CS0001", code)
		assert.True(t, errors.Is(err, shared.ErrValidation))
	})

	t.Run("Unknown Identifier", func(t *testing.T) {
		svc, _, _ := newTestService()
		err := svc.RequestReset(ctx, shared.RoleStudent, "nobody")
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("Access Token Cannot Reset", func(t *testing.T) {
		svc, _, _ := newTestService()
		student := registerAsha(t, svc)
		access, err := svc.issue(student.ID, shared.RoleStudent, "", time.Hour)
		require.NoError(t, err)

		err = svc.ResetPassword(ctx, shared.RoleStudent, access, "new-password-1")
		assert.True(t, errors.Is(err, shared.ErrUnauthorized))
	})
}

func TestNewOTP(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := newOTP()
		require.NoError(t, err)
		assert.Regexp(t, `^[1-9]\d{5}$`, code)
	}
}
