// Package auth issues and verifies credentials for students and admins.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"student_achievements/backend/internal/filter"
	"student_achievements/backend/internal/mailer"
	"student_achievements/backend/internal/shared"
	"student_achievements/backend/internal/store"
)

// PurposePasswordReset marks tokens that only authorise a password reset
const PurposePasswordReset = "password-reset"

const (
	issuer      = "student-achievements"
	mailTimeout = 30 * time.Second
)

// Claims is the JWT payload. Access tokens carry an empty Purpose.
type Claims struct {
	UserID  string `json:"id"`
	Role    string `json:"role"`
	Purpose string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// Service implements registration, login, password change and the OTP
// password reset flow.
type Service struct {
	students  store.StudentStore
	admins    store.AdminStore
	passwords Passwords
	mail      mailer.Sender
	security  shared.SecurityConfig
	logger    zerolog.Logger
	now       func() time.Time

	pending sync.WaitGroup
}

// NewService creates a new auth Service
func NewService(db *store.Store, mail mailer.Sender, security shared.SecurityConfig, logger zerolog.Logger) *Service {
	return &Service{
		students:  db.Students,
		admins:    db.Admins,
		passwords: Passwords{Cost: security.BCryptCost},
		mail:      mail,
		security:  security,
		logger:    logger,
		now:       time.Now,
	}
}

// Passwords exposes the hasher shared with the bulk importer
func (s *Service) Passwords() Passwords { return s.passwords }

// Wait blocks until queued reset mails have been handed to the mailer
func (s *Service) Wait() { s.pending.Wait() }

// ============================================================================
// Registration & Login
// ============================================================================

// StudentRegistration is the body of a student registration
type StudentRegistration struct {
	Name         string   `json:"name" validate:"required"`
	Email        string   `json:"email" validate:"required,email"`
	Password     string   `json:"password" validate:"required"`
	YearOfStudy  string   `json:"yearOfStudy"`
	StartOfStudy string   `json:"startOfStudy"`
	EndOfStudy   string   `json:"endOfStudy"`
	Batch        string   `json:"batch"`
	CGPA         *float64 `json:"cgpa" validate:"omitempty,gte=0,lte=10"`
	RollNumber   string   `json:"rollNumber" validate:"required"`
}

// AdminRegistration is the body of an admin registration
type AdminRegistration struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	EmpNo    string `json:"emp_no" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Credentials is the body of a login
type Credentials struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterStudent creates a student account and returns an access token
func (s *Service) RegisterStudent(ctx context.Context, req StudentRegistration) (string, *shared.Student, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.RollNumber = strings.TrimSpace(req.RollNumber)
	if err := shared.ValidateStruct(req); err != nil {
		return "", nil, err
	}

	start, err := parseStudyDate(req.StartOfStudy, "startOfStudy")
	if err != nil {
		return "", nil, err
	}
	end, err := parseStudyDate(req.EndOfStudy, "endOfStudy")
	if err != nil {
		return "", nil, err
	}
	if start != nil && end != nil && end.Before(*start) {
		return "", nil, shared.NewValidationError("endOfStudy must not be before startOfStudy")
	}

	// 1. Identity keys must be unused
	if _, err := s.students.FindByEmailOrRoll(ctx, req.Email, req.RollNumber); err == nil {
		return "", nil, shared.NewConflictError("Email or roll number already registered")
	} else if !errors.Is(err, shared.ErrNotFound) {
		return "", nil, err
	}

	// 2. Hash and store
	hash, err := s.passwords.Hash(req.Password)
	if err != nil {
		return "", nil, err
	}

	yearOfStudy := req.YearOfStudy
	if yearOfStudy == "" && start != nil && end != nil {
		yearOfStudy = start.Format(filter.MonthLayout) + " - " + end.Format(filter.MonthLayout)
	}

	student := &shared.Student{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Email:        req.Email,
		PasswordHash: hash,
		StartOfStudy: start,
		EndOfStudy:   end,
		YearOfStudy:  yearOfStudy,
		Batch:        req.Batch,
		CGPA:         req.CGPA,
		RollNumber:   req.RollNumber,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.students.Insert(ctx, student); err != nil {
		return "", nil, err
	}

	// 3. Issue token
	token, err := s.issue(student.ID, shared.RoleStudent, "", s.security.TokenTTL())
	if err != nil {
		return "", nil, err
	}

	s.logger.Info().Str("studentId", student.ID).Str("rollNumber", student.RollNumber).Msg("student registered")
	return token, student, nil
}

// RegisterAdmin creates an admin account and returns an access token
func (s *Service) RegisterAdmin(ctx context.Context, req AdminRegistration) (string, *shared.Admin, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.EmpNo = strings.TrimSpace(req.EmpNo)
	if err := shared.ValidateStruct(req); err != nil {
		return "", nil, err
	}

	if _, err := s.admins.FindByEmailOrEmpNo(ctx, req.Email, req.EmpNo); err == nil {
		return "", nil, shared.NewConflictError("Email or Employee Number already registered")
	} else if !errors.Is(err, shared.ErrNotFound) {
		return "", nil, err
	}

	hash, err := s.passwords.Hash(req.Password)
	if err != nil {
		return "", nil, err
	}

	admin := &shared.Admin{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Email:        req.Email,
		EmpNo:        req.EmpNo,
		PasswordHash: hash,
		Role:         shared.RoleAdmin,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.admins.Insert(ctx, admin); err != nil {
		return "", nil, err
	}

	token, err := s.issue(admin.ID, shared.RoleAdmin, "", s.security.TokenTTL())
	if err != nil {
		return "", nil, err
	}

	s.logger.Info().Str("adminId", admin.ID).Str("empNo", admin.EmpNo).Msg("admin registered")
	return token, admin, nil
}

// LoginStudent verifies a student's email and password
func (s *Service) LoginStudent(ctx context.Context, req Credentials) (string, *shared.Student, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return "", nil, err
	}

	student, err := s.students.FindByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		return "", nil, invalidCredentials(err)
	}
	if !s.passwords.Matches(student.PasswordHash, req.Password) {
		return "", nil, shared.NewUnauthorizedError("Invalid credentials")
	}

	token, err := s.issue(student.ID, shared.RoleStudent, "", s.security.TokenTTL())
	if err != nil {
		return "", nil, err
	}
	return token, student, nil
}

// LoginAdmin verifies an admin's email and password
func (s *Service) LoginAdmin(ctx context.Context, req Credentials) (string, *shared.Admin, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return "", nil, err
	}

	admin, err := s.admins.FindByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		return "", nil, invalidCredentials(err)
	}
	if !s.passwords.Matches(admin.PasswordHash, req.Password) {
		return "", nil, shared.NewUnauthorizedError("Invalid credentials")
	}

	token, err := s.issue(admin.ID, shared.RoleAdmin, "", s.security.TokenTTL())
	if err != nil {
		return "", nil, err
	}
	return token, admin, nil
}

func invalidCredentials(err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewUnauthorizedError("Invalid credentials")
	}
	return err
}

func parseStudyDate(raw, field string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := filter.ParseMonth(raw); err == nil {
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	return nil, shared.NewValidationError(field + " must be YYYY-MM or an RFC 3339 timestamp")
}

// ============================================================================
// Tokens
// ============================================================================

// Parse verifies an access token and returns the caller identity. Reset
// tokens are rejected.
func (s *Service) Parse(token string) (shared.Identity, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return shared.Identity{}, err
	}
	if claims.Purpose != "" {
		return shared.Identity{}, shared.NewUnauthorizedError("Invalid token")
	}
	return shared.Identity{ID: claims.UserID, Role: claims.Role}, nil
}

// issue creates a signed JWT
func (s *Service) issue(userID, role, purpose string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		UserID:  userID,
		Role:    role,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.security.JWTSecret))
	if err != nil {
		return "", shared.NewInternalError(fmt.Errorf("sign token: %w", err))
	}
	return signed, nil
}

// parseToken validates the JWT signature and extracts claims
func (s *Service) parseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.security.JWTSecret), nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, shared.NewUnauthorizedError("Invalid token")
	}
	if claims.Role != shared.RoleStudent && claims.Role != shared.RoleAdmin {
		return nil, shared.NewUnauthorizedError("Invalid token")
	}
	return claims, nil
}

// ============================================================================
// Password Change
// ============================================================================

// ChangePassword replaces the caller's password after checking the current one
func (s *Service) ChangePassword(ctx context.Context, caller shared.Identity, current, next string) error {
	if current == "" || next == "" {
		return shared.NewValidationError("current and new password are required")
	}
	if err := checkNewPassword(next); err != nil {
		return err
	}

	var hash string
	switch caller.Role {
	case shared.RoleStudent:
		student, err := s.students.FindByID(ctx, caller.ID)
		if err != nil {
			return err
		}
		hash = student.PasswordHash
	case shared.RoleAdmin:
		admin, err := s.admins.FindByID(ctx, caller.ID)
		if err != nil {
			return err
		}
		hash = admin.PasswordHash
	default:
		return shared.NewForbiddenError("Forbidden")
	}

	if !s.passwords.Matches(hash, current) {
		return shared.NewValidationError("Incorrect current password")
	}
	return s.setPassword(ctx, caller, next)
}

func (s *Service) setPassword(ctx context.Context, who shared.Identity, plain string) error {
	hash, err := s.passwords.Hash(plain)
	if err != nil {
		return err
	}
	if who.Role == shared.RoleAdmin {
		err = s.admins.SetPasswordHash(ctx, who.ID, hash)
	} else {
		err = s.students.SetPasswordHash(ctx, who.ID, hash)
	}
	if err != nil {
		return err
	}
	s.logger.Info().Str("userId", who.ID).Str("role", who.Role).Msg("password updated")
	return nil
}

// ============================================================================
// Password Reset
// ============================================================================

// RequestReset stores a fresh one-time code for the account and mails it.
// Students are identified by roll number, admins by email.
func (s *Service) RequestReset(ctx context.Context, role, identifier string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return shared.NewValidationError("identifier is required")
	}

	code, err := newOTP()
	if err != nil {
		return shared.NewInternalError(err)
	}
	expiry := s.now().Add(s.security.OTPTTL)

	var email, subject string
	switch role {
	case shared.RoleStudent:
		student, err := s.students.FindByRollNumber(ctx, identifier)
		if err != nil {
			return notFoundAs(err, "Student not found")
		}
		if err := s.students.SetOTP(ctx, student.ID, code, expiry); err != nil {
			return err
		}
		email, subject = student.Email, "Password Reset OTP"
	case shared.RoleAdmin:
		admin, err := s.admins.FindByEmail(ctx, identifier)
		if err != nil {
			return notFoundAs(err, "Admin not found")
		}
		if err := s.admins.SetOTP(ctx, admin.ID, code, expiry); err != nil {
			return err
		}
		email, subject = admin.Email, "Admin Password Reset OTP"
	default:
		return shared.NewValidationError("unknown role")
	}

	s.deliver(ctx, mailer.OTPMessage(email, subject, code, s.security.OTPTTL))
	return nil
}

// deliver sends msg in the background. Failures are logged only.
func (s *Service) deliver(ctx context.Context, msg mailer.Message) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mailTimeout)
		defer cancel()

		if err := s.mail.Send(sendCtx, msg); err != nil {
			s.logger.Error().Err(err).Str("to", msg.To).Msg("failed to send reset code")
		}
	}()
}

// VerifyOTP consumes the code in one atomic store operation and returns a
// short-lived token that authorises ResetPassword.
func (s *Service) VerifyOTP(ctx context.Context, role, identifier, code string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	code = strings.TrimSpace(code)
	if identifier == "" || code == "" {
		return "", shared.NewValidationError("identifier and otp are required")
	}

	now := s.now()
	var userID string
	switch role {
	case shared.RoleStudent:
		student, err := s.students.ConsumeOTP(ctx, identifier, code, now)
		if err != nil {
			return "", invalidOTP(err)
		}
		userID = student.ID
	case shared.RoleAdmin:
		admin, err := s.admins.ConsumeOTP(ctx, identifier, code, now)
		if err != nil {
			return "", invalidOTP(err)
		}
		userID = admin.ID
	default:
		return "", shared.NewValidationError("unknown role")
	}

	return s.issue(userID, role, PurposePasswordReset, s.security.ResetTokenTTL)
}

// ResetPassword sets a new password for the holder of a reset token
func (s *Service) ResetPassword(ctx context.Context, role, resetToken, next string) error {
	if resetToken == "" {
		return shared.NewValidationError("resetToken is required")
	}
	if err := checkNewPassword(next); err != nil {
		return err
	}

	claims, err := s.parseToken(resetToken)
	if err != nil || claims.Purpose != PurposePasswordReset || claims.Role != role {
		return shared.NewUnauthorizedError("Invalid or expired reset token")
	}
	return s.setPassword(ctx, shared.Identity{ID: claims.UserID, Role: claims.Role}, next)
}

func invalidOTP(err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewValidationError("Invalid or expired OTP")
	}
	return err
}

func notFoundAs(err error, message string) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewNotFoundError(message)
	}
	return err
}

// newOTP returns a uniformly random six digit code
func newOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
