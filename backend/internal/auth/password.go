package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"student_achievements/backend/internal/shared"
)

// MinPasswordLength applies to changed and reset passwords
const MinPasswordLength = 8

// Passwords hashes and checks credentials with bcrypt
type Passwords struct {
	Cost int
}

// Hash returns the bcrypt hash of plain
func (p Passwords) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), p.Cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", shared.NewValidationError("password is too long")
		}
		return "", shared.NewInternalError(err)
	}
	return string(hash), nil
}

// Matches reports whether plain is the password behind hash
func (p Passwords) Matches(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

func checkNewPassword(plain string) error {
	if len(plain) < MinPasswordLength {
		return shared.NewValidationError("password must be at least 8 characters long")
	}
	return nil
}
