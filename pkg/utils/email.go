package utils

import (
	"regexp"
	"strings"

	"github.com/AnshRaj112/somnia-backend/internal/apperr"
)

const (
	MaxEmailLength    = 254
	MinPasswordLength = 8
)

var (
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ValidateEmail checks the basic shape of an already normalized address.
func ValidateEmail(email string) error {
	if email == "" {
		return apperr.Validation("email", "Email is required")
	}
	if len(email) > MaxEmailLength {
		return apperr.Validation("email", "Email is too long")
	}
	if !emailRegex.MatchString(email) {
		return apperr.Validation("email", "Email is not valid")
	}
	return nil
}

// NormalizeEmail converts email to lowercase for storage and lookup
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidatePassword enforces the minimum password length
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperr.Validation("password", "Password must be at least 8 characters")
	}
	return nil
}
