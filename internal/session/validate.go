package session

import (
	"strings"
	"unicode"

	apperrors "github.com/pscheid92/llmwatch/internal/errors"
)

const (
	minPasswordLength = 8
	minUsernameLength = 3
)

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// validateRegistration enforces the local rules before anything touches
// the network. Each violation returns a specific message.
func validateRegistration(username, email, password, confirm string) error {
	if password != confirm {
		return apperrors.Validation("passwords do not match")
	}
	if len(password) < minPasswordLength {
		return apperrors.Validation("password must be at least 8 characters")
	}
	if !strings.ContainsFunc(password, unicode.IsUpper) {
		return apperrors.Validation("password must contain an uppercase letter")
	}
	if !strings.ContainsFunc(password, unicode.IsDigit) {
		return apperrors.Validation("password must contain a digit")
	}

	username = strings.TrimSpace(username)
	if len(username) < minUsernameLength {
		return apperrors.Validation("username must be at least 3 characters")
	}
	if !isAlphanumeric(username) {
		return apperrors.Validation("username must be alphanumeric")
	}

	if !strings.Contains(email, "@") {
		return apperrors.Validation("email address is invalid")
	}
	return nil
}
