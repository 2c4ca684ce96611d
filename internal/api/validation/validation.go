// Package validation checks request payloads and reports every problem at once.
package validation

import (
	"net/mail"
	"regexp"
	"strings"
)

var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// MinPasswordLength is the shortest password accepted on signup.
const MinPasswordLength = 6

// CredentialsRequest mirrors the fields needed for signup and login validation.
type CredentialsRequest struct {
	Email    string
	Password string
}

// ValidateCredentials validates an email/password pair. checkStrength is set
// on signup only; login must not leak the password policy.
func ValidateCredentials(req CredentialsRequest, checkStrength bool) []FieldError {
	var errs []FieldError

	email := strings.TrimSpace(req.Email)
	if email == "" {
		errs = append(errs, FieldError{Field: "email", Message: "email is required"})
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		errs = append(errs, FieldError{Field: "email", Message: "email must be a valid address"})
	}

	if req.Password == "" {
		errs = append(errs, FieldError{Field: "password", Message: "password is required"})
	} else if checkStrength && len(req.Password) < MinPasswordLength {
		errs = append(errs, FieldError{Field: "password", Message: "password must be at least 6 characters"})
	}

	return errs
}

// ValidUsername reports whether s is an acceptable username.
func ValidUsername(s string) bool {
	return usernameRegex.MatchString(s)
}
