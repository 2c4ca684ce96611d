package validation

import (
	"strings"

	"github.com/studentfund/studentfund/internal/profile"
)

const maxNameLength = 255

// CreateProfileRequest mirrors the fields needed for create profile validation.
type CreateProfileRequest struct {
	ID        string
	Username  *string
	FirstName string
	LastName  string
	UserType  string
}

// ValidateCreateProfile validates a new profile row.
func ValidateCreateProfile(req CreateProfileRequest) []FieldError {
	var errs []FieldError

	if req.ID == "" {
		errs = append(errs, FieldError{Field: "id", Message: "id is required"})
	}

	errs = append(errs, validateName("first_name", req.FirstName)...)
	errs = append(errs, validateName("last_name", req.LastName)...)

	userType, ok := profile.ParseUserType(req.UserType)
	if req.UserType == "" {
		errs = append(errs, FieldError{Field: "user_type", Message: "user_type is required"})
	} else if !ok {
		errs = append(errs, FieldError{Field: "user_type", Message: "user_type must be \"student\", \"donor\" or \"admin\""})
	}

	switch {
	case req.Username == nil || strings.TrimSpace(*req.Username) == "":
		if userType == profile.Student {
			errs = append(errs, FieldError{Field: "username", Message: "username is required for students"})
		}
	case !ValidUsername(strings.TrimSpace(*req.Username)):
		errs = append(errs, FieldError{Field: "username", Message: "username must be 3-30 letters, digits or underscores"})
	}

	return errs
}

// ValidateUpdateProfile validates a partial update. userTypeSent is true when
// the payload carried a user_type field, which is never accepted.
func ValidateUpdateProfile(u profile.Update, userTypeSent bool) []FieldError {
	var errs []FieldError

	if userTypeSent {
		errs = append(errs, FieldError{Field: "user_type", Message: "user_type cannot be changed"})
	}
	if u.FirstName != nil {
		errs = append(errs, validateName("first_name", *u.FirstName)...)
	}
	if u.LastName != nil {
		errs = append(errs, validateName("last_name", *u.LastName)...)
	}
	if u.Username != nil && !ValidUsername(strings.TrimSpace(*u.Username)) {
		errs = append(errs, FieldError{Field: "username", Message: "username must be 3-30 letters, digits or underscores"})
	}
	if u.Location != nil && len(*u.Location) > maxNameLength {
		errs = append(errs, FieldError{Field: "location", Message: "location must be at most 255 characters"})
	}
	if u.Empty() && !userTypeSent {
		errs = append(errs, FieldError{Field: "body", Message: "at least one field must be provided"})
	}

	return errs
}

func validateName(field, value string) []FieldError {
	name := strings.TrimSpace(value)
	if name == "" {
		return []FieldError{{Field: field, Message: field + " is required"}}
	}
	if len(name) > maxNameLength {
		return []FieldError{{Field: field, Message: field + " must be at most 255 characters"}}
	}
	return nil
}
