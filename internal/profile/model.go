package profile

import (
	"time"

	"github.com/google/uuid"
)

// UserType is the role discriminant of a profile. It decides which protected
// views an identity may reach and never changes after the profile is created.
type UserType string

const (
	Student UserType = "student"
	Donor   UserType = "donor"
	Admin   UserType = "admin"
)

// Valid reports whether t is one of the known user types.
func (t UserType) Valid() bool {
	switch t {
	case Student, Donor, Admin:
		return true
	}
	return false
}

// ParseUserType converts a string into a UserType. The empty string and
// unknown values return false.
func ParseUserType(s string) (UserType, bool) {
	t := UserType(s)
	return t, t.Valid()
}

// Profile represents a row in the profiles table. ID is the identity id of
// the account that owns it.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Username  *string   `json:"username,omitempty"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	UserType  UserType  `json:"user_type"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	Bio       *string   `json:"bio,omitempty"`
	Location  *string   `json:"location,omitempty"`
	Interests []string  `json:"interests"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Update holds the mutable profile fields. Nil fields are left untouched.
// UserType is deliberately absent.
type Update struct {
	Username  *string   `json:"username,omitempty"`
	FirstName *string   `json:"first_name,omitempty"`
	LastName  *string   `json:"last_name,omitempty"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	Bio       *string   `json:"bio,omitempty"`
	Location  *string   `json:"location,omitempty"`
	Interests *[]string `json:"interests,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.Username == nil && u.FirstName == nil && u.LastName == nil &&
		u.AvatarURL == nil && u.Bio == nil && u.Location == nil && u.Interests == nil
}
