package users

import (
	"time"

	"github.com/google/uuid"
)

// Role is the coarse authorization class of a user.
type Role string

const (
	RoleUser      Role = "user"
	RoleGuide     Role = "guide"
	RoleLeadGuide Role = "lead-guide"
	RoleAdmin     Role = "admin"
)

// Roles lists every role in ascending privilege order.
func Roles() []Role {
	return []Role{RoleUser, RoleGuide, RoleLeadGuide, RoleAdmin}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range Roles() {
		if r == known {
			return true
		}
	}
	return false
}

// User is an account record. Credential and reset-token fields are never
// serialized into API responses.
type User struct {
	ID                  uuid.UUID  `json:"id"`
	Name                string     `json:"name"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	Role                Role       `json:"role"`
	PasswordChangedAt   *time.Time `json:"passwordChangedAt,omitempty"`
	ResetTokenHash      *string    `json:"-"`
	ResetTokenExpiresAt *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.PasswordChangedAt != nil {
		t := *u.PasswordChangedAt
		out.PasswordChangedAt = &t
	}
	if u.ResetTokenHash != nil {
		h := *u.ResetTokenHash
		out.ResetTokenHash = &h
	}
	if u.ResetTokenExpiresAt != nil {
		t := *u.ResetTokenExpiresAt
		out.ResetTokenExpiresAt = &t
	}
	return &out
}

// NewUser carries signup input.
type NewUser struct {
	Name            string `json:"name" validate:"required,max=120"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Role            string `json:"role" validate:"omitempty,oneof=user guide lead-guide admin"`
	Password        string `json:"password" validate:"required,min=6,max=72"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

// SaveOptions tunes Store.Save.
type SaveOptions struct {
	// SkipValidation persists the record without re-running field validation.
	// Used when only reset-token fields changed.
	SkipValidation bool
}

// Credential is a validated, hashed password ready to be stored.
type Credential struct {
	Hash      string
	ChangedAt time.Time
}
