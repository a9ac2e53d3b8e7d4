package auth

import (
	"strings"
	"time"
)

// Profile is this system's own record about a user, keyed by Identity.UserID.
type Profile struct {
	ID            string    `json:"id"             db:"id"`
	Email         string    `json:"email"          db:"email"`
	DisplayName   string    `json:"display_name"   db:"display_name"`
	Role          Role      `json:"role"           db:"role"`
	PetitionsUsed int       `json:"petitions_used" db:"petitions_used"`
	CreatedAt     time.Time `json:"created_at"     db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"     db:"updated_at"`
}

// IsAdmin reports whether the profile carries the admin role.
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// NewDefaultProfile builds the profile inserted the first time an identity is seen.
func NewDefaultProfile(id Identity) Profile {
	return Profile{
		ID:            id.UserID,
		Email:         id.Email,
		DisplayName:   DeriveDisplayName(id),
		Role:          RoleUser,
		PetitionsUsed: 0,
	}
}

// DeriveDisplayName picks the provider full name when present, otherwise the email local part.
func DeriveDisplayName(id Identity) string {
	if name := strings.TrimSpace(id.FullName); name != "" {
		return name
	}
	email := strings.TrimSpace(id.Email)
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
