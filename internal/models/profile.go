package models

import "time"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	ProfileActive    = "active"
	ProfileSuspended = "suspended"
)

// Profile is the portal's view of an authenticated account.
type Profile struct {
	ID            string     `json:"id"`
	AuthID        string     `json:"auth_id"`
	Email         string     `json:"email"`
	FirstName     *string    `json:"first_name"`
	LastName      *string    `json:"last_name"`
	Role          string     `json:"role"`
	Status        string     `json:"status"`
	PelicanUserID *int       `json:"pelican_user_id"`
	LastLogin     *time.Time `json:"last_login"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsAdmin reports whether the profile has the admin role.
func (p *Profile) IsAdmin() bool { return p != nil && p.Role == RoleAdmin }

// DisplayName joins first and last name, falling back to the email.
func (p *Profile) DisplayName() string {
	var name string
	if p.FirstName != nil {
		name = *p.FirstName
	}
	if p.LastName != nil && *p.LastName != "" {
		if name != "" {
			name += " "
		}
		name += *p.LastName
	}
	if name == "" {
		return p.Email
	}
	return name
}

// ProfileUpdate holds optional profile changes. Nil fields are left alone.
type ProfileUpdate struct {
	FirstName     *string
	LastName      *string
	Email         *string
	Role          *string
	Status        *string
	PelicanUserID *int
}
