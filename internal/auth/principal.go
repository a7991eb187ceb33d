package auth

import "github.com/nexushost/portal/internal/models"

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	Email  string
	Role   string
	// Profile is nil when the caller has not created one yet.
	Profile *models.Profile
}

// IsAdmin reports whether the caller has the admin role.
func (p *Principal) IsAdmin() bool { return p != nil && p.Role == models.RoleAdmin }

// CanAccess reports whether the caller may see or change a row owned by
// ownerID. Admins see everything.
func (p *Principal) CanAccess(ownerID string) bool {
	if p == nil {
		return false
	}
	return p.IsAdmin() || (ownerID != "" && ownerID == p.UserID)
}

// OwnerFilter returns the user id to scope listings to, or "" for admins.
func (p *Principal) OwnerFilter() string {
	if p.IsAdmin() {
		return ""
	}
	return p.UserID
}
