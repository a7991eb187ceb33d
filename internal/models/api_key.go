package models

import "time"

// APIKey is a credential for an outbound service, stored so admins can
// rotate it without a redeploy.
type APIKey struct {
	ID          string    `json:"id"`
	Service     string    `json:"service"`
	APIKey      string    `json:"api_key"`
	Description *string   `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Masked returns a copy safe to hand to a browser.
func (k APIKey) Masked() APIKey {
	k.APIKey = MaskSecret(k.APIKey)
	return k
}

// MaskSecret keeps the last four characters of s.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
