// Package auth verifies bearer tokens and resolves the caller's profile and
// role. Every authenticated route goes through Gate.Authorize.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nexushost/portal/internal/apperr"
	"github.com/nexushost/portal/internal/models"
	"github.com/nexushost/portal/internal/repository"
)

// ProfileLookup resolves a profile from the token subject.
type ProfileLookup interface {
	GetByAuthID(ctx context.Context, authID string) (*models.Profile, error)
}

// Claims are the fields read from the access token.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Gate verifies bearer tokens and resolves the caller's profile.
type Gate struct {
	secret   []byte
	profiles ProfileLookup
}

// NewGate creates a gate that checks HS256 tokens signed with secret.
func NewGate(secret string, profiles ProfileLookup) *Gate {
	return &Gate{secret: []byte(secret), profiles: profiles}
}

// Verify checks the token signature and expiry and returns its claims.
func (g *Gate) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.ErrUnauthenticated
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return g.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, apperr.Wrap(apperr.KindUnauthenticated, "invalid_token", "unauthorized", err)
	}
	if claims.Subject == "" {
		return nil, apperr.New(apperr.KindUnauthenticated, "invalid_token", "unauthorized")
	}
	return claims, nil
}

// Authorize verifies token and checks the caller holds requiredRole.
// A caller without a profile is treated as a plain user.
func (g *Gate) Authorize(ctx context.Context, token, requiredRole string) (*Principal, error) {
	claims, err := g.Verify(token)
	if err != nil {
		return nil, err
	}

	p := &Principal{UserID: claims.Subject, Email: claims.Email, Role: models.RoleUser}

	profile, err := g.profiles.GetByAuthID(ctx, claims.Subject)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("resolve profile: %w", err)
	default:
		if profile.Status == models.ProfileSuspended {
			return nil, apperr.New(apperr.KindForbidden, "account_suspended", "account suspended")
		}
		p.Profile = profile
		p.Role = profile.Role
		if p.Email == "" {
			p.Email = profile.Email
		}
	}

	if requiredRole == models.RoleAdmin && !p.IsAdmin() {
		return nil, apperr.ErrAdminRequired
	}
	return p, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
