package service

import (
	"context"
	"errors"

	"github.com/nexushost/portal/internal/apperr"
	"github.com/nexushost/portal/internal/auth"
	"github.com/nexushost/portal/internal/models"
	"github.com/nexushost/portal/internal/repository"
	"github.com/rs/zerolog"
)

// ProfileService manages the caller's own profile.
type ProfileService struct {
	profiles ProfileStore
	log      zerolog.Logger
}

// NewProfileService creates a new profile service.
func NewProfileService(profiles ProfileStore, log zerolog.Logger) *ProfileService {
	return &ProfileService{profiles: profiles, log: log.With().Str("component", "profiles").Logger()}
}

// Get returns the caller's profile.
func (s *ProfileService) Get(ctx context.Context, p *auth.Principal) (*models.Profile, error) {
	profile, err := s.profiles.GetByAuthID(ctx, p.UserID)
	if err != nil {
		return nil, notFound(err, "profile")
	}
	return profile, nil
}

// Ensure returns the caller's profile, creating it on first sign-in, and
// records the login.
func (s *ProfileService) Ensure(ctx context.Context, p *auth.Principal, first, last *string) (*models.Profile, error) {
	profile, err := s.profiles.GetByAuthID(ctx, p.UserID)
	if err == nil {
		if err := s.profiles.TouchLastLogin(ctx, p.UserID); err != nil {
			s.log.Warn().Err(err).Str("user_id", p.UserID).Msg("touch last login")
		}
		return profile, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if p.Email == "" {
		return nil, apperr.Invalid("token has no email claim")
	}

	profile = &models.Profile{
		AuthID:    p.UserID,
		Email:     p.Email,
		FirstName: first,
		LastName:  last,
		Role:      models.RoleUser,
		Status:    models.ProfileActive,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return s.profiles.GetByAuthID(ctx, p.UserID)
		}
		return nil, err
	}
	s.log.Info().Str("user_id", p.UserID).Msg("profile created")
	return profile, nil
}

// UpdateSelf lets a user change their own name.
func (s *ProfileService) UpdateSelf(ctx context.Context, p *auth.Principal, first, last *string) (*models.Profile, error) {
	profile, err := s.profiles.Update(ctx, p.UserID, models.ProfileUpdate{FirstName: first, LastName: last})
	if err != nil {
		return nil, notFound(err, "profile")
	}
	return profile, nil
}
