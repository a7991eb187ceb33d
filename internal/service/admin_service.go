package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nexushost/portal/internal/apperr"
	"github.com/nexushost/portal/internal/auth"
	"github.com/nexushost/portal/internal/models"
	"github.com/nexushost/portal/internal/repository"
	"github.com/rs/zerolog"
)

const metricHistory = 100

// AdminService backs the admin dashboard: users, metrics and service keys.
type AdminService struct {
	profiles ProfileStore
	metrics  MetricStore
	keys     APIKeyStore
	log      zerolog.Logger
}

// NewAdminService creates a new admin service.
func NewAdminService(profiles ProfileStore, metrics MetricStore, keys APIKeyStore, log zerolog.Logger) *AdminService {
	return &AdminService{
		profiles: profiles,
		metrics:  metrics,
		keys:     keys,
		log:      log.With().Str("component", "admin").Logger(),
	}
}

// Dashboard is the admin metrics view.
type Dashboard struct {
	Metrics  []*models.SystemMetric `json:"metrics"`
	RealTime models.Counts          `json:"realTimeMetrics"`
}

// Dashboard returns recent snapshots and live counts.
func (s *AdminService) Dashboard(ctx context.Context) (*Dashboard, error) {
	history, err := s.metrics.Recent(ctx, metricHistory)
	if err != nil {
		return nil, err
	}
	counts, err := s.metrics.Counts(ctx)
	if err != nil {
		return nil, err
	}
	return &Dashboard{Metrics: history, RealTime: counts}, nil
}

// Snapshot stores the current counts as metric history.
func (s *AdminService) Snapshot(ctx context.Context) (models.Counts, error) {
	counts, err := s.metrics.Counts(ctx)
	if err != nil {
		return counts, err
	}
	meta, _ := json.Marshal(map[string]string{"source": "snapshot"})
	for typ, v := range map[string]float64{
		models.MetricTotalServers: float64(counts.Servers),
		models.MetricTotalUsers:   float64(counts.Users),
		models.MetricTotalOrders:  float64(counts.Orders),
		models.MetricRevenue:      counts.Revenue,
	} {
		if err := s.metrics.Record(ctx, &models.SystemMetric{MetricType: typ, Value: v, Metadata: meta}); err != nil {
			return counts, fmt.Errorf("record %s: %w", typ, err)
		}
	}
	return counts, nil
}

// Users lists every profile.
func (s *AdminService) Users(ctx context.Context) ([]*models.Profile, error) {
	return s.profiles.List(ctx)
}

// SetRole changes a user's role.
func (s *AdminService) SetRole(ctx context.Context, userID, role string) (*models.Profile, error) {
	if role != models.RoleAdmin && role != models.RoleUser {
		return nil, apperr.Invalid("role must be admin or user")
	}
	p, err := s.profiles.Update(ctx, userID, models.ProfileUpdate{Role: &role})
	if err != nil {
		return nil, notFound(err, "user")
	}
	s.log.Info().Str("user_id", userID).Str("role", role).Msg("role changed")
	return p, nil
}

// UpdateUser edits another user's profile.
func (s *AdminService) UpdateUser(ctx context.Context, userID string, u models.ProfileUpdate) (*models.Profile, error) {
	p, err := s.profiles.Update(ctx, userID, u)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return p, nil
}

// DeleteUser removes a profile. Admins cannot delete themselves.
func (s *AdminService) DeleteUser(ctx context.Context, p *auth.Principal, userID string) error {
	if userID == p.UserID {
		return apperr.Invalid("cannot delete your own account")
	}
	if err := s.profiles.Delete(ctx, userID); err != nil {
		return notFound(err, "user")
	}
	s.log.Info().Str("user_id", userID).Msg("user deleted")
	return nil
}

// BootstrapAdmin promotes the profile with email to admin, creating it when
// authID is given and no profile exists.
func (s *AdminService) BootstrapAdmin(ctx context.Context, email, authID string) (*models.Profile, error) {
	role := models.RoleAdmin
	existing, err := s.profiles.GetByEmail(ctx, email)
	if err == nil {
		return s.profiles.Update(ctx, existing.AuthID, models.ProfileUpdate{Role: &role})
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if authID == "" {
		return nil, notFound(err, "profile")
	}
	p := &models.Profile{AuthID: authID, Email: email, Role: role, Status: models.ProfileActive}
	if err := s.profiles.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// APIKeys lists stored keys with the secret masked.
func (s *AdminService) APIKeys(ctx context.Context) ([]models.APIKey, error) {
	keys, err := s.keys.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.APIKey, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.Masked())
	}
	return out, nil
}

// UpsertAPIKey stores the active key for a service, replacing any previous one.
func (s *AdminService) UpsertAPIKey(ctx context.Context, service, key string, description *string) (models.APIKey, error) {
	k, err := s.keys.Upsert(ctx, service, key, description)
	if err != nil {
		return models.APIKey{}, err
	}
	s.log.Info().Str("service", service).Msg("api key rotated")
	return k.Masked(), nil
}

// DeactivateAPIKey retires a key.
func (s *AdminService) DeactivateAPIKey(ctx context.Context, id string) error {
	return notFound(s.keys.Deactivate(ctx, id), "api key")
}
