package service

import (
	"context"
	"encoding/json"

	"github.com/nexushost/portal/internal/auth"
	"github.com/nexushost/portal/internal/models"
	"github.com/rs/zerolog"
)

// CalloutService manages server presets.
type CalloutService struct {
	callouts CalloutStore
	log      zerolog.Logger
}

// NewCalloutService creates a new callout service.
func NewCalloutService(callouts CalloutStore, log zerolog.Logger) *CalloutService {
	return &CalloutService{callouts: callouts, log: log.With().Str("component", "callouts").Logger()}
}

// ListActive returns active callouts, newest first.
func (s *CalloutService) ListActive(ctx context.Context) ([]*models.Callout, error) {
	return s.callouts.ListActive(ctx)
}

// CalloutInput describes a new callout.
type CalloutInput struct {
	Label          string
	Description    *string
	EggID          int
	DockerImage    string
	StartupCommand string
	Environment    json.RawMessage
	DefaultRAM     int
	DefaultCPU     int
	DefaultDisk    int
	NodeID         *string
}

// Create stores a new callout.
func (s *CalloutService) Create(ctx context.Context, p *auth.Principal, in CalloutInput) (*models.Callout, error) {
	c := &models.Callout{
		Label:          in.Label,
		Description:    in.Description,
		EggID:          in.EggID,
		DockerImage:    in.DockerImage,
		StartupCommand: in.StartupCommand,
		Environment:    in.Environment,
		DefaultRAM:     orDefault(in.DefaultRAM, models.DefaultRAM),
		DefaultCPU:     orDefault(in.DefaultCPU, models.DefaultCPU),
		DefaultDisk:    orDefault(in.DefaultDisk, models.DefaultDisk),
		NodeID:         in.NodeID,
		IsActive:       true,
		CreatedBy:      &p.UserID,
	}
	if err := s.callouts.Create(ctx, c); err != nil {
		return nil, err
	}
	s.log.Info().Str("callout_id", c.ID).Str("label", c.Label).Msg("callout created")
	return c, nil
}

// Update changes the given callout fields.
func (s *CalloutService) Update(ctx context.Context, id string, u models.CalloutUpdate) (*models.Callout, error) {
	c, err := s.callouts.Update(ctx, id, u)
	if err != nil {
		return nil, notFound(err, "callout")
	}
	return c, nil
}

// Delete hides a callout; existing servers keep their settings.
func (s *CalloutService) Delete(ctx context.Context, id string) error {
	if err := s.callouts.Deactivate(ctx, id); err != nil {
		return notFound(err, "callout")
	}
	s.log.Info().Str("callout_id", id).Msg("callout deactivated")
	return nil
}
