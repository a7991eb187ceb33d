package service

import (
	"context"

	"github.com/nexushost/portal/internal/apperr"
	"github.com/nexushost/portal/internal/auth"
	"github.com/nexushost/portal/internal/models"
	"github.com/rs/zerolog"
)

// TicketService manages support tickets.
type TicketService struct {
	tickets TicketStore
	log     zerolog.Logger
}

// NewTicketService creates a new ticket service.
func NewTicketService(tickets TicketStore, log zerolog.Logger) *TicketService {
	return &TicketService{tickets: tickets, log: log.With().Str("component", "tickets").Logger()}
}

// Support requires a profile; callers that never finished sign-up get a 404.
func requireProfile(p *auth.Principal) error {
	if p.Profile == nil {
		return apperr.ErrProfileNotFound
	}
	return nil
}

// Create opens a ticket for the caller.
func (s *TicketService) Create(ctx context.Context, p *auth.Principal, subject, body, priority string) (*models.Ticket, error) {
	if err := requireProfile(p); err != nil {
		return nil, err
	}
	if priority == "" {
		priority = models.PriorityMedium
	}
	t := &models.Ticket{
		UserID:   p.UserID,
		Subject:  subject,
		Body:     body,
		Priority: priority,
		Status:   models.TicketOpen,
	}
	if err := s.tickets.Create(ctx, t); err != nil {
		return nil, err
	}
	s.log.Info().Str("ticket_id", t.ID).Str("priority", t.Priority).Msg("ticket opened")
	return t, nil
}

// List returns the tickets the caller may see.
func (s *TicketService) List(ctx context.Context, p *auth.Principal) ([]*models.Ticket, error) {
	if err := requireProfile(p); err != nil {
		return nil, err
	}
	if owner := p.OwnerFilter(); owner != "" {
		return s.tickets.ListByUser(ctx, owner)
	}
	return s.tickets.List(ctx)
}

// Update changes status, priority or assignee. Owners may update their own
// tickets; admins may update any.
func (s *TicketService) Update(ctx context.Context, p *auth.Principal, id string, u models.TicketUpdate) (*models.Ticket, error) {
	if err := requireProfile(p); err != nil {
		return nil, err
	}
	t, err := s.tickets.Get(ctx, id)
	if err != nil {
		return nil, notFound(err, "ticket")
	}
	if !p.CanAccess(t.UserID) {
		return nil, apperr.Forbidden("ticket belongs to another user")
	}
	if u.AssignedTo != nil && !p.IsAdmin() {
		return nil, apperr.ErrAdminRequired
	}
	updated, err := s.tickets.Update(ctx, id, u)
	if err != nil {
		return nil, notFound(err, "ticket")
	}
	return updated, nil
}
