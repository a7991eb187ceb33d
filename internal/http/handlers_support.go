package http

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/nexushost/portal/internal/auth"
	"github.com/nexushost/portal/internal/models"
	"github.com/nexushost/portal/internal/service"
)

type calloutFields struct {
	Label          string          `json:"label" validate:"required,max=100"`
	Description    *string         `json:"description"`
	EggID          int             `json:"egg_id" validate:"required,gt=0"`
	DockerImage    string          `json:"docker_image" validate:"max=255"`
	StartupCommand string          `json:"startup_command"`
	Environment    json.RawMessage `json:"environment"`
	DefaultRAM     int             `json:"default_ram" validate:"gte=0"`
	DefaultCPU     int             `json:"default_cpu" validate:"gte=0"`
	DefaultDisk    int             `json:"default_disk" validate:"gte=0"`
	NodeID         *string         `json:"node_id"`
}

type createCalloutRequest struct {
	CalloutData calloutFields `json:"calloutData"`
}

type updateCalloutRequest struct {
	CalloutData struct {
		ID             string          `json:"id" validate:"required"`
		Label          *string         `json:"label" validate:"omitempty,max=100"`
		Description    *string         `json:"description"`
		EggID          *int            `json:"egg_id" validate:"omitempty,gt=0"`
		DockerImage    *string         `json:"docker_image"`
		StartupCommand *string         `json:"startup_command"`
		Environment    json.RawMessage `json:"environment"`
		DefaultRAM     *int            `json:"default_ram" validate:"omitempty,gte=0"`
		DefaultCPU     *int            `json:"default_cpu" validate:"omitempty,gte=0"`
		DefaultDisk    *int            `json:"default_disk" validate:"omitempty,gte=0"`
		NodeID         *string         `json:"node_id"`
		IsActive       *bool           `json:"is_active"`
	} `json:"calloutData"`
}

type deleteCalloutRequest struct {
	CalloutData struct {
		ID string `json:"id" validate:"required"`
	} `json:"calloutData"`
}

func (s *Server) calloutsFunction() function {
	return function{actions: actions{
		"get_callouts":   typed(models.RoleUser, s.getCallouts),
		"create_callout": typed(models.RoleAdmin, s.createCallout),
		"update_callout": typed(models.RoleAdmin, s.updateCallout),
		"delete_callout": typed(models.RoleAdmin, s.deleteCallout),
	}}
}

func (s *Server) getCallouts(ctx context.Context, _ *auth.Principal, _ *emptyRequest) (any, error) {
	callouts, err := s.svc.Callouts.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return gin.H{"callouts": callouts}, nil
}

func (s *Server) createCallout(ctx context.Context, p *auth.Principal, req *createCalloutRequest) (any, error) {
	d := req.CalloutData
	c, err := s.svc.Callouts.Create(ctx, p, service.CalloutInput{
		Label:          d.Label,
		Description:    d.Description,
		EggID:          d.EggID,
		DockerImage:    d.DockerImage,
		StartupCommand: d.StartupCommand,
		Environment:    d.Environment,
		DefaultRAM:     d.DefaultRAM,
		DefaultCPU:     d.DefaultCPU,
		DefaultDisk:    d.DefaultDisk,
		NodeID:         d.NodeID,
	})
	if err != nil {
		return nil, err
	}
	return gin.H{"callout": c}, nil
}

func (s *Server) updateCallout(ctx context.Context, _ *auth.Principal, req *updateCalloutRequest) (any, error) {
	d := req.CalloutData
	c, err := s.svc.Callouts.Update(ctx, d.ID, models.CalloutUpdate{
		Label:          d.Label,
		Description:    d.Description,
		EggID:          d.EggID,
		DockerImage:    d.DockerImage,
		StartupCommand: d.StartupCommand,
		Environment:    d.Environment,
		DefaultRAM:     d.DefaultRAM,
		DefaultCPU:     d.DefaultCPU,
		DefaultDisk:    d.DefaultDisk,
		NodeID:         d.NodeID,
		IsActive:       d.IsActive,
	})
	if err != nil {
		return nil, err
	}
	return gin.H{"callout": c}, nil
}

func (s *Server) deleteCallout(ctx context.Context, _ *auth.Principal, req *deleteCalloutRequest) (any, error) {
	if err := s.svc.Callouts.Delete(ctx, req.CalloutData.ID); err != nil {
		return nil, err
	}
	return success(), nil
}

type createTicketRequest struct {
	TicketData struct {
		Subject  string `json:"subject" validate:"required,max=200"`
		Body     string `json:"body" validate:"required"`
		Priority string `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	} `json:"ticketData"`
}

type updateTicketRequest struct {
	TicketData struct {
		ID         string  `json:"id" validate:"required"`
		Status     *string `json:"status" validate:"omitempty,oneof=open in_progress resolved closed"`
		Priority   *string `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
		AssignedTo *string `json:"assigned_to"`
	} `json:"ticketData"`
}

func (s *Server) supportFunction() function {
	return function{actions: actions{
		"create_ticket": typed(models.RoleUser, s.createTicket),
		"get_tickets":   typed(models.RoleUser, s.getTickets),
		"update_ticket": typed(models.RoleUser, s.updateTicket),
	}}
}

func (s *Server) createTicket(ctx context.Context, p *auth.Principal, req *createTicketRequest) (any, error) {
	d := req.TicketData
	t, err := s.svc.Tickets.Create(ctx, p, d.Subject, d.Body, d.Priority)
	if err != nil {
		return nil, err
	}
	return gin.H{"ticket": t}, nil
}

func (s *Server) getTickets(ctx context.Context, p *auth.Principal, _ *emptyRequest) (any, error) {
	tickets, err := s.svc.Tickets.List(ctx, p)
	if err != nil {
		return nil, err
	}
	return gin.H{"tickets": tickets}, nil
}

func (s *Server) updateTicket(ctx context.Context, p *auth.Principal, req *updateTicketRequest) (any, error) {
	d := req.TicketData
	t, err := s.svc.Tickets.Update(ctx, p, d.ID, models.TicketUpdate{
		Status:     d.Status,
		Priority:   d.Priority,
		AssignedTo: d.AssignedTo,
	})
	if err != nil {
		return nil, err
	}
	return gin.H{"ticket": t}, nil
}

type profileRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
}

func (s *Server) profileFunction() function {
	return function{actions: actions{
		"get_profile":    typed(models.RoleUser, s.getProfile),
		"ensure_profile": typed(models.RoleUser, s.ensureProfile),
		"update_profile": typed(models.RoleUser, s.updateProfile),
	}}
}

func (s *Server) getProfile(ctx context.Context, p *auth.Principal, _ *emptyRequest) (any, error) {
	profile, err := s.svc.Profiles.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	return gin.H{"profile": profile}, nil
}

func (s *Server) ensureProfile(ctx context.Context, p *auth.Principal, req *profileRequest) (any, error) {
	profile, err := s.svc.Profiles.Ensure(ctx, p, req.FirstName, req.LastName)
	if err != nil {
		return nil, err
	}
	return gin.H{"profile": profile}, nil
}

func (s *Server) updateProfile(ctx context.Context, p *auth.Principal, req *profileRequest) (any, error) {
	profile, err := s.svc.Profiles.UpdateSelf(ctx, p, req.FirstName, req.LastName)
	if err != nil {
		return nil, err
	}
	return gin.H{"profile": profile}, nil
}
