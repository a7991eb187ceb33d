package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/nexushost/portal/internal/apperr"
	"github.com/nexushost/portal/internal/auth"
	"github.com/nexushost/portal/internal/models"
	"github.com/nexushost/portal/internal/storetest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withProfile(p *auth.Principal) *auth.Principal {
	cp := *p
	cp.Profile = &models.Profile{AuthID: p.UserID, Email: p.Email, Role: p.Role}
	return &cp
}

func TestTicket_RequiresProfile(t *testing.T) {
	stores := storetest.New()
	svc := NewTicketService(stores.Tickets, zerolog.Nop())

	_, err := svc.Create(context.Background(), alice, "help", "it broke", "")

	assert.ErrorIs(t, err, apperr.ErrProfileNotFound)
	assert.Equal(t, http.StatusNotFound, apperr.HTTPStatus(err))
	assert.Zero(t, stores.Mutations.Count())
}

func TestTicket_Lifecycle(t *testing.T) {
	stores := storetest.New()
	svc := NewTicketService(stores.Tickets, zerolog.Nop())
	ctx := context.Background()
	a, b, admin := withProfile(alice), withProfile(bob), withProfile(root)

	tk, err := svc.Create(ctx, a, "server down", "cannot connect", "")
	require.NoError(t, err)
	assert.Equal(t, models.PriorityMedium, tk.Priority)
	assert.Equal(t, models.TicketOpen, tk.Status)
	_, err = svc.Create(ctx, b, "billing", "double charge", models.PriorityHigh)
	require.NoError(t, err)

	mine, err := svc.List(ctx, a)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	all, err := svc.List(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	closed := models.TicketClosed
	_, err = svc.Update(ctx, b, tk.ID, models.TicketUpdate{Status: &closed})
	assert.Equal(t, http.StatusForbidden, apperr.HTTPStatus(err))

	assignee := "root"
	_, err = svc.Update(ctx, a, tk.ID, models.TicketUpdate{AssignedTo: &assignee})
	assert.ErrorIs(t, err, apperr.ErrAdminRequired)

	progress := models.TicketInProgress
	updated, err := svc.Update(ctx, admin, tk.ID, models.TicketUpdate{Status: &progress, AssignedTo: &assignee})
	require.NoError(t, err)
	assert.Equal(t, models.TicketInProgress, updated.Status)
	assert.Equal(t, "root", *updated.AssignedTo)

	updated, err = svc.Update(ctx, a, tk.ID, models.TicketUpdate{Status: &closed})
	require.NoError(t, err)
	assert.Equal(t, models.TicketClosed, updated.Status)
}
