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

func TestEnsure_CreatesOnFirstLogin(t *testing.T) {
	stores := storetest.New()
	svc := NewProfileService(stores.Profiles, zerolog.Nop())
	first := "Alice"

	p, err := svc.Ensure(context.Background(), alice, &first, nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.AuthID)
	assert.Equal(t, models.RoleUser, p.Role)
	assert.Equal(t, "Alice", *p.FirstName)

	again, err := svc.Ensure(context.Background(), alice, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)

	stored, _ := stores.Profiles.GetByAuthID(context.Background(), "alice")
	assert.NotNil(t, stored.LastLogin)
}

func TestEnsure_NeedsEmailClaim(t *testing.T) {
	svc := NewProfileService(storetest.New().Profiles, zerolog.Nop())

	_, err := svc.Ensure(context.Background(), &auth.Principal{UserID: "anon"}, nil, nil)

	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))
}

func TestUpdateSelf(t *testing.T) {
	stores := storetest.New()
	stores.Profiles.Seed(&models.Profile{AuthID: "alice", Email: "alice@example.com"})
	svc := NewProfileService(stores.Profiles, zerolog.Nop())
	last := "Liddell"

	p, err := svc.UpdateSelf(context.Background(), alice, nil, &last)
	require.NoError(t, err)
	assert.Equal(t, "Liddell", *p.LastName)

	_, err = svc.UpdateSelf(context.Background(), bob, nil, &last)
	assert.Equal(t, http.StatusNotFound, apperr.HTTPStatus(err))
}
