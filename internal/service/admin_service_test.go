package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/nexushost/portal/internal/apperr"
	"github.com/nexushost/portal/internal/models"
	"github.com/nexushost/portal/internal/storetest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminService(stores *storetest.Stores) *AdminService {
	return NewAdminService(stores.Profiles, stores.Metrics, stores.APIKeys, zerolog.Nop())
}

func TestDashboard_CountsAndSnapshot(t *testing.T) {
	stores := storetest.New()
	stores.Profiles.Seed(&models.Profile{AuthID: "alice", Email: "alice@example.com"})
	stores.Servers.Seed(&models.Server{UserID: "alice", NodeID: "1"})
	stores.Orders.Seed(&models.Order{UserID: "alice", Amount: 9.5, Status: models.OrderCompleted})
	stores.Orders.Seed(&models.Order{UserID: "alice", Amount: 20, Status: models.OrderPending})
	svc := newAdminService(stores)

	counts, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Counts{Servers: 1, Users: 1, Orders: 2, Revenue: 9.5}, counts)

	d, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Len(t, d.Metrics, 4)
	assert.Equal(t, counts, d.RealTime)
}

func TestSetRole(t *testing.T) {
	stores := storetest.New()
	stores.Profiles.Seed(&models.Profile{AuthID: "alice", Email: "alice@example.com"})
	svc := newAdminService(stores)

	_, err := svc.SetRole(context.Background(), "alice", "owner")
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))

	p, err := svc.SetRole(context.Background(), "alice", models.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, p.IsAdmin())

	_, err = svc.SetRole(context.Background(), "ghost", models.RoleAdmin)
	assert.Equal(t, http.StatusNotFound, apperr.HTTPStatus(err))
}

func TestDeleteUser_NotSelf(t *testing.T) {
	stores := storetest.New()
	stores.Profiles.Seed(&models.Profile{AuthID: "root", Email: "root@example.com", Role: models.RoleAdmin})
	stores.Profiles.Seed(&models.Profile{AuthID: "alice", Email: "alice@example.com"})
	svc := newAdminService(stores)

	err := svc.DeleteUser(context.Background(), root, "root")
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))

	require.NoError(t, svc.DeleteUser(context.Background(), root, "alice"))
	assert.Equal(t, 1, stores.Profiles.Len())
}

func TestBootstrapAdmin(t *testing.T) {
	stores := storetest.New()
	stores.Profiles.Seed(&models.Profile{AuthID: "alice", Email: "alice@example.com"})
	svc := newAdminService(stores)

	p, err := svc.BootstrapAdmin(context.Background(), "ALICE@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, p.Role)

	_, err = svc.BootstrapAdmin(context.Background(), "new@example.com", "")
	assert.Equal(t, http.StatusNotFound, apperr.HTTPStatus(err))

	p, err = svc.BootstrapAdmin(context.Background(), "new@example.com", "auth-new")
	require.NoError(t, err)
	assert.Equal(t, "auth-new", p.AuthID)
	assert.True(t, p.IsAdmin())
}

func TestAPIKeys_MaskedAndRotated(t *testing.T) {
	stores := storetest.New()
	svc := newAdminService(stores)

	k, err := svc.UpsertAPIKey(context.Background(), "forpsi", "sk-live-abcd1234", nil)
	require.NoError(t, err)
	assert.Equal(t, "****1234", k.APIKey)
	_, err = svc.UpsertAPIKey(context.Background(), "forpsi", "sk-live-efgh5678", nil)
	require.NoError(t, err)

	keys, err := svc.APIKeys(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 2)
	for _, key := range keys {
		assert.Contains(t, key.APIKey, "****")
	}
	active, err := stores.APIKeys.GetActive(context.Background(), "forpsi")
	require.NoError(t, err)
	assert.Equal(t, "sk-live-efgh5678", active.APIKey)

	assert.Equal(t, http.StatusNotFound, apperr.HTTPStatus(svc.DeactivateAPIKey(context.Background(), "missing")))
	require.NoError(t, svc.DeactivateAPIKey(context.Background(), active.ID))
	_, err = stores.APIKeys.GetActive(context.Background(), "forpsi")
	assert.Error(t, err)
}
