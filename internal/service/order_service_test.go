package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/nexushost/portal/internal/apperr"
	"github.com/nexushost/portal/internal/client"
	"github.com/nexushost/portal/internal/models"
	"github.com/nexushost/portal/internal/storetest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderFixture struct {
	svc     *OrderService
	servers *ServerService
	stores  *storetest.Stores
	panel   *storetest.Panel
	billing *storetest.Billing
}

func newOrderFixture(t *testing.T, autoProvision bool) *orderFixture {
	t.Helper()
	sf := newServerFixture(t)
	cfg := testProvisionConfig()
	if autoProvision {
		cfg.AutoNodeID = "3"
		cfg.AutoEggID = 5
	}
	billing := storetest.NewBilling()
	svc := NewOrderService(cfg, sf.stores.Orders, sf.stores.Profiles, sf.stores.APIKeys, billing, sf.svc, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC) }
	return &orderFixture{svc: svc, servers: sf.svc, stores: sf.stores, panel: sf.panel, billing: billing}
}

func TestCreateOrder_Defaults(t *testing.T) {
	f := newOrderFixture(t, false)

	o, err := f.svc.Create(context.Background(), alice, CreateOrderInput{})

	require.NoError(t, err)
	assert.Equal(t, "alice", o.UserID)
	assert.Equal(t, models.DefaultPackage, o.Package)
	assert.Equal(t, 1024, o.RAM)
	assert.Equal(t, 100, o.CPU)
	assert.Equal(t, 2048, o.Disk)
	assert.False(t, o.Paid)
	assert.Equal(t, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), o.ExpiresAt)
}

func TestListOrders_Scoped(t *testing.T) {
	f := newOrderFixture(t, false)
	_, _ = f.svc.Create(context.Background(), alice, CreateOrderInput{})
	_, _ = f.svc.Create(context.Background(), bob, CreateOrderInput{})

	mine, err := f.svc.List(context.Background(), alice)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := f.svc.List(context.Background(), root)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestForward_RequiresKey(t *testing.T) {
	f := newOrderFixture(t, false)
	o, _ := f.svc.Create(context.Background(), alice, CreateOrderInput{Amount: 10})

	_, err := f.svc.Forward(context.Background(), alice, ForwardOrderInput{OrderID: o.ID})

	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))
	assert.Contains(t, err.Error(), "Forpsi API key not configured")
}

func TestForward_StoresBillingReference(t *testing.T) {
	f := newOrderFixture(t, false)
	_, _ = f.stores.APIKeys.Upsert(context.Background(), "forpsi", "fp-secret", nil)
	o, _ := f.svc.Create(context.Background(), alice, CreateOrderInput{Amount: 10})

	_, err := f.svc.Forward(context.Background(), bob, ForwardOrderInput{OrderID: o.ID})
	assert.Equal(t, http.StatusForbidden, apperr.HTTPStatus(err))

	out, err := f.svc.Forward(context.Background(), alice, ForwardOrderInput{OrderID: o.ID})
	require.NoError(t, err)

	stored, _ := f.stores.Orders.Get(context.Background(), o.ID)
	require.NotNil(t, stored.ForpsiOrderID)
	assert.Equal(t, out.OrderID, *stored.ForpsiOrderID)
	assert.Equal(t, models.OrderProcessing, stored.Status)
	assert.Equal(t, []string{"fp-secret"}, f.billing.Keys)
}

func TestSyncBilling_CountsFailures(t *testing.T) {
	f := newOrderFixture(t, false)
	_, _ = f.stores.APIKeys.Upsert(context.Background(), "forpsi", "fp-secret", nil)
	paid := true
	f.billing.Orders["FP-A"] = &client.ForpsiOrder{OrderID: "FP-A", Status: models.OrderCompleted, Paid: &paid}
	f.stores.Orders.Seed(&models.Order{ID: "a", UserID: "alice", ForpsiOrderID: strp("FP-A"), Status: models.OrderProcessing})
	f.stores.Orders.Seed(&models.Order{ID: "b", UserID: "alice", ForpsiOrderID: strp("FP-B"), Status: models.OrderProcessing})

	res, err := f.svc.SyncBilling(context.Background())

	require.NoError(t, err)
	assert.Equal(t, SyncResult{Total: 2, Synced: 1, Failed: 1}, res)
	a, _ := f.stores.Orders.Get(context.Background(), "a")
	assert.Equal(t, models.OrderCompleted, a.Status)
	assert.True(t, a.Paid)
	b, _ := f.stores.Orders.Get(context.Background(), "b")
	assert.Equal(t, models.OrderProcessing, b.Status)
}

func TestSyncBilling_KeepsStatusWhenProviderOmitsIt(t *testing.T) {
	f := newOrderFixture(t, false)
	_, _ = f.stores.APIKeys.Upsert(context.Background(), "forpsi", "fp-secret", nil)
	paid := true
	f.billing.Orders["FP-A"] = &client.ForpsiOrder{OrderID: "FP-A", Paid: &paid}
	f.stores.Orders.Seed(&models.Order{ID: "a", UserID: "alice", ForpsiOrderID: strp("FP-A"), Status: models.OrderProcessing})

	res, err := f.svc.SyncBilling(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced)
	a, _ := f.stores.Orders.Get(context.Background(), "a")
	assert.Equal(t, models.OrderProcessing, a.Status)
	assert.True(t, a.Paid)
}

func TestSyncBilling_RetriesTransportFailures(t *testing.T) {
	f := newOrderFixture(t, false)
	_, _ = f.stores.APIKeys.Upsert(context.Background(), "forpsi", "fp-secret", nil)
	f.billing.Orders["FP-A"] = &client.ForpsiOrder{OrderID: "FP-A", Status: models.OrderCompleted}
	f.billing.GetErrs = []error{&client.TransportError{Service: "forpsi", Op: "get_order", Err: errors.New("i/o timeout")}}
	f.stores.Orders.Seed(&models.Order{ID: "a", UserID: "alice", ForpsiOrderID: strp("FP-A"), Status: models.OrderProcessing})

	res, err := f.svc.SyncBilling(context.Background())

	require.NoError(t, err)
	assert.Equal(t, SyncResult{Total: 1, Synced: 1}, res)
	assert.Len(t, f.billing.Keys, 2)
	a, _ := f.stores.Orders.Get(context.Background(), "a")
	assert.Equal(t, models.OrderCompleted, a.Status)
}

func TestWebhook_CancelledOrderIsNotProvisioned(t *testing.T) {
	f := newOrderFixture(t, true)
	paid := true

	res, err := f.svc.HandleWebhook(context.Background(), &WebhookPayload{
		OrderID: "FP-200", Status: models.OrderCancelled, Paid: &paid,
		CustomerEmail: "late@example.com",
	})

	require.NoError(t, err)
	assert.Empty(t, res.ServerID)
	assert.Zero(t, f.panel.CreateCalls)
}

func TestWebhook_CreatesProfileOrderAndServer(t *testing.T) {
	f := newOrderFixture(t, true)
	paid := true

	res, err := f.svc.HandleWebhook(context.Background(), &WebhookPayload{
		OrderID: "FP-100", Status: models.OrderCompleted, Paid: &paid,
		CustomerEmail: "new@example.com", CustomerName: "Ada Lovelace",
		Package: "Pro", RAM: 4096, CPU: 200, Disk: 10240, Amount: 19.9, Period: "monthly",
	})

	require.NoError(t, err)
	assert.True(t, res.ProfileCreated)
	assert.NotEmpty(t, res.ServerID)
	assert.Empty(t, res.ProvisionError)

	profile, err := f.stores.Profiles.GetByEmail(context.Background(), "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ada", *profile.FirstName)
	assert.Equal(t, "Lovelace", *profile.LastName)

	order, err := f.stores.Orders.GetByForpsiID(context.Background(), "FP-100")
	require.NoError(t, err)
	assert.Equal(t, profile.AuthID, order.UserID)
	assert.True(t, order.Paid)
	require.NotNil(t, order.ServerID)
	assert.Equal(t, res.ServerID, *order.ServerID)

	require.Len(t, f.panel.Created, 1)
	assert.Equal(t, 4096, f.panel.Created[0].Limits.Memory)
}

func TestWebhook_UpdatesKnownOrderWithoutProvisioningTwice(t *testing.T) {
	f := newOrderFixture(t, true)
	f.stores.Profiles.Seed(&models.Profile{AuthID: "alice", Email: "alice@example.com"})
	f.stores.Orders.Seed(&models.Order{ID: "o1", UserID: "alice", ForpsiOrderID: strp("FP-1"), Package: "Basic", RAM: 1024, CPU: 100, Disk: 2048, Status: models.OrderPending})
	paid := true

	res, err := f.svc.HandleWebhook(context.Background(), &WebhookPayload{OrderID: "FP-1", Status: models.OrderCompleted, Paid: &paid})
	require.NoError(t, err)
	assert.False(t, res.ProfileCreated)
	assert.Equal(t, "o1", res.OrderID)
	assert.NotEmpty(t, res.ServerID)

	res, err = f.svc.HandleWebhook(context.Background(), &WebhookPayload{OrderID: "FP-1", Status: models.OrderCompleted, Paid: &paid})
	require.NoError(t, err)
	assert.Empty(t, res.ServerID)
	assert.Equal(t, 1, f.panel.CreateCalls)
}

func TestWebhook_UnpaidDoesNotProvision(t *testing.T) {
	f := newOrderFixture(t, true)
	f.stores.Profiles.Seed(&models.Profile{AuthID: "alice", Email: "alice@example.com"})

	res, err := f.svc.HandleWebhook(context.Background(), &WebhookPayload{OrderID: "FP-2", Status: models.OrderPending, CustomerEmail: "ALICE@example.com"})

	require.NoError(t, err)
	assert.False(t, res.ProfileCreated)
	assert.Empty(t, res.ServerID)
	assert.Zero(t, f.panel.CreateCalls)
}

func TestWebhook_ProvisionFailureStillAcknowledges(t *testing.T) {
	f := newOrderFixture(t, true)
	f.panel.Allocations["3"] = nil
	paid := true

	res, err := f.svc.HandleWebhook(context.Background(), &WebhookPayload{OrderID: "FP-3", Paid: &paid, CustomerEmail: "c@example.com"})

	require.NoError(t, err)
	assert.NotEmpty(t, res.OrderID)
	assert.Contains(t, res.ProvisionError, "no free allocation")
}

func TestWebhook_NewOrderNeedsEmail(t *testing.T) {
	f := newOrderFixture(t, false)

	_, err := f.svc.HandleWebhook(context.Background(), &WebhookPayload{OrderID: "FP-4"})

	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))
	assert.Zero(t, f.stores.Mutations.Count())
}
