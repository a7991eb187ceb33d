package service

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"testing"

	"github.com/nexushost/portal/internal/apperr"
	"github.com/nexushost/portal/internal/auth"
	"github.com/nexushost/portal/internal/client"
	"github.com/nexushost/portal/internal/config"
	"github.com/nexushost/portal/internal/models"
	"github.com/nexushost/portal/internal/storetest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = &auth.Principal{UserID: "alice", Email: "alice@example.com", Role: models.RoleUser}
	bob   = &auth.Principal{UserID: "bob", Email: "bob@example.com", Role: models.RoleUser}
	root  = &auth.Principal{UserID: "root", Email: "root@example.com", Role: models.RoleAdmin}
)

func testProvisionConfig() config.ProvisionConfig {
	return config.ProvisionConfig{
		Attempts:         3,
		DockerImage:      "ghcr.io/pterodactyl/yolks:java_17",
		Startup:          "java -jar server.jar",
		BackupLimit:      5,
		DefaultPelicanID: 1,
	}
}

type serverFixture struct {
	svc    *ServerService
	stores *storetest.Stores
	panel  *storetest.Panel
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	stores := storetest.New()
	panel := storetest.NewPanel()
	panel.Allocations["3"] = []client.Allocation{
		{ID: 10, Port: 25565, Assigned: true},
		{ID: 11, Port: 25566, Assigned: false},
		{ID: 12, Port: 25567, Assigned: false},
	}
	svc := NewServerService(testProvisionConfig(), stores.Servers, stores.Orders, stores.Profiles, stores.Callouts, stores.Logs, panel, zerolog.Nop())
	return &serverFixture{svc: svc, stores: stores, panel: panel}
}

func (f *serverFixture) seedOrder(owner string, paid bool) *models.Order {
	o := &models.Order{UserID: owner, Package: "Basic", RAM: 2048, CPU: 150, Disk: 4096, Paid: paid, Status: models.OrderPending}
	f.stores.Orders.Seed(o)
	return o
}

func TestProvision_UnpaidOrderNeverReachesPanel(t *testing.T) {
	f := newServerFixture(t)
	order := f.seedOrder("alice", false)

	_, err := f.svc.Provision(context.Background(), alice, ProvisionInput{OrderID: order.ID, NodeID: "3", EggID: 5})

	assert.ErrorIs(t, err, apperr.ErrOrderUnpaid)
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))
	assert.Zero(t, f.panel.AllocationCalls)
	assert.Zero(t, f.panel.CreateCalls)
	assert.Zero(t, f.stores.Mutations.Count())
}

func TestProvision_MissingOrder(t *testing.T) {
	f := newServerFixture(t)

	_, err := f.svc.Provision(context.Background(), alice, ProvisionInput{OrderID: "nope", NodeID: "3", EggID: 5})

	assert.Equal(t, http.StatusNotFound, apperr.HTTPStatus(err))
}

func TestProvision_OrderOfAnotherUser(t *testing.T) {
	f := newServerFixture(t)
	order := f.seedOrder("bob", true)

	_, err := f.svc.Provision(context.Background(), alice, ProvisionInput{OrderID: order.ID, NodeID: "3", EggID: 5})

	assert.Equal(t, http.StatusForbidden, apperr.HTTPStatus(err))
	assert.Zero(t, f.panel.CreateCalls)
}

func TestProvision_NoFreeAllocation(t *testing.T) {
	f := newServerFixture(t)
	f.panel.Allocations["3"] = []client.Allocation{{ID: 10, Assigned: true}}
	order := f.seedOrder("alice", true)

	_, err := f.svc.Provision(context.Background(), alice, ProvisionInput{OrderID: order.ID, NodeID: "3", EggID: 5})

	assert.ErrorIs(t, err, apperr.ErrNoFreeAllocation)
	assert.Equal(t, http.StatusConflict, apperr.HTTPStatus(err))
	assert.Zero(t, f.panel.CreateCalls)
	assert.Zero(t, f.stores.Servers.Len())
}

func TestProvision_BuildsPayloadFromOrder(t *testing.T) {
	f := newServerFixture(t)
	pid := 77
	f.stores.Profiles.Seed(&models.Profile{AuthID: "alice", Email: "alice@example.com", PelicanUserID: &pid})
	order := f.seedOrder("alice", true)

	res, err := f.svc.Provision(context.Background(), alice, ProvisionInput{OrderID: order.ID, NodeID: "3", EggID: 5})

	require.NoError(t, err)
	require.Len(t, f.panel.Created, 1)
	req := f.panel.Created[0]
	assert.Equal(t, 11, req.Allocation.Default)
	assert.Equal(t, 77, req.User)
	assert.Equal(t, "Basic Server", req.Name)
	assert.Regexp(t, `^nexus-alice-[0-9a-f-]{36}$`, req.ExternalID)
	assert.Equal(t, client.Limits{Memory: 2048, Swap: -1, Disk: 4096, IO: 500, CPU: 150}, req.Limits)
	assert.Equal(t, client.FeatureLimits{Databases: 1, Allocations: 1, Backups: 5}, req.FeatureLimits)
	assert.Equal(t, []int{3}, req.Deploy.Locations)
	assert.False(t, req.Deploy.DedicatedIP)
	assert.NotNil(t, req.Deploy.PortRange)
	assert.True(t, req.StartOnCompletion)

	assert.Equal(t, models.ServerInstalling, res.Server.Status)
	require.NotNil(t, res.Server.PelicanServerID)
	assert.Equal(t, strconv.Itoa(res.Upstream.ID), *res.Server.PelicanServerID)
	assert.Equal(t, "alice", res.Server.UserID)

	linked, err := f.stores.Orders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.NotNil(t, linked.ServerID)
	assert.Equal(t, res.Server.ID, *linked.ServerID)
}

func TestProvision_OrderProvisionsOnce(t *testing.T) {
	f := newServerFixture(t)
	order := f.seedOrder("alice", true)

	_, err := f.svc.Provision(context.Background(), alice, ProvisionInput{OrderID: order.ID, NodeID: "3", EggID: 5})
	require.NoError(t, err)
	allocationCalls := f.panel.AllocationCalls

	_, err = f.svc.Provision(context.Background(), alice, ProvisionInput{OrderID: order.ID, NodeID: "3", EggID: 5})

	assert.ErrorIs(t, err, apperr.ErrOrderProvisioned)
	assert.Equal(t, http.StatusConflict, apperr.HTTPStatus(err))
	assert.Equal(t, 1, f.panel.CreateCalls)
	assert.Equal(t, allocationCalls, f.panel.AllocationCalls)
	assert.Equal(t, 1, f.stores.Servers.Len())
}

func TestProvision_CancelledOrder(t *testing.T) {
	f := newServerFixture(t)
	order := &models.Order{UserID: "alice", Package: "Basic", Paid: true, Status: models.OrderCancelled}
	f.stores.Orders.Seed(order)

	_, err := f.svc.Provision(context.Background(), alice, ProvisionInput{OrderID: order.ID, NodeID: "3", EggID: 5})

	assert.ErrorIs(t, err, apperr.ErrOrderCancelled)
	assert.Zero(t, f.panel.AllocationCalls)
	assert.Zero(t, f.stores.Mutations.Count())
}

func TestProvision_DefaultsPelicanUser(t *testing.T) {
	f := newServerFixture(t)

	_, err := f.svc.Provision(context.Background(), alice, ProvisionInput{NodeID: "3", EggID: 5, Name: "mc"})

	require.NoError(t, err)
	require.Len(t, f.panel.Created, 1)
	assert.Equal(t, 1, f.panel.Created[0].User)
	assert.Equal(t, models.DefaultRAM, f.panel.Created[0].Limits.Memory)
}

func TestProvision_RetriesTransportFailures(t *testing.T) {
	f := newServerFixture(t)
	f.panel.CreateErrs = []error{storetest.ErrConnReset, storetest.ErrConnReset}
	order := f.seedOrder("alice", true)

	res, err := f.svc.Provision(context.Background(), alice, ProvisionInput{OrderID: order.ID, NodeID: "3", EggID: 5})

	require.NoError(t, err)
	assert.Equal(t, 3, f.panel.CreateCalls)
	assert.Equal(t, 3, res.Attempts)

	row, err := f.stores.Servers.Get(context.Background(), res.Server.ID)
	require.NoError(t, err)
	assert.NotEqual(t, models.ServerFailed, row.Status)
	assert.NotNil(t, row.PelicanServerID)
	assert.Equal(t, []string{
		models.LogProvisionStarted,
		models.LogProvisionRetry,
		models.LogProvisionRetry,
		models.LogProvisioned,
	}, f.stores.Logs.Actions(res.Server.ID))
}

func TestProvision_ExhaustedRetriesMarkRowFailed(t *testing.T) {
	f := newServerFixture(t)
	f.panel.CreateErrs = []error{storetest.ErrConnReset, storetest.ErrConnReset, storetest.ErrConnReset}

	_, err := f.svc.Provision(context.Background(), alice, ProvisionInput{NodeID: "3", EggID: 5})

	assert.Equal(t, http.StatusBadGateway, apperr.HTTPStatus(err))
	assert.Equal(t, 3, f.panel.CreateCalls)
	rows, _ := f.stores.Servers.ListByUser(context.Background(), "alice")
	require.Len(t, rows, 1)
	assert.Equal(t, models.ServerFailed, rows[0].Status)
	actions := f.stores.Logs.Actions(rows[0].ID)
	require.NotEmpty(t, actions)
	assert.Equal(t, models.LogProvisionFailed, actions[len(actions)-1])
}

func TestProvision_UpstreamRejectionIsNotRetried(t *testing.T) {
	f := newServerFixture(t)
	f.panel.CreateErrs = []error{&client.APIError{Service: "pelican", StatusCode: 422, Body: "invalid egg"}}

	_, err := f.svc.Provision(context.Background(), alice, ProvisionInput{NodeID: "3", EggID: 5})

	assert.Equal(t, http.StatusBadGateway, apperr.HTTPStatus(err))
	assert.Equal(t, 1, f.panel.CreateCalls)
	var apiErr *client.APIError
	assert.ErrorAs(t, err, &apiErr)
	rows, _ := f.stores.Servers.ListByUser(context.Background(), "alice")
	require.Len(t, rows, 1)
	assert.Equal(t, models.ServerFailed, rows[0].Status)
}

func TestProvision_UsesSuppliedPlaceholder(t *testing.T) {
	f := newServerFixture(t)
	f.stores.Servers.Seed(&models.Server{ID: "srv-1", UserID: "alice", Name: "mine", Status: models.ServerCreating})

	res, err := f.svc.Provision(context.Background(), alice, ProvisionInput{ServerID: "srv-1", NodeID: "3", EggID: 5})

	require.NoError(t, err)
	assert.Equal(t, "srv-1", res.Server.ID)
	assert.Equal(t, 1, f.stores.Servers.Len())
}

func TestProvision_CalloutPrefills(t *testing.T) {
	f := newServerFixture(t)
	node := "3"
	callout := &models.Callout{
		Label: "Paper 1.20", EggID: 9, DockerImage: "paper:latest", StartupCommand: "paper",
		Environment: []byte(`{"VERSION":"1.20"}`), DefaultRAM: 4096, DefaultCPU: 200, DefaultDisk: 8192,
		NodeID: &node, IsActive: true,
	}
	require.NoError(t, f.stores.Callouts.Create(context.Background(), callout))

	_, err := f.svc.Provision(context.Background(), alice, ProvisionInput{CalloutID: callout.ID})

	require.NoError(t, err)
	req := f.panel.Created[0]
	assert.Equal(t, 9, req.Egg)
	assert.Equal(t, "paper:latest", req.DockerImage)
	assert.Equal(t, "paper", req.Startup)
	assert.Equal(t, "1.20", req.Environment["VERSION"])
	assert.Equal(t, 4096, req.Limits.Memory)
	assert.Equal(t, "Paper 1.20", req.Name)
}

func TestProvision_RejectsNonNumericNode(t *testing.T) {
	f := newServerFixture(t)

	_, err := f.svc.Provision(context.Background(), alice, ProvisionInput{NodeID: "eu-1", EggID: 5})

	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))
	assert.Zero(t, f.panel.AllocationCalls)
}

func strp(s string) *string { return &s }

func TestSyncStatuses_ContinuesPastFailures(t *testing.T) {
	f := newServerFixture(t)
	running := "running"
	for i, pid := range []string{"1", "2", "3"} {
		f.stores.Servers.Seed(&models.Server{ID: "srv-" + pid, UserID: "alice", PelicanServerID: strp(pid), Status: "installing"})
		f.panel.Servers[pid] = &client.Server{
			ID: i + 1, Status: &running,
			Resources: &client.ServerResources{CPU: 12.6, Memory: 512 * 1024 * 1024, Uptime: 3 * 86400},
		}
	}
	f.panel.GetErrs["2"] = &client.TransportError{Service: "pelican", Op: "get_server", Err: errors.New("timeout")}

	res := f.svc.SyncStatuses(context.Background())

	assert.Equal(t, SyncResult{Total: 3, Synced: 2, Failed: 1}, res)

	ok, _ := f.stores.Servers.Get(context.Background(), "srv-1")
	assert.Equal(t, "running", ok.Status)
	assert.Equal(t, "13%", *ok.CPUUsage)
	assert.Equal(t, "512MB", *ok.MemoryUsage)
	assert.Equal(t, "3 days", *ok.Uptime)

	failed, _ := f.stores.Servers.Get(context.Background(), "srv-2")
	assert.Equal(t, "installing", failed.Status)
	assert.Nil(t, failed.CPUUsage)

	other, _ := f.stores.Servers.Get(context.Background(), "srv-3")
	assert.Equal(t, "running", other.Status)
}

func TestLiveStats_Defaults(t *testing.T) {
	st := LiveStats(&client.Server{})

	assert.Equal(t, models.ServerLiveStats{Status: "unknown", CPUUsage: "0%", MemoryUsage: "0MB", Uptime: "0 days"}, st)
}

func TestImportFromPanel(t *testing.T) {
	f := newServerFixture(t)
	f.stores.Servers.Seed(&models.Server{ID: "known", UserID: "root", PelicanServerID: strp("1")})
	f.panel.Servers["1"] = &client.Server{ID: 1, Name: "old"}
	f.panel.Servers["2"] = &client.Server{ID: 2, Name: "new", Node: 3, Egg: 5, Limits: client.Limits{Memory: 3072}}

	res, err := f.svc.ImportFromPanel(context.Background(), root)

	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Upstream: 2, Imported: 1}, res)
	row, err := f.stores.Servers.GetByPelicanID(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, models.ImportedLocation, row.Location)
	assert.Equal(t, "root", row.UserID)
	assert.Equal(t, "3", row.NodeID)
	assert.Equal(t, 3072, row.RAMMB)
	assert.Equal(t, models.DefaultCPU, row.CPUPct)
	assert.Equal(t, models.ServerUnknown, row.Status)
}

func TestPower(t *testing.T) {
	f := newServerFixture(t)
	f.stores.Servers.Seed(&models.Server{ID: "srv-1", UserID: "alice", PelicanServerID: strp("abc"), Status: "running"})

	_, err := f.svc.Power(context.Background(), bob, ServerRef{ServerID: "srv-1"}, "stop")
	assert.Equal(t, http.StatusForbidden, apperr.HTTPStatus(err))
	assert.Empty(t, f.panel.Signals)

	_, err = f.svc.Power(context.Background(), alice, ServerRef{ServerID: "srv-1"}, "explode")
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))

	row, err := f.svc.Power(context.Background(), alice, ServerRef{PelicanServerID: "abc"}, "kill")
	require.NoError(t, err)
	assert.Equal(t, models.ServerStopping, row.Status)
	assert.Equal(t, []string{"abc:kill"}, f.panel.Signals)

	row, err = f.svc.Power(context.Background(), root, ServerRef{ServerID: "srv-1"}, "restart")
	require.NoError(t, err)
	assert.Equal(t, models.ServerStarting, row.Status)
}

func TestDelete(t *testing.T) {
	f := newServerFixture(t)
	f.stores.Servers.Seed(&models.Server{ID: "srv-1", UserID: "alice", PelicanServerID: strp("7")})
	f.panel.Servers["7"] = &client.Server{ID: 7}

	err := f.svc.Delete(context.Background(), bob, ServerRef{ServerID: "srv-1"})
	assert.Equal(t, http.StatusForbidden, apperr.HTTPStatus(err))
	assert.Equal(t, 1, f.stores.Servers.Len())

	require.NoError(t, f.svc.Delete(context.Background(), alice, ServerRef{ServerID: "srv-1"}))
	assert.Equal(t, []string{"7"}, f.panel.Deleted)
	assert.Zero(t, f.stores.Servers.Len())
}

func TestHistory(t *testing.T) {
	f := newServerFixture(t)
	f.stores.Servers.Seed(&models.Server{ID: "srv-1", UserID: "alice", PelicanServerID: strp("abc"), Status: "running"})

	_, err := f.svc.Power(context.Background(), alice, ServerRef{ServerID: "srv-1"}, "stop")
	require.NoError(t, err)
	_, err = f.svc.Power(context.Background(), alice, ServerRef{ServerID: "srv-1"}, "start")
	require.NoError(t, err)

	_, err = f.svc.History(context.Background(), bob, ServerRef{ServerID: "srv-1"}, 10)
	assert.Equal(t, http.StatusForbidden, apperr.HTTPStatus(err))

	entries, err := f.svc.History(context.Background(), alice, ServerRef{PelicanServerID: "abc"}, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LogPowerSignal, entries[0].Action)
	assert.Equal(t, "start", entries[0].Message)
	assert.Equal(t, models.ServerStarting, entries[0].Metadata["status"])
}
