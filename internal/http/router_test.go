package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nexushost/portal/internal/auth"
	"github.com/nexushost/portal/internal/client"
	"github.com/nexushost/portal/internal/config"
	"github.com/nexushost/portal/internal/models"
	"github.com/nexushost/portal/internal/service"
	"github.com/nexushost/portal/internal/storetest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-for-hs256"

type harness struct {
	srv    *Server
	stores *storetest.Stores
	panel  *storetest.Panel
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, nil)
}

// newHarnessWith lets a test adjust the configuration before wiring.
func newHarnessWith(t *testing.T, configure func(*config.Config)) *harness {
	t.Helper()
	cfg := &config.Config{
		ServiceName: "nexus-portal",
		Server:      config.ServerConfig{Port: "0", Mode: "test"},
		Forpsi:      config.ForpsiConfig{WebhookSecret: "hook-secret"},
		Provision: config.ProvisionConfig{
			Attempts:         1,
			DockerImage:      "ghcr.io/pterodactyl/yolks:java_17",
			Startup:          "java -jar server.jar",
			DefaultPelicanID: 1,
		},
	}
	if configure != nil {
		configure(cfg)
	}
	stores := storetest.New()
	stores.Profiles.Seed(&models.Profile{AuthID: "alice", Email: "alice@example.com", Role: models.RoleUser})
	stores.Profiles.Seed(&models.Profile{AuthID: "root", Email: "root@example.com", Role: models.RoleAdmin})
	panel := storetest.NewPanel()
	panel.Allocations["3"] = []client.Allocation{{ID: 11, Port: 25565}}
	billing := storetest.NewBilling()
	log := zerolog.Nop()

	servers := service.NewServerService(cfg.Provision, stores.Servers, stores.Orders, stores.Profiles, stores.Callouts, stores.Logs, panel, log)
	svc := Services{
		Servers:  servers,
		Nodes:    service.NewNodeService(panel, &storetest.NodeStats{}, nil, stores.Nodes, stores.Servers, log),
		Orders:   service.NewOrderService(cfg.Provision, stores.Orders, stores.Profiles, stores.APIKeys, billing, servers, log),
		Callouts: service.NewCalloutService(stores.Callouts, log),
		Tickets:  service.NewTicketService(stores.Tickets, log),
		Profiles: service.NewProfileService(stores.Profiles, log),
		Admin:    service.NewAdminService(stores.Profiles, stores.Metrics, stores.APIKeys, log),
	}
	gate := auth.NewGate(testSecret, stores.Profiles)
	return &harness{srv: NewServer(cfg, svc, gate, nil, log), stores: stores, panel: panel}
}

func token(t *testing.T, sub, email string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	s, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func (h *harness) post(t *testing.T, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func sortedActions(fn function) []string {
	names := make([]string, 0, len(fn.actions))
	for name := range fn.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func TestDispatch_NoTokenIsUnauthorized(t *testing.T) {
	h := newHarness(t)

	for fnName, fn := range h.srv.functions {
		for _, name := range sortedActions(fn) {
			rec := h.post(t, "/functions/v1/"+fnName, "", map[string]any{"action": name})
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s/%s", fnName, name)
		}
	}
	assert.Zero(t, h.stores.Mutations.Count())
	assert.Zero(t, h.panel.CreateCalls)
}

func TestDispatch_NonAdminIsForbidden(t *testing.T) {
	h := newHarness(t)
	alice := token(t, "alice", "alice@example.com")

	checked := 0
	for fnName, fn := range h.srv.functions {
		for _, name := range sortedActions(fn) {
			if fn.actions[name].role != models.RoleAdmin {
				continue
			}
			checked++
			rec := h.post(t, "/functions/v1/"+fnName, alice, map[string]any{"action": name})
			assert.Equal(t, http.StatusForbidden, rec.Code, "%s/%s", fnName, name)
		}
	}
	assert.Greater(t, checked, 15)
	assert.Zero(t, h.stores.Mutations.Count())
}

func TestDispatch_UnknownActionIsBadRequest(t *testing.T) {
	h := newHarness(t)

	rec := h.post(t, "/functions/v1/support-system", token(t, "alice", "alice@example.com"), map[string]any{"action": "drop_tables"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid action", errorBody(t, rec))
}

func TestDispatch_UnknownFunction(t *testing.T) {
	h := newHarness(t)

	rec := h.post(t, "/functions/v1/nope", "", map[string]any{})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDispatch_ValidationFailure(t *testing.T) {
	h := newHarness(t)

	rec := h.post(t, "/functions/v1/callouts-management", token(t, "root", "root@example.com"), map[string]any{
		"action":      "create_callout",
		"calloutData": map[string]any{"egg_id": 5},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec), "Label")
	assert.Zero(t, h.stores.Mutations.Count())
}

func TestCreateOrder_FlatBody(t *testing.T) {
	h := newHarness(t)

	rec := h.post(t, "/functions/v1/create-order", token(t, "alice", "alice@example.com"), map[string]any{
		"package": "Pro", "ram": 4096, "cpu": 200, "disk": 8192,
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Success bool   `json:"success"`
		OrderID string `json:"order_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	stored, err := h.stores.Orders.Get(t.Context(), body.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.UserID)
	assert.Equal(t, 4096, stored.RAM)
}

func TestCreateServer_UnpaidOrder(t *testing.T) {
	h := newHarness(t)
	order := &models.Order{UserID: "alice", RAM: 1024, CPU: 100, Disk: 2048}
	h.stores.Orders.Seed(order)

	rec := h.post(t, "/functions/v1/create-server", token(t, "alice", "alice@example.com"), map[string]any{
		"order_id": order.ID, "node_id": "3", "egg_id": 5,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "order unpaid", errorBody(t, rec))
	assert.Zero(t, h.panel.CreateCalls)
}

func TestControlServer_AcceptsNumericIDs(t *testing.T) {
	h := newHarness(t)
	pid := "101"
	h.stores.Servers.Seed(&models.Server{UserID: "alice", NodeID: "3", PelicanServerID: &pid, Status: "running"})

	rec := h.post(t, "/functions/v1/pelican-integration", token(t, "alice", "alice@example.com"), map[string]any{
		"action":     "control_server",
		"serverData": map[string]any{"pelican_server_id": 101, "power_action": "stop"},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"101:stop"}, h.panel.Signals)
}

func TestServerLogs(t *testing.T) {
	h := newHarness(t)
	pid := "101"
	row := &models.Server{UserID: "alice", NodeID: "3", PelicanServerID: &pid, Status: "running"}
	h.stores.Servers.Seed(row)
	alice := token(t, "alice", "alice@example.com")

	rec := h.post(t, "/functions/v1/pelican-integration", alice, map[string]any{
		"action":     "control_server",
		"serverData": map[string]any{"server_id": row.ID, "power_action": "restart"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.post(t, "/functions/v1/pelican-integration", alice, map[string]any{
		"action":     "get_server_logs",
		"serverData": map[string]any{"pelican_server_id": 101, "limit": "5"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Logs []models.ServerLog `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Logs, 1)
	assert.Equal(t, models.LogPowerSignal, body.Logs[0].Action)
	assert.Equal(t, row.ID, body.Logs[0].ServerID)

	rec = h.post(t, "/functions/v1/pelican-integration", token(t, "root", "root@example.com"), map[string]any{
		"action":     "get_server_logs",
		"serverData": map[string]any{"server_id": row.ID, "limit": 500},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForpsiWebhook(t *testing.T) {
	h := newHarness(t)
	payload := map[string]any{
		"order_id":       "FP-9",
		"status":         "pending",
		"customer_email": "new@example.com",
		"customer_name":  "Grace Hopper",
	}

	post := func(secret string) *httptest.ResponseRecorder { return h.webhook(t, secret, payload) }

	assert.Equal(t, http.StatusUnauthorized, post("").Code)
	assert.Equal(t, http.StatusUnauthorized, post("wrong").Code)
	assert.Zero(t, h.stores.Mutations.Count())

	rec := post("hook-secret")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	order, err := h.stores.Orders.GetByForpsiID(t.Context(), "FP-9")
	require.NoError(t, err)
	assert.False(t, order.Paid)
	_, err = h.stores.Profiles.GetByEmail(t.Context(), "new@example.com")
	assert.NoError(t, err)
}

func (h *harness) webhook(t *testing.T, secret string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/functions/v1/forpsi-integration?action=webhook", bytes.NewReader(raw))
	if secret != "" {
		req.Header.Set("X-Webhook-Secret", secret)
	}
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestForpsiWebhook_AutoProvisionWithoutSecretIsRefused(t *testing.T) {
	h := newHarnessWith(t, func(cfg *config.Config) {
		cfg.Forpsi.WebhookSecret = ""
		cfg.Provision.AutoNodeID = "3"
		cfg.Provision.AutoEggID = 5
	})
	paid := true
	payload := map[string]any{
		"order_id":       "FP-10",
		"status":         "completed",
		"paid":           paid,
		"customer_email": "free@example.com",
		"ram":            65536,
	}

	for _, secret := range []string{"", "anything"} {
		rec := h.webhook(t, secret, payload)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())
	}
	assert.Zero(t, h.panel.CreateCalls)
	assert.Zero(t, h.stores.Mutations.Count())
}

func TestForpsiWebhook_AutoProvisionWithSecret(t *testing.T) {
	h := newHarnessWith(t, func(cfg *config.Config) {
		cfg.Provision.AutoNodeID = "3"
		cfg.Provision.AutoEggID = 5
	})
	payload := map[string]any{
		"order_id":       "FP-11",
		"status":         "completed",
		"paid":           true,
		"customer_email": "buyer@example.com",
	}

	assert.Equal(t, http.StatusUnauthorized, h.webhook(t, "", payload).Code)
	assert.Equal(t, http.StatusUnauthorized, h.webhook(t, "wrong", payload).Code)
	assert.Zero(t, h.panel.CreateCalls)

	rec := h.webhook(t, "hook-secret", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, h.panel.CreateCalls)
}

func TestPreflightAndHealth(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodOptions, "/functions/v1/create-order", nil)
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"nexus-portal"}`, rec.Body.String())
}

func TestSupport_RequiresProfile(t *testing.T) {
	h := newHarness(t)

	rec := h.post(t, "/functions/v1/support-system", token(t, "ghost", "ghost@example.com"), map[string]any{
		"action":     "create_ticket",
		"ticketData": map[string]any{"subject": "hi", "body": "there"},
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "user profile not found", errorBody(t, rec))
}
