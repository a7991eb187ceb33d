package service

import (
	"context"
	"encoding/json"

	"github.com/nexushost/portal/internal/client"
	"github.com/nexushost/portal/internal/models"
)

// Persistence ports. The repository package provides the Postgres
// implementations; storetest provides in-memory ones.

// ProfileStore persists profiles keyed by auth id.
type ProfileStore interface {
	GetByAuthID(ctx context.Context, authID string) (*models.Profile, error)
	GetByEmail(ctx context.Context, email string) (*models.Profile, error)
	List(ctx context.Context) ([]*models.Profile, error)
	Create(ctx context.Context, p *models.Profile) error
	Update(ctx context.Context, authID string, u models.ProfileUpdate) (*models.Profile, error)
	TouchLastLogin(ctx context.Context, authID string) error
	Delete(ctx context.Context, authID string) error
}

// ServerStore persists servers.
type ServerStore interface {
	Create(ctx context.Context, s *models.Server) error
	Get(ctx context.Context, id string) (*models.Server, error)
	GetByPelicanID(ctx context.Context, pelicanID string) (*models.Server, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Server, error)
	ListLinked(ctx context.Context) ([]*models.Server, error)
	ListWithOwners(ctx context.Context) ([]*models.ServerWithOwner, error)
	PelicanIDs(ctx context.Context) (map[string]bool, error)
	MarkProvisioned(ctx context.Context, id string, p models.ServerProvisioned) error
	SetStatus(ctx context.Context, id, status string) error
	UpdateLiveStats(ctx context.Context, id string, st models.ServerLiveStats) error
	Delete(ctx context.Context, id string) error
	UsageByNode(ctx context.Context) (map[string]models.NodeUsage, error)
}

// OrderStore persists orders.
type OrderStore interface {
	Create(ctx context.Context, o *models.Order) error
	Get(ctx context.Context, id string) (*models.Order, error)
	GetByForpsiID(ctx context.Context, forpsiID string) (*models.Order, error)
	List(ctx context.Context) ([]*models.Order, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Order, error)
	ListBilled(ctx context.Context) ([]*models.Order, error)
	MarkPaid(ctx context.Context, id string) (*models.Order, error)
	ApplyBilling(ctx context.Context, id string, u models.OrderBillingUpdate) (*models.Order, error)
}

// CalloutStore persists callout presets.
type CalloutStore interface {
	ListActive(ctx context.Context) ([]*models.Callout, error)
	Get(ctx context.Context, id string) (*models.Callout, error)
	Create(ctx context.Context, c *models.Callout) error
	Update(ctx context.Context, id string, u models.CalloutUpdate) (*models.Callout, error)
	Deactivate(ctx context.Context, id string) error
}

// TicketStore persists support tickets.
type TicketStore interface {
	Create(ctx context.Context, t *models.Ticket) error
	Get(ctx context.Context, id string) (*models.Ticket, error)
	List(ctx context.Context) ([]*models.Ticket, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Ticket, error)
	Update(ctx context.Context, id string, u models.TicketUpdate) (*models.Ticket, error)
}

// NodeStore persists the node mirror and reservations.
type NodeStore interface {
	Upsert(ctx context.Context, n *models.Node) error
	ActiveReservations(ctx context.Context) (map[string]*models.NodeReservation, error)
	Reserve(ctx context.Context, res *models.NodeReservation) error
	Release(ctx context.Context, nodeID string) (*models.NodeReservation, error)
}

// APIKeyStore persists upstream API keys.
type APIKeyStore interface {
	List(ctx context.Context) ([]*models.APIKey, error)
	GetActive(ctx context.Context, service string) (*models.APIKey, error)
	Upsert(ctx context.Context, service, key string, description *string) (*models.APIKey, error)
	Deactivate(ctx context.Context, id string) error
}

// MetricStore persists dashboard snapshots.
type MetricStore interface {
	Record(ctx context.Context, m *models.SystemMetric) error
	Recent(ctx context.Context, limit int) ([]*models.SystemMetric, error)
	Counts(ctx context.Context) (models.Counts, error)
}

// ServerLogStore persists server history.
type ServerLogStore interface {
	Record(ctx context.Context, e *models.ServerLog) error
	ListByServer(ctx context.Context, serverID string, limit int) ([]*models.ServerLog, error)
}

// Upstream ports, satisfied by the client package.

// PanelAPI is the game server panel.
type PanelAPI interface {
	ListNodes(ctx context.Context) ([]client.Node, error)
	ListAllocations(ctx context.Context, nodeID string) ([]client.Allocation, error)
	ListNests(ctx context.Context) (json.RawMessage, error)
	ListEggs(ctx context.Context) (json.RawMessage, error)
	ListServers(ctx context.Context) ([]client.Server, error)
	GetServer(ctx context.Context, id string) (*client.Server, error)
	CreateServer(ctx context.Context, req *client.CreateServerRequest) (*client.Server, error)
	DeleteServer(ctx context.Context, id string) error
	SendPowerSignal(ctx context.Context, id, signal string) error
}

// NodeStatsAPI reads live figures from a node daemon.
type NodeStatsAPI interface {
	SystemStats(ctx context.Context, node client.Node, token string) (*client.SystemStats, error)
}

// BillingAPI is the billing provider.
type BillingAPI interface {
	Configured() bool
	CreateOrder(ctx context.Context, apiKey string, req *client.ForpsiOrderRequest) (*client.ForpsiOrder, error)
	GetOrder(ctx context.Context, apiKey, orderID string) (*client.ForpsiOrder, error)
}
