package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/nexushost/portal/internal/config"
)

const servicePelican = "pelican"

// PelicanClient talks to the panel's application API, plus the client API
// for power signals.
type PelicanClient struct {
	baseURL      string
	apiKey       string
	clientURL    string
	clientAPIKey string
	httpClient   *http.Client
}

// NewPelicanClient creates a new Pelican panel client.
func NewPelicanClient(cfg config.PelicanConfig) *PelicanClient {
	return &PelicanClient{
		baseURL:      cfg.APIURL,
		apiKey:       cfg.APIKey,
		clientURL:    cfg.ClientAPIURL,
		clientAPIKey: cfg.ClientAPIKey,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
	}
}

// Object is the panel's envelope around a single resource.
type Object[T any] struct {
	Object     string `json:"object"`
	Attributes T      `json:"attributes"`
}

// List is the panel's envelope around a collection.
type List[T any] struct {
	Object string      `json:"object"`
	Data   []Object[T] `json:"data"`
}

// Items unwraps the attributes of every element.
func (l List[T]) Items() []T {
	items := make([]T, 0, len(l.Data))
	for _, d := range l.Data {
		items = append(items, d.Attributes)
	}
	return items
}

// Node is a panel node.
type Node struct {
	ID              int    `json:"id"`
	UUID            string `json:"uuid"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	FQDN            string `json:"fqdn"`
	Scheme          string `json:"scheme"`
	DaemonListen    int    `json:"daemon_listen"`
	Memory          int    `json:"memory"`
	Disk            int    `json:"disk"`
	MaintenanceMode bool   `json:"maintenance_mode"`
}

// Allocation is an IP and port on a node.
type Allocation struct {
	ID       int    `json:"id"`
	IP       string `json:"ip"`
	Alias    string `json:"alias,omitempty"`
	Port     int    `json:"port"`
	Assigned bool   `json:"assigned"`
}

// Limits are the resource limits of a server.
type Limits struct {
	Memory int `json:"memory"`
	Swap   int `json:"swap"`
	Disk   int `json:"disk"`
	IO     int `json:"io"`
	CPU    int `json:"cpu"`
}

// FeatureLimits cap databases, allocations and backups per server.
type FeatureLimits struct {
	Databases   int `json:"databases"`
	Allocations int `json:"allocations"`
	Backups     int `json:"backups"`
}

// ServerResources is the live usage block attached to a server.
type ServerResources struct {
	CPU    float64 `json:"cpu"`
	Memory float64 `json:"memory"`
	Uptime float64 `json:"uptime"`
}

// Server is a panel server.
type Server struct {
	ID            int              `json:"id"`
	ExternalID    *string          `json:"external_id"`
	UUID          string           `json:"uuid"`
	Identifier    string           `json:"identifier"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Status        *string          `json:"status"`
	Suspended     bool             `json:"suspended"`
	Limits        Limits           `json:"limits"`
	FeatureLimits FeatureLimits    `json:"feature_limits"`
	User          int              `json:"user"`
	Node          int              `json:"node"`
	Allocation    int              `json:"allocation"`
	Egg           int              `json:"egg"`
	Resources     *ServerResources `json:"resources,omitempty"`
}

// AllocationSpec picks the default allocation of a new server.
type AllocationSpec struct {
	Default int `json:"default"`
}

// DeploySpec places a new server on a location.
type DeploySpec struct {
	Locations   []int    `json:"locations"`
	DedicatedIP bool     `json:"dedicated_ip"`
	PortRange   []string `json:"port_range"`
}

// CreateServerRequest is the body of a panel server creation.
type CreateServerRequest struct {
	Name              string         `json:"name"`
	ExternalID        string         `json:"external_id"`
	Description       string         `json:"description"`
	User              int            `json:"user"`
	Egg               int            `json:"egg"`
	DockerImage       string         `json:"docker_image"`
	Startup           string         `json:"startup"`
	Environment       map[string]any `json:"environment"`
	Limits            Limits         `json:"limits"`
	FeatureLimits     FeatureLimits  `json:"feature_limits"`
	Allocation        AllocationSpec `json:"allocation"`
	Deploy            DeploySpec     `json:"deploy"`
	StartOnCompletion bool           `json:"start_on_completion"`
}

func (c *PelicanClient) get(ctx context.Context, op, path string, out any) error {
	return do(ctx, c.httpClient, request{
		service: servicePelican, op: op, method: http.MethodGet,
		url: c.baseURL + path, token: c.apiKey,
	}, out)
}

// ListNodes returns every node on the panel.
func (c *PelicanClient) ListNodes(ctx context.Context) ([]Node, error) {
	var list List[Node]
	if err := c.get(ctx, "list_nodes", "/nodes", &list); err != nil {
		return nil, err
	}
	return list.Items(), nil
}

// ListAllocations returns the allocations of a node.
func (c *PelicanClient) ListAllocations(ctx context.Context, nodeID string) ([]Allocation, error) {
	var list List[Allocation]
	if err := c.get(ctx, "list_allocations", "/nodes/"+url.PathEscape(nodeID)+"/allocations", &list); err != nil {
		return nil, err
	}
	return list.Items(), nil
}

// ListNests returns the raw nest list with eggs included.
func (c *PelicanClient) ListNests(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "list_nests", "/nests?include=eggs", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ListEggs returns the raw egg list.
func (c *PelicanClient) ListEggs(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "list_eggs", "/eggs", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ListServers returns every server on the panel.
func (c *PelicanClient) ListServers(ctx context.Context) ([]Server, error) {
	var list List[Server]
	if err := c.get(ctx, "list_servers", "/servers", &list); err != nil {
		return nil, err
	}
	return list.Items(), nil
}

// GetServer fetches one server with its resource usage.
func (c *PelicanClient) GetServer(ctx context.Context, id string) (*Server, error) {
	var obj Object[Server]
	if err := c.get(ctx, "get_server", "/servers/"+url.PathEscape(id), &obj); err != nil {
		return nil, err
	}
	return &obj.Attributes, nil
}

// CreateServer creates a server on the panel.
func (c *PelicanClient) CreateServer(ctx context.Context, req *CreateServerRequest) (*Server, error) {
	var obj Object[Server]
	err := do(ctx, c.httpClient, request{
		service: servicePelican, op: "create_server", method: http.MethodPost,
		url: c.baseURL + "/servers", token: c.apiKey, body: req,
	}, &obj)
	if err != nil {
		return nil, err
	}
	return &obj.Attributes, nil
}

// DeleteServer removes a server from the panel.
func (c *PelicanClient) DeleteServer(ctx context.Context, id string) error {
	return do(ctx, c.httpClient, request{
		service: servicePelican, op: "delete_server", method: http.MethodDelete,
		url: c.baseURL + "/servers/" + url.PathEscape(id), token: c.apiKey,
	}, nil)
}

// SendPowerSignal sends start, stop, restart or kill through the client API.
func (c *PelicanClient) SendPowerSignal(ctx context.Context, id, signal string) error {
	if c.clientURL == "" {
		return fmt.Errorf("pelican client api url not configured")
	}
	token := c.clientAPIKey
	if token == "" {
		token = c.apiKey
	}
	return do(ctx, c.httpClient, request{
		service: servicePelican, op: "power", method: http.MethodPost,
		url: c.clientURL + "/servers/" + url.PathEscape(id) + "/power", token: token,
		body: map[string]string{"signal": signal},
	}, nil)
}
