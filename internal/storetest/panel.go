package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"

	"github.com/nexushost/portal/internal/client"
)

// ErrConnReset is a convenience transport failure for scripting.
var ErrConnReset = &client.TransportError{Service: "pelican", Op: "create_server", Err: errors.New("connection reset by peer")}

// Panel is a scriptable stand-in for the panel API.
type Panel struct {
	mu sync.Mutex

	Nodes       []client.Node
	Allocations map[string][]client.Allocation
	Servers     map[string]*client.Server
	Nests       json.RawMessage
	Eggs        json.RawMessage

	// CreateErrs are returned, in order, by the next CreateServer calls.
	CreateErrs []error
	// GetErrs fails GetServer for specific ids.
	GetErrs map[string]error
	// Err fails every read call when set.
	Err error

	CreateCalls     int
	AllocationCalls int
	Created         []*client.CreateServerRequest
	Deleted         []string
	Signals         []string

	nextID int
}

// NewPanel returns a panel with no nodes or servers.
func NewPanel() *Panel {
	return &Panel{
		Allocations: map[string][]client.Allocation{},
		Servers:     map[string]*client.Server{},
		GetErrs:     map[string]error{},
		nextID:      100,
	}
}

func (p *Panel) ListNodes(context.Context) ([]client.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	return append([]client.Node(nil), p.Nodes...), nil
}

func (p *Panel) ListAllocations(_ context.Context, nodeID string) ([]client.Allocation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AllocationCalls++
	if p.Err != nil {
		return nil, p.Err
	}
	return append([]client.Allocation(nil), p.Allocations[nodeID]...), nil
}

func (p *Panel) ListNests(context.Context) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Nests, p.Err
}

func (p *Panel) ListEggs(context.Context) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Eggs, p.Err
}

func (p *Panel) ListServers(context.Context) ([]client.Server, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([]client.Server, 0, len(p.Servers))
	for _, s := range p.Servers {
		out = append(out, *s)
	}
	return out, nil
}

func (p *Panel) GetServer(_ context.Context, id string) (*client.Server, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.GetErrs[id]; err != nil {
		return nil, err
	}
	s, ok := p.Servers[id]
	if !ok {
		return nil, &client.APIError{Service: "pelican", StatusCode: 404, Body: "not found"}
	}
	cp := *s
	return &cp, nil
}

func (p *Panel) CreateServer(_ context.Context, req *client.CreateServerRequest) (*client.Server, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CreateCalls++
	if len(p.CreateErrs) > 0 {
		err := p.CreateErrs[0]
		p.CreateErrs = p.CreateErrs[1:]
		return nil, err
	}
	p.Created = append(p.Created, req)
	p.nextID++
	ext := req.ExternalID
	s := &client.Server{
		ID:            p.nextID,
		ExternalID:    &ext,
		Name:          req.Name,
		Limits:        req.Limits,
		FeatureLimits: req.FeatureLimits,
		User:          req.User,
		Allocation:    req.Allocation.Default,
		Egg:           req.Egg,
	}
	p.Servers[strconv.Itoa(s.ID)] = s
	cp := *s
	return &cp, nil
}

func (p *Panel) DeleteServer(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.Servers[id]; !ok {
		return &client.APIError{Service: "pelican", StatusCode: 404, Body: "not found"}
	}
	delete(p.Servers, id)
	p.Deleted = append(p.Deleted, id)
	return nil
}

func (p *Panel) SendPowerSignal(_ context.Context, id, signal string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Signals = append(p.Signals, id+":"+signal)
	return nil
}

// NodeStats serves canned daemon stats keyed by node fqdn.
type NodeStats struct {
	mu    sync.Mutex
	Stats map[string]*client.SystemStats
	Calls int
}

func (n *NodeStats) SystemStats(_ context.Context, node client.Node, _ string) (*client.SystemStats, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Calls++
	if s, ok := n.Stats[node.FQDN]; ok {
		return s, nil
	}
	return nil, &client.TransportError{Service: "wings", Op: "system_stats", Err: errors.New("i/o timeout")}
}

// Billing is a stand-in for the billing provider.
type Billing struct {
	mu      sync.Mutex
	Enabled bool
	Orders  map[string]*client.ForpsiOrder
	Keys    []string
	// GetErrs are returned, in order, by the next GetOrder calls.
	GetErrs []error
	nextID  int
}

// NewBilling returns a configured billing fake.
func NewBilling() *Billing {
	return &Billing{Enabled: true, Orders: map[string]*client.ForpsiOrder{}}
}

func (b *Billing) Configured() bool { return b.Enabled }

func (b *Billing) CreateOrder(_ context.Context, apiKey string, _ *client.ForpsiOrderRequest) (*client.ForpsiOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Keys = append(b.Keys, apiKey)
	b.nextID++
	o := &client.ForpsiOrder{OrderID: "FP-" + strconv.Itoa(b.nextID), Status: "processing"}
	b.Orders[o.OrderID] = o
	cp := *o
	return &cp, nil
}

func (b *Billing) GetOrder(_ context.Context, apiKey, orderID string) (*client.ForpsiOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Keys = append(b.Keys, apiKey)
	if len(b.GetErrs) > 0 {
		err := b.GetErrs[0]
		b.GetErrs = b.GetErrs[1:]
		return nil, err
	}
	o, ok := b.Orders[orderID]
	if !ok {
		return nil, &client.APIError{Service: "forpsi", StatusCode: 404, Body: "unknown order"}
	}
	cp := *o
	return &cp, nil
}
