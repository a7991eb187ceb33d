package http

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nexushost/portal/internal/auth"
	"github.com/nexushost/portal/internal/models"
	"github.com/nexushost/portal/internal/service"
)

// createServerRequest is the flat body posted by the order page.
type createServerRequest struct {
	OrderID   string `json:"order_id" validate:"required"`
	NodeID    string `json:"node_id" validate:"required"`
	EggID     int    `json:"egg_id" validate:"gte=0"`
	Name      string `json:"name" validate:"max=191"`
	CalloutID string `json:"callout_id"`
}

func (s *Server) createServerFunction() function {
	return function{
		fallback: "create_server",
		actions: actions{
			"create_server": typed(models.RoleUser, s.createServerFromOrder).limited(s.provisionLimiter),
		},
	}
}

func (s *Server) createServerFromOrder(ctx context.Context, p *auth.Principal, req *createServerRequest) (any, error) {
	res, err := s.svc.Servers.Provision(ctx, p, service.ProvisionInput{
		OrderID:   req.OrderID,
		NodeID:    req.NodeID,
		EggID:     req.EggID,
		Name:      req.Name,
		CalloutID: req.CalloutID,
	})
	if err != nil {
		return nil, err
	}
	out := gin.H{
		"ok":        true,
		"id":        res.Server.ID,
		"name":      res.Server.Name,
		"status":    res.Server.Status,
		"server_id": res.Server.PelicanServerID,
		"attempts":  res.Attempts,
	}
	return out, nil
}

// serverData carries the fields the panel page sends for every server action.
type serverData struct {
	Name            string         `json:"name" validate:"max=191"`
	NodeID          flexString     `json:"nodeId"`
	EggID           flexInt        `json:"eggId"`
	Memory          flexInt        `json:"memory"`
	CPU             flexInt        `json:"cpu"`
	Disk            flexInt        `json:"disk"`
	DockerImage     string         `json:"docker_image"`
	Startup         string         `json:"startup"`
	Environment     map[string]any `json:"environment"`
	ServerID        string         `json:"server_id"`
	PelicanServerID flexString     `json:"pelican_server_id"`
	PowerAction     string         `json:"power_action"`
	Limit           flexInt        `json:"limit" validate:"gte=0,lte=200"`
}

type panelRequest struct {
	ServerData serverData `json:"serverData"`
	UserID     string     `json:"userId"`
	CalloutID  string     `json:"calloutId"`
}

func (r *panelRequest) ref() service.ServerRef {
	return service.ServerRef{ServerID: r.ServerData.ServerID, PelicanServerID: string(r.ServerData.PelicanServerID)}
}

type emptyRequest struct{}

func (s *Server) pelicanFunction() function {
	return function{actions: actions{
		"list_nests":                typed(models.RoleUser, s.listNests),
		"list_eggs":                 typed(models.RoleUser, s.listEggs),
		"list_nodes":                typed(models.RoleUser, s.listNodes),
		"list_servers":              typed(models.RoleAdmin, s.listPanelServers),
		"get_my_servers":            typed(models.RoleUser, s.listMyServers),
		"create_server":             typed(models.RoleUser, s.createPanelServer).limited(s.provisionLimiter),
		"get_server_status":         typed(models.RoleUser, s.serverStatus),
		"get_server_logs":           typed(models.RoleUser, s.serverLogs),
		"delete_server":             typed(models.RoleUser, s.deleteServer),
		"control_server":            typed(models.RoleUser, s.controlServer),
		"sync_all_servers":          typed(models.RoleAdmin, s.syncAllServers),
		"sync_servers_from_pelican": typed(models.RoleAdmin, s.importServers),
	}}
}

func (s *Server) listNests(ctx context.Context, _ *auth.Principal, _ *emptyRequest) (any, error) {
	return s.svc.Servers.ListNests(ctx)
}

func (s *Server) listEggs(ctx context.Context, _ *auth.Principal, _ *emptyRequest) (any, error) {
	return s.svc.Servers.ListEggs(ctx)
}

func (s *Server) listNodes(ctx context.Context, _ *auth.Principal, _ *emptyRequest) (any, error) {
	nodes, err := s.svc.Nodes.List(ctx)
	if err != nil {
		return nil, err
	}
	return gin.H{"object": "list", "data": nodes}, nil
}

func (s *Server) listPanelServers(ctx context.Context, _ *auth.Principal, _ *emptyRequest) (any, error) {
	servers, err := s.svc.Servers.ListPanelServers(ctx)
	if err != nil {
		return nil, err
	}
	return gin.H{"object": "list", "data": servers}, nil
}

func (s *Server) listMyServers(ctx context.Context, p *auth.Principal, _ *emptyRequest) (any, error) {
	servers, err := s.svc.Servers.ListMine(ctx, p)
	if err != nil {
		return nil, err
	}
	return gin.H{"servers": servers}, nil
}

// createPanelServer provisions directly from the panel page, without an order.
func (s *Server) createPanelServer(ctx context.Context, p *auth.Principal, req *panelRequest) (any, error) {
	d := req.ServerData
	res, err := s.svc.Servers.Provision(ctx, p, service.ProvisionInput{
		NodeID:      string(d.NodeID),
		EggID:       int(d.EggID),
		Name:        d.Name,
		RAM:         int(d.Memory),
		CPU:         int(d.CPU),
		Disk:        int(d.Disk),
		CalloutID:   req.CalloutID,
		ServerID:    d.ServerID,
		OwnerID:     req.UserID,
		DockerImage: d.DockerImage,
		Startup:     d.Startup,
		Environment: d.Environment,
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Server) serverStatus(ctx context.Context, p *auth.Principal, req *panelRequest) (any, error) {
	return s.svc.Servers.RefreshStatus(ctx, p, req.ref())
}

func (s *Server) serverLogs(ctx context.Context, p *auth.Principal, req *panelRequest) (any, error) {
	logs, err := s.svc.Servers.History(ctx, p, req.ref(), int(req.ServerData.Limit))
	if err != nil {
		return nil, err
	}
	return gin.H{"logs": logs}, nil
}

func (s *Server) deleteServer(ctx context.Context, p *auth.Principal, req *panelRequest) (any, error) {
	if err := s.svc.Servers.Delete(ctx, p, req.ref()); err != nil {
		return nil, err
	}
	return success(), nil
}

func (s *Server) controlServer(ctx context.Context, p *auth.Principal, req *panelRequest) (any, error) {
	row, err := s.svc.Servers.Power(ctx, p, req.ref(), req.ServerData.PowerAction)
	if err != nil {
		return nil, err
	}
	return gin.H{"success": true, "status": row.Status}, nil
}

func (s *Server) syncAllServers(ctx context.Context, _ *auth.Principal, _ *emptyRequest) (any, error) {
	res := s.svc.Servers.SyncStatuses(ctx)
	return gin.H{"success": true, "synced": res.Synced, "failed": res.Failed, "total": res.Total}, nil
}

func (s *Server) importServers(ctx context.Context, p *auth.Principal, _ *emptyRequest) (any, error) {
	res, err := s.svc.Servers.ImportFromPanel(ctx, p)
	if err != nil {
		return nil, err
	}
	return gin.H{"success": true, "synced": res.Upstream, "new_servers": res.Imported}, nil
}

// flexString accepts a JSON string or number.
type flexString string

// UnmarshalJSON accepts a string or a number.
func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(b) == "null" {
		return nil
	}
	*f = flexString(b)
	return nil
}

// flexInt accepts a JSON number or a numeric string. Empty strings decode
// as zero.
type flexInt int

// UnmarshalJSON accepts a number or a numeric string.
func (f *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(string(s))
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}
