package service

import (
	"context"
	"errors"
	"strconv"

	"github.com/nexushost/portal/internal/apperr"
	"github.com/nexushost/portal/internal/auth"
	"github.com/nexushost/portal/internal/client"
	"github.com/nexushost/portal/internal/models"
	"github.com/nexushost/portal/internal/repository"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const statsFanOut = 8

// NodeView is a panel node with live daemon stats and local usage attached.
type NodeView struct {
	client.Node
	RealTimeStats *client.SystemStats     `json:"real_time_stats,omitempty"`
	LocalUsage    models.NodeUsage        `json:"local_usage"`
	Reservation   *models.NodeReservation `json:"reservation,omitempty"`
}

// NodeService lists panel nodes and manages reservations.
type NodeService struct {
	panel   PanelAPI
	stats   NodeStatsAPI
	tokens  map[string]string
	nodes   NodeStore
	servers ServerStore
	log     zerolog.Logger
}

// NewNodeService creates a new node service. tokens maps node ids to daemon tokens.
func NewNodeService(panel PanelAPI, stats NodeStatsAPI, tokens map[string]string, nodes NodeStore, servers ServerStore, log zerolog.Logger) *NodeService {
	return &NodeService{
		panel:   panel,
		stats:   stats,
		tokens:  tokens,
		nodes:   nodes,
		servers: servers,
		log:     log.With().Str("component", "nodes").Logger(),
	}
}

// List returns every panel node, enriched. Stats are only fetched for nodes
// with a configured daemon token; a failed fetch leaves the node without
// stats.
func (s *NodeService) List(ctx context.Context) ([]*NodeView, error) {
	nodes, err := s.panel.ListNodes(ctx)
	if err != nil {
		return nil, upstream(err, "list nodes")
	}

	views := make([]*NodeView, len(nodes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statsFanOut)
	for i, n := range nodes {
		views[i] = &NodeView{Node: n}
		token, ok := s.tokens[strconv.Itoa(n.ID)]
		if !ok {
			continue
		}
		view := views[i]
		g.Go(func() error {
			st, err := s.stats.SystemStats(gctx, view.Node, token)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.log.Warn().Err(err).Int("node_id", view.ID).Msg("fetch daemon stats")
				return nil
			}
			view.RealTimeStats = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	usage, err := s.servers.UsageByNode(ctx)
	if err != nil {
		return nil, err
	}
	reservations, err := s.nodes.ActiveReservations(ctx)
	if err != nil {
		return nil, err
	}

	for _, v := range views {
		id := strconv.Itoa(v.ID)
		v.LocalUsage = usage[id]
		v.LocalUsage.NodeID = id
		v.Reservation = reservations[id]

		mirror := &models.Node{
			ID:              id,
			Name:            v.Name,
			FQDN:            v.FQDN,
			Memory:          v.Memory,
			Disk:            v.Disk,
			MaintenanceMode: v.MaintenanceMode,
		}
		if err := s.nodes.Upsert(ctx, mirror); err != nil {
			s.log.Warn().Err(err).Str("node_id", id).Msg("mirror node")
		}
	}
	return views, nil
}

// ReserveInput names the node to hold and for whom.
type ReserveInput struct {
	NodeID  string
	UserID  string
	OrderID string
}

// Reserve marks a node as dedicated to one user. Only one active
// reservation per node is allowed.
func (s *NodeService) Reserve(ctx context.Context, p *auth.Principal, in ReserveInput) (*models.NodeReservation, error) {
	res := &models.NodeReservation{NodeID: in.NodeID, UserID: in.UserID}
	if res.UserID == "" {
		res.UserID = p.UserID
	}
	if in.OrderID != "" {
		res.OrderID = &in.OrderID
	}
	if err := s.nodes.Reserve(ctx, res); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperr.Conflict("node already reserved")
		}
		return nil, err
	}
	s.log.Info().Str("node_id", in.NodeID).Str("user_id", res.UserID).Msg("node reserved")
	return res, nil
}

// Release ends the active reservation of a node.
func (s *NodeService) Release(ctx context.Context, nodeID string) (*models.NodeReservation, error) {
	res, err := s.nodes.Release(ctx, nodeID)
	if err != nil {
		return nil, notFound(err, "active reservation")
	}
	s.log.Info().Str("node_id", nodeID).Msg("node released")
	return res, nil
}
