package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/nexushost/portal/internal/auth"
	"github.com/nexushost/portal/internal/models"
	"github.com/nexushost/portal/internal/service"
)

type userRoleRequest struct {
	Data struct {
		UserID string `json:"userId" validate:"required"`
		Role   string `json:"role" validate:"required,oneof=admin user"`
	} `json:"data"`
}

type updateUserRequest struct {
	Data struct {
		UserID        string  `json:"userId" validate:"required"`
		FirstName     *string `json:"first_name" validate:"omitempty,max=100"`
		LastName      *string `json:"last_name" validate:"omitempty,max=100"`
		Email         *string `json:"email" validate:"omitempty,email"`
		Status        *string `json:"status" validate:"omitempty,oneof=active suspended"`
		PelicanUserID *int    `json:"pelican_user_id" validate:"omitempty,gt=0"`
	} `json:"data"`
}

type userIDRequest struct {
	Data struct {
		UserID string `json:"userId" validate:"required"`
	} `json:"data"`
}

type upsertKeyRequest struct {
	Data struct {
		Service     string  `json:"service" validate:"required,max=50"`
		APIKey      string  `json:"api_key" validate:"required"`
		Description *string `json:"description"`
	} `json:"data"`
}

type idRequest struct {
	Data struct {
		ID string `json:"id" validate:"required"`
	} `json:"data"`
}

type reserveNodeRequest struct {
	Data struct {
		NodeID  string `json:"node_id" validate:"required"`
		UserID  string `json:"user_id"`
		OrderID string `json:"order_id"`
	} `json:"data"`
}

type releaseNodeRequest struct {
	Data struct {
		NodeID string `json:"node_id" validate:"required"`
	} `json:"data"`
}

func (s *Server) adminFunction() function {
	return function{actions: actions{
		"get_metrics":             typed(models.RoleAdmin, s.getMetrics),
		"record_metrics_snapshot": typed(models.RoleAdmin, s.recordSnapshot),
		"get_all_users":           typed(models.RoleAdmin, s.getAllUsers),
		"update_user_role":        typed(models.RoleAdmin, s.updateUserRole),
		"update_user":             typed(models.RoleAdmin, s.updateUser),
		"delete_user":             typed(models.RoleAdmin, s.deleteUser),
		"get_all_servers":         typed(models.RoleAdmin, s.getAllServers),
		"sync_forpsi_orders":      typed(models.RoleAdmin, s.syncForpsiOrders),
		"list_api_keys":           typed(models.RoleAdmin, s.listAPIKeys),
		"upsert_api_key":          typed(models.RoleAdmin, s.upsertAPIKey),
		"deactivate_api_key":      typed(models.RoleAdmin, s.deactivateAPIKey),
		"reserve_node":            typed(models.RoleAdmin, s.reserveNode),
		"release_node":            typed(models.RoleAdmin, s.releaseNode),
	}}
}

func (s *Server) getMetrics(ctx context.Context, _ *auth.Principal, _ *emptyRequest) (any, error) {
	return s.svc.Admin.Dashboard(ctx)
}

func (s *Server) recordSnapshot(ctx context.Context, _ *auth.Principal, _ *emptyRequest) (any, error) {
	counts, err := s.svc.Admin.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return gin.H{"success": true, "metrics": counts}, nil
}

func (s *Server) getAllUsers(ctx context.Context, _ *auth.Principal, _ *emptyRequest) (any, error) {
	users, err := s.svc.Admin.Users(ctx)
	if err != nil {
		return nil, err
	}
	return gin.H{"users": users}, nil
}

func (s *Server) updateUserRole(ctx context.Context, _ *auth.Principal, req *userRoleRequest) (any, error) {
	if _, err := s.svc.Admin.SetRole(ctx, req.Data.UserID, req.Data.Role); err != nil {
		return nil, err
	}
	return success(), nil
}

func (s *Server) updateUser(ctx context.Context, _ *auth.Principal, req *updateUserRequest) (any, error) {
	d := req.Data
	user, err := s.svc.Admin.UpdateUser(ctx, d.UserID, models.ProfileUpdate{
		FirstName:     d.FirstName,
		LastName:      d.LastName,
		Email:         d.Email,
		Status:        d.Status,
		PelicanUserID: d.PelicanUserID,
	})
	if err != nil {
		return nil, err
	}
	return gin.H{"user": user}, nil
}

func (s *Server) deleteUser(ctx context.Context, p *auth.Principal, req *userIDRequest) (any, error) {
	if err := s.svc.Admin.DeleteUser(ctx, p, req.Data.UserID); err != nil {
		return nil, err
	}
	return success(), nil
}

func (s *Server) getAllServers(ctx context.Context, _ *auth.Principal, _ *emptyRequest) (any, error) {
	servers, err := s.svc.Servers.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return gin.H{"servers": servers}, nil
}

func (s *Server) syncForpsiOrders(ctx context.Context, _ *auth.Principal, _ *emptyRequest) (any, error) {
	res, err := s.svc.Orders.SyncBilling(ctx)
	if err != nil {
		return nil, err
	}
	return gin.H{"success": true, "data": res}, nil
}

func (s *Server) listAPIKeys(ctx context.Context, _ *auth.Principal, _ *emptyRequest) (any, error) {
	keys, err := s.svc.Admin.APIKeys(ctx)
	if err != nil {
		return nil, err
	}
	return gin.H{"api_keys": keys}, nil
}

func (s *Server) upsertAPIKey(ctx context.Context, _ *auth.Principal, req *upsertKeyRequest) (any, error) {
	k, err := s.svc.Admin.UpsertAPIKey(ctx, req.Data.Service, req.Data.APIKey, req.Data.Description)
	if err != nil {
		return nil, err
	}
	return gin.H{"api_key": k}, nil
}

func (s *Server) deactivateAPIKey(ctx context.Context, _ *auth.Principal, req *idRequest) (any, error) {
	if err := s.svc.Admin.DeactivateAPIKey(ctx, req.Data.ID); err != nil {
		return nil, err
	}
	return success(), nil
}

func (s *Server) reserveNode(ctx context.Context, p *auth.Principal, req *reserveNodeRequest) (any, error) {
	res, err := s.svc.Nodes.Reserve(ctx, p, service.ReserveInput{
		NodeID:  req.Data.NodeID,
		UserID:  req.Data.UserID,
		OrderID: req.Data.OrderID,
	})
	if err != nil {
		return nil, err
	}
	return gin.H{"reservation": res}, nil
}

func (s *Server) releaseNode(ctx context.Context, _ *auth.Principal, req *releaseNodeRequest) (any, error) {
	res, err := s.svc.Nodes.Release(ctx, req.Data.NodeID)
	if err != nil {
		return nil, err
	}
	return gin.H{"reservation": res}, nil
}
