package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/nexushost/portal/internal/apperr"
	"github.com/nexushost/portal/internal/auth"
	"github.com/nexushost/portal/internal/client"
	"github.com/nexushost/portal/internal/config"
	"github.com/nexushost/portal/internal/metrics"
	"github.com/nexushost/portal/internal/models"
	"github.com/nexushost/portal/internal/repository"
	"github.com/nexushost/portal/internal/retry"
	"github.com/rs/zerolog"
)

const (
	swapUnlimited = -1
	defaultIO     = 500
	serverDesc    = "Created via Nexus"
	bytesPerMiB   = 1024 * 1024
	secondsPerDay = 86400
)

// Power signals accepted by the panel.
var powerStatus = map[string]string{
	"start":   models.ServerStarting,
	"restart": models.ServerStarting,
	"stop":    models.ServerStopping,
	"kill":    models.ServerStopping,
}

// ServerService provisions game servers on the panel and keeps the local
// server rows in step with it.
type ServerService struct {
	cfg      config.ProvisionConfig
	servers  ServerStore
	orders   OrderStore
	profiles ProfileStore
	callouts CalloutStore
	events   ServerLogStore
	panel    PanelAPI
	log      zerolog.Logger
}

// NewServerService creates a new server service.
func NewServerService(
	cfg config.ProvisionConfig,
	servers ServerStore,
	orders OrderStore,
	profiles ProfileStore,
	callouts CalloutStore,
	events ServerLogStore,
	panel PanelAPI,
	log zerolog.Logger,
) *ServerService {
	return &ServerService{
		cfg:      cfg,
		servers:  servers,
		orders:   orders,
		profiles: profiles,
		callouts: callouts,
		events:   events,
		panel:    panel,
		log:      log.With().Str("component", "servers").Logger(),
	}
}

// ProvisionInput describes a server to create. Zero values are filled from
// the order, the callout and finally the configured defaults.
type ProvisionInput struct {
	NodeID      string
	EggID       int
	Name        string
	RAM         int
	CPU         int
	Disk        int
	OrderID     string
	CalloutID   string
	ServerID    string
	OwnerID     string
	DockerImage string
	Startup     string
	Environment map[string]any
}

// ProvisionResult is the stored server and the panel's copy of it.
type ProvisionResult struct {
	Server   *models.Server `json:"server"`
	Upstream *client.Server `json:"pelican_server"`
	Attempts int            `json:"attempts"`
}

// Provision creates a server for the caller. When an order is referenced the
// caller must own it (or be admin) and it must be paid.
func (s *ServerService) Provision(ctx context.Context, p *auth.Principal, in ProvisionInput) (*ProvisionResult, error) {
	owner := p.UserID
	if in.OwnerID != "" && p.IsAdmin() {
		owner = in.OwnerID
	}

	var order *models.Order
	if in.OrderID != "" {
		o, err := s.orders.Get(ctx, in.OrderID)
		if err != nil {
			return nil, notFound(err, "order")
		}
		if !p.CanAccess(o.UserID) {
			return nil, apperr.Forbidden("order belongs to another user")
		}
		order = o
		owner = o.UserID
	}

	if in.ServerID != "" {
		existing, err := s.servers.Get(ctx, in.ServerID)
		if err != nil {
			return nil, notFound(err, "server")
		}
		if !p.CanAccess(existing.UserID) {
			return nil, apperr.Forbidden("server belongs to another user")
		}
	}

	return s.provision(ctx, owner, order, in)
}

// ProvisionOrder provisions the server bought with order on behalf of its
// owner. Used by billing callbacks, which carry no user token.
func (s *ServerService) ProvisionOrder(ctx context.Context, order *models.Order, nodeID string, eggID int) (*ProvisionResult, error) {
	return s.provision(ctx, order.UserID, order, ProvisionInput{NodeID: nodeID, EggID: eggID})
}

func (s *ServerService) provision(ctx context.Context, owner string, order *models.Order, in ProvisionInput) (res *ProvisionResult, err error) {
	defer func() {
		if err != nil {
			metrics.ObserveProvision(metrics.OutcomeFailure)
		} else {
			metrics.ObserveProvision(metrics.OutcomeSuccess)
		}
	}()

	if order != nil {
		if !order.Paid {
			return nil, apperr.ErrOrderUnpaid
		}
		if order.Status == models.OrderCancelled {
			return nil, apperr.ErrOrderCancelled
		}
		if order.ServerID != nil {
			return nil, apperr.ErrOrderProvisioned
		}
		in = fromOrder(in, order)
	}
	if in.CalloutID != "" {
		c, err := s.callouts.Get(ctx, in.CalloutID)
		if err != nil {
			return nil, notFound(err, "callout")
		}
		in, err = fromCallout(in, c)
		if err != nil {
			return nil, err
		}
	}
	in = s.withDefaults(in)

	if in.NodeID == "" {
		return nil, apperr.Invalid("node_id is required")
	}
	if in.EggID <= 0 {
		return nil, apperr.Invalid("egg_id is required")
	}
	location, err := strconv.Atoi(in.NodeID)
	if err != nil {
		return nil, apperr.Invalid("node_id must be numeric")
	}

	log := s.log.With().Str("owner", owner).Str("node_id", in.NodeID).Int("egg_id", in.EggID).Logger()

	allocs, err := s.panel.ListAllocations(ctx, in.NodeID)
	if err != nil {
		return nil, upstream(err, "list node allocations")
	}
	alloc, ok := firstFree(allocs)
	if !ok {
		log.Warn().Int("allocations", len(allocs)).Msg("no free allocation")
		return nil, apperr.ErrNoFreeAllocation
	}

	payload := &client.CreateServerRequest{
		Name:        in.Name,
		ExternalID:  fmt.Sprintf("nexus-%s-%s", owner, uuid.NewString()),
		Description: serverDesc,
		User:        s.pelicanUser(ctx, owner),
		Egg:         in.EggID,
		DockerImage: in.DockerImage,
		Startup:     in.Startup,
		Environment: in.Environment,
		Limits: client.Limits{
			Memory: in.RAM,
			Swap:   swapUnlimited,
			Disk:   in.Disk,
			IO:     defaultIO,
			CPU:    in.CPU,
		},
		FeatureLimits: client.FeatureLimits{
			Databases:   1,
			Allocations: 1,
			Backups:     s.cfg.BackupLimit,
		},
		Allocation: client.AllocationSpec{Default: alloc.ID},
		Deploy: client.DeploySpec{
			Locations:   []int{location},
			DedicatedIP: false,
			PortRange:   []string{},
		},
		StartOnCompletion: true,
	}

	row, err := s.placeholder(ctx, owner, in)
	if err != nil {
		return nil, err
	}
	s.record(ctx, row.ID, models.LogProvisionStarted, "pending", "provisioning on node "+in.NodeID, map[string]any{
		"node_id":       in.NodeID,
		"egg_id":        in.EggID,
		"allocation_id": alloc.ID,
	})

	attempts := 0
	var created *client.Server
	policy := retry.Policy{Attempts: s.cfg.Attempts, Backoff: s.cfg.Backoff}
	err = retry.DoNotify(ctx, policy, client.IsTransient, func(ctx context.Context, attempt int) error {
		attempts = attempt
		var err error
		created, err = s.panel.CreateServer(ctx, payload)
		return err
	}, func(attempt int, err error) {
		metrics.ObserveProvisionRetry()
		log.Warn().Err(err).Int("attempt", attempt).Msg("create server failed, retrying")
		s.record(ctx, row.ID, models.LogProvisionRetry, "retrying", err.Error(), map[string]any{"attempt": attempt})
	})
	if err != nil {
		log.Error().Err(err).Int("attempts", attempts).Str("server_id", row.ID).Msg("create server failed")
		if serr := s.servers.SetStatus(ctx, row.ID, models.ServerFailed); serr != nil {
			log.Error().Err(serr).Str("server_id", row.ID).Msg("mark server failed")
		}
		s.record(ctx, row.ID, models.LogProvisionFailed, "failed", err.Error(), map[string]any{"attempts": attempts})
		return nil, upstream(err, "create server on panel")
	}

	status := models.ServerInstalling
	if created.Status != nil && *created.Status != "" {
		status = *created.Status
	}
	update := models.ServerProvisioned{
		PelicanServerID: strconv.Itoa(created.ID),
		Status:          status,
		RAMMB:           in.RAM,
		CPUPct:          in.CPU,
		DiskMB:          in.Disk,
		EggID:           in.EggID,
		NodeID:          in.NodeID,
	}
	if err := s.servers.MarkProvisioned(ctx, row.ID, update); err != nil {
		return nil, fmt.Errorf("record provisioned server: %w", err)
	}
	s.record(ctx, row.ID, models.LogProvisioned, "success", "created on panel", map[string]any{
		"pelican_server_id": created.ID,
		"attempts":          attempts,
	})

	if order != nil {
		serverID := row.ID
		processing := models.OrderProcessing
		if _, err := s.orders.ApplyBilling(ctx, order.ID, models.OrderBillingUpdate{ServerID: &serverID, Status: &processing}); err != nil {
			log.Error().Err(err).Str("order_id", order.ID).Msg("link order to server")
		}
	}

	fresh, err := s.servers.Get(ctx, row.ID)
	if err != nil {
		return nil, fmt.Errorf("reload server: %w", err)
	}
	log.Info().Str("server_id", row.ID).Int("pelican_id", created.ID).Int("attempts", attempts).Msg("server provisioned")
	return &ProvisionResult{Server: fresh, Upstream: created, Attempts: attempts}, nil
}

func (s *ServerService) placeholder(ctx context.Context, owner string, in ProvisionInput) (*models.Server, error) {
	if in.ServerID != "" {
		row, err := s.servers.Get(ctx, in.ServerID)
		if err != nil {
			return nil, notFound(err, "server")
		}
		return row, nil
	}
	row := &models.Server{
		UserID:   owner,
		Name:     in.Name,
		Location: "default",
		NodeID:   in.NodeID,
		EggID:    in.EggID,
		Status:   models.ServerCreating,
		RAMMB:    in.RAM,
		CPUPct:   in.CPU,
		DiskMB:   in.Disk,
	}
	if err := s.servers.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("create server row: %w", err)
	}
	return row, nil
}

func (s *ServerService) pelicanUser(ctx context.Context, owner string) int {
	profile, err := s.profiles.GetByAuthID(ctx, owner)
	if err == nil && profile.PelicanUserID != nil {
		return *profile.PelicanUserID
	}
	return s.cfg.DefaultPelicanID
}

func (s *ServerService) withDefaults(in ProvisionInput) ProvisionInput {
	if in.RAM <= 0 {
		in.RAM = models.DefaultRAM
	}
	if in.CPU <= 0 {
		in.CPU = models.DefaultCPU
	}
	if in.Disk <= 0 {
		in.Disk = models.DefaultDisk
	}
	if in.DockerImage == "" {
		in.DockerImage = s.cfg.DockerImage
	}
	if in.Startup == "" {
		in.Startup = s.cfg.Startup
	}
	if in.Environment == nil {
		in.Environment = map[string]any{}
	}
	if in.Name == "" {
		in.Name = "Nexus Server"
	}
	return in
}

func fromOrder(in ProvisionInput, o *models.Order) ProvisionInput {
	if in.RAM <= 0 {
		in.RAM = o.RAM
	}
	if in.CPU <= 0 {
		in.CPU = o.CPU
	}
	if in.Disk <= 0 {
		in.Disk = o.Disk
	}
	if in.Name == "" {
		in.Name = o.Package + " Server"
	}
	return in
}

func fromCallout(in ProvisionInput, c *models.Callout) (ProvisionInput, error) {
	if in.EggID <= 0 {
		in.EggID = c.EggID
	}
	if in.DockerImage == "" {
		in.DockerImage = c.DockerImage
	}
	if in.Startup == "" {
		in.Startup = c.StartupCommand
	}
	if in.RAM <= 0 {
		in.RAM = c.DefaultRAM
	}
	if in.CPU <= 0 {
		in.CPU = c.DefaultCPU
	}
	if in.Disk <= 0 {
		in.Disk = c.DefaultDisk
	}
	if in.NodeID == "" && c.NodeID != nil {
		in.NodeID = *c.NodeID
	}
	if in.Name == "" {
		in.Name = c.Label
	}
	if in.Environment == nil && len(c.Environment) > 0 {
		env := map[string]any{}
		if err := json.Unmarshal(c.Environment, &env); err != nil {
			return in, apperr.Invalid("callout environment is not an object")
		}
		in.Environment = env
	}
	return in, nil
}

func firstFree(allocs []client.Allocation) (client.Allocation, bool) {
	for _, a := range allocs {
		if !a.Assigned {
			return a, true
		}
	}
	return client.Allocation{}, false
}

// SyncResult counts the outcome of a status sync.
type SyncResult struct {
	Total  int `json:"total"`
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// SyncStatuses refreshes every linked server from the panel. A failure on
// one server is logged and counted; it never aborts the rest.
func (s *ServerService) SyncStatuses(ctx context.Context) SyncResult {
	var res SyncResult
	rows, err := s.servers.ListLinked(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("list linked servers")
		return res
	}
	res.Total = len(rows)

	for _, row := range rows {
		if ctx.Err() != nil {
			res.Failed += res.Total - res.Synced - res.Failed
			break
		}
		_, err := s.refresh(ctx, row)
		metrics.ObserveSyncItem("servers", err)
		if err != nil {
			res.Failed++
			s.log.Warn().Err(err).Str("server_id", row.ID).Str("pelican_id", *row.PelicanServerID).Msg("sync server status")
			continue
		}
		res.Synced++
	}
	s.log.Info().Int("total", res.Total).Int("synced", res.Synced).Int("failed", res.Failed).Msg("server status sync finished")
	return res
}

// RefreshStatus syncs one server the caller can access and returns the
// panel's view of it.
func (s *ServerService) RefreshStatus(ctx context.Context, p *auth.Principal, ref ServerRef) (*client.Server, error) {
	row, err := s.resolve(ctx, p, ref)
	if err != nil {
		return nil, err
	}
	if row.PelicanServerID == nil {
		return nil, apperr.Invalid("server has not been created on the panel yet")
	}
	upstreamServer, err := s.refresh(ctx, row)
	if err != nil {
		return nil, upstream(err, "get server status")
	}
	return upstreamServer, nil
}

func (s *ServerService) refresh(ctx context.Context, row *models.Server) (*client.Server, error) {
	remote, err := s.panel.GetServer(ctx, *row.PelicanServerID)
	if err != nil {
		return nil, err
	}
	if err := s.servers.UpdateLiveStats(ctx, row.ID, LiveStats(remote)); err != nil {
		return nil, err
	}
	return remote, nil
}

// LiveStats formats the panel's usage figures for display.
func LiveStats(remote *client.Server) models.ServerLiveStats {
	st := models.ServerLiveStats{Status: models.ServerUnknown}
	if remote.Status != nil && *remote.Status != "" {
		st.Status = *remote.Status
	}
	var r client.ServerResources
	if remote.Resources != nil {
		r = *remote.Resources
	}
	st.CPUUsage = fmt.Sprintf("%d%%", int64(math.Round(r.CPU)))
	st.MemoryUsage = fmt.Sprintf("%dMB", int64(math.Round(r.Memory/bytesPerMiB)))
	st.Uptime = fmt.Sprintf("%d days", int64(math.Floor(r.Uptime/secondsPerDay)))
	return st
}

// ImportResult counts panel servers seen and imported.
type ImportResult struct {
	Upstream int `json:"synced"`
	Imported int `json:"new_servers"`
}

// ImportFromPanel inserts rows for panel servers that are not tracked
// locally. Imported rows are owned by the caller until an admin reassigns
// them.
func (s *ServerService) ImportFromPanel(ctx context.Context, p *auth.Principal) (*ImportResult, error) {
	remote, err := s.panel.ListServers(ctx)
	if err != nil {
		return nil, upstream(err, "list panel servers")
	}
	known, err := s.servers.PelicanIDs(ctx)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{Upstream: len(remote)}
	for _, r := range remote {
		pid := strconv.Itoa(r.ID)
		if known[pid] {
			continue
		}
		status := models.ServerUnknown
		if r.Status != nil && *r.Status != "" {
			status = *r.Status
		}
		row := &models.Server{
			UserID:          p.UserID,
			Name:            r.Name,
			Location:        models.ImportedLocation,
			NodeID:          strconv.Itoa(r.Node),
			EggID:           r.Egg,
			PelicanServerID: &pid,
			Status:          status,
			RAMMB:           orDefault(r.Limits.Memory, models.DefaultRAM),
			CPUPct:          orDefault(r.Limits.CPU, models.DefaultCPU),
			DiskMB:          orDefault(r.Limits.Disk, models.DefaultDisk),
		}
		if err := s.servers.Create(ctx, row); err != nil {
			return res, fmt.Errorf("import server %s: %w", pid, err)
		}
		known[pid] = true
		res.Imported++
	}
	s.log.Info().Int("upstream", res.Upstream).Int("imported", res.Imported).Msg("imported panel servers")
	return res, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// ServerRef identifies a server by local id or panel id.
type ServerRef struct {
	ServerID        string
	PelicanServerID string
}

func (s *ServerService) resolve(ctx context.Context, p *auth.Principal, ref ServerRef) (*models.Server, error) {
	var (
		row *models.Server
		err error
	)
	switch {
	case ref.ServerID != "":
		row, err = s.servers.Get(ctx, ref.ServerID)
	case ref.PelicanServerID != "":
		row, err = s.servers.GetByPelicanID(ctx, ref.PelicanServerID)
	default:
		return nil, apperr.Invalid("server_id or pelican_server_id is required")
	}
	if err != nil {
		return nil, notFound(err, "server")
	}
	if !p.CanAccess(row.UserID) {
		return nil, apperr.Forbidden("server belongs to another user")
	}
	return row, nil
}

// Power sends a power signal and records the expected transition.
func (s *ServerService) Power(ctx context.Context, p *auth.Principal, ref ServerRef, signal string) (*models.Server, error) {
	next, ok := powerStatus[signal]
	if !ok {
		return nil, apperr.Invalid("power_action must be one of start, stop, restart, kill")
	}
	row, err := s.resolve(ctx, p, ref)
	if err != nil {
		return nil, err
	}
	if row.PelicanServerID == nil {
		return nil, apperr.Invalid("server has not been created on the panel yet")
	}
	if err := s.panel.SendPowerSignal(ctx, *row.PelicanServerID, signal); err != nil {
		return nil, upstream(err, "send power signal")
	}
	if err := s.servers.SetStatus(ctx, row.ID, next); err != nil {
		return nil, err
	}
	row.Status = next
	s.record(ctx, row.ID, models.LogPowerSignal, "success", signal, map[string]any{"signal": signal, "status": next})
	s.log.Info().Str("server_id", row.ID).Str("signal", signal).Msg("power signal sent")
	return row, nil
}

// Delete removes the server from the panel, then the local row.
func (s *ServerService) Delete(ctx context.Context, p *auth.Principal, ref ServerRef) error {
	row, err := s.resolve(ctx, p, ref)
	if err != nil {
		return err
	}
	if row.PelicanServerID != nil {
		if err := s.panel.DeleteServer(ctx, *row.PelicanServerID); err != nil {
			if client.StatusCode(err) != 404 {
				return upstream(err, "delete server on panel")
			}
			s.log.Warn().Str("server_id", row.ID).Msg("server already gone from panel")
		}
	}
	if err := s.servers.Delete(ctx, row.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	s.log.Info().Str("server_id", row.ID).Msg("server deleted")
	return nil
}

// ListMine returns the caller's servers, or every server for admins.
func (s *ServerService) ListMine(ctx context.Context, p *auth.Principal) (any, error) {
	if p.IsAdmin() {
		return s.servers.ListWithOwners(ctx)
	}
	return s.servers.ListByUser(ctx, p.UserID)
}

// ListAll returns every server with its owner.
func (s *ServerService) ListAll(ctx context.Context) ([]*models.ServerWithOwner, error) {
	return s.servers.ListWithOwners(ctx)
}

// ListPanelServers returns the panel's servers.
func (s *ServerService) ListPanelServers(ctx context.Context) ([]client.Server, error) {
	out, err := s.panel.ListServers(ctx)
	return out, upstream(err, "list panel servers")
}

// ListNests passes through the panel's nests.
func (s *ServerService) ListNests(ctx context.Context) (json.RawMessage, error) {
	out, err := s.panel.ListNests(ctx)
	return out, upstream(err, "list nests")
}

// ListEggs passes through the panel's eggs.
func (s *ServerService) ListEggs(ctx context.Context) (json.RawMessage, error) {
	out, err := s.panel.ListEggs(ctx)
	return out, upstream(err, "list eggs")
}

// RunSync runs SyncStatuses every interval until ctx ends.
func (s *ServerService) RunSync(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncStatuses(ctx)
		}
	}
}

// record appends to the server's history. History is best effort; a failed
// write never fails the operation it describes.
func (s *ServerService) record(ctx context.Context, serverID, action, status, message string, meta map[string]any) {
	if s.events == nil {
		return
	}
	err := s.events.Record(ctx, &models.ServerLog{
		ServerID: serverID,
		Action:   action,
		Status:   status,
		Message:  message,
		Metadata: meta,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("server_id", serverID).Str("action", action).Msg("record server log")
	}
}

// History returns the newest lifecycle entries of a server the caller can
// access.
func (s *ServerService) History(ctx context.Context, p *auth.Principal, ref ServerRef, limit int) ([]*models.ServerLog, error) {
	row, err := s.resolve(ctx, p, ref)
	if err != nil {
		return nil, err
	}
	if s.events == nil {
		return []*models.ServerLog{}, nil
	}
	return s.events.ListByServer(ctx, row.ID, limit)
}
