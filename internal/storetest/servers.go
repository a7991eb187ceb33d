package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/nexushost/portal/internal/models"
	"github.com/nexushost/portal/internal/repository"
)

type Servers struct {
	mu       sync.Mutex
	mut      *Mutations
	rows     map[string]*models.Server
	profiles *Profiles
}

func (s *Servers) Seed(srv *models.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv.ID = newID(srv.ID)
	cp := *srv
	s.rows[srv.ID] = &cp
}

func (s *Servers) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *Servers) Create(_ context.Context, srv *models.Server) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv.ID = newID(srv.ID)
	srv.CreatedAt, srv.UpdatedAt = time.Now(), time.Now()
	cp := *srv
	s.rows[srv.ID] = &cp
	s.mut.inc()
	return nil
}

func (s *Servers) Get(_ context.Context, id string) (*models.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *srv
	return &cp, nil
}

func (s *Servers) GetByPelicanID(_ context.Context, pelicanID string) (*models.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, srv := range s.rows {
		if srv.PelicanServerID != nil && *srv.PelicanServerID == pelicanID {
			cp := *srv
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Servers) filter(keep func(*models.Server) bool) []*models.Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Server
	for _, srv := range s.rows {
		if keep(srv) {
			cp := *srv
			out = append(out, &cp)
		}
	}
	return byCreatedDesc(out, func(s *models.Server) time.Time { return s.CreatedAt })
}

func (s *Servers) ListByUser(_ context.Context, userID string) ([]*models.Server, error) {
	return s.filter(func(srv *models.Server) bool { return srv.UserID == userID }), nil
}

func (s *Servers) ListLinked(_ context.Context) ([]*models.Server, error) {
	return s.filter(func(srv *models.Server) bool { return srv.PelicanServerID != nil }), nil
}

func (s *Servers) ListWithOwners(ctx context.Context) ([]*models.ServerWithOwner, error) {
	all := s.filter(func(*models.Server) bool { return true })
	out := make([]*models.ServerWithOwner, 0, len(all))
	for _, srv := range all {
		so := &models.ServerWithOwner{Server: *srv}
		if p, err := s.profiles.GetByAuthID(ctx, srv.UserID); err == nil {
			so.OwnerName = p.DisplayName()
			so.OwnerEmail = p.Email
		}
		out = append(out, so)
	}
	return out, nil
}

func (s *Servers) PelicanIDs(_ context.Context) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := map[string]bool{}
	for _, srv := range s.rows {
		if srv.PelicanServerID != nil {
			ids[*srv.PelicanServerID] = true
		}
	}
	return ids, nil
}

func (s *Servers) update(id string, fn func(*models.Server)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(srv)
	srv.UpdatedAt = time.Now()
	s.mut.inc()
	return nil
}

func (s *Servers) MarkProvisioned(_ context.Context, id string, p models.ServerProvisioned) error {
	return s.update(id, func(srv *models.Server) {
		pid := p.PelicanServerID
		srv.PelicanServerID = &pid
		srv.Status = p.Status
		srv.RAMMB, srv.CPUPct, srv.DiskMB = p.RAMMB, p.CPUPct, p.DiskMB
		srv.EggID, srv.NodeID = p.EggID, p.NodeID
	})
}

func (s *Servers) SetStatus(_ context.Context, id, status string) error {
	return s.update(id, func(srv *models.Server) { srv.Status = status })
}

func (s *Servers) UpdateLiveStats(_ context.Context, id string, st models.ServerLiveStats) error {
	return s.update(id, func(srv *models.Server) {
		srv.Status = st.Status
		srv.CPUUsage, srv.MemoryUsage, srv.Uptime = &st.CPUUsage, &st.MemoryUsage, &st.Uptime
	})
}

func (s *Servers) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.rows, id)
	s.mut.inc()
	return nil
}

func (s *Servers) UsageByNode(_ context.Context) (map[string]models.NodeUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	usage := map[string]models.NodeUsage{}
	for _, srv := range s.rows {
		u := usage[srv.NodeID]
		u.NodeID = srv.NodeID
		u.RAMMB += srv.RAMMB
		u.CPUPct += srv.CPUPct
		u.DiskMB += srv.DiskMB
		u.TotalServers++
		if srv.Status != models.ServerFailed && srv.Status != "stopped" {
			u.ActiveServers++
		}
		usage[srv.NodeID] = u
	}
	return usage, nil
}

// ServerLogs keeps entries in insertion order.
type ServerLogs struct {
	mu   sync.Mutex
	mut  *Mutations
	rows []*models.ServerLog
}

func (s *ServerLogs) Record(_ context.Context, e *models.ServerLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = newID(e.ID)
	e.CreatedAt = time.Now()
	cp := *e
	s.rows = append(s.rows, &cp)
	s.mut.inc()
	return nil
}

func (s *ServerLogs) ListByServer(_ context.Context, serverID string, limit int) ([]*models.ServerLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.ServerLog{}
	for i := len(s.rows) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if s.rows[i].ServerID == serverID {
			cp := *s.rows[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Actions lists the recorded actions for a server, oldest first.
func (s *ServerLogs) Actions(serverID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.rows {
		if e.ServerID == serverID {
			out = append(out, e.Action)
		}
	}
	return out
}
