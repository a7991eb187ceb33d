package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/nexushost/portal/internal/models"
	"github.com/nexushost/portal/internal/repository"
)

type Callouts struct {
	mu   sync.Mutex
	mut  *Mutations
	rows map[string]*models.Callout
}

func (s *Callouts) ListActive(_ context.Context) ([]*models.Callout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Callout
	for _, c := range s.rows {
		if c.IsActive {
			cp := *c
			out = append(out, &cp)
		}
	}
	return byCreatedDesc(out, func(c *models.Callout) time.Time { return c.CreatedAt }), nil
}

func (s *Callouts) Get(_ context.Context, id string) (*models.Callout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Callouts) Create(_ context.Context, c *models.Callout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = newID(c.ID)
	if len(c.Environment) == 0 {
		c.Environment = []byte("{}")
	}
	c.CreatedAt, c.UpdatedAt = time.Now(), time.Now()
	cp := *c
	s.rows[c.ID] = &cp
	s.mut.inc()
	return nil
}

func (s *Callouts) Update(_ context.Context, id string, u models.CalloutUpdate) (*models.Callout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if u.Label != nil {
		c.Label = *u.Label
	}
	if u.Description != nil {
		c.Description = u.Description
	}
	if u.EggID != nil {
		c.EggID = *u.EggID
	}
	if u.DockerImage != nil {
		c.DockerImage = *u.DockerImage
	}
	if u.StartupCommand != nil {
		c.StartupCommand = *u.StartupCommand
	}
	if len(u.Environment) > 0 {
		c.Environment = u.Environment
	}
	if u.DefaultRAM != nil {
		c.DefaultRAM = *u.DefaultRAM
	}
	if u.DefaultCPU != nil {
		c.DefaultCPU = *u.DefaultCPU
	}
	if u.DefaultDisk != nil {
		c.DefaultDisk = *u.DefaultDisk
	}
	if u.NodeID != nil {
		c.NodeID = u.NodeID
	}
	if u.IsActive != nil {
		c.IsActive = *u.IsActive
	}
	c.UpdatedAt = time.Now()
	s.mut.inc()
	cp := *c
	return &cp, nil
}

func (s *Callouts) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.IsActive = false
	s.mut.inc()
	return nil
}

type Tickets struct {
	mu   sync.Mutex
	mut  *Mutations
	rows map[string]*models.Ticket
}

func (s *Tickets) Create(_ context.Context, t *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = newID(t.ID)
	t.CreatedAt, t.UpdatedAt = time.Now(), time.Now()
	cp := *t
	s.rows[t.ID] = &cp
	s.mut.inc()
	return nil
}

func (s *Tickets) Get(_ context.Context, id string) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Tickets) list(keep func(*models.Ticket) bool) []*models.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Ticket
	for _, t := range s.rows {
		if keep(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return byCreatedDesc(out, func(t *models.Ticket) time.Time { return t.CreatedAt })
}

func (s *Tickets) List(_ context.Context) ([]*models.Ticket, error) {
	return s.list(func(*models.Ticket) bool { return true }), nil
}

func (s *Tickets) ListByUser(_ context.Context, userID string) ([]*models.Ticket, error) {
	return s.list(func(t *models.Ticket) bool { return t.UserID == userID }), nil
}

func (s *Tickets) Update(_ context.Context, id string, u models.TicketUpdate) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.AssignedTo != nil {
		t.AssignedTo = u.AssignedTo
	}
	t.UpdatedAt = time.Now()
	s.mut.inc()
	cp := *t
	return &cp, nil
}

type Nodes struct {
	mu           sync.Mutex
	mut          *Mutations
	rows         map[string]*models.Node
	reservations []*models.NodeReservation
}

func (s *Nodes) Get(id string) (*models.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[id]
	if !ok {
		return nil, false
	}
	cp := *n
	return &cp, true
}

func (s *Nodes) Upsert(_ context.Context, n *models.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.rows[n.ID]; ok {
		n.ReservedBy = existing.ReservedBy
	}
	n.SyncedAt = time.Now()
	cp := *n
	s.rows[n.ID] = &cp
	s.mut.inc()
	return nil
}

func (s *Nodes) ActiveReservations(_ context.Context) (map[string]*models.NodeReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]*models.NodeReservation{}
	for _, r := range s.reservations {
		if r.Status == models.ReservationActive {
			cp := *r
			out[r.NodeID] = &cp
		}
	}
	return out, nil
}

func (s *Nodes) Reserve(_ context.Context, res *models.NodeReservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reservations {
		if r.NodeID == res.NodeID && r.Status == models.ReservationActive {
			return repository.ErrConflict
		}
	}
	res.ID = newID(res.ID)
	res.Status = models.ReservationActive
	res.ReservedAt = time.Now()
	cp := *res
	s.reservations = append(s.reservations, &cp)
	if n, ok := s.rows[res.NodeID]; ok {
		uid := res.UserID
		n.ReservedBy = &uid
	}
	s.mut.inc()
	return nil
}

func (s *Nodes) Release(_ context.Context, nodeID string) (*models.NodeReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reservations {
		if r.NodeID == nodeID && r.Status == models.ReservationActive {
			now := time.Now()
			r.Status = models.ReservationReleased
			r.ReleasedAt = &now
			if n, ok := s.rows[nodeID]; ok {
				n.ReservedBy = nil
			}
			s.mut.inc()
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

type APIKeys struct {
	mu   sync.Mutex
	mut  *Mutations
	rows []*models.APIKey
}

func (s *APIKeys) List(_ context.Context) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.APIKey, 0, len(s.rows))
	for _, k := range s.rows {
		cp := *k
		out = append(out, &cp)
	}
	return out, nil
}

func (s *APIKeys) GetActive(_ context.Context, service string) (*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.rows {
		if k.Service == service && k.IsActive {
			cp := *k
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *APIKeys) Upsert(_ context.Context, service, key string, description *string) (*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.rows {
		if k.Service == service {
			k.IsActive = false
		}
	}
	k := &models.APIKey{ID: newID(""), Service: service, APIKey: key, Description: description, IsActive: true, CreatedAt: time.Now()}
	s.rows = append(s.rows, k)
	s.mut.inc()
	cp := *k
	return &cp, nil
}

func (s *APIKeys) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.rows {
		if k.ID == id {
			k.IsActive = false
			s.mut.inc()
			return nil
		}
	}
	return repository.ErrNotFound
}

type Metrics struct {
	mu     sync.Mutex
	mut    *Mutations
	rows   []*models.SystemMetric
	stores *Stores
}

func (s *Metrics) Record(_ context.Context, m *models.SystemMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = newID(m.ID)
	m.RecordedAt = time.Now()
	cp := *m
	s.rows = append(s.rows, &cp)
	s.mut.inc()
	return nil
}

func (s *Metrics) Recent(_ context.Context, limit int) ([]*models.SystemMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.SystemMetric
	for i := len(s.rows) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *s.rows[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Metrics) Counts(ctx context.Context) (models.Counts, error) {
	c := models.Counts{
		Servers: s.stores.Servers.Len(),
		Users:   s.stores.Profiles.Len(),
		Orders:  s.stores.Orders.Len(),
	}
	orders, _ := s.stores.Orders.List(ctx)
	for _, o := range orders {
		if o.Status == models.OrderCompleted {
			c.Revenue += o.Amount
		}
	}
	return c, nil
}
