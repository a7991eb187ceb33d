// Package storetest provides in-memory implementations of the service
// ports for tests. Every write bumps a shared mutation counter so tests can
// assert that a rejected request left storage untouched.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nexushost/portal/internal/models"
	"github.com/nexushost/portal/internal/repository"
)

// Mutations counts writes across every fake in a Stores.
type Mutations struct{ n atomic.Int64 }

// Count returns the number of writes so far.
func (m *Mutations) Count() int { return int(m.n.Load()) }

func (m *Mutations) inc() { m.n.Add(1) }

// Stores bundles one fake per port around a shared mutation counter.
type Stores struct {
	Mutations *Mutations
	Profiles  *Profiles
	Servers   *Servers
	Orders    *Orders
	Callouts  *Callouts
	Tickets   *Tickets
	Nodes     *Nodes
	APIKeys   *APIKeys
	Metrics   *Metrics
	Logs      *ServerLogs
}

// New returns empty fakes sharing one mutation counter.
func New() *Stores {
	m := &Mutations{}
	s := &Stores{
		Mutations: m,
		Profiles:  &Profiles{mut: m, rows: map[string]*models.Profile{}},
		Orders:    &Orders{mut: m, rows: map[string]*models.Order{}},
		Callouts:  &Callouts{mut: m, rows: map[string]*models.Callout{}},
		Tickets:   &Tickets{mut: m, rows: map[string]*models.Ticket{}},
		Nodes:     &Nodes{mut: m, rows: map[string]*models.Node{}},
		APIKeys:   &APIKeys{mut: m},
		Logs:      &ServerLogs{mut: m},
	}
	s.Servers = &Servers{mut: m, rows: map[string]*models.Server{}, profiles: s.Profiles}
	s.Metrics = &Metrics{mut: m, stores: s}
	return s
}

func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func byCreatedDesc[T any](rows []T, created func(T) time.Time) []T {
	sort.SliceStable(rows, func(i, j int) bool { return created(rows[i]).After(created(rows[j])) })
	return rows
}

// Profiles is keyed by auth id.
type Profiles struct {
	mu   sync.Mutex
	mut  *Mutations
	rows map[string]*models.Profile
}

// Seed inserts p without counting a mutation.
func (s *Profiles) Seed(p *models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = newID(p.ID)
	if p.Status == "" {
		p.Status = models.ProfileActive
	}
	if p.Role == "" {
		p.Role = models.RoleUser
	}
	cp := *p
	s.rows[p.AuthID] = &cp
}

func (s *Profiles) GetByAuthID(_ context.Context, authID string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[authID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Profiles) GetByEmail(_ context.Context, email string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.rows {
		if strings.EqualFold(p.Email, email) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Profiles) List(_ context.Context) ([]*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Profile, 0, len(s.rows))
	for _, p := range s.rows {
		cp := *p
		out = append(out, &cp)
	}
	return byCreatedDesc(out, func(p *models.Profile) time.Time { return p.CreatedAt }), nil
}

func (s *Profiles) Create(_ context.Context, p *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[p.AuthID]; ok {
		return repository.ErrConflict
	}
	p.ID = newID(p.ID)
	if p.Role == "" {
		p.Role = models.RoleUser
	}
	if p.Status == "" {
		p.Status = models.ProfileActive
	}
	p.CreatedAt, p.UpdatedAt = time.Now(), time.Now()
	cp := *p
	s.rows[p.AuthID] = &cp
	s.mut.inc()
	return nil
}

func (s *Profiles) Update(_ context.Context, authID string, u models.ProfileUpdate) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[authID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if u.FirstName != nil {
		p.FirstName = u.FirstName
	}
	if u.LastName != nil {
		p.LastName = u.LastName
	}
	if u.Email != nil {
		p.Email = *u.Email
	}
	if u.Role != nil {
		p.Role = *u.Role
	}
	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.PelicanUserID != nil {
		p.PelicanUserID = u.PelicanUserID
	}
	p.UpdatedAt = time.Now()
	s.mut.inc()
	cp := *p
	return &cp, nil
}

func (s *Profiles) TouchLastLogin(_ context.Context, authID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.rows[authID]; ok {
		now := time.Now()
		p.LastLogin = &now
		s.mut.inc()
	}
	return nil
}

func (s *Profiles) Delete(_ context.Context, authID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[authID]; !ok {
		return repository.ErrNotFound
	}
	delete(s.rows, authID)
	s.mut.inc()
	return nil
}

func (s *Profiles) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
