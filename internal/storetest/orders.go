package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/nexushost/portal/internal/models"
	"github.com/nexushost/portal/internal/repository"
)

type Orders struct {
	mu   sync.Mutex
	mut  *Mutations
	rows map[string]*models.Order
}

func (s *Orders) Seed(o *models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.ID = newID(o.ID)
	cp := *o
	s.rows[o.ID] = &cp
}

func (s *Orders) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *Orders) Create(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ForpsiOrderID != nil {
		for _, existing := range s.rows {
			if existing.ForpsiOrderID != nil && *existing.ForpsiOrderID == *o.ForpsiOrderID {
				return repository.ErrConflict
			}
		}
	}
	o.ID = newID(o.ID)
	o.CreatedAt, o.UpdatedAt = time.Now(), time.Now()
	cp := *o
	s.rows[o.ID] = &cp
	s.mut.inc()
	return nil
}

func (s *Orders) Get(_ context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *Orders) GetByForpsiID(_ context.Context, forpsiID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.rows {
		if o.ForpsiOrderID != nil && *o.ForpsiOrderID == forpsiID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Orders) filter(keep func(*models.Order) bool) []*models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Order
	for _, o := range s.rows {
		if keep(o) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return byCreatedDesc(out, func(o *models.Order) time.Time { return o.CreatedAt })
}

func (s *Orders) List(_ context.Context) ([]*models.Order, error) {
	return s.filter(func(*models.Order) bool { return true }), nil
}

func (s *Orders) ListByUser(_ context.Context, userID string) ([]*models.Order, error) {
	return s.filter(func(o *models.Order) bool { return o.UserID == userID }), nil
}

func (s *Orders) ListBilled(_ context.Context) ([]*models.Order, error) {
	return s.filter(func(o *models.Order) bool {
		return o.ForpsiOrderID != nil && o.Status != models.OrderCompleted
	}), nil
}

func (s *Orders) update(id string, fn func(*models.Order)) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	fn(o)
	o.UpdatedAt = time.Now()
	s.mut.inc()
	cp := *o
	return &cp, nil
}

func (s *Orders) MarkPaid(_ context.Context, id string) (*models.Order, error) {
	return s.update(id, func(o *models.Order) { o.Paid = true })
}

func (s *Orders) ApplyBilling(_ context.Context, id string, u models.OrderBillingUpdate) (*models.Order, error) {
	return s.update(id, func(o *models.Order) {
		if u.ForpsiOrderID != nil {
			o.ForpsiOrderID = u.ForpsiOrderID
		}
		if u.Status != nil {
			o.Status = *u.Status
		}
		if u.Paid != nil {
			o.Paid = *u.Paid
		}
		if u.ServerID != nil {
			o.ServerID = u.ServerID
		}
	})
}
