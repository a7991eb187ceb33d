package service

import (
	"context"
	"errors"
	"strings"
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

const forpsiKeyService = "forpsi"

// OrderProvisioner creates the server paid for by an order.
type OrderProvisioner interface {
	ProvisionOrder(ctx context.Context, order *models.Order, nodeID string, eggID int) (*ProvisionResult, error)
}

// OrderService manages orders and their billing provider state.
type OrderService struct {
	cfg         config.ProvisionConfig
	orders      OrderStore
	profiles    ProfileStore
	keys        APIKeyStore
	billing     BillingAPI
	provisioner OrderProvisioner
	log         zerolog.Logger
	now         func() time.Time
}

// NewOrderService creates a new order service.
func NewOrderService(
	cfg config.ProvisionConfig,
	orders OrderStore,
	profiles ProfileStore,
	keys APIKeyStore,
	billing BillingAPI,
	provisioner OrderProvisioner,
	log zerolog.Logger,
) *OrderService {
	return &OrderService{
		cfg:         cfg,
		orders:      orders,
		profiles:    profiles,
		keys:        keys,
		billing:     billing,
		provisioner: provisioner,
		log:         log.With().Str("component", "orders").Logger(),
		now:         time.Now,
	}
}

// CreateOrderInput describes a new order; zero values take the defaults.
type CreateOrderInput struct {
	Package string
	RAM     int
	CPU     int
	Disk    int
	Amount  float64
	Period  string
}

// Create records an unpaid order for the caller, valid for thirty days.
func (s *OrderService) Create(ctx context.Context, p *auth.Principal, in CreateOrderInput) (*models.Order, error) {
	o := s.newOrder(p.UserID, in)
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, err
	}
	s.log.Info().Str("order_id", o.ID).Str("user_id", o.UserID).Str("package", o.Package).Msg("order created")
	return o, nil
}

func (s *OrderService) newOrder(userID string, in CreateOrderInput) *models.Order {
	o := &models.Order{
		UserID:    userID,
		Package:   in.Package,
		RAM:       orDefault(in.RAM, models.DefaultRAM),
		CPU:       orDefault(in.CPU, models.DefaultCPU),
		Disk:      orDefault(in.Disk, models.DefaultDisk),
		Amount:    in.Amount,
		Period:    in.Period,
		Status:    models.OrderPending,
		ExpiresAt: s.expiry(),
	}
	if o.Package == "" {
		o.Package = models.DefaultPackage
	}
	if o.Period == "" {
		o.Period = "monthly"
	}
	return o
}

func (s *OrderService) expiry() time.Time {
	y, m, d := s.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, models.OrderTermDays)
}

// List returns the caller's orders, or all orders for admins.
func (s *OrderService) List(ctx context.Context, p *auth.Principal) ([]*models.Order, error) {
	if owner := p.OwnerFilter(); owner != "" {
		return s.orders.ListByUser(ctx, owner)
	}
	return s.orders.List(ctx)
}

// MarkPaid records payment for an order.
func (s *OrderService) MarkPaid(ctx context.Context, orderID string) (*models.Order, error) {
	o, err := s.orders.MarkPaid(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order")
	}
	s.log.Info().Str("order_id", orderID).Msg("order marked paid")
	return o, nil
}

func (s *OrderService) forpsiKey(ctx context.Context) (string, error) {
	if !s.billing.Configured() {
		return "", apperr.Invalid("Forpsi API not configured")
	}
	k, err := s.keys.GetActive(ctx, forpsiKeyService)
	if errors.Is(err, repository.ErrNotFound) {
		return "", apperr.Invalid("Forpsi API key not configured")
	}
	if err != nil {
		return "", err
	}
	return k.APIKey, nil
}

// ForwardOrderInput describes an order to place with Forpsi.
type ForwardOrderInput struct {
	OrderID string
	Service string
	Amount  float64
	Period  string
}

// Forward sends an order to Forpsi and stores the billing reference.
func (s *OrderService) Forward(ctx context.Context, p *auth.Principal, in ForwardOrderInput) (*client.ForpsiOrder, error) {
	o, err := s.orders.Get(ctx, in.OrderID)
	if err != nil {
		return nil, notFound(err, "order")
	}
	if !p.CanAccess(o.UserID) {
		return nil, apperr.Forbidden("order belongs to another user")
	}
	key, err := s.forpsiKey(ctx)
	if err != nil {
		return nil, err
	}

	req := &client.ForpsiOrderRequest{
		Service:       firstNonEmpty(in.Service, o.Package),
		Amount:        in.Amount,
		Period:        firstNonEmpty(in.Period, o.Period),
		CustomerEmail: p.Email,
		CustomerID:    p.UserID,
	}
	if req.Amount == 0 {
		req.Amount = o.Amount
	}
	out, err := s.billing.CreateOrder(ctx, key, req)
	if err != nil {
		return nil, upstream(err, "create Forpsi order")
	}

	status := firstNonEmpty(out.Status, models.OrderProcessing)
	update := models.OrderBillingUpdate{ForpsiOrderID: &out.OrderID, Status: &status}
	if _, err := s.orders.ApplyBilling(ctx, o.ID, update); err != nil {
		return nil, err
	}
	s.log.Info().Str("order_id", o.ID).Str("forpsi_order_id", out.OrderID).Msg("order forwarded to Forpsi")
	return out, nil
}

// billingUpdate keeps the local status when the provider omits one.
func billingUpdate(remote *client.ForpsiOrder) models.OrderBillingUpdate {
	u := models.OrderBillingUpdate{Paid: remote.Paid}
	if remote.Status != "" {
		status := remote.Status
		u.Status = &status
	}
	return u
}

// SyncBilling refreshes the status of every open billed order. Failures are
// logged per order.
func (s *OrderService) SyncBilling(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	key, err := s.forpsiKey(ctx)
	if err != nil {
		return res, err
	}
	orders, err := s.orders.ListBilled(ctx)
	if err != nil {
		return res, err
	}
	res.Total = len(orders)

	policy := retry.Policy{Attempts: s.cfg.Attempts, Backoff: s.cfg.Backoff}
	for _, o := range orders {
		var remote *client.ForpsiOrder
		err := retry.Do(ctx, policy, client.IsTransient, func(ctx context.Context, _ int) error {
			var err error
			remote, err = s.billing.GetOrder(ctx, key, *o.ForpsiOrderID)
			return err
		})
		if err == nil {
			_, err = s.orders.ApplyBilling(ctx, o.ID, billingUpdate(remote))
		}
		metrics.ObserveSyncItem("orders", err)
		if err != nil {
			res.Failed++
			s.log.Warn().Err(err).Str("order_id", o.ID).Msg("sync Forpsi order")
			continue
		}
		res.Synced++
	}
	return res, nil
}

// WebhookPayload is the body Forpsi posts when an order changes.
type WebhookPayload struct {
	OrderID       string  `json:"order_id" validate:"required"`
	Status        string  `json:"status"`
	Paid          *bool   `json:"paid"`
	CustomerEmail string  `json:"customer_email" validate:"omitempty,email"`
	CustomerName  string  `json:"customer_name"`
	Package       string  `json:"package"`
	RAM           int     `json:"ram" validate:"gte=0"`
	CPU           int     `json:"cpu" validate:"gte=0"`
	Disk          int     `json:"disk" validate:"gte=0"`
	Amount        float64 `json:"amount" validate:"gte=0"`
	Period        string  `json:"period"`
}

// WebhookResult reports what a webhook call changed.
type WebhookResult struct {
	OrderID        string `json:"order_id"`
	ProfileCreated bool   `json:"profile_created"`
	ServerID       string `json:"server_id,omitempty"`
	ProvisionError string `json:"provision_error,omitempty"`
}

// HandleWebhook applies a Forpsi order event. Unknown orders are created,
// along with a profile for unknown customers. A newly paid order is
// provisioned when auto-provisioning is configured.
func (s *OrderService) HandleWebhook(ctx context.Context, in *WebhookPayload) (*WebhookResult, error) {
	log := s.log.With().Str("forpsi_order_id", in.OrderID).Logger()
	res := &WebhookResult{}

	order, err := s.orders.GetByForpsiID(ctx, in.OrderID)
	wasPaid := false
	switch {
	case err == nil:
		wasPaid = order.Paid
		update := models.OrderBillingUpdate{Paid: in.Paid}
		if in.Status != "" {
			update.Status = &in.Status
		}
		order, err = s.orders.ApplyBilling(ctx, order.ID, update)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, repository.ErrNotFound):
		order, res.ProfileCreated, err = s.orderFromWebhook(ctx, in)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	res.OrderID = order.ID
	log.Info().Str("order_id", order.ID).Bool("paid", order.Paid).Msg("webhook applied")

	if order.Paid && !wasPaid && order.ServerID == nil && order.Status != models.OrderCancelled && s.cfg.AutoProvisionEnabled() {
		pr, err := s.provisioner.ProvisionOrder(ctx, order, s.cfg.AutoNodeID, s.cfg.AutoEggID)
		if err != nil {
			log.Error().Err(err).Str("order_id", order.ID).Msg("auto-provision failed")
			res.ProvisionError = err.Error()
			return res, nil
		}
		res.ServerID = pr.Server.ID
	}
	return res, nil
}

func (s *OrderService) orderFromWebhook(ctx context.Context, in *WebhookPayload) (*models.Order, bool, error) {
	if in.CustomerEmail == "" {
		return nil, false, apperr.Invalid("customer_email is required for a new order")
	}

	created := false
	profile, err := s.profiles.GetByEmail(ctx, in.CustomerEmail)
	if errors.Is(err, repository.ErrNotFound) {
		first, last := splitName(in.CustomerName)
		profile = &models.Profile{
			AuthID:    uuid.NewString(),
			Email:     in.CustomerEmail,
			FirstName: first,
			LastName:  last,
			Role:      models.RoleUser,
			Status:    models.ProfileActive,
		}
		if err := s.profiles.Create(ctx, profile); err != nil {
			return nil, false, err
		}
		created = true
		s.log.Info().Str("email", in.CustomerEmail).Msg("profile created from webhook")
	} else if err != nil {
		return nil, false, err
	}

	o := s.newOrder(profile.AuthID, CreateOrderInput{
		Package: in.Package, RAM: in.RAM, CPU: in.CPU, Disk: in.Disk, Amount: in.Amount, Period: in.Period,
	})
	o.ForpsiOrderID = &in.OrderID
	if in.Status != "" {
		o.Status = in.Status
	}
	if in.Paid != nil {
		o.Paid = *in.Paid
	}
	if err := s.orders.Create(ctx, o); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, created, apperr.Conflict("order already recorded")
		}
		return nil, created, err
	}
	return o, created, nil
}

func splitName(full string) (*string, *string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return nil, nil
	}
	first := parts[0]
	if len(parts) == 1 {
		return &first, nil
	}
	last := strings.Join(parts[1:], " ")
	return &first, &last
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
