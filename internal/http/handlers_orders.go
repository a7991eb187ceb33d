package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexushost/portal/internal/apperr"
	"github.com/nexushost/portal/internal/auth"
	"github.com/nexushost/portal/internal/models"
	"github.com/nexushost/portal/internal/service"
)

type createOrderRequest struct {
	Package string  `json:"package" validate:"max=100"`
	RAM     int     `json:"ram" validate:"gte=0"`
	CPU     int     `json:"cpu" validate:"gte=0"`
	Disk    int     `json:"disk" validate:"gte=0"`
	Amount  float64 `json:"amount" validate:"gte=0"`
	Period  string  `json:"period" validate:"omitempty,oneof=monthly quarterly yearly"`
}

type orderIDRequest struct {
	OrderID string `json:"order_id" validate:"required"`
}

func (s *Server) createOrderFunction() function {
	return function{
		fallback: "create_order",
		actions: actions{
			"create_order": typed(models.RoleUser, s.createOrder),
			"get_orders":   typed(models.RoleUser, s.listOrders),
			"mark_paid":    typed(models.RoleAdmin, s.markPaid),
		},
	}
}

func (s *Server) createOrder(ctx context.Context, p *auth.Principal, req *createOrderRequest) (any, error) {
	o, err := s.svc.Orders.Create(ctx, p, service.CreateOrderInput{
		Package: req.Package,
		RAM:     req.RAM,
		CPU:     req.CPU,
		Disk:    req.Disk,
		Amount:  req.Amount,
		Period:  req.Period,
	})
	if err != nil {
		return nil, err
	}
	return gin.H{"success": true, "order_id": o.ID, "order": o, "message": "Order created successfully"}, nil
}

func (s *Server) listOrders(ctx context.Context, p *auth.Principal, _ *emptyRequest) (any, error) {
	orders, err := s.svc.Orders.List(ctx, p)
	if err != nil {
		return nil, err
	}
	return gin.H{"orders": orders}, nil
}

func (s *Server) markPaid(ctx context.Context, _ *auth.Principal, req *orderIDRequest) (any, error) {
	o, err := s.svc.Orders.MarkPaid(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	return gin.H{"order": o}, nil
}

type forpsiRequest struct {
	OrderData struct {
		OrderID string  `json:"order_id" validate:"required"`
		Service string  `json:"service"`
		Amount  float64 `json:"amount" validate:"gte=0"`
		Period  string  `json:"period"`
	} `json:"orderData"`
}

func (s *Server) forpsiFunction() function {
	return function{
		actions: actions{
			"create_order": typed(models.RoleUser, s.forwardOrder),
			"sync_orders":  typed(models.RoleAdmin, s.syncOrders),
		},
		hooks: map[string]gin.HandlerFunc{"webhook": s.forpsiWebhook},
	}
}

func (s *Server) forwardOrder(ctx context.Context, p *auth.Principal, req *forpsiRequest) (any, error) {
	d := req.OrderData
	return s.svc.Orders.Forward(ctx, p, service.ForwardOrderInput{
		OrderID: d.OrderID,
		Service: d.Service,
		Amount:  d.Amount,
		Period:  d.Period,
	})
}

func (s *Server) syncOrders(ctx context.Context, _ *auth.Principal, _ *emptyRequest) (any, error) {
	res, err := s.svc.Orders.SyncBilling(ctx)
	if err != nil {
		return nil, err
	}
	return gin.H{"message": "Orders synced successfully", "result": res}, nil
}

// forpsiWebhook applies an order event pushed by the billing provider. It
// carries no bearer token; a configured shared secret is checked instead.
// Without a secret the hook is refused while auto-provisioning is on.
func (s *Server) forpsiWebhook(c *gin.Context) {
	c.Set(ctxAction, "webhook")
	if s.webhookSecret == "" && s.autoProvision {
		s.fail(c, apperr.ErrUnauthenticated)
		return
	}
	if !secretMatches(s.webhookSecret, c.GetHeader("X-Webhook-Secret")) {
		s.fail(c, apperr.ErrUnauthenticated)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		s.fail(c, apperr.Invalid("unreadable request body"))
		return
	}
	var payload service.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.fail(c, apperr.Invalid("invalid request body"))
		return
	}
	if err := validate.Struct(&payload); err != nil {
		s.fail(c, validationError(err))
		return
	}

	res, err := s.svc.Orders.HandleWebhook(c.Request.Context(), &payload)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
}
