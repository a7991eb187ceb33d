package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/nexushost/portal/internal/config"
)

const serviceForpsi = "forpsi"

// ForpsiClient forwards orders to the Forpsi billing API. The API key is
// stored in the database and passed per call.
type ForpsiClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewForpsiClient creates a new Forpsi billing client.
func NewForpsiClient(cfg config.ForpsiConfig) *ForpsiClient {
	return &ForpsiClient{
		baseURL:    cfg.APIURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// ForpsiOrderRequest is the body of a new Forpsi order.
type ForpsiOrderRequest struct {
	Service       string  `json:"service"`
	Amount        float64 `json:"amount"`
	Period        string  `json:"period"`
	CustomerEmail string  `json:"customer_email"`
	CustomerID    string  `json:"customer_id"`
}

// ForpsiOrder is Forpsi's view of an order.
type ForpsiOrder struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Paid    *bool  `json:"paid,omitempty"`
}

// Configured reports whether a Forpsi API URL is set.
func (c *ForpsiClient) Configured() bool { return c.baseURL != "" }

// CreateOrder places an order with Forpsi.
func (c *ForpsiClient) CreateOrder(ctx context.Context, apiKey string, req *ForpsiOrderRequest) (*ForpsiOrder, error) {
	var out ForpsiOrder
	err := do(ctx, c.httpClient, request{
		service: serviceForpsi, op: "create_order", method: http.MethodPost,
		url: c.baseURL + "/api/orders", token: apiKey, body: req,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrder fetches the current state of a Forpsi order.
func (c *ForpsiClient) GetOrder(ctx context.Context, apiKey, orderID string) (*ForpsiOrder, error) {
	var out ForpsiOrder
	err := do(ctx, c.httpClient, request{
		service: serviceForpsi, op: "get_order", method: http.MethodGet,
		url: c.baseURL + "/api/orders/" + url.PathEscape(orderID), token: apiKey,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
