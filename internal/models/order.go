package models

import "time"

const (
	OrderPending    = "pending"
	OrderProcessing = "processing"
	OrderCompleted  = "completed"
	OrderCancelled  = "cancelled"

	DefaultPackage = "Basic Server"
	DefaultRAM     = 1024
	DefaultCPU     = 100
	DefaultDisk    = 2048
	OrderTermDays  = 30
)

// Order is a purchase of a server package. Orders are never deleted.
type Order struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Package       string    `json:"package"`
	RAM           int       `json:"ram"`
	CPU           int       `json:"cpu"`
	Disk          int       `json:"disk"`
	Paid          bool      `json:"paid"`
	Amount        float64   `json:"amount"`
	Period        string    `json:"period"`
	Status        string    `json:"status"`
	ForpsiOrderID *string   `json:"forpsi_order_id"`
	ServerID      *string   `json:"server_id"`
	ExpiresAt     time.Time `json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// OrderBillingUpdate is applied when the billing provider reports on an order.
type OrderBillingUpdate struct {
	ForpsiOrderID *string
	Status        *string
	Paid          *bool
	ServerID      *string
}
