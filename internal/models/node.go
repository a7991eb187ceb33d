package models

import "time"

const (
	ReservationActive   = "active"
	ReservationReleased = "released"
)

// Node mirrors an upstream panel node.
type Node struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	FQDN            string    `json:"fqdn"`
	Memory          int       `json:"memory"`
	Disk            int       `json:"disk"`
	MaintenanceMode bool      `json:"maintenance_mode"`
	ReservedBy      *string   `json:"reserved_by"`
	SyncedAt        time.Time `json:"synced_at"`
}

// NodeReservation holds a node for one user.
type NodeReservation struct {
	ID         string     `json:"id"`
	NodeID     string     `json:"node_id"`
	UserID     string     `json:"user_id"`
	OrderID    *string    `json:"order_id"`
	Status     string     `json:"status"`
	ReservedAt time.Time  `json:"reserved_at"`
	ReleasedAt *time.Time `json:"released_at"`
}

// NodeUsage aggregates local servers placed on one node.
type NodeUsage struct {
	NodeID        string `json:"node_id"`
	RAMMB         int    `json:"ram_mb"`
	CPUPct        int    `json:"cpu_pct"`
	DiskMB        int    `json:"disk_mb"`
	ActiveServers int    `json:"active_servers"`
	TotalServers  int    `json:"total_servers"`
}
