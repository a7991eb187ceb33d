package models

import "time"

// Server statuses written by the portal. Upstream may report others.
const (
	ServerCreating   = "creating"
	ServerInstalling = "installing"
	ServerStarting   = "starting"
	ServerStopping   = "stopping"
	ServerFailed     = "failed"
	ServerUnknown    = "unknown"

	// ImportedLocation marks rows created by importing upstream servers.
	ImportedLocation = "pelican-sync"
)

// Server is a game server owned by a portal user. PelicanServerID is set once
// the panel has accepted the create request.
type Server struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Name            string    `json:"name"`
	Location        string    `json:"location"`
	NodeID          string    `json:"node_id"`
	EggID           int       `json:"egg_id"`
	PelicanServerID *string   `json:"pelican_server_id"`
	Status          string    `json:"status"`
	RAMMB           int       `json:"ram_mb"`
	CPUPct          int       `json:"cpu_pct"`
	DiskMB          int       `json:"disk_mb"`
	CPUUsage        *string   `json:"cpu_usage"`
	MemoryUsage     *string   `json:"memory_usage"`
	Uptime          *string   `json:"uptime"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ServerWithOwner is the admin listing row.
type ServerWithOwner struct {
	Server
	OwnerName  string `json:"owner_name"`
	OwnerEmail string `json:"owner_email"`
}

// ServerProvisioned carries the fields written after a successful create.
type ServerProvisioned struct {
	PelicanServerID string
	Status          string
	RAMMB           int
	CPUPct          int
	DiskMB          int
	EggID           int
	NodeID          string
}

// ServerLiveStats carries the cached usage strings refreshed by status sync.
type ServerLiveStats struct {
	Status      string
	CPUUsage    string
	MemoryUsage string
	Uptime      string
}
