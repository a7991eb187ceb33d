package models

import (
	"encoding/json"
	"time"
)

// Callout is an admin-curated server preset.
type Callout struct {
	ID             string          `json:"id"`
	Label          string          `json:"label"`
	Description    *string         `json:"description"`
	EggID          int             `json:"egg_id"`
	DockerImage    string          `json:"docker_image"`
	StartupCommand string          `json:"startup_command"`
	Environment    json.RawMessage `json:"environment"`
	DefaultRAM     int             `json:"default_ram"`
	DefaultCPU     int             `json:"default_cpu"`
	DefaultDisk    int             `json:"default_disk"`
	NodeID         *string         `json:"node_id"`
	IsActive       bool            `json:"is_active"`
	CreatedBy      *string         `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CalloutUpdate holds optional changes. Nil fields are left alone.
type CalloutUpdate struct {
	Label          *string
	Description    *string
	EggID          *int
	DockerImage    *string
	StartupCommand *string
	Environment    json.RawMessage
	DefaultRAM     *int
	DefaultCPU     *int
	DefaultDisk    *int
	NodeID         *string
	IsActive       *bool
}
