package models

import "time"

// Server log actions.
const (
	LogProvisionStarted = "provision_started"
	LogProvisionRetry   = "provision_retry"
	LogProvisionFailed  = "provision_failed"
	LogProvisioned      = "provisioned"
	LogPowerSignal      = "power_signal"
)

// ServerLog is one entry in a server's lifecycle history.
type ServerLog struct {
	ID        string         `json:"id"`
	ServerID  string         `json:"server_id"`
	Action    string         `json:"action"`
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
