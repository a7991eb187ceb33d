package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const serviceWings = "wings"

// WingsClient reads live system stats from node daemons.
type WingsClient struct {
	httpClient *http.Client
}

// NewWingsClient creates a new Wings daemon client.
func NewWingsClient(timeout time.Duration) *WingsClient {
	return &WingsClient{httpClient: &http.Client{Timeout: timeout}}
}

// SystemStats is the subset of the daemon's system report shown on nodes.
type SystemStats struct {
	Memory  json.RawMessage `json:"memory,omitempty"`
	CPU     json.RawMessage `json:"cpu,omitempty"`
	Disk    json.RawMessage `json:"disk,omitempty"`
	Load    json.RawMessage `json:"load,omitempty"`
	Network json.RawMessage `json:"network,omitempty"`
	Uptime  float64         `json:"uptime"`
}

// SystemStats fetches live system figures from a node's daemon.
func (c *WingsClient) SystemStats(ctx context.Context, node Node, token string) (*SystemStats, error) {
	scheme := node.Scheme
	if scheme == "" {
		scheme = "https"
	}
	u := fmt.Sprintf("%s://%s:%d/api/system?v=2", scheme, node.FQDN, node.DaemonListen)

	var stats SystemStats
	err := do(ctx, c.httpClient, request{
		service: serviceWings, op: "system_stats", method: http.MethodGet, url: u, token: token,
	}, &stats)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
