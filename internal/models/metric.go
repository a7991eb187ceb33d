package models

import (
	"encoding/json"
	"time"
)

const (
	MetricTotalServers = "total_servers"
	MetricTotalUsers   = "total_users"
	MetricTotalOrders  = "total_orders"
	MetricRevenue      = "revenue"
)

// SystemMetric is a recorded dashboard figure.
type SystemMetric struct {
	ID         string          `json:"id"`
	MetricType string          `json:"metric_type"`
	Value      float64         `json:"value"`
	Metadata   json.RawMessage `json:"metadata"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Counts is the real-time dashboard summary.
type Counts struct {
	Servers int     `json:"total_servers"`
	Users   int     `json:"total_users"`
	Orders  int     `json:"total_orders"`
	Revenue float64 `json:"total_revenue"`
}
