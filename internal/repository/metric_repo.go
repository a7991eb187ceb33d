package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nexushost/portal/internal/models"
)

// MetricRepository stores metric snapshots in Postgres.
type MetricRepository struct {
	db DB
}

// NewMetricRepository creates a new metric snapshot repository.
func NewMetricRepository(db DB) *MetricRepository {
	return &MetricRepository{db: db}
}

// Record inserts a metric snapshot.
func (r *MetricRepository) Record(ctx context.Context, m *models.SystemMetric) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if len(m.Metadata) == 0 {
		m.Metadata = []byte("{}")
	}
	query := `
		INSERT INTO system_metrics (id, metric_type, value, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING recorded_at
	`
	if err := r.db.QueryRow(ctx, query, m.ID, m.MetricType, m.Value, m.Metadata).Scan(&m.RecordedAt); err != nil {
		return fmt.Errorf("insert system_metric: %w", err)
	}
	return nil
}

// Recent returns the latest snapshots, newest first.
func (r *MetricRepository) Recent(ctx context.Context, limit int) ([]*models.SystemMetric, error) {
	query := `
		SELECT id, metric_type, value::float8, metadata, recorded_at
		FROM system_metrics
		ORDER BY recorded_at DESC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query system_metrics: %w", err)
	}
	defer rows.Close()

	var results []*models.SystemMetric
	for rows.Next() {
		m := &models.SystemMetric{}
		if err := rows.Scan(&m.ID, &m.MetricType, &m.Value, &m.Metadata, &m.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan system_metric: %w", err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// Counts computes the live dashboard totals. Revenue only includes
// completed orders.
func (r *MetricRepository) Counts(ctx context.Context) (models.Counts, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM servers),
			(SELECT COUNT(*) FROM profiles),
			(SELECT COUNT(*) FROM orders),
			(SELECT COALESCE(SUM(amount), 0)::float8 FROM orders WHERE status = 'completed')
	`
	var c models.Counts
	if err := r.db.QueryRow(ctx, query).Scan(&c.Servers, &c.Users, &c.Orders, &c.Revenue); err != nil {
		return c, fmt.Errorf("query counts: %w", err)
	}
	return c, nil
}
