package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nexushost/portal/internal/models"
)

const defaultLogLimit = 50

// ServerLogRepository stores server log entrys in Postgres.
type ServerLogRepository struct {
	db DB
}

// NewServerLogRepository creates a new server log entry repository.
func NewServerLogRepository(db DB) *ServerLogRepository {
	return &ServerLogRepository{db: db}
}

// Record appends an entry to a server's history.
func (r *ServerLogRepository) Record(ctx context.Context, e *models.ServerLog) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO server_logs (id, server_id, action, status, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.ServerID, e.Action, e.Status, e.Message, e.Metadata).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert server log: %w", err)
	}
	return nil
}

// ListByServer returns the newest entries first.
func (r *ServerLogRepository) ListByServer(ctx context.Context, serverID string, limit int) ([]*models.ServerLog, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, server_id, action, status, message, metadata, created_at
		FROM server_logs
		WHERE server_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, serverID, limit)
	if err != nil {
		return nil, fmt.Errorf("query server logs: %w", err)
	}
	defer rows.Close()

	entries := []*models.ServerLog{}
	for rows.Next() {
		e := &models.ServerLog{}
		if err := rows.Scan(&e.ID, &e.ServerID, &e.Action, &e.Status, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan server log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
