package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nexushost/portal/internal/models"
)

const reservationColumns = `id, node_id, user_id, order_id, status, reserved_at, released_at`

// NodeRepository keeps the local mirror of upstream nodes and their
// reservations.
type NodeRepository struct {
	db DB
}

// NewNodeRepository creates a new node repository.
func NewNodeRepository(db DB) *NodeRepository {
	return &NodeRepository{db: db}
}

// Upsert inserts or refreshes a node.
func (r *NodeRepository) Upsert(ctx context.Context, n *models.Node) error {
	query := `
		INSERT INTO nodes (id, name, fqdn, memory, disk, maintenance_mode, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			fqdn = EXCLUDED.fqdn,
			memory = EXCLUDED.memory,
			disk = EXCLUDED.disk,
			maintenance_mode = EXCLUDED.maintenance_mode,
			synced_at = NOW()
		RETURNING reserved_by, synced_at
	`
	err := r.db.QueryRow(ctx, query, n.ID, n.Name, n.FQDN, n.Memory, n.Disk, n.MaintenanceMode).
		Scan(&n.ReservedBy, &n.SyncedAt)
	if err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}
	return nil
}

// ActiveReservations returns the active reservation of every reserved node.
func (r *NodeRepository) ActiveReservations(ctx context.Context) (map[string]*models.NodeReservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM node_reservations WHERE status = 'active'`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*models.NodeReservation)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result[res.NodeID] = res
	}
	return result, rows.Err()
}

// Reserve records an active reservation. A second active reservation for the
// same node violates node_reservations_one_active and yields ErrConflict.
func (r *NodeRepository) Reserve(ctx context.Context, res *models.NodeReservation) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	res.Status = models.ReservationActive
	query := `
		INSERT INTO node_reservations (id, node_id, user_id, order_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING reserved_at
	`
	err := r.db.QueryRow(ctx, query, res.ID, res.NodeID, res.UserID, res.OrderID, res.Status).Scan(&res.ReservedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	if _, err := r.db.Exec(ctx, `UPDATE nodes SET reserved_by = $2 WHERE id = $1`, res.NodeID, res.UserID); err != nil {
		return fmt.Errorf("mark node reserved: %w", err)
	}
	return nil
}

// Release ends the active reservation of a node.
func (r *NodeRepository) Release(ctx context.Context, nodeID string) (*models.NodeReservation, error) {
	query := `
		UPDATE node_reservations SET status = 'released', released_at = NOW()
		WHERE node_id = $1 AND status = 'active'
		RETURNING ` + reservationColumns
	res, err := scanReservation(r.db.QueryRow(ctx, query, nodeID))
	if err != nil {
		return nil, err
	}
	if _, err := r.db.Exec(ctx, `UPDATE nodes SET reserved_by = NULL WHERE id = $1`, nodeID); err != nil {
		return nil, fmt.Errorf("clear node reservation: %w", err)
	}
	return res, nil
}

func scanReservation(row pgx.Row) (*models.NodeReservation, error) {
	res := &models.NodeReservation{}
	err := row.Scan(&res.ID, &res.NodeID, &res.UserID, &res.OrderID, &res.Status, &res.ReservedAt, &res.ReleasedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan reservation: %w", err)
	}
	return res, nil
}
