package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nexushost/portal/internal/models"
)

const orderColumns = `id, user_id, package, ram, cpu, disk, paid, amount::float8, period, status,
	forpsi_order_id, server_id, expires_at, created_at, updated_at`

// OrderRepository stores orders in Postgres.
type OrderRepository struct {
	db DB
}

// NewOrderRepository creates a new order repository.
func NewOrderRepository(db DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts an order, assigning its id.
func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	query := `
		INSERT INTO orders (
			id, user_id, package, ram, cpu, disk, paid, amount, period, status,
			forpsi_order_id, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		o.ID, o.UserID, o.Package, o.RAM, o.CPU, o.Disk, o.Paid, o.Amount, o.Period, o.Status,
		o.ForpsiOrderID, o.ExpiresAt,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// Get returns the order with the given id.
func (r *OrderRepository) Get(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return scanOrder(r.db.QueryRow(ctx, query, id))
}

// GetByForpsiID returns the order placed with Forpsi under forpsiID.
func (r *OrderRepository) GetByForpsiID(ctx context.Context, forpsiID string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE forpsi_order_id = $1`
	return scanOrder(r.db.QueryRow(ctx, query, forpsiID))
}

// List returns every order, newest first.
func (r *OrderRepository) List(ctx context.Context) ([]*models.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
}

// ListByUser returns the orders owned by userID, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]*models.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

// ListBilled returns orders that have been forwarded to the billing provider
// and are not yet completed.
func (r *OrderRepository) ListBilled(ctx context.Context) ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE forpsi_order_id IS NOT NULL AND status <> 'completed'
		ORDER BY created_at
	`
	return r.list(ctx, query)
}

// MarkPaid flags the order paid.
func (r *OrderRepository) MarkPaid(ctx context.Context, id string) (*models.Order, error) {
	query := `UPDATE orders SET paid = TRUE, updated_at = NOW() WHERE id = $1 RETURNING ` + orderColumns
	return scanOrder(r.db.QueryRow(ctx, query, id))
}

// ApplyBilling applies billing provider changes to an order.
func (r *OrderRepository) ApplyBilling(ctx context.Context, id string, u models.OrderBillingUpdate) (*models.Order, error) {
	query := `
		UPDATE orders SET
			forpsi_order_id = COALESCE($2, forpsi_order_id),
			status = COALESCE($3, status),
			paid = COALESCE($4, paid),
			server_id = COALESCE($5, server_id),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + orderColumns
	return scanOrder(r.db.QueryRow(ctx, query, id, u.ForpsiOrderID, u.Status, u.Paid, u.ServerID))
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]*models.Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var results []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, o)
	}
	return results, rows.Err()
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	o := &models.Order{}
	err := row.Scan(
		&o.ID, &o.UserID, &o.Package, &o.RAM, &o.CPU, &o.Disk, &o.Paid, &o.Amount, &o.Period, &o.Status,
		&o.ForpsiOrderID, &o.ServerID, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return o, nil
}
