package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nexushost/portal/internal/models"
)

const ticketColumns = `id, user_id, subject, body, priority, status, assigned_to, created_at, updated_at`

// TicketRepository stores tickets in Postgres.
type TicketRepository struct {
	db DB
}

// NewTicketRepository creates a new ticket repository.
func NewTicketRepository(db DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// Create inserts a ticket, assigning its id.
func (r *TicketRepository) Create(ctx context.Context, t *models.Ticket) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	query := `
		INSERT INTO support_tickets (id, user_id, subject, body, priority, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, t.ID, t.UserID, t.Subject, t.Body, t.Priority, t.Status).
		Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

// Get returns the ticket with the given id.
func (r *TicketRepository) Get(ctx context.Context, id string) (*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM support_tickets WHERE id = $1`
	return scanTicket(r.db.QueryRow(ctx, query, id))
}

// List returns every ticket, newest first.
func (r *TicketRepository) List(ctx context.Context) ([]*models.Ticket, error) {
	return r.list(ctx, `SELECT `+ticketColumns+` FROM support_tickets ORDER BY created_at DESC`)
}

// ListByUser returns the tickets owned by userID, newest first.
func (r *TicketRepository) ListByUser(ctx context.Context, userID string) ([]*models.Ticket, error) {
	return r.list(ctx, `SELECT `+ticketColumns+` FROM support_tickets WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

// Update applies the non-nil fields and returns the stored ticket.
func (r *TicketRepository) Update(ctx context.Context, id string, u models.TicketUpdate) (*models.Ticket, error) {
	query := `
		UPDATE support_tickets SET
			status = COALESCE($2, status),
			priority = COALESCE($3, priority),
			assigned_to = COALESCE($4, assigned_to),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + ticketColumns
	return scanTicket(r.db.QueryRow(ctx, query, id, u.Status, u.Priority, u.AssignedTo))
}

func (r *TicketRepository) list(ctx context.Context, query string, args ...any) ([]*models.Ticket, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tickets: %w", err)
	}
	defer rows.Close()

	var results []*models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

func scanTicket(row pgx.Row) (*models.Ticket, error) {
	t := &models.Ticket{}
	err := row.Scan(&t.ID, &t.UserID, &t.Subject, &t.Body, &t.Priority, &t.Status, &t.AssignedTo, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan ticket: %w", err)
	}
	return t, nil
}
