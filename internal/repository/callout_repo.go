package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nexushost/portal/internal/models"
)

const calloutColumns = `id, label, description, egg_id, docker_image, startup_command, environment,
	default_ram, default_cpu, default_disk, node_id, is_active, created_by, created_at, updated_at`

// CalloutRepository stores callouts in Postgres.
type CalloutRepository struct {
	db DB
}

// NewCalloutRepository creates a new callout repository.
func NewCalloutRepository(db DB) *CalloutRepository {
	return &CalloutRepository{db: db}
}

// ListActive returns active callouts, newest first.
func (r *CalloutRepository) ListActive(ctx context.Context) ([]*models.Callout, error) {
	query := `SELECT ` + calloutColumns + ` FROM callouts WHERE is_active ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query callouts: %w", err)
	}
	defer rows.Close()

	var results []*models.Callout
	for rows.Next() {
		c, err := scanCallout(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// Get returns the callout with the given id.
func (r *CalloutRepository) Get(ctx context.Context, id string) (*models.Callout, error) {
	query := `SELECT ` + calloutColumns + ` FROM callouts WHERE id = $1`
	return scanCallout(r.db.QueryRow(ctx, query, id))
}

// Create inserts a callout, assigning its id.
func (r *CalloutRepository) Create(ctx context.Context, c *models.Callout) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if len(c.Environment) == 0 {
		c.Environment = []byte("{}")
	}
	query := `
		INSERT INTO callouts (
			id, label, description, egg_id, docker_image, startup_command, environment,
			default_ram, default_cpu, default_disk, node_id, is_active, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		c.ID, c.Label, c.Description, c.EggID, c.DockerImage, c.StartupCommand, c.Environment,
		c.DefaultRAM, c.DefaultCPU, c.DefaultDisk, c.NodeID, c.IsActive, c.CreatedBy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert callout: %w", err)
	}
	return nil
}

// Update applies the non-nil fields and returns the stored callout.
func (r *CalloutRepository) Update(ctx context.Context, id string, u models.CalloutUpdate) (*models.Callout, error) {
	query := `
		UPDATE callouts SET
			label = COALESCE($2, label),
			description = COALESCE($3, description),
			egg_id = COALESCE($4, egg_id),
			docker_image = COALESCE($5, docker_image),
			startup_command = COALESCE($6, startup_command),
			environment = COALESCE($7, environment),
			default_ram = COALESCE($8, default_ram),
			default_cpu = COALESCE($9, default_cpu),
			default_disk = COALESCE($10, default_disk),
			node_id = COALESCE($11, node_id),
			is_active = COALESCE($12, is_active),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + calloutColumns
	var env any
	if len(u.Environment) > 0 {
		env = u.Environment
	}
	return scanCallout(r.db.QueryRow(ctx, query,
		id, u.Label, u.Description, u.EggID, u.DockerImage, u.StartupCommand, env,
		u.DefaultRAM, u.DefaultCPU, u.DefaultDisk, u.NodeID, u.IsActive,
	))
}

// Deactivate soft-deletes a callout.
func (r *CalloutRepository) Deactivate(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE callouts SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate callout: %w", err)
	}
	return affected(tag)
}

func scanCallout(row pgx.Row) (*models.Callout, error) {
	c := &models.Callout{}
	err := row.Scan(
		&c.ID, &c.Label, &c.Description, &c.EggID, &c.DockerImage, &c.StartupCommand, &c.Environment,
		&c.DefaultRAM, &c.DefaultCPU, &c.DefaultDisk, &c.NodeID, &c.IsActive, &c.CreatedBy,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan callout: %w", err)
	}
	return c, nil
}
