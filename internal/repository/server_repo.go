package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nexushost/portal/internal/models"
)

const serverColumns = `s.id, s.user_id, s.name, s.location, s.node_id, s.egg_id, s.pelican_server_id,
	s.status, s.ram_mb, s.cpu_pct, s.disk_mb, s.cpu_usage, s.memory_usage, s.uptime,
	s.created_at, s.updated_at`

// ServerRepository stores servers in Postgres.
type ServerRepository struct {
	db DB
}

// NewServerRepository creates a new server repository.
func NewServerRepository(db DB) *ServerRepository {
	return &ServerRepository{db: db}
}

// Create inserts a server, assigning its id.
func (r *ServerRepository) Create(ctx context.Context, s *models.Server) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	query := `
		INSERT INTO servers (
			id, user_id, name, location, node_id, egg_id, pelican_server_id,
			status, ram_mb, cpu_pct, disk_mb
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		s.ID, s.UserID, s.Name, s.Location, s.NodeID, s.EggID, s.PelicanServerID,
		s.Status, s.RAMMB, s.CPUPct, s.DiskMB,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert server: %w", err)
	}
	return nil
}

// Get returns the server with the given id.
func (r *ServerRepository) Get(ctx context.Context, id string) (*models.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers s WHERE s.id = $1`
	return scanServer(r.db.QueryRow(ctx, query, id))
}

// GetByPelicanID returns the server linked to a panel id.
func (r *ServerRepository) GetByPelicanID(ctx context.Context, pelicanID string) (*models.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers s WHERE s.pelican_server_id = $1`
	return scanServer(r.db.QueryRow(ctx, query, pelicanID))
}

// ListByUser returns the servers owned by userID, newest first.
func (r *ServerRepository) ListByUser(ctx context.Context, userID string) ([]*models.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers s WHERE s.user_id = $1 ORDER BY s.created_at DESC`
	return r.list(ctx, query, userID)
}

// ListLinked returns servers that have an upstream id.
func (r *ServerRepository) ListLinked(ctx context.Context) ([]*models.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers s WHERE s.pelican_server_id IS NOT NULL ORDER BY s.created_at`
	return r.list(ctx, query)
}

// ListWithOwners returns every server with its owner's name and email.
func (r *ServerRepository) ListWithOwners(ctx context.Context) ([]*models.ServerWithOwner, error) {
	query := `
		SELECT ` + serverColumns + `,
			TRIM(COALESCE(p.first_name, '') || ' ' || COALESCE(p.last_name, '')),
			COALESCE(p.email, '')
		FROM servers s
		LEFT JOIN profiles p ON p.auth_id = s.user_id
		ORDER BY s.created_at DESC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query servers with owners: %w", err)
	}
	defer rows.Close()

	var results []*models.ServerWithOwner
	for rows.Next() {
		so := &models.ServerWithOwner{}
		s := &so.Server
		err := rows.Scan(
			&s.ID, &s.UserID, &s.Name, &s.Location, &s.NodeID, &s.EggID, &s.PelicanServerID,
			&s.Status, &s.RAMMB, &s.CPUPct, &s.DiskMB, &s.CPUUsage, &s.MemoryUsage, &s.Uptime,
			&s.CreatedAt, &s.UpdatedAt, &so.OwnerName, &so.OwnerEmail,
		)
		if err != nil {
			return nil, fmt.Errorf("scan server row: %w", err)
		}
		results = append(results, so)
	}
	return results, rows.Err()
}

// PelicanIDs returns the set of upstream ids already linked to a row.
func (r *ServerRepository) PelicanIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.Query(ctx, `SELECT pelican_server_id FROM servers WHERE pelican_server_id IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("query pelican ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pelican id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// MarkProvisioned links the row to the panel server it became.
func (r *ServerRepository) MarkProvisioned(ctx context.Context, id string, p models.ServerProvisioned) error {
	query := `
		UPDATE servers SET
			pelican_server_id = $2,
			status = $3,
			ram_mb = $4,
			cpu_pct = $5,
			disk_mb = $6,
			egg_id = $7,
			node_id = $8,
			updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, p.PelicanServerID, p.Status, p.RAMMB, p.CPUPct, p.DiskMB, p.EggID, p.NodeID)
	if err != nil {
		return fmt.Errorf("update provisioned server: %w", err)
	}
	return affected(tag)
}

// SetStatus overwrites the status.
func (r *ServerRepository) SetStatus(ctx context.Context, id, status string) error {
	tag, err := r.db.Exec(ctx, `UPDATE servers SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update server status: %w", err)
	}
	return affected(tag)
}

// UpdateLiveStats stores the latest status and usage figures.
func (r *ServerRepository) UpdateLiveStats(ctx context.Context, id string, st models.ServerLiveStats) error {
	query := `
		UPDATE servers SET
			status = $2,
			cpu_usage = $3,
			memory_usage = $4,
			uptime = $5,
			updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, st.Status, st.CPUUsage, st.MemoryUsage, st.Uptime)
	if err != nil {
		return fmt.Errorf("update server stats: %w", err)
	}
	return affected(tag)
}

// Delete removes the server.
func (r *ServerRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM servers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete server: %w", err)
	}
	return affected(tag)
}

// UsageByNode sums the resources of local servers per node.
func (r *ServerRepository) UsageByNode(ctx context.Context) (map[string]models.NodeUsage, error) {
	query := `
		SELECT node_id,
			COALESCE(SUM(ram_mb), 0),
			COALESCE(SUM(cpu_pct), 0),
			COALESCE(SUM(disk_mb), 0),
			COUNT(*) FILTER (WHERE status NOT IN ('failed', 'stopped')),
			COUNT(*)
		FROM servers
		GROUP BY node_id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query node usage: %w", err)
	}
	defer rows.Close()

	usage := make(map[string]models.NodeUsage)
	for rows.Next() {
		var u models.NodeUsage
		if err := rows.Scan(&u.NodeID, &u.RAMMB, &u.CPUPct, &u.DiskMB, &u.ActiveServers, &u.TotalServers); err != nil {
			return nil, fmt.Errorf("scan node usage: %w", err)
		}
		usage[u.NodeID] = u
	}
	return usage, rows.Err()
}

func (r *ServerRepository) list(ctx context.Context, query string, args ...any) ([]*models.Server, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query servers: %w", err)
	}
	defer rows.Close()

	var results []*models.Server
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

func scanServer(row pgx.Row) (*models.Server, error) {
	s := &models.Server{}
	err := row.Scan(
		&s.ID, &s.UserID, &s.Name, &s.Location, &s.NodeID, &s.EggID, &s.PelicanServerID,
		&s.Status, &s.RAMMB, &s.CPUPct, &s.DiskMB, &s.CPUUsage, &s.MemoryUsage, &s.Uptime,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan server: %w", err)
	}
	return s, nil
}
