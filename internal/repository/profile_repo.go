package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nexushost/portal/internal/models"
)

const profileColumns = `id, auth_id, email, first_name, last_name, role, status,
	pelican_user_id, last_login, created_at, updated_at`

// ProfileRepository stores profiles in Postgres.
type ProfileRepository struct {
	db DB
}

// NewProfileRepository creates a new profile repository.
func NewProfileRepository(db DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByAuthID returns the profile of an auth user.
func (r *ProfileRepository) GetByAuthID(ctx context.Context, authID string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE auth_id = $1`
	return scanProfile(r.db.QueryRow(ctx, query, authID))
}

// GetByEmail looks a profile up by email, ignoring case.
func (r *ProfileRepository) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE lower(email) = lower($1) LIMIT 1`
	return scanProfile(r.db.QueryRow(ctx, query, email))
}

// List returns every profile, newest first.
func (r *ProfileRepository) List(ctx context.Context) ([]*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var results []*models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// Create inserts p. An existing profile for the same auth id is a conflict.
func (r *ProfileRepository) Create(ctx context.Context, p *models.Profile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Role == "" {
		p.Role = models.RoleUser
	}
	if p.Status == "" {
		p.Status = models.ProfileActive
	}
	query := `
		INSERT INTO profiles (id, auth_id, email, first_name, last_name, role, status, pelican_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		p.ID, p.AuthID, p.Email, p.FirstName, p.LastName, p.Role, p.Status, p.PelicanUserID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// Update applies the non-nil fields and returns the stored profile.
func (r *ProfileRepository) Update(ctx context.Context, authID string, u models.ProfileUpdate) (*models.Profile, error) {
	query := `
		UPDATE profiles SET
			first_name = COALESCE($2, first_name),
			last_name = COALESCE($3, last_name),
			email = COALESCE($4, email),
			role = COALESCE($5, role),
			status = COALESCE($6, status),
			pelican_user_id = COALESCE($7, pelican_user_id),
			updated_at = NOW()
		WHERE auth_id = $1
		RETURNING ` + profileColumns
	return scanProfile(r.db.QueryRow(ctx, query,
		authID, u.FirstName, u.LastName, u.Email, u.Role, u.Status, u.PelicanUserID,
	))
}

// TouchLastLogin stamps the login time.
func (r *ProfileRepository) TouchLastLogin(ctx context.Context, authID string) error {
	_, err := r.db.Exec(ctx, `UPDATE profiles SET last_login = NOW() WHERE auth_id = $1`, authID)
	if err != nil {
		return fmt.Errorf("touch profile last_login: %w", err)
	}
	return nil
}

// Delete removes the profile.
func (r *ProfileRepository) Delete(ctx context.Context, authID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM profiles WHERE auth_id = $1`, authID)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return affected(tag)
}

func scanProfile(row pgx.Row) (*models.Profile, error) {
	p := &models.Profile{}
	err := row.Scan(
		&p.ID, &p.AuthID, &p.Email, &p.FirstName, &p.LastName, &p.Role, &p.Status,
		&p.PelicanUserID, &p.LastLogin, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	return p, nil
}
