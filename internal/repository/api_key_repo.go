package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nexushost/portal/internal/models"
)

const apiKeyColumns = `id, service, api_key, description, is_active, created_at`

// APIKeyRepository stores API keys in Postgres.
type APIKeyRepository struct {
	db DB
}

// NewAPIKeyRepository creates a new API key repository.
func NewAPIKeyRepository(db DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// List returns every API key grouped by service, newest first.
func (r *APIKeyRepository) List(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := r.db.Query(ctx, `SELECT `+apiKeyColumns+` FROM api_keys ORDER BY service, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query api_keys: %w", err)
	}
	defer rows.Close()

	var results []*models.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, k)
	}
	return results, rows.Err()
}

// GetActive returns the active key for a service.
func (r *APIKeyRepository) GetActive(ctx context.Context, service string) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE service = $1 AND is_active LIMIT 1`
	return scanAPIKey(r.db.QueryRow(ctx, query, service))
}

// Upsert replaces the active key of a service.
func (r *APIKeyRepository) Upsert(ctx context.Context, service, key string, description *string) (*models.APIKey, error) {
	if _, err := r.db.Exec(ctx, `UPDATE api_keys SET is_active = FALSE WHERE service = $1 AND is_active`, service); err != nil {
		return nil, fmt.Errorf("retire api_key: %w", err)
	}
	query := `
		INSERT INTO api_keys (id, service, api_key, description, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING ` + apiKeyColumns
	k, err := scanAPIKey(r.db.QueryRow(ctx, query, uuid.NewString(), service, key, description))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return k, nil
}

// Deactivate marks the API key inactive.
func (r *APIKeyRepository) Deactivate(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE api_keys SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate api_key: %w", err)
	}
	return affected(tag)
}

func scanAPIKey(row pgx.Row) (*models.APIKey, error) {
	k := &models.APIKey{}
	err := row.Scan(&k.ID, &k.Service, &k.APIKey, &k.Description, &k.IsActive, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan api_key: %w", err)
	}
	return k, nil
}
