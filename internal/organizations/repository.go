package organizations

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/issuedesk/backend/internal/models"
	"github.com/issuedesk/backend/pkg/apperr"
)

// Repository handles organization persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an organizations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new organization.
func (r *Repository) Create(ctx context.Context, o *models.Organization) error {
	const query = `INSERT INTO organizations (id, name)
		VALUES (gen_random_uuid(), $1)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query, o.Name).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
}

// GetByID returns an organization by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	const query = `SELECT id, name, created_at, updated_at
		FROM organizations WHERE id = $1`
	var o models.Organization
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&o.ID, &o.Name, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("organization not found")
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}
