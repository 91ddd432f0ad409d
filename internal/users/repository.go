package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/issuedesk/backend/internal/models"
	"github.com/issuedesk/backend/pkg/apperr"
)

// Repository handles user persistence. All reads are scoped to an
// organization so one tenant can never observe another's users.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a users repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new user. A duplicate email within the organization maps
// to a conflict error.
func (r *Repository) Create(ctx context.Context, u *models.User) error {
	const query = `INSERT INTO users (id, organization_id, name, email, role)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query, u.OrganizationID, u.Name, u.Email, u.Role).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return apperr.Conflict("email already in use in this organization")
		case pgerrcode.ForeignKeyViolation:
			return apperr.NotFound("organization not found")
		}
	}
	return err
}

// GetByID returns a user by ID within the given organization.
func (r *Repository) GetByID(ctx context.Context, id, orgID uuid.UUID) (*models.User, error) {
	const query = `SELECT id, organization_id, name, email, role, created_at, updated_at
		FROM users WHERE id = $1 AND organization_id = $2`
	var u models.User
	err := r.pool.QueryRow(ctx, query, id, orgID).
		Scan(&u.ID, &u.OrganizationID, &u.Name, &u.Email, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// List returns all users in the organization ordered by name.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID) ([]models.User, error) {
	const query = `SELECT id, organization_id, name, email, role, created_at, updated_at
		FROM users WHERE organization_id = $1 ORDER BY name, id`
	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.OrganizationID, &u.Name, &u.Email, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}
