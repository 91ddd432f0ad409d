// Package webhooks manages per-organization webhook subscriptions. Delivery
// itself happens in the worker; this package only stores and serves the
// subscription rows.
package webhooks

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/issuedesk/backend/internal/models"
	"github.com/issuedesk/backend/pkg/apperr"
)

// ErrWebhookNotFound covers absent and cross-tenant webhook ids.
var ErrWebhookNotFound = apperr.NotFound("webhook not found")

// Repository handles webhook subscription persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a webhooks repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists a new subscription.
func (r *Repository) Insert(ctx context.Context, w *models.Webhook) error {
	const query = `INSERT INTO org_webhooks (id, organization_id, url, secret, events, active)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, TRUE)
		RETURNING id, active, created_at`
	return r.pool.QueryRow(ctx, query, w.OrganizationID, w.URL, w.Secret, w.Events).
		Scan(&w.ID, &w.Active, &w.CreatedAt)
}

// ListByOrg returns all of an organization's subscriptions.
func (r *Repository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]models.Webhook, error) {
	const query = `SELECT id, organization_id, url, secret, events, active, created_at
		FROM org_webhooks WHERE organization_id = $1
		ORDER BY created_at DESC, id DESC`
	return r.list(ctx, query, orgID)
}

// ListActiveByOrg returns the organization's active subscriptions; the event
// dispatcher fans deliveries out over these.
func (r *Repository) ListActiveByOrg(ctx context.Context, orgID uuid.UUID) ([]models.Webhook, error) {
	const query = `SELECT id, organization_id, url, secret, events, active, created_at
		FROM org_webhooks WHERE organization_id = $1 AND active
		ORDER BY created_at DESC, id DESC`
	return r.list(ctx, query, orgID)
}

// Delete removes a subscription within the organization.
func (r *Repository) Delete(ctx context.Context, id, orgID uuid.UUID) error {
	const query = `DELETE FROM org_webhooks WHERE id = $1 AND organization_id = $2`
	tag, err := r.pool.Exec(ctx, query, id, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWebhookNotFound
	}
	return nil
}

// GetByID returns a subscription within the organization.
func (r *Repository) GetByID(ctx context.Context, id, orgID uuid.UUID) (*models.Webhook, error) {
	const query = `SELECT id, organization_id, url, secret, events, active, created_at
		FROM org_webhooks WHERE id = $1 AND organization_id = $2`
	var w models.Webhook
	err := r.pool.QueryRow(ctx, query, id, orgID).
		Scan(&w.ID, &w.OrganizationID, &w.URL, &w.Secret, &w.Events, &w.Active, &w.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWebhookNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) list(ctx context.Context, query string, orgID uuid.UUID) ([]models.Webhook, error) {
	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Webhook
	for rows.Next() {
		var w models.Webhook
		if err := rows.Scan(&w.ID, &w.OrganizationID, &w.URL, &w.Secret, &w.Events, &w.Active, &w.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, w)
	}
	return list, rows.Err()
}
