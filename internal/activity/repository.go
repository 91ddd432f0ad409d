// Package activity persists the append-only change log attached to issues.
// Entries are never updated or deleted individually; they only disappear
// when their issue row is removed and the cascade fires.
package activity

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/issuedesk/backend/internal/models"
)

// Repository handles activity log persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an activity repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append inserts a new activity entry.
func (r *Repository) Append(ctx context.Context, e *models.ActivityEntry) error {
	const query = `INSERT INTO activity_log (id, issue_id, action, old_value, new_value, performed_by)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, e.IssueID, e.Action, e.OldValue, e.NewValue, e.PerformedBy).
		Scan(&e.ID, &e.CreatedAt)
}

// ListByIssue returns all activity entries for an issue, newest first, with
// the performer's user summary joined in.
func (r *Repository) ListByIssue(ctx context.Context, issueID uuid.UUID) ([]models.ActivityEntry, error) {
	const query = `SELECT a.id, a.issue_id, a.action, a.old_value, a.new_value, a.performed_by, a.created_at,
			u.name, u.email
		FROM activity_log a
		JOIN users u ON u.id = a.performed_by
		WHERE a.issue_id = $1
		ORDER BY a.created_at DESC, a.id DESC`
	rows, err := r.pool.Query(ctx, query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.ActivityEntry
	for rows.Next() {
		var e models.ActivityEntry
		var performer models.UserSummary
		if err := rows.Scan(&e.ID, &e.IssueID, &e.Action, &e.OldValue, &e.NewValue, &e.PerformedBy, &e.CreatedAt,
			&performer.Name, &performer.Email); err != nil {
			return nil, err
		}
		performer.ID = e.PerformedBy
		e.Performer = &performer
		list = append(list, e)
	}
	return list, rows.Err()
}
