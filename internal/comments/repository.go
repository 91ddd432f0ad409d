// Package comments implements discussion threads under issues. Tenant
// isolation rides on the parent issue: every comment lookup joins through
// issues and filters by organization.
package comments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/issuedesk/backend/internal/models"
	"github.com/issuedesk/backend/pkg/apperr"
)

// ErrCommentNotFound covers absent ids and cross-tenant ids alike.
var ErrCommentNotFound = apperr.NotFound("comment not found")

// Repository handles comment persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a comments repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists a new comment.
func (r *Repository) Insert(ctx context.Context, cm *models.Comment) error {
	const query = `INSERT INTO comments (id, issue_id, author_id, body)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query, cm.IssueID, cm.AuthorID, cm.Body).
		Scan(&cm.ID, &cm.CreatedAt, &cm.UpdatedAt)
}

// ListByIssue returns an issue's comments, newest first, with author
// summaries.
func (r *Repository) ListByIssue(ctx context.Context, issueID uuid.UUID) ([]models.Comment, error) {
	const query = `SELECT c.id, c.issue_id, c.author_id, c.body, c.created_at, c.updated_at,
			u.name, u.email
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.issue_id = $1
		ORDER BY c.created_at DESC, c.id DESC`
	rows, err := r.pool.Query(ctx, query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Comment
	for rows.Next() {
		var cm models.Comment
		var author models.UserSummary
		if err := rows.Scan(&cm.ID, &cm.IssueID, &cm.AuthorID, &cm.Body, &cm.CreatedAt, &cm.UpdatedAt,
			&author.Name, &author.Email); err != nil {
			return nil, err
		}
		author.ID = cm.AuthorID
		cm.Author = &author
		list = append(list, cm)
	}
	return list, rows.Err()
}

// GetByID returns a comment when its parent issue belongs to the given
// organization.
func (r *Repository) GetByID(ctx context.Context, id, orgID uuid.UUID) (*models.Comment, error) {
	const query = `SELECT c.id, c.issue_id, c.author_id, c.body, c.created_at, c.updated_at
		FROM comments c
		JOIN issues i ON i.id = c.issue_id
		WHERE c.id = $1 AND i.organization_id = $2`
	var cm models.Comment
	err := r.pool.QueryRow(ctx, query, id, orgID).
		Scan(&cm.ID, &cm.IssueID, &cm.AuthorID, &cm.Body, &cm.CreatedAt, &cm.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCommentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cm, nil
}

// Delete removes a comment.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM comments WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}
