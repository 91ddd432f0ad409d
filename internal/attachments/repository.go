// Package attachments stores file metadata for issues; the bytes live in S3.
// Tenant isolation rides on the parent issue, same as comments.
package attachments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/issuedesk/backend/internal/models"
	"github.com/issuedesk/backend/pkg/apperr"
)

// ErrAttachmentNotFound covers absent and cross-tenant attachment ids.
var ErrAttachmentNotFound = apperr.NotFound("attachment not found")

// Repository handles attachment metadata persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an attachments repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists a new attachment row.
func (r *Repository) Insert(ctx context.Context, a *models.Attachment) error {
	const query = `INSERT INTO attachments (id, issue_id, uploaded_by, file_name, content_type, size_bytes, s3_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		a.ID, a.IssueID, a.UploadedBy, a.FileName, a.ContentType, a.SizeBytes, a.S3Key).
		Scan(&a.CreatedAt)
}

// ListByIssue returns an issue's attachments, newest first.
func (r *Repository) ListByIssue(ctx context.Context, issueID uuid.UUID) ([]models.Attachment, error) {
	const query = `SELECT id, issue_id, uploaded_by, file_name, content_type, size_bytes, s3_key, created_at
		FROM attachments WHERE issue_id = $1
		ORDER BY created_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Attachment
	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(&a.ID, &a.IssueID, &a.UploadedBy, &a.FileName, &a.ContentType,
			&a.SizeBytes, &a.S3Key, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// GetByID returns an attachment when its parent issue belongs to the given
// organization.
func (r *Repository) GetByID(ctx context.Context, id, orgID uuid.UUID) (*models.Attachment, error) {
	const query = `SELECT a.id, a.issue_id, a.uploaded_by, a.file_name, a.content_type, a.size_bytes, a.s3_key, a.created_at
		FROM attachments a
		JOIN issues i ON i.id = a.issue_id
		WHERE a.id = $1 AND i.organization_id = $2`
	var a models.Attachment
	err := r.pool.QueryRow(ctx, query, id, orgID).
		Scan(&a.ID, &a.IssueID, &a.UploadedBy, &a.FileName, &a.ContentType,
			&a.SizeBytes, &a.S3Key, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAttachmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Delete removes an attachment row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM attachments WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}
