package issues

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/issuedesk/backend/internal/models"
)

// issueColumns selects an issue row with creator and assignee summaries
// joined in.
const issueColumns = `i.id, i.organization_id, i.title, i.description, i.priority, i.status,
	i.created_by, i.assignee_id, i.created_at, i.updated_at,
	c.name, c.email,
	a.name, a.email`

// Repository is the pgx-backed IssueStore.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an issues repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists a new issue.
func (r *Repository) Insert(ctx context.Context, issue *models.Issue) error {
	const query = `INSERT INTO issues (id, organization_id, title, description, priority, status, created_by, assignee_id)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		issue.OrganizationID, issue.Title, issue.Description, issue.Priority, issue.Status,
		issue.CreatedBy, issue.AssigneeID).
		Scan(&issue.ID, &issue.CreatedAt, &issue.UpdatedAt)
}

// GetByID returns the issue matching both id and organization. Cross-tenant
// ids and absent ids are the same not-found error.
func (r *Repository) GetByID(ctx context.Context, id, orgID uuid.UUID) (*models.Issue, error) {
	const query = `SELECT ` + issueColumns + `
		FROM issues i
		JOIN users c ON c.id = i.created_by
		LEFT JOIN users a ON a.id = i.assignee_id
		WHERE i.id = $1 AND i.organization_id = $2`
	row := r.pool.QueryRow(ctx, query, id, orgID)
	issue, err := scanIssue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrIssueNotFound
	}
	if err != nil {
		return nil, err
	}
	return issue, nil
}

// List returns the organization's issues newest first, optionally filtered
// by status and assignee.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID, f ListFilter) ([]models.Issue, error) {
	query := `SELECT ` + issueColumns + `
		FROM issues i
		JOIN users c ON c.id = i.created_by
		LEFT JOIN users a ON a.id = i.assignee_id
		WHERE i.organization_id = $1`
	args := []any{orgID}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND i.status = $%d", len(args))
	}
	if f.Assignee != nil {
		args = append(args, *f.Assignee)
		query += fmt.Sprintf(" AND i.assignee_id = $%d", len(args))
	}
	query += ` ORDER BY i.created_at DESC, i.id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *issue)
	}
	return list, rows.Err()
}

// Update overwrites the issue's mutable fields. The organization predicate
// keeps the write tenant-scoped even if the caller raced a delete.
func (r *Repository) Update(ctx context.Context, issue *models.Issue) error {
	const query = `UPDATE issues
		SET title = $1, description = $2, priority = $3, status = $4, assignee_id = $5, updated_at = NOW()
		WHERE id = $6 AND organization_id = $7
		RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		issue.Title, issue.Description, issue.Priority, issue.Status, issue.AssigneeID,
		issue.ID, issue.OrganizationID).
		Scan(&issue.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrIssueNotFound
	}
	return err
}

// Delete removes the issue row; activity entries, comments and attachment
// rows go with it via the cascade.
func (r *Repository) Delete(ctx context.Context, id, orgID uuid.UUID) error {
	const query = `DELETE FROM issues WHERE id = $1 AND organization_id = $2`
	tag, err := r.pool.Exec(ctx, query, id, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIssueNotFound
	}
	return nil
}

// Stats aggregates the organization's issues in a single grouped query.
func (r *Repository) Stats(ctx context.Context, orgID uuid.UUID) (*IssueStats, error) {
	const query = `SELECT status, priority, assignee_id IS NULL, COUNT(*)
		FROM issues WHERE organization_id = $1
		GROUP BY status, priority, assignee_id IS NULL`
	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &IssueStats{
		ByStatus:   make(map[models.IssueStatus]int64),
		ByPriority: make(map[models.IssuePriority]int64),
	}
	for rows.Next() {
		var status models.IssueStatus
		var priority models.IssuePriority
		var unassigned bool
		var count int64
		if err := rows.Scan(&status, &priority, &unassigned, &count); err != nil {
			return nil, err
		}
		stats.Total += count
		stats.ByStatus[status] += count
		if priority != "" {
			stats.ByPriority[priority] += count
		}
		if unassigned && status == models.StatusOpen {
			stats.UnassignedOpen += count
		}
	}
	return stats, rows.Err()
}

// scanIssue reads one joined issue row.
func scanIssue(row pgx.Row) (*models.Issue, error) {
	var issue models.Issue
	var creator models.UserSummary
	var assigneeName, assigneeEmail *string
	err := row.Scan(&issue.ID, &issue.OrganizationID, &issue.Title, &issue.Description,
		&issue.Priority, &issue.Status, &issue.CreatedBy, &issue.AssigneeID,
		&issue.CreatedAt, &issue.UpdatedAt,
		&creator.Name, &creator.Email,
		&assigneeName, &assigneeEmail)
	if err != nil {
		return nil, err
	}
	creator.ID = issue.CreatedBy
	issue.Creator = &creator
	if issue.AssigneeID != nil && assigneeName != nil {
		issue.Assignee = &models.UserSummary{
			ID:    *issue.AssigneeID,
			Name:  *assigneeName,
			Email: *assigneeEmail,
		}
	}
	return &issue, nil
}
