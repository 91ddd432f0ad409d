// Package issues implements org-scoped issue tracking with diff-based
// activity logging. Every read and write is filtered by the caller's
// organization; an issue in another organization is indistinguishable from
// one that does not exist.
package issues

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/issuedesk/backend/internal/models"
	"github.com/issuedesk/backend/pkg/apperr"
)

var (
	// ErrIssueNotFound covers both true absence and cross-tenant ids.
	ErrIssueNotFound = apperr.NotFound("issue not found")
	// ErrAssigneeNotInOrg is returned when an assignee id does not resolve to
	// a user of the caller's organization.
	ErrAssigneeNotInOrg = apperr.Forbidden("assignee must belong to your organization")
)

// IssueStore is the persistence surface the service needs for issues.
type IssueStore interface {
	Insert(ctx context.Context, issue *models.Issue) error
	List(ctx context.Context, orgID uuid.UUID, f ListFilter) ([]models.Issue, error)
	GetByID(ctx context.Context, id, orgID uuid.UUID) (*models.Issue, error)
	Update(ctx context.Context, issue *models.Issue) error
	Delete(ctx context.Context, id, orgID uuid.UUID) error
	Stats(ctx context.Context, orgID uuid.UUID) (*IssueStats, error)
}

// UserStore resolves users within an organization, used for assignee checks.
type UserStore interface {
	GetByID(ctx context.Context, id, orgID uuid.UUID) (*models.User, error)
}

// ActivityStore appends and lists issue activity entries.
type ActivityStore interface {
	Append(ctx context.Context, e *models.ActivityEntry) error
	ListByIssue(ctx context.Context, issueID uuid.UUID) ([]models.ActivityEntry, error)
}

// EventSink receives issue lifecycle events for realtime and webhook fan-out.
type EventSink interface {
	IssueEvent(orgID uuid.UUID, event string, payload any)
}

// ListFilter narrows List results. Zero value means no filtering.
type ListFilter struct {
	Status   models.IssueStatus
	Assignee *uuid.UUID
}

// CreateInput carries the validated fields for a new issue.
type CreateInput struct {
	Title       string
	Description string
	Priority    models.IssuePriority
	AssigneeID  *uuid.UUID
}

// UpdateInput carries a partial update. Nil pointer fields are untouched;
// Assignee distinguishes absent, explicit null (clear) and a concrete id.
type UpdateInput struct {
	Title       *string
	Description *string
	Status      *models.IssueStatus
	Priority    *models.IssuePriority
	Assignee    models.NullableUUID
}

// IssueDetail is an issue together with its full activity history.
type IssueDetail struct {
	models.Issue
	Activity []models.ActivityEntry `json:"activity"`
}

// IssueStats aggregates an organization's issues.
type IssueStats struct {
	Total          int64                          `json:"total"`
	ByStatus       map[models.IssueStatus]int64   `json:"by_status"`
	ByPriority     map[models.IssuePriority]int64 `json:"by_priority"`
	UnassignedOpen int64                          `json:"unassigned_open"`
}

// Service orchestrates validation, persistence and activity logging for
// issues.
type Service struct {
	issues   IssueStore
	users    UserStore
	activity ActivityStore
	events   EventSink
	logger   *zap.Logger
}

// NewService creates an issue service. events may be nil when no fan-out is
// wired (tests, worker-less deployments).
func NewService(issues IssueStore, users UserStore, activity ActivityStore, events EventSink, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		issues:   issues,
		users:    users,
		activity: activity,
		events:   events,
		logger:   logger,
	}
}

// Create persists a new issue with status OPEN and appends a CREATED entry.
// A supplied assignee must belong to the caller's organization.
func (s *Service) Create(ctx context.Context, identity models.Identity, in CreateInput) (*models.Issue, error) {
	if in.AssigneeID != nil {
		if err := s.checkAssignee(ctx, *in.AssigneeID, identity.OrganizationID); err != nil {
			return nil, err
		}
	}
	issue := &models.Issue{
		OrganizationID: identity.OrganizationID,
		Title:          in.Title,
		Description:    in.Description,
		Priority:       in.Priority,
		Status:         models.StatusOpen,
		CreatedBy:      identity.UserID,
		AssigneeID:     in.AssigneeID,
	}
	if err := s.issues.Insert(ctx, issue); err != nil {
		return nil, fmt.Errorf("insert issue: %w", err)
	}
	s.appendEntry(ctx, &models.ActivityEntry{
		IssueID:     issue.ID,
		Action:      models.ActionCreated,
		PerformedBy: identity.UserID,
	})
	created, err := s.issues.GetByID(ctx, issue.ID, identity.OrganizationID)
	if err != nil {
		created = issue
	}
	s.publish(identity.OrganizationID, models.EventIssueCreated, created)
	return created, nil
}

// List returns the organization's issues, newest first.
func (s *Service) List(ctx context.Context, identity models.Identity, f ListFilter) ([]models.Issue, error) {
	return s.issues.List(ctx, identity.OrganizationID, f)
}

// Get returns one issue with its activity history, newest first.
func (s *Service) Get(ctx context.Context, identity models.Identity, id uuid.UUID) (*IssueDetail, error) {
	issue, err := s.issues.GetByID(ctx, id, identity.OrganizationID)
	if err != nil {
		return nil, err
	}
	entries, err := s.activity.ListByIssue(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return &IssueDetail{Issue: *issue, Activity: entries}, nil
}

// Update applies a partial update. Status and assignee are the tracked
// fields: each change appends one entry carrying the prior persisted value
// and the requested value. When no tracked field changed, a single UPDATED
// entry is appended instead.
func (s *Service) Update(ctx context.Context, identity models.Identity, id uuid.UUID, in UpdateInput) (*models.Issue, error) {
	existing, err := s.issues.GetByID(ctx, id, identity.OrganizationID)
	if err != nil {
		return nil, err
	}

	next := *existing
	if in.Title != nil {
		next.Title = *in.Title
	}
	if in.Description != nil {
		next.Description = *in.Description
	}
	if in.Priority != nil {
		next.Priority = *in.Priority
	}
	if in.Status != nil {
		next.Status = *in.Status
	}
	if in.Assignee.Set {
		if in.Assignee.Valid {
			if err := s.checkAssignee(ctx, in.Assignee.Value, identity.OrganizationID); err != nil {
				return nil, err
			}
			v := in.Assignee.Value
			next.AssigneeID = &v
		} else {
			next.AssigneeID = nil
		}
	}

	var entries []models.ActivityEntry
	if next.Status != existing.Status {
		old, now := string(existing.Status), string(next.Status)
		entries = append(entries, models.ActivityEntry{
			IssueID:     id,
			Action:      models.ActionStatusChanged,
			OldValue:    &old,
			NewValue:    &now,
			PerformedBy: identity.UserID,
		})
	}
	if in.Assignee.Set && !sameAssignee(existing.AssigneeID, next.AssigneeID) {
		old, now := assigneeValue(existing.AssigneeID), assigneeValue(next.AssigneeID)
		entries = append(entries, models.ActivityEntry{
			IssueID:     id,
			Action:      models.ActionAssigneeChanged,
			OldValue:    &old,
			NewValue:    &now,
			PerformedBy: identity.UserID,
		})
	}
	if len(entries) == 0 {
		entries = append(entries, models.ActivityEntry{
			IssueID:     id,
			Action:      models.ActionUpdated,
			PerformedBy: identity.UserID,
		})
	}

	if err := s.issues.Update(ctx, &next); err != nil {
		return nil, fmt.Errorf("update issue: %w", err)
	}
	for i := range entries {
		s.appendEntry(ctx, &entries[i])
	}
	updated, err := s.issues.GetByID(ctx, id, identity.OrganizationID)
	if err != nil {
		updated = &next
	}
	s.publish(identity.OrganizationID, models.EventIssueUpdated, updated)
	return updated, nil
}

// Delete appends a DELETED entry and then removes the issue. The removal
// cascades to the issue's activity entries, comments and attachment rows.
func (s *Service) Delete(ctx context.Context, identity models.Identity, id uuid.UUID) error {
	issue, err := s.issues.GetByID(ctx, id, identity.OrganizationID)
	if err != nil {
		return err
	}
	s.appendEntry(ctx, &models.ActivityEntry{
		IssueID:     id,
		Action:      models.ActionDeleted,
		PerformedBy: identity.UserID,
	})
	if err := s.issues.Delete(ctx, id, identity.OrganizationID); err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	s.publish(identity.OrganizationID, models.EventIssueDeleted, map[string]any{
		"id":              issue.ID,
		"organization_id": issue.OrganizationID,
		"title":           issue.Title,
	})
	return nil
}

// Stats returns aggregate counts for the organization's issues.
func (s *Service) Stats(ctx context.Context, identity models.Identity) (*IssueStats, error) {
	return s.issues.Stats(ctx, identity.OrganizationID)
}

// checkAssignee verifies the assignee resolves within the organization. A
// missing user maps to a permission error so callers cannot probe other
// tenants' user ids.
func (s *Service) checkAssignee(ctx context.Context, assigneeID, orgID uuid.UUID) error {
	_, err := s.users.GetByID(ctx, assigneeID, orgID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return ErrAssigneeNotInOrg
		}
		return fmt.Errorf("resolve assignee: %w", err)
	}
	return nil
}

// appendEntry writes one activity entry. The issue mutation has already
// happened; a failed append is logged and swallowed rather than failing the
// request.
func (s *Service) appendEntry(ctx context.Context, e *models.ActivityEntry) {
	if err := s.activity.Append(ctx, e); err != nil {
		s.logger.Warn("activity append failed",
			zap.String("issue_id", e.IssueID.String()),
			zap.String("action", string(e.Action)),
			zap.Error(err))
	}
}

func (s *Service) publish(orgID uuid.UUID, event string, payload any) {
	if s.events != nil {
		s.events.IssueEvent(orgID, event, payload)
	}
}

// assigneeValue renders an assignee pointer for activity values, using the
// "unassigned" sentinel for nil.
func assigneeValue(id *uuid.UUID) string {
	if id == nil {
		return models.Unassigned
	}
	return id.String()
}

func sameAssignee(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
