package models

import (
	"time"

	"github.com/google/uuid"
)

// ActivityAction identifies what happened to an issue.
type ActivityAction string

const (
	ActionCreated         ActivityAction = "CREATED"
	ActionStatusChanged   ActivityAction = "STATUS_CHANGED"
	ActionAssigneeChanged ActivityAction = "ASSIGNEE_CHANGED"
	ActionUpdated         ActivityAction = "UPDATED"
	ActionDeleted         ActivityAction = "DELETED"
	ActionCommented       ActivityAction = "COMMENTED"
)

// Unassigned is the value recorded for an absent assignee in
// ASSIGNEE_CHANGED entries.
const Unassigned = "unassigned"

// ActivityEntry is one immutable audit record for an issue. Entries are never
// mutated or deleted on their own; they are removed only when the parent issue
// is deleted.
type ActivityEntry struct {
	ID          uuid.UUID      `json:"id"`
	IssueID     uuid.UUID      `json:"issue_id"`
	Action      ActivityAction `json:"action"`
	OldValue    *string        `json:"old_value,omitempty"`
	NewValue    *string        `json:"new_value,omitempty"`
	PerformedBy uuid.UUID      `json:"performed_by"`
	Performer   *UserSummary   `json:"performer,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
