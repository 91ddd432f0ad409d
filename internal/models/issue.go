package models

import (
	"time"

	"github.com/google/uuid"
)

// IssueStatus is the lifecycle state of an issue.
type IssueStatus string

const (
	StatusOpen       IssueStatus = "OPEN"
	StatusInProgress IssueStatus = "IN_PROGRESS"
	StatusResolved   IssueStatus = "RESOLVED"
	StatusClosed     IssueStatus = "CLOSED"
)

// Valid reports whether the status is an allowed lifecycle state.
func (s IssueStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// IssuePriority is the urgency of an issue.
type IssuePriority string

const (
	PriorityLow    IssuePriority = "low"
	PriorityMedium IssuePriority = "medium"
	PriorityHigh   IssuePriority = "high"
)

// Valid reports whether the priority is an allowed value.
func (p IssuePriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Issue represents a tracked issue scoped to an organization.
// Creator and Assignee summaries are resolved by the repository on reads.
type Issue struct {
	ID             uuid.UUID     `json:"id"`
	OrganizationID uuid.UUID     `json:"organization_id"`
	Title          string        `json:"title"`
	Description    string        `json:"description,omitempty"`
	Priority       IssuePriority `json:"priority,omitempty"`
	Status         IssueStatus   `json:"status"`
	CreatedBy      uuid.UUID     `json:"created_by"`
	AssigneeID     *uuid.UUID    `json:"assignee_id,omitempty"`
	Creator        *UserSummary  `json:"creator,omitempty"`
	Assignee       *UserSummary  `json:"assignee,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
