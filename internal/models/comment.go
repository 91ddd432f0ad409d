package models

import (
	"time"

	"github.com/google/uuid"
)

// Comment is a discussion entry under an issue.
type Comment struct {
	ID        uuid.UUID    `json:"id"`
	IssueID   uuid.UUID    `json:"issue_id"`
	AuthorID  uuid.UUID    `json:"author_id"`
	Author    *UserSummary `json:"author,omitempty"`
	Body      string       `json:"body"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
