package models

import (
	"time"

	"github.com/google/uuid"
)

// Webhook event names published for issue lifecycle changes.
const (
	EventIssueCreated   = "issue.created"
	EventIssueUpdated   = "issue.updated"
	EventIssueDeleted   = "issue.deleted"
	EventIssueCommented = "issue.commented"
)

// Webhook is a per-organization subscription to issue events. Deliveries are
// JSON POSTs to URL signed with Secret. An empty Events list subscribes to
// all event types.
type Webhook struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	URL            string    `json:"url"`
	Secret         string    `json:"-"`
	Events         []string  `json:"events"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

// Subscribed reports whether the webhook wants the given event type.
func (w *Webhook) Subscribed(event string) bool {
	if len(w.Events) == 0 {
		return true
	}
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}
