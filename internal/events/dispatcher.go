// Package events fans issue lifecycle events out to the realtime hub and the
// webhook delivery queue. Fan-out is best-effort: a failed broadcast or
// enqueue is logged and never propagates back into the request that caused
// the event.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/issuedesk/backend/internal/models"
	"github.com/issuedesk/backend/pkg/queue"
)

// Envelope is the wire format shared by websocket pushes and webhook bodies.
type Envelope struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Broadcaster delivers a message to every websocket client in an org room
// across all server instances.
type Broadcaster interface {
	PublishToOrg(orgID uuid.UUID, message []byte)
}

// Enqueuer queues one webhook delivery for the worker.
type Enqueuer interface {
	EnqueueWebhookDelivery(ctx context.Context, payload queue.WebhookDeliveryPayload) error
}

// SubscriptionSource lists an organization's active webhook subscriptions.
type SubscriptionSource interface {
	ListActiveByOrg(ctx context.Context, orgID uuid.UUID) ([]models.Webhook, error)
}

// Dispatcher implements the EventSink used by the issue and comment
// handlers. Any collaborator may be nil; the corresponding fan-out is then
// skipped.
type Dispatcher struct {
	broadcaster Broadcaster
	queue       Enqueuer
	subs        SubscriptionSource
	logger      *zap.Logger
	timeout     time.Duration
}

// NewDispatcher creates an event dispatcher.
func NewDispatcher(broadcaster Broadcaster, q Enqueuer, subs SubscriptionSource, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		broadcaster: broadcaster,
		queue:       q,
		subs:        subs,
		logger:      logger,
		timeout:     5 * time.Second,
	}
}

// IssueEvent serializes the event once and hands it to the hub and to every
// subscribed active webhook. It runs detached from the request context so a
// client disconnect cannot cut the fan-out short.
func (d *Dispatcher) IssueEvent(orgID uuid.UUID, event string, payload any) {
	body, err := json.Marshal(Envelope{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	})
	if err != nil {
		d.logger.Error("marshal event", zap.String("event", event), zap.Error(err))
		return
	}

	if d.broadcaster != nil {
		d.broadcaster.PublishToOrg(orgID, body)
	}

	if d.queue == nil || d.subs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	hooks, err := d.subs.ListActiveByOrg(ctx, orgID)
	if err != nil {
		d.logger.Error("list webhook subscriptions",
			zap.String("org_id", orgID.String()),
			zap.Error(err))
		return
	}
	for i := range hooks {
		if !hooks[i].Subscribed(event) {
			continue
		}
		err := d.queue.EnqueueWebhookDelivery(ctx, queue.WebhookDeliveryPayload{
			WebhookID:      hooks[i].ID,
			OrganizationID: orgID,
			URL:            hooks[i].URL,
			Secret:         hooks[i].Secret,
			Event:          event,
			Body:           body,
		})
		if err != nil {
			d.logger.Error("enqueue webhook delivery",
				zap.String("webhook_id", hooks[i].ID.String()),
				zap.String("event", event),
				zap.Error(err))
		}
	}
}
