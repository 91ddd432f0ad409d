// Package worker consumes the Redis job queue and delivers issue events to
// webhook subscription endpoints.
package worker

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/issuedesk/backend/internal/models"
	"github.com/issuedesk/backend/pkg/apperr"
	"github.com/issuedesk/backend/pkg/queue"
)

// Delivery headers. Receivers verify authenticity by recomputing the
// HMAC-SHA256 of the raw body with their subscription secret.
const (
	HeaderSignature = "X-Issuedesk-Signature"
	HeaderEvent     = "X-Issuedesk-Event"
	HeaderDelivery  = "X-Issuedesk-Delivery"
)

// Sign returns the signature header value for a delivery body:
// "sha256=" followed by the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// SubscriptionSource re-reads a webhook subscription at delivery time so
// deliveries stop as soon as a subscription is deleted or deactivated.
type SubscriptionSource interface {
	GetByID(ctx context.Context, id, orgID uuid.UUID) (*models.Webhook, error)
}

// WebhookDeliverer processes webhook delivery jobs: sign the event body, POST
// it to the subscription endpoint, retry on failure.
type WebhookDeliverer struct {
	subs   SubscriptionSource
	queue  *queue.Queue
	client *http.Client
	logger *zap.Logger
}

// NewWebhookDeliverer creates a delivery processor. subs may be nil; the
// pre-delivery subscription check is then skipped.
func NewWebhookDeliverer(subs SubscriptionSource, q *queue.Queue, timeout time.Duration, logger *zap.Logger) *WebhookDeliverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookDeliverer{
		subs:   subs,
		queue:  q,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Process executes one delivery job. A nil return means the job is done or
// deliberately dropped; an error sends it back through the retry path.
func (d *WebhookDeliverer) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeWebhookDelivery {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.WebhookDeliveryPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if d.subs != nil {
		hook, err := d.subs.GetByID(ctx, payload.WebhookID, payload.OrganizationID)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				d.logger.Info("subscription gone, dropping delivery",
					zap.String("webhook_id", payload.WebhookID.String()),
					zap.String("event", payload.Event))
				return nil
			}
			return fmt.Errorf("load subscription: %w", err)
		}
		if !hook.Active {
			d.logger.Info("subscription inactive, dropping delivery",
				zap.String("webhook_id", payload.WebhookID.String()),
				zap.String("event", payload.Event))
			return nil
		}
		// The endpoint may have been rotated since enqueue.
		payload.URL = hook.URL
		payload.Secret = hook.Secret
	}

	return d.deliver(ctx, job.ID, payload)
}

// deliver POSTs the signed event body to the subscription endpoint. Any
// non-2xx response counts as a failed delivery.
func (d *WebhookDeliverer) deliver(ctx context.Context, deliveryID string, payload queue.WebhookDeliveryPayload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, payload.URL, bytes.NewReader(payload.Body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, Sign(payload.Secret, payload.Body))
	req.Header.Set(HeaderEvent, payload.Event)
	req.Header.Set(HeaderDelivery, deliveryID)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", payload.URL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	d.logger.Info("webhook delivered",
		zap.String("webhook_id", payload.WebhookID.String()),
		zap.String("event", payload.Event),
		zap.Int("status", resp.StatusCode))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (d *WebhookDeliverer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("webhook worker stopping")
			return
		default:
		}

		job, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				d.logger.Info("webhook worker stopping")
				return
			}
			d.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		d.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := d.Process(ctx, job); err != nil {
			d.logger.Error("delivery failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := d.queue.Retry(ctx, job); reErr != nil {
				d.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}
