package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/issuedesk/backend/internal/models"
	"github.com/issuedesk/backend/pkg/queue"
)

type fakeBroadcaster struct {
	orgIDs   []uuid.UUID
	messages [][]byte
}

func (f *fakeBroadcaster) PublishToOrg(orgID uuid.UUID, message []byte) {
	f.orgIDs = append(f.orgIDs, orgID)
	f.messages = append(f.messages, message)
}

type fakeEnqueuer struct {
	payloads []queue.WebhookDeliveryPayload
	err      error
}

func (f *fakeEnqueuer) EnqueueWebhookDelivery(_ context.Context, p queue.WebhookDeliveryPayload) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, p)
	return nil
}

type fakeSubs struct {
	hooks []models.Webhook
	err   error
}

func (f *fakeSubs) ListActiveByOrg(_ context.Context, _ uuid.UUID) ([]models.Webhook, error) {
	return f.hooks, f.err
}

func TestDispatcher_BroadcastsAndEnqueuesSubscribed(t *testing.T) {
	orgID := uuid.New()
	all := models.Webhook{ID: uuid.New(), OrganizationID: orgID, URL: "https://a.example.com", Secret: "s1", Events: []string{}}
	onlyCreated := models.Webhook{ID: uuid.New(), OrganizationID: orgID, URL: "https://b.example.com", Secret: "s2", Events: []string{models.EventIssueCreated}}

	b := &fakeBroadcaster{}
	q := &fakeEnqueuer{}
	d := NewDispatcher(b, q, &fakeSubs{hooks: []models.Webhook{all, onlyCreated}}, nil)

	d.IssueEvent(orgID, models.EventIssueDeleted, map[string]any{"id": "x"})

	require.Len(t, b.messages, 1)
	assert.Equal(t, orgID, b.orgIDs[0])

	var env Envelope
	require.NoError(t, json.Unmarshal(b.messages[0], &env))
	assert.Equal(t, models.EventIssueDeleted, env.Event)
	assert.False(t, env.Timestamp.IsZero())

	require.Len(t, q.payloads, 1, "only the catch-all subscription matches issue.deleted")
	p := q.payloads[0]
	assert.Equal(t, all.ID, p.WebhookID)
	assert.Equal(t, all.URL, p.URL)
	assert.Equal(t, all.Secret, p.Secret)
	assert.Equal(t, models.EventIssueDeleted, p.Event)
	assert.Equal(t, json.RawMessage(b.messages[0]), p.Body,
		"webhook body and websocket push must be the same serialized envelope")
}

func TestDispatcher_FanOutPerSubscription(t *testing.T) {
	orgID := uuid.New()
	hooks := []models.Webhook{
		{ID: uuid.New(), URL: "https://a.example.com", Secret: "s1"},
		{ID: uuid.New(), URL: "https://b.example.com", Secret: "s2"},
		{ID: uuid.New(), URL: "https://c.example.com", Secret: "s3", Events: []string{models.EventIssueCreated}},
	}
	q := &fakeEnqueuer{}
	d := NewDispatcher(nil, q, &fakeSubs{hooks: hooks}, nil)

	d.IssueEvent(orgID, models.EventIssueCreated, map[string]any{"id": "x"})
	assert.Len(t, q.payloads, 3)
}

func TestDispatcher_NilCollaboratorsAreSkipped(t *testing.T) {
	d := NewDispatcher(nil, nil, nil, nil)
	assert.NotPanics(t, func() {
		d.IssueEvent(uuid.New(), models.EventIssueCreated, map[string]any{"id": "x"})
	})
}

func TestDispatcher_ErrorsDoNotPropagate(t *testing.T) {
	b := &fakeBroadcaster{}
	q := &fakeEnqueuer{err: errors.New("redis down")}
	subs := &fakeSubs{hooks: []models.Webhook{{ID: uuid.New(), URL: "https://a.example.com", Secret: "s"}}}
	d := NewDispatcher(b, q, subs, nil)

	assert.NotPanics(t, func() {
		d.IssueEvent(uuid.New(), models.EventIssueUpdated, map[string]any{"id": "x"})
	})
	assert.Len(t, b.messages, 1, "broadcast still happens when enqueue fails")

	d = NewDispatcher(b, &fakeEnqueuer{}, &fakeSubs{err: errors.New("db down")}, nil)
	assert.NotPanics(t, func() {
		d.IssueEvent(uuid.New(), models.EventIssueUpdated, map[string]any{"id": "x"})
	})
}
