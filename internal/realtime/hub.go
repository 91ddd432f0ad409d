// Package realtime pushes issue lifecycle events to websocket clients. Each
// connection lives in its organization's room; events are fanned out to the
// room locally and bridged across server instances over Redis pub/sub.
package realtime

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are the heartbeat timings in seconds.
	PingInterval = 30
	PongWait     = 60

	// sendBuffer is the per-client outbound queue. A client that cannot keep
	// up has messages dropped rather than blocking the fan-out.
	sendBuffer = 256
)

// Publisher publishes a message to an organization's channel so every
// instance (including this one) delivers it to its local room.
type Publisher interface {
	PublishOrgEvent(orgID uuid.UUID, message []byte) error
}

// Subscriber subscribes to an organization's channel and invokes handler for
// incoming messages.
type Subscriber interface {
	SubscribeOrg(orgID uuid.UUID, handler func(message []byte)) (cancel func(), err error)
}

// Hub maintains org rooms of websocket clients. The Redis subscription for an
// org exists exactly while the room has local clients.
type Hub struct {
	// orgID -> map[clientID]*Client
	rooms    map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per org
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    Publisher
	redisSub Subscriber
}

// NewHub creates a websocket hub. redisPub and redisSub may be nil for a
// single-instance deployment; broadcasts are then local only.
func NewHub(logger *zap.Logger, redisPub Publisher, redisSub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to its org room, opening the org's Redis
// subscription when it is the first local client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.OrganizationID] == nil {
		h.rooms[c.OrganizationID] = make(map[string]*Client)
		if h.redisSub != nil {
			orgID := c.OrganizationID
			cancel, err := h.redisSub.SubscribeOrg(orgID, func(message []byte) {
				h.BroadcastToOrg(orgID, message)
			})
			if err != nil {
				h.logger.Warn("org subscribe failed",
					zap.String("org_id", orgID.String()), zap.Error(err))
			} else {
				h.subs[orgID] = cancel
			}
		}
	}
	h.rooms[c.OrganizationID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined org room",
		zap.String("client_id", c.ID),
		zap.String("org_id", c.OrganizationID.String()))
}

// Unregister removes a client from its org room, cancelling the org's Redis
// subscription when the last local client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if room, ok := h.rooms[c.OrganizationID]; ok {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(h.rooms, c.OrganizationID)
			if cancel, ok := h.subs[c.OrganizationID]; ok {
				cancel()
				delete(h.subs, c.OrganizationID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left org room",
		zap.String("client_id", c.ID),
		zap.String("org_id", c.OrganizationID.String()))
}

// BroadcastToOrg delivers a message to the org's local clients only. Clients
// with a full send buffer are skipped.
func (h *Hub) BroadcastToOrg(orgID uuid.UUID, message []byte) {
	h.mu.RLock()
	room := h.rooms[orgID]
	clients := make([]*Client, 0, len(room))
	for _, c := range room {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- message:
		default:
			h.logger.Debug("dropping message for slow client",
				zap.String("client_id", c.ID))
		}
	}
}

// PublishToOrg publishes a message for org-wide delivery. With Redis wired,
// the subscription callback performs the local broadcast exactly once per
// instance, so we publish only; a failed publish falls back to a local
// broadcast so single-instance deployments degrade instead of going silent.
func (h *Hub) PublishToOrg(orgID uuid.UUID, message []byte) {
	if h.redis != nil {
		err := h.redis.PublishOrgEvent(orgID, message)
		if err == nil {
			return
		}
		h.logger.Warn("org publish failed, broadcasting locally",
			zap.String("org_id", orgID.String()), zap.Error(err))
	}
	h.BroadcastToOrg(orgID, message)
}

// ClientCount returns the number of connected clients in an org room.
func (h *Hub) ClientCount(orgID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[orgID])
}
